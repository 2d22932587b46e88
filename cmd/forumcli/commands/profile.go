package commands

import (
	"fmt"

	"forumcore/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(profileCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile <username>",
	Short: "Shows a user's profile.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := dial(cmd.Context(), true)
		user, err := c.ProfileByUsername(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("failed to fetch profile", err)
		}

		fmt.Printf("%s (userid %s)\n", user.Username, user.ID)
		fmt.Printf("registered: %s\n", user.RegDateRaw)
		fmt.Printf("posts: %d\n", user.PostCount)
		if user.Location != "" {
			fmt.Printf("location: %s\n", user.Location)
		}
		if user.Administrator {
			fmt.Println("administrator")
		} else if user.Moderator {
			fmt.Println("moderator")
		}
	},
}
