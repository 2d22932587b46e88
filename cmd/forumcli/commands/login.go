package commands

import (
	"fmt"

	"forumcore/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in with the configured credentials and reports who you are.",
	Run: func(cmd *cobra.Command, args []string) {
		c := dial(cmd.Context(), true)
		user, err := c.OwnProfile(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to fetch own profile", err)
		}
		fmt.Printf("logged in as %s (userid %s)\n", user.Username, user.ID)
		if expiry, ok := c.LoginCookieExpiry(); ok {
			fmt.Printf("session expires %s\n", expiry.Format("2006-01-02"))
		}
	},
}
