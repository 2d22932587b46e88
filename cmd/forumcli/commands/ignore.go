package commands

import (
	"fmt"

	"forumcore/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	ignoreCmd.AddCommand(ignoreLsCmd)
	ignoreCmd.AddCommand(ignoreAddCmd)
	ignoreCmd.AddCommand(ignoreAddIDCmd)
	ignoreCmd.AddCommand(ignoreRmCmd)
	rootCmd.AddCommand(ignoreCmd)
}

var ignoreCmd = &cobra.Command{
	Use:   "ignore",
	Short: "Ignore list commands.",
}

var ignoreLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Lists ignored users.",
	Run: func(cmd *cobra.Command, args []string) {
		c := dial(cmd.Context(), true)
		form, err := c.ListIgnoredUsers(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to fetch ignore list", err)
		}
		for _, username := range form.Usernames {
			fmt.Println(username)
		}
	},
}

var ignoreAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Adds a user to the ignore list by username.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := dial(cmd.Context(), true)
		if err := c.AddIgnoredUsername(cmd.Context(), args[0]); err != nil {
			serviceutil.Fatal("failed to add ignored user", err)
		}
	},
}

var ignoreAddIDCmd = &cobra.Command{
	Use:   "add-id <userid>",
	Short: "Adds a user to the ignore list through their profile form.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := dial(cmd.Context(), true)
		if err := c.AddIgnoredUser(cmd.Context(), args[0]); err != nil {
			serviceutil.Fatal("failed to add ignored user", err)
		}
	},
}

var ignoreRmCmd = &cobra.Command{
	Use:   "rm <username>",
	Short: "Removes a user from the ignore list.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := dial(cmd.Context(), true)
		if err := c.RemoveIgnoredUser(cmd.Context(), args[0]); err != nil {
			serviceutil.Fatal("failed to remove ignored user", err)
		}
	},
}
