package commands

import (
	"fmt"

	"forumcore/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	pmCmd.AddCommand(pmListCmd)
	pmCmd.AddCommand(pmReadCmd)
	rootCmd.AddCommand(pmCmd)
}

var pmCmd = &cobra.Command{
	Use:   "pm",
	Short: "Private message commands.",
}

var pmListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the private message inbox.",
	Run: func(cmd *cobra.Command, args []string) {
		c := dial(cmd.Context(), true)
		messages, err := c.ListPrivateMessages(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list private messages", err)
		}
		bg := c.Store()
		for _, m := range messages {
			marker := " "
			if !m.Seen {
				marker = "*"
			}
			sender := ""
			if m.SenderUserID != "" {
				sender = bg.User(m.SenderUserID).Username
			}
			fmt.Printf("%s %-9s %-20s %s\n", marker, m.ID, sender, m.Subject)
		}
	},
}

var pmReadCmd = &cobra.Command{
	Use:   "read <messageid>",
	Short: "Reads one private message.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := dial(cmd.Context(), true)
		m, err := c.ReadPrivateMessage(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("failed to read private message", err)
		}
		fmt.Printf("%s\n%s\n\n%s\n", m.Subject, m.SentAtRaw, snippet(m.InnerHTML, 4000))
	},
}
