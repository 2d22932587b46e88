package commands

import (
	"fmt"

	"forumcore/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	threadsPage *int
	threadsTag  *string
)

func init() {
	threadsPage = threadsCmd.Flags().Int("page", 1, "The list page to fetch.")
	threadsTag = threadsCmd.Flags().String("tag", "", "Filter by thread tag id.")
	rootCmd.AddCommand(threadsCmd)
}

var threadsCmd = &cobra.Command{
	Use:   "threads <forumid>",
	Short: "Lists one page of a forum's threads.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := dial(cmd.Context(), true)
		threads, err := c.ListThreads(cmd.Context(), args[0], *threadsTag, *threadsPage)
		if err != nil {
			serviceutil.Fatal("failed to list threads", err)
		}
		for _, t := range threads {
			marker := " "
			if t.UnreadPosts > 0 {
				marker = "*"
			}
			fmt.Printf("%s %-9s %4d replies  %s\n", marker, t.ID, t.ReplyCount, t.Title)
		}
	},
}
