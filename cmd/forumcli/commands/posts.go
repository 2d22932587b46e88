package commands

import (
	"fmt"

	"forumcore/lib/forums/client"
	"forumcore/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	postsPage   *int
	postsUnread *bool
)

func init() {
	postsPage = postsCmd.Flags().Int("page", 1, "The thread page to fetch.")
	postsUnread = postsCmd.Flags().Bool("unread", false, "Jump to the first unread post instead.")
	rootCmd.AddCommand(postsCmd)
}

var postsCmd = &cobra.Command{
	Use:   "posts <threadid>",
	Short: "Lists one page of a thread's posts.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := dial(cmd.Context(), true)

		page := client.SpecificPage(*postsPage)
		if *postsUnread {
			page = client.NextUnreadPage
		}
		result, err := c.ListPosts(cmd.Context(), args[0], "", page, false)
		if err != nil {
			serviceutil.Fatal("failed to list posts", err)
		}

		fmt.Printf("page %d of %d\n", result.PageNumber, result.PageCount)
		bg := c.Store()
		for i, p := range result.Posts {
			author := bg.User(p.AuthorUserID).Username
			cursor := " "
			if result.FirstUnread == i+1 {
				cursor = ">"
			}
			fmt.Printf("%s #%-4d %-20s %s\n       %s\n", cursor, p.ThreadIndex, author, p.PostedAtRaw, snippet(p.InnerHTML, 120))
		}
	},
}
