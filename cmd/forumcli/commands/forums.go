package commands

import (
	"fmt"
	"strings"

	"forumcore/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(forumsCmd)
}

var forumsCmd = &cobra.Command{
	Use:   "forums",
	Short: "Lists the forum taxonomy.",
	Run: func(cmd *cobra.Command, args []string) {
		c := dial(cmd.Context(), true)
		forums, err := c.ListForums(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list forums", err)
		}

		depths := map[string]int{}
		for _, f := range forums {
			depths[f.ID] = depths[f.ParentForumID] + 1
		}
		for _, f := range forums {
			fmt.Printf("%s%s  %s\n", strings.Repeat("  ", depths[f.ID]-1), f.ID, f.Name)
		}
	},
}
