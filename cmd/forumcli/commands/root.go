package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"forumcore/lib/configutil"
	"forumcore/lib/forums/client"
	"forumcore/lib/forums/session"
	"forumcore/lib/forums/store"
	"forumcore/lib/util/restyutil"
	"forumcore/lib/util/serviceutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"
)

type Config struct {
	BaseURL  string `json:"baseUrl"`
	Username string `json:"username"`
	Password string `json:"password"`
}

var (
	dbPath   *string
	dumpHTTP *string
)

var rootCmd = &cobra.Command{
	Use:   "forumcli",
	Short: "forumcli scrapes a forum from the command line and caches results in a database.",
}

func init() {
	dbPath = rootCmd.PersistentFlags().String("db", "forum.db", "The database to cache scrape results in.")
	dumpHTTP = rootCmd.PersistentFlags().String("dump-http", "", "Write every HTTP exchange to this directory.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dial builds a client from forumcli.json5 and the --db flag, logging
// in when asked. Exits the process on any setup failure.
func dial(ctx context.Context, logIn bool) *client.Client {
	cfg, err := configutil.ReadConfig[Config]("forumcli.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	sess, err := session.New(cfg.BaseURL, nil, session.Hooks{})
	if err != nil {
		serviceutil.Fatal("failed to initialize session", err)
	}
	if *dumpHTTP != "" {
		sess.DumpTraffic(restyutil.NewFilesystemOutput(*dumpHTTP))
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		serviceutil.Fatal("failed to open db", err)
	}

	c := client.New(sess, store.NewBridge(st))
	if logIn {
		if _, err := c.LogIn(ctx, cfg.Username, cfg.Password); err != nil {
			serviceutil.Fatal("failed to log in", err)
		}
	}
	return c
}

// snippet flattens post HTML into one line of plain text for listings.
func snippet(innerHTML string, max int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(innerHTML))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if len(text) > max {
		text = text[:max] + "…"
	}
	return text
}
