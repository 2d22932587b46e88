// Package scrape turns parsed forum pages into typed results that
// know how to upsert themselves into a store context. One result type
// per page shape; each owns its own selector logic but shares the
// idempotent-merge contract: matching entities by natural key and
// updating fields in place, never duplicating.
package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"forumcore/lib/htmlutil"
	"forumcore/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

// Error reports a selector or value that was expected on the page but
// not found. It signals server markup drift or a logic bug, so the
// failed expectation is always named.
type Error struct {
	Selector string
}

func (e *Error) Error() string {
	return fmt.Sprintf("scrape: expected %q to match", e.Selector)
}

func missing(selector string) error {
	return &Error{Selector: selector}
}

var digitsRegex = regexp.MustCompile(`\d+`)

// firstDigits pulls the first run of decimal digits out of s, for
// identifiers embedded in attributes like id="thread3510131".
func firstDigits(s string) string {
	return digitsRegex.FindString(s)
}

// userIDFromHref reads the userid query parameter off a profile link.
func userIDFromHref(sel *goquery.Selection) string {
	href, ok := sel.Attr("href")
	if !ok {
		return ""
	}
	return htmlutil.QueryValue(href, "userid")
}

// The forum renders dates in a handful of formats depending on the
// viewer's clock preference and the page. Raw strings are kept
// alongside the parsed value so nothing is lost when parsing fails.
var dateLayouts = []string{
	"3:04 PM Jan 2, 2006",
	"15:04 Jan 2, 2006",
	"Jan 2, 2006 at 3:04 PM",
	"January 2, 2006 at 15:04",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
}

func parseDate(raw string) time.Time {
	cleaned := htmlutil.CleanText(raw)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, cleaned, timezone.Location); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// innerHTML serializes the children of the first node in sel.
func innerHTML(sel *goquery.Selection) string {
	out, err := sel.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}
