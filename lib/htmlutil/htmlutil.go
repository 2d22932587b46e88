// Package htmlutil has small helpers for pulling text and link data
// out of goquery selections.
package htmlutil

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// CleanText collapses runs of whitespace and strips non-printable
// characters, the way forum markup tends to need.
func CleanText(s string) string {
	var b strings.Builder
	for _, c := range s {
		if unicode.IsPrint(c) || c == ' ' {
			b.WriteRune(c)
		}
	}
	out := strings.TrimSpace(b.String())
	return innerWhitespace.ReplaceAllString(out, " ")
}

// TrimmedText is the cleaned text content of the first node in sel.
func TrimmedText(sel *goquery.Selection) string {
	return CleanText(sel.Text())
}

// QueryValue extracts a single query parameter from an href-style URL
// string, returning "" when the URL does not parse or the parameter
// is absent.
func QueryValue(href, param string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get(param)
}

// ResolveHref resolves an anchor's href against the page URL. Returns
// nil for missing or unparseable hrefs.
func ResolveHref(base *url.URL, sel *goquery.Selection) *url.URL {
	href, ok := sel.Attr("href")
	if !ok {
		return nil
	}
	u, err := url.Parse(href)
	if err != nil {
		return nil
	}
	if base == nil {
		return u
	}
	return base.ResolveReference(u)
}
