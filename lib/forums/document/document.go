// Package document turns raw response bytes into a queryable HTML
// document and recognizes the forum's server-side error pages before
// any scrape contract sees them.
package document

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"forumcore/lib/forums/wincodec"
	"forumcore/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Parsed couples a document with the final URL it was fetched from.
// The URL matters: several scrape contracts read identifiers out of
// the query string or fragment that exist nowhere in the markup.
type Parsed struct {
	Doc *goquery.Document
	URL *url.URL
}

// Parse decodes body according to the declared content type and
// builds a document tree. The server error sniff runs before the
// document is returned, so callers never scrape an error page by
// accident.
func Parse(body []byte, contentType string, finalURL *url.URL) (Parsed, error) {
	parsed, err := ParseUnchecked(body, contentType, finalURL)
	if err != nil {
		return Parsed{}, err
	}
	if err := CheckServerErrors(parsed.Doc); err != nil {
		return Parsed{}, err
	}
	return parsed, nil
}

// ParseUnchecked builds the document without the server error sniff.
// A few responses carry their real answer in the error page's shape
// (a rejected ignore list update, a forum refusing submissions);
// their callers sniff for themselves.
func ParseUnchecked(body []byte, contentType string, finalURL *url.URL) (Parsed, error) {
	decoded, err := wincodec.DecodeBody(body, contentType)
	if err != nil {
		return Parsed{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decoded))
	if err != nil {
		return Parsed{}, fmt.Errorf("parse html: %w", err)
	}
	return Parsed{Doc: doc, URL: finalURL}, nil
}

// ServerError is a recognized forum error page, rendered to the user
// largely verbatim.
type ServerError struct {
	Kind    ServerErrorKind
	Title   string
	Message string
}

type ServerErrorKind int

const (
	ServerErrorStandard ServerErrorKind = iota
	ServerErrorDatabaseUnavailable
	ServerErrorBanned
)

func (e *ServerError) Error() string {
	if e.Message == "" {
		return e.Title
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Message)
}

// CheckServerErrors sniffs the two known error page shapes, plus the
// ban page, and converts them into a typed *ServerError.
func CheckServerErrors(doc *goquery.Document) error {
	if body := doc.Find("body.database_error"); body.Length() > 0 {
		title := htmlutil.TrimmedText(body.Find("h1").First())
		if title == "" {
			title = "Database Unavailable"
		}
		return &ServerError{
			Kind:    ServerErrorDatabaseUnavailable,
			Title:   title,
			Message: htmlutil.TrimmedText(body.Find("p").First()),
		}
	}

	// The error body class distinguishes a genuine server error page
	// from ordinary pages that happen to contain a div.standard.
	if body := doc.Find("body.standarderror"); body.Length() > 0 {
		standard := body.Find("#content center div.standard, div.standard").First()
		title := htmlutil.TrimmedText(body.Find("#content center h2, h2").First())
		message := htmlutil.TrimmedText(standard.Find("div.inner, p").First())
		if message == "" {
			message = htmlutil.TrimmedText(standard)
		}
		if strings.Contains(strings.ToLower(title), "banned") {
			return &ServerError{Kind: ServerErrorBanned, Title: title, Message: message}
		}
		return &ServerError{Kind: ServerErrorStandard, Title: title, Message: message}
	}

	return nil
}
