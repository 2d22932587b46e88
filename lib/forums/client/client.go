// Package client is the public face of the forum core: it sequences
// request, parse, scrape, persist, and hands back live store objects.
// Multi-step workflows (preview then submit, locate-by-redirect) live
// here; everything below it is a single-purpose layer.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"forumcore/lib/forums/document"
	"forumcore/lib/forums/scrape"
	"forumcore/lib/forums/session"
	"forumcore/lib/forums/store"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("forumcore/forums/client")

// ForbiddenError is the server refusing an operation the UI offered:
// posting in a forum that is not accepting submissions, editing a
// post without permission.
type ForbiddenError struct {
	Description string
}

func (e *ForbiddenError) Error() string { return e.Description }

// ErrInvalidLogin is returned when the login endpoint rejects the
// supplied credentials.
var ErrInvalidLogin = errors.New("invalid username or password")

// Client orchestrates forum operations over one session and one
// store bridge. Construct with New; safe for concurrent use.
type Client struct {
	session *session.Session
	bridge  *store.Bridge
	log     *slog.Logger
}

func New(s *session.Session, bridge *store.Bridge) *Client {
	return &Client{
		session: s,
		bridge:  bridge,
		log:     slog.Default().With("component", "forums/client"),
	}
}

// Session exposes the underlying transport, mostly so callers can
// check login state and hang hooks.
func (c *Client) Session() *session.Session { return c.session }

// Store returns the caller-facing context. Objects handed back by
// client operations belong to this context; the background context is
// reserved for network-driven writes and its live objects never reach
// callers.
func (c *Client) Store() *store.Context { return c.bridge.Foreground() }

// LoggedIn reports whether the login cookie is present.
func (c *Client) LoggedIn() bool { return c.session.LoggedIn() }

// LoginCookieExpiry returns when the current login session expires,
// when known.
func (c *Client) LoginCookieExpiry() (time.Time, bool) {
	return c.session.LoginCookieExpiry()
}

// fetchParsed performs one fetch and parses the response, running the
// server error sniff.
func (c *Client) fetchParsed(ctx context.Context, method session.Method, path string, params url.Values, policy session.RedirectPolicy) (document.Parsed, error) {
	res, err := c.session.Fetch(ctx, method, path, params, policy)
	if err != nil {
		return document.Parsed{}, err
	}
	return document.Parse(res.Body, res.ContentType, res.FinalURL)
}

// upsert runs one or more upserts against the background context and
// saves them in a single transaction. Callers resolve the identities
// they want to return on the foreground context afterwards; handing
// out the background context's live objects would share them with
// in-flight scrape writes.
func (c *Client) upsert(upserts ...func(*store.Context) ([]store.Key, error)) error {
	bg := c.bridge.Background()
	for _, u := range upserts {
		if _, err := u(bg); err != nil {
			return err
		}
	}
	if _, err := bg.Save(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func entryParams(entries []scrape.Entry) url.Values {
	return scrape.EntryValues(entries)
}
