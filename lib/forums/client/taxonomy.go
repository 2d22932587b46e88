package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"forumcore/lib/forums/document"
	"forumcore/lib/forums/session"
	"forumcore/lib/forums/store"
)

// The index endpoint serves the forum taxonomy and the logged-in
// user's profile as JSON. Identifiers arrive as strings or numbers
// depending on the server's mood, so every ID goes through flexibleID.
type indexResult struct {
	CurrentUser indexProfile `json:"user"`
	Forums      []indexForum `json:"forums"`
}

type indexForum struct {
	ID         flexibleID   `json:"id"`
	Title      string       `json:"title"`
	ShortTitle string       `json:"title_short"`
	HasThreads flexibleBool `json:"has_threads"`
	Subforums  []indexForum `json:"sub_forums"`
}

type indexProfile struct {
	UserID        flexibleID   `json:"userid"`
	Username      string       `json:"username"`
	CanReceivePMs flexibleBool `json:"receivepm"`
}

type flexibleID string

func (v *flexibleID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = flexibleID(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", b)
	}
	*v = flexibleID(strconv.FormatInt(n, 10))
	return nil
}

type flexibleBool bool

func (v *flexibleBool) UnmarshalJSON(b []byte) error {
	var t bool
	if err := json.Unmarshal(b, &t); err == nil {
		*v = flexibleBool(t)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("bool is neither bool nor number: %s", b)
	}
	*v = n != 0
	return nil
}

// LogIn authenticates against the forum and returns the logged-in
// user. The server answers a successful login with the JSON index; an
// HTML answer means the login did not take, in which case any cookies
// the attempt left behind are cleared so the session reads as logged
// out.
func (c *Client) LogIn(ctx context.Context, username, password string) (*store.User, error) {
	ctx, span := tracer.Start(ctx, "client:logIn")
	defer span.End()

	res, err := c.session.Fetch(ctx, session.MethodPost, "account.php?json=1", url.Values{
		"action":   {"login"},
		"username": {username},
		"password": {password},
		"next":     {"/index.php?json=1"},
	}, nil)
	if err != nil {
		return nil, err
	}

	var index indexResult
	if err := json.Unmarshal(res.Body, &index); err != nil || index.CurrentUser.UserID == "" {
		c.session.ClearLoginCookies()

		// maybe the server explained itself as an HTML error page
		if _, parseErr := document.Parse(res.Body, res.ContentType, res.FinalURL); parseErr != nil {
			return nil, parseErr
		}
		return nil, ErrInvalidLogin
	}

	userID := string(index.CurrentUser.UserID)
	if err := c.upsert(func(bg *store.Context) ([]store.Key, error) {
		user := bg.User(userID)
		user.Username = index.CurrentUser.Username
		user.CanReceivePMs = bool(index.CurrentUser.CanReceivePMs)
		bg.Touch(user.Key())
		return []store.Key{user.Key()}, nil
	}); err != nil {
		return nil, err
	}

	c.log.InfoContext(ctx, "logged in", "userID", userID)
	return c.bridge.Foreground().User(userID), nil
}

// ListForums fetches the forum taxonomy and returns every forum in
// depth-first order, the order the forum index renders them.
func (c *Client) ListForums(ctx context.Context) ([]*store.Forum, error) {
	ctx, span := tracer.Start(ctx, "client:listForums")
	defer span.End()

	res, err := c.session.Fetch(ctx, session.MethodGet, "index.php", url.Values{"json": {"1"}}, nil)
	if err != nil {
		return nil, err
	}

	var index indexResult
	if err := json.Unmarshal(res.Body, &index); err != nil {
		// an HTML answer here is a server error page or a logout
		if _, parseErr := document.Parse(res.Body, res.ContentType, res.FinalURL); parseErr != nil {
			return nil, parseErr
		}
		return nil, fmt.Errorf("decode forum index: %w", err)
	}

	var ids []string
	if err := c.upsert(func(bg *store.Context) ([]store.Key, error) {
		var keys []store.Key
		position := 0

		var walk func(scraped []indexForum, parentID string)
		walk = func(scraped []indexForum, parentID string) {
			for _, sf := range scraped {
				if sf.ID == "" {
					continue
				}
				forum := bg.Forum(string(sf.ID))
				forum.Name = sf.Title
				forum.ParentForumID = parentID
				forum.Position = position
				position++
				bg.Touch(forum.Key())
				keys = append(keys, forum.Key())
				ids = append(ids, forum.ID)
				walk(sf.Subforums, forum.ID)
			}
		}
		walk(index.Forums, "")
		return keys, nil
	}); err != nil {
		return nil, err
	}

	fg := c.bridge.Foreground()
	forums := make([]*store.Forum, 0, len(ids))
	for _, id := range ids {
		forums = append(forums, fg.Forum(id))
	}
	return forums, nil
}
