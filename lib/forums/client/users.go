package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"forumcore/lib/forums/scrape"
	"forumcore/lib/forums/session"
	"forumcore/lib/forums/store"
)

// ProfileByID fetches a user's profile page and returns the updated
// user record.
func (c *Client) ProfileByID(ctx context.Context, userID string) (*store.User, error) {
	return c.profile(ctx, url.Values{
		"action": {"getinfo"},
		"userid": {userID},
	})
}

// ProfileByUsername fetches a profile by username, for users known
// only by name (private message senders, for instance).
func (c *Client) ProfileByUsername(ctx context.Context, username string) (*store.User, error) {
	return c.profile(ctx, url.Values{
		"action":   {"getinfo"},
		"username": {username},
	})
}

// OwnProfile fetches the logged-in user's profile.
func (c *Client) OwnProfile(ctx context.Context) (*store.User, error) {
	return c.profile(ctx, url.Values{"action": {"getinfo"}})
}

func (c *Client) profile(ctx context.Context, params url.Values) (*store.User, error) {
	ctx, span := tracer.Start(ctx, "client:profile")
	defer span.End()

	parsed, err := c.fetchParsed(ctx, session.MethodGet, "member.php", params, nil)
	if err != nil {
		return nil, err
	}
	result, err := scrape.ScrapeProfile(parsed)
	if err != nil {
		return nil, err
	}
	if result.Author.UserID == "" {
		return nil, fmt.Errorf("profile page shows no user ID")
	}
	if err := c.upsert(result.Upsert); err != nil {
		return nil, err
	}
	return c.bridge.Foreground().User(result.Author.UserID), nil
}

// ListPunishments fetches one page of the public rap sheet. userID,
// when non-empty, restricts the sheet to one user's punishments.
// Punishments are value objects; nothing here is persisted.
func (c *Client) ListPunishments(ctx context.Context, userID string, page int) ([]scrape.Punishment, error) {
	params := url.Values{"pagenumber": {strconv.Itoa(page)}}
	if userID != "" {
		params.Set("userid", userID)
	}
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "banlist.php", params, nil)
	if err != nil {
		return nil, err
	}
	result, err := scrape.ScrapeBanList(parsed)
	if err != nil {
		return nil, err
	}
	return result.Punishments, nil
}

// ListAnnouncements fills in the bodies of announcements previously
// seen on a thread list, and returns every cached announcement.
func (c *Client) ListAnnouncements(ctx context.Context) ([]*store.Announcement, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "announcement.php", url.Values{
		"forumid": {"1"},
	}, nil)
	if err != nil {
		return nil, err
	}
	result, err := scrape.ScrapeAnnouncementList(parsed)
	if err != nil {
		return nil, err
	}
	if err := c.upsert(result.Upsert); err != nil {
		return nil, err
	}
	return c.bridge.Foreground().Announcements()
}

// ListPostIcons fetches the thread tag icons selectable when posting
// a new thread in a forum.
func (c *Client) ListPostIcons(ctx context.Context, forumID string) (*scrape.PostIconList, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "newthread.php", url.Values{
		"action":  {"newthread"},
		"forumid": {forumID},
	}, nil)
	if err != nil {
		return nil, err
	}
	result, err := scrape.ScrapePostIconList(parsed)
	if err != nil {
		return nil, err
	}
	if err := c.upsert(result.Upsert); err != nil {
		return nil, err
	}
	return result, nil
}
