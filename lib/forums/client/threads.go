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

// ListThreads fetches one page of a forum's thread list. tagID
// filters by thread tag when non-empty. Page 1 doubles as a staleness
// sweep: cached threads of the forum missing from the fresh page get
// their list marker reset.
func (c *Client) ListThreads(ctx context.Context, forumID, tagID string, page int) ([]*store.Thread, error) {
	ctx, span := tracer.Start(ctx, "client:listThreads")
	defer span.End()

	params := url.Values{
		"forumid":    {forumID},
		"perpage":    {"40"},
		"pagenumber": {strconv.Itoa(page)},
	}
	if tagID != "" {
		params.Set("posticon", tagID)
	}

	parsed, err := c.fetchParsed(ctx, session.MethodGet, "forumdisplay.php", params, nil)
	if err != nil {
		return nil, err
	}
	result, err := scrape.ScrapeThreadList(parsed)
	if err != nil {
		return nil, err
	}
	if err := c.upsert(result.Upsert); err != nil {
		return nil, err
	}
	return c.materializeThreads(result.Threads), nil
}

// ListBookmarkedThreads fetches one page of the bookmark list, with
// the bookmark-list staleness sweep for this page and later ones.
func (c *Client) ListBookmarkedThreads(ctx context.Context, page int) ([]*store.Thread, error) {
	ctx, span := tracer.Start(ctx, "client:listBookmarkedThreads")
	defer span.End()

	parsed, err := c.fetchParsed(ctx, session.MethodGet, "bookmarkthreads.php", url.Values{
		"action":     {"view"},
		"perpage":    {"40"},
		"pagenumber": {strconv.Itoa(page)},
	}, nil)
	if err != nil {
		return nil, err
	}
	result, err := scrape.ScrapeThreadList(parsed)
	if err != nil {
		return nil, err
	}
	// the endpoint is what makes this the bookmarks page, not markup
	result.IsBookmarksPage = true
	if err := c.upsert(result.Upsert); err != nil {
		return nil, err
	}
	return c.materializeThreads(result.Threads), nil
}

// materializeThreads resolves listed thread IDs on the foreground
// context, after the background save has landed.
func (c *Client) materializeThreads(listed []scrape.ListedThread) []*store.Thread {
	fg := c.bridge.Foreground()
	threads := make([]*store.Thread, 0, len(listed))
	for _, lt := range listed {
		threads = append(threads, fg.Thread(lt.ID))
	}
	return threads
}

// SetBookmarked adds or removes a thread from the bookmark list.
func (c *Client) SetBookmarked(ctx context.Context, threadID string, bookmarked bool) error {
	action := "remove"
	if bookmarked {
		action = "add"
	}
	_, err := c.session.Fetch(ctx, session.MethodPost, "bookmarkthreads.php", url.Values{
		"json":     {"1"},
		"action":   {action},
		"threadid": {threadID},
	}, nil)
	if err != nil {
		return err
	}
	return c.upsert(func(bg *store.Context) ([]store.Key, error) {
		thread := bg.Thread(threadID)
		thread.Bookmarked = bookmarked
		if bookmarked && thread.BookmarkListPage <= 0 {
			thread.BookmarkListPage = 1
		}
		if !bookmarked {
			thread.BookmarkListPage = 0
		}
		bg.Touch(thread.Key())
		return []store.Key{thread.Key()}, nil
	})
}

// SetBookmarkColor changes a bookmarked thread's star category.
// Setting a color on an unbookmarked thread bookmarks it; that is how
// the server behaves.
func (c *Client) SetBookmarkColor(ctx context.Context, threadID string, category int) error {
	_, err := c.session.Fetch(ctx, session.MethodPost, "bookmarkthreads.php", url.Values{
		"threadid":    {threadID},
		"action":      {"add"},
		"category_id": {strconv.Itoa(category)},
		"json":        {"1"},
	}, nil)
	if err != nil {
		return err
	}
	return c.upsert(func(bg *store.Context) ([]store.Key, error) {
		thread := bg.Thread(threadID)
		thread.Bookmarked = true
		if thread.BookmarkListPage <= 0 {
			thread.BookmarkListPage = 1
		}
		thread.StarCategory = fmt.Sprintf("bm%d", category)
		bg.Touch(thread.Key())
		return []store.Key{thread.Key()}, nil
	})
}

// MarkThreadReadUpTo moves the thread's last-read marker to the
// post's position.
func (c *Client) MarkThreadReadUpTo(ctx context.Context, threadID string, postIndex int) error {
	if threadID == "" {
		return fmt.Errorf("post needs a thread ID")
	}
	_, err := c.session.Fetch(ctx, session.MethodPost, "showthread.php", url.Values{
		"action":   {"setseen"},
		"threadid": {threadID},
		"index":    {strconv.Itoa(postIndex)},
	}, nil)
	return err
}

// MarkUnread forgets the thread's last-read marker entirely.
func (c *Client) MarkUnread(ctx context.Context, threadID string) error {
	_, err := c.session.Fetch(ctx, session.MethodPost, "showthread.php", url.Values{
		"threadid": {threadID},
		"action":   {"resetseen"},
		"json":     {"1"},
	}, nil)
	if err != nil {
		return err
	}
	return c.upsert(func(bg *store.Context) ([]store.Key, error) {
		thread := bg.Thread(threadID)
		thread.SeenPosts = 0
		bg.Touch(thread.Key())
		return []store.Key{thread.Key()}, nil
	})
}

// Rate votes on a thread. Ratings run 1 through 5; out-of-range
// values are clamped rather than rejected.
func (c *Client) Rate(ctx context.Context, threadID string, rating int) error {
	if rating < 1 {
		rating = 1
	}
	if rating > 5 {
		rating = 5
	}
	_, err := c.session.Fetch(ctx, session.MethodPost, "threadrate.php", url.Values{
		"vote":     {strconv.Itoa(rating)},
		"threadid": {threadID},
	}, nil)
	return err
}
