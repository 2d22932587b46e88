package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"forumcore/lib/forums/scrape"
	"forumcore/lib/forums/session"
	"forumcore/lib/forums/store"
)

// ThreadPage selects which page of a thread to fetch: a specific page
// number, the last page, or the page holding the first unread post.
type ThreadPage struct {
	kind   threadPageKind
	number int
}

type threadPageKind int

const (
	pageSpecific threadPageKind = iota
	pageLast
	pageNextUnread
)

func SpecificPage(n int) ThreadPage { return ThreadPage{kind: pageSpecific, number: n} }

var (
	LastPage       = ThreadPage{kind: pageLast}
	NextUnreadPage = ThreadPage{kind: pageNextUnread}
)

func (p ThreadPage) String() string {
	switch p.kind {
	case pageLast:
		return "last"
	case pageNextUnread:
		return "next-unread"
	default:
		return strconv.Itoa(p.number)
	}
}

func (p ThreadPage) apply(params url.Values) {
	switch p.kind {
	case pageNextUnread:
		params.Set("goto", "newpost")
	case pageLast:
		params.Set("goto", "lastpost")
	default:
		params.Set("pagenumber", strconv.Itoa(p.number))
	}
}

// PostsPage is what ListPosts hands back: the page's posts as store
// objects plus the transient page data that never gets persisted.
type PostsPage struct {
	Posts []*store.Post
	// FirstUnread is the 1-based index on the page of the first
	// unread post, or 0 when the server did not say.
	FirstUnread       int
	PageNumber        int
	PageCount         int
	AdvertisementHTML string
}

// rewritePerPage pins perpage=40 on every redirect hop. The server's
// goto redirects reflect the account's posts-per-page preference;
// honoring that would break the fixed 40-per-page index arithmetic
// everywhere else.
func rewritePerPage(req *http.Request, _ []*http.Request) error {
	q := req.URL.Query()
	q.Set("perpage", "40")
	req.URL.RawQuery = q.Encode()
	return nil
}

// ListPosts fetches one page of a thread. authorUserID, when
// non-empty, restricts the page to one author's posts.
// updateLastReadPost controls whether the server advances the
// last-read marker over the fetched posts.
func (c *Client) ListPosts(ctx context.Context, threadID, authorUserID string, page ThreadPage, updateLastReadPost bool) (*PostsPage, error) {
	ctx, span := tracer.Start(ctx, "client:listPosts")
	defer span.End()

	params := url.Values{
		"threadid": {threadID},
		"perpage":  {"40"},
	}
	page.apply(params)
	if !updateLastReadPost {
		params.Set("noseen", "1")
	}
	if authorUserID != "" {
		params.Set("userid", authorUserID)
	}

	parsed, err := c.fetchParsed(ctx, session.MethodGet, "showthread.php", params, rewritePerPage)
	if err != nil {
		return nil, err
	}
	result, err := scrape.ScrapePostsPage(parsed)
	if err != nil {
		return nil, err
	}
	// the markup does not reveal the filter, only the request does
	result.SingleUserFilter = authorUserID != ""
	if err := c.upsert(result.Upsert); err != nil {
		return nil, err
	}

	fg := c.bridge.Foreground()
	out := &PostsPage{
		FirstUnread:       result.FirstUnreadIndex,
		PageNumber:        result.PageNumber,
		PageCount:         result.PageCount,
		AdvertisementHTML: result.AdvertisementHTML,
	}
	for _, sp := range result.Posts {
		out.Posts = append(out.Posts, fg.Post(sp.ID))
	}
	return out, nil
}

// ReadIgnoredPost fills in the author and body of a post hidden by
// the ignore list, without unignoring anything.
func (c *Client) ReadIgnoredPost(ctx context.Context, postID string) (*store.Post, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "showthread.php", url.Values{
		"action": {"showpost"},
		"postid": {postID},
	}, nil)
	if err != nil {
		return nil, err
	}
	result, err := scrape.ScrapeShowPost(parsed)
	if err != nil {
		return nil, err
	}
	if err := c.upsert(result.Upsert); err != nil {
		return nil, err
	}
	return c.bridge.Foreground().Post(result.Post.ID), nil
}

// LocatePost resolves a post ID to the post and its page. The server
// answers a goto=post request with a redirect whose target URL names
// the thread and page; the redirect is vetoed and the answer read off
// the Location header, so the page body is never downloaded. The
// post's thread association is persisted before it is returned.
func (c *Client) LocatePost(ctx context.Context, postID string, updateLastReadPost bool) (*store.Post, ThreadPage, error) {
	ctx, span := tracer.Start(ctx, "client:locatePost")
	defer span.End()

	noseen := "1"
	if updateLastReadPost {
		noseen = "0"
	}

	policy := func(req *http.Request, _ []*http.Request) error {
		q := req.URL.Query()
		if q.Get("threadid") != "" && q.Get("pagenumber") != "" {
			return session.ErrRedirectVetoed
		}
		return nil
	}

	_, err := c.session.Fetch(ctx, session.MethodGet, "showthread.php", url.Values{
		"goto":   {"post"},
		"postid": {postID},
		"noseen": {noseen},
	}, policy)

	var vetoed *session.RedirectVetoedError
	if errors.As(err, &vetoed) {
		q := vetoed.Location.Query()
		threadID := q.Get("threadid")
		pageNumber, convErr := strconv.Atoi(q.Get("pagenumber"))
		if threadID == "" || convErr != nil {
			return nil, ThreadPage{}, fmt.Errorf("locate post %s: redirect did not name a thread and page", postID)
		}
		if err := c.upsert(func(bg *store.Context) ([]store.Key, error) {
			post := bg.Post(postID)
			post.ThreadID = threadID
			bg.Touch(post.Key())
			return []store.Key{post.Key()}, nil
		}); err != nil {
			return nil, ThreadPage{}, err
		}
		return c.bridge.Foreground().Post(postID), SpecificPage(pageNumber), nil
	}
	if err != nil {
		return nil, ThreadPage{}, err
	}
	return nil, ThreadPage{}, fmt.Errorf("locate post %s: server did not redirect", postID)
}
