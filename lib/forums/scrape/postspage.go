package scrape

import (
	"strings"

	"forumcore/lib/forums/document"
	"forumcore/lib/forums/store"
	"forumcore/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// PostsPage is a scraped showthread.php page: up to 40 posts plus the
// thread context around them. FirstUnreadIndex only exists when the
// server redirected a goto=newpost request; the index lives in the
// final URL's fragment and nowhere in the markup, so it has to be
// captured here before the URL is discarded.
type PostsPage struct {
	ThreadID          string
	ThreadTitle       string
	ThreadClosed      bool
	ForumID           string
	PageNumber        int
	PageCount         int
	Posts             []ScrapedPost
	FirstUnreadIndex  int // 1-based on the page, 0 when absent
	AdvertisementHTML string
	// SingleUserFilter marks a page fetched filtered to one author.
	// The markup looks the same either way, so the caller sets this;
	// filtered pages carry author-relative indices that must be kept
	// away from the real thread indices.
	SingleUserFilter bool
}

// ScrapedPost is one post table on a posts page.
type ScrapedPost struct {
	ID             string
	ThreadIndex    int
	Author         Author
	BodyHTML       string
	PostedAtRaw    string
	Seen           bool
	Editable       bool
	Ignored        bool
	OriginalPoster bool
	CanReceivePMs  bool
}

// Author is the sidebar of user info that appears alongside posts,
// private messages, and profiles.
type Author struct {
	UserID          string
	Username        string
	Moderator       bool
	Administrator   bool
	RegDateRaw      string
	CustomTitleHTML string
}

func scrapeAuthor(sel *goquery.Selection) (Author, error) {
	a := Author{}

	if link := sel.Find("ul.profilelinks a[href*='userid']").First(); link.Length() > 0 {
		a.UserID = userIDFromHref(link)
	}
	if a.UserID == "" {
		// td.userinfo carries a userid-<N> class on posts pages
		for _, class := range strings.Fields(sel.Find("td.userinfo").AttrOr("class", "")) {
			if strings.HasPrefix(class, "userid-") {
				a.UserID = strings.TrimPrefix(class, "userid-")
				break
			}
		}
	}
	if a.UserID == "" {
		if value, ok := sel.Find("input[name='userid']").Attr("value"); ok {
			a.UserID = value
		}
	}

	authorTerm := sel.Find("dt.author").First()
	a.Username = htmlutil.TrimmedText(authorTerm)

	if a.UserID == "" && a.Username == "" {
		return a, missing("dt.author or userid")
	}

	classes := authorTerm.AttrOr("class", "")
	a.Administrator = strings.Contains(classes, "role-admin")
	a.Moderator = strings.Contains(classes, "role-mod")

	a.RegDateRaw = htmlutil.TrimmedText(sel.Find("dd.registered").First())
	a.CustomTitleHTML = innerHTML(sel.Find("dl.userinfo dd.title").First())
	return a, nil
}

// ScrapePostsPage scrapes a page of posts in a thread.
func ScrapePostsPage(p document.Parsed) (*PostsPage, error) {
	body := p.Doc.Find("body").First()
	if body.Length() == 0 {
		return nil, missing("body")
	}

	result := &PostsPage{
		ThreadID: body.AttrOr("data-thread", ""),
		ForumID:  body.AttrOr("data-forum", ""),
	}
	if result.ThreadID == "" {
		if href, ok := body.Find("div.breadcrumbs a[href*='threadid']").Attr("href"); ok {
			result.ThreadID = htmlutil.QueryValue(href, "threadid")
		}
	}
	if result.ThreadID == "" && p.URL != nil {
		result.ThreadID = p.URL.Query().Get("threadid")
	}
	if result.ThreadID == "" {
		return nil, missing("body[data-thread]")
	}

	result.ThreadTitle = htmlutil.TrimmedText(body.Find("div.breadcrumbs a.bclast").First())
	result.ThreadClosed = body.Find("ul.postbuttons a[href*='newreply']").Length() == 0 &&
		body.Find("img[src*='closed']").Length() > 0

	pages := body.Find("div.pages option")
	result.PageCount = pages.Length()
	if selected := pages.Filter("[selected]"); selected.Length() > 0 {
		result.PageNumber = parseInt(selected.AttrOr("value", ""))
	}
	if result.PageNumber == 0 && p.URL != nil {
		result.PageNumber = parseInt(p.URL.Query().Get("pagenumber"))
	}
	if result.PageNumber == 0 {
		result.PageNumber = 1
	}
	if result.PageCount == 0 {
		result.PageCount = 1
	}

	result.AdvertisementHTML = innerHTML(body.Find("div#ad_banner_user").First())

	var scrapeErr error
	body.Find("table.post").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		post, err := scrapePost(table)
		if err != nil {
			scrapeErr = err
			return false
		}
		result.Posts = append(result.Posts, post)
		return true
	})
	if scrapeErr != nil {
		return nil, scrapeErr
	}

	if p.URL != nil {
		if frag := p.URL.Fragment; strings.HasPrefix(frag, "pti") {
			result.FirstUnreadIndex = parseInt(strings.TrimPrefix(frag, "pti"))
		}
	}

	return result, nil
}

func scrapePost(table *goquery.Selection) (ScrapedPost, error) {
	post := ScrapedPost{}

	post.ID = firstDigits(table.AttrOr("id", ""))
	if post.ID == "" {
		return post, missing("table.post[id]")
	}

	author, err := scrapeAuthor(table)
	if err != nil {
		return post, err
	}
	post.Author = author

	post.ThreadIndex = parseInt(table.AttrOr("data-idx", ""))

	body := table.Find("div.complete_shit").First()
	if body.Length() == 0 {
		body = table.Find("td.postbody").First()
	}
	post.BodyHTML = innerHTML(body)

	post.Seen = table.Find("tr.seen1, tr.seen2").Length() > 0
	post.Editable = table.Find("ul.postbuttons a[href*='editpost.php']").Length() > 0
	post.Ignored = table.HasClass("ignored")
	post.OriginalPoster = table.Find("dt.author.op").Length() > 0
	post.CanReceivePMs = table.Find("ul.profilelinks a[href*='private.php']").Length() > 0

	postDateCell := table.Find("td.postdate").First()
	if postDateCell.Length() > 0 {
		// the date is the trailing text node after the seen markers
		if nodes := postDateCell.Contents().Nodes; len(nodes) > 0 {
			post.PostedAtRaw = htmlutil.CleanText(htmlutil.GetText(nodes[len(nodes)-1]))
		}
	}

	return post, nil
}

// Upsert merges the page's posts and their authors into the context.
func (r *PostsPage) Upsert(c *store.Context) ([]store.Key, error) {
	var keys []store.Key

	thread := c.Thread(r.ThreadID)
	if r.ThreadTitle != "" {
		thread.Title = r.ThreadTitle
	}
	if r.ForumID != "" {
		thread.ForumID = r.ForumID
	}

	indices := r.threadIndices()
	posts := make([]*store.Post, len(r.Posts))
	for i, sp := range r.Posts {
		post, postKeys := upsertPost(c, r.ThreadID, sp, indices[i], r.SingleUserFilter)
		posts[i] = post
		keys = append(keys, postKeys...)
	}

	// the first unseen post moves the thread's seen high-water mark,
	// but never off a filtered page: its posts skip most of the thread
	if !r.SingleUserFilter {
		for _, post := range posts {
			if post.Seen {
				continue
			}
			if post.ThreadIndex > 0 {
				thread.SeenPosts = post.ThreadIndex - 1
			}
			break
		}
	}

	c.Touch(thread.Key())
	keys = append(keys, thread.Key())
	return keys, nil
}

// threadIndices fills in an index for every post on the page. Ignored
// posts come without data-idx, so missing indices are interpolated
// from the first post that has one, falling back to page arithmetic
// when none do.
func (r *PostsPage) threadIndices() []int {
	indices := make([]int, len(r.Posts))
	anchor := -1
	for i, sp := range r.Posts {
		if sp.ThreadIndex > 0 {
			anchor = i
			break
		}
	}
	switch {
	case anchor >= 0:
		base := r.Posts[anchor].ThreadIndex - anchor
		for i := range indices {
			indices[i] = base + i
		}
	case r.PageNumber > 0:
		start := (r.PageNumber-1)*store.PostsPerPage + 1
		for i := range indices {
			indices[i] = start + i
		}
	}
	return indices
}

func upsertPost(c *store.Context, threadID string, sp ScrapedPost, index int, filtered bool) (*store.Post, []store.Key) {
	var keys []store.Key

	post := c.Post(sp.ID)
	post.ThreadID = threadID
	if index > 0 {
		if filtered {
			post.FilteredThreadIndex = index
		} else {
			post.ThreadIndex = index
		}
	}
	post.InnerHTML = sp.BodyHTML
	post.PostedAtRaw = sp.PostedAtRaw
	post.PostedAt = parseDate(sp.PostedAtRaw)
	post.Seen = sp.Seen
	post.Editable = sp.Editable
	post.Ignored = sp.Ignored

	if sp.Author.UserID != "" {
		user := c.User(sp.Author.UserID)
		applyAuthor(user, sp.Author)
		user.CanReceivePMs = sp.CanReceivePMs
		c.Touch(user.Key())
		keys = append(keys, user.Key())
		post.AuthorUserID = sp.Author.UserID
	}

	c.Touch(post.Key())
	return post, append(keys, post.Key())
}

func applyAuthor(user *store.User, a Author) {
	if a.Username != "" {
		user.Username = a.Username
	}
	user.Moderator = a.Moderator
	user.Administrator = a.Administrator
	if a.RegDateRaw != "" {
		user.RegDateRaw = a.RegDateRaw
		user.RegDate = parseDate(a.RegDateRaw)
	}
	if a.CustomTitleHTML != "" {
		user.CustomTitleHTML = a.CustomTitleHTML
	}
}

// ShowPost is a single post fetched via action=showpost, used to
// reveal the contents of an ignored post on demand.
type ShowPost struct {
	Post ScrapedPost
	// ThreadID is empty when the page does not reveal it.
	ThreadID string
}

// ScrapeShowPost scrapes an action=showpost response, which contains
// exactly one post table.
func ScrapeShowPost(p document.Parsed) (*ShowPost, error) {
	table := p.Doc.Find("table.post").First()
	if table.Length() == 0 {
		return nil, missing("table.post")
	}
	post, err := scrapePost(table)
	if err != nil {
		return nil, err
	}
	result := &ShowPost{Post: post}
	result.ThreadID = p.Doc.Find("body").AttrOr("data-thread", "")
	return result, nil
}

// Upsert fills the ignored post's body and author. The ignored flag
// stays set; reading a post once does not unignore its author.
func (r *ShowPost) Upsert(c *store.Context) ([]store.Key, error) {
	post := c.Post(r.Post.ID)
	threadID := post.ThreadID
	if threadID == "" {
		threadID = r.ThreadID
	}
	sp := r.Post
	sp.Ignored = true
	_, keys := upsertPost(c, threadID, sp, sp.ThreadIndex, false)
	return keys, nil
}
