package scrape

import (
	"strconv"
	"strings"

	"forumcore/lib/forums/document"
	"forumcore/lib/forums/store"
	"forumcore/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ThreadList is a scraped forumdisplay.php or bookmarkthreads.php
// page: the thread rows, any announcements pinned above them, and the
// filterable tag icons offered by the forum.
type ThreadList struct {
	ForumID          string
	IsBookmarksPage  bool
	CanPostNewThread bool
	PageNumber       int
	Announcements    []ListedAnnouncement
	Threads          []ListedThread
	FilterableIcons  []Icon

	scrapedThreadIDs map[string]bool
}

type ListedAnnouncement struct {
	Title          string
	AuthorUserID   string
	AuthorUsername string
	LastUpdated    string
	IconURL        string
}

type ListedThread struct {
	ID              string
	Title           string
	AuthorUserID    string
	AuthorUsername  string
	Closed          bool
	Sticky          bool
	Bookmarked      bool
	StarCategory    string
	Unread          bool
	UnreadPostCount int
	ReplyCount      int
	RatingAverage   float64
	RatingCount     int
	Icon            *Icon
	SecondaryIcon   *Icon
	LastPostAuthor  string
	LastPostDateRaw string
}

// Icon is a thread tag image plus the identifier the forum filters by.
type Icon struct {
	ID  string
	URL string
}

// The star cell carries one class per bookmark color, all prefixed
// "bm". New colors appear over time so any bm-prefixed class counts
// as bookmarked.
func starCategory(classes string) (string, bool) {
	for _, c := range strings.Fields(classes) {
		if strings.HasPrefix(c, "bm") {
			if _, err := strconv.Atoi(c[2:]); err == nil {
				return c, true
			}
		}
	}
	return "", false
}

func scrapeIcon(sel *goquery.Selection) *Icon {
	img := sel.Find("img").First()
	src, ok := img.Attr("src")
	if !ok {
		return nil
	}
	icon := &Icon{URL: src}
	if href, ok := sel.Attr("href"); ok && strings.Contains(href, "posticon") {
		icon.ID = htmlutil.QueryValue(href, "posticon")
	} else if href, ok := sel.Find("a[href*='posticon']").Attr("href"); ok {
		icon.ID = htmlutil.QueryValue(href, "posticon")
	}
	if icon.ID == "" {
		// fall back to the image basename, which is stable per tag
		parts := strings.Split(src, "/")
		name := parts[len(parts)-1]
		icon.ID = strings.TrimSuffix(name, ".gif")
	}
	return icon
}

// ScrapeThreadList scrapes a thread listing page.
func ScrapeThreadList(p document.Parsed) (*ThreadList, error) {
	body := p.Doc.Find("body").First()
	if body.Length() == 0 {
		return nil, missing("body")
	}

	result := &ThreadList{
		ForumID:          body.AttrOr("data-forum", ""),
		IsBookmarksPage:  body.Find("form[name='bookmarks']").Length() > 0,
		CanPostNewThread: body.Find("ul.postbuttons a[href*='newthread']").Length() > 0,
		scrapedThreadIDs: map[string]bool{},
	}

	if p.URL != nil {
		if n := parseInt(p.URL.Query().Get("pagenumber")); n > 0 {
			result.PageNumber = n
		}
	}
	if result.PageNumber == 0 {
		result.PageNumber = 1
	}

	body.Find("div.thread_tags a[href*='posticon']").Each(func(_ int, a *goquery.Selection) {
		if icon := scrapeIcon(a); icon != nil {
			result.FilterableIcons = append(result.FilterableIcons, *icon)
		}
	})

	body.Find("tr.thread").Each(func(_ int, row *goquery.Selection) {
		if row.Find("td.title a.announcement").Length() > 0 {
			if a, ok := scrapeListedAnnouncement(row); ok {
				result.Announcements = append(result.Announcements, a)
			}
			return
		}
		if t, ok := scrapeListedThread(row); ok {
			result.Threads = append(result.Threads, t)
			result.scrapedThreadIDs[t.ID] = true
		}
	})

	return result, nil
}

func scrapeListedAnnouncement(row *goquery.Selection) (ListedAnnouncement, bool) {
	a := ListedAnnouncement{}
	authorLink := row.Find("td.author a[href]").First()
	a.AuthorUserID = userIDFromHref(authorLink)
	a.AuthorUsername = htmlutil.TrimmedText(authorLink)
	a.Title = htmlutil.TrimmedText(row.Find("td.title a").First())
	a.LastUpdated = htmlutil.TrimmedText(row.Find("td.lastpost").First())
	if src, ok := row.Find("td.icon img").Attr("src"); ok {
		a.IconURL = src
	}
	return a, a.Title != ""
}

func scrapeListedThread(row *goquery.Selection) (ListedThread, bool) {
	id := firstDigits(row.AttrOr("id", ""))
	if id == "" {
		return ListedThread{}, false
	}
	t := ListedThread{ID: id}

	authorLink := row.Find("td.author a").First()
	t.AuthorUserID = userIDFromHref(authorLink)
	t.AuthorUsername = htmlutil.TrimmedText(authorLink)

	t.Closed = row.HasClass("closed")

	titleCell := row.Find("td.title").First()
	t.Sticky = titleCell.HasClass("title_sticky")
	t.Title = htmlutil.TrimmedText(titleCell.Find("a.thread_title").First())

	if category, ok := starCategory(row.Find("td.star").AttrOr("class", "")); ok {
		t.Bookmarked = true
		t.StarCategory = category
	}

	lastSeen := titleCell.Find("div.lastseen").First()
	t.Unread = lastSeen.Length() > 0 && lastSeen.Find("a.x").Length() == 0
	t.UnreadPostCount = parseInt(lastSeen.Find("a.count b").Text())

	repliesCell := row.Find("td.replies").First()
	if link := repliesCell.Find("a").First(); link.Length() > 0 {
		t.ReplyCount = parseInt(link.Text())
	} else {
		t.ReplyCount = parseInt(repliesCell.Text())
	}

	ratingCell := row.Find("td.rating").First()
	if title, ok := ratingCell.Find("img[title]").Attr("title"); ok {
		t.RatingCount, t.RatingAverage = parseRatingTitle(title)
	}

	if iconCell := row.Find("td.icon").First(); iconCell.Length() > 0 {
		t.Icon = scrapeIcon(iconCell)
	}
	if t.Icon == nil {
		if img := ratingCell.Find("img[src*='/rate/reviews']"); img.Length() > 0 {
			t.Icon = scrapeIcon(ratingCell)
		}
	}
	if secondary := row.Find("td.icon2").First(); secondary.Length() > 0 {
		t.SecondaryIcon = scrapeIcon(secondary)
	}

	lastPostCell := row.Find("td.lastpost").First()
	t.LastPostAuthor = htmlutil.TrimmedText(lastPostCell.Find("a.author").First())
	t.LastPostDateRaw = htmlutil.TrimmedText(lastPostCell.Find("div.date").First())

	return t, true
}

// Rating tooltips read like "102 votes - 4.55 average".
func parseRatingTitle(title string) (count int, average float64) {
	for _, f := range strings.Fields(title) {
		if n, err := strconv.Atoi(f); err == nil && count == 0 {
			count = n
			continue
		}
		if avg, err := strconv.ParseFloat(f, 64); err == nil {
			average = avg
			break
		}
	}
	return count, average
}

// Upsert merges the listing into the context. When this is page 1 of
// a forum listing, previously-cached threads of the same forum that
// are absent from the fresh page have their list-page marker reset to
// zero; the threads themselves stay. Bookmark listings sweep the
// bookmark-list marker the same way for pages at or past this one.
func (r *ThreadList) Upsert(c *store.Context) ([]store.Key, error) {
	var keys []store.Key

	for _, icon := range r.FilterableIcons {
		tag := c.ThreadTag(icon.ID)
		tag.ImageURL = icon.URL
		tag.ImageName = imageName(icon.URL)
		c.Touch(tag.Key())
		keys = append(keys, tag.Key())
	}

	if r.ForumID != "" {
		forum := c.Forum(r.ForumID)
		forum.CanPost = r.CanPostNewThread
		c.Touch(forum.Key())
		keys = append(keys, forum.Key())
	}

	for i, a := range r.Announcements {
		ann := c.Announcement(i)
		ann.Title = a.Title
		ann.AuthorUsername = a.AuthorUsername
		ann.PostedAtRaw = a.LastUpdated
		ann.PostedAt = parseDate(a.LastUpdated)
		key := store.Key{Kind: store.KindAnnouncement, ID: strconv.Itoa(i)}
		c.Touch(key)
		keys = append(keys, key)
	}

	for _, lt := range r.Threads {
		thread := c.Thread(lt.ID)
		thread.Title = lt.Title
		thread.Closed = lt.Closed
		thread.Sticky = lt.Sticky
		thread.ReplyCount = lt.ReplyCount
		thread.RatingAverage = lt.RatingAverage
		thread.RatingCount = lt.RatingCount
		thread.LastPostAuthor = lt.LastPostAuthor
		thread.LastPostDate = parseDate(lt.LastPostDateRaw)
		if lt.Unread {
			thread.UnreadPosts = lt.UnreadPostCount
		} else {
			thread.UnreadPosts = 0
		}
		if lt.Icon != nil {
			thread.TagID = lt.Icon.ID
		}
		if lt.SecondaryIcon != nil {
			thread.SecondaryTagID = lt.SecondaryIcon.ID
		}

		if r.IsBookmarksPage {
			thread.Bookmarked = true
			thread.BookmarkListPage = r.PageNumber
			if lt.StarCategory != "" {
				thread.StarCategory = lt.StarCategory
			}
		} else {
			thread.ThreadListPage = r.PageNumber
			if r.ForumID != "" {
				thread.ForumID = r.ForumID
			}
			thread.Bookmarked = lt.Bookmarked
			thread.StarCategory = lt.StarCategory
		}

		if lt.AuthorUserID != "" {
			author := c.User(lt.AuthorUserID)
			author.Username = lt.AuthorUsername
			c.Touch(author.Key())
			keys = append(keys, author.Key())
			thread.AuthorUserID = lt.AuthorUserID
		}

		c.Touch(thread.Key())
		keys = append(keys, thread.Key())
	}

	swept, err := r.sweepStale(c)
	if err != nil {
		return nil, err
	}
	keys = append(keys, swept...)

	return keys, nil
}

// sweepStale clears the list-page marker of cached threads that fell
// off the freshly-scraped listing. Forum listings only sweep on page
// 1; page 1 is treated as authoritative for what is still active.
func (r *ThreadList) sweepStale(c *store.Context) ([]store.Key, error) {
	var keys []store.Key

	if r.IsBookmarksPage {
		cached, err := c.BookmarkedThreads(r.PageNumber)
		if err != nil {
			return nil, err
		}
		for _, t := range cached {
			if !r.scrapedThreadIDs[t.ID] {
				t.BookmarkListPage = 0
				c.Touch(t.Key())
				keys = append(keys, t.Key())
			}
		}
		return keys, nil
	}

	if r.PageNumber != 1 || r.ForumID == "" {
		return nil, nil
	}
	cached, err := c.ThreadsInForum(r.ForumID)
	if err != nil {
		return nil, err
	}
	for _, t := range cached {
		if t.ThreadListPage > 0 && !r.scrapedThreadIDs[t.ID] {
			t.ThreadListPage = 0
			c.Touch(t.Key())
			keys = append(keys, t.Key())
		}
	}
	return keys, nil
}

func imageName(imageURL string) string {
	parts := strings.Split(imageURL, "/")
	name := parts[len(parts)-1]
	if dot := strings.LastIndex(name, "."); dot > 0 {
		name = name[:dot]
	}
	return name
}
