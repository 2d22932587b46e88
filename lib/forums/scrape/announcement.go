package scrape

import (
	"strconv"

	"forumcore/lib/forums/document"
	"forumcore/lib/forums/store"
	"forumcore/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// AnnouncementList is a scraped announcement.php page: the full body
// of every active announcement, in the order thread lists show them.
type AnnouncementList struct {
	Announcements []ScrapedAnnouncement
}

type ScrapedAnnouncement struct {
	Author   Author
	BodyHTML string
	DateRaw  string
}

// ScrapeAnnouncementList scrapes the announcement page. Announcements
// render like posts, one table per announcement.
func ScrapeAnnouncementList(p document.Parsed) (*AnnouncementList, error) {
	result := &AnnouncementList{}
	var scrapeErr error
	p.Doc.Find("table.post").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		a := ScrapedAnnouncement{}
		// the sidebar shows a username but never a user ID
		if author, err := scrapeAuthor(table); err == nil {
			a.Author = author
		}
		a.BodyHTML = innerHTML(table.Find("td.postbody").First())
		if a.BodyHTML == "" {
			scrapeErr = missing("td.postbody")
			return false
		}
		if cell := table.Find("td.postdate").First(); cell.Length() > 0 {
			if nodes := cell.Contents().Nodes; len(nodes) > 0 {
				a.DateRaw = htmlutil.CleanText(htmlutil.GetText(nodes[len(nodes)-1]))
			}
		}
		result.Announcements = append(result.Announcements, a)
		return true
	})
	if scrapeErr != nil {
		return nil, scrapeErr
	}
	return result, nil
}

// Upsert fills bodies into announcements already cached from a thread
// list, matching by list position. Announcements carry no IDs, so
// going in list order and hoping for the best is all there is.
func (r *AnnouncementList) Upsert(c *store.Context) ([]store.Key, error) {
	existing, err := c.Announcements()
	if err != nil {
		return nil, err
	}

	var keys []store.Key
	for i, ann := range existing {
		if i >= len(r.Announcements) {
			break
		}
		sa := r.Announcements[i]
		ann.BodyHTML = sa.BodyHTML
		if sa.Author.Username != "" {
			ann.AuthorUsername = sa.Author.Username
		}
		if sa.DateRaw != "" {
			ann.PostedAtRaw = sa.DateRaw
			ann.PostedAt = parseDate(sa.DateRaw)
		}
		key := store.Key{Kind: store.KindAnnouncement, ID: strconv.Itoa(ann.ListIndex)}
		c.Touch(key)
		keys = append(keys, key)
	}
	return keys, nil
}
