package scrape

import (
	"strings"

	"forumcore/lib/forums/document"
	"forumcore/lib/forums/store"
	"forumcore/lib/htmlutil"
)

// Profile is a scraped member.php?action=getinfo page.
type Profile struct {
	Author        Author
	CanReceivePMs bool
	AboutHTML     string
	Location      string
	Interests     string
	Occupation    string
	PostCount     int
	PostRate      string
	LastPostRaw   string
}

// ScrapeProfile scrapes a user profile page.
func ScrapeProfile(p document.Parsed) (*Profile, error) {
	root := p.Doc.Selection
	author, err := scrapeAuthor(root.Find("body").First())
	if err != nil {
		return nil, err
	}
	result := &Profile{Author: author}

	result.CanReceivePMs = root.Find("dl.contacts dt.pm + dd a").Length() > 0

	infoCell := root.Find("td.info").First()
	result.AboutHTML = innerHTML(infoCell.Find("p").Eq(1))

	additional := root.Find("dl.additional").First()
	if additional.Length() > 0 {
		result.PostCount = parseInt(firstDigits(additional.Find("dd").Eq(1).Text()))
		result.PostRate = htmlutil.TrimmedText(additional.Find("dd").Eq(2))
		result.LastPostRaw = htmlutil.TrimmedText(additional.Find("dd").Eq(3))

		// trailing dt/dd pairs are a free-form attribute list
		labels := additional.Find("dt")
		values := additional.Find("dd")
		for i := 0; i < labels.Length() && i < values.Length(); i++ {
			switch strings.TrimSpace(labels.Eq(i).Text()) {
			case "Location":
				result.Location = htmlutil.TrimmedText(values.Eq(i))
			case "Interests":
				result.Interests = htmlutil.TrimmedText(values.Eq(i))
			case "Occupation":
				result.Occupation = htmlutil.TrimmedText(values.Eq(i))
			}
		}
	}

	return result, nil
}

// Upsert merges the profile into its user record.
func (r *Profile) Upsert(c *store.Context) ([]store.Key, error) {
	if r.Author.UserID == "" {
		return nil, missing("profile userid")
	}
	user := c.User(r.Author.UserID)
	applyAuthor(user, r.Author)
	user.CanReceivePMs = r.CanReceivePMs
	if r.AboutHTML != "" {
		user.AboutHTML = r.AboutHTML
	}
	user.Location = r.Location
	user.Interests = r.Interests
	user.Occupation = r.Occupation
	if r.PostCount > 0 {
		user.PostCount = r.PostCount
	}
	if r.PostRate != "" {
		user.PostRate = r.PostRate
	}
	if r.LastPostRaw != "" {
		user.LastPost = parseDate(r.LastPostRaw)
	}
	c.Touch(user.Key())
	return []store.Key{user.Key()}, nil
}
