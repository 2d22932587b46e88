package scrape

import (
	"forumcore/lib/forums/document"
	"forumcore/lib/forums/store"

	"github.com/PuerkitoBio/goquery"
)

// PostIconList is the set of selectable thread tag icons on a
// newthread.php or new-private-message form. Some forums offer a
// second icon group (e.g. "Ask" / "Tell"); its form field name is
// captured so a form submission can select from it.
type PostIconList struct {
	Primary            []Icon
	PrimaryFieldName   string
	Secondary          []Icon
	SecondaryFieldName string
}

// ScrapePostIconList scrapes the icon pickers out of a posting form.
func ScrapePostIconList(p document.Parsed) (*PostIconList, error) {
	result := &PostIconList{}

	primary := p.Doc.Find("div.posticon input[name], td.posticon input[name]")
	if primary.Length() == 0 {
		primary = p.Doc.Find("input[name='iconid']")
	}
	primary.Each(func(_ int, input *goquery.Selection) {
		if icon, ok := scrapePickerIcon(input); ok {
			if result.PrimaryFieldName == "" {
				result.PrimaryFieldName = input.AttrOr("name", "")
			}
			result.Primary = append(result.Primary, icon)
		}
	})

	p.Doc.Find("input[name='posticonid']").Each(func(_ int, input *goquery.Selection) {
		if icon, ok := scrapePickerIcon(input); ok {
			if result.SecondaryFieldName == "" {
				result.SecondaryFieldName = "posticonid"
			}
			result.Secondary = append(result.Secondary, icon)
		}
	})

	if len(result.Primary) == 0 {
		return nil, missing("input[name='iconid']")
	}
	return result, nil
}

// The picker renders each radio input with a sibling image for the
// tag the value refers to.
func scrapePickerIcon(input *goquery.Selection) (Icon, bool) {
	value := input.AttrOr("value", "")
	if value == "" || value == "0" {
		return Icon{}, false
	}
	icon := Icon{ID: value}
	if src, ok := input.Parent().Find("img").Attr("src"); ok {
		icon.URL = src
	}
	return icon, true
}

// Upsert stores every offered icon as a thread tag.
func (r *PostIconList) Upsert(c *store.Context) ([]store.Key, error) {
	var keys []store.Key
	for _, icon := range append(append([]Icon{}, r.Primary...), r.Secondary...) {
		tag := c.ThreadTag(icon.ID)
		if icon.URL != "" {
			tag.ImageURL = icon.URL
			tag.ImageName = imageName(icon.URL)
		}
		c.Touch(tag.Key())
		keys = append(keys, tag.Key())
	}
	return keys, nil
}
