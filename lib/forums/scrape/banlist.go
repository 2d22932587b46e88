package scrape

import (
	"strings"
	"time"

	"forumcore/lib/forums/document"
	"forumcore/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Sentence is the kind of punishment a ban list row records.
type Sentence int

const (
	SentenceProbation Sentence = iota
	SentenceBan
	SentenceAutoban
	SentencePermaban
)

func (s Sentence) IsBan() bool { return s != SentenceProbation }

func (s Sentence) String() string {
	switch s {
	case SentenceProbation:
		return "probation"
	case SentenceBan:
		return "ban"
	case SentenceAutoban:
		return "autoban"
	case SentencePermaban:
		return "permaban"
	}
	return "unknown"
}

// Punishment is one row of the banlist.php table. Punishments are
// value objects; they are displayed, never persisted.
type Punishment struct {
	Sentence          Sentence
	PostID            string
	Date              time.Time
	SubjectUserID     string
	SubjectUsername   string
	ReasonHTML        string
	RequesterUserID   string
	RequesterUsername string
	ApproverUserID    string
	ApproverUsername  string
}

// BanList is a scraped banlist.php page.
type BanList struct {
	Punishments []Punishment
}

// ScrapeBanList scrapes the rap sheet table.
func ScrapeBanList(p document.Parsed) (*BanList, error) {
	table := p.Doc.Find("table.standard").First()
	if table.Length() == 0 {
		return nil, missing("table.standard")
	}
	result := &BanList{}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if punishment, ok := scrapePunishment(row); ok {
			result.Punishments = append(result.Punishments, punishment)
		}
	})
	return result, nil
}

func scrapePunishment(row *goquery.Selection) (Punishment, bool) {
	cells := row.Find("td")
	if cells.Length() < 6 {
		return Punishment{}, false
	}

	typeCell := cells.Eq(0)
	sentence, ok := parseSentence(typeCell.Text())
	if !ok {
		return Punishment{}, false
	}
	p := Punishment{Sentence: sentence}

	if href, found := typeCell.Find("a[href]").Attr("href"); found {
		p.PostID = htmlutil.QueryValue(href, "postid")
	}
	p.Date = parseDate(cells.Eq(1).Text())

	subjectLink := cells.Eq(2).Find("a").First()
	p.SubjectUserID = userIDFromHref(subjectLink)
	p.SubjectUsername = htmlutil.TrimmedText(subjectLink)

	p.ReasonHTML = innerHTML(cells.Eq(3))

	requesterLink := cells.Eq(4).Find("a").First()
	p.RequesterUserID = userIDFromHref(requesterLink)
	p.RequesterUsername = htmlutil.TrimmedText(requesterLink)

	approverLink := cells.Eq(5).Find("a").First()
	p.ApproverUserID = userIDFromHref(approverLink)
	p.ApproverUsername = htmlutil.TrimmedText(approverLink)

	return p, true
}

func parseSentence(text string) (Sentence, bool) {
	switch {
	case strings.Contains(text, "PROBATION"):
		return SentenceProbation, true
	case strings.Contains(text, "AUTOBAN"):
		return SentenceAutoban, true
	case strings.Contains(text, "PERMABAN"):
		return SentencePermaban, true
	case strings.Contains(text, "BAN"):
		return SentenceBan, true
	}
	return 0, false
}
