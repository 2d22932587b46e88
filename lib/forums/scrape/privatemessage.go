package scrape

import (
	"strings"

	"forumcore/lib/forums/document"
	"forumcore/lib/forums/store"
	"forumcore/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// MessageFolder is a scraped private.php folder listing.
type MessageFolder struct {
	FolderID   string
	FolderName string
	// Truncated is set when the server only rendered the last fifty
	// messages of the folder.
	Truncated bool
	Messages  []ListedMessage
}

type ListedMessage struct {
	ID             string
	Subject        string
	SenderUsername string
	SentDateRaw    string
	Seen           bool
	Replied        bool
	Forwarded      bool
	IconURL        string
}

// ScrapeMessageFolder scrapes a private message folder page.
func ScrapeMessageFolder(p document.Parsed) (*MessageFolder, error) {
	root := p.Doc.Selection

	result := &MessageFolder{}
	dropdown := root.Find("select[name='folderid']").First()
	if selected := dropdown.Find("option[selected][value]"); selected.Length() > 0 {
		result.FolderID = selected.AttrOr("value", "")
		result.FolderName = htmlutil.TrimmedText(selected)
	}
	result.Truncated = root.Find("div.pmwarn a[href*='showall']").Length() > 0

	table := root.Find("table.standard").First()
	if table.Length() == 0 {
		return nil, missing("table.standard")
	}
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		if m, ok := scrapeListedMessage(row); ok {
			result.Messages = append(result.Messages, m)
		}
	})
	return result, nil
}

func scrapeListedMessage(row *goquery.Selection) (ListedMessage, bool) {
	subjectLink := row.Find("td.title a[href]").First()
	href, ok := subjectLink.Attr("href")
	if !ok {
		return ListedMessage{}, false
	}
	m := ListedMessage{
		ID:             htmlutil.QueryValue(href, "privatemessageid"),
		Subject:        htmlutil.TrimmedText(subjectLink),
		SenderUsername: htmlutil.TrimmedText(row.Find("td.sender").First()),
		SentDateRaw:    htmlutil.TrimmedText(row.Find("td.date").First()),
	}
	if m.ID == "" {
		return ListedMessage{}, false
	}
	if src, ok := row.Find("td.icon img").Attr("src"); ok {
		m.IconURL = src
	}
	status := row.Find("td.status img[src]").AttrOr("src", "")
	m.Seen = !strings.Contains(status, "newpm")
	m.Forwarded = strings.Contains(status, "forwarded")
	m.Replied = strings.Contains(status, "replied")
	return m, true
}

// Upsert merges the folder's messages.
func (r *MessageFolder) Upsert(c *store.Context) ([]store.Key, error) {
	var keys []store.Key
	for _, lm := range r.Messages {
		msg := c.Message(lm.ID)
		msg.Subject = lm.Subject
		msg.SentAtRaw = lm.SentDateRaw
		msg.SentAt = parseDate(lm.SentDateRaw)
		msg.Seen = lm.Seen
		msg.Replied = lm.Replied
		msg.Forwarded = lm.Forwarded
		if lm.IconURL != "" {
			msg.TagID = imageName(lm.IconURL)
		}
		if lm.SenderUsername != "" {
			if sender, ok := c.UserByName(lm.SenderUsername); ok {
				msg.SenderUserID = sender.ID
			}
		}
		c.Touch(msg.Key())
		keys = append(keys, msg.Key())
	}
	return keys, nil
}

// Message is a single scraped private message (action=show).
type Message struct {
	ID          string
	Subject     string
	Author      Author
	BodyHTML    string
	SentDateRaw string
	Seen        bool
	Replied     bool
	Forwarded   bool
}

// ScrapeMessage scrapes a single private message page. The message ID
// comes off the reply button's link; the page shows it nowhere else.
func ScrapeMessage(p document.Parsed) (*Message, error) {
	root := p.Doc.Selection

	replyLink := root.Find("div.buttons a[href*='privatemessageid']").First()
	href, ok := replyLink.Attr("href")
	if !ok {
		return nil, missing("div.buttons a[href*='privatemessageid']")
	}
	result := &Message{ID: htmlutil.QueryValue(href, "privatemessageid")}
	if result.ID == "" {
		return nil, missing("privatemessageid")
	}

	if author, err := scrapeAuthor(root.Find("body").First()); err == nil {
		result.Author = author
	}

	// breadcrumbs read "Private Message Folders > Inbox > Subject"
	if crumbs := htmlutil.TrimmedText(root.Find("div.breadcrumbs b").First()); crumbs != "" {
		parts := strings.Split(crumbs, " > ")
		result.Subject = strings.TrimSpace(parts[len(parts)-1])
	}

	postDateCell := root.Find("td.postdate").First()
	status := postDateCell.Find("img[src]").AttrOr("src", "")
	result.Seen = status != "" && !strings.Contains(status, "newpm")
	result.Forwarded = strings.Contains(status, "forwarded")
	result.Replied = strings.Contains(status, "replied")
	if nodes := postDateCell.Contents().Nodes; len(nodes) > 0 {
		result.SentDateRaw = htmlutil.CleanText(htmlutil.GetText(nodes[len(nodes)-1]))
	}

	result.BodyHTML = innerHTML(root.Find("td.postbody").First())
	return result, nil
}

// Upsert merges the message, marking it seen: fetching a message is
// what marks it read server-side.
func (r *Message) Upsert(c *store.Context) ([]store.Key, error) {
	var keys []store.Key

	msg := c.Message(r.ID)
	if r.Subject != "" {
		msg.Subject = r.Subject
	}
	msg.InnerHTML = r.BodyHTML
	if r.SentDateRaw != "" {
		msg.SentAtRaw = r.SentDateRaw
		msg.SentAt = parseDate(r.SentDateRaw)
	}
	msg.Seen = true
	msg.Replied = r.Replied
	msg.Forwarded = r.Forwarded

	if r.Author.UserID != "" {
		sender := c.User(r.Author.UserID)
		applyAuthor(sender, r.Author)
		c.Touch(sender.Key())
		keys = append(keys, sender.Key())
		msg.SenderUserID = r.Author.UserID
	}

	c.Touch(msg.Key())
	return append(keys, msg.Key()), nil
}
