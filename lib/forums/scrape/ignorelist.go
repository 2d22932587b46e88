package scrape

import (
	"fmt"
	"strings"

	"forumcore/lib/forums/document"
)

// IgnoreListForm wraps the member2.php?action=viewlist&userlist=ignore
// form. The username list can be edited and the whole form
// re-submitted; everything else round-trips untouched.
type IgnoreListForm struct {
	form      *Form
	Usernames []string
}

// ScrapeIgnoreListForm scrapes the ignore list editing form.
func ScrapeIgnoreListForm(p document.Parsed) (*IgnoreListForm, error) {
	el := p.Doc.Find("form[action='member2.php']").First()
	if el.Length() == 0 {
		return nil, missing("form[action='member2.php']")
	}
	form, err := ParseForm(el, p.URL)
	if err != nil {
		return nil, err
	}

	listed, ok := form.TextValue("userlist")
	if !ok || listed != "ignore" {
		return nil, missing("input[name='userlist'][value='ignore']")
	}

	result := &IgnoreListForm{form: form}
	for _, c := range form.Controls {
		if c.Kind == ControlText && strings.HasPrefix(c.Name, "listbits") {
			if name := strings.TrimSpace(c.Value); name != "" {
				result.Usernames = append(result.Usernames, name)
			}
		}
	}
	return result, nil
}

// Contains reports whether username is on the list.
func (f *IgnoreListForm) Contains(username string) bool {
	for _, u := range f.Usernames {
		if u == username {
			return true
		}
	}
	return false
}

// Add appends a username. No-op when already present.
func (f *IgnoreListForm) Add(username string) {
	if !f.Contains(username) {
		f.Usernames = append(f.Usernames, username)
	}
}

// Remove drops a username. Reports whether it was present.
func (f *IgnoreListForm) Remove(username string) bool {
	for i, u := range f.Usernames {
		if u == username {
			f.Usernames = append(f.Usernames[:i], f.Usernames[i+1:]...)
			return true
		}
	}
	return false
}

// Submission prepares the form entries for re-submission with the
// current username list in place of the scraped one.
func (f *IgnoreListForm) Submission() []Entry {
	var entries []Entry
	next := 0
	for _, c := range f.form.Controls {
		switch {
		case c.Kind == ControlText && strings.HasPrefix(c.Name, "listbits"):
			// reuse the scraped slots, blanking any leftovers
			value := ""
			if next < len(f.Usernames) {
				value = f.Usernames[next]
				next++
			}
			entries = append(entries, Entry{Name: c.Name, Value: value})
		case c.Kind == ControlHidden:
			entries = append(entries, Entry{Name: c.Name, Value: c.Value})
		case c.Kind == ControlSubmit && c.Name == "submit":
			entries = append(entries, Entry{Name: c.Name, Value: c.Value})
		}
	}
	// usernames beyond the scraped slot count get fresh slots
	for ; next < len(f.Usernames); next++ {
		entries = append(entries, Entry{Name: fmt.Sprintf("listbits[%d]", next), Value: f.Usernames[next]})
	}
	return entries
}

// IgnoreListChangeError is a rejected ignore list update: the server
// enforces business rules here (moderators cannot be ignored), so
// this is a semantic failure distinct from a parse failure.
type IgnoreListChangeError struct {
	// ProblemUsername names the listed user the server objected to,
	// when it could be extracted from the error copy.
	ProblemUsername string
	Message         string
}

func (e *IgnoreListChangeError) Error() string {
	if e.ProblemUsername != "" {
		return fmt.Sprintf("ignore list rejected: %q cannot be ignored", e.ProblemUsername)
	}
	return fmt.Sprintf("ignore list update failed: %s", e.Message)
}

// CheckIgnoreListChange inspects the page shown after submitting the
// ignore list form. Finding the expected "is a moderator/admin" error
// is itself a successful scrape, just not a successful change.
func CheckIgnoreListChange(p document.Parsed) error {
	inner := p.Doc.Find("div.inner").First()
	if inner.Length() > 0 && strings.Contains(inner.Text(), "Your ignore list has been updated") {
		return nil
	}
	if standard := p.Doc.Find("#content center div.standard").First(); standard.Length() > 0 {
		message := strings.TrimSpace(standard.Find("div.inner, p").First().Text())
		if message == "" {
			message = strings.TrimSpace(standard.Text())
		}
		return &IgnoreListChangeError{
			ProblemUsername: problemUsername(message),
			Message:         message,
		}
	}
	return &IgnoreListChangeError{Message: "no confirmation found"}
}

// The rejection copy reads `Sorry <name> is a moderator/admin and you
// cannot ignore them.` Matching a long tail of it keeps a username
// that merely contains "is a mod" from confusing the parse.
func problemUsername(message string) string {
	start := strings.Index(message, "Sorry ")
	if start < 0 {
		return ""
	}
	rest := message[start+len("Sorry "):]
	end := strings.Index(rest, " is a moderator/admin and you")
	if end < 0 {
		return ""
	}
	return rest[:end]
}
