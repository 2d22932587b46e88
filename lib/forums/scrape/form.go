package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ControlKind discriminates the form controls that can contribute
// form data.
type ControlKind int

const (
	ControlText ControlKind = iota
	ControlTextarea
	ControlHidden
	ControlCheckbox
	ControlRadio
	ControlSelectOne
	ControlSelectMany
	ControlFile
	ControlSubmit
)

// Control is one scraped <input>, <select> option, or <textarea>.
// Controls keep the order they appear in markup; that order is the
// order they contribute entries on submission.
type Control struct {
	Kind     ControlKind
	Name     string
	Value    string
	Checked  bool
	Disabled bool
}

// Form is an HTML form as scraped from markup. Immutable once built;
// use SubmittableForm to simulate filling it in.
type Form struct {
	Controls []Control
	// Method is the lowercased method attribute, defaulting to "get".
	Method string
	// Action is the form's submission target resolved against the
	// page URL, or nil when neither is usable.
	Action *url.URL
}

// ParseForm scrapes sel, which must be a form element.
func ParseForm(sel *goquery.Selection, pageURL *url.URL) (*Form, error) {
	if sel.Length() == 0 || !sel.Is("form") {
		return nil, missing("form")
	}

	f := &Form{
		Method: strings.ToLower(sel.AttrOr("method", "get")),
	}
	if f.Method != "post" {
		f.Method = "get"
	}

	if action := strings.TrimSpace(sel.AttrOr("action", "")); action != "" {
		if u, err := url.Parse(action); err == nil {
			if pageURL != nil {
				u = pageURL.ResolveReference(u)
			}
			f.Action = u
		}
	}

	sel.Find("input, select, textarea").Each(func(_ int, el *goquery.Selection) {
		f.Controls = append(f.Controls, parseControl(el)...)
	})
	return f, nil
}

func parseControl(el *goquery.Selection) []Control {
	name := el.AttrOr("name", "")
	_, disabled := el.Attr("disabled")

	if el.Is("textarea") {
		if name == "" {
			return nil
		}
		return []Control{{Kind: ControlTextarea, Name: name, Value: el.Text(), Disabled: disabled}}
	}

	if el.Is("select") {
		if name == "" {
			return nil
		}
		kind := ControlSelectOne
		if _, multiple := el.Attr("multiple"); multiple {
			kind = ControlSelectMany
		}
		var out []Control
		el.Find("option").Each(func(_ int, opt *goquery.Selection) {
			value, ok := opt.Attr("value")
			if !ok {
				value = opt.Text()
			}
			_, optDisabled := opt.Attr("disabled")
			_, selected := opt.Attr("selected")
			out = append(out, Control{
				Kind:     kind,
				Name:     name,
				Value:    value,
				Checked:  selected,
				Disabled: disabled || optDisabled,
			})
		})
		return out
	}

	switch strings.ToLower(el.AttrOr("type", "text")) {
	case "submit", "image":
		return []Control{{
			Kind:     ControlSubmit,
			Name:     name,
			Value:    el.AttrOr("value", "Submit"),
			Disabled: disabled,
		}}
	case "checkbox":
		if name == "" {
			return nil
		}
		_, checked := el.Attr("checked")
		return []Control{{Kind: ControlCheckbox, Name: name, Value: el.AttrOr("value", "on"), Checked: checked, Disabled: disabled}}
	case "radio":
		if name == "" {
			return nil
		}
		_, checked := el.Attr("checked")
		return []Control{{Kind: ControlRadio, Name: name, Value: el.AttrOr("value", "on"), Checked: checked, Disabled: disabled}}
	case "hidden":
		if name == "" {
			return nil
		}
		return []Control{{Kind: ControlHidden, Name: name, Value: el.AttrOr("value", ""), Disabled: disabled}}
	case "file", "reset", "button":
		return nil
	default:
		if name == "" {
			return nil
		}
		return []Control{{Kind: ControlText, Name: name, Value: el.AttrOr("value", ""), Disabled: disabled}}
	}
}

// SubmitButton finds the first enabled submit control with the given
// name, or nil.
func (f *Form) SubmitButton(name string) *Control {
	for i := range f.Controls {
		c := &f.Controls[i]
		if c.Kind == ControlSubmit && c.Name == name && !c.Disabled {
			return c
		}
	}
	return nil
}

// TextValue returns the current value of the first text-like control
// with the given name.
func (f *Form) TextValue(name string) (string, bool) {
	for _, c := range f.Controls {
		if (c.Kind == ControlText || c.Kind == ControlTextarea || c.Kind == ControlHidden) && c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Entry is one name/value pair of a prepared form submission.
type Entry struct {
	Name  string
	Value string
}

// EntryValues flattens entries into url.Values, preserving multiplicity.
func EntryValues(entries []Entry) url.Values {
	out := url.Values{}
	for _, e := range entries {
		out.Add(e.Name, e.Value)
	}
	return out
}

// SubmittableForm tracks text entry and selection changes over a
// scraped Form, then prepares the ordered form data set the way a
// browser would.
type SubmittableForm struct {
	form        *Form
	enteredText map[string]string
	selected    map[string]map[string]bool
}

// normalizeLineBreaks rewrites lone CR or LF to CRLF, which is what
// the server gets from a real textarea.
func normalizeLineBreaks(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func NewSubmittableForm(f *Form) *SubmittableForm {
	s := &SubmittableForm{
		form:        f,
		enteredText: map[string]string{},
		selected:    map[string]map[string]bool{},
	}
	for _, c := range f.Controls {
		if c.Disabled {
			continue
		}
		switch c.Kind {
		case ControlText:
			s.enteredText[c.Name] = c.Value
		case ControlTextarea:
			s.enteredText[c.Name] = normalizeLineBreaks(c.Value)
		case ControlCheckbox, ControlSelectMany:
			if c.Checked {
				s.selectValue(c.Name, c.Value, true)
			}
		case ControlRadio, ControlSelectOne:
			if c.Checked {
				s.selectValue(c.Name, c.Value, false)
			}
		}
	}
	return s
}

// EnterText sets the value of the named text field or text box.
func (s *SubmittableForm) EnterText(name, text string) {
	for _, c := range s.form.Controls {
		if c.Disabled || c.Name != name {
			continue
		}
		switch c.Kind {
		case ControlTextarea:
			s.enteredText[name] = normalizeLineBreaks(text)
			return
		case ControlText:
			s.enteredText[name] = text
			return
		}
	}
}

// Select marks the value of the named checkbox, radio, or select
// control as chosen, deselecting siblings for single-choice controls.
func (s *SubmittableForm) Select(name, value string) {
	for _, c := range s.form.Controls {
		if c.Disabled || c.Name != name || c.Value != value {
			continue
		}
		switch c.Kind {
		case ControlCheckbox, ControlSelectMany:
			s.selectValue(name, value, true)
			return
		case ControlRadio, ControlSelectOne:
			s.selectValue(name, value, false)
			return
		}
	}
}

// Deselect unchecks a checkbox or multi-select value.
func (s *SubmittableForm) Deselect(name, value string) {
	for _, c := range s.form.Controls {
		if c.Disabled || c.Name != name || c.Value != value {
			continue
		}
		if c.Kind == ControlCheckbox || c.Kind == ControlSelectMany {
			delete(s.selected[name], value)
		}
		return
	}
}

func (s *SubmittableForm) selectValue(name, value string, multiple bool) {
	if !multiple {
		s.selected[name] = map[string]bool{value: true}
		return
	}
	if s.selected[name] == nil {
		s.selected[name] = map[string]bool{}
	}
	s.selected[name][value] = true
}

// Submit prepares the form data set as if button were clicked. Only
// that button contributes an entry; pass nil to submit with no
// button. Entries come out in control order.
func (s *SubmittableForm) Submit(button *Control) []Entry {
	var entries []Entry
	for i := range s.form.Controls {
		c := &s.form.Controls[i]
		if c.Disabled {
			continue
		}
		switch c.Kind {
		case ControlCheckbox, ControlRadio, ControlSelectOne, ControlSelectMany:
			if s.selected[c.Name][c.Value] {
				entries = append(entries, Entry{Name: c.Name, Value: c.Value})
			}
		case ControlHidden:
			entries = append(entries, Entry{Name: c.Name, Value: c.Value})
		case ControlText, ControlTextarea:
			if value, ok := s.enteredText[c.Name]; ok {
				entries = append(entries, Entry{Name: c.Name, Value: value})
			}
		case ControlSubmit:
			if c == button && c.Name != "" {
				entries = append(entries, Entry{Name: c.Name, Value: c.Value})
			}
		}
	}
	return entries
}
