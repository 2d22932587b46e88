package scrape

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const replyFormFixture = `<html><body>
<form name="vbform" action="newreply.php" method="post">
<input type="hidden" name="action" value="postreply">
<input type="hidden" name="threadid" value="42">
<input type="hidden" name="formkey" value="abc123">
<select name="folder"><option value="inbox" selected>Inbox</option><option value="saved">Saved</option></select>
<textarea name="message">existing
draft</textarea>
<input type="checkbox" name="parseurl" value="yes" checked>
<input type="checkbox" name="bookmark" value="yes">
<input type="checkbox" name="disabledbox" value="yes" checked disabled>
<input type="text" name="username" value="frogcity">
<input type="submit" name="submit" value="Submit Reply">
<input type="submit" name="preview" value="Preview Reply">
</form></body></html>`

func parseTestForm(t *testing.T) *Form {
	t.Helper()
	p := parseFixture(t, replyFormFixture, "https://forums.example.com/newreply.php?action=newreply&postid=9001")
	form, err := ParseForm(p.Doc.Find("form[name='vbform']"), p.URL)
	require.NoError(t, err)
	return form
}

func TestParseForm(t *testing.T) {
	form := parseTestForm(t)

	require.Equal(t, "post", form.Method)
	require.NotNil(t, form.Action)
	require.Equal(t, "https://forums.example.com/newreply.php", form.Action.String())

	value, ok := form.TextValue("threadid")
	require.True(t, ok)
	require.Equal(t, "42", value)
	_, ok = form.TextValue("nonexistent")
	require.False(t, ok)

	require.NotNil(t, form.SubmitButton("preview"))
	require.Nil(t, form.SubmitButton("delete"))
}

func TestParseFormRejectsNonForm(t *testing.T) {
	p := parseFixture(t, `<html><body><div>no form here</div></body></html>`, "")
	_, err := ParseForm(p.Doc.Find("div"), nil)
	require.Error(t, err)
	var scrapeErr *Error
	require.ErrorAs(t, err, &scrapeErr)
}

func TestSubmitProducesOrderedEntries(t *testing.T) {
	form := parseTestForm(t)
	s := NewSubmittableForm(form)
	s.EnterText("message", "hello\nworld")

	entries := s.Submit(form.SubmitButton("submit"))
	diff := cmp.Diff([]Entry{
		{Name: "action", Value: "postreply"},
		{Name: "threadid", Value: "42"},
		{Name: "formkey", Value: "abc123"},
		{Name: "folder", Value: "inbox"},
		{Name: "message", Value: "hello\r\nworld"},
		{Name: "parseurl", Value: "yes"},
		{Name: "username", Value: "frogcity"},
		{Name: "submit", Value: "Submit Reply"},
	}, entries)
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestSubmitHonorsButtonChoice(t *testing.T) {
	form := parseTestForm(t)
	s := NewSubmittableForm(form)

	values := EntryValues(s.Submit(form.SubmitButton("preview")))
	require.Equal(t, "Preview Reply", values.Get("preview"))
	require.Empty(t, values.Get("submit"))

	// no button at all
	values = EntryValues(s.Submit(nil))
	require.Empty(t, values.Get("submit"))
	require.Empty(t, values.Get("preview"))
}

func TestTextareaLineBreaksNormalizeToCRLF(t *testing.T) {
	form := parseTestForm(t)
	s := NewSubmittableForm(form)

	// the scraped draft already contains a bare LF
	values := EntryValues(s.Submit(nil))
	require.Equal(t, "existing\r\ndraft", values.Get("message"))

	s.EnterText("message", "a\rb\r\nc\nd")
	values = EntryValues(s.Submit(nil))
	require.Equal(t, "a\r\nb\r\nc\r\nd", values.Get("message"))
}

func TestSelectAndDeselect(t *testing.T) {
	form := parseTestForm(t)
	s := NewSubmittableForm(form)

	s.Select("folder", "saved")
	s.Select("bookmark", "yes")
	s.Deselect("parseurl", "yes")

	values := EntryValues(s.Submit(nil))
	require.Equal(t, "saved", values.Get("folder"))
	require.Equal(t, "yes", values.Get("bookmark"))
	require.Empty(t, values.Get("parseurl"))
}

func TestDisabledControlsNeverContribute(t *testing.T) {
	form := parseTestForm(t)
	s := NewSubmittableForm(form)
	s.Select("disabledbox", "yes")

	values := EntryValues(s.Submit(nil))
	require.Empty(t, values.Get("disabledbox"))
}
