package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"forumcore/lib/forums/document"
	"forumcore/lib/forums/scrape"
	"forumcore/lib/forums/session"
	"forumcore/lib/forums/store"

	"github.com/PuerkitoBio/goquery"
)

// vbForm finds the posting form on a page. When the form is missing
// and the page instead shows the server's refusal copy, the refusal
// becomes a ForbiddenError.
func vbForm(parsed document.Parsed, refusalWord, refusal string) (*scrape.Form, error) {
	el := parsed.Doc.Find("form[name='vbform']").First()
	if el.Length() == 0 {
		if refusalWord != "" {
			special := parsed.Doc.Find("#content center div.standard").First()
			if special.Length() > 0 && strings.Contains(special.Text(), refusalWord) {
				return nil, &ForbiddenError{Description: refusal}
			}
		}
		return nil, fmt.Errorf("posting form not found")
	}
	return scrape.ParseForm(el, parsed.URL)
}

// findMessageText pulls the BBcode out of a posting form's message
// box. The attribute values come out of the parser already unescaped.
func findMessageText(parsed document.Parsed) (string, error) {
	form, err := vbForm(parsed, "", "")
	if err != nil {
		return "", err
	}
	text, ok := form.TextValue("message")
	if !ok {
		return "", fmt.Errorf("posting form has no message box")
	}
	return text, nil
}

// ThreadFormData carries the scraped new-thread form between the
// preview step and the submission step.
type ThreadFormData struct {
	form  *scrape.Form
	icons *scrape.PostIconList
}

// Icons exposes the selectable thread tags the form offered.
func (d *ThreadFormData) Icons() *scrape.PostIconList { return d.icons }

// PreviewOriginalPost renders the would-be first post of a new thread
// and returns the form data needed to actually post it.
func (c *Client) PreviewOriginalPost(ctx context.Context, forumID, bbcode string) (string, *ThreadFormData, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "newthread.php", url.Values{
		"action":  {"newthread"},
		"forumid": {forumID},
	}, nil)
	if err != nil {
		return "", nil, err
	}
	form, err := vbForm(parsed, "accepting", "this forum is not accepting new threads")
	if err != nil {
		return "", nil, err
	}

	submittable := scrape.NewSubmittableForm(form)
	submittable.EnterText("message", bbcode)
	entries := submittable.Submit(form.SubmitButton("preview"))

	previewed, err := c.fetchParsed(ctx, session.MethodPost, "newthread.php", entryParams(entries), nil)
	if err != nil {
		return "", nil, err
	}
	postbody := previewed.Doc.Find(".postbody").First()
	if postbody.Length() == 0 {
		return "", nil, fmt.Errorf("previewed post not found")
	}
	previewHTML, err := postbody.Html()
	if err != nil {
		return "", nil, err
	}

	previewForm, err := vbForm(previewed, "accepting", "this forum is not accepting new threads")
	if err != nil {
		return "", nil, err
	}
	icons, err := scrape.ScrapePostIconList(previewed)
	if err != nil {
		icons = &scrape.PostIconList{}
	}
	return strings.TrimSpace(previewHTML), &ThreadFormData{form: previewForm, icons: icons}, nil
}

// PostThread submits a previewed thread and returns the new thread.
// tagID and secondaryTagID select from the form's icon pickers; pass
// "" to leave one unselected.
func (c *Client) PostThread(ctx context.Context, formData *ThreadFormData, subject, tagID, secondaryTagID, bbcode string) (*store.Thread, error) {
	ctx, span := tracer.Start(ctx, "client:postThread")
	defer span.End()

	submittable := scrape.NewSubmittableForm(formData.form)
	submittable.EnterText("subject", subject)
	submittable.EnterText("message", bbcode)
	if tagID != "" && formData.icons.PrimaryFieldName != "" {
		submittable.Select(formData.icons.PrimaryFieldName, tagID)
	}
	if secondaryTagID != "" && formData.icons.SecondaryFieldName != "" {
		submittable.Select(formData.icons.SecondaryFieldName, secondaryTagID)
	}
	entries := submittable.Submit(formData.form.SubmitButton("submit"))

	parsed, err := c.fetchParsed(ctx, session.MethodPost, "newthread.php", entryParams(entries), nil)
	if err != nil {
		return nil, err
	}

	threadID := threadIDFromLink(parsed.Doc.Find("a[href*='showthread']"))
	if threadID == "" {
		return nil, fmt.Errorf("the new thread could not be located; check whether it appeared before retrying")
	}
	if err := c.upsert(func(bg *store.Context) ([]store.Key, error) {
		thread := bg.Thread(threadID)
		bg.Touch(thread.Key())
		return []store.Key{thread.Key()}, nil
	}); err != nil {
		return nil, err
	}
	return c.bridge.Foreground().Thread(threadID), nil
}

func threadIDFromLink(links *goquery.Selection) string {
	id := ""
	links.EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		u, err := url.Parse(href)
		if err != nil {
			return true
		}
		if v := u.Query().Get("threadid"); v != "" {
			id = v
			return false
		}
		return true
	})
	return id
}

// ReplyLocation says where a posted reply landed.
type ReplyLocation struct {
	// PostID identifies the new post when the server revealed it.
	PostID string
	// LastPage is set when all the server offered was a pointer at
	// the thread's last page.
	LastPage bool
}

func (c *Client) replyForm(ctx context.Context, threadID string) (*scrape.Form, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "newreply.php", url.Values{
		"action":   {"newreply"},
		"threadid": {threadID},
	}, nil)
	if err != nil {
		return nil, err
	}
	return vbForm(parsed, "closed", "cannot reply; the thread may be closed")
}

// Reply posts bbcode to a thread and reports where the post landed.
func (c *Client) Reply(ctx context.Context, threadID, bbcode string) (ReplyLocation, error) {
	ctx, span := tracer.Start(ctx, "client:reply")
	defer span.End()

	form, err := c.replyForm(ctx, threadID)
	if err != nil {
		return ReplyLocation{}, err
	}
	submittable := scrape.NewSubmittableForm(form)
	submittable.EnterText("message", bbcode)
	entries := submittable.Submit(form.SubmitButton("submit"))

	parsed, err := c.fetchParsed(ctx, session.MethodPost, "newreply.php", entryParams(entries), nil)
	if err != nil {
		return ReplyLocation{}, err
	}

	if href, ok := parsed.Doc.Find("a[href*='goto=post']").First().Attr("href"); ok {
		if u, err := url.Parse(href); err == nil {
			if postID := u.Query().Get("postid"); postID != "" {
				return ReplyLocation{PostID: postID}, nil
			}
		}
	}
	if parsed.Doc.Find("a[href*='goto=lastpost']").Length() > 0 {
		return ReplyLocation{LastPage: true}, nil
	}
	return ReplyLocation{}, fmt.Errorf("reply posted but its location was not found")
}

// PreviewReply renders bbcode as the server would post it to the
// thread.
func (c *Client) PreviewReply(ctx context.Context, threadID, bbcode string) (string, error) {
	form, err := c.replyForm(ctx, threadID)
	if err != nil {
		return "", err
	}
	return c.previewSubmission(ctx, "newreply.php", form, bbcode)
}

func (c *Client) previewSubmission(ctx context.Context, path string, form *scrape.Form, bbcode string) (string, error) {
	submittable := scrape.NewSubmittableForm(form)
	submittable.EnterText("message", bbcode)
	entries := submittable.Submit(form.SubmitButton("preview"))

	parsed, err := c.fetchParsed(ctx, session.MethodPost, path, entryParams(entries), nil)
	if err != nil {
		return "", err
	}
	postbody := parsed.Doc.Find(".postbody").First()
	if postbody.Length() == 0 {
		return "", fmt.Errorf("previewed post not found")
	}
	html, err := postbody.Html()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(html), nil
}

func (c *Client) editForm(ctx context.Context, postID string) (*scrape.Form, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "editpost.php", url.Values{
		"action": {"editpost"},
		"postid": {postID},
	}, nil)
	if err != nil {
		return nil, err
	}
	return vbForm(parsed, "permission", "not allowed to edit posts in this thread")
}

// Edit replaces a post's contents with bbcode.
func (c *Client) Edit(ctx context.Context, postID, bbcode string) error {
	ctx, span := tracer.Start(ctx, "client:edit")
	defer span.End()

	form, err := c.editForm(ctx, postID)
	if err != nil {
		return err
	}
	submittable := scrape.NewSubmittableForm(form)
	submittable.EnterText("message", bbcode)
	entries := submittable.Submit(form.SubmitButton("submit"))

	_, err = c.fetchParsed(ctx, session.MethodPost, "editpost.php", entryParams(entries), nil)
	return err
}

// PreviewEdit renders what a post would look like after an edit.
func (c *Client) PreviewEdit(ctx context.Context, postID, bbcode string) (string, error) {
	form, err := c.editForm(ctx, postID)
	if err != nil {
		return "", err
	}
	return c.previewSubmission(ctx, "editpost.php", form, bbcode)
}

// QuoteBBcode returns a post's contents wrapped in a quote block,
// ready to seed a reply, by reading the server's prefilled reply form.
func (c *Client) QuoteBBcode(ctx context.Context, postID string) (string, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "newreply.php", url.Values{
		"action": {"newreply"},
		"postid": {postID},
	}, nil)
	if err != nil {
		return "", err
	}
	return findMessageText(parsed)
}

// FindBBcodeContents returns the raw BBcode of one of the logged-in
// user's posts, from the edit form.
func (c *Client) FindBBcodeContents(ctx context.Context, postID string) (string, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "editpost.php", url.Values{
		"action": {"editpost"},
		"postid": {postID},
	}, nil)
	if err != nil {
		return "", err
	}
	return findMessageText(parsed)
}

// reportCommentLimit is the server-side cap on report explanations.
const reportCommentLimit = 960

// Report files a moderator alert about a post. Error checking on the
// response is deliberately lax: the server's answer pages for reports
// are unreliable, and a report that reached the server counts.
func (c *Client) Report(ctx context.Context, postID string, nws bool, reason string) error {
	ctx, span := tracer.Start(ctx, "client:report")
	defer span.End()

	if len(reason) > reportCommentLimit {
		reason = reason[:reportCommentLimit]
	}
	params := url.Values{
		"action":   {"submit"},
		"postid":   {postID},
		"comments": {reason},
	}
	if nws {
		params.Set("nws", "yes")
	}
	res, err := c.session.Fetch(ctx, session.MethodPost, "modalert.php", params, nil)
	if err != nil {
		return err
	}
	if _, parseErr := document.Parse(res.Body, res.ContentType, res.FinalURL); parseErr != nil {
		var serverErr *document.ServerError
		if errors.As(parseErr, &serverErr) {
			c.log.WarnContext(ctx, "report submitted but the server answered with an error page",
				"postID", postID, "title", serverErr.Title)
			return nil
		}
		return parseErr
	}
	return nil
}
