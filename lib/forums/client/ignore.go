package client

import (
	"context"
	"net/url"

	"forumcore/lib/forums/document"
	"forumcore/lib/forums/scrape"
	"forumcore/lib/forums/session"
)

// ListIgnoredUsers fetches the ignore list editing form. The returned
// form can be edited and handed to UpdateIgnoredUsers.
func (c *Client) ListIgnoredUsers(ctx context.Context) (*scrape.IgnoreListForm, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "member2.php", url.Values{
		"action":   {"viewlist"},
		"userlist": {"ignore"},
	}, nil)
	if err != nil {
		return nil, err
	}
	return scrape.ScrapeIgnoreListForm(parsed)
}

// UpdateIgnoredUsers submits an edited ignore list form. A rejection
// (the server refuses to let moderators be ignored) comes back as an
// *scrape.IgnoreListChangeError.
func (c *Client) UpdateIgnoredUsers(ctx context.Context, form *scrape.IgnoreListForm) error {
	ctx, span := tracer.Start(ctx, "client:updateIgnoredUsers")
	defer span.End()

	res, err := c.session.Fetch(ctx, session.MethodPost, "member2.php", entryParams(form.Submission()), nil)
	if err != nil {
		return err
	}
	return c.checkIgnoreListAnswer(res)
}

// checkIgnoreListAnswer parses the page shown after an ignore list
// change without the server error sniff: the rejection page shares
// the error page's shape, and the scrape decides what it means.
func (c *Client) checkIgnoreListAnswer(res *session.Response) error {
	parsed, err := document.ParseUnchecked(res.Body, res.ContentType, res.FinalURL)
	if err != nil {
		return err
	}
	return scrape.CheckIgnoreListChange(parsed)
}

// AddIgnoredUsername puts a username on the ignore list through the
// whole-list form. A name already on the list is a no-op success; no
// form is submitted.
func (c *Client) AddIgnoredUsername(ctx context.Context, username string) error {
	form, err := c.ListIgnoredUsers(ctx)
	if err != nil {
		return err
	}
	if form.Contains(username) {
		return nil
	}
	form.Add(username)
	return c.UpdateIgnoredUsers(ctx, form)
}

// AddIgnoredUser adds one user to the ignore list through the profile
// page's own ignore form. Unlike a whole-list update, this cannot be
// rejected over an unrelated moderator already on the list.
func (c *Client) AddIgnoredUser(ctx context.Context, userID string) error {
	formkey, err := c.profileIgnoreFormkey(ctx, userID)
	if err != nil {
		return err
	}
	res, err := c.session.Fetch(ctx, session.MethodPost, "member2.php", url.Values{
		"userid":   {userID},
		"action":   {"addlist"},
		"formkey":  {formkey},
		"userlist": {"ignore"},
	}, nil)
	if err != nil {
		return err
	}
	return c.checkIgnoreListAnswer(res)
}

// The profile page carries two formkey inputs, one per user list; the
// ignore one is the formkey next to the input that says so.
func (c *Client) profileIgnoreFormkey(ctx context.Context, userID string) (string, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "member.php", url.Values{
		"userid": {userID},
		"action": {"getinfo"},
	}, nil)
	if err != nil {
		return "", err
	}
	key, _ := parsed.Doc.
		Find("input[value='ignore']").First().
		Parent().
		Find("input[name='formkey']").
		Attr("value")
	return key, nil
}

// RemoveIgnoredUser drops a username from the ignore list. Removing a
// name that is not listed is a no-op, not an error.
func (c *Client) RemoveIgnoredUser(ctx context.Context, username string) error {
	form, err := c.ListIgnoredUsers(ctx)
	if err != nil {
		return err
	}
	if !form.Remove(username) {
		return nil
	}
	return c.UpdateIgnoredUsers(ctx, form)
}
