package client

import (
	"context"
	"net/url"

	"forumcore/lib/forums/scrape"
	"forumcore/lib/forums/session"
	"forumcore/lib/forums/store"
)

// ListPrivateMessages fetches the private message inbox.
func (c *Client) ListPrivateMessages(ctx context.Context) ([]*store.PrivateMessage, error) {
	ctx, span := tracer.Start(ctx, "client:listPrivateMessages")
	defer span.End()

	parsed, err := c.fetchParsed(ctx, session.MethodGet, "private.php", nil, nil)
	if err != nil {
		return nil, err
	}
	result, err := scrape.ScrapeMessageFolder(parsed)
	if err != nil {
		return nil, err
	}
	if err := c.upsert(result.Upsert); err != nil {
		return nil, err
	}

	fg := c.bridge.Foreground()
	messages := make([]*store.PrivateMessage, 0, len(result.Messages))
	for _, lm := range result.Messages {
		messages = append(messages, fg.Message(lm.ID))
	}
	return messages, nil
}

// ReadPrivateMessage fetches a message's full contents. Fetching is
// what marks the message read on the server, so the cached message
// comes back seen.
func (c *Client) ReadPrivateMessage(ctx context.Context, messageID string) (*store.PrivateMessage, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "private.php", url.Values{
		"action":           {"show"},
		"privatemessageid": {messageID},
	}, nil)
	if err != nil {
		return nil, err
	}
	result, err := scrape.ScrapeMessage(parsed)
	if err != nil {
		return nil, err
	}
	if err := c.upsert(result.Upsert); err != nil {
		return nil, err
	}
	return c.bridge.Foreground().Message(result.ID), nil
}

// DeletePrivateMessage removes a message from the server's inbox.
func (c *Client) DeletePrivateMessage(ctx context.Context, messageID string) error {
	_, err := c.fetchParsed(ctx, session.MethodPost, "private.php", url.Values{
		"action":           {"dodelete"},
		"privatemessageid": {messageID},
		"delete":           {"yes"},
	}, nil)
	return err
}

// RelevantMessage ties an outgoing message to the message it replies
// to or forwards. The zero value means a fresh message.
type RelevantMessage struct {
	MessageID  string
	Forwarding bool
}

// SendPrivateMessage sends a message. tagID selects a message icon;
// "0" or "" means no icon. about links the message to the one being
// replied to or forwarded.
func (c *Client) SendPrivateMessage(ctx context.Context, toUsername, subject, tagID, bbcode string, about RelevantMessage) error {
	ctx, span := tracer.Start(ctx, "client:sendPrivateMessage")
	defer span.End()

	if tagID == "" {
		tagID = "0"
	}
	params := url.Values{
		"touser":   {toUsername},
		"title":    {subject},
		"iconid":   {tagID},
		"message":  {bbcode},
		"action":   {"dosend"},
		"savecopy": {"yes"},
		"submit":   {"Send Message"},
	}
	if about.MessageID != "" {
		params.Set("prevmessageid", about.MessageID)
		if about.Forwarding {
			params.Set("forward", "true")
		} else {
			params.Set("forward", "")
		}
	}
	_, err := c.fetchParsed(ctx, session.MethodPost, "private.php", params, nil)
	return err
}

// QuotePrivateMessage returns a message's contents as BBcode, quoted
// the way the server seeds a reply.
func (c *Client) QuotePrivateMessage(ctx context.Context, messageID string) (string, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "private.php", url.Values{
		"action":           {"newmessage"},
		"privatemessageid": {messageID},
	}, nil)
	if err != nil {
		return "", err
	}
	return findMessageText(parsed)
}

// ListPrivateMessageIcons fetches the icons selectable when composing
// a private message.
func (c *Client) ListPrivateMessageIcons(ctx context.Context) (*scrape.PostIconList, error) {
	parsed, err := c.fetchParsed(ctx, session.MethodGet, "private.php", url.Values{
		"action": {"newmessage"},
	}, nil)
	if err != nil {
		return nil, err
	}
	result, err := scrape.ScrapePostIconList(parsed)
	if err != nil {
		return nil, err
	}
	if err := c.upsert(result.Upsert); err != nil {
		return nil, err
	}
	return result, nil
}
