package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// execer covers *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func t2i(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func i2t(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

func (c *Context) persistLocked(tx execer, k Key) error {
	switch k.Kind {
	case KindForum:
		f, ok := c.forums[k.ID]
		if !ok {
			return nil
		}
		return persistForum(tx, f)
	case KindThread:
		t, ok := c.threads[k.ID]
		if !ok {
			return nil
		}
		return persistThread(tx, t)
	case KindPost:
		p, ok := c.posts[k.ID]
		if !ok {
			return nil
		}
		return persistPost(tx, p)
	case KindUser:
		u, ok := c.users[k.ID]
		if !ok {
			return nil
		}
		return persistUser(tx, u)
	case KindThreadTag:
		t, ok := c.tags[k.ID]
		if !ok {
			return nil
		}
		return persistThreadTag(tx, t)
	case KindMessage:
		m, ok := c.messages[k.ID]
		if !ok {
			return nil
		}
		return persistMessage(tx, m)
	case KindAnnouncement:
		idx, err := strconv.Atoi(k.ID)
		if err != nil {
			return err
		}
		a, ok := c.announcements[idx]
		if !ok {
			return nil
		}
		return persistAnnouncement(tx, a)
	default:
		return fmt.Errorf("unknown entity kind %q", k.Kind)
	}
}

func persistForum(tx execer, f *Forum) error {
	_, err := tx.Exec(`
		INSERT INTO forums (forum_id, parent_forum_id, name, position, can_post)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (forum_id) DO UPDATE SET
			parent_forum_id = excluded.parent_forum_id,
			name = excluded.name,
			position = excluded.position,
			can_post = excluded.can_post`,
		f.ID, f.ParentForumID, f.Name, f.Position, b2i(f.CanPost))
	return err
}

func loadForum(db *sql.DB, id string) (*Forum, bool, error) {
	f := &Forum{}
	var canPost int
	err := db.QueryRow(`
		SELECT forum_id, parent_forum_id, name, position, can_post
		FROM forums WHERE forum_id = ?`, id).
		Scan(&f.ID, &f.ParentForumID, &f.Name, &f.Position, &canPost)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	f.CanPost = canPost != 0
	return f, true, nil
}

func persistThread(tx execer, t *Thread) error {
	_, err := tx.Exec(`
		INSERT INTO threads (
			thread_id, forum_id, title, author_user_id, closed, sticky,
			bookmarked, bookmark_list_page, thread_list_page, star_category,
			reply_count, seen_posts, unread_posts, tag_id, secondary_tag_id,
			rating_average, rating_count, last_post_date, last_post_author
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (thread_id) DO UPDATE SET
			forum_id = excluded.forum_id,
			title = excluded.title,
			author_user_id = excluded.author_user_id,
			closed = excluded.closed,
			sticky = excluded.sticky,
			bookmarked = excluded.bookmarked,
			bookmark_list_page = excluded.bookmark_list_page,
			thread_list_page = excluded.thread_list_page,
			star_category = excluded.star_category,
			reply_count = excluded.reply_count,
			seen_posts = excluded.seen_posts,
			unread_posts = excluded.unread_posts,
			tag_id = excluded.tag_id,
			secondary_tag_id = excluded.secondary_tag_id,
			rating_average = excluded.rating_average,
			rating_count = excluded.rating_count,
			last_post_date = excluded.last_post_date,
			last_post_author = excluded.last_post_author`,
		t.ID, t.ForumID, t.Title, t.AuthorUserID, b2i(t.Closed), b2i(t.Sticky),
		b2i(t.Bookmarked), t.BookmarkListPage, t.ThreadListPage, t.StarCategory,
		t.ReplyCount, t.SeenPosts, t.UnreadPosts, t.TagID, t.SecondaryTagID,
		t.RatingAverage, t.RatingCount, t2i(t.LastPostDate), t.LastPostAuthor)
	return err
}

func loadThread(db *sql.DB, id string) (*Thread, bool, error) {
	t := &Thread{}
	var closed, sticky, bookmarked int
	var lastPost int64
	err := db.QueryRow(`
		SELECT thread_id, forum_id, title, author_user_id, closed, sticky,
			bookmarked, bookmark_list_page, thread_list_page, star_category,
			reply_count, seen_posts, unread_posts, tag_id, secondary_tag_id,
			rating_average, rating_count, last_post_date, last_post_author
		FROM threads WHERE thread_id = ?`, id).
		Scan(&t.ID, &t.ForumID, &t.Title, &t.AuthorUserID, &closed, &sticky,
			&bookmarked, &t.BookmarkListPage, &t.ThreadListPage, &t.StarCategory,
			&t.ReplyCount, &t.SeenPosts, &t.UnreadPosts, &t.TagID, &t.SecondaryTagID,
			&t.RatingAverage, &t.RatingCount, &lastPost, &t.LastPostAuthor)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	t.Closed = closed != 0
	t.Sticky = sticky != 0
	t.Bookmarked = bookmarked != 0
	t.LastPostDate = i2t(lastPost)
	return t, true, nil
}

func loadThreadIDsInForum(db *sql.DB, forumID string) ([]string, error) {
	rows, err := db.Query(`SELECT thread_id FROM threads WHERE forum_id = ? ORDER BY thread_id`, forumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func loadBookmarkedThreadIDs(db *sql.DB, page int) ([]string, error) {
	rows, err := db.Query(`
		SELECT thread_id FROM threads
		WHERE bookmarked = 1 AND bookmark_list_page >= ?
		ORDER BY thread_id`, page)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func persistPost(tx execer, p *Post) error {
	_, err := tx.Exec(`
		INSERT INTO posts (
			post_id, thread_id, author_user_id, thread_index,
			filtered_thread_index, inner_html,
			posted_at, posted_at_raw, edited, editable, ignored, seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (post_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			author_user_id = excluded.author_user_id,
			thread_index = excluded.thread_index,
			filtered_thread_index = excluded.filtered_thread_index,
			inner_html = excluded.inner_html,
			posted_at = excluded.posted_at,
			posted_at_raw = excluded.posted_at_raw,
			edited = excluded.edited,
			editable = excluded.editable,
			ignored = excluded.ignored,
			seen = excluded.seen`,
		p.ID, p.ThreadID, p.AuthorUserID, p.ThreadIndex,
		p.FilteredThreadIndex, p.InnerHTML,
		t2i(p.PostedAt), p.PostedAtRaw, b2i(p.Edited), b2i(p.Editable),
		b2i(p.Ignored), b2i(p.Seen))
	return err
}

func loadPost(db *sql.DB, id string) (*Post, bool, error) {
	p := &Post{}
	var edited, editable, ignored, seen int
	var postedAt int64
	err := db.QueryRow(`
		SELECT post_id, thread_id, author_user_id, thread_index,
			filtered_thread_index, inner_html,
			posted_at, posted_at_raw, edited, editable, ignored, seen
		FROM posts WHERE post_id = ?`, id).
		Scan(&p.ID, &p.ThreadID, &p.AuthorUserID, &p.ThreadIndex,
			&p.FilteredThreadIndex, &p.InnerHTML,
			&postedAt, &p.PostedAtRaw, &edited, &editable, &ignored, &seen)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	p.PostedAt = i2t(postedAt)
	p.Edited = edited != 0
	p.Editable = editable != 0
	p.Ignored = ignored != 0
	p.Seen = seen != 0
	return p, true, nil
}

func loadPostIDsInThread(db *sql.DB, threadID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT post_id FROM posts WHERE thread_id = ?
		ORDER BY thread_index`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func persistUser(tx execer, u *User) error {
	_, err := tx.Exec(`
		INSERT INTO users (
			user_id, username, avatar_url, custom_title_html, reg_date,
			reg_date_raw, moderator, administrator, can_receive_pms,
			about_html, location, interests, occupation, post_count,
			post_rate, last_post
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			username = excluded.username,
			avatar_url = excluded.avatar_url,
			custom_title_html = excluded.custom_title_html,
			reg_date = excluded.reg_date,
			reg_date_raw = excluded.reg_date_raw,
			moderator = excluded.moderator,
			administrator = excluded.administrator,
			can_receive_pms = excluded.can_receive_pms,
			about_html = excluded.about_html,
			location = excluded.location,
			interests = excluded.interests,
			occupation = excluded.occupation,
			post_count = excluded.post_count,
			post_rate = excluded.post_rate,
			last_post = excluded.last_post`,
		u.ID, u.Username, u.AvatarURL, u.CustomTitleHTML, t2i(u.RegDate),
		u.RegDateRaw, b2i(u.Moderator), b2i(u.Administrator), b2i(u.CanReceivePMs),
		u.AboutHTML, u.Location, u.Interests, u.Occupation, u.PostCount,
		u.PostRate, t2i(u.LastPost))
	return err
}

func loadUser(db *sql.DB, id string) (*User, bool, error) {
	u := &User{}
	var moderator, administrator, canReceivePMs int
	var regDate, lastPost int64
	err := db.QueryRow(`
		SELECT user_id, username, avatar_url, custom_title_html, reg_date,
			reg_date_raw, moderator, administrator, can_receive_pms,
			about_html, location, interests, occupation, post_count,
			post_rate, last_post
		FROM users WHERE user_id = ?`, id).
		Scan(&u.ID, &u.Username, &u.AvatarURL, &u.CustomTitleHTML, &regDate,
			&u.RegDateRaw, &moderator, &administrator, &canReceivePMs,
			&u.AboutHTML, &u.Location, &u.Interests, &u.Occupation, &u.PostCount,
			&u.PostRate, &lastPost)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	u.RegDate = i2t(regDate)
	u.LastPost = i2t(lastPost)
	u.Moderator = moderator != 0
	u.Administrator = administrator != 0
	u.CanReceivePMs = canReceivePMs != 0
	return u, true, nil
}

func loadUserIDByName(db *sql.DB, username string) (string, bool, error) {
	var id string
	err := db.QueryRow(`SELECT user_id FROM users WHERE username = ?`, username).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func persistThreadTag(tx execer, t *ThreadTag) error {
	_, err := tx.Exec(`
		INSERT INTO thread_tags (tag_id, image_name, image_url)
		VALUES (?, ?, ?)
		ON CONFLICT (tag_id) DO UPDATE SET
			image_name = excluded.image_name,
			image_url = excluded.image_url`,
		t.ID, t.ImageName, t.ImageURL)
	return err
}

func loadThreadTag(db *sql.DB, id string) (*ThreadTag, bool, error) {
	t := &ThreadTag{}
	err := db.QueryRow(`
		SELECT tag_id, image_name, image_url FROM thread_tags WHERE tag_id = ?`, id).
		Scan(&t.ID, &t.ImageName, &t.ImageURL)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func persistMessage(tx execer, m *PrivateMessage) error {
	_, err := tx.Exec(`
		INSERT INTO private_messages (
			message_id, subject, sender_user_id, sent_at, sent_at_raw,
			seen, replied, forwarded, tag_id, inner_html
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO UPDATE SET
			subject = excluded.subject,
			sender_user_id = excluded.sender_user_id,
			sent_at = excluded.sent_at,
			sent_at_raw = excluded.sent_at_raw,
			seen = excluded.seen,
			replied = excluded.replied,
			forwarded = excluded.forwarded,
			tag_id = excluded.tag_id,
			inner_html = excluded.inner_html`,
		m.ID, m.Subject, m.SenderUserID, t2i(m.SentAt), m.SentAtRaw,
		b2i(m.Seen), b2i(m.Replied), b2i(m.Forwarded), m.TagID, m.InnerHTML)
	return err
}

func loadMessage(db *sql.DB, id string) (*PrivateMessage, bool, error) {
	m := &PrivateMessage{}
	var seen, replied, forwarded int
	var sentAt int64
	err := db.QueryRow(`
		SELECT message_id, subject, sender_user_id, sent_at, sent_at_raw,
			seen, replied, forwarded, tag_id, inner_html
		FROM private_messages WHERE message_id = ?`, id).
		Scan(&m.ID, &m.Subject, &m.SenderUserID, &sentAt, &m.SentAtRaw,
			&seen, &replied, &forwarded, &m.TagID, &m.InnerHTML)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	m.SentAt = i2t(sentAt)
	m.Seen = seen != 0
	m.Replied = replied != 0
	m.Forwarded = forwarded != 0
	return m, true, nil
}

func persistAnnouncement(tx execer, a *Announcement) error {
	_, err := tx.Exec(`
		INSERT INTO announcements (
			list_index, title, author_username, body_html, posted_at, posted_at_raw
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (list_index) DO UPDATE SET
			title = excluded.title,
			author_username = excluded.author_username,
			body_html = excluded.body_html,
			posted_at = excluded.posted_at,
			posted_at_raw = excluded.posted_at_raw`,
		a.ListIndex, a.Title, a.AuthorUsername, a.BodyHTML, t2i(a.PostedAt), a.PostedAtRaw)
	return err
}

func loadAnnouncement(db *sql.DB, listIndex int) (*Announcement, bool, error) {
	a := &Announcement{}
	var postedAt int64
	err := db.QueryRow(`
		SELECT list_index, title, author_username, body_html, posted_at, posted_at_raw
		FROM announcements WHERE list_index = ?`, listIndex).
		Scan(&a.ListIndex, &a.Title, &a.AuthorUsername, &a.BodyHTML, &postedAt, &a.PostedAtRaw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	a.PostedAt = i2t(postedAt)
	return a, true, nil
}

func loadAnnouncementIndexes(db *sql.DB) ([]int, error) {
	rows, err := db.Query(`SELECT list_index FROM announcements ORDER BY list_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
