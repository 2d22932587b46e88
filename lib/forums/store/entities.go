package store

import "time"

// Entities are live objects owned by exactly one Context. Callers
// mutate fields directly and then mark the object dirty via
// Context.Touch before saving.

type Forum struct {
	ID            string
	ParentForumID string
	Name          string
	Position      int
	CanPost       bool
}

func (f *Forum) Key() Key { return Key{KindForum, f.ID} }

type Thread struct {
	ID               string
	ForumID          string
	Title            string
	AuthorUserID     string
	Closed           bool
	Sticky           bool
	Bookmarked       bool
	BookmarkListPage int
	// ThreadListPage is the forum list page this thread was last seen
	// on, or 0 when it fell off page 1 (see the staleness sweep).
	ThreadListPage int
	StarCategory   string
	ReplyCount     int
	// SeenPosts is the high-water mark of posts the user has read.
	SeenPosts      int
	UnreadPosts    int
	TagID          string
	SecondaryTagID string
	RatingAverage  float64
	RatingCount    int
	LastPostDate   time.Time
	LastPostAuthor string
}

func (t *Thread) Key() Key { return Key{KindThread, t.ID} }

// PageCount derives the number of 40-post pages from the reply count.
// Not stored; always recomputed.
func (t *Thread) PageCount() int {
	return PageForIndex(t.ReplyCount + 1)
}

type Post struct {
	ID           string
	ThreadID     string
	AuthorUserID string
	// ThreadIndex is 1-based and monotonically increasing within a
	// thread; it is the basis of all page arithmetic.
	ThreadIndex int
	// FilteredThreadIndex is the post's 1-based position among a
	// single author's posts, written only by author-filtered fetches.
	// Those pages number posts relative to the filter, so letting them
	// near ThreadIndex would corrupt the page arithmetic.
	FilteredThreadIndex int
	InnerHTML           string
	PostedAt    time.Time
	PostedAtRaw string
	Edited      bool
	Editable    bool
	Ignored     bool
	Seen        bool
}

func (p *Post) Key() Key { return Key{KindPost, p.ID} }

// Page is the thread page this post appears on under fixed 40-per-page
// addressing.
func (p *Post) Page() int { return PageForIndex(p.ThreadIndex) }

// FilteredPage is the page this post appears on when the thread is
// viewed filtered to its author.
func (p *Post) FilteredPage() int { return PageForIndex(p.FilteredThreadIndex) }

type User struct {
	ID              string
	Username        string
	AvatarURL       string
	CustomTitleHTML string
	RegDate         time.Time
	RegDateRaw      string
	Moderator       bool
	Administrator   bool
	CanReceivePMs   bool
	AboutHTML       string
	Location        string
	Interests       string
	Occupation      string
	PostCount       int
	PostRate        string
	LastPost        time.Time
}

func (u *User) Key() Key { return Key{KindUser, u.ID} }

type ThreadTag struct {
	ID        string
	ImageName string
	ImageURL  string
}

func (t *ThreadTag) Key() Key { return Key{KindThreadTag, t.ID} }

type PrivateMessage struct {
	ID           string
	Subject      string
	SenderUserID string
	SentAt       time.Time
	SentAtRaw    string
	Seen         bool
	Replied      bool
	Forwarded    bool
	TagID        string
	InnerHTML    string
}

func (m *PrivateMessage) Key() Key { return Key{KindMessage, m.ID} }

// Announcement is keyed by its position in the announcement listing;
// the forum exposes no stable identifier for announcements.
type Announcement struct {
	ListIndex      int
	Title          string
	AuthorUsername string
	BodyHTML       string
	PostedAt       time.Time
	PostedAtRaw    string
}
