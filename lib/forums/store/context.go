package store

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Context is a live object graph over the store. Objects returned by
// a context belong to that context: the same ID always resolves to
// the same pointer, and pointers never cross to the peer context.
//
// All access is serialized by the context's own lock, so two contexts
// never contend with each other; operations touching both must go
// through Save, which replays changes into the peer.
type Context struct {
	store *Store
	name  string
	peer  *Context

	mu            sync.Mutex
	forums        map[string]*Forum
	threads       map[string]*Thread
	posts         map[string]*Post
	users         map[string]*User
	tags          map[string]*ThreadTag
	messages      map[string]*PrivateMessage
	announcements map[int]*Announcement
	dirty         map[Key]bool
}

func newContext(store *Store, name string) *Context {
	return &Context{
		store:         store,
		name:          name,
		forums:        map[string]*Forum{},
		threads:       map[string]*Thread{},
		posts:         map[string]*Post{},
		users:         map[string]*User{},
		tags:          map[string]*ThreadTag{},
		messages:      map[string]*PrivateMessage{},
		announcements: map[int]*Announcement{},
		dirty:         map[Key]bool{},
	}
}

// Bridge wires a foreground and background context over one store.
// Background saves replay into the foreground and vice versa; closing
// the bridge unregisters both directions.
type Bridge struct {
	store *Store
	fg    *Context
	bg    *Context
}

func NewBridge(store *Store) *Bridge {
	fg := newContext(store, "foreground")
	bg := newContext(store, "background")
	fg.peer = bg
	bg.peer = fg
	return &Bridge{store: store, fg: fg, bg: bg}
}

func (b *Bridge) Foreground() *Context { return b.fg }
func (b *Bridge) Background() *Context { return b.bg }

// Close detaches the two contexts from each other. Existing objects
// stay usable but changes stop propagating.
func (b *Bridge) Close() {
	b.fg.mu.Lock()
	b.fg.peer = nil
	b.fg.mu.Unlock()
	b.bg.mu.Lock()
	b.bg.peer = nil
	b.bg.mu.Unlock()
}

// Touch marks an entity dirty so the next Save persists it.
func (c *Context) Touch(k Key) {
	c.mu.Lock()
	c.dirty[k] = true
	c.mu.Unlock()
}

// Save writes every dirty object to the store in one transaction,
// then replays the change set into the peer context. Returns the keys
// that were written.
func (c *Context) Save() ([]Key, error) {
	c.mu.Lock()
	keys := make([]Key, 0, len(c.dirty))
	for k := range c.dirty {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	tx, err := c.store.db.Begin()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	for _, k := range keys {
		if err := c.persistLocked(tx, k); err != nil {
			tx.Rollback()
			c.mu.Unlock()
			return nil, fmt.Errorf("persist %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.dirty = map[Key]bool{}
	peer := c.peer
	c.mu.Unlock()

	if peer != nil {
		peer.merge(keys)
	}
	return keys, nil
}

// merge replays a peer save into this context. Any object this
// context has already materialized is force-refreshed from the store
// before anything else can read it: stale cached field and
// relationship data must not survive the merge. This ordering is a
// correctness rule, not an optimization.
func (c *Context) merge(keys []Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.refreshLocked(k)
	}
}

func (c *Context) refreshLocked(k Key) {
	switch k.Kind {
	case KindForum:
		if cached, ok := c.forums[k.ID]; ok {
			if fresh, found, err := loadForum(c.store.db, k.ID); err == nil && found {
				*cached = *fresh
			}
		}
	case KindThread:
		if cached, ok := c.threads[k.ID]; ok {
			if fresh, found, err := loadThread(c.store.db, k.ID); err == nil && found {
				*cached = *fresh
			}
		}
	case KindPost:
		if cached, ok := c.posts[k.ID]; ok {
			if fresh, found, err := loadPost(c.store.db, k.ID); err == nil && found {
				*cached = *fresh
			}
		}
	case KindUser:
		if cached, ok := c.users[k.ID]; ok {
			if fresh, found, err := loadUser(c.store.db, k.ID); err == nil && found {
				*cached = *fresh
			}
		}
	case KindThreadTag:
		if cached, ok := c.tags[k.ID]; ok {
			if fresh, found, err := loadThreadTag(c.store.db, k.ID); err == nil && found {
				*cached = *fresh
			}
		}
	case KindMessage:
		if cached, ok := c.messages[k.ID]; ok {
			if fresh, found, err := loadMessage(c.store.db, k.ID); err == nil && found {
				*cached = *fresh
			}
		}
	case KindAnnouncement:
		idx, err := strconv.Atoi(k.ID)
		if err != nil {
			return
		}
		if cached, ok := c.announcements[idx]; ok {
			if fresh, found, err := loadAnnouncement(c.store.db, idx); err == nil && found {
				*cached = *fresh
			}
		}
	}
}

// Forum resolves (or creates) the forum with the given ID.
func (c *Context) Forum(id string) *Forum {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.forums[id]; ok {
		return f
	}
	f, found, err := loadForum(c.store.db, id)
	if err != nil || !found {
		f = &Forum{ID: id, CanPost: true}
		c.dirty[f.Key()] = true
	}
	c.forums[id] = f
	return f
}

// Thread resolves (or creates) the thread with the given ID.
func (c *Context) Thread(id string) *Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadLocked(id)
}

func (c *Context) threadLocked(id string) *Thread {
	if t, ok := c.threads[id]; ok {
		return t
	}
	t, found, err := loadThread(c.store.db, id)
	if err != nil || !found {
		t = &Thread{ID: id, UnreadPosts: -1}
		c.dirty[t.Key()] = true
	}
	c.threads[id] = t
	return t
}

// Post resolves (or creates) the post with the given ID.
func (c *Context) Post(id string) *Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.postLocked(id)
}

func (c *Context) postLocked(id string) *Post {
	if p, ok := c.posts[id]; ok {
		return p
	}
	p, found, err := loadPost(c.store.db, id)
	if err != nil || !found {
		p = &Post{ID: id}
		c.dirty[p.Key()] = true
	}
	c.posts[id] = p
	return p
}

// User resolves (or creates) the user with the given ID.
func (c *Context) User(id string) *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.users[id]; ok {
		return u
	}
	u, found, err := loadUser(c.store.db, id)
	if err != nil || !found {
		u = &User{ID: id}
		c.dirty[u.Key()] = true
	}
	c.users[id] = u
	return u
}

// UserByName finds a user by username without creating one.
func (c *Context) UserByName(username string) (*User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range c.users {
		if u.Username == username {
			return u, true
		}
	}
	id, found, err := loadUserIDByName(c.store.db, username)
	if err != nil || !found {
		return nil, false
	}
	u, found, err := loadUser(c.store.db, id)
	if err != nil || !found {
		return nil, false
	}
	c.users[id] = u
	return u, true
}

// ThreadTag resolves (or creates) the thread tag with the given ID.
func (c *Context) ThreadTag(id string) *ThreadTag {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tags[id]; ok {
		return t
	}
	t, found, err := loadThreadTag(c.store.db, id)
	if err != nil || !found {
		t = &ThreadTag{ID: id}
		c.dirty[t.Key()] = true
	}
	c.tags[id] = t
	return t
}

// Message resolves (or creates) the private message with the given ID.
func (c *Context) Message(id string) *PrivateMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.messages[id]; ok {
		return m
	}
	m, found, err := loadMessage(c.store.db, id)
	if err != nil || !found {
		m = &PrivateMessage{ID: id}
		c.dirty[m.Key()] = true
	}
	c.messages[id] = m
	return m
}

// Announcement resolves (or creates) the announcement at listIndex.
func (c *Context) Announcement(listIndex int) *Announcement {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.announcements[listIndex]; ok {
		return a
	}
	a, found, err := loadAnnouncement(c.store.db, listIndex)
	if err != nil || !found {
		a = &Announcement{ListIndex: listIndex}
		c.dirty[Key{KindAnnouncement, strconv.Itoa(listIndex)}] = true
	}
	c.announcements[listIndex] = a
	return a
}

// ThreadsInForum returns every known thread in a forum, both
// persisted and pending-save, ordered by ID.
func (c *Context) ThreadsInForum(forumID string) ([]*Thread, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := loadThreadIDsInForum(c.store.db, forumID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var threads []*Thread
	for _, id := range ids {
		threads = append(threads, c.threadLocked(id))
		seen[id] = true
	}
	for id, t := range c.threads {
		if t.ForumID == forumID && !seen[id] {
			threads = append(threads, t)
		}
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].ID < threads[j].ID })
	return threads, nil
}

// BookmarkedThreads returns bookmarked threads with a bookmark list
// page at or beyond page, for the bookmark staleness sweep.
func (c *Context) BookmarkedThreads(page int) ([]*Thread, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := loadBookmarkedThreadIDs(c.store.db, page)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var threads []*Thread
	for _, id := range ids {
		threads = append(threads, c.threadLocked(id))
		seen[id] = true
	}
	for id, t := range c.threads {
		if t.Bookmarked && t.BookmarkListPage >= page && !seen[id] {
			threads = append(threads, t)
		}
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].ID < threads[j].ID })
	return threads, nil
}

// PostsInThread returns a thread's posts ordered by thread index.
func (c *Context) PostsInThread(threadID string) ([]*Post, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := loadPostIDsInThread(c.store.db, threadID)
	if err != nil {
		return nil, err
	}
	posts := make([]*Post, len(ids))
	for i, id := range ids {
		posts[i] = c.postLocked(id)
	}
	return posts, nil
}

// Announcements returns all stored announcements in listing order.
func (c *Context) Announcements() ([]*Announcement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	indexes, err := loadAnnouncementIndexes(c.store.db)
	if err != nil {
		return nil, err
	}
	out := make([]*Announcement, 0, len(indexes))
	for _, idx := range indexes {
		if a, ok := c.announcements[idx]; ok {
			out = append(out, a)
			continue
		}
		a, found, err := loadAnnouncement(c.store.db, idx)
		if err != nil || !found {
			continue
		}
		c.announcements[idx] = a
		out = append(out, a)
	}
	return out, nil
}
