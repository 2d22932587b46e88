package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPageForIndex(t *testing.T) {
	require.Equal(t, 1, PageForIndex(0))
	require.Equal(t, 1, PageForIndex(1))
	require.Equal(t, 1, PageForIndex(40))
	require.Equal(t, 2, PageForIndex(41))
	require.Equal(t, 2, PageForIndex(80))
	require.Equal(t, 3, PageForIndex(81))
}

func TestSaveRoundTrip(t *testing.T) {
	s := openTestStore(t)
	bridge := NewBridge(s)
	bg := bridge.Background()

	thread := bg.Thread("3510131")
	thread.ForumID = "273"
	thread.Title = "post your cat"
	thread.ReplyCount = 123
	thread.Bookmarked = true
	thread.BookmarkListPage = 2
	thread.LastPostDate = time.Unix(1724900000, 0)
	bg.Touch(thread.Key())

	keys, err := bg.Save()
	require.NoError(t, err)
	require.Contains(t, keys, thread.Key())

	// a fresh bridge sees exactly what was written
	other := NewBridge(s)
	got := other.Foreground().Thread("3510131")
	require.Equal(t, "post your cat", got.Title)
	require.Equal(t, 123, got.ReplyCount)
	require.True(t, got.Bookmarked)
	require.Equal(t, 2, got.BookmarkListPage)
	require.Equal(t, int64(1724900000), got.LastPostDate.Unix())
	require.Equal(t, 4, got.PageCount())
}

func TestSaveIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	bg := NewBridge(s).Background()

	u := bg.User("9001")
	u.Username = "pokeyman"
	u.Moderator = true
	bg.Touch(u.Key())
	_, err := bg.Save()
	require.NoError(t, err)

	// saving the same object again upserts, it does not duplicate
	bg.Touch(u.Key())
	_, err = bg.Save()
	require.NoError(t, err)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestPeerSeesSavedChanges(t *testing.T) {
	s := openTestStore(t)
	bridge := NewBridge(s)
	fg := bridge.Foreground()
	bg := bridge.Background()

	// foreground materializes the thread first, so the merge must
	// refresh it in place rather than hand back a new pointer
	fgThread := fg.Thread("100")
	require.Equal(t, "", fgThread.Title)

	bgThread := bg.Thread("100")
	bgThread.Title = "updated on the network"
	bgThread.UnreadPosts = 7
	bg.Touch(bgThread.Key())
	_, err := bg.Save()
	require.NoError(t, err)

	require.Equal(t, "updated on the network", fgThread.Title)
	require.Equal(t, 7, fgThread.UnreadPosts)
	require.Same(t, fgThread, fg.Thread("100"))
}

func TestObjectsNeverCrossContexts(t *testing.T) {
	s := openTestStore(t)
	bridge := NewBridge(s)

	fgThread := bridge.Foreground().Thread("42")
	bgThread := bridge.Background().Thread("42")
	require.NotSame(t, fgThread, bgThread)
}

func TestClosedBridgeStopsPropagating(t *testing.T) {
	s := openTestStore(t)
	bridge := NewBridge(s)
	fg := bridge.Foreground()
	bg := bridge.Background()

	fgThread := fg.Thread("55")
	bridge.Close()

	bgThread := bg.Thread("55")
	bgThread.Title = "after close"
	bg.Touch(bgThread.Key())
	_, err := bg.Save()
	require.NoError(t, err)

	require.Equal(t, "", fgThread.Title)
}

func TestThreadsInForumIncludesPending(t *testing.T) {
	s := openTestStore(t)
	bg := NewBridge(s).Background()

	saved := bg.Thread("1")
	saved.ForumID = "273"
	bg.Touch(saved.Key())
	_, err := bg.Save()
	require.NoError(t, err)

	pending := bg.Thread("2")
	pending.ForumID = "273"
	elsewhere := bg.Thread("3")
	elsewhere.ForumID = "26"

	threads, err := bg.ThreadsInForum("273")
	require.NoError(t, err)
	require.Len(t, threads, 2)
	require.Same(t, saved, threads[0])
	require.Same(t, pending, threads[1])
}

func TestBookmarkedThreadsFiltersByListPage(t *testing.T) {
	s := openTestStore(t)
	bg := NewBridge(s).Background()

	for id, page := range map[string]int{"10": 1, "11": 2, "12": 3} {
		th := bg.Thread(id)
		th.Bookmarked = true
		th.BookmarkListPage = page
		bg.Touch(th.Key())
	}
	unmarked := bg.Thread("13")
	unmarked.BookmarkListPage = 5
	bg.Touch(unmarked.Key())
	_, err := bg.Save()
	require.NoError(t, err)

	threads, err := bg.BookmarkedThreads(2)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	require.Equal(t, "11", threads[0].ID)
	require.Equal(t, "12", threads[1].ID)
}

func TestPostsInThreadOrderedByIndex(t *testing.T) {
	s := openTestStore(t)
	bg := NewBridge(s).Background()

	for _, p := range []struct {
		id    string
		index int
	}{{"203", 3}, {"201", 1}, {"202", 2}} {
		post := bg.Post(p.id)
		post.ThreadID = "7"
		post.ThreadIndex = p.index
		bg.Touch(post.Key())
	}
	_, err := bg.Save()
	require.NoError(t, err)

	posts, err := bg.PostsInThread("7")
	require.NoError(t, err)
	require.Len(t, posts, 3)
	require.Equal(t, []string{"201", "202", "203"}, []string{posts[0].ID, posts[1].ID, posts[2].ID})
	require.Equal(t, 1, posts[0].Page())
}

func TestUserByName(t *testing.T) {
	s := openTestStore(t)
	bg := NewBridge(s).Background()

	u := bg.User("77")
	u.Username = "frogcity"
	bg.Touch(u.Key())
	_, err := bg.Save()
	require.NoError(t, err)

	found, ok := bg.UserByName("frogcity")
	require.True(t, ok)
	require.Same(t, u, found)

	_, ok = bg.UserByName("nobody")
	require.False(t, ok)
}

func TestAnnouncementsListingOrder(t *testing.T) {
	s := openTestStore(t)
	bg := NewBridge(s).Background()

	for i, title := range []string{"first", "second"} {
		a := bg.Announcement(i)
		a.Title = title
		a.PostedAtRaw = "Aug 28, 2026"
	}
	_, err := bg.Save()
	require.NoError(t, err)

	all, err := bg.Announcements()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "first", all[0].Title)
	require.Equal(t, "second", all[1].Title)
}
