// Package store persists scraped forum entities in sqlite and keeps
// two live object contexts — a caller-facing foreground context and a
// network-write background context — convergent.
package store

import (
	"database/sql"
	"fmt"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// PostsPerPage is pinned to 40 on every paginated request regardless
// of the user's display preference, so that post index N is always on
// page ceil(N/40).
const PostsPerPage = 40

// PageForIndex computes the thread page holding the post with the
// given 1-based thread index.
func PageForIndex(threadIndex int) int {
	if threadIndex < 1 {
		return 1
	}
	return (threadIndex + PostsPerPage - 1) / PostsPerPage
}

// Kind discriminates entity identities.
type Kind string

const (
	KindForum        Kind = "forum"
	KindThread       Kind = "thread"
	KindPost         Kind = "post"
	KindUser         Kind = "user"
	KindThreadTag    Kind = "thread_tag"
	KindMessage      Kind = "private_message"
	KindAnnouncement Kind = "announcement"
)

// Key is an entity identity: the only thing that may cross a context
// boundary. Live objects never do.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string { return fmt.Sprintf("%s:%s", k.Kind, k.ID) }

// Store owns the sqlite database both contexts read and write.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// the two contexts interleave transactions on one connection set
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }
