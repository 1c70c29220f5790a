package txn

import (
	"context"

	"github.com/nikmy/graphtx/pkg/bookmark"
)

//go:generate mockgen -source=model.go -destination=mocks_test.go -package=txn

type AccessMode int

const (
	AccessModeWrite AccessMode = iota
	AccessModeRead
)

func (m AccessMode) String() string {
	if m == AccessModeRead {
		return "read"
	}
	return "write"
}

// serves reports whether a transaction opened in mode m can run work that
// asked for mode want.
func (m AccessMode) serves(want AccessMode) bool {
	return m == AccessModeWrite || want == AccessModeRead
}

type SessionConfig struct {
	AccessMode AccessMode
	Bookmarks  bookmark.Set
	Database   string
}

// Driver opens backend sessions. Implementations translate their own error
// hierarchy with Transient and Unavailable before returning.
type Driver interface {
	OpenSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

type Session interface {
	BeginTransaction(ctx context.Context) (Tx, error)
	Close(ctx context.Context) error
}

type Tx interface {
	Run(ctx context.Context, statement string, params map[string]any) (Cursor, error)

	// Commit returns the bookmarks the backend issued for this transaction.
	Commit(ctx context.Context) (bookmark.Set, error)
	Rollback(ctx context.Context) error
}

type Cursor interface {
	Next(ctx context.Context) bool
	Record() map[string]any
	Err() error
}

// Collect drains c.
func Collect(ctx context.Context, c Cursor) ([]map[string]any, error) {
	var records []map[string]any
	for c.Next(ctx) {
		records = append(records, c.Record())
	}
	return records, c.Err()
}

// Definition describes the transaction a unit of work needs.
type Definition struct {
	Mode     AccessMode
	Database string

	// Bookmarks are merged into the seed of a root transaction on top of
	// whatever the bookmark store holds. Participating transactions ignore them.
	Bookmarks bookmark.Set
}

func Read(database string) Definition {
	return Definition{Mode: AccessModeRead, Database: database}
}

func Write(database string) Definition {
	return Definition{Mode: AccessModeWrite, Database: database}
}

func (d Definition) WithBookmarks(b bookmark.Set) Definition {
	d.Bookmarks = d.Bookmarks.Union(b)
	return d
}
