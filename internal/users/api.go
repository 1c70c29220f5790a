package users

import (
	"context"

	"github.com/nikmy/graphtx/pkg/bookmark"
	"github.com/nikmy/graphtx/pkg/txn"
)

type API interface {
	// Save stores u inside outer, or in a transaction of its own when outer is nil.
	Save(ctx context.Context, outer *txn.Context, u User) (User, error)

	// SaveAll stores all users in one transaction and returns the bookmarks
	// it produced. Nothing is stored if any user is rejected.
	SaveAll(ctx context.Context, users []User) ([]User, bookmark.Set, error)

	// All and ByName read at least as late as the given bookmarks and the
	// latest writes this process has committed.
	All(ctx context.Context, after bookmark.Set) ([]User, error)
	ByName(ctx context.Context, name string, after bookmark.Set) ([]User, error)
}
