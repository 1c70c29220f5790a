package txn

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikmy/graphtx/pkg/bookmark"
)

type Status int

const (
	StatusActive Status = iota
	StatusCommitted
	StatusRolledBack
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCommitted:
		return "committed"
	case StatusRolledBack:
		return "rolled_back"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Context is one unit of work bound to one backend transaction. Nested
// units of work receive the same Context and only change its depth.
// The Manager owns every state transition.
type Context struct {
	mu sync.Mutex

	id       uuid.UUID
	database string
	mode     AccessMode
	started  time.Time

	status       Status
	depth        int
	dirty        bool
	rollbackOnly bool

	seed     bookmark.Set
	supplied bookmark.Set
	produced bookmark.Set

	session Session
	tx      Tx
}

func newContext(def Definition, seed bookmark.Set, session Session, tx Tx) *Context {
	return &Context{
		id:       uuid.New(),
		database: def.Database,
		mode:     def.Mode,
		started:  time.Now(),
		status:   StatusActive,
		seed:     seed,
		supplied: def.Bookmarks,
		session:  session,
		tx:       tx,
	}
}

func (c *Context) ID() uuid.UUID {
	return c.id
}

func (c *Context) Database() string {
	return c.database
}

func (c *Context) Mode() AccessMode {
	return c.mode
}

func (c *Context) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth
}

func (c *Context) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Context) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// MarkDirty vetoes the outermost commit. The owner's commit then rolls back
// and reports ErrUnexpectedRollback.
func (c *Context) MarkDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = true
}

// SetRollbackOnly asks the owner's commit to roll back quietly.
func (c *Context) SetRollbackOnly() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbackOnly = true
}

// Bookmarks returns the set the session was opened with.
func (c *Context) Bookmarks() bookmark.Set {
	return c.seed
}

// Produced returns the bookmarks of a committed write transaction.
func (c *Context) Produced() bookmark.Set {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.produced
}

func (c *Context) Run(ctx context.Context, statement string, params map[string]any) (Cursor, error) {
	c.mu.Lock()
	active, tx := c.status == StatusActive, c.tx
	c.mu.Unlock()

	if !active {
		return nil, newError(ErrTransactionNotActive, PhaseRun, c.database, nil)
	}

	// the statement runs unlocked so participants can still flag the context
	cur, err := tx.Run(ctx, statement, params)
	if err != nil {
		return nil, newError(nil, PhaseRun, c.database, err)
	}
	return cur, nil
}

// recordBookmarks must be called with c.mu held.
func (c *Context) recordBookmarks(b bookmark.Set) {
	if c.mode == AccessModeWrite {
		c.produced = b
	}
}
