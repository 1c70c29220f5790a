package bookmark

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nikmy/graphtx/pkg/errors"
)

// DefaultDatabase is the key used when the caller does not name a database.
const DefaultDatabase = "<default>"

const DefaultCapacity = 128

// Store keeps the latest bookmark set for a bounded number of databases.
// Every database entry is guarded by its own lock, so commits against
// different databases never wait on each other.
type Store struct {
	entries *lru.Cache[string, *entry]
	onLock  func(database string)
}

type entry struct {
	mu  sync.Mutex
	set Set
}

type StoreOption func(*Store)

// WithLockHook installs a callback run while an entry lock is held.
// Tests use it to observe lock scope.
func WithLockHook(hook func(database string)) StoreOption {
	return func(s *Store) {
		s.onLock = hook
	}
}

func NewStore(capacity int, opts ...StoreOption) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	entries, err := lru.New[string, *entry](capacity)
	if err != nil {
		return nil, errors.WrapFail(err, "create bookmark cache")
	}

	s := &Store{entries: entries}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the bookmarks recorded for database, or an empty set.
func (s *Store) Get(database string) Set {
	e, ok := s.entries.Get(key(database))
	if !ok {
		return Set{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s.locked(database)
	return e.set
}

// Update records newer bookmarks produced by a transaction that was opened
// with superseded. Only superseded is dropped from the stored set; bookmarks
// of transactions that committed concurrently stay. Empty sets are ignored.
func (s *Store) Update(database string, superseded, newer Set) {
	if newer.IsEmpty() {
		return
	}

	e := s.entry(database)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.locked(database)
	e.set = e.set.Without(superseded).Union(newer)
}

// Merge adds bookmarks to the stored set instead of replacing it.
func (s *Store) Merge(database string, extra Set) {
	if extra.IsEmpty() {
		return
	}

	e := s.entry(database)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.locked(database)
	e.set = e.set.Union(extra)
}

// Reset forgets every database. Used on explicit reconfiguration.
func (s *Store) Reset() {
	s.entries.Purge()
}

func (s *Store) Len() int {
	return s.entries.Len()
}

func (s *Store) entry(database string) *entry {
	k := key(database)
	if e, ok := s.entries.Get(k); ok {
		return e
	}

	fresh := &entry{}
	prev, found, _ := s.entries.PeekOrAdd(k, fresh)
	if found {
		s.entries.Get(k)
		return prev
	}
	return fresh
}

func (s *Store) locked(database string) {
	if s.onLock != nil {
		s.onLock(key(database))
	}
}

func key(database string) string {
	if database == "" {
		return DefaultDatabase
	}
	return database
}
