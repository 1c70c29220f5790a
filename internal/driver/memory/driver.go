// Package memory is an in-process graph backend. It keeps labelled nodes per
// database and understands the small Cypher subset the repositories emit:
//
//	CREATE (n:Label) SET n = $props
//	MATCH (n:Label) [WHERE n.key = $param] RETURN n.key AS alias, ...
//
// Every committed transaction advances the database version and is issued a
// "<database>:<version>" bookmark. Sessions opened with a bookmark the
// database has not reached yet fail with a transient error.
package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/nikmy/graphtx/pkg/bookmark"
	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/txn"
)

const DefaultDatabase = "graph"

var ErrNotUpToDate = errors.Error("database has not reached the requested bookmark")

func New() *Driver {
	return &Driver{
		databases: make(map[string]*database),
		failures:  make(map[string]int),
	}
}

type Driver struct {
	mu        sync.Mutex
	databases map[string]*database
	failures  map[string]int
}

type database struct {
	version uint64
	nodes   map[string][]map[string]any
}

// FailCommits makes the next n commits on the database fail with a
// transient error, as a leader switch would.
func (d *Driver) FailCommits(db string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[name(db)] = n
}

// Version is the number of transactions committed on the database.
func (d *Driver) Version(db string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if state, ok := d.databases[name(db)]; ok {
		return state.version
	}
	return 0
}

func (d *Driver) OpenSession(_ context.Context, cfg txn.SessionConfig) (txn.Session, error) {
	db := name(cfg.Database)
	current := d.Version(db)

	for _, b := range cfg.Bookmarks.Bookmarks() {
		bookmarkDB, version, err := parseBookmark(b)
		if err != nil {
			return nil, err
		}
		if bookmarkDB != db {
			continue
		}
		if version > current {
			return nil, txn.Transient(errors.Wrapf(ErrNotUpToDate, "%q is at %d, bookmark %s", db, current, b))
		}
	}

	return &session{driver: d, database: db, mode: cfg.AccessMode}, nil
}

// state returns the database, creating it on first use. d.mu must be held.
func (d *Driver) state(db string) *database {
	state, ok := d.databases[db]
	if !ok {
		state = &database{nodes: make(map[string][]map[string]any)}
		d.databases[db] = state
	}
	return state
}

func (d *Driver) commit(db string, pending []node) (bookmark.Set, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failures[db] > 0 {
		d.failures[db]--
		return bookmark.Set{}, txn.Transient(errors.Errorf("leader for %q changed during commit", db))
	}

	state := d.state(db)
	for _, n := range pending {
		state.nodes[n.label] = append(state.nodes[n.label], n.props)
	}
	state.version++

	return bookmark.NewSet(formatBookmark(db, state.version)), nil
}

func (d *Driver) match(db, label string, filter func(map[string]any) bool) []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	var matched []map[string]any
	for _, props := range d.state(db).nodes[label] {
		if filter(props) {
			matched = append(matched, props)
		}
	}
	return matched
}

func name(db string) string {
	if db == "" {
		return DefaultDatabase
	}
	return db
}

func formatBookmark(db string, version uint64) bookmark.Bookmark {
	return bookmark.Bookmark(db + ":" + strconv.FormatUint(version, 10))
}

func parseBookmark(b bookmark.Bookmark) (string, uint64, error) {
	i := strings.LastIndexByte(string(b), ':')
	if i <= 0 {
		return "", 0, errors.Errorf("malformed bookmark %q", b)
	}

	version, err := strconv.ParseUint(string(b[i+1:]), 10, 64)
	if err != nil {
		return "", 0, errors.Wrapf(err, "malformed bookmark %q", b)
	}
	return string(b[:i]), version, nil
}
