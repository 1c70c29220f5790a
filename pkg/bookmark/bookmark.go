// Package bookmark holds causal-consistency tokens issued by the database
// after a commit and the process-wide store that remembers the latest ones
// per logical database.
package bookmark

import (
	"slices"
	"strings"
)

// Bookmark is an opaque token marking a point in a database's write history.
// Tokens are compared for equality only, never ordered.
type Bookmark string

// Set is an immutable, deduplicated collection of bookmarks for one database.
// The zero value is an empty set.
type Set struct {
	items []Bookmark
}

func NewSet(bookmarks ...Bookmark) Set {
	items := make([]Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		if b != "" {
			items = append(items, b)
		}
	}

	if len(items) == 0 {
		return Set{}
	}

	// sorting only gives the set a canonical form for Equal and String
	slices.Sort(items)
	return Set{items: slices.Compact(items)}
}

func FromStrings(raw ...string) Set {
	bookmarks := make([]Bookmark, 0, len(raw))
	for _, r := range raw {
		bookmarks = append(bookmarks, Bookmark(r))
	}
	return NewSet(bookmarks...)
}

func (s Set) Len() int {
	return len(s.items)
}

func (s Set) IsEmpty() bool {
	return len(s.items) == 0
}

func (s Set) Contains(b Bookmark) bool {
	_, found := slices.BinarySearch(s.items, b)
	return found
}

// ContainsAll reports whether s is a superset of other.
func (s Set) ContainsAll(other Set) bool {
	for _, b := range other.items {
		if !s.Contains(b) {
			return false
		}
	}
	return true
}

func (s Set) Union(other Set) Set {
	if other.IsEmpty() {
		return s
	}
	if s.IsEmpty() {
		return other
	}
	return NewSet(append(slices.Clone(s.items), other.items...)...)
}

// Without returns the bookmarks of s that are not in other.
func (s Set) Without(other Set) Set {
	if s.IsEmpty() || other.IsEmpty() {
		return s
	}

	items := make([]Bookmark, 0, len(s.items))
	for _, b := range s.items {
		if !other.Contains(b) {
			items = append(items, b)
		}
	}
	if len(items) == 0 {
		return Set{}
	}
	return Set{items: items}
}

func (s Set) Equal(other Set) bool {
	return slices.Equal(s.items, other.items)
}

func (s Set) Bookmarks() []Bookmark {
	return slices.Clone(s.items)
}

func (s Set) Strings() []string {
	raw := make([]string, 0, len(s.items))
	for _, b := range s.items {
		raw = append(raw, string(b))
	}
	return raw
}

func (s Set) String() string {
	return "{" + strings.Join(s.Strings(), ", ") + "}"
}
