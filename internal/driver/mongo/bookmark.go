package mongo

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nikmy/graphtx/pkg/bookmark"
	"github.com/nikmy/graphtx/pkg/errors"
)

// Bookmarks are cluster operation times rendered as "<seconds>:<increment>".

func toBookmarks(ts *primitive.Timestamp) bookmark.Set {
	if ts == nil || ts.IsZero() {
		return bookmark.Set{}
	}
	return bookmark.NewSet(formatTimestamp(*ts))
}

func formatTimestamp(ts primitive.Timestamp) bookmark.Bookmark {
	return bookmark.Bookmark(strconv.FormatUint(uint64(ts.T), 10) + ":" + strconv.FormatUint(uint64(ts.I), 10))
}

func parseTimestamp(b bookmark.Bookmark) (primitive.Timestamp, error) {
	rawT, rawI, ok := strings.Cut(string(b), ":")
	if !ok {
		return primitive.Timestamp{}, errors.Errorf("malformed bookmark %q", b)
	}

	t, err := strconv.ParseUint(rawT, 10, 32)
	if err != nil {
		return primitive.Timestamp{}, errors.Wrapf(err, "malformed bookmark %q", b)
	}

	i, err := strconv.ParseUint(rawI, 10, 32)
	if err != nil {
		return primitive.Timestamp{}, errors.Wrapf(err, "malformed bookmark %q", b)
	}

	return primitive.Timestamp{T: uint32(t), I: uint32(i)}, nil
}

// latest picks the newest operation time in s; a session that has seen it
// has seen every older one.
func latest(s bookmark.Set) (*primitive.Timestamp, error) {
	var newest *primitive.Timestamp
	for _, b := range s.Bookmarks() {
		ts, err := parseTimestamp(b)
		if err != nil {
			return nil, err
		}
		if newest == nil || after(ts, *newest) {
			newest = &ts
		}
	}
	return newest, nil
}

func after(a, b primitive.Timestamp) bool {
	return a.T > b.T || (a.T == b.T && a.I > b.I)
}
