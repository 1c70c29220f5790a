package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodrv "go.mongodb.org/mongo-driver/mongo"

	"github.com/nikmy/graphtx/pkg/bookmark"
	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/txn"
)

func TestTimestampCodec(t *testing.T) {
	ts := primitive.Timestamp{T: 1718000000, I: 7}
	b := formatTimestamp(ts)
	require.Equal(t, bookmark.Bookmark("1718000000:7"), b)

	parsed, err := parseTimestamp(b)
	require.NoError(t, err)
	require.Equal(t, ts, parsed)

	for _, bad := range []bookmark.Bookmark{"FB:kcwQ", "17", "1:x", "99999999999:1"} {
		_, err := parseTimestamp(bad)
		require.Error(t, err, bad)
	}
}

func TestToBookmarks(t *testing.T) {
	require.True(t, toBookmarks(nil).IsEmpty())
	require.True(t, toBookmarks(&primitive.Timestamp{}).IsEmpty())
	require.True(t, toBookmarks(&primitive.Timestamp{T: 5, I: 1}).Equal(bookmark.FromStrings("5:1")))
}

func TestLatest(t *testing.T) {
	type testcase struct {
		name    string
		set     bookmark.Set
		want    *primitive.Timestamp
		wantErr bool
	}

	tests := [...]testcase{
		{
			name: "empty",
			set:  bookmark.Set{},
		},
		{
			name: "newest seconds win",
			set:  bookmark.FromStrings("10:9", "11:1", "9:100"),
			want: &primitive.Timestamp{T: 11, I: 1},
		},
		{
			name: "increment breaks ties",
			set:  bookmark.FromStrings("10:2", "10:3"),
			want: &primitive.Timestamp{T: 10, I: 3},
		},
		{
			name:    "foreign bookmark",
			set:     bookmark.FromStrings("10:2", "FB:kcwQ"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := latest(tt.set)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTranslate(t *testing.T) {
	type testcase struct {
		name            string
		err             error
		wantClass       txn.Class
		wantUnavailable bool
	}

	tests := [...]testcase{
		{
			name:      "transient transaction label",
			err:       mongodrv.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{labelTransientTransaction}},
			wantClass: txn.Retryable,
		},
		{
			name:      "unknown commit result",
			err:       mongodrv.CommandError{Code: 50, Labels: []string{labelUnknownCommitResult}},
			wantClass: txn.Permanent,
		},
		{
			name:      "duplicate key",
			err:       mongodrv.CommandError{Code: 11000, Name: "DuplicateKey"},
			wantClass: txn.Permanent,
		},
		{
			name:            "disconnected client",
			err:             mongodrv.ErrClientDisconnected,
			wantClass:       txn.Permanent,
			wantUnavailable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err)
			require.Equal(t, tt.wantClass, txn.Classify(got))
			require.Equal(t, tt.wantUnavailable, errors.Is(got, txn.ErrBackendUnavailable))

			var ce mongodrv.CommandError
			if errors.As(tt.err, &ce) {
				require.True(t, errors.As(got, &ce))
				return
			}
			require.ErrorIs(t, got, tt.err)
		})
	}

	require.NoError(t, translate(nil))
}

func TestCommitUntilKnown(t *testing.T) {
	unknown := mongodrv.CommandError{Code: 50, Name: "MaxTimeMSExpired", Labels: []string{labelUnknownCommitResult}}
	conflict := mongodrv.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{labelTransientTransaction}}
	duplicate := mongodrv.CommandError{Code: 11000, Name: "DuplicateKey"}

	type testcase struct {
		name      string
		replies   []error
		wantCalls int
		wantErr   bool
		wantClass txn.Class
	}

	tests := [...]testcase{
		{name: "committed", replies: []error{nil}, wantCalls: 1},
		{name: "known after unknown", replies: []error{unknown, unknown, nil}, wantCalls: 3},
		{
			name:      "never known",
			replies:   []error{unknown, unknown, unknown},
			wantCalls: 3,
			wantErr:   true,
			wantClass: txn.Permanent,
		},
		{name: "transient conflict", replies: []error{conflict}, wantCalls: 1, wantErr: true, wantClass: txn.Retryable},
		{name: "permanent failure", replies: []error{duplicate}, wantCalls: 1, wantErr: true, wantClass: txn.Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			commit := func(context.Context) error {
				err := tt.replies[min(calls, len(tt.replies)-1)]
				calls++
				return err
			}

			err := commitUntilKnown(context.Background(), 2, commit)
			require.Equal(t, tt.wantCalls, calls)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Equal(t, tt.wantClass, txn.Classify(err))
		})
	}
}

func TestCursor(t *testing.T) {
	c := &cursor{docs: []bson.M{{"name": "neo"}, {"name": "trinity"}}, pos: -1}
	require.Nil(t, c.Record())

	var names []any
	for c.Next(context.Background()) {
		names = append(names, c.Record()["name"])
	}
	require.Equal(t, []any{"neo", "trinity"}, names)
	require.NoError(t, c.Err())
}
