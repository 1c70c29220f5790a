package mongo

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/nikmy/graphtx/pkg/bookmark"
	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/mongotools"
	"github.com/nikmy/graphtx/pkg/txn"
)

const (
	commitRetries   = 3
	commitBaseDelay = 20 * time.Millisecond
)

var writeCommands = map[string]bool{
	"insert":        true,
	"update":        true,
	"delete":        true,
	"findAndModify": true,
}

type session struct {
	s    mongodrv.Session
	db   *mongodrv.Database
	mode txn.AccessMode
}

func (s *session) BeginTransaction(context.Context) (txn.Tx, error) {
	err := s.s.StartTransaction(
		options.Transaction().
			SetReadConcern(readconcern.Snapshot()).
			SetWriteConcern(writeconcern.Majority()).
			SetReadPreference(readpref.Primary()),
	)
	if err != nil {
		return nil, translate(err)
	}
	return &mongoTxn{session: s}, nil
}

func (s *session) Close(ctx context.Context) error {
	s.s.EndSession(ctx)
	return nil
}

type mongoTxn struct {
	session *session
}

// Run executes an extended JSON command template with params bound in.
func (t *mongoTxn) Run(ctx context.Context, statement string, params map[string]any) (txn.Cursor, error) {
	cmd, err := mongotools.Command(statement, params)
	if err != nil {
		return nil, err
	}

	name := mongotools.CommandName(cmd)
	if t.session.mode == txn.AccessModeRead && writeCommands[name] {
		return nil, errors.Errorf("%s command in a read transaction", name)
	}

	var reply bson.M
	sctx := mongodrv.NewSessionContext(ctx, t.session.s)
	err = t.session.db.RunCommand(sctx, cmd).Decode(&reply)
	if err != nil {
		return nil, translate(err)
	}

	return &cursor{docs: mongotools.Batch(reply), pos: -1}, nil
}

func (t *mongoTxn) Commit(ctx context.Context) (bookmark.Set, error) {
	err := commitUntilKnown(ctx, commitRetries, t.session.s.CommitTransaction)
	if err != nil {
		return bookmark.Set{}, err
	}
	return toBookmarks(t.session.s.OperationTime()), nil
}

// commitUntilKnown reruns only the commit command while the server reports
// that the outcome of the previous attempt is unknown.
func commitUntilKnown(ctx context.Context, retries uint64, commit func(context.Context) error) error {
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(commitBaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := commit(ctx)
		if hasLabel(err, labelUnknownCommitResult) {
			return retry.RetryableError(err)
		}
		return err
	})
	if hasLabel(err, labelUnknownCommitResult) {
		return errors.WrapFailf(err, "learn commit result after %d retries", retries)
	}
	return translate(err)
}

func (t *mongoTxn) Rollback(ctx context.Context) error {
	return translate(t.session.s.AbortTransaction(ctx))
}

type cursor struct {
	docs []bson.M
	pos  int
}

func (c *cursor) Next(context.Context) bool {
	if c.pos+1 >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *cursor) Record() map[string]any {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return nil
	}
	return c.docs[c.pos]
}

func (c *cursor) Err() error {
	return nil
}
