package neo4j

import (
	"cmp"
	"context"
	"time"

	neo4jgo "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sethvargo/go-retry"

	"github.com/nikmy/graphtx/pkg/bookmark"
	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/logger"
	"github.com/nikmy/graphtx/pkg/txn"
)

const connectBaseDelay = 100 * time.Millisecond

// Connect creates the driver and waits until the server answers, backing
// off between attempts.
func Connect(ctx context.Context, cfg Config, log logger.Logger) (*Driver, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, errors.WrapFail(err, "validate neo4j config")
	}

	log = log.With("neo4j")
	auth := neo4jgo.BasicAuth(cfg.Auth.Username, cfg.Auth.Password, "")
	configure := func(c *neo4jgo.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		if cfg.ConnectionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
		}
		if cfg.MaxTransactionRetryTime > 0 {
			c.MaxTransactionRetryTime = cfg.MaxTransactionRetryTime
		}
	}

	backoff := retry.NewExponential(connectBaseDelay)
	if cfg.ConnectionTimeout > 0 {
		backoff = retry.WithCappedDuration(cfg.ConnectionTimeout, backoff)
	}
	backoff = retry.WithMaxRetries(cfg.ConnectRetries, backoff)

	var d neo4jgo.DriverWithContext
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		d, err = neo4jgo.NewDriverWithContext(cfg.URI, auth, configure)
		if err != nil {
			return errors.WrapFail(err, "create neo4j driver")
		}

		err = d.VerifyConnectivity(ctx)
		if err != nil {
			log.Warn(errors.WrapFailf(err, "reach %s", cfg.URI))
			_ = d.Close(ctx)
			return retry.RetryableError(translate(err))
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapFail(err, "connect to neo4j")
	}

	log.Infof("connected to %s", cfg.URI)
	return &Driver{driver: d, database: cfg.Database}, nil
}

// Driver opens neo4j sessions for the transaction manager.
type Driver struct {
	driver   neo4jgo.DriverWithContext
	database string
}

func (d *Driver) OpenSession(ctx context.Context, cfg txn.SessionConfig) (txn.Session, error) {
	s := d.driver.NewSession(ctx, sessionConfig(cfg, d.database))
	return &session{s: s}, nil
}

func (d *Driver) Close(ctx context.Context) error {
	return errors.WrapFail(d.driver.Close(ctx), "close neo4j driver")
}

func sessionConfig(cfg txn.SessionConfig, defaultDatabase string) neo4jgo.SessionConfig {
	return neo4jgo.SessionConfig{
		AccessMode:   accessMode(cfg.AccessMode),
		Bookmarks:    neo4jgo.BookmarksFromRawValues(cfg.Bookmarks.Strings()...),
		DatabaseName: cmp.Or(cfg.Database, defaultDatabase),
	}
}

func accessMode(m txn.AccessMode) neo4jgo.AccessMode {
	if m == txn.AccessModeRead {
		return neo4jgo.AccessModeRead
	}
	return neo4jgo.AccessModeWrite
}

type session struct {
	s neo4jgo.SessionWithContext
}

func (s *session) BeginTransaction(ctx context.Context) (txn.Tx, error) {
	tx, err := s.s.BeginTransaction(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return &transaction{session: s.s, tx: tx}, nil
}

func (s *session) Close(ctx context.Context) error {
	return translate(s.s.Close(ctx))
}

type transaction struct {
	session neo4jgo.SessionWithContext
	tx      neo4jgo.ExplicitTransaction
}

func (t *transaction) Run(ctx context.Context, statement string, params map[string]any) (txn.Cursor, error) {
	res, err := t.tx.Run(ctx, statement, params)
	if err != nil {
		return nil, translate(err)
	}
	return &cursor{res: res}, nil
}

// Commit returns the bookmarks the session holds after the commit, which
// the server issued for this transaction.
func (t *transaction) Commit(ctx context.Context) (bookmark.Set, error) {
	err := t.tx.Commit(ctx)
	if err != nil {
		return bookmark.Set{}, translate(err)
	}
	return fromNeo4j(t.session.LastBookmarks()), nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	return translate(t.tx.Rollback(ctx))
}

type cursor struct {
	res neo4jgo.ResultWithContext
}

func (c *cursor) Next(ctx context.Context) bool {
	return c.res.Next(ctx)
}

func (c *cursor) Record() map[string]any {
	rec := c.res.Record()
	if rec == nil {
		return nil
	}
	return rec.AsMap()
}

func (c *cursor) Err() error {
	return translate(c.res.Err())
}

func fromNeo4j(b neo4jgo.Bookmarks) bookmark.Set {
	return bookmark.FromStrings(neo4jgo.BookmarksToRawValues(b)...)
}

// translate marks the errors the server or the driver consider safe to
// retry. Lost connections are also reported as an unavailable backend.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case neo4jgo.IsConnectivityError(err):
		return txn.Transient(txn.Unavailable(err))
	case neo4jgo.IsRetryable(err):
		return txn.Transient(err)
	default:
		return err
	}
}
