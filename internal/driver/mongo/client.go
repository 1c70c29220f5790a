package mongo

import (
	"cmp"
	"context"

	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/logger"
	"github.com/nikmy/graphtx/pkg/txn"
)

func Connect(ctx context.Context, cfg Config, log logger.Logger) (*Driver, error) {
	opts := options.Client().
		ApplyURI(cfg.URL).
		SetTimeout(cfg.Timeout)
	if cfg.Auth.Username != "" {
		opts.SetAuth(options.Credential{
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
		})
	}
	if cfg.Pool.MinSize > 0 {
		opts.SetMinPoolSize(cfg.Pool.MinSize)
	}
	if cfg.Pool.MaxSize > 0 {
		opts.SetMaxPoolSize(cfg.Pool.MaxSize)
	}

	client, err := mongodrv.Connect(ctx, opts)
	if err != nil {
		return nil, errors.WrapFail(translate(err), "connect to mongo db")
	}

	err = client.Ping(ctx, readpref.Primary())
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.WrapFail(translate(err), "ping mongo db")
	}

	log.With("mongo").Infof("connected to %s", cfg.Database)
	return &Driver{client: client, database: cfg.Database}, nil
}

// Driver opens causally consistent mongo sessions for the transaction
// manager. A bookmark is the operation time of a committed transaction.
type Driver struct {
	client   *mongodrv.Client
	database string
}

func (d *Driver) OpenSession(_ context.Context, cfg txn.SessionConfig) (txn.Session, error) {
	after, err := latest(cfg.Bookmarks)
	if err != nil {
		return nil, errors.WrapFail(err, "read bookmarks")
	}

	s, err := d.client.StartSession(options.Session().SetCausalConsistency(true))
	if err != nil {
		return nil, errors.WrapFail(translate(err), "start session")
	}

	if after != nil {
		err = s.AdvanceOperationTime(after)
		if err != nil {
			s.EndSession(context.Background())
			return nil, errors.WrapFail(err, "advance operation time")
		}
	}

	return &session{
		s:    s,
		db:   d.client.Database(cmp.Or(cfg.Database, d.database)),
		mode: cfg.AccessMode,
	}, nil
}

func (d *Driver) Close(ctx context.Context) error {
	return errors.WrapFail(d.client.Disconnect(ctx), "disconnect from mongo db")
}
