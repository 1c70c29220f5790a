package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nikmy/graphtx/internal/api"
	"github.com/nikmy/graphtx/internal/driver/memory"
	"github.com/nikmy/graphtx/internal/driver/mongo"
	"github.com/nikmy/graphtx/internal/driver/neo4j"
	"github.com/nikmy/graphtx/internal/telemetry"
	"github.com/nikmy/graphtx/internal/users"
	"github.com/nikmy/graphtx/pkg/bookmark"
	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/logger"
	"github.com/nikmy/graphtx/pkg/txn"
)

type closer func(ctx context.Context) error

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		stdlog.Panic(errors.WrapFail(err, "load config"))
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		stdlog.Panic(errors.WrapFail(err, "init logger"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGABRT)
	defer cancel()

	tel, err := telemetry.New(ctx, cfg.Metrics, log)
	if err != nil {
		log.Panic(errors.WrapFail(err, "init telemetry"))
	}

	driver, dialect, closeDriver, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Panic(errors.WrapFailf(err, "open %s backend", cfg.Backend))
	}

	opts := []txn.Option{
		txn.WithLogger(log),
		txn.WithRetryPolicy(cfg.Retry),
		txn.WithMeterProvider(tel.MeterProvider()),
	}

	var store *bookmark.Store
	if cfg.Bookmarks.Enabled {
		store, err = bookmark.NewStore(cfg.Bookmarks.Capacity)
		if err != nil {
			log.Panic(errors.WrapFail(err, "init bookmark store"))
		}
		opts = append(opts, txn.WithBookmarkStore(store))
	}

	txm := txn.NewManager(driver, opts...)
	usersAPI := users.New(log, txm, users.NewRepo(dialect), cfg.Database)
	server := api.NewServer(cfg.API, log, usersAPI, store, tel.Handler())

	stopped := make(chan struct{})
	context.AfterFunc(ctx, func() {
		defer close(stopped)
		log.Infof("graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		log.Error(errors.Collapse(
			server.Shutdown(shutdownCtx),
			closeDriver(shutdownCtx),
			tel.Shutdown(shutdownCtx),
		))
	})

	log.Infof("serving %s backend on %s", cfg.Backend, cfg.API.HTTP.Addr)
	err = server.Serve(ctx)
	if err != nil && ctx.Err() == nil {
		log.Panic(errors.WrapFail(err, "serve http"))
	}

	<-stopped
	log.Infof("shutdown complete")
}

func openBackend(ctx context.Context, cfg *Config, log logger.Logger) (txn.Driver, users.Dialect, closer, error) {
	switch cfg.Backend {
	case BackendNeo4j:
		d, err := neo4j.Connect(ctx, cfg.Neo4j, log)
		if err != nil {
			return nil, users.Dialect{}, nil, err
		}
		return d, users.Cypher, d.Close, nil
	case BackendMongo:
		d, err := mongo.Connect(ctx, cfg.Mongo, log)
		if err != nil {
			return nil, users.Dialect{}, nil, err
		}
		return d, users.MongoCommands, d.Close, nil
	default:
		return memory.New(), users.Cypher, func(context.Context) error { return nil }, nil
	}
}
