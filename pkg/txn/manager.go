package txn

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nikmy/graphtx/pkg/bookmark"
	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/logger"
)

const cleanupTimeout = time.Second

// Work is a unit of work. Nested units of work must pass tx on to
// WithTransaction as the outer transaction.
type Work func(ctx context.Context, tx *Context) error

type Option func(*Manager)

// WithBookmarkStore enables bookmark management. Without a store nothing is
// remembered between transactions: a root session opens with exactly
// Definition.Bookmarks, which is empty unless the caller set it with
// WithBookmarks, and committed bookmarks are only reported by Produced.
func WithBookmarkStore(store *bookmark.Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *Manager) {
		m.retry = p
	}
}

func WithLogger(log logger.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Manager) {
		m.meterProvider = mp
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		m.tracer = tp.Tracer(meterName)
	}
}

func NewManager(d Driver, opts ...Option) *Manager {
	m := &Manager{
		driver:        d,
		retry:         DefaultRetryPolicy(),
		log:           logger.NewStub(),
		meterProvider: otel.GetMeterProvider(),
		tracer:        otel.Tracer(meterName),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.log = m.log.With("txn")
	m.metrics = newTxnMetrics(m.log, m.meterProvider)
	return m
}

type Manager struct {
	driver Driver
	store  *bookmark.Store
	retry  RetryPolicy
	log    logger.Logger

	meterProvider metric.MeterProvider
	metrics       *txnMetrics
	tracer        trace.Tracer
}

func (m *Manager) BookmarkStore() *bookmark.Store {
	return m.store
}

// Begin joins outer when it is given, otherwise opens a new backend
// transaction seeded with the latest bookmarks known for the database.
func (m *Manager) Begin(ctx context.Context, outer *Context, def Definition) (*Context, error) {
	if outer != nil {
		return m.join(outer, def)
	}

	seed := def.Bookmarks
	if m.store != nil {
		seed = m.store.Get(def.Database).Union(def.Bookmarks)
	}

	session, err := m.driver.OpenSession(ctx, SessionConfig{
		AccessMode: def.Mode,
		Bookmarks:  seed,
		Database:   def.Database,
	})
	if err != nil {
		return nil, newError(nil, PhaseBegin, def.Database, errors.WrapFail(err, "open session"))
	}

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		m.closeSession(ctx, session, def.Database)
		return nil, newError(nil, PhaseBegin, def.Database, errors.WrapFail(err, "begin transaction"))
	}

	c := newContext(def, seed, session, tx)
	m.metrics.recordBegin(ctx, def.Database, def.Mode)
	m.log.Debugf("begin %s transaction %s on %q with bookmarks %s", def.Mode, c.id, def.Database, seed)
	return c, nil
}

func (m *Manager) join(outer *Context, def Definition) (*Context, error) {
	outer.mu.Lock()
	defer outer.mu.Unlock()

	if outer.status != StatusActive {
		return nil, newError(ErrTransactionNotActive, PhaseBegin, outer.database, nil)
	}
	if !outer.mode.serves(def.Mode) {
		return nil, newError(ErrIncompatibleTransactionMode, PhaseBegin, outer.database,
			errors.Errorf("%s work inside a %s transaction", def.Mode, outer.mode))
	}
	if def.Database != "" && def.Database != outer.database {
		return nil, newError(ErrIncompatibleTransactionMode, PhaseBegin, outer.database,
			errors.Errorf("work on %q inside a transaction on %q", def.Database, outer.database))
	}

	outer.depth++
	return outer, nil
}

// Commit finishes the caller's part of c. Only the outermost owner reaches
// the backend; participants just leave.
func (m *Manager) Commit(ctx context.Context, c *Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusActive {
		return newError(ErrTransactionNotActive, PhaseCommit, c.database, nil)
	}

	if c.depth > 0 {
		c.depth--
		if c.dirty {
			return newError(ErrUnexpectedRollback, PhaseCommit, c.database, nil)
		}
		return nil
	}

	if c.dirty || c.rollbackOnly {
		err := m.rollbackLocked(ctx, c)
		if c.dirty {
			m.log.Error(errors.WrapFailf(err, "roll back vetoed transaction %s", c.id))
			return newError(ErrUnexpectedRollback, PhaseCommit, c.database, nil)
		}
		return err
	}

	produced, err := c.tx.Commit(ctx)
	if err != nil {
		c.status = StatusFailed
		m.finishLocked(ctx, c)
		return newError(ErrCommitFailed, PhaseCommit, c.database, err)
	}

	c.status = StatusCommitted
	c.recordBookmarks(produced)
	m.finishLocked(ctx, c)
	m.updateStore(c)

	m.log.Debugf("committed transaction %s on %q, bookmarks %s", c.id, c.database, c.produced)
	return nil
}

// Rollback abandons the caller's part of c. A participant rolling back
// vetoes the owner's commit.
func (m *Manager) Rollback(ctx context.Context, c *Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusActive {
		return newError(ErrTransactionNotActive, PhaseRollback, c.database, nil)
	}

	if c.depth > 0 {
		c.depth--
		c.dirty = true
		return nil
	}

	return m.rollbackLocked(ctx, c)
}

// WithTransaction runs work inside a transaction described by def. With a
// nil outer it owns a new transaction and reruns work on transient failures;
// otherwise it participates in outer and never retries on its own.
func (m *Manager) WithTransaction(ctx context.Context, outer *Context, def Definition, work Work) error {
	if outer != nil {
		return m.participate(ctx, outer, def, work)
	}

	ctx, span := m.tracer.Start(ctx, "graphtx.unit_of_work", trace.WithAttributes(
		attribute.String("graphtx.database", databaseLabel(def.Database)),
		attribute.String("graphtx.mode", def.Mode.String()),
	))
	defer span.End()

	onRetry := func(attempt int, err error) {
		m.metrics.recordRetry(ctx, def.Database)
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("graphtx.attempt", attempt)))
		m.log.Warn(errors.Wrapf(err, "retrying unit of work on %q after attempt %d", def.Database, attempt))
	}

	attempts, exhausted, err := m.retry.run(ctx, onRetry, func(ctx context.Context) error {
		return m.own(ctx, def, work)
	})
	if exhausted {
		err = newError(ErrRetriesExhausted, PhaseRetry, def.Database, errors.Wrapf(err, "after %d attempts", attempts))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unit of work failed")
	}
	return err
}

// Query is WithTransaction for work that returns a value.
func Query[T any](
	ctx context.Context,
	m *Manager,
	outer *Context,
	def Definition,
	work func(ctx context.Context, tx *Context) (T, error),
) (T, error) {
	var result T
	err := m.WithTransaction(ctx, outer, def, func(ctx context.Context, tx *Context) error {
		var err error
		result, err = work(ctx, tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (m *Manager) own(ctx context.Context, def Definition, work Work) (err error) {
	tx, err := m.Begin(ctx, nil, def)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			m.abort(ctx, tx)
			panic(r)
		}
	}()

	err = work(ctx, tx)
	if err != nil {
		m.abort(ctx, tx)
		return err
	}

	// cancellation before commit is a rollback; after commit it is too late
	if ctxErr := ctx.Err(); ctxErr != nil {
		m.abort(ctx, tx)
		return newError(nil, PhaseCommit, def.Database, ctxErr)
	}

	return m.Commit(ctx, tx)
}

func (m *Manager) participate(ctx context.Context, outer *Context, def Definition, work Work) error {
	tx, err := m.Begin(ctx, outer, def)
	if err != nil {
		return err
	}

	err = work(ctx, tx)
	if err != nil {
		m.log.Error(errors.WrapFail(m.Rollback(ctx, tx), "leave participating transaction"))
		return err
	}

	return m.Commit(ctx, tx)
}

// abort rolls the backend transaction back on behalf of the owner no matter
// how many participants are still inside.
func (m *Manager) abort(ctx context.Context, c *Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusActive {
		return
	}

	c.depth = 0
	m.log.Error(errors.WrapFailf(m.rollbackLocked(ctx, c), "roll back transaction %s", c.id))
}

func (m *Manager) rollbackLocked(ctx context.Context, c *Context) error {
	rollbackCtx, cancel := cleanupContext(ctx)
	defer cancel()

	err := c.tx.Rollback(rollbackCtx)
	if err != nil {
		c.status = StatusFailed
		m.finishLocked(rollbackCtx, c)
		return newError(nil, PhaseRollback, c.database, err)
	}

	c.status = StatusRolledBack
	m.finishLocked(rollbackCtx, c)
	m.log.Debugf("rolled back transaction %s on %q", c.id, c.database)
	return nil
}

func (m *Manager) finishLocked(ctx context.Context, c *Context) {
	m.metrics.recordFinish(ctx, c)
	m.closeSession(ctx, c.session, c.database)
}

// updateStore runs after the backend acknowledged the commit. Store locks
// only cover the in-memory swap.
func (m *Manager) updateStore(c *Context) {
	if m.store == nil {
		return
	}

	if !c.produced.IsEmpty() {
		m.store.Update(c.database, c.seed, c.produced)
		return
	}
	m.store.Merge(c.database, c.supplied)
}

func (m *Manager) closeSession(ctx context.Context, s Session, database string) {
	closeCtx, cancel := cleanupContext(ctx)
	defer cancel()
	m.log.Error(errors.WrapFailf(s.Close(closeCtx), "close session on %q", database))
}

func cleanupContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), cleanupTimeout)
}
