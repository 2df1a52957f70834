package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/servorahq/servora/internal/config"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/types"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// pgSerializationFailure is the SQLSTATE raised when serializable transactions
// cannot be linearized.
const pgSerializationFailure = "40001"

const serializationRetries = 3

// IClient defines the interface for postgres client operations. It is the only
// gateway to the underlying store; every repository is polymorphic over it.
type IClient interface {
	// WithTx wraps the given function in a serializable transaction. Nested
	// calls reuse the transaction already carried by the context.
	WithTx(ctx context.Context, fn func(context.Context) error) error

	// WithRetryableTx behaves like WithTx but re-runs the whole function when
	// the store reports a serialization conflict, up to 3 attempts.
	WithRetryableTx(ctx context.Context, fn func(context.Context) error) error

	// TxFromContext returns the transaction from context if it exists
	TxFromContext(ctx context.Context) *gorm.DB

	// Querier returns the current transaction handle if in a transaction, or
	// the regular handle
	Querier(ctx context.Context) *gorm.DB
}

// Client wraps gorm.DB to provide transaction management
type Client struct {
	db     *gorm.DB
	logger *logger.Logger
}

// NewDB opens the postgres connection pool.
func NewDB(cfg *config.Configuration, log *logger.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
	if cfg.Deployment.Mode == types.ModeLocal {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.Postgres.GetDSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetimeMinutes) * time.Minute)

	return db, nil
}

// NewClient creates a new client wrapper with transaction management
func NewClient(db *gorm.DB, log *logger.Logger) IClient {
	return &Client{
		db:     db,
		logger: log,
	}
}

// WithTx wraps the given function in a transaction
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// If we're already in a transaction, reuse it and do not start a new one
	// or commit it
	if tx := c.TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	tx := c.db.WithContext(ctx).Begin(&sql.TxOptions{Isolation: sql.LevelSerializable})
	if tx.Error != nil {
		return ierr.WithError(tx.Error).
			WithMessage("starting transaction").
			Mark(ierr.ErrDatabase)
	}

	// Ensure transaction is rolled back on panic
	defer func() {
		if v := recover(); v != nil {
			c.logger.Errorw("rolling back transaction due to panic", "panic", v)
			_ = tx.Rollback()
			panic(v)
		}
	}()

	txCtx := context.WithValue(ctx, types.CtxDBTransaction, tx)

	if err := fn(txCtx); err != nil {
		if rerr := tx.Rollback().Error; rerr != nil {
			c.logger.Errorw("rolling back transaction", "error", rerr)
		}
		return markSerialization(err)
	}

	if err := tx.Commit().Error; err != nil {
		c.logger.Errorw("committing transaction", "error", err)
		return markSerialization(ierr.WithError(err).
			WithMessage("committing transaction").
			Mark(ierr.ErrDatabase))
	}

	return nil
}

// WithRetryableTx retries serialization conflicts with a short exponential
// backoff; everything else surfaces immediately.
func (c *Client) WithRetryableTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// A nested call is already covered by the outer retry loop.
	if tx := c.TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(50*time.Millisecond)),
		serializationRetries-1,
	), ctx)

	return backoff.Retry(func() error {
		err := c.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if ierr.IsLedgerConflict(err) {
			c.logger.Warnw("retrying transaction after serialization conflict",
				"error", err)
			return err
		}
		return backoff.Permanent(err)
	}, bo)
}

// TxFromContext returns the transaction from context if it exists
func (c *Client) TxFromContext(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(types.CtxDBTransaction).(*gorm.DB); ok {
		return tx
	}
	return nil
}

// Querier returns the current transaction handle if in a transaction, or the
// regular handle
func (c *Client) Querier(ctx context.Context) *gorm.DB {
	if tx := c.TxFromContext(ctx); tx != nil {
		return tx
	}
	return c.db.WithContext(ctx)
}

// markSerialization tags postgres serialization failures so callers can retry
// the whole transaction.
func markSerialization(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure {
		return ierr.WithError(err).
			WithHint("The operation conflicted with a concurrent change, please retry").
			Mark(ierr.ErrLedgerConflict)
	}
	return err
}
