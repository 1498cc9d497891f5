// Package postgres is a repository.Store backed by PostgreSQL through gorm.
// Units of work run in read-committed transactions; registrations and beliefs
// are read FOR UPDATE and written conditionally on their version.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/pkg/logger"
	"github.com/okian/admit/pkg/metrics"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const storeName = "postgres"

// Store implements repository.Store.
type Store struct {
	db  *gorm.DB
	log logger.Logger

	autoMigrate bool
	pingTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

var _ repository.Store = (*Store)(nil)

// Option configures Open.
type Option func(*Store)

// WithLogger sets the logger used for failed statements.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAutoMigrate creates or updates the schema on Open.
func WithAutoMigrate(enabled bool) Option {
	return func(s *Store) {
		s.autoMigrate = enabled
	}
}

// WithPingTimeout bounds the connectivity check made by Open.
func WithPingTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pingTimeout = d
		}
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	s, err := newStore(db, opts...)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if s.autoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return s, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	return newStore(db, opts...)
}

func newStore(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres: nil gorm handle")
	}
	s := &Store{
		db:          db,
		log:         logger.NewNop(),
		pingTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Migrate creates or updates every table and index.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return s.logError(ctx, "migrate", err)
	}
	return nil
}

// Name implements repository.Store.
func (s *Store) Name() string { return storeName }

// Atomic implements repository.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		fnErr = fn(ctx, &tx{db: gtx, s: s})
		return fnErr
	}, &sql.TxOptions{Isolation: sql.LevelReadCommitted})

	switch {
	case err == nil:
		metrics.RecordStoreTransaction(storeName, "committed", msSince(start))
		return nil
	case fnErr != nil:
		metrics.RecordStoreTransaction(storeName, "rolled_back", msSince(start))
		return fnErr
	}

	err = mapError(err)
	outcome := "error"
	if errors.Is(err, repository.ErrConcurrencyConflict) {
		outcome = "conflict"
	} else if errors.Is(err, sql.ErrConnDone) {
		err = repository.ErrClosed
	}
	metrics.RecordStoreTransaction(storeName, outcome, msSince(start))
	return err
}

// Close releases the connection pool. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		sqlDB, err := s.db.DB()
		if err != nil {
			s.closeErr = err
			return
		}
		s.closeErr = sqlDB.Close()
	})
	return s.closeErr
}

func (s *Store) logError(ctx context.Context, op string, err error, fields ...logger.Field) error {
	out := make([]logger.Field, 0, len(fields)+3)
	out = append(out,
		logger.String("op", op),
		logger.String("layer", "adapter"),
		logger.Error(err),
	)
	out = append(out, fields...)
	s.log.Error(ctx, "postgres operation failed", out...)
	return err
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
