// Package database implements interfaces.Store on SQLite.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"eduhub/internal/logger"
	dbconfig "eduhub/pkg/database"
	"eduhub/pkg/interfaces"
)

var _ interfaces.Store = (*Manager)(nil)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("database manager is closed")

// Manager owns the SQLite handle. Reads run concurrently on the pool; every
// write is funnelled through one goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	retryDelay   time.Duration
	log          *slog.Logger
}

type writeOperation struct {
	ctx       context.Context
	operation func(ctx context.Context, db *sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pending migrations, validates the
// schema and starts the writer.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite pragmas: %w", err)
	}

	log := logger.Component("database")

	applied, err := dbconfig.NewEmbeddedMigrationManager(db).ApplyMigrations()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if len(applied) > 0 {
		log.Info("applied migrations", slog.Any("versions", applied))
	}

	if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   250 * time.Millisecond,
		log:          log,
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine. A failed
// write is retried once unless it violated a constraint or its context is done.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(op.ctx, m.db)
			if err != nil && retryable(op.ctx, err) {
				m.log.Warn("database write failed, retrying", slog.Any("error", err))
				time.Sleep(m.retryDelay)
				err = op.operation(op.ctx, m.db)
				if err != nil {
					m.log.Error("database write failed after retry", slog.Any("error", err))
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.log.Debug("database write loop shutting down")
			return
		}
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || isConstraintViolation(err) {
		return false
	}
	return !errors.Is(err, interfaces.ErrNotFound)
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(ctx context.Context, db *sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{ctx: ctx, operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isConstraintViolation reports a SQLite constraint error of any kind.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// isUniqueViolation reports a UNIQUE or PRIMARY KEY violation.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// DB returns the underlying handle for migrations and tooling.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Close stops the writer and closes the handle. Safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return nullString(*s)
}
