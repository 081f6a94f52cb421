// Package sqlstore implements the SQLite-backed channel store and index on
// database/sql with the modernc.org/sqlite driver.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultIdleTimeout is how long a connection may sit unused before the
// manager closes it. The next caller reopens transparently.
const DefaultIdleTimeout = 5 * time.Minute

const idleSweepInterval = 30 * time.Second

// ConnManager hands out a lazily opened *sql.DB and closes it again after a
// period of disuse. Callers must not retain the handle across calls.
type ConnManager struct {
	path        string
	idleTimeout time.Duration
	onOpen      func(db *sql.DB) error

	mu       sync.Mutex
	db       *sql.DB
	lastUsed time.Time
	closed   bool

	done chan struct{}
}

// NewConnManager creates a manager for the database at path. onOpen runs
// once per (re)open, after the pragmas are set; it is where schema
// migrations belong. A nil onOpen is allowed.
func NewConnManager(path string, idleTimeout time.Duration, onOpen func(db *sql.DB) error) *ConnManager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	m := &ConnManager{
		path:        path,
		idleTimeout: idleTimeout,
		onOpen:      onOpen,
		done:        make(chan struct{}),
	}
	go m.sweepIdle()
	return m
}

// DB returns an open database handle, opening a fresh connection if none is
// live. Every call stamps the idle clock.
func (m *ConnManager) DB() (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("sqlstore: connection manager closed")
	}
	if m.db != nil {
		m.lastUsed = time.Now()
		return m.db, nil
	}

	db, err := m.open()
	if err != nil {
		return nil, err
	}
	m.db = db
	m.lastUsed = time.Now()
	return db, nil
}

func (m *ConnManager) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", m.path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open DB: %w", err)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: enable FK: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: set busy_timeout: %w", err)
	}

	if m.onOpen != nil {
		if err := m.onOpen(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// sweepIdle closes the connection once it has been idle for the timeout.
func (m *ConnManager) sweepIdle() {
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.db != nil && time.Since(m.lastUsed) >= m.idleTimeout {
				slog.Debug("closing idle database connection", "path", m.path)
				if err := m.db.Close(); err != nil {
					slog.Warn("failed to close idle database connection", "path", m.path, "err", err)
				}
				m.db = nil
			}
			m.mu.Unlock()
		}
	}
}

// Close stops the idle sweeper and closes any live connection. The manager
// cannot be reused afterwards.
func (m *ConnManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)

	if m.db == nil {
		return nil
	}
	db := m.db
	m.db = nil
	if err := db.Close(); err != nil {
		return fmt.Errorf("sqlstore: close DB: %w", err)
	}
	return nil
}
