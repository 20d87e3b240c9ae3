// Package database records presence changes in sqlite for reporting.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	dbconfig "presencerelay/pkg/database"
	"presencerelay/pkg/interfaces"
	"presencerelay/pkg/types"
)

var _ interfaces.Journal = (*Journal)(nil)

// ErrJournalClosed is returned by reads after Close.
var ErrJournalClosed = errors.New("journal is closed")

// Journal is the sqlite-backed presence log
// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention;
// PresenceChanged only enqueues so the hub never waits on disk
type Journal struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	timeout      time.Duration
	log          *zap.Logger

	closed bool
	mu     sync.RWMutex
}

// writeOperation is one queued write; failures are logged by the writer
type writeOperation struct {
	operation func(*sql.DB) error
}

// Open connects, migrates and starts the writer.
func Open(cfg *dbconfig.Config, queueSize int, timeout time.Duration, log *zap.Logger) (*Journal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid journal config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	db, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpen())
	if cfg.IsMemory() {
		// the database dies with its only connection
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}
	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema invalid: %w", err)
	}

	j := &Journal{
		db:           db,
		writeChannel: make(chan writeOperation, queueSize),
		shutdown:     make(chan struct{}),
		timeout:      timeout,
		log:          log,
	}

	j.wg.Add(1)
	go j.writeLoop()

	log.Info("presence journal opened", zap.String("path", cfg.DatabasePath))
	return j, nil
}

// writeLoop processes all write operations in a single goroutine
func (j *Journal) writeLoop() {
	defer j.wg.Done()

	for {
		select {
		case op := <-j.writeChannel:
			j.run(op)

		case <-j.shutdown:
			// FUNCTIONAL DISCOVERY: flush what was queued before shutdown
			for {
				select {
				case op := <-j.writeChannel:
					j.run(op)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) run(op writeOperation) {
	if err := op.operation(j.db); err != nil {
		j.log.Warn("journal write failed", zap.Error(err))
	}
}

// PresenceChanged queues the change without blocking. A full queue drops it.
func (j *Journal) PresenceChanged(change types.PresenceChange) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return
	}

	op := writeOperation{operation: func(db *sql.DB) error {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		return insert(ctx, db, change)
	}}

	select {
	case j.writeChannel <- op:
	default:
		j.log.Warn("journal queue full, dropping presence change",
			zap.String("kind", string(change.Kind)),
			zap.String("connection_id", change.Session.ConnectionID))
	}
}

func insert(ctx context.Context, db *sql.DB, change types.PresenceChange) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO presence_events (kind, connection_id, username, online_count, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		string(change.Kind),
		change.Session.ConnectionID,
		change.Session.DisplayName,
		change.OnlineCount,
		change.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert presence event: %w", err)
	}
	return nil
}

// Totals returns the number of recorded changes per kind. Kinds never seen count zero.
func (j *Journal) Totals(ctx context.Context) (map[types.PresenceKind]int, error) {
	if j.isClosed() {
		return nil, ErrJournalClosed
	}
	rows, err := j.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM presence_events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	totals := map[types.PresenceKind]int{
		types.PresenceJoined: 0,
		types.PresenceLeft:   0,
		types.PresenceReaped: 0,
	}
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan totals row: %w", err)
		}
		totals[types.PresenceKind(kind)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating totals rows: %w", err)
	}
	return totals, nil
}

// Recent returns up to limit changes, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]types.PresenceChange, error) {
	if j.isClosed() {
		return nil, ErrJournalClosed
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT kind, connection_id, username, online_count, occurred_at
		FROM presence_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var changes []types.PresenceChange
	for rows.Next() {
		var change types.PresenceChange
		var kind string
		if err := rows.Scan(&kind, &change.Session.ConnectionID, &change.Session.DisplayName, &change.OnlineCount, &change.At); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		change.Kind = types.PresenceKind(kind)
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return changes, nil
}

// HealthCheck validates database connectivity
func (j *Journal) HealthCheck(ctx context.Context) error {
	if j.isClosed() {
		return ErrJournalClosed
	}
	if err := j.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM presence_events").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

func (j *Journal) isClosed() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.closed
}

// Close flushes queued writes and closes the database. Safe to call repeatedly.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	close(j.shutdown)
	j.wg.Wait()

	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
