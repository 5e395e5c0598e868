// Package postgres implements the PostgreSQL persistence layer for the
// course access hub: catalog snapshots, per-lesson progress with module and
// course roll-ups, authorization grants and the request queue.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

var (
	// ErrConnectionClosed indicates the connection pool is closed.
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")

	// ErrMigrationFailed indicates a migration failure.
	ErrMigrationFailed = errors.New("postgres: migration failed")

	// ErrTransactionFailed indicates a transaction failure.
	ErrTransactionFailed = errors.New("postgres: transaction failed")

	// ErrNoRows is returned when a query returns no rows.
	ErrNoRows = pgx.ErrNoRows
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION POOL
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the connection settings used when no DATABASE_URL is given.
// Pool sizing applies in both cases.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration

	// QueryTimeout bounds every statement issued through the connection.
	// Zero disables the deadline.
	QueryTimeout time.Duration
}

// DefaultConfig returns settings suitable for local development.
func DefaultConfig() Config {
	return Config{
		Host:              "localhost",
		Port:              5432,
		Database:          "curso_access",
		User:              "postgres",
		SSLMode:           "prefer",
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
		QueryTimeout:      30 * time.Second,
	}
}

func (c Config) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}

// Connection wraps a pgx pool and guards it against use after Close.
// Every statement runs under the configured query deadline; expiry and
// broken connections surface through the shared storage error kinds.
type Connection struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
	closed       bool
	mu           sync.RWMutex
}

// NewConnection opens a pool from component settings and verifies it with a ping.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse connection settings: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	return openPool(ctx, poolCfg, cfg.QueryTimeout)
}

// NewConnectionFromURL opens a pool from a postgres:// URL and verifies it
// with a ping. Pool sizing not present in the URL falls back to the defaults.
func NewConnectionFromURL(ctx context.Context, databaseURL string) (*Connection, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database URL: %w", err)
	}

	def := DefaultConfig()
	if poolCfg.MaxConns == 0 {
		poolCfg.MaxConns = def.MaxConns
	}
	if poolCfg.MinConns == 0 {
		poolCfg.MinConns = def.MinConns
	}
	poolCfg.MaxConnLifetime = def.MaxConnLifetime
	poolCfg.MaxConnIdleTime = def.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = def.HealthCheckPeriod

	return openPool(ctx, poolCfg, def.QueryTimeout)
}

func openPool(ctx context.Context, poolCfg *pgxpool.Config, queryTimeout time.Duration) (*Connection, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Connection{pool: pool, queryTimeout: queryTimeout}, nil
}

// WithQueryTimeout overrides the per-statement deadline. Zero disables it.
func (c *Connection) WithQueryTimeout(d time.Duration) *Connection {
	c.queryTimeout = d
	return c
}

// deadline derives the statement context. The returned cancel must run once
// the statement's results are fully consumed.
func (c *Connection) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.queryTimeout)
}

// Pool exposes the underlying pgx pool.
func (c *Connection) Pool() *pgxpool.Pool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}

// Close releases the pool. Safe to call more than once.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.pool.Close()
}

// Ping verifies the database is reachable.
func (c *Connection) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}
	return c.pool.Ping(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES AND TRANSACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Querier is satisfied by both the pool and a transaction, so statement
// helpers can run inside or outside WithTx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Exec runs a statement that returns no rows.
func (c *Connection) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return pgconn.CommandTag{}, ErrConnectionClosed
	}

	qctx, cancel := c.deadline(ctx)
	defer cancel()
	tag, err := c.pool.Exec(qctx, sql, args...)
	return tag, mapStorageErr(err)
}

// Query runs a statement that returns rows. The deadline stays in force
// until the caller closes the rows.
func (c *Connection) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}

	qctx, cancel := c.deadline(ctx)
	rows, err := c.pool.Query(qctx, sql, args...)
	if err != nil {
		cancel()
		return nil, mapStorageErr(err)
	}
	return &deadlineRows{Rows: rows, cancel: cancel}, nil
}

// QueryRow runs a statement that returns at most one row. The deadline is
// released when the row is scanned.
func (c *Connection) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	c.mu.RLock()
	defer c.mu.RUnlock()

	qctx, cancel := c.deadline(ctx)
	return &deadlineRow{row: c.pool.QueryRow(qctx, sql, args...), cancel: cancel}
}

// deadlineRows keeps the statement deadline alive while the caller iterates
// and releases it on Close.
type deadlineRows struct {
	pgx.Rows
	cancel context.CancelFunc
}

func (r *deadlineRows) Close() {
	r.Rows.Close()
	r.cancel()
}

func (r *deadlineRows) Err() error {
	return mapStorageErr(r.Rows.Err())
}

type deadlineRow struct {
	row    pgx.Row
	cancel context.CancelFunc
}

func (r *deadlineRow) Scan(dest ...interface{}) error {
	defer r.cancel()
	return mapStorageErr(r.row.Scan(dest...))
}

// TxOptions selects the isolation and access mode for WithTx.
type TxOptions struct {
	IsoLevel       pgx.TxIsoLevel
	AccessMode     pgx.TxAccessMode
	DeferrableMode pgx.TxDeferrableMode
}

// DefaultTxOptions is read-committed read-write, which every write path
// here runs under.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic. The request resolution paths rely on this to keep the
// status flip and the grant insert atomic.
func (c *Connection) WithTx(ctx context.Context, opts TxOptions, fn func(pgx.Tx) error) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}

	qctx, cancel := c.deadline(ctx)
	defer cancel()

	tx, err := c.pool.BeginTx(qctx, pgx.TxOptions{
		IsoLevel:       opts.IsoLevel,
		AccessMode:     opts.AccessMode,
		DeferrableMode: opts.DeferrableMode,
	})
	c.mu.RUnlock()
	if err != nil {
		if mapped := mapStorageErr(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(qctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		err = mapStorageErr(err)
		if rbErr := tx.Rollback(qctx); rbErr != nil {
			return fmt.Errorf("tx error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(qctx); err != nil {
		return fmt.Errorf("commit error: %w", mapStorageErr(err))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema step.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded schema steps in version order, tracking
// them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

const migrationTable = "schema_migrations"

// NewMigrator returns a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationTable+` (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("postgres: create %s: %w", migrationTable, err)
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx,
		"SELECT version, applied_at FROM "+migrationTable+" ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("postgres: read %s: %w", migrationTable, err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version   int
			appliedAt time.Time
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", migrationTable, err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies every pending migration, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: version %d has no up SQL", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO "+migrationTable+" (version, name) VALUES ($1, $2)",
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}

	return nil
}

// Rollback reverts the most recently applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	var last int
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil || target.DownSQL == "" {
		return fmt.Errorf("%w: version %d has no down SQL", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, target.DownSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "DELETE FROM "+migrationTable+" WHERE version = $1", last)
		return err
	})
}

// Status reports every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// GetMigrations returns the embedded schema steps in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_catalog", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_progress", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_authorization", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// IsUniqueViolation reports whether err is a unique constraint violation.
// The partial index on pending requests surfaces duplicates through this.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// mapStorageErr translates low-level failures into the storage error
// taxonomy the transport layer turns into 503 responses. Deadline expiry
// and server-side statement cancellation become ErrTimeout, unreachable
// databases become ErrStorageUnavailable. Anything else, pgx.ErrNoRows
// included, passes through untouched.
func mapStorageErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return shared.WrapError("storage", "Query", shared.ErrTimeout, "query deadline exceeded", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "57014" {
		return shared.WrapError("storage", "Query", shared.ErrTimeout, "statement cancelled by the server", err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return shared.WrapError("storage", "Query", shared.ErrStorageUnavailable, "database unreachable", err)
	}

	return err
}
