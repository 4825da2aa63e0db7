package lock

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
)

// PostgresAdvisory implements ProjectLock on top of Postgres session-
// level advisory locks (pg_try_advisory_lock / pg_advisory_unlock). It
// takes a *sql.DB rather than a specific driver so the caller picks the
// driver import; this package never imports one itself.
//
// Session-level advisory locks are tied to the connection that took
// them, so every call on one PostgresAdvisory must run on the same
// *sql.Conn. A pooled *sql.DB would silently hand TryAcquire and
// Release to different physical connections and the unlock would
// never find the lock it meant to release.
type PostgresAdvisory struct {
	db   *sql.DB
	mu   sync.Mutex
	conn *sql.Conn
	ctx  context.Context
}

// NewPostgresAdvisory pins a single connection from db for the lifetime
// of the returned lock.
func NewPostgresAdvisory(ctx context.Context, db *sql.DB) (*PostgresAdvisory, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresAdvisory{db: db, conn: conn, ctx: ctx}, nil
}

func (p *PostgresAdvisory) TryAcquire(projectID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var acquired bool
	key := HashProjectID(projectID)
	row := p.conn.QueryRowContext(p.ctx, "SELECT pg_try_advisory_lock($1)", key)
	if err := row.Scan(&acquired); err != nil {
		return false, err
	}
	return acquired, nil
}

func (p *PostgresAdvisory) Release(projectID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := HashProjectID(projectID)
	_, err := p.conn.ExecContext(p.ctx, "SELECT pg_advisory_unlock($1)", key)
	return err
}

// Close releases the pinned connection back to the pool.
func (p *PostgresAdvisory) Close() error {
	return p.conn.Close()
}
