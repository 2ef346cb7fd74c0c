// Package postgres implements coach.Store on PostgreSQL using pgx.
package postgres

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silvergrove/coach"
)

// PGStore implements coach.Store backed by a pgx connection pool.
//
// PGStore is safe for concurrent use. Message sequence numbers are assigned
// inside transactions that lock the session row, so concurrent appends can
// never collide or reuse a seq.
type PGStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// New creates a PGStore. A nil logger falls back to slog.Default().
func New(db *pgxpool.Pool, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{db: db, logger: logger}
}

// Ensure PGStore implements coach.Store at compile time.
var _ coach.Store = (*PGStore)(nil)
