package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/silvergrove/coach"
)

// Edit leases are the cross-process form of the coordinator's single-flight
// guard: one row per session holding an owner token and an expiry. A lease
// whose expiry has passed is dead weight from a crashed client and can be
// taken over.

// AcquireEditLease takes or extends the session's edit lease for owner.
// Returns coach.ErrLeaseHeld when another owner holds an unexpired lease.
func (s *PGStore) AcquireEditLease(ctx context.Context, sessionID, owner string, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl)

	tag, err := s.db.Exec(ctx,
		`INSERT INTO coach_edit_leases (session_id, owner, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE
		 SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
		 WHERE coach_edit_leases.owner = EXCLUDED.owner
		    OR coach_edit_leases.expires_at < NOW()`,
		sessionID, owner, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("coach: acquire edit lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return coach.ErrLeaseHeld
	}

	s.logger.Debug("acquired edit lease", "session_id", sessionID, "owner", owner, "expires_at", expiresAt)
	return nil
}

// ReleaseEditLease drops the lease if owner still holds it. Releasing a
// lease that is gone, or that another owner took over after expiry, is not
// an error.
func (s *PGStore) ReleaseEditLease(ctx context.Context, sessionID, owner string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM coach_edit_leases WHERE session_id = $1 AND owner = $2`,
		sessionID, owner,
	)
	if err != nil {
		return fmt.Errorf("coach: release edit lease: %w", err)
	}
	return nil
}
