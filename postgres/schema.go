package postgres

import "context"

// CreateSchema applies all pending migrations. Delegates to Migrate for
// migration-based schema management.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	return s.Migrate(ctx)
}

// DropSchema drops all coach tables and the migrations tracking table.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		DROP TABLE IF EXISTS coach_migrations CASCADE;
		DROP TABLE IF EXISTS coach_request_logs CASCADE;
		DROP TABLE IF EXISTS coach_edit_leases CASCADE;
		DROP TABLE IF EXISTS coach_messages CASCADE;
		DROP TABLE IF EXISTS coach_sessions CASCADE;
	`)
	return err
}
