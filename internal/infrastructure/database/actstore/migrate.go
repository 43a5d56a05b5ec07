package actstore

import "context"

// Migrate creates the acts, act_metadata, and data_update_errors tables if
// they do not already exist, then ensures the supporting error-retention
// index. It is safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*actModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return toAppErr(err, "failed to create acts table")
	}

	if _, err := s.db.NewCreateTable().Model((*actMetadataModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return toAppErr(err, "failed to create act_metadata table")
	}

	if _, err := s.db.NewCreateTable().Model((*dataUpdateErrorModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return toAppErr(err, "failed to create data_update_errors table")
	}

	return s.EnsureErrorIndex(ctx)
}
