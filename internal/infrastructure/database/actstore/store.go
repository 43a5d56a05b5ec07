package actstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/liverty-music/actcache/internal/entity"
	"github.com/pannpers/go-apperr/apperr"
	"github.com/pannpers/go-apperr/apperr/codes"
	"github.com/pannpers/go-logging/logging"
	"github.com/uptrace/bun"
)

// probeID is the reserved sentinel id written and deleted by Probe.
const probeID = "__actcache_probe__"

// errorRetention is the TTL-substitute window for data_update_errors.
// Postgres has no native TTL index (unlike the MongoDB backend the
// contract was originally written against), so rows past this window are
// deleted opportunistically on every LogError call and filtered out of
// every RecentErrors read, rather than expired by a background job.
const errorRetention = 7 * 24 * time.Hour

// Store implements entity.ActStore against PostgreSQL via bun.
type Store struct {
	db     *bun.DB
	logger *logging.Logger
}

// Get returns the cached act record for id, or (nil, false) if absent.
func (s *Store) Get(ctx context.Context, id string) (*entity.Act, bool, error) {
	var row actModel
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, toAppErr(err, "failed to get act", slog.String("id", id))
	}

	act, err := fromModel(&row)
	if err != nil {
		return nil, false, apperr.Wrap(err, codes.Internal, "failed to decode cached act", slog.String("id", id))
	}
	return act, true, nil
}

// Put upserts act by its ID and best-effort increments its
// UpdatesSinceLastRequest counter.
func (s *Store) Put(ctx context.Context, act *entity.Act) error {
	row, err := toModel(act)
	if err != nil {
		return apperr.Wrap(err, codes.InvalidArgument, "failed to encode act", slog.String("id", act.ID))
	}

	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("country = EXCLUDED.country").
		Set("region = EXCLUDED.region").
		Set("disambiguation = EXCLUDED.disambiguation").
		Set("ended = EXCLUDED.ended").
		Set("status = EXCLUDED.status").
		Set("relations = EXCLUDED.relations").
		Set("events = EXCLUDED.events").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return toAppErr(err, "failed to put act", slog.String("id", act.ID))
	}

	if err := s.bumpUpdateCounter(ctx, act.ID); err != nil {
		s.logger.Warn(ctx, "failed to bump update counter", slog.String("id", act.ID), slog.Any("err", err))
	}

	return nil
}

func (s *Store) bumpUpdateCounter(ctx context.Context, id string) error {
	meta := &actMetadataModel{ID: id, LastRequestedAt: time.Now(), UpdatesSinceLastRequest: 1}
	_, err := s.db.NewInsert().
		Model(meta).
		On("CONFLICT (id) DO UPDATE").
		Set("updates_since_last_request = act_metadata.updates_since_last_request + 1").
		Exec(ctx)
	return err
}

// Probe performs a write-then-delete round trip against a reserved
// sentinel id.
func (s *Store) Probe(ctx context.Context) error {
	row := &actModel{
		ID:        probeID,
		Name:      "probe",
		Status:    "probe",
		Relations: json.RawMessage("null"),
		Events:    json.RawMessage("[]"),
		UpdatedAt: time.Now().Format(time.RFC3339),
	}

	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return toAppErr(err, "probe write failed")
	}

	if _, err := s.db.NewDelete().Model((*actModel)(nil)).Where("id = ?", probeID).Exec(ctx); err != nil {
		return toAppErr(err, "probe cleanup failed")
	}

	return nil
}

// ListAllIds returns every cached act id, sorted, excluding the probe sentinel.
func (s *Store) ListAllIds(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*actModel)(nil)).
		Column("id").
		Where("id != ?", probeID).
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, toAppErr(err, "failed to list act ids")
	}
	return ids, nil
}

// ListAllWithMeta returns every cached act's id and updatedAt, sorted by id.
func (s *Store) ListAllWithMeta(ctx context.Context) ([]entity.ActMetaSummary, error) {
	var rows []struct {
		ID        string `bun:"id"`
		UpdatedAt string `bun:"updated_at"`
	}
	err := s.db.NewSelect().
		Model((*actModel)(nil)).
		Column("id", "updated_at").
		Where("id != ?", probeID).
		Order("id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, toAppErr(err, "failed to list acts with metadata")
	}

	summaries := make([]entity.ActMetaSummary, len(rows))
	for i, r := range rows {
		summaries[i] = entity.ActMetaSummary{ID: r.ID, UpdatedAt: r.UpdatedAt}
	}
	return summaries, nil
}

// ListWithoutBandsintown returns ids of acts whose relations has no
// "bandsintown" key (or a null/empty one).
func (s *Store) ListWithoutBandsintown(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*actModel)(nil)).
		Column("id").
		Where("id != ?", probeID).
		Where("relations IS NULL OR NOT (relations ? 'bandsintown')").
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, toAppErr(err, "failed to list acts without bandsintown relation")
	}
	return ids, nil
}

// TouchLastRequested sets LastRequestedAt := now() and
// UpdatesSinceLastRequest := 0 for each id, upserting metadata rows as needed.
func (s *Store) TouchLastRequested(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]*actMetadataModel, len(ids))
	for i, id := range ids {
		rows[i] = &actMetadataModel{ID: id, LastRequestedAt: now, UpdatesSinceLastRequest: 0}
	}

	_, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("last_requested_at = EXCLUDED.last_requested_at").
		Set("updates_since_last_request = 0").
		Exec(ctx)
	if err != nil {
		return toAppErr(err, "failed to touch last-requested metadata")
	}
	return nil
}

// EvictInactive deletes every act (and its metadata) whose
// UpdatesSinceLastRequest has reached threshold, and returns the count deleted.
func (s *Store) EvictInactive(ctx context.Context, threshold int) (int, error) {
	var staleIDs []string
	err := s.db.NewSelect().
		Model((*actMetadataModel)(nil)).
		Column("id").
		Where("updates_since_last_request >= ?", threshold).
		Scan(ctx, &staleIDs)
	if err != nil {
		return 0, toAppErr(err, "failed to find inactive acts")
	}
	if len(staleIDs) == 0 {
		return 0, nil
	}

	res, err := s.db.NewDelete().Model((*actModel)(nil)).Where("id IN (?)", bun.In(staleIDs)).Exec(ctx)
	if err != nil {
		return 0, toAppErr(err, "failed to delete inactive acts")
	}

	if _, err := s.db.NewDelete().Model((*actMetadataModel)(nil)).Where("id IN (?)", bun.In(staleIDs)).Exec(ctx); err != nil {
		return 0, toAppErr(err, "failed to delete inactive act metadata")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return len(staleIDs), nil
	}
	return int(affected), nil
}

// ClearAll removes every cached act record.
func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.db.NewDelete().Model((*actModel)(nil)).Where("1 = 1").Exec(ctx); err != nil {
		return toAppErr(err, "failed to clear acts")
	}
	if _, err := s.db.NewDelete().Model((*actMetadataModel)(nil)).Where("1 = 1").Exec(ctx); err != nil {
		return toAppErr(err, "failed to clear act metadata")
	}
	return nil
}

// LogError journals an UpdateError and opportunistically deletes entries
// older than errorRetention.
func (s *Store) LogError(ctx context.Context, e *entity.UpdateError) error {
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return apperr.Wrap(err, codes.Internal, "failed to generate update error id")
		}
		e.ID = id.String()
	}

	row := &dataUpdateErrorModel{
		ID:           e.ID,
		ActID:        e.ActID,
		Timestamp:    e.Timestamp,
		ErrorMessage: e.ErrorMessage,
		ErrorSource:  string(e.ErrorSource),
		CreatedAt:    e.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}

	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return toAppErr(err, "failed to log update error", slog.String("actId", e.ActID))
	}

	cutoff := time.Now().Add(-errorRetention)
	if _, err := s.db.NewDelete().Model((*dataUpdateErrorModel)(nil)).Where("created_at < ?", cutoff).Exec(ctx); err != nil {
		s.logger.Warn(ctx, "failed to prune expired update errors", slog.Any("err", err))
	}

	return nil
}

// RecentErrors returns UpdateError entries from within the last 7 days,
// most recent first.
func (s *Store) RecentErrors(ctx context.Context) ([]entity.UpdateError, error) {
	cutoff := time.Now().Add(-errorRetention)

	var rows []dataUpdateErrorModel
	err := s.db.NewSelect().
		Model(&rows).
		Where("created_at >= ?", cutoff).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, toAppErr(err, "failed to list recent update errors")
	}

	out := make([]entity.UpdateError, len(rows))
	for i, r := range rows {
		out[i] = entity.UpdateError{
			ID:           r.ID,
			Timestamp:    r.Timestamp,
			ActID:        r.ActID,
			ErrorMessage: r.ErrorMessage,
			ErrorSource:  entity.ErrorSource(r.ErrorSource),
			CreatedAt:    r.CreatedAt,
		}
	}
	return out, nil
}

// EnsureErrorIndex creates the index RecentErrors' retention filter relies
// on. Safe to call repeatedly.
func (s *Store) EnsureErrorIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS data_update_errors_created_at_idx ON data_update_errors (created_at)`)
	if err != nil {
		return toAppErr(err, "failed to create update-error index")
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.logger.Info(context.Background(), "closing store connection")
	return s.db.Close()
}

func toModel(act *entity.Act) (*actModel, error) {
	relations, err := json.Marshal(act.Relations)
	if err != nil {
		return nil, err
	}
	events, err := json.Marshal(act.Events)
	if err != nil {
		return nil, err
	}

	return &actModel{
		ID:             act.ID,
		Name:           act.Name,
		Country:        act.Country,
		Region:         act.Region,
		Disambiguation: act.Disambiguation,
		Ended:          act.Ended,
		Status:         act.Status,
		Relations:      relations,
		Events:         events,
		UpdatedAt:      act.UpdatedAt,
	}, nil
}

func fromModel(row *actModel) (*entity.Act, error) {
	act := &entity.Act{
		ID:             row.ID,
		Name:           row.Name,
		Country:        row.Country,
		Region:         row.Region,
		Disambiguation: row.Disambiguation,
		Ended:          row.Ended,
		Status:         row.Status,
		UpdatedAt:      row.UpdatedAt,
	}

	if len(row.Relations) > 0 {
		if err := json.Unmarshal(row.Relations, &act.Relations); err != nil {
			return nil, err
		}
	}
	if len(row.Events) > 0 {
		if err := json.Unmarshal(row.Events, &act.Events); err != nil {
			return nil, err
		}
	}

	return act, nil
}

// Compile-time interface compliance check.
var _ entity.ActStore = (*Store)(nil)
