// Package sweeper implements the Cache Sweeper (C7): a long-running cycle
// that refreshes every cached act within a time-budgeted slice and evicts
// acts that have gone unrequested for too long.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/liverty-music/actcache/internal/entity"
	"github.com/pannpers/go-logging/logging"
)

// Sweeper runs RunCycle forever, retrying after retryDelay on any error so
// the outer loop never exits.
type Sweeper struct {
	store    entity.ActStore
	enricher entity.Enricher
	logger   *logging.Logger

	cycle             time.Duration
	retryDelay        time.Duration
	evictionThreshold int
}

// New creates a Sweeper. cycle (T) is the wall-clock budget for one full
// pass over every cached id; retryDelay (R) is the pause before retrying a
// cycle that failed outright; evictionThreshold is the
// UpdatesSinceLastRequest count at which EvictInactive removes an act.
func New(
	store entity.ActStore,
	enricher entity.Enricher,
	cycle time.Duration,
	retryDelay time.Duration,
	evictionThreshold int,
	logger *logging.Logger,
) *Sweeper {
	return &Sweeper{
		store:             store,
		enricher:          enricher,
		cycle:             cycle,
		retryDelay:        retryDelay,
		evictionThreshold: evictionThreshold,
		logger:            logger.With(slog.String("component", "sweeper")),
	}
}

// Run executes RunCycle forever. It never returns; it is intended to be
// started in its own goroutine at process boot once the Cache Store is
// ready, and its only stop condition is process termination.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		if err := s.RunCycle(ctx); err != nil {
			s.logger.Warn(ctx, "sweep cycle failed, retrying after delay", slog.Any("err", err), slog.Duration("retryDelay", s.retryDelay))
			time.Sleep(s.retryDelay)
			continue
		}
	}
}

// RunCycle enumerates every cached id and refreshes each within a
// time-budgeted slice, then evicts inactive acts. An empty cache sleeps for
// the full cycle budget and returns.
func (s *Sweeper) RunCycle(ctx context.Context) error {
	ids, err := s.store.ListAllIds(ctx)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		time.Sleep(s.cycle)
		return nil
	}

	slice := s.cycle / time.Duration(len(ids))

	for _, id := range ids {
		sliceStart := time.Now()
		s.refreshOne(ctx, id)

		if elapsed := time.Since(sliceStart); elapsed < slice {
			time.Sleep(slice - elapsed)
		}
	}

	count, err := s.store.EvictInactive(ctx, s.evictionThreshold)
	if err != nil {
		s.logger.Warn(ctx, "eviction pass failed", slog.Any("err", err))
		return nil
	}
	s.logger.Info(ctx, "eviction pass complete", slog.Int("evicted", count))

	return nil
}

// refreshOne enriches and writes a single act, logging and journaling any
// failure — one bad id must never halt the sweep.
func (s *Sweeper) refreshOne(ctx context.Context, id string) {
	// silent=true suppresses Bandsintown failures inside Enrich, so any
	// error reaching here is a MusicBrainz fetch failure.
	act, err := s.enricher.Enrich(ctx, id, true)
	if err != nil {
		s.logger.Warn(ctx, "sweep: enrich failed", slog.String("id", id), slog.Any("err", err))
		s.logError(ctx, id, err, entity.ErrorSourceMusicBrainz)
		return
	}

	if err := s.store.Put(ctx, act); err != nil {
		s.logger.Warn(ctx, "sweep: put failed", slog.String("id", id), slog.Any("err", err))
		s.logError(ctx, id, err, entity.ErrorSourceCache)
	}
}

func (s *Sweeper) logError(ctx context.Context, id string, err error, source entity.ErrorSource) {
	updateErr := &entity.UpdateError{
		ActID:        id,
		Timestamp:    time.Now(),
		ErrorMessage: err.Error(),
		ErrorSource:  source,
	}
	if logErr := s.store.LogError(ctx, updateErr); logErr != nil {
		s.logger.Warn(ctx, "failed to journal update error", slog.String("id", id), slog.Any("err", logErr))
	}
}
