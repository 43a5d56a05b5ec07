// Package usecase implements the request-time read-through orchestration
// (C5) that serves FetchMany against the Cache Store, feeding the Fetch
// Queue on misses and staleness, in the style of the teacher's use-case
// layer.
package usecase

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/liverty-music/actcache/internal/entity"
	"github.com/pannpers/go-apperr/apperr"
	"github.com/pannpers/go-apperr/apperr/codes"
	"github.com/pannpers/go-logging/logging"
)

// probeDeadline bounds the health gate's reconnect-and-probe attempt.
const probeDeadline = 500 * time.Millisecond

// Queue is the subset of the Fetch Queue (C6) the Act Service depends on.
type Queue interface {
	// Add enqueues ids for background enrichment. Returns immediately.
	Add(ids []string)
}

// ActService implements the read-through path (C5): classifying a
// requested id-set into cached/missing, serving cached acts, inline-fetching
// a single miss, deferring bulk misses to the Fetch Queue, and gating
// requests behind a process-local cache-health flag.
type ActService struct {
	store    entity.ActStore
	enricher entity.Enricher
	queue    Queue
	logger   *logging.Logger

	requestDeadline    time.Duration
	stalenessThreshold time.Duration

	cacheHealthy atomic.Bool
}

// New creates an ActService. requestDeadline bounds every Store call issued
// from FetchMany; stalenessThreshold is the age past which a cached act is
// queued for a background refresh even though it was served as a hit.
func New(
	store entity.ActStore,
	enricher entity.Enricher,
	queue Queue,
	requestDeadline time.Duration,
	stalenessThreshold time.Duration,
	logger *logging.Logger,
) *ActService {
	s := &ActService{
		store:              store,
		enricher:           enricher,
		queue:              queue,
		requestDeadline:    requestDeadline,
		stalenessThreshold: stalenessThreshold,
		logger:             logger.With(slog.String("component", "act_service")),
	}
	s.cacheHealthy.Store(true)
	return s
}

// PartialCacheMissError is returned when two or more requested ids were not
// cached. The ids have been enqueued for background enrichment; the caller
// should retry shortly. MissingCount and CachedCount let the HTTP surface
// (internal/infrastructure/server) report both figures to the client.
type PartialCacheMissError struct {
	MissingCount int
	CachedCount  int
}

func (e *PartialCacheMissError) Error() string {
	return "acts not cached: enqueued for background fetch"
}

// FetchMany serves ids via read-through: cached acts are returned
// immediately, a lone miss is fetched inline, and two or more misses are
// deferred to the Fetch Queue. Stale cached acts are queued for refresh as
// a side effect but are still returned as-is.
//
// # Possible errors
//
//   - InvalidArgument: ids is empty.
//   - Unavailable: the cache-health gate is tripped and the recovery probe
//     failed. A Get that fails or exceeds its deadline does not fail the
//     call: it trips the health gate and the id is treated as a miss.
//   - Any error from inline enrichment of a single miss, as returned.
//   - *PartialCacheMissError (wrapped, codes.Unavailable): two or more ids
//     were not cached.
func (s *ActService) FetchMany(ctx context.Context, ids []string) ([]entity.Act, error) {
	if len(ids) == 0 {
		return nil, apperr.New(codes.InvalidArgument, "ids must not be empty")
	}

	if !s.cacheHealthy.Load() {
		if err := s.recoverHealth(ctx); err != nil {
			return nil, err
		}
	}

	cached, missing := s.getAll(ctx, ids)

	s.queueStale(cached)

	switch len(missing) {
	case 0:
		go s.touchLastRequested(ids)
		return order(ids, cached), nil

	case 1:
		act, err := s.enricher.Enrich(ctx, missing[0], false)
		if err != nil {
			return nil, err
		}
		cached[act.ID] = *act
		go s.put(act)
		go s.touchLastRequested(ids)
		return order(ids, cached), nil

	default:
		s.queue.Add(missing)
		return nil, apperr.Wrap(
			&PartialCacheMissError{MissingCount: len(missing), CachedCount: len(cached)},
			codes.Unavailable,
			"acts not cached",
			slog.Int("missingCount", len(missing)),
			slog.Int("cachedCount", len(cached)),
		)
	}
}

// recoverHealth attempts to clear a tripped cache-health flag by probing
// the store under a short deadline. On success, the flag is set healthy
// again; on failure, the call fails with service-unavailable.
func (s *ActService) recoverHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeDeadline)
	defer cancel()

	if err := s.store.Probe(ctx); err != nil {
		return apperr.Wrap(err, codes.Unavailable, "cache store is unhealthy")
	}

	s.cacheHealthy.Store(true)
	return nil
}

// getAll concurrently fetches each id under the request deadline, returning
// the cache hits keyed by id and the ids that were absent. Any Get failure
// trips the health flag but does not abort the other concurrent fetches;
// the failed id is treated as missing.
func (s *ActService) getAll(ctx context.Context, ids []string) (map[string]entity.Act, []string) {
	var (
		mu      sync.Mutex
		cached  = make(map[string]entity.Act, len(ids))
		missing []string
		wg      sync.WaitGroup
	)

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, s.requestDeadline)
			defer cancel()

			act, ok, err := s.store.Get(callCtx, id)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				s.cacheHealthy.Store(false)
				s.logger.Warn(ctx, "store get failed, treating as miss", slog.String("id", id), slog.Any("err", err))
				missing = append(missing, id)
				return
			}
			if !ok {
				missing = append(missing, id)
				return
			}
			cached[id] = *act
		}(id)
	}

	wg.Wait()
	return cached, missing
}

// queueStale finds cached acts whose UpdatedAt is missing or more than
// stalenessThreshold old and enqueues them for background refresh.
// Fire-and-forget: never affects the response.
func (s *ActService) queueStale(cached map[string]entity.Act) {
	var stale []string
	for id, act := range cached {
		if s.isStale(act.UpdatedAt) {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		s.queue.Add(stale)
	}
}

func (s *ActService) isStale(updatedAt string) bool {
	if updatedAt == "" {
		return true
	}
	t, err := time.Parse("2006-01-02 15:04:05-07:00", updatedAt)
	if err != nil {
		return true
	}
	return time.Since(t) > s.stalenessThreshold
}

// put performs a fire-and-forget cache write; failures are logged, never
// propagated to the request path.
func (s *ActService) put(act *entity.Act) {
	ctx := context.Background()
	if err := s.store.Put(ctx, act); err != nil {
		s.cacheHealthy.Store(false)
		s.logger.Warn(ctx, "failed to write inline-enriched act", slog.String("id", act.ID), slog.Any("err", err))
	}
}

// touchLastRequested is a fire-and-forget reset of the per-act
// updates-since-last-request counter for every id in a successfully
// answered request.
func (s *ActService) touchLastRequested(ids []string) {
	ctx := context.Background()
	if err := s.store.TouchLastRequested(ctx, ids); err != nil {
		s.logger.Warn(ctx, "failed to touch last-requested metadata", slog.Any("ids", ids), slog.Any("err", err))
	}
}

// order returns the acts present in cached in the same order as ids.
// Ids with no corresponding entry (should not occur on the success paths
// that call it) are silently skipped.
func order(ids []string, cached map[string]entity.Act) []entity.Act {
	out := make([]entity.Act, 0, len(ids))
	for _, id := range ids {
		if act, ok := cached[id]; ok {
			out = append(out, act)
		}
	}
	return out
}
