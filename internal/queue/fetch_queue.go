// Package queue implements the single-writer Fetch Queue (C6): a
// deduplicating set of pending act ids drained by one background worker at
// a fixed pace.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/liverty-music/actcache/internal/entity"
	"github.com/liverty-music/actcache/pkg/throttle"
	"github.com/pannpers/go-logging/logging"
)

// throttlerBuffer bounds how many queued fetches the pacing worker can hold
// before Do starts blocking its caller; generous since drain() is the only
// caller and never queues more than one task at a time.
const throttlerBuffer = 64

// FetchQueue is the single-writer background worker described in
// spec.md §4.6: ids are deduplicated into Pending, and at most one drainer
// runs at a time. Pacing between fetches is delegated to pkg/throttle, the
// same single-worker-goroutine rate limiter the teacher uses for other
// sequential, interval-spaced work.
type FetchQueue struct {
	enricher  entity.Enricher
	store     entity.ActStore
	logger    *logging.Logger
	throttler *throttle.Throttler

	mu       sync.Mutex
	pending  map[string]struct{}
	draining bool
}

// New creates a FetchQueue. interval is the minimum spacing D between the
// start of consecutive fetches while draining.
func New(enricher entity.Enricher, store entity.ActStore, interval time.Duration, logger *logging.Logger) *FetchQueue {
	return &FetchQueue{
		enricher:  enricher,
		store:     store,
		throttler: throttle.New(interval, throttlerBuffer),
		pending:   make(map[string]struct{}),
		logger:    logger.With(slog.String("component", "fetch_queue")),
	}
}

// Add inserts ids into the pending set (duplicates silently collapse) and
// starts the drainer if it is not already running. Returns immediately.
func (q *FetchQueue) Add(ids []string) {
	q.mu.Lock()
	for _, id := range ids {
		q.pending[id] = struct{}{}
	}
	shouldStart := !q.draining && len(q.pending) > 0
	if shouldStart {
		q.draining = true
	}
	q.mu.Unlock()

	if shouldStart {
		go q.drain()
	}
}

// Close stops the pacing worker. Any fetch in flight when Close is called
// completes; a fetch still waiting on the pacing interval is abandoned, the
// same best-effort shutdown the Sweeper and in-memory caches accept (durable
// queue persistence across restarts is out of scope).
func (q *FetchQueue) Close() error {
	q.throttler.Close()
	return nil
}

// drain runs as the single worker: it pops one id at a time and runs it
// through the pacing throttler, which enforces the interval between
// consecutive fetches. It never raises — every failure is logged and
// journaled, and the worker moves on. draining is always reset to false on
// return, including on panic recovery, so a crashed drainer cannot wedge
// future Add calls.
func (q *FetchQueue) drain() {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error(context.Background(), "fetch queue drainer panicked", nil, slog.Any("recover", r))
		}
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	for {
		id, ok := q.pop()
		if !ok {
			return
		}

		_ = q.throttler.Do(context.Background(), func() error {
			q.fetchOne(id)
			return nil
		})
	}
}

func (q *FetchQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id := range q.pending {
		delete(q.pending, id)
		return id, true
	}
	return "", false
}

// fetchOne enriches and persists a single id, logging and journaling any
// failure without propagating it.
func (q *FetchQueue) fetchOne(id string) {
	ctx := context.Background()

	// silent=true suppresses Bandsintown failures inside Enrich, so any
	// error reaching here is a MusicBrainz fetch failure.
	act, err := q.enricher.Enrich(ctx, id, true)
	if err != nil {
		q.logger.Warn(ctx, "queue drain: enrich failed", slog.String("id", id), slog.Any("err", err))
		q.logError(ctx, id, err, entity.ErrorSourceMusicBrainz)
		return
	}

	if err := q.store.Put(ctx, act); err != nil {
		q.logger.Warn(ctx, "queue drain: put failed", slog.String("id", id), slog.Any("err", err))
		q.logError(ctx, id, err, entity.ErrorSourceCache)
	}
}

func (q *FetchQueue) logError(ctx context.Context, id string, err error, source entity.ErrorSource) {
	updateErr := &entity.UpdateError{
		ActID:        id,
		Timestamp:    time.Now(),
		ErrorMessage: err.Error(),
		ErrorSource:  source,
	}
	if logErr := q.store.LogError(ctx, updateErr); logErr != nil {
		q.logger.Warn(ctx, "failed to journal update error", slog.String("id", id), slog.Any("err", logErr))
	}
}
