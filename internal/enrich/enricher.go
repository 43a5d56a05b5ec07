// Package enrich assembles a full canonical act record from the
// MusicBrainz and Bandsintown upstreams. It has no knowledge of the cache
// store or of how its caller schedules work — it is a pure leaf dependency
// of both the read path (internal/usecase) and the background workers
// (internal/queue, internal/sweeper), which keeps those two call sites from
// needing to import each other.
package enrich

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/liverty-music/actcache/internal/entity"
	"github.com/liverty-music/actcache/internal/transform"
	"github.com/pannpers/go-apperr/apperr"
	"github.com/pannpers/go-apperr/apperr/codes"
	"github.com/pannpers/go-logging/logging"
)

// bandsintownURLPattern matches a Bandsintown artist-page relation URL.
var bandsintownURLPattern = regexp.MustCompile(`^https?://(www\.)?bandsintown\.com/a/\d+$`)

// berlin is loaded once; a zone that fails to load at init time indicates a
// misconfigured runtime tzdata and every timestamp stamped thereafter would
// be wrong, so the enricher falls back to UTC and logs the failure on every use.
var berlin, berlinErr = time.LoadLocation("Europe/Berlin")

// Enricher composes full act records by calling out to the upstream
// MusicBrainz and Bandsintown clients and applying the transform package.
type Enricher struct {
	actFetcher   entity.ActFetcher
	eventFetcher entity.EventFetcher
	logger       *logging.Logger
}

// New creates an Enricher backed by the given upstream fetchers.
func New(actFetcher entity.ActFetcher, eventFetcher entity.EventFetcher, logger *logging.Logger) *Enricher {
	return &Enricher{
		actFetcher:   actFetcher,
		eventFetcher: eventFetcher,
		logger:       logger.With(slog.String("component", "enricher")),
	}
}

// Enrich fetches the act identified by id from MusicBrainz, folds in its
// Bandsintown events (when the act carries a recognised Bandsintown
// relation), and stamps the result with the current Berlin wall-clock time.
//
// MusicBrainz fetch failures always propagate, tagged with source
// "musicbrainz". Bandsintown fetch failures propagate tagged "bandsintown"
// unless silent is true, in which case the act is returned with no events.
func (e *Enricher) Enrich(ctx context.Context, id string, silent bool) (*entity.Act, error) {
	raw, err := e.actFetcher.FetchAct(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, codes.Unavailable, "musicbrainz: failed to fetch act", slog.String("id", id))
	}

	act := transform.Act(raw)

	events, err := e.fetchEvents(ctx, act, silent)
	if err != nil {
		return nil, err
	}
	act.Events = events

	act.Status = transform.DeriveStatus(act.Events, act.Status, time.Now())
	act.UpdatedAt = e.stamp()

	return act, nil
}

func (e *Enricher) fetchEvents(ctx context.Context, act *entity.Act, silent bool) ([]entity.Event, error) {
	url, ok := act.Relations["bandsintown"]
	if !ok || !bandsintownURLPattern.MatchString(url) {
		return nil, nil
	}

	raw, err := e.eventFetcher.FetchEvents(ctx, url, silent)
	if err != nil {
		if silent {
			e.logger.Warn(ctx, "bandsintown: suppressing fetch failure", slog.String("id", act.ID), slog.Any("err", err))
			return nil, nil
		}
		return nil, apperr.Wrap(err, codes.Unavailable, "bandsintown: failed to fetch events", slog.String("id", act.ID))
	}

	result := transform.Events(raw, time.Now())
	for _, rejected := range result.Rejected {
		e.logger.Debug(ctx, "rejected event blob",
			slog.String("id", act.ID),
			slog.String("reason", string(rejected.Reason)),
			slog.String("name", rejected.Event.Name),
		)
	}

	return result.Events, nil
}

// Compile-time interface compliance check.
var _ entity.Enricher = (*Enricher)(nil)

// stamp formats the current time in the Europe/Berlin zone as
// "YYYY-MM-DD HH:MM:SS±HH:MM", the module's stable updatedAt contract.
func (e *Enricher) stamp() string {
	loc := berlin
	if loc == nil {
		e.logger.Error(context.Background(), "Europe/Berlin zone unavailable, falling back to UTC", berlinErr)
		loc = time.UTC
	}
	return time.Now().In(loc).Format("2006-01-02 15:04:05-07:00")
}
