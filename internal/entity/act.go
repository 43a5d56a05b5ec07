// Package entity defines the core domain types and the interfaces the core
// caching/fetch-orchestration subsystem depends on.
package entity

import (
	"context"
	"time"
)

// Act represents the canonical, fully-enriched shape of a musical act as
// served to clients. It is assembled by the Enricher from upstream
// metadata and event data, and persisted by the Cache Store keyed by ID.
type Act struct {
	// ID is the stable upstream identifier (MusicBrainz MBID).
	ID string `json:"id"`
	// Name is the display name of the act.
	Name string `json:"name"`
	// Country is the ISO country code, if known.
	Country string `json:"country,omitempty"`
	// Region is the area/region name, if known.
	Region string `json:"region,omitempty"`
	// Disambiguation distinguishes acts that share a name.
	Disambiguation string `json:"disambiguation,omitempty"`
	// Ended is true iff the act has a recorded end date or is explicitly
	// marked as ended upstream.
	Ended bool `json:"ended"`
	// Status is one of "on tour", "tour planned", or the upstream-supplied
	// status, derived per DeriveStatus — never read from upstream verbatim
	// when Events is non-empty.
	Status string `json:"status"`
	// Relations maps a relation kind (bandsintown, songkick, wikidata,
	// youtube, detected social platforms, ...) to its URL.
	Relations map[string]string `json:"relations,omitempty"`
	// Events is the ordered sequence of upcoming events; may be empty.
	Events []Event `json:"events"`
	// UpdatedAt is the Europe/Berlin wall-clock timestamp, formatted
	// "2006-01-02 15:04:05-07:00", at which this record was composed.
	UpdatedAt string `json:"updatedAt"`
}

// Event is a single upcoming concert/event for an act.
type Event struct {
	Name      string   `json:"name"`
	Date      string   `json:"date"`
	LocalTime string   `json:"localTime,omitempty"`
	URL       string   `json:"url,omitempty"`
	Location  Location `json:"location"`
}

// Location describes where an event takes place.
type Location struct {
	Address Address `json:"address"`
	Geo     *Geo    `json:"geo"`
}

// Address is a free-form venue/city/country grouping. Fields are preserved
// verbatim from upstream; none are required.
type Address struct {
	Venue   string `json:"venue,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// Geo is a geographic coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ErrorSource classifies which upstream or internal system produced an
// UpdateError.
type ErrorSource string

const (
	ErrorSourceMusicBrainz ErrorSource = "musicbrainz"
	ErrorSourceBandsintown ErrorSource = "bandsintown"
	ErrorSourceCache       ErrorSource = "cache"
	ErrorSourceUnknown     ErrorSource = "unknown"
)

// ActMetadata is persisted alongside an Act but never exposed to clients.
// It drives the staleness-refresh and eviction policies.
type ActMetadata struct {
	// ID is the foreign key to the Act this metadata describes.
	ID string
	// LastRequestedAt is the last time this act appeared in a client
	// request (FetchMany input).
	LastRequestedAt time.Time
	// UpdatesSinceLastRequest counts cache writes for this act since it
	// was last requested by a client. Reset to zero on every request;
	// incremented by one on every Put. An act is evicted once this
	// reaches the eviction threshold.
	UpdatesSinceLastRequest int
}

// UpdateError is a journaled record of a failed enrichment attempt,
// retained for 7 days for observability only. Never surfaced to clients.
type UpdateError struct {
	ID           string
	Timestamp    time.Time
	ActID        string
	ErrorMessage string
	ErrorSource  ErrorSource
	CreatedAt    time.Time
}

// ActMetaSummary is the (id, updatedAt) pair returned by ListAllWithMeta.
type ActMetaSummary struct {
	ID        string
	UpdatedAt string
}

// ActStore is the persistence contract for the Cache Store (C1). The
// implementation is PostgreSQL-backed in this module, but the contract
// itself is backend-agnostic: every method reports failures via the
// apperr taxonomy, never via a raw driver error.
type ActStore interface {
	// Get returns the cached act record for id, or (nil, false) if absent.
	//
	// # Possible errors
	//
	//   - Unavailable: the store is unreachable or the call's deadline expired.
	Get(ctx context.Context, id string) (*Act, bool, error)

	// Put upserts act by its ID. It also increments that act's
	// UpdatesSinceLastRequest counter by one, best-effort: a failure to
	// update the counter MUST NOT be surfaced as a failure of Put.
	//
	// # Possible errors
	//
	//   - Unavailable: the store is unreachable, times out, or the write
	//     is not acknowledged.
	Put(ctx context.Context, act *Act) error

	// Probe performs a write-then-delete round trip against a reserved
	// sentinel id, used by the Act Service's health gate.
	//
	// # Possible errors
	//
	//   - Unavailable: any failure during the round trip.
	Probe(ctx context.Context) error

	// ListAllIds returns every cached act id, sorted.
	//
	// # Possible errors
	//
	//   - Unavailable: query failure.
	ListAllIds(ctx context.Context) ([]string, error)

	// ListAllWithMeta returns every cached act's id and updatedAt, sorted
	// by id.
	//
	// # Possible errors
	//
	//   - Unavailable: query failure.
	ListAllWithMeta(ctx context.Context) ([]ActMetaSummary, error)

	// ListWithoutBandsintown returns ids of acts whose Relations has no
	// "bandsintown" key (or a null/empty one).
	//
	// # Possible errors
	//
	//   - Unavailable: query failure.
	ListWithoutBandsintown(ctx context.Context) ([]string, error)

	// TouchLastRequested sets LastRequestedAt := now() and
	// UpdatesSinceLastRequest := 0 for each id, upserting metadata rows
	// as needed.
	//
	// # Possible errors
	//
	//   - Unavailable: write failure.
	TouchLastRequested(ctx context.Context, ids []string) error

	// EvictInactive deletes every act (and its metadata) whose
	// UpdatesSinceLastRequest has reached the eviction threshold, and
	// returns the number of acts deleted.
	//
	// # Possible errors
	//
	//   - Unavailable: query/delete failure.
	EvictInactive(ctx context.Context, threshold int) (int, error)

	// ClearAll removes every cached act record.
	//
	// # Possible errors
	//
	//   - Unavailable: delete failure.
	ClearAll(ctx context.Context) error

	// LogError journals an UpdateError. Also opportunistically deletes
	// entries older than the 7-day retention window (the Postgres
	// substitute for MongoDB's TTL index — see SPEC_FULL.md §10).
	//
	// # Possible errors
	//
	//   - Unavailable: insert failure.
	LogError(ctx context.Context, e *UpdateError) error

	// RecentErrors returns UpdateError entries from within the last 7
	// days, most recent first.
	//
	// # Possible errors
	//
	//   - Unavailable: query failure.
	RecentErrors(ctx context.Context) ([]UpdateError, error)

	// EnsureErrorIndex creates the supporting index used by RecentErrors'
	// retention filter. Safe to call repeatedly (idempotent).
	//
	// # Possible errors
	//
	//   - Unavailable: DDL failure.
	EnsureErrorIndex(ctx context.Context) error
}

// ActFetcher fetches raw act metadata from the authoritative upstream
// provider (MusicBrainz). Stateless from the core's point of view.
type ActFetcher interface {
	// FetchAct returns the raw provider-side act document for id.
	//
	// # Possible errors
	//
	//   - Unavailable / Internal: tagged musicbrainz on any failure.
	FetchAct(ctx context.Context, id string) (*RawAct, error)
}

// EventFetcher fetches raw event data (embedded JSON-LD) from the
// third-party concert-listing provider (Bandsintown).
type EventFetcher interface {
	// FetchEvents fetches the HTML page at url and returns every embedded
	// structured event document found. Parse failures yield an empty
	// slice, not an error; only transport-level failures return an error,
	// and only when silent is false.
	//
	// # Possible errors
	//
	//   - Unavailable: tagged bandsintown, transport failure, silent=false only.
	FetchEvents(ctx context.Context, url string, silent bool) ([]RawEvent, error)
}

// Enricher composes a full canonical Act record from the upstream providers.
// It is the single seam through which both the read path (ActService) and
// the background workers (Fetch Queue, Sweeper) reach MusicBrainz and
// Bandsintown, keeping those two call sites decoupled from each other.
type Enricher interface {
	// Enrich fetches and transforms the act identified by id.
	//
	// silent=true suppresses Bandsintown transport failures (used by the
	// Fetch Queue and Sweeper, where one bad page must not abort the
	// batch); silent=false propagates them (used by the inline single-miss
	// path, where the caller should see the cause).
	//
	// # Possible errors
	//
	//   - Unavailable: tagged musicbrainz, always propagated.
	//   - Unavailable: tagged bandsintown, propagated only when silent=false.
	Enrich(ctx context.Context, id string, silent bool) (*Act, error)
}

// RawAct is the raw MusicBrainz artist document, prior to transformation.
type RawAct struct {
	ID             string
	Name           string
	Country        string
	Region         string
	Disambiguation string
	Ended          bool
	Status         string
	Relations      []RawRelation
}

// RawRelation is one url-rels entry from the MusicBrainz artist document.
type RawRelation struct {
	Type         string
	SourceCredit string
	Ended        bool
	URL          string
}

// RawEvent is one embedded JSON-LD event document scraped from a
// Bandsintown artist page.
type RawEvent struct {
	Name      string
	Date      string
	LocalTime string
	URL       string
	Address   Address
	Geo       *Geo
}
