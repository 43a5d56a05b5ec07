// Package musicbrainz provides a client for the MusicBrainz XML/JSON Web Service.
//
// Usage Guidelines and Constraints (based on MusicBrainz API TOS and Social Contract):
//
//  1. Rate Limiting (The "1.0s" Rule)
//     MusicBrainz enforces a strict rate limit of 1 request per second per IP address.
//     Exceeding this limit will result in a 503 Service Unavailable error and
//     potential temporary IP blocking. Implement a robust throttling mechanism
//     within your application to ensure compliance.
//
//  2. User-Agent Identification
//
// A descriptive User-Agent header is MANDATORY. It must follow the format:
// "ApplicationName/Version ( ContactEmailOrWebsite )"
// Generic User-Agents (like "Go-http-client/1.1") are frequently blocked to
// prevent anonymous scraping.
//
// 3. Data Attribution
// Although much of the data is CC0, it is requested and considered good
// practice to provide attribution to MusicBrainz and its contributors
// when displaying data or providing links to the MusicBrainz database.
//
// 4. Caching and Efficiency
// Users are expected to be good citizens of the community. Cache data
// locally whenever possible (e.g., using MBIDs as keys) to avoid redundant
// requests for static metadata. Do not perform "blanket crawls" of the database.
//
// For more details, refer to: https://musicbrainz.org/doc/MusicBrainz_API/Ethics
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/liverty-music/actcache/internal/entity"
	"github.com/liverty-music/actcache/pkg/api"
	"github.com/liverty-music/actcache/pkg/throttle"
	"github.com/pannpers/go-apperr/apperr"
	"github.com/pannpers/go-apperr/apperr/codes"
	"github.com/pannpers/go-logging/logging"
)

const (
	baseURL   = "https://musicbrainz.org/ws/2/artist/"
	userAgent = "ActCache/1.0.0 ( contact: pannpers@gmail.com )"
	// MusicBrainz rate limit is 1 request per second.
	rateLimitInterval = 1 * time.Second
)

type artistResponse struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Country        string        `json:"country"`
	Area           area          `json:"area"`
	Disambiguation string        `json:"disambiguation"`
	LifeSpan       lifeSpan      `json:"life-span"`
	Relations      []urlRelation `json:"relations"`
}

type area struct {
	Name string `json:"name"`
}

type lifeSpan struct {
	Ended bool   `json:"ended"`
	End   string `json:"end"`
}

type urlRelation struct {
	Type         string      `json:"type"`
	SourceCredit string      `json:"source-credit"`
	Ended        bool        `json:"ended"`
	URL          urlResource `json:"url"`
}

type urlResource struct {
	Resource string `json:"resource"`
}

// client implements entity.ActFetcher against the MusicBrainz artist lookup endpoint.
type client struct {
	httpClient *http.Client
	baseURL    string
	throttler  *throttle.Throttler
	logger     *logging.Logger
}

// NewClient creates a new MusicBrainz client instance. The returned client
// paces outgoing requests to at most one per second via an internal
// throttler, regardless of how many goroutines call FetchAct concurrently.
func NewClient(httpClient *http.Client, logger *logging.Logger) *client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	return &client{
		httpClient: httpClient,
		baseURL:    baseURL,
		throttler:  throttle.New(rateLimitInterval, 100),
		logger:     logger.With(slog.String("component", "musicbrainz")),
	}
}

// FetchAct retrieves canonical act data for the given MusicBrainz identifier,
// including its url-rels so relation-derived fields (bandsintown URL, social
// links) can be populated by the caller's transform step.
func (c *client) FetchAct(ctx context.Context, id string) (*entity.RawAct, error) {
	c.logger.Info(ctx, "fetching act", slog.String("mbid", id))

	url := fmt.Sprintf("%s%s?inc=url-rels&fmt=json", c.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(err, codes.Internal, "failed to create musicbrainz request")
	}

	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug(ctx, "rate limiter backoff", slog.String("mbid", id))

	var resp *http.Response
	err = c.throttler.Do(ctx, func() error {
		var err error
		resp, err = c.httpClient.Do(req)
		return err
	})

	if err := api.FromHTTP(err, resp, "musicbrainz api request failed"); err != nil {
		c.logger.Error(ctx, "musicbrainz act request failed", err, slog.String("mbid", id))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var data artistResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, apperr.Wrap(err, codes.DataLoss, "failed to decode musicbrainz response")
	}

	return toRawAct(data), nil
}

func toRawAct(data artistResponse) *entity.RawAct {
	relations := make([]entity.RawRelation, 0, len(data.Relations))
	for _, r := range data.Relations {
		relations = append(relations, entity.RawRelation{
			Type:         r.Type,
			SourceCredit: r.SourceCredit,
			Ended:        r.Ended,
			URL:          r.URL.Resource,
		})
	}

	ended := data.LifeSpan.Ended || data.LifeSpan.End != ""

	return &entity.RawAct{
		ID:             data.ID,
		Name:           data.Name,
		Country:        data.Country,
		Region:         data.Area.Name,
		Disambiguation: data.Disambiguation,
		Ended:          ended,
		Status:         upstreamStatus(ended),
		Relations:      relations,
	}
}

// upstreamStatus derives MusicBrainz's binary notion of activity into the
// same upstreamStatus vocabulary used as a fallback by transform.DeriveStatus.
func upstreamStatus(ended bool) string {
	if ended {
		return "disbanded"
	}
	return "active"
}

// Compile-time interface compliance check.
var _ entity.ActFetcher = (*client)(nil)

// SetBaseURL allows overriding the base URL used by the client. This is
// primarily intended for tests to point the client at an httptest server.
func (c *client) SetBaseURL(u string) {
	c.baseURL = u
}

// Close stops the background throttler goroutine and releases resources.
// It should be called when the client is no longer needed.
func (c *client) Close() error {
	if c.throttler != nil {
		c.throttler.Close()
	}
	return nil
}
