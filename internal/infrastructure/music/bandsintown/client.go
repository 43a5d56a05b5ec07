// Package bandsintown scrapes concert listings from public Bandsintown
// artist pages. Bandsintown has no public concert-listing API; event data
// is recovered from the schema.org JSON-LD blocks embedded in the page's
// HTML by the site's own server-side rendering.
package bandsintown

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/liverty-music/actcache/internal/entity"
	"github.com/liverty-music/actcache/pkg/api"
	"github.com/pannpers/go-apperr/apperr"
	"github.com/pannpers/go-apperr/apperr/codes"
	"github.com/pannpers/go-logging/logging"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	userAgent      = "ActCache/1.0.0 ( contact: pannpers@gmail.com )"
	defaultTimeout = 5 * time.Second
)

// ldEvent mirrors the subset of the schema.org Event vocabulary that
// Bandsintown embeds in its artist pages.
type ldEvent struct {
	Type      interface{} `json:"@type"`
	Name      string      `json:"name"`
	StartDate string      `json:"startDate"`
	URL       string      `json:"url"`
	Location  *ldLocation `json:"location"`
	Graph     []ldEvent   `json:"@graph"`
}

type ldLocation struct {
	Name    string     `json:"name"`
	Address *ldAddress `json:"address"`
	Geo     *ldGeo     `json:"geo"`
}

type ldAddress struct {
	AddressLocality string `json:"addressLocality"`
	AddressCountry  string `json:"addressCountry"`
}

type ldGeo struct {
	Latitude  jsonNumber `json:"latitude"`
	Longitude jsonNumber `json:"longitude"`
}

// jsonNumber accepts latitude/longitude encoded as either a JSON number or
// a JSON string, which Bandsintown has been observed to emit inconsistently.
type jsonNumber float64

func (n *jsonNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return nil
	}
	*n = jsonNumber(f)
	return nil
}

// client implements entity.EventFetcher against public Bandsintown artist pages.
type client struct {
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a new Bandsintown client instance.
func NewClient(httpClient *http.Client, logger *logging.Logger) *client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultTimeout,
		}
	}
	return &client{
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "bandsintown")),
	}
}

// FetchEvents downloads the Bandsintown page at url and extracts its
// embedded JSON-LD event blocks. A page with no events, or one whose JSON-LD
// blocks fail to parse, yields an empty sequence rather than an error.
//
// Transport failures (non-2xx status, network error, timeout) are reported
// as an error tagged with source "bandsintown" unless silent is true, in
// which case the caller receives an empty sequence instead.
func (c *client) FetchEvents(ctx context.Context, url string, silent bool) ([]entity.RawEvent, error) {
	c.logger.Info(ctx, "fetching events", slog.String("url", url), slog.Bool("silent", silent))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(err, codes.Internal, "failed to create bandsintown request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if appErr := api.FromHTTP(err, resp, "bandsintown page request failed"); appErr != nil {
		if silent {
			c.logger.Warn(ctx, "bandsintown fetch failed, suppressing per silent mode", slog.String("url", url), slog.Any("err", appErr))
			return nil, nil
		}
		c.logger.Error(ctx, "bandsintown fetch failed", appErr, slog.String("url", url))
		return nil, appErr
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if silent {
			return nil, nil
		}
		return nil, apperr.Wrap(err, codes.Unavailable, "failed to read bandsintown response body")
	}

	events := extractEvents(body)
	if events == nil {
		c.logger.Debug(ctx, "no parseable JSON-LD events found", slog.String("url", url))
	}
	return events, nil
}

// extractEvents walks the HTML tokenizer looking for
// <script type="application/ld+json"> blocks and decodes any embedded
// schema.org Event objects into entity.RawEvent. Blocks that fail to parse
// are skipped; a page with zero decodable events yields nil.
func extractEvents(body []byte) []entity.RawEvent {
	var events []entity.RawEvent

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return events
		}
		if tt != html.StartTagToken {
			continue
		}

		tok := z.Token()
		if tok.DataAtom != atom.Script || !isJSONLD(tok) {
			continue
		}

		z.Next()
		raw := z.Token().Data
		events = append(events, decodeLDBlock([]byte(raw))...)
	}
}

func isJSONLD(tok html.Token) bool {
	for _, attr := range tok.Attr {
		if attr.Key == "type" && strings.EqualFold(attr.Val, "application/ld+json") {
			return true
		}
	}
	return false
}

// decodeLDBlock decodes a single JSON-LD <script> body, which may contain a
// bare Event object, an array of nodes, or a @graph wrapper, into zero or
// more RawEvent values. Any decode failure yields no events for that block.
func decodeLDBlock(raw []byte) []entity.RawEvent {
	var out []entity.RawEvent

	var single ldEvent
	if err := json.Unmarshal(raw, &single); err == nil {
		out = append(out, fromNode(single)...)
		return out
	}

	var list []ldEvent
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, n := range list {
			out = append(out, fromNode(n)...)
		}
	}
	return out
}

func fromNode(n ldEvent) []entity.RawEvent {
	if len(n.Graph) > 0 {
		var out []entity.RawEvent
		for _, g := range n.Graph {
			out = append(out, fromNode(g)...)
		}
		return out
	}

	if !isEventType(n.Type) {
		return nil
	}

	raw := entity.RawEvent{
		Name:      n.Name,
		URL:       n.URL,
		LocalTime: "",
		Date:      dateOnly(n.StartDate),
	}
	if n.Location != nil {
		if n.Location.Address != nil {
			raw.Address = entity.Address{
				Venue:   n.Location.Name,
				City:    n.Location.Address.AddressLocality,
				Country: n.Location.Address.AddressCountry,
			}
		}
		if n.Location.Geo != nil {
			raw.Geo = &entity.Geo{
				Lat: float64(n.Location.Geo.Latitude),
				Lon: float64(n.Location.Geo.Longitude),
			}
		}
	}

	return []entity.RawEvent{raw}
}

func isEventType(t interface{}) bool {
	switch v := t.(type) {
	case string:
		return strings.Contains(v, "Event")
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.Contains(s, "Event") {
				return true
			}
		}
	}
	return false
}

// dateOnly trims an ISO-8601 datetime down to its date component
// ("2026-08-10T20:00:00-04:00" -> "2026-08-10").
func dateOnly(s string) string {
	if i := strings.IndexAny(s, "T "); i >= 0 {
		return s[:i]
	}
	return s
}

// Compile-time interface compliance check.
var _ entity.EventFetcher = (*client)(nil)

// Close releases client resources. Present for symmetry with the
// MusicBrainz client; the Bandsintown client holds no background goroutines.
func (c *client) Close() error {
	return nil
}
