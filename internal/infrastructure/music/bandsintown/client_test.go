package bandsintown_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liverty-music/actcache/internal/infrastructure/music/bandsintown"
	"github.com/pannpers/go-logging/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageWithTwoEvents = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
[
  {
    "@type": "MusicEvent",
    "name": "Gamma live",
    "startDate": "2026-08-10T20:00:00-04:00",
    "url": "https://www.bandsintown.com/e/123",
    "location": {
      "name": "The Venue",
      "address": {"addressLocality": "Tokyo", "addressCountry": "JP"},
      "geo": {"latitude": "35.6762", "longitude": "139.6503"}
    }
  },
  {
    "@type": "MusicEvent",
    "name": "Gamma live 2",
    "startDate": "2026-12-01",
    "url": "https://www.bandsintown.com/e/456"
  }
]
</script>
</head><body></body></html>`

const pageWithNoEvents = `<!DOCTYPE html><html><head></head><body>no shows</body></html>`

const pageWithMalformedLD = `<!DOCTYPE html><html><head>
<script type="application/ld+json">{not valid json</script>
</head><body></body></html>`

func TestClient_FetchEvents(t *testing.T) {
	logger, _ := logging.New()

	t.Run("extracts events from JSON-LD blocks", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(pageWithTwoEvents))
		}))
		defer server.Close()

		client := bandsintown.NewClient(server.Client(), logger)
		events, err := client.FetchEvents(context.Background(), server.URL, false)

		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "Gamma live", events[0].Name)
		assert.Equal(t, "2026-08-10", events[0].Date)
		assert.Equal(t, "Tokyo", events[0].Address.City)
		require.NotNil(t, events[0].Geo)
		assert.InDelta(t, 35.6762, events[0].Geo.Lat, 0.0001)
		assert.Equal(t, "2026-12-01", events[1].Date)
		assert.Nil(t, events[1].Geo)
	})

	t.Run("page with no JSON-LD yields empty sequence", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(pageWithNoEvents))
		}))
		defer server.Close()

		client := bandsintown.NewClient(server.Client(), logger)
		events, err := client.FetchEvents(context.Background(), server.URL, false)

		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("malformed JSON-LD yields empty sequence, not an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(pageWithMalformedLD))
		}))
		defer server.Close()

		client := bandsintown.NewClient(server.Client(), logger)
		events, err := client.FetchEvents(context.Background(), server.URL, false)

		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("transport failure propagates as an error when not silent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := bandsintown.NewClient(server.Client(), logger)
		events, err := client.FetchEvents(context.Background(), server.URL, false)

		assert.Error(t, err)
		assert.Nil(t, events)
	})

	t.Run("transport failure is suppressed when silent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := bandsintown.NewClient(server.Client(), logger)
		events, err := client.FetchEvents(context.Background(), server.URL, true)

		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("sets a descriptive user agent", func(t *testing.T) {
		var gotUA string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			_, _ = w.Write([]byte(pageWithNoEvents))
		}))
		defer server.Close()

		client := bandsintown.NewClient(server.Client(), logger)
		_, err := client.FetchEvents(context.Background(), server.URL, false)

		require.NoError(t, err)
		assert.Contains(t, gotUA, "ActCache")
	})
}
