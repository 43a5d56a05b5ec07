package enrich_test

import (
	"context"
	"testing"

	"github.com/liverty-music/actcache/internal/entity"
	"github.com/liverty-music/actcache/internal/enrich"
	"github.com/pannpers/go-logging/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActFetcher struct {
	act *entity.RawAct
	err error
}

func (f *fakeActFetcher) FetchAct(ctx context.Context, id string) (*entity.RawAct, error) {
	return f.act, f.err
}

type fakeEventFetcher struct {
	events []entity.RawEvent
	err    error
}

func (f *fakeEventFetcher) FetchEvents(ctx context.Context, url string, silent bool) ([]entity.RawEvent, error) {
	return f.events, f.err
}

func newLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New()
	require.NoError(t, err)
	return logger
}

func TestEnricher_Enrich(t *testing.T) {
	t.Run("act without a bandsintown relation skips event fetching", func(t *testing.T) {
		acts := &fakeActFetcher{act: &entity.RawAct{ID: "b2", Name: "Beta", Status: "active"}}
		events := &fakeEventFetcher{}

		e := enrich.New(acts, events, newLogger(t))
		act, err := e.Enrich(context.Background(), "b2", false)

		require.NoError(t, err)
		assert.Equal(t, "Beta", act.Name)
		assert.Empty(t, act.Events)
		assert.NotEmpty(t, act.UpdatedAt)
	})

	t.Run("act with a valid bandsintown relation fetches and transforms events", func(t *testing.T) {
		acts := &fakeActFetcher{act: &entity.RawAct{
			ID:     "g3",
			Name:   "Gamma",
			Status: "active",
			Relations: []entity.RawRelation{
				{Type: "bandsintown", URL: "https://www.bandsintown.com/a/123"},
			},
		}}
		events := &fakeEventFetcher{events: []entity.RawEvent{
			{Name: "Show A", Date: "2099-01-01"},
		}}

		e := enrich.New(acts, events, newLogger(t))
		act, err := e.Enrich(context.Background(), "g3", false)

		require.NoError(t, err)
		require.Len(t, act.Events, 1)
		assert.Equal(t, "Show A", act.Events[0].Name)
	})

	t.Run("invalid bandsintown URL is treated as absent", func(t *testing.T) {
		acts := &fakeActFetcher{act: &entity.RawAct{
			ID:   "d4",
			Name: "Delta",
			Relations: []entity.RawRelation{
				{Type: "bandsintown", URL: "https://bandsintown.com/not-an-act"},
			},
		}}
		events := &fakeEventFetcher{}

		e := enrich.New(acts, events, newLogger(t))
		act, err := e.Enrich(context.Background(), "d4", false)

		require.NoError(t, err)
		assert.Empty(t, act.Events)
	})

	t.Run("musicbrainz failure always propagates", func(t *testing.T) {
		acts := &fakeActFetcher{err: assertErr("musicbrainz down")}
		events := &fakeEventFetcher{}

		e := enrich.New(acts, events, newLogger(t))
		act, err := e.Enrich(context.Background(), "x", true)

		assert.Error(t, err)
		assert.Nil(t, act)
	})

	t.Run("bandsintown failure propagates when not silent", func(t *testing.T) {
		acts := &fakeActFetcher{act: &entity.RawAct{
			ID:   "e5",
			Name: "Epsilon",
			Relations: []entity.RawRelation{
				{Type: "bandsintown", URL: "https://www.bandsintown.com/a/999"},
			},
		}}
		events := &fakeEventFetcher{err: assertErr("bandsintown unreachable")}

		e := enrich.New(acts, events, newLogger(t))
		act, err := e.Enrich(context.Background(), "e5", false)

		assert.Error(t, err)
		assert.Nil(t, act)
	})

	t.Run("bandsintown failure is suppressed when silent", func(t *testing.T) {
		acts := &fakeActFetcher{act: &entity.RawAct{
			ID:   "f6",
			Name: "Zeta",
			Relations: []entity.RawRelation{
				{Type: "bandsintown", URL: "https://www.bandsintown.com/a/999"},
			},
		}}
		events := &fakeEventFetcher{err: assertErr("bandsintown unreachable")}

		e := enrich.New(acts, events, newLogger(t))
		act, err := e.Enrich(context.Background(), "f6", true)

		require.NoError(t, err)
		assert.Empty(t, act.Events)
	})
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertErr(msg string) error { return simpleError(msg) }
