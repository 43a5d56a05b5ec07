package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liverty-music/actcache/internal/entity"
	"github.com/liverty-music/actcache/internal/infrastructure/server"
	"github.com/liverty-music/actcache/internal/usecase"
	"github.com/pannpers/go-logging/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	acts []entity.Act
	err  error
}

func (f *fakeFetcher) FetchMany(ctx context.Context, ids []string) ([]entity.Act, error) {
	return f.acts, f.err
}

type fakeAdminStore struct {
	clearErr    error
	clearCalled bool
	errs        []entity.UpdateError
	evicted     int
	evictedWith int
}

func (f *fakeAdminStore) Get(ctx context.Context, id string) (*entity.Act, bool, error) {
	return nil, false, nil
}
func (f *fakeAdminStore) Put(ctx context.Context, act *entity.Act) error { return nil }
func (f *fakeAdminStore) Probe(ctx context.Context) error                { return nil }
func (f *fakeAdminStore) ListAllIds(ctx context.Context) ([]string, error) {
	return nil, nil
}
func (f *fakeAdminStore) ListAllWithMeta(ctx context.Context) ([]entity.ActMetaSummary, error) {
	return nil, nil
}
func (f *fakeAdminStore) ListWithoutBandsintown(ctx context.Context) ([]string, error) {
	return nil, nil
}
func (f *fakeAdminStore) TouchLastRequested(ctx context.Context, ids []string) error { return nil }
func (f *fakeAdminStore) EvictInactive(ctx context.Context, threshold int) (int, error) {
	f.evictedWith = threshold
	return f.evicted, nil
}
func (f *fakeAdminStore) ClearAll(ctx context.Context) error {
	f.clearCalled = true
	return f.clearErr
}
func (f *fakeAdminStore) LogError(ctx context.Context, e *entity.UpdateError) error { return nil }
func (f *fakeAdminStore) RecentErrors(ctx context.Context) ([]entity.UpdateError, error) {
	return f.errs, nil
}
func (f *fakeAdminStore) EnsureErrorIndex(ctx context.Context) error { return nil }

func newLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New()
	require.NoError(t, err)
	return logger
}

func TestRouter_FetchMany_OK(t *testing.T) {
	fetcher := &fakeFetcher{acts: []entity.Act{{ID: "a1", Name: "Alpha"}}}
	store := &fakeAdminStore{}
	auth := server.StaticSecretAuthenticator{Secret: "s3cr3t"}
	router := server.NewRouter(fetcher, store, auth, newLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/acts/a1,b2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["acts"], 1)
}

func TestRouter_FetchMany_EmptyIdsSegmentIsNotFound(t *testing.T) {
	router := server.NewRouter(&fakeFetcher{}, &fakeAdminStore{}, server.StaticSecretAuthenticator{Secret: "s"}, newLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/acts/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_FetchMany_PartialCacheMissReturnsAccepted(t *testing.T) {
	fetcher := &fakeFetcher{err: &usecase.PartialCacheMissError{CachedCount: 1, MissingCount: 2}}
	router := server.NewRouter(fetcher, &fakeAdminStore{}, server.StaticSecretAuthenticator{Secret: "s"}, newLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/acts/a1,m1,m2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["missingCount"])
}

func TestRouter_FetchMany_OtherErrorReturnsInternalServerError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("store unavailable")}
	router := server.NewRouter(fetcher, &fakeAdminStore{}, server.StaticSecretAuthenticator{Secret: "s"}, newLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/acts/a1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRouter_AdminRoutes_RequireSecret(t *testing.T) {
	store := &fakeAdminStore{}
	router := server.NewRouter(&fakeFetcher{}, store, server.StaticSecretAuthenticator{Secret: "s3cr3t"}, newLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/admin/cache/clear", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, store.clearCalled)
}

func TestRouter_AdminCacheClear_Authorized(t *testing.T) {
	store := &fakeAdminStore{}
	router := server.NewRouter(&fakeFetcher{}, store, server.StaticSecretAuthenticator{Secret: "s3cr3t"}, newLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/admin/cache/clear", nil)
	req.Header.Set("X-Admin-Secret", "s3cr3t")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, store.clearCalled)
}

func TestRouter_AdminRecentErrors_Authorized(t *testing.T) {
	store := &fakeAdminStore{errs: []entity.UpdateError{{ActID: "a1", ErrorMessage: "boom"}}}
	router := server.NewRouter(&fakeFetcher{}, store, server.StaticSecretAuthenticator{Secret: "s3cr3t"}, newLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/admin/errors", nil)
	req.Header.Set("X-Admin-Secret", "s3cr3t")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["errors"], 1)
}

func TestRouter_AdminCacheEvict_DefaultThreshold(t *testing.T) {
	store := &fakeAdminStore{evicted: 3}
	router := server.NewRouter(&fakeFetcher{}, store, server.StaticSecretAuthenticator{Secret: "s3cr3t"}, newLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/admin/cache/evict", nil)
	req.Header.Set("X-Admin-Secret", "s3cr3t")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 14, store.evictedWith)
}

func TestRouter_AdminCacheEvict_InvalidThreshold(t *testing.T) {
	store := &fakeAdminStore{}
	router := server.NewRouter(&fakeFetcher{}, store, server.StaticSecretAuthenticator{Secret: "s3cr3t"}, newLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/admin/cache/evict?threshold=-1", nil)
	req.Header.Set("X-Admin-Secret", "s3cr3t")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
