package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/liverty-music/actcache/internal/entity"
	"github.com/liverty-music/actcache/internal/usecase"
	"github.com/pannpers/go-logging/logging"
)

// defaultEvictionThreshold mirrors config.DomainConfig's default so a
// caller hitting /admin/cache/evict without a query param gets the same
// threshold the Sweeper uses.
const defaultEvictionThreshold = 14

// ActFetcher is the narrow seam the router depends on for the public read
// path, satisfied by *usecase.ActService.
type ActFetcher interface {
	FetchMany(ctx context.Context, ids []string) ([]entity.Act, error)
}

// AdminAuthenticator validates the admin shared secret carried on admin
// requests. Its concrete TOTP-validating implementation is external to
// this module (spec.md §1); StaticSecretAuthenticator stands in as a stub.
type AdminAuthenticator interface {
	Authenticate(r *http.Request) bool
}

// StaticSecretAuthenticator is a permissive stand-in for the real admin
// auth layer: it accepts any request carrying the configured secret in
// the X-Admin-Secret header. It performs no TOTP validation and exists only
// so the admin routes have a seam to call; production deployments replace
// it with the real external authenticator.
type StaticSecretAuthenticator struct {
	Secret string
}

// Authenticate reports whether r carries the configured shared secret. An
// empty configured secret always fails closed.
func (a StaticSecretAuthenticator) Authenticate(r *http.Request) bool {
	if a.Secret == "" {
		return false
	}
	return r.Header.Get("X-Admin-Secret") == a.Secret
}

// NewRouter builds the thin HTTP surface described in spec.md §6: the
// public read path and the admin callbacks. Routing and error formatting
// are intentionally minimal; the heavy lifting lives in ActService and
// ActStore.
func NewRouter(fetcher ActFetcher, store entity.ActStore, auth AdminAuthenticator, logger *logging.Logger) http.Handler {
	log := logger.With(slog.String("component", "router"))
	r := chi.NewRouter()

	r.Get("/acts/{ids}", handleFetchMany(fetcher, log))

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin(auth))
		r.Post("/cache/clear", handleCacheClear(store, log))
		r.Get("/errors", handleRecentErrors(store, log))
		r.Post("/cache/evict", handleCacheEvict(store, log))
	})

	return r
}

func requireAdmin(auth AdminAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.Authenticate(r) {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleFetchMany(fetcher ActFetcher, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "ids")
		ids := splitIds(raw)
		if len(ids) == 0 {
			writeJSONError(w, http.StatusBadRequest, "ids must not be empty")
			return
		}

		acts, err := fetcher.FetchMany(r.Context(), ids)

		var partial *usecase.PartialCacheMissError
		if errors.As(err, &partial) {
			// FetchMany returns no acts on this branch; the background
			// fetch is already enqueued, so the caller is told to retry.
			writeJSON(w, http.StatusAccepted, map[string]any{
				"error":        partial.Error(),
				"cachedCount":  partial.CachedCount,
				"missingCount": partial.MissingCount,
			})
			return
		}
		if err != nil {
			log.Warn(r.Context(), "fetch many failed", slog.Any("err", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to fetch acts")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"acts": acts})
	}
}

func handleCacheClear(store entity.ActStore, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.ClearAll(r.Context()); err != nil {
			log.Warn(r.Context(), "cache clear failed", slog.Any("err", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to clear cache")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRecentErrors(store entity.ActStore, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		errs, err := store.RecentErrors(r.Context())
		if err != nil {
			log.Warn(r.Context(), "recent errors query failed", slog.Any("err", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to list errors")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"errors": errs})
	}
}

func handleCacheEvict(store entity.ActStore, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threshold, err := thresholdParam(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		count, err := store.EvictInactive(r.Context(), threshold)
		if err != nil {
			log.Warn(r.Context(), "eviction failed", slog.Any("err", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to evict")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"evicted": count})
	}
}

// thresholdParam reads the optional ?threshold= query param, defaulting to
// defaultEvictionThreshold.
func thresholdParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("threshold")
	if raw == "" {
		return defaultEvictionThreshold, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("threshold must be a non-negative integer")
	}
	return n, nil
}

func splitIds(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
