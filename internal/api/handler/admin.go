package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmfontes/callscribe/internal/api/response"
	"github.com/dmfontes/callscribe/internal/cache"
)

// CacheAdmin is the operator surface over the result cache.
type CacheAdmin interface {
	ClearAll(ctx context.Context) (int64, error)
	ClearNamespace(ctx context.Context, namespace string) (int64, error)
	Stats(ctx context.Context) (*cache.Stats, error)
}

// NewClearCacheHandler returns the handler for DELETE /api/v1/admin/cache.
func NewClearCacheHandler(admin CacheAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := admin.ClearAll(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "CACHE_ERROR", "could not clear cache", nil)
			return
		}
		response.JSON(w, map[string]int64{"deleted": deleted})
	}
}

// NewClearNamespaceHandler returns the handler for
// DELETE /api/v1/admin/cache/{namespace}.
func NewClearNamespaceHandler(admin CacheAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := chi.URLParam(r, "namespace")
		deleted, err := admin.ClearNamespace(r.Context(), namespace)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_NAMESPACE",
				"unknown cache namespace: "+namespace, nil)
			return
		}
		response.JSON(w, map[string]any{"namespace": namespace, "deleted": deleted})
	}
}

// NewCacheStatsHandler returns the handler for GET /api/v1/admin/cache/stats.
func NewCacheStatsHandler(admin CacheAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := admin.Stats(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "CACHE_ERROR", "could not read cache stats", nil)
			return
		}
		response.JSON(w, stats)
	}
}
