package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/dmfontes/callscribe/internal/api/middleware"
	"github.com/dmfontes/callscribe/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	UploadHandler      http.HandlerFunc
	ListTasksHandler   http.HandlerFunc
	TaskStatusHandler  http.HandlerFunc
	TaskResultHandler  http.HandlerFunc
	UpdateNotesHandler http.HandlerFunc
	TaskEventsHandler  http.HandlerFunc

	ListRulesHandler http.HandlerFunc

	ClearCacheHandler     http.HandlerFunc
	ClearNamespaceHandler http.HandlerFunc
	CacheStatsHandler     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// The websocket channel stays outside the rate limiter; one long-lived
	// connection carries many events.
	r.Get("/ws/tasks/{taskID}", orNotImplemented(deps.TaskEventsHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/tasks", orNotImplemented(deps.UploadHandler))
		r.Get("/api/v1/tasks", orNotImplemented(deps.ListTasksHandler))
		r.Get("/api/v1/tasks/{taskID}", orNotImplemented(deps.TaskStatusHandler))
		r.Get("/api/v1/tasks/{taskID}/result", orNotImplemented(deps.TaskResultHandler))
		r.Put("/api/v1/tasks/{taskID}/notes", orNotImplemented(deps.UpdateNotesHandler))

		r.Get("/api/v1/rules", orNotImplemented(deps.ListRulesHandler))

		r.Delete("/api/v1/admin/cache", orNotImplemented(deps.ClearCacheHandler))
		r.Delete("/api/v1/admin/cache/{namespace}", orNotImplemented(deps.ClearNamespaceHandler))
		r.Get("/api/v1/admin/cache/stats", orNotImplemented(deps.CacheStatsHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
