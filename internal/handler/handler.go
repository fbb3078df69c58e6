package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/athena-playground/internal/gateway"
	"github.com/pavelanni/athena-playground/internal/history"
	"github.com/pavelanni/athena-playground/internal/metrics"
	"github.com/pavelanni/athena-playground/internal/model"
	"github.com/pavelanni/athena-playground/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	history *history.Log
	gateway *gateway.Client
	config  model.ServerConfig
}

// New creates a new Handler.
func New(s *store.Store, hist *history.Log, gw *gateway.Client, cfg model.ServerConfig) (*Handler, error) {
	if s == nil || hist == nil || gw == nil {
		return nil, fmt.Errorf("handler needs a store, a history log and a gateway client")
	}
	return &Handler{store: s, history: hist, gateway: gw, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleStatus)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Get("/athena_request", h.handleAthenaRequest)
		r.Post("/athena_request", h.handleAthenaRequest)
		r.Get("/requests", h.handleRequests)

		r.Route("/data/{mode}", func(r chi.Router) {
			r.Use(requireDataMode)

			r.Get("/exercises", h.handleListExercises)
			r.Post("/exercises", h.handleSaveExercise)
			r.Get("/exercise/{id}", h.handleGetExercise)
			r.Get("/exercise/{id}/data", h.handleExerciseData)
			r.Get("/exercise/{id}/data/*", h.handleExerciseData)
			r.Get("/submissions", h.handleListSubmissions)
			r.Post("/submissions", h.handleSaveSubmission)
			r.Get("/feedbacks", h.handleListFeedbacks)
			r.Post("/feedbacks", h.handleSaveFeedback)

			r.Get("/data/export", h.handleExport)
			r.With(h.requireAdmin).Delete("/data/delete", h.handleDelete)
			r.With(h.requireAdmin).Post("/data/import", h.handleImport)
			r.Get("/data/imports", h.handleListImports)

			r.Get("/expert_evaluation", h.handleListEvaluations)
			r.Post("/expert_evaluation/import", h.handleImportEvaluation)
			r.Route("/expert_evaluation/{id}", func(r chi.Router) {
				r.Get("/shared_config", h.handleGetConfig)
				r.Post("/shared_config", h.handleSaveConfig)
				r.Get("/progress", h.handleGetProgress)
				r.Post("/progress", h.handleSaveProgress)
				r.Post("/rating", h.handleRating)
				r.Get("/metrics", h.handleMetrics)
				r.Get("/export", h.handleExportEvaluation)
			})
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// path prefixes p with the base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

// origin is the public URL of the playground, base path included. Download
// links in exercise documents are built from it.
func (h *Handler) origin(r *http.Request) string {
	if h.config.PublicURL != "" {
		return strings.TrimRight(h.config.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + model.BasePathFromContext(r.Context())
}

func dataMode(r *http.Request) model.DataMode {
	return model.DataMode(chi.URLParam(r, "mode"))
}

// requireDataMode answers 404 for anything that is not a valid data mode.
func requireDataMode(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := model.ParseDataMode(chi.URLParam(r, "mode")); err != nil {
			writeJSON(w, http.StatusNotFound, emptyObject)
			return
		}
		next.ServeHTTP(w, r)
	})
}
