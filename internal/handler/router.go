package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"

	appI18n "github.com/pavelanni/athena-playground/internal/i18n"
)

// RouterOptions configures the middleware stack around the routes.
type RouterOptions struct {
	Lang     string
	LogLevel slog.Level
	JSONLogs bool
}

// NewRouter mounts h under its base path with request logging, panic
// recovery, CORS and localization.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	if opts.Lang == "" {
		opts.Lang = "en"
	}
	logger := httplog.NewLogger("playground", httplog.Options{
		JSON:             opts.JSONLogs,
		LogLevel:         opts.LogLevel,
		Concise:          true,
		RequestHeaders:   false,
		MessageFieldName: "msg",
	})

	allowed := h.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Module-Config"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(appI18n.Middleware(opts.Lang))

	basePath := h.config.BasePath
	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}
	return r
}
