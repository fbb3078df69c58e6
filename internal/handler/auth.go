package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/athena-playground/internal/i18n"
)

const adminUser = "admin"

// HashPassword returns the bcrypt hash stored in ServerConfig.AdminHash.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// requireAdmin guards destructive partition routes with HTTP basic auth.
// Without a configured admin hash the routes stay open.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.config.AdminHash) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		user, password, ok := r.BasicAuth()
		if ok && subtle.ConstantTimeCompare([]byte(user), []byte(adminUser)) == 1 &&
			bcrypt.CompareHashAndPassword(h.config.AdminHash, []byte(password)) == nil {
			next.ServeHTTP(w, r)
			return
		}
		slog.Warn("admin authentication failed", "path", r.URL.Path, "remote", r.RemoteAddr, "user", user)
		w.Header().Set("WWW-Authenticate", `Basic realm="playground", charset="UTF-8"`)
		writeMessage(w, http.StatusUnauthorized, appI18n.T(r.Context(), "ErrUnauthorized"))
	})
}
