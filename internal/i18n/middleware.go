package i18n

import "net/http"

// Middleware stores a localizer in every request context. The language is
// negotiated from Accept-Language with defaultLang as fallback.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := Negotiate(r.Header.Get("Accept-Language"), defaultLang)
			ctx := WithLocalizer(r.Context(), NewLocalizer(lang, defaultLang))
			w.Header().Set("Content-Language", lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
