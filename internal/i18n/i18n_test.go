package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		lang, id, want string
	}{
		{"en", "Partitions", "Data partitions"},
		{"de", "Partitions", "Datenpartitionen"},
		{"en", "ErrUpstream", "The assessment service is not reachable."},
		{"de", "ErrUnauthorized", "Anmeldung erforderlich."},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.id, func(t *testing.T) {
			ctx := initLang(t, tt.lang)
			if got := T(ctx, tt.id); got != tt.want {
				t.Errorf("T(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "ModulesAvailable", 1); got != "1 module available." {
		t.Errorf("Tp(ModulesAvailable, 1) = %q", got)
	}
	if got := Tp(ctx, "ModulesAvailable", 3); got != "3 modules available." {
		t.Errorf("Tp(ModulesAvailable, 3) = %q", got)
	}

	ctx = initLang(t, "de")
	if got := Tp(ctx, "Evaluations", 2); got != "2 Expertenbewertungen" {
		t.Errorf("Tp(Evaluations, 2) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ErrInvalidExerciseID", map[string]any{"Value": "abc"})
	if got != `Invalid exercise id "abc".` {
		t.Errorf("Td(ErrInvalidExerciseID) = %q", got)
	}

	got = Td(ctx, "ErrConfigIDMismatch", map[string]any{"ID": "a", "Route": "b"})
	if got != `Config id "a" does not match "b".` {
		t.Errorf("Td(ErrConfigIDMismatch) = %q", got)
	}

	de := initLang(t, "de")
	got = Td(de, "ErrConfigIDMismatch", map[string]any{"ID": "a", "Route": "b"})
	if got != `Konfigurations-ID "a" passt nicht zu "b".` {
		t.Errorf("Td(ErrConfigIDMismatch) de = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want the id back", got)
	}
}

func TestNegotiate(t *testing.T) {
	initLang(t, "en")

	tests := []struct {
		header, want string
	}{
		{"", "en"},
		{"de-DE,de;q=0.9,en;q=0.8", "de"},
		{"fr-FR", "en"},
		{"en-GB", "en"},
	}
	for _, tt := range tests {
		if got := Negotiate(tt.header, "en"); got != tt.want {
			t.Errorf("Negotiate(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "NoPartitions")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "de")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got != "Noch keine Datenpartitionen." {
		t.Errorf("localized message = %q", got)
	}
	if lang := rec.Header().Get("Content-Language"); lang != "de" {
		t.Errorf("Content-Language = %q", lang)
	}
}
