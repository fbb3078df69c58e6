package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/athena-playground/internal/model"
)

type fakeRecorder struct {
	records []model.RequestRecord
}

func (f *fakeRecorder) Record(rec model.RequestRecord) (int64, error) {
	f.records = append(f.records, rec)
	return int64(len(f.records)), nil
}

func TestProbeHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok","modules":{"module_text_llm":{"url":"http://text:5001","type":"text","healthy":true,"supportsEvaluation":true}}}`)
	}))
	defer srv.Close()

	got := New().ProbeHealth(context.Background(), srv.URL)
	assert.Equal(t, model.HealthOK, got.Status)
	require.Contains(t, got.Modules, "module_text_llm")
	m := got.Modules["module_text_llm"]
	assert.Equal(t, "module_text_llm", m.Name)
	assert.Equal(t, "text", m.Type)
	assert.True(t, m.Healthy)
	assert.True(t, m.SupportsEvaluation)
}

func TestProbeHealthFailures(t *testing.T) {
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>gateway timeout</html>")
	}))
	defer garbage.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name string
		url  string
	}{
		{"unreachable", closedURL},
		{"not json", garbage.URL},
		{"invalid url", "::not a url"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New().ProbeHealth(context.Background(), tt.url)
			assert.Equal(t, model.HealthStatus{Status: model.HealthFetchFailed, Modules: map[string]model.ModuleMeta{}}, got)
		})
	}
}

func TestForwardPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/modules/text/module_text_llm/feedback_suggestions", r.URL.Path)
		assert.Equal(t, "secret123", r.Header.Get("Authorization"))
		assert.Equal(t, `{"approach":"basic"}`, r.Header.Get("X-Module-Config"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"submission":{"id":1}}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	resp, err := New(WithRecorder(rec)).Forward(context.Background(), Request{
		BaseURL:      srv.URL + "/",
		Path:         "/modules/text/module_text_llm/feedback_suggestions",
		Secret:       "secret123",
		Body:         json.RawMessage(`{"submission":{"id":1}}`),
		ModuleConfig: json.RawMessage(`{"approach":"basic"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"data":[]}`, string(resp.Body))

	require.Len(t, rec.records, 1)
	assert.Equal(t, http.MethodPost, rec.records[0].Method)
	assert.Equal(t, http.StatusOK, rec.records[0].StatusCode)
	assert.Equal(t, `{"approach":"basic"}`, rec.records[0].ModuleConfig)
}

func TestForwardGetWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("X-Module-Config"))
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	resp, err := New().Forward(context.Background(), Request{BaseURL: srv.URL + "/modules", Secret: "s"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestForwardStatusError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantBody string
	}{
		{"json body", http.StatusUnauthorized, `{"detail":"Invalid API secret"}`, `{"detail":"Invalid API secret"}`},
		{"plain body", http.StatusInternalServerError, "boom", `{"message":"boom"}`},
		{"empty body", http.StatusServiceUnavailable, "", `{"message":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New().Forward(context.Background(), Request{BaseURL: srv.URL})
			var serr *StatusError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.status, serr.StatusCode)
			assert.JSONEq(t, tt.wantBody, string(serr.Body))
		})
	}
}

func TestForwardUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := &fakeRecorder{}
	_, err := New(WithRecorder(rec)).Forward(context.Background(), Request{BaseURL: url})
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	require.Len(t, rec.records, 1)
	assert.NotEmpty(t, rec.records[0].Error)
}

func TestForwardInvalidURL(t *testing.T) {
	_, err := New().Forward(context.Background(), Request{BaseURL: "ftp://example.com"})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}
