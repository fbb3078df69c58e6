// Package gateway talks to Athena assessment modules on behalf of the
// browser: it probes module health and forwards authenticated requests.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pavelanni/athena-playground/internal/metrics"
	"github.com/pavelanni/athena-playground/internal/model"
)

// Recorder receives every forwarded request.
type Recorder interface {
	Record(rec model.RequestRecord) (int64, error)
}

// Client forwards requests to a module base URL. It never retries.
type Client struct {
	http     *http.Client
	recorder Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRecorder records every forwarded request and its response.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// New creates a gateway client. Without options it uses http.DefaultClient.
func New(opts ...Option) *Client {
	c := &Client{http: http.DefaultClient}
	for _, o := range opts {
		o(c)
	}
	return c
}

// upstreamModule is a module entry as the assessment service reports it.
type upstreamModule struct {
	URL                string `json:"url"`
	Type               string `json:"type"`
	Healthy            bool   `json:"healthy"`
	SupportsEvaluation bool   `json:"supportsEvaluation"`
}

// ProbeHealth fetches <baseURL>/health. Failures never surface as errors;
// they produce a fetch-failed status with no modules.
func (c *Client) ProbeHealth(ctx context.Context, baseURL string) model.HealthStatus {
	failed := model.HealthStatus{Status: model.HealthFetchFailed, Modules: map[string]model.ModuleMeta{}}

	target, err := joinURL(baseURL, "health")
	if err != nil {
		slog.Warn("health probe", "url", baseURL, "error", err)
		return failed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		slog.Warn("health probe", "url", target, "error", err)
		return failed
	}
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("health probe", "url", target, "error", err)
		return failed
	}
	defer resp.Body.Close()

	var body struct {
		Status  string                    `json:"status"`
		Modules map[string]upstreamModule `json:"modules"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		slog.Warn("health probe: decode response", "url", target, "status", resp.StatusCode, "error", err)
		return failed
	}

	out := model.HealthStatus{Status: body.Status, Modules: make(map[string]model.ModuleMeta, len(body.Modules))}
	if out.Status == "" {
		out.Status = model.HealthOK
	}
	for name, m := range body.Modules {
		out.Modules[name] = model.ModuleMeta{
			Name:               name,
			Type:               m.Type,
			Healthy:            m.Healthy,
			URL:                m.URL,
			SupportsEvaluation: m.SupportsEvaluation,
		}
	}
	return out
}

// Request is one call to forward.
type Request struct {
	BaseURL      string
	Path         string
	Secret       string
	Body         json.RawMessage // nil means GET
	ModuleConfig json.RawMessage
}

// Response is a successful upstream response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// Forward sends req and returns the upstream response. Non-2xx statuses
// become *StatusError; transport failures wrap model.ErrUpstreamUnavailable.
func (c *Client) Forward(ctx context.Context, req Request) (*Response, error) {
	target, err := joinURL(req.BaseURL, req.Path)
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	var body io.Reader
	if len(req.Body) > 0 {
		method = http.MethodPost
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, model.Invalid(fmt.Sprintf("build request: %v", err))
	}
	if req.Secret != "" {
		httpReq.Header.Set("Authorization", req.Secret)
	}
	if len(req.ModuleConfig) > 0 {
		httpReq.Header.Set("X-Module-Config", string(req.ModuleConfig))
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	rec := model.RequestRecord{
		Method:       method,
		URL:          target,
		ModuleConfig: string(req.ModuleConfig),
		RequestBody:  string(req.Body),
	}
	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		rec.Error = err.Error()
		c.finish(rec, start)
		return nil, fmt.Errorf("%s %s: %w: %v", method, target, model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	rec.StatusCode = resp.StatusCode
	rec.ResponseBody = string(data)
	if err != nil {
		rec.Error = err.Error()
		c.finish(rec, start)
		return nil, fmt.Errorf("read %s response: %w: %v", target, model.ErrUpstreamUnavailable, err)
	}
	c.finish(rec, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: errorBody(data)}
	}
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

func (c *Client) finish(rec model.RequestRecord, start time.Time) {
	d := time.Since(start)
	rec.DurationMS = d.Milliseconds()
	metrics.ObserveGateway(rec.StatusCode, d)
	slog.Debug("gateway request", "method", rec.Method, "url", rec.URL, "status", rec.StatusCode, "duration", d)
	if c.recorder == nil {
		return
	}
	if _, err := c.recorder.Record(rec); err != nil {
		slog.Warn("record gateway request", "url", rec.URL, "error", err)
	}
}

// errorBody keeps a JSON error body as is and wraps anything else in a
// {"message": ...} object.
func errorBody(data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	wrapped, _ := json.Marshal(map[string]string{"message": string(trimmed)})
	return wrapped
}

func joinURL(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", model.Invalid(fmt.Sprintf("invalid module url %q", base))
	}
	if path == "" {
		return u.String(), nil
	}
	return strings.TrimRight(u.String(), "/") + "/" + strings.TrimLeft(path, "/"), nil
}
