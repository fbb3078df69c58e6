package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/athena-playground/internal/gateway"
	appI18n "github.com/pavelanni/athena-playground/internal/i18n"
	"github.com/pavelanni/athena-playground/internal/model"
)

const maxJSONBody = 16 << 20

var (
	emptyList   = []struct{}{}
	emptyObject = struct{}{}
)

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}

// writeError maps lower-layer errors to HTTP responses. Not-found answers
// carry notFound as body so callers always get the shape they expect.
func writeError(w http.ResponseWriter, r *http.Request, err error, notFound any) {
	w.Header().Del("Content-Disposition")

	var verr *model.ValidationError
	var serr *gateway.StatusError
	switch {
	case errors.Is(err, model.ErrNotFound):
		slog.Debug("not found", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusNotFound, notFound)
	case errors.As(err, &verr):
		writeMessage(w, http.StatusBadRequest, verr.Msg)
	case errors.As(err, &serr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(serr.StatusCode)
		_, _ = w.Write(serr.Body)
	case errors.Is(err, model.ErrUpstreamUnavailable):
		slog.Warn("upstream unavailable", "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusBadGateway, appI18n.T(r.Context(), "ErrUpstream"))
	default:
		slog.Error("internal server error", "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return invalidJSON(r, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return invalidJSON(r, err)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return nil, invalidJSON(r, err)
	}
	return data, nil
}

func invalidJSON(r *http.Request, err error) error {
	return model.Invalid(appI18n.Td(r.Context(), "ErrInvalidJSON", map[string]any{"Error": err.Error()}))
}

func attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

// countingWriter records how much of a streamed response has gone out.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// streamAttachment sends what write produces as a download. An error before
// the first byte becomes a regular error response. Once bytes are out the
// status is committed, so later errors are only logged and the client gets
// a truncated file.
func streamAttachment(w http.ResponseWriter, r *http.Request, contentType, filename string, write func(io.Writer) error) bool {
	attachment(w, contentType, filename)
	cw := &countingWriter{w: w}
	err := write(cw)
	switch {
	case err == nil:
		return true
	case cw.n == 0:
		writeError(w, r, err, emptyObject)
	default:
		slog.Error("stream attachment", "path", r.URL.Path, "file", filename, "written", cw.n, "error", err)
	}
	return false
}
