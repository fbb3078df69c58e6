package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/pavelanni/athena-playground/internal/gateway"
	appI18n "github.com/pavelanni/athena-playground/internal/i18n"
)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		url = h.config.AthenaURL
	}
	writeJSON(w, http.StatusOK, h.gateway.ProbeHealth(r.Context(), url))
}

// handleAthenaRequest forwards the request body to the module URL given in
// the url query parameter, adding the shared secret.
func (h *Handler) handleAthenaRequest(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeMessage(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrMissingURL"))
		return
	}

	secret := r.Header.Get("Authorization")
	if secret == "" {
		secret = h.config.AthenaSecret
	}

	var body json.RawMessage
	if r.Method == http.MethodPost {
		data, err := readBody(w, r)
		if err != nil {
			writeError(w, r, err, emptyObject)
			return
		}
		if len(strings.TrimSpace(string(data))) > 0 {
			if !json.Valid(data) {
				writeError(w, r, invalidJSON(r, errNotJSON), emptyObject)
				return
			}
			body = data
		}
	}

	var moduleConfig json.RawMessage
	if mc := r.Header.Get("X-Module-Config"); mc != "" {
		moduleConfig = json.RawMessage(mc)
	}

	resp, err := h.gateway.Forward(r.Context(), gateway.Request{
		BaseURL:      target,
		Secret:       secret,
		Body:         body,
		ModuleConfig: moduleConfig,
	})
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	ct := resp.ContentType
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

var errNotJSON = errors.New("body is not valid JSON")

func (h *Handler) handleRequests(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.history.ListRequests(limit)
	if err != nil {
		writeError(w, r, err, emptyList)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
