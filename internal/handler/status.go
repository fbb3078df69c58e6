package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/athena-playground/internal/handler/views"
	"github.com/pavelanni/athena-playground/internal/model"
)

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	modes, err := h.store.ListPartitions()
	if err != nil {
		slog.Error("list partitions", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := views.StatusData{AthenaURL: h.config.AthenaURL}
	for _, mode := range modes {
		configs, err := h.store.ListExpertEvaluationConfigs(mode)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			slog.Warn("list expert evaluations", "mode", mode, "error", err)
		}
		data.Partitions = append(data.Partitions, views.PartitionInfo{
			Mode:        mode,
			Evaluations: len(configs),
			ExportURL:   h.path("/api/data/" + string(mode) + "/data/export"),
		})
	}
	if h.config.AthenaURL != "" {
		health := h.gateway.ProbeHealth(r.Context(), h.config.AthenaURL)
		data.Health = &health
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.StatusPage(data).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}
