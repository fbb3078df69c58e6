package handler

import (
	"errors"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/athena-playground/internal/experiment"
	appI18n "github.com/pavelanni/athena-playground/internal/i18n"
	"github.com/pavelanni/athena-playground/internal/model"
	"github.com/pavelanni/athena-playground/internal/store"
)

func evaluationID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func expertID(r *http.Request) (string, error) {
	id := r.URL.Query().Get("expert_id")
	if id == "" {
		return "", model.Invalid(appI18n.T(r.Context(), "ErrMissingExpert"))
	}
	return id, nil
}

func (h *Handler) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.ListExpertEvaluationConfigs(dataMode(r))
	if err != nil {
		writeError(w, r, err, emptyList)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.LoadExpertEvaluationConfig(dataMode(r), evaluationID(r))
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// saveConfig validates next against the stored config, if any, and saves it.
func (h *Handler) saveConfig(mode model.DataMode, next model.ExpertEvaluationConfig) (model.ExpertEvaluationConfig, error) {
	var prev model.ExpertEvaluationConfig
	if next.ID != "" {
		stored, err := h.store.LoadExpertEvaluationConfig(mode, next.ID)
		switch {
		case errors.Is(err, model.ErrNotFound):
		case err != nil:
			return next, err
		default:
			prev = stored
			next.CreationDate = prev.CreationDate
		}
	}
	next, err := experiment.CheckUpdate(prev, next)
	if err != nil {
		return next, err
	}
	return h.store.SaveExpertEvaluationConfig(mode, next)
}

func (h *Handler) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	cfg, err := experiment.DecodeConfig(data)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	id := evaluationID(r)
	if cfg.ID == "" {
		cfg.ID = id
	}
	if cfg.ID != id {
		writeMessage(w, http.StatusBadRequest, appI18n.Td(r.Context(), "ErrConfigIDMismatch", map[string]any{"ID": cfg.ID, "Route": id}))
		return
	}
	saved, err := h.saveConfig(dataMode(r), cfg)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleImportEvaluation accepts an exported bundle. When it carries
// progress and expert_id is given, the progress is restored too. Nothing
// is written unless both the config and the progress are valid.
func (h *Handler) handleImportEvaluation(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	b, err := experiment.Import(data)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	mode := dataMode(r)
	expert := r.URL.Query().Get("expert_id")
	if expert != "" {
		if err := store.CheckIdent("expert id", expert); err != nil {
			writeError(w, r, err, emptyObject)
			return
		}
	}
	if b.Progress != nil {
		if err := experiment.ValidateProgress(b.ExpertEvaluationConfig, *b.Progress); err != nil {
			writeError(w, r, err, emptyObject)
			return
		}
	}
	saved, err := h.saveConfig(mode, b.ExpertEvaluationConfig)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	if expert != "" && b.Progress != nil {
		if err := h.store.SaveProgress(mode, saved.ID, expert, *b.Progress); err != nil {
			writeError(w, r, err, emptyObject)
			return
		}
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	expert, err := expertID(r)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	p, err := h.store.LoadProgress(dataMode(r), evaluationID(r), expert)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSaveProgress replaces the expert's progress. The position only
// moves forward and a finished evaluation stays finished.
func (h *Handler) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	expert, err := expertID(r)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	var p model.ExpertEvaluationProgress
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	if p.SelectedValues == nil {
		p.SelectedValues = model.SelectedValues{}
	}
	mode, evalID := dataMode(r), evaluationID(r)
	cfg, err := h.store.LoadExpertEvaluationConfig(mode, evalID)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	if err := experiment.ValidateProgress(cfg, p); err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	prev, err := h.store.LoadProgress(mode, evalID, expert)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		writeError(w, r, err, emptyObject)
		return
	default:
		if err := experiment.CheckProgress(prev, p); err != nil {
			writeError(w, r, err, emptyObject)
			return
		}
	}
	if err := h.store.SaveProgress(mode, evalID, expert, p); err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleRating merges a single rating into the expert's stored progress.
func (h *Handler) handleRating(w http.ResponseWriter, r *http.Request) {
	mode, evalID := dataMode(r), evaluationID(r)
	expert, err := expertID(r)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	var rating experiment.Rating
	if err := decodeJSON(w, r, &rating); err != nil {
		writeError(w, r, err, emptyObject)
		return
	}

	cfg, err := h.store.LoadExpertEvaluationConfig(mode, evalID)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	if !cfg.Started {
		writeMessage(w, http.StatusConflict, appI18n.T(r.Context(), "ErrNotStarted"))
		return
	}
	if len(cfg.ExpertIDs) > 0 && !slices.Contains(cfg.ExpertIDs, expert) {
		writeError(w, r, model.Invalid("expert "+expert+" is not part of this evaluation"), emptyObject)
		return
	}
	if err := experiment.ValidateRating(cfg, rating); err != nil {
		writeError(w, r, err, emptyObject)
		return
	}

	p, err := h.store.LoadProgress(mode, evalID, expert)
	if errors.Is(err, model.ErrNotFound) {
		p, err = model.ExpertEvaluationProgress{SelectedValues: model.SelectedValues{}}, nil
	}
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	p = experiment.Merge(p, rating)
	if err := h.store.SaveProgress(mode, evalID, expert, p); err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.LoadExpertEvaluationConfig(dataMode(r), evaluationID(r))
	if err != nil {
		writeError(w, r, err, emptyList)
		return
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = []model.Metric{}
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleExportEvaluation(w http.ResponseWriter, r *http.Request) {
	mode, evalID := dataMode(r), evaluationID(r)
	cfg, err := h.store.LoadExpertEvaluationConfig(mode, evalID)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	var progress *model.ExpertEvaluationProgress
	if expert := r.URL.Query().Get("expert_id"); expert != "" {
		p, err := h.store.LoadProgress(mode, evalID, expert)
		switch {
		case err == nil:
			progress = &p
		case !errors.Is(err, model.ErrNotFound):
			writeError(w, r, err, emptyObject)
			return
		}
	}
	data, err := experiment.Export(cfg, progress)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	attachment(w, "application/json", "evaluation-"+cfg.ID+".json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
