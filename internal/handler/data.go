package handler

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/athena-playground/internal/i18n"
	"github.com/pavelanni/athena-playground/internal/metrics"
	"github.com/pavelanni/athena-playground/internal/model"
)

// exerciseFilter parses the optional exercise_id query parameter.
func exerciseFilter(r *http.Request) (*int, error) {
	raw := r.URL.Query().Get("exercise_id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return nil, model.Invalid(appI18n.Td(r.Context(), "ErrInvalidExerciseID", map[string]any{"Value": raw}))
	}
	return &id, nil
}

// exerciseID parses the {id} path parameter. Non-numeric ids cannot name an
// exercise, so they are reported as not found.
func exerciseID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return 0, fmt.Errorf("exercise %q: %w", chi.URLParam(r, "id"), model.ErrNotFound)
	}
	return id, nil
}

func (h *Handler) handleListExercises(w http.ResponseWriter, r *http.Request) {
	exercises, err := h.store.ListExercises(dataMode(r), h.origin(r))
	if err != nil {
		writeError(w, r, err, emptyList)
		return
	}
	writeJSON(w, http.StatusOK, exercises)
}

func (h *Handler) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	id, err := exerciseID(r)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	ex, err := h.store.GetExercise(dataMode(r), id, h.origin(r))
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (h *Handler) handleSaveExercise(w http.ResponseWriter, r *http.Request) {
	var ex model.Exercise
	if err := decodeJSON(w, r, &ex); err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	if err := h.store.SaveExercise(dataMode(r), ex); err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	saved, err := h.store.GetExercise(dataMode(r), ex.ID, h.origin(r))
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// handleExerciseData zips a directory of an exercise, such as a submission
// repository referenced by a download URL. Without a path it zips the
// whole exercise directory.
func (h *Handler) handleExerciseData(w http.ResponseWriter, r *http.Request) {
	id, err := exerciseID(r)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	rel := chi.URLParam(r, "*")
	name := path.Base(path.Clean("/" + rel))
	if name == "/" {
		name = "exercise-" + strconv.Itoa(id)
	}
	mode := dataMode(r)
	streamAttachment(w, r, "application/zip", name+".zip", func(out io.Writer) error {
		return h.store.ExportDir(mode, id, rel, out)
	})
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	filter, err := exerciseFilter(r)
	if err != nil {
		writeError(w, r, err, emptyList)
		return
	}
	subs, err := h.store.ListSubmissions(dataMode(r), filter, h.origin(r))
	if err != nil {
		writeError(w, r, err, emptyList)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) handleSaveSubmission(w http.ResponseWriter, r *http.Request) {
	var sub model.Submission
	if err := decodeJSON(w, r, &sub); err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	if err := h.store.SaveSubmission(dataMode(r), sub); err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *Handler) handleListFeedbacks(w http.ResponseWriter, r *http.Request) {
	filter, err := exerciseFilter(r)
	if err != nil {
		writeError(w, r, err, emptyList)
		return
	}
	fbs, err := h.store.ListFeedbacks(dataMode(r), filter)
	if err != nil {
		writeError(w, r, err, emptyList)
		return
	}
	writeJSON(w, http.StatusOK, fbs)
}

func (h *Handler) handleSaveFeedback(w http.ResponseWriter, r *http.Request) {
	var fb model.Feedback
	if err := decodeJSON(w, r, &fb); err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	saved, err := h.store.SaveFeedback(dataMode(r), fb)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	mode := dataMode(r)
	ok := streamAttachment(w, r, "application/zip", string(mode)+".zip", func(out io.Writer) error {
		return h.store.ExportPartition(mode, out)
	})
	if ok {
		metrics.PartitionOp("export")
	}
}
