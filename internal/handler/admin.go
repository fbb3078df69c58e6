package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	appI18n "github.com/pavelanni/athena-playground/internal/i18n"
	"github.com/pavelanni/athena-playground/internal/metrics"
	"github.com/pavelanni/athena-playground/internal/model"
)

const maxUploadMemory = 32 << 20

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	mode := dataMode(r)
	if err := h.store.DeletePartition(mode); err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	metrics.PartitionOp("delete")
	writeJSON(w, http.StatusOK, emptyObject)
}

type importResponse struct {
	Mode   model.DataMode `json:"mode"`
	Files  int            `json:"files"`
	SHA256 string         `json:"sha256"`
	Repeat bool           `json:"repeat"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	mode := dataMode(r)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeMessage(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrMissingFile"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrMissingFile"))
		return
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		writeError(w, r, fmt.Errorf("hash upload: %w", err), emptyObject)
		return
	}
	sum := hex.EncodeToString(hasher.Sum(nil))

	n, err := h.store.ImportPartition(mode, file, hdr.Size)
	if err != nil {
		writeError(w, r, err, emptyObject)
		return
	}
	metrics.PartitionOp("import")

	last, err := h.history.LastImportHash(mode)
	if err != nil {
		slog.Warn("read import history", "mode", mode, "error", err)
	}
	repeat := last == sum
	if repeat {
		slog.Info("archive identical to the previous import", "mode", mode, "sha256", sum)
	}
	if err := h.history.RecordImport(model.ImportRecord{Mode: mode, SHA256: sum, Files: n}); err != nil {
		slog.Warn("record import", "mode", mode, "error", err)
	}
	slog.Info("imported partition", "mode", mode, "files", n, "upload", hdr.Filename)

	writeJSON(w, http.StatusOK, importResponse{Mode: mode, Files: n, SHA256: sum, Repeat: repeat})
}

func (h *Handler) handleListImports(w http.ResponseWriter, r *http.Request) {
	imports, err := h.history.ListImports(dataMode(r))
	if err != nil {
		writeError(w, r, err, emptyList)
		return
	}
	writeJSON(w, http.StatusOK, imports)
}
