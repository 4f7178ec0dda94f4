package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/scans"
)

// AuditRunner runs one audit. *scans.Runner implements it.
type AuditRunner interface {
	Run(ctx context.Context, creds common.Credentials) (*scans.Result, error)
}

// ScanStore lists and opens stored scan files. *scans.FileStore implements it.
type ScanStore interface {
	List() ([]string, error)
	Open(name, ext string) (*os.File, error)
}

// RunRequest is the body of POST /api/scans/run.
type RunRequest struct {
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	SessionToken string `json:"session_token"`
	Region       string `json:"region"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the scan endpoints.
type Handler struct {
	runner AuditRunner
	store  ScanStore
}

func NewHandler(runner AuditRunner, store ScanStore) *Handler {
	return &Handler{runner: runner, store: store}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	names, err := h.store.List()
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to list scans")
		writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(ctx, w, http.StatusOK, names)
}

func (h *Handler) RunScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.AccessKey == "" || req.SecretKey == "" {
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "access_key and secret_key are required"})
		return
	}

	res, err := h.runner.Run(ctx, common.Credentials{
		AccessKeyID:     req.AccessKey,
		SecretAccessKey: req.SecretKey,
		SessionToken:    req.SessionToken,
		Region:          req.Region,
	})
	var authErr *common.AuthError
	switch {
	case errors.As(err, &authErr):
		logger.Warn().Str("kind", string(authErr.Kind)).Msg("scan rejected: invalid credentials")
		writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
		return
	case err != nil:
		logger.Error().Err(err).Msg("scan failed")
		writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(ctx, w, http.StatusOK, res.Report)
}

func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, ".json", "application/json")
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, ".pdf", "application/pdf")
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, ext, contentType string) {
	ctx := r.Context()
	name := chi.URLParam(r, "filename")

	f, err := h.store.Open(name, ext)
	switch {
	case errors.Is(err, scans.ErrInvalidName):
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, scans.ErrNotFound):
		writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Str("file", name).Msg("failed to open scan file")
		writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	if ext == ".pdf" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	}
	if _, err := io.Copy(w, f); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("file", name).Msg("failed to send scan file")
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to encode response")
	}
}
