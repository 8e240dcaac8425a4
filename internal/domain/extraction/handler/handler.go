// Package handler exposes the extraction pipeline over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/ledgerpoint/practice-api/internal/domain/extraction"
	"github.com/ledgerpoint/practice-api/internal/domain/extraction/service"
)

// ExtractionRunner runs the pipeline for one upload
type ExtractionRunner interface {
	Run(ctx context.Context, uploadID uuid.UUID) (*service.ExtractionResult, error)
}

// ExtractionHandler handles extraction trigger requests
type ExtractionHandler struct {
	svc    ExtractionRunner
	logger *slog.Logger
}

// NewExtractionHandler creates a new extraction handler
func NewExtractionHandler(svc ExtractionRunner, logger *slog.Logger) *ExtractionHandler {
	return &ExtractionHandler{svc: svc, logger: logger}
}

// RegisterRoutes attaches the extraction endpoints to the mux
func (h *ExtractionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/uploads/{id}/extract", h.Extract)
}

// extractResponse is the success body for an extraction run
type extractResponse struct {
	Success        bool                  `json:"success"`
	UploadID       uuid.UUID             `json:"uploadId"`
	YearsExtracted int                   `json:"yearsExtracted"`
	SavedRecords   int                   `json:"savedRecords"`
	FiscalYears    []int                 `json:"fiscalYears"`
	SavedYears     []service.YearOutcome `json:"savedYears"`
	LatestYear     *service.LatestYear   `json:"latestYear,omitempty"`
	Notes          []string              `json:"notes"`
}

// errorResponse is the failure body for any pipeline error
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Extract triggers the pipeline for the upload named in the path
func (h *ExtractionHandler) Extract(w http.ResponseWriter, r *http.Request) {
	uploadID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid upload id"})
		return
	}

	result, err := h.svc.Run(r.Context(), uploadID)
	if err != nil {
		h.logger.Error("extraction request failed",
			slog.String("uploadId", uploadID.String()),
			slog.Any("error", err),
		)
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{
		Success:        true,
		UploadID:       result.UploadID,
		YearsExtracted: result.YearsExtracted,
		SavedRecords:   result.SavedRecords,
		FiscalYears:    result.FiscalYears,
		SavedYears:     result.SavedYears,
		LatestYear:     result.LatestYear,
		Notes:          result.Notes,
	})
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	var (
		notFound     *extraction.NotFoundError
		insufficient *extraction.InsufficientTextError
		malformed    *extraction.MalformedExtractionError
		provider     *extraction.ProviderError
		storage      *extraction.StorageError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &insufficient), errors.As(err, &malformed):
		return http.StatusUnprocessableEntity
	case errors.As(err, &provider), errors.As(err, &storage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
