package api

import (
	"encoding/json"
	stderrors "errors"
	"mime/multipart"
	"net/http"

	"settlement-reconciliation-service/internal/reconciler"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
)

// RunIDHeader carries the run identifier of a reconciliation response
const RunIDHeader = "X-Reconciliation-ID"

// Multipart form fields of POST /api/reconcile
const (
	OrdersField      = "orders_file"
	SettlementsField = "settlements_file"
)

// Handlers groups all HTTP handler methods and their dependencies
type Handlers struct {
	reconciler     Reconciler
	maxUploadBytes int64
	logger         logger.Logger
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// Reconcile handles POST /api/reconcile
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	runID := uuid.NewString()
	w.Header().Set(RunIDHeader, runID)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.writeError(w, errors.FileError(errors.CodeFileUnreadable, "upload", err).
				WithSuggestion("upload smaller files"))
			return
		}
		h.writeError(w, errors.FileError(errors.CodeUploadMissing, "multipart form", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	orders, err := formFile(r, OrdersField)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer orders.Close()

	settlements, err := formFile(r, SettlementsField)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer settlements.Close()

	ctx := reconciler.WithRunID(r.Context(), runID)
	result, err := h.reconciler.ReconcileReaders(ctx, orders, settlements)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// Health handles GET /api/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func formFile(r *http.Request, field string) (multipart.File, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, errors.FileError(errors.CodeUploadMissing, field, err)
	}
	return file, nil
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	rerr, ok := errors.AsReconcilerError(err)
	if !ok {
		rerr = errors.InternalError(errors.CodeUnexpectedError, "reconcile", err)
	}

	status := rerr.HTTPStatus()
	entry := h.logger.WithError(err).WithFields(logger.Fields{
		"code":   rerr.Code,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	h.writeJSON(w, status, ErrorResponse{Detail: rerr.Detail(), Code: string(rerr.Code)})
}
