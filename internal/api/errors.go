package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xtrntr/landmarket/internal/marketplace"
	"github.com/xtrntr/landmarket/internal/models"
)

const (
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidID            = "invalid_id"
	codeInvalidInput         = "invalid_input"
	codeUnauthenticated      = "unauthenticated"
	codeInvalidCredentials   = "invalid_credentials"
	codeForbidden            = "forbidden"
	codeNotFound             = "not_found"
	codeStateConflict        = "state_conflict"
	codeUsernameTaken        = "username_taken"
	codeConfigurationMissing = "configuration_missing"
	codeTransferRejected     = "transfer_rejected"
	codeTransportError       = "transport_error"
	codeUnavailable          = "unavailable"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error       string              `json:"error"`
	Code        string              `json:"code"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// statusFor maps a marketplace error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, marketplace.ErrUnauthenticated):
		return http.StatusUnauthorized, codeUnauthenticated
	case errors.Is(err, marketplace.ErrForbidden):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, marketplace.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, marketplace.ErrStateConflict):
		return http.StatusConflict, codeStateConflict
	case errors.Is(err, marketplace.ErrInvalidInput):
		return http.StatusBadRequest, codeInvalidInput
	case errors.Is(err, marketplace.ErrConfigurationMissing):
		return http.StatusServiceUnavailable, codeConfigurationMissing
	case errors.Is(err, marketplace.ErrTransferRejected):
		return http.StatusConflict, codeTransferRejected
	case errors.Is(err, marketplace.ErrTransportError):
		return http.StatusBadGateway, codeTransportError
	default:
		return http.StatusInternalServerError, codeInternalError
	}
}

// writeServiceError writes err with the transaction attached when a purchase
// reached the registry. Internal errors are logged and not echoed.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, tx *models.Transaction) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			slog.Any("error", err),
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code, Transaction: tx})
}
