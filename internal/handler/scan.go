package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rkervin/rollcall/internal/identity"
	"github.com/rkervin/rollcall/internal/redeem"
)

// ScanHandler accepts scanned QR payloads from students and marks attendance.
type ScanHandler struct {
	validator *redeem.Validator
	logger    *slog.Logger
}

func NewScanHandler(validator *redeem.Validator, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{validator: validator, logger: logger}
}

type scanRequest struct {
	Payload string `json:"payload"`
}

func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.validator.Redeem(req.Payload, id.Student())
	if err != nil {
		switch {
		case errors.Is(err, redeem.ErrMalformedCredential):
			writeError(w, http.StatusBadRequest, "invalid QR code")
		case errors.Is(err, redeem.ErrCredentialExpired):
			writeError(w, http.StatusGone, "QR code expired, scan the current one")
		case errors.Is(err, redeem.ErrCredentialUnrecognized):
			writeError(w, http.StatusNotFound, "QR code not recognized")
		default:
			h.logger.Error("redeem credential", "student_uid", id.UID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record attendance")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "ok",
		"record": rec,
	})
}
