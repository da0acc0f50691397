package handler

import (
	"log/slog"
	"net/http"

	"github.com/rkervin/rollcall/internal/identity"
	"github.com/rkervin/rollcall/internal/model"
	"github.com/rkervin/rollcall/internal/store"
)

// AttendanceHandler serves attendance history for students and teachers.
type AttendanceHandler struct {
	ledger *store.AttendanceStore
	logger *slog.Logger
}

func NewAttendanceHandler(ledger *store.AttendanceStore, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{ledger: ledger, logger: logger}
}

// ListMine returns the authenticated student's own attendance history.
func (h *AttendanceHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	records, err := h.ledger.ListByStudent(id.UniversityID, id.UID)
	if err != nil {
		h.logger.Error("list attendance by student", "student_uid", id.UID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load attendance history")
		return
	}
	if records == nil {
		records = []model.AttendanceRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"records": records,
	})
}

// ListByClass returns the attendance sheet for one of the teacher's classes.
func (h *AttendanceHandler) ListByClass(w http.ResponseWriter, r *http.Request) {
	class, ok := classFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing timetable id")
		return
	}

	records, err := h.ledger.ListByClass(class)
	if err != nil {
		h.logger.Error("list attendance by class", "timetable_id", class.TimetableID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load attendance sheet")
		return
	}
	if records == nil {
		records = []model.AttendanceRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"records": records,
	})
}
