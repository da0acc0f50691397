package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rkervin/rollcall/internal/identity"
	"github.com/rkervin/rollcall/internal/model"
	"github.com/rkervin/rollcall/internal/qr"
	"github.com/rkervin/rollcall/internal/session"
)

// CredentialCounter reports how many credentials have been issued for a
// class so far.
type CredentialCounter interface {
	CountByClass(class model.Class) (int64, error)
}

// SessionHandler exposes the teacher-side session lifecycle: start, cancel,
// status, and the live QR image.
type SessionHandler struct {
	manager *session.Manager
	counter CredentialCounter
	logger  *slog.Logger
}

func NewSessionHandler(manager *session.Manager, counter CredentialCounter, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{manager: manager, counter: counter, logger: logger}
}

// classFromRequest builds the class scope from the authenticated teacher
// and the timetable path parameter.
func classFromRequest(r *http.Request) (model.Class, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		return model.Class{}, false
	}
	timetableID := r.PathValue("timetableID")
	if timetableID == "" {
		return model.Class{}, false
	}
	return model.Class{
		UniversityID: id.UniversityID,
		TeacherID:    id.UID,
		TimetableID:  timetableID,
	}, true
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	class, ok := classFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing timetable id")
		return
	}

	s, err := h.manager.Open(class)
	if errors.Is(err, session.ErrSessionActive) {
		writeError(w, http.StatusConflict, "an attendance session is already open for this class")
		return
	}
	if err != nil {
		h.logger.Error("open session", "timetable_id", class.TimetableID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to open attendance session")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":       "ok",
		"state":        s.State(),
		"close_at":     s.CloseAt(),
		"remaining_ms": s.Remaining(time.Now()).Milliseconds(),
	})
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	class, ok := classFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing timetable id")
		return
	}

	if err := h.manager.Cancel(class.TimetableID); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			writeError(w, http.StatusNotFound, "no open attendance session for this class")
			return
		}
		h.logger.Error("cancel session", "timetable_id", class.TimetableID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel attendance session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	class, ok := classFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing timetable id")
		return
	}

	s, open := h.manager.Get(class.TimetableID)
	if !open || s.State() != session.StateOpen {
		writeJSON(w, http.StatusOK, map[string]any{"state": session.StateIdle})
		return
	}

	issued, err := h.counter.CountByClass(class)
	if err != nil {
		h.logger.Error("count issued credentials", "timetable_id", class.TimetableID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":        s.State(),
		"close_at":     s.CloseAt(),
		"remaining_ms": s.Remaining(time.Now()).Milliseconds(),
		"issued":       issued,
	})
}

// QRImage serves the current credential as a PNG. The image changes every
// rotation tick, so it is served uncacheable.
func (h *SessionHandler) QRImage(w http.ResponseWriter, r *http.Request) {
	class, ok := classFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing timetable id")
		return
	}

	s, open := h.manager.Get(class.TimetableID)
	if !open || s.State() != session.StateOpen {
		writeError(w, http.StatusNotFound, "no open attendance session for this class")
		return
	}
	cred, ok := s.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no credential issued yet")
		return
	}

	png, err := qr.PNG(cred.Value, qr.DefaultSize)
	if err != nil {
		h.logger.Error("render qr", "timetable_id", class.TimetableID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}
