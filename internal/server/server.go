package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rkervin/rollcall/internal/handler"
	"github.com/rkervin/rollcall/internal/middleware"
	"github.com/rkervin/rollcall/internal/redeem"
	"github.com/rkervin/rollcall/internal/registry"
	"github.com/rkervin/rollcall/internal/session"
	"github.com/rkervin/rollcall/internal/store"
	ws "github.com/rkervin/rollcall/internal/websocket"
)

type Config struct {
	IdentitySecret []byte
	Session        session.Config
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	manager     *session.Manager
	sessionH    *handler.SessionHandler
	scanH       *handler.ScanHandler
	attendanceH *handler.AttendanceHandler
	rateLimiter *middleware.RateLimiter
	secret      []byte
	logger      *slog.Logger
}

func New(db *sql.DB, reg *registry.Registry, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	credStore := store.NewCredentialStore(db)
	attendanceStore := store.NewAttendanceStore(db)

	manager := session.NewManager(credStore, reg, cfg.Session, func(e session.Event) {
		hub.Broadcast(sessionMessage(e))
	}, logger.With("component", "session"))

	validator := redeem.NewValidator(credStore, attendanceStore, logger.With("component", "redeem"))

	return &Server{
		db:          db,
		hub:         hub,
		manager:     manager,
		sessionH:    handler.NewSessionHandler(manager, credStore, logger.With("component", "session_handler")),
		scanH:       handler.NewScanHandler(validator, logger.With("component", "scan")),
		attendanceH: handler.NewAttendanceHandler(attendanceStore, logger.With("component", "attendance")),
		rateLimiter: middleware.NewRateLimiter(),
		secret:      cfg.IdentitySecret,
		logger:      logger,
	}
}

// sessionMessage converts a session event into the wire message pushed to
// connected session boards.
func sessionMessage(e session.Event) ws.Message {
	data := map[string]any{
		"close_at":     e.CloseAt,
		"remaining_ms": e.RemainingMS,
	}
	switch e.Type {
	case session.EventRotated:
		data["payload"] = e.Payload
		data["expires_at"] = e.ExpiresAt
	case session.EventClosed:
		data["reason"] = string(e.Reason)
	}
	return ws.Message{
		Type:        e.Type,
		TimetableID: e.Class.TimetableID,
		Data:        data,
	}
}

// Manager returns the session manager for lifecycle tasks (resume, shutdown).
func (s *Server) Manager() *session.Manager {
	return s.manager
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireIdentity middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireIdentity(s.secret)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 30, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func teacherOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.RequireTeacher(h).ServeHTTP(w, r)
	}
}

func studentOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.RequireStudent(h).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Teacher session lifecycle
	mux.HandleFunc("POST /api/classes/{timetableID}/session", teacherOnly(s.sessionH.Start))
	mux.HandleFunc("DELETE /api/classes/{timetableID}/session", teacherOnly(s.sessionH.Cancel))
	mux.HandleFunc("GET /api/classes/{timetableID}/session", teacherOnly(s.sessionH.Status))
	mux.HandleFunc("GET /api/classes/{timetableID}/session/qr.png", teacherOnly(s.sessionH.QRImage))

	// Class attendance sheet
	mux.HandleFunc("GET /api/classes/{timetableID}/attendance", teacherOnly(s.attendanceH.ListByClass))

	// Student scan + history
	mux.HandleFunc("POST /api/scan", s.rateLimitedHandler(studentOnly(s.scanH.Scan)))
	mux.HandleFunc("GET /api/attendance", s.attendanceH.ListMine)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.Handle(s.hub, s.logger.With("component", "websocket")))
}
