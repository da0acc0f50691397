package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/rkervin/rollcall/internal/model"
	"github.com/rkervin/rollcall/internal/registry"
	"github.com/rkervin/rollcall/internal/token"
)

var (
	// ErrSessionActive means the class already has an open session; the
	// teacher must wait for it to close before starting another.
	ErrSessionActive = errors.New("attendance session already open for this class")

	// ErrNoSession means no open session exists for the class.
	ErrNoSession = errors.New("no open attendance session for this class")
)

// CredentialWriter is the slice of the credential store the generator needs.
type CredentialWriter interface {
	Append(model.Credential) error
}

// Manager owns every open attendance session on this device. It enforces
// at most one open session per class, persists deadlines to the registry so
// a restart inside the window resumes instead of duplicating, and emits
// lifecycle events for the teacher UI.
type Manager struct {
	creds  CredentialWriter
	reg    *registry.Registry
	cfg    Config
	emit   EventFunc
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. emit may be nil.
func NewManager(creds CredentialWriter, reg *registry.Registry, cfg Config, emit EventFunc, logger *slog.Logger) *Manager {
	return &Manager{
		creds:    creds,
		reg:      reg,
		cfg:      cfg.withDefaults(),
		emit:     emit,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open starts a new attendance session for the class: registers the
// deadline, begins credential rotation, and emits an opened event. It fails
// with ErrSessionActive if the class already has an open session.
func (m *Manager) Open(class model.Class) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[class.TimetableID]; ok && existing.State() == StateOpen {
		return nil, ErrSessionActive
	}

	openAt := m.now()
	closeAt := openAt.Add(m.cfg.Duration)
	if err := m.reg.Register(class, closeAt.UnixMilli()); err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}

	s := m.start(class, openAt, closeAt)
	return s, nil
}

// Resume reconstructs open sessions from the registry after a restart.
// Remaining time comes from each persisted deadline, not from a fresh
// window; entries whose deadline has already passed are purged by the
// registry read and never restarted. Returns the number of sessions
// resumed.
func (m *Manager) Resume() (int, error) {
	now := m.now()
	entries, err := m.reg.ListActive(now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("resume sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	resumed := 0
	for _, e := range entries {
		if existing, ok := m.sessions[e.Class.TimetableID]; ok && existing.State() == StateOpen {
			continue
		}
		closeAt := time.UnixMilli(e.CloseAt)
		m.start(e.Class, closeAt.Add(-m.cfg.Duration), closeAt)
		resumed++
	}
	return resumed, nil
}

// start launches the session goroutine. Caller holds m.mu.
func (m *Manager) start(class model.Class, openAt, closeAt time.Time) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		class:   class,
		openAt:  openAt,
		closeAt: closeAt,
		state:   StateOpen,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.sessions[class.TimetableID] = s

	m.logger.Info("session opened",
		"timetable_id", class.TimetableID,
		"close_at", closeAt.UnixMilli(),
	)
	m.emitEvent(Event{
		Type:        EventOpened,
		Class:       class,
		CloseAt:     s.CloseAt(),
		RemainingMS: int64(s.Remaining(m.now()) / time.Millisecond),
	})

	go m.run(ctx, s)
	return s
}

// run drives one session: the rotation ticker and the close deadline live
// in a single select loop so that every exit path tears both down.
func (m *Manager) run(ctx context.Context, s *Session) {
	defer close(s.done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	deadline := time.NewTimer(s.closeAt.Sub(m.now()))
	defer deadline.Stop()

	// First credential immediately on open; the ticker covers the rest.
	if !m.mint(s) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			// Process shutdown or close; nothing more to do here. close()
			// has already emitted its event if this was a real close.
			return
		case <-deadline.C:
			m.close(s, ReasonTimeout)
			return
		case <-ticker.C:
			if !m.mint(s) {
				return
			}
		}
	}
}

// mint issues one credential and returns false if the session deadline was
// reached instead. No credential is ever issued at or after the deadline.
func (m *Manager) mint(s *Session) bool {
	now := m.now()
	if !now.Before(s.closeAt) {
		m.close(s, ReasonTimeout)
		return false
	}

	p := token.Payload{
		UniversityID: s.class.UniversityID,
		TeacherID:    s.class.TeacherID,
		TimetableID:  s.class.TimetableID,
		ExpiresAt:    now.Add(2 * m.cfg.Interval).UnixMilli(),
	}
	cred := model.Credential{
		ID:          uuid.NewString(),
		Class:       s.class,
		Value:       token.Encode(p),
		GeneratedAt: now.UnixMilli(),
		ExpiresAt:   p.ExpiresAt,
	}

	s.setCurrent(cred)
	m.persist(cred)
	m.emitEvent(Event{
		Type:        EventRotated,
		Class:       s.class,
		Payload:     cred.Value,
		ExpiresAt:   cred.ExpiresAt,
		CloseAt:     s.CloseAt(),
		RemainingMS: int64(s.Remaining(now) / time.Millisecond),
	})
	return true
}

// persist appends the credential to the store without blocking the rotation
// loop. Failures are retried briefly in the background and then logged;
// issuance is best-effort and the next tick proceeds regardless.
func (m *Manager) persist(cred model.Credential) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		backoff := retry.WithMaxRetries(2, retry.NewExponential(100*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := m.creds.Append(cred); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			m.logger.Error("persist credential",
				"timetable_id", cred.Class.TimetableID,
				"error", err,
			)
		}
	}()
}

// Cancel closes the class's open session before its deadline.
func (m *Manager) Cancel(timetableID string) error {
	m.mu.Lock()
	s := m.sessions[timetableID]
	m.mu.Unlock()

	if s == nil || s.State() != StateOpen {
		return ErrNoSession
	}
	m.close(s, ReasonCancelled)
	return nil
}

// close ends a session exactly once: stops the rotation loop, clears the
// registry entry, and emits a single closed event whether the session timed
// out or was cancelled.
func (m *Manager) close(s *Session, reason CloseReason) {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		s.cancel()

		if err := m.reg.Unregister(s.class.TimetableID); err != nil {
			m.logger.Error("unregister session",
				"timetable_id", s.class.TimetableID,
				"error", err,
			)
		}

		m.mu.Lock()
		if m.sessions[s.class.TimetableID] == s {
			delete(m.sessions, s.class.TimetableID)
		}
		m.mu.Unlock()

		m.logger.Info("session closed",
			"timetable_id", s.class.TimetableID,
			"reason", string(reason),
		)
		m.emitEvent(Event{
			Type:    EventClosed,
			Class:   s.class,
			CloseAt: s.CloseAt(),
			Reason:  reason,
		})
	})
}

// Get returns the open session for a class, if there is one.
func (m *Manager) Get(timetableID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[timetableID]
	return s, ok
}

// Shutdown stops all rotation loops without unregistering deadlines, so
// sessions still inside their window resume on the next start. It waits for
// the session goroutines to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
	}
	for _, s := range sessions {
		<-s.done
	}
}

func (m *Manager) emitEvent(e Event) {
	if m.emit != nil {
		m.emit(e)
	}
}
