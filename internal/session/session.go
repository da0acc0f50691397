package session

import (
	"context"
	"sync"
	"time"

	"github.com/rkervin/rollcall/internal/model"
)

// State is the lifecycle state of one attendance session.
type State string

const (
	StateIdle   State = "idle"
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// CloseReason records why a session left the open state.
type CloseReason string

const (
	ReasonTimeout   CloseReason = "timeout"
	ReasonCancelled CloseReason = "cancelled"
)

// Event types emitted by the manager. The server bridges these to the
// websocket hub for the teacher UI.
const (
	EventOpened  = "session_opened"
	EventRotated = "credential_rotated"
	EventClosed  = "session_closed"
)

// Event is one session lifecycle notification.
type Event struct {
	Type        string
	Class       model.Class
	Payload     string // current credential value, rotation events only
	ExpiresAt   int64  // credential expiry, rotation events only
	CloseAt     int64
	RemainingMS int64
	Reason      CloseReason // close events only
}

// EventFunc receives session events. It is called from session goroutines
// and must not block.
type EventFunc func(Event)

// Config controls session timing. The defaults match the classroom
// protocol: a 1-second rotation cadence inside a 5-minute window, with each
// credential valid for two rotation intervals.
type Config struct {
	Interval time.Duration
	Duration time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.Duration <= 0 {
		c.Duration = 5 * time.Minute
	}
	return c
}

// Session is one open attendance window for one class. It owns the rotation
// ticker and the close deadline; both are torn down together on every exit
// path. Closed is terminal: reopening a class creates a fresh Session.
type Session struct {
	class   model.Class
	openAt  time.Time
	closeAt time.Time

	mu      sync.Mutex
	state   State
	current model.Credential

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Class returns the class the session was opened for.
func (s *Session) Class() model.Class {
	return s.class
}

// CloseAt returns the session deadline in wall-clock milliseconds.
func (s *Session) CloseAt() int64 {
	return s.closeAt.UnixMilli()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the most recently minted credential, if any.
func (s *Session) Current() (model.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current.Value != ""
}

// Remaining returns how long the session has left at the given instant.
// Never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	d := s.closeAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) setCurrent(c model.Credential) {
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
}

// Done is closed when the session goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
