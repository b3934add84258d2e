package reconcile

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a session controller state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Session is one reconciliation pass.
type Session struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"startTime"`
	EndedAt   time.Time `json:"endTime"`
	Result    Result    `json:"result"`
	Err       error     `json:"-"`
}

// Duration returns the elapsed time of a finished session.
func (s *Session) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// SessionIDPattern matches ids produced by NewSessionID.
var SessionIDPattern = regexp.MustCompile(`^SYNC_\d+_[a-z0-9]{9}$`)

// NewSessionID returns SYNC_<unix-ms>_<9 random lowercase alphanumerics>.
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("SYNC_%d_%s", now.UnixMilli(), suffix)
}

// stateMachine guards the idle/running transition. It is the only source of
// truth for whether a pass may start.
type stateMachine struct {
	mu      sync.Mutex
	state   Status
	last    Status
	current *Session
}

func newStateMachine() *stateMachine {
	return &stateMachine{state: StatusIdle, last: StatusIdle}
}

// begin moves Idle to Running and returns the new session.
func (m *stateMachine) begin(now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StatusRunning {
		return nil, ErrSyncInProgress
	}
	s := &Session{ID: NewSessionID(now), Status: StatusRunning, StartedAt: now}
	m.state = StatusRunning
	m.current = s
	return s, nil
}

// finish records the terminal status and returns the machine to Idle.
func (m *stateMachine) finish(s *Session, status Status, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Status = status
	s.EndedAt = now
	m.last = status
	m.state = StatusIdle
	m.current = nil
}

// acquire moves Idle to Running without opening a session. Manual resolutions
// hold it so that no pass writes at the same time.
func (m *stateMachine) acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StatusRunning {
		return false
	}
	m.state = StatusRunning
	return true
}

// release returns to Idle after acquire. The last terminal status is kept.
func (m *stateMachine) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StatusIdle
}

// snapshot returns the current state, the last terminal status and the in-flight session id.
func (m *stateMachine) snapshot() (state, last Status, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		sessionID = m.current.ID
	}
	return m.state, m.last, sessionID
}

func (m *stateMachine) idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StatusIdle
}
