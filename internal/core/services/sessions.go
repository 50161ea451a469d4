package services

import (
	"sort"
	"sync"
	"time"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

// SessionStore is the per-process session state machine. Each session has its
// own mutex; there is no lock spanning sessions.
type SessionStore struct {
	entries sync.Map // string -> *sessionEntry
	now     func() time.Time
}

type sessionEntry struct {
	mu      sync.Mutex
	removed bool
	turns   []domain.Turn
	state   domain.SessionState
	last    *domain.AnalysisPlan
}

// SessionOption configures a SessionStore.
type SessionOption func(*SessionStore)

// WithClock overrides the clock used to stamp turns.
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionStore) { s.now = now }
}

// NewSessionStore constructs an empty store.
func NewSessionStore(opts ...SessionOption) *SessionStore {
	s := &SessionStore{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) entry(id string) *sessionEntry {
	if e, ok := s.entries.Load(id); ok {
		return e.(*sessionEntry)
	}
	e, _ := s.entries.LoadOrStore(id, &sessionEntry{state: domain.StateGathering})
	return e.(*sessionEntry)
}

// lock returns the live entry for id with its mutex held, creating it if needed.
func (s *SessionStore) lock(id string) *sessionEntry {
	for {
		e := s.entry(id)
		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
	}
}

// AppendTurn records a turn, creating the session if absent. It waits for any
// in-flight request on the same session.
func (s *SessionStore) AppendTurn(id string, role domain.Role, text string) {
	e := s.lock(id)
	defer e.mu.Unlock()
	s.appendLocked(e, role, text)
}

func (s *SessionStore) appendLocked(e *sessionEntry, role domain.Role, text string) domain.Turn {
	turn := domain.Turn{Role: role, Text: text, At: s.now()}
	e.turns = append(e.turns, turn)
	if role == domain.RoleUser && e.state == domain.StateAnalysisComplete {
		e.state = domain.StateGathering
	}
	return turn
}

// ShouldTriggerAnalysis reports whether the conversation is waiting on an
// analysis. Readiness itself is decided by the model, so the only local rule
// is that the newest turn came from the user.
func (s *SessionStore) ShouldTriggerAnalysis(id string) bool {
	v, ok := s.entries.Load(id)
	if !ok {
		return false
	}
	e := v.(*sessionEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.removed && shouldTrigger(e.turns)
}

func shouldTrigger(turns []domain.Turn) bool {
	return len(turns) > 0 && turns[len(turns)-1].Role == domain.RoleUser
}

// Reset drops the session. Unknown ids are a no-op.
func (s *SessionStore) Reset(id string) {
	v, ok := s.entries.Load(id)
	if !ok {
		return
	}
	e := v.(*sessionEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return
	}
	e.removed = true
	e.turns = nil
	e.last = nil
	s.entries.CompareAndDelete(id, e)
}

// Snapshot returns a copy of the session, or false if it does not exist.
func (s *SessionStore) Snapshot(id string) (domain.Session, bool) {
	v, ok := s.entries.Load(id)
	if !ok {
		return domain.Session{ID: id, State: domain.StateGathering}, false
	}
	e := v.(*sessionEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return domain.Session{ID: id, State: domain.StateGathering}, false
	}
	return domain.Session{
		ID:           id,
		Turns:        append([]domain.Turn(nil), e.turns...),
		State:        e.state,
		LastAnalysis: e.last,
	}, true
}

// IDs lists known session ids in lexical order.
func (s *SessionStore) IDs() []string {
	var ids []string
	s.entries.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// TryAcquire takes exclusive hold of a session for one request. It fails
// with domain.ErrSessionBusy instead of waiting.
func (s *SessionStore) TryAcquire(id string) (*SessionLease, error) {
	for {
		e := s.entry(id)
		if !e.mu.TryLock() {
			return nil, domain.ErrSessionBusy
		}
		if e.removed {
			e.mu.Unlock()
			continue
		}
		return &SessionLease{store: s, id: id, e: e}, nil
	}
}

// SessionLease is exclusive access to one session. It is not safe for use
// from multiple goroutines and must be released exactly once.
type SessionLease struct {
	store    *SessionStore
	id       string
	e        *sessionEntry
	released bool
}

// ID returns the leased session id.
func (l *SessionLease) ID() string { return l.id }

// AppendTurn records a turn on the held session.
func (l *SessionLease) AppendTurn(role domain.Role, text string) domain.Turn {
	return l.store.appendLocked(l.e, role, text)
}

// Turns returns a copy of the turn history.
func (l *SessionLease) Turns() []domain.Turn {
	return append([]domain.Turn(nil), l.e.turns...)
}

// State returns the current session state.
func (l *SessionLease) State() domain.SessionState { return l.e.state }

// CompleteAnalysis caches the plan and moves the session to analysis_complete.
func (l *SessionLease) CompleteAnalysis(plan *domain.AnalysisPlan) {
	l.e.last = plan
	l.e.state = domain.StateAnalysisComplete
}

// Release gives the session back. Further calls are no-ops.
func (l *SessionLease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.e.mu.Unlock()
}
