// Package sessionmanager owns the process-wide SessionId -> DebugSession
// index: creation, lookup, pruning, and teardown.
package sessionmanager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/workspace/cdp-debugger/internal/config"
	"github.com/workspace/cdp-debugger/internal/debugerr"
	"github.com/workspace/cdp-debugger/internal/session"
	"github.com/workspace/cdp-debugger/internal/spawner"
)

// Manager indexes every live DebugSession. It is the only process-wide
// mutable structure in the orchestrator; all reads and writes are
// serialized through mu.
type Manager struct {
	cfg *config.Config

	mu       sync.RWMutex
	sessions map[string]*session.Session

	counter uint64
}

// New constructs an empty Manager.
func New(cfg *config.Config) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*session.Session),
	}
}

// generateID produces a unique, human-scannable session id: a
// configured prefix, a monotonic counter, and a uuid suffix so ids stay
// unique even across manager restarts within the same process.
func (m *Manager) generateID() string {
	n := atomic.AddUint64(&m.counter, 1)
	return fmt.Sprintf("%s-%d-%s", m.cfg.SessionIDPrefix, n, uuid.NewString())
}

// CreateSession allocates a new session id, constructs and starts a
// DebugSession against opts. If Start fails, the error propagates and
// the session is NOT retained in the index — the catalogue must remain
// consistent with only successfully started sessions.
func (m *Manager) CreateSession(ctx context.Context, opts spawner.Options) (*session.Session, error) {
	id := m.generateID()
	s := session.New(id, m.cfg)

	if err := s.Start(ctx, opts); err != nil {
		return nil, err
	}

	s.OnCrash(func(error) {
		m.removeFromIndex(id)
	})

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	return s, nil
}

// GetSession returns the session for id, if present.
func (m *Manager) GetSession(id string) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// HasSession reports whether id is currently indexed.
func (m *Manager) HasSession(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// RemoveSession awaits the session's cleanup and removes it from the
// index, forwarding any cleanup error.
func (m *Manager) RemoveSession(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return debugerr.New(debugerr.NotFound, fmt.Sprintf("no session %q", id))
	}
	return s.Cleanup(ctx)
}

func (m *Manager) removeFromIndex(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// CleanupAll tears down every indexed session. Per-session cleanup errors
// are collected but do not stop the sweep.
func (m *Manager) CleanupAll(ctx context.Context) []error {
	m.mu.Lock()
	sessions := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*session.Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Cleanup(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// PruneTerminatedSessions removes every indexed session whose state is
// Terminated, without re-running their cleanup (assumed already
// terminated via crash handling or an explicit RemoveSession).
func (m *Manager) PruneTerminatedSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for id, s := range m.sessions {
		if s.State() == session.Terminated {
			delete(m.sessions, id)
			pruned++
		}
	}
	return pruned
}

// Count returns the number of currently indexed sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ListIDs returns every indexed session id, in no particular order.
func (m *Manager) ListIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
