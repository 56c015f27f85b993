package sessionmanager

import (
	"context"
	"testing"
	"time"

	"github.com/workspace/cdp-debugger/internal/config"
	"github.com/workspace/cdp-debugger/internal/debugerr"
	"github.com/workspace/cdp-debugger/internal/session"
	"github.com/workspace/cdp-debugger/internal/spawner"
)

func TestCreateSessionPropagatesSpawnFailureWithoutRetaining(t *testing.T) {
	m := New(config.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := m.CreateSession(ctx, spawner.Options{
		Command: "this-binary-does-not-exist-anywhere",
		Mode:    spawner.ModeBreak,
		Timeout: 500 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected spawn failure error")
	}
	if kind, ok := debugerr.KindOf(err); !ok || kind != debugerr.SpawnError {
		t.Errorf("KindOf(err) = %v, %v, want SpawnError, true", kind, ok)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0 (failed session must not be retained)", m.Count())
	}
}

func TestGetSessionMissing(t *testing.T) {
	m := New(config.Default())
	_, ok := m.GetSession("nope")
	if ok {
		t.Error("GetSession(nope) = true, want false")
	}
	if m.HasSession("nope") {
		t.Error("HasSession(nope) = true, want false")
	}
}

func TestRemoveSessionMissingReturnsNotFound(t *testing.T) {
	m := New(config.Default())
	err := m.RemoveSession(context.Background(), "nope")
	if kind, ok := debugerr.KindOf(err); !ok || kind != debugerr.NotFound {
		t.Errorf("KindOf(err) = %v, %v, want NotFound, true", kind, ok)
	}
}

func TestGenerateIDIsUnique(t *testing.T) {
	m := New(config.Default())
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := m.generateID()
		if seen[id] {
			t.Fatalf("duplicate generated id %q", id)
		}
		seen[id] = true
	}
}

// insertDirect bypasses Start/spawn (which requires a real process) so
// Prune/CleanupAll can be exercised against sessions whose state is
// under direct test control.
func insertDirect(t *testing.T, m *Manager, id string) *session.Session {
	t.Helper()
	s := session.New(id, m.cfg)
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

func TestPruneTerminatedSessions(t *testing.T) {
	m := New(config.Default())
	insertDirect(t, m, "a")
	sb := insertDirect(t, m, "b")

	sb.Cleanup(context.Background()) // drives b to Terminated

	if got := m.Count(); got != 2 {
		t.Fatalf("Count() before prune = %d, want 2", got)
	}
	pruned := m.PruneTerminatedSessions()
	if pruned != 1 {
		t.Errorf("PruneTerminatedSessions() = %d, want 1", pruned)
	}
	if got := m.Count(); got != 1 {
		t.Errorf("Count() after prune = %d, want 1", got)
	}
	if !m.HasSession("a") {
		t.Error("session a should remain (not terminated)")
	}
}

func TestCleanupAllEmptiesIndex(t *testing.T) {
	m := New(config.Default())
	insertDirect(t, m, "a")
	insertDirect(t, m, "b")

	errs := m.CleanupAll(context.Background())
	if len(errs) != 0 {
		t.Errorf("CleanupAll() errs = %v, want none", errs)
	}
	if m.Count() != 0 {
		t.Errorf("Count() after CleanupAll = %d, want 0", m.Count())
	}
}

func TestListIDs(t *testing.T) {
	m := New(config.Default())
	insertDirect(t, m, "a")
	insertDirect(t, m, "b")

	ids := m.ListIDs()
	if len(ids) != 2 {
		t.Fatalf("ListIDs() = %v, want 2 entries", ids)
	}
}
