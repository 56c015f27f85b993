package spawner

import (
	"context"
	"testing"
	"time"

	"github.com/workspace/cdp-debugger/internal/debugerr"
)

func TestBuildCommandDirectNode(t *testing.T) {
	name, args := buildCommand("node", []string{"app.js"}, "--inspect-brk=0")
	if name != "node" {
		t.Errorf("name = %q, want node", name)
	}
	want := []string{"--inspect-brk=0", "app.js"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestBuildCommandWrapperForwardsAfterDoubleDash(t *testing.T) {
	name, args := buildCommand("npx", []string{"ts-node", "app.ts"}, "--inspect-brk=0")
	if name != "npx" {
		t.Errorf("name = %q, want npx", name)
	}
	want := []string{"ts-node", "app.ts", "--", "--inspect-brk=0"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestInspectFlagModes(t *testing.T) {
	if got := inspectFlag(ModeBreak, 0); got != "--inspect-brk=0" {
		t.Errorf("inspectFlag(ModeBreak, 0) = %q", got)
	}
	if got := inspectFlag(ModeRunning, 9229); got != "--inspect=9229" {
		t.Errorf("inspectFlag(ModeRunning, 9229) = %q", got)
	}
}

func TestInspectorURLPattern(t *testing.T) {
	line := "Debugger listening on ws://127.0.0.1:9229/4a2c1e3f-aaaa-bbbb-cccc-123456789abc"
	m := inspectorURLPattern.FindStringSubmatch(line)
	if m == nil {
		t.Fatal("expected match")
	}
	want := "ws://127.0.0.1:9229/4a2c1e3f-aaaa-bbbb-cccc-123456789abc"
	if m[1] != want {
		t.Errorf("match = %q, want %q", m[1], want)
	}
}

func TestSpawnNonexistentCommandReturnsSpawnError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Spawn(ctx, Options{
		Command: "this-binary-does-not-exist-anywhere",
		Mode:    ModeBreak,
		Timeout: time.Second,
	})
	if err == nil {
		t.Fatal("expected error for nonexistent command")
	}
	if kind, ok := debugerr.KindOf(err); !ok || kind != debugerr.SpawnError {
		t.Errorf("KindOf(err) = %v, %v, want SpawnError, true", kind, ok)
	}
}
