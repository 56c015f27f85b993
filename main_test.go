package main

import (
	"testing"
	"time"

	"github.com/workspace/cdp-debugger/internal/config"
)

func TestSplitCommandHonorsSeparator(t *testing.T) {
	cmd, args := splitCommand([]string{"--", "node", "app.js"})
	if cmd != "node" {
		t.Errorf("cmd = %q, want node", cmd)
	}
	if len(args) != 1 || args[0] != "app.js" {
		t.Errorf("args = %v, want [app.js]", args)
	}
}

func TestSplitCommandWithoutSeparator(t *testing.T) {
	cmd, args := splitCommand([]string{"node", "app.js"})
	if cmd != "node" {
		t.Errorf("cmd = %q, want node", cmd)
	}
	if len(args) != 1 || args[0] != "app.js" {
		t.Errorf("args = %v, want [app.js]", args)
	}
}

func TestSplitCommandEmpty(t *testing.T) {
	cmd, args := splitCommand(nil)
	if cmd != "" || args != nil {
		t.Errorf("cmd = %q, args = %v, want empty", cmd, args)
	}
}

func TestRunRejectsMissingCommand(t *testing.T) {
	cfg := config.Default()
	err := run([]string{"-mode=brk"}, cfg)
	if err == nil {
		t.Fatal("expected usage error for missing command")
	}
}

func TestRunHangCheckPropagatesSpawnFailure(t *testing.T) {
	cfg := config.Default()
	cfg.SpawnDeadline = 50 * time.Millisecond
	cfg.ConnectTimeout = 50 * time.Millisecond

	err := run([]string{"-hang-check", "-timeout=200ms", "--", "/no/such/binary-cdp-debugger-test"}, cfg)
	if err == nil {
		t.Fatal("expected error when the target binary cannot be spawned")
	}
}
