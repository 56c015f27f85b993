// cdp-debugger is a CLI entry point around the orchestrator: it spawns a
// target Node.js process with the V8 inspector enabled, drives one debug
// session against it (or, in -hang-check mode, runs the standalone
// HangDetector), and tears everything down on a shutdown signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/workspace/cdp-debugger/internal/auth"
	"github.com/workspace/cdp-debugger/internal/breaker"
	"github.com/workspace/cdp-debugger/internal/config"
	"github.com/workspace/cdp-debugger/internal/hang"
	"github.com/workspace/cdp-debugger/internal/logging"
	"github.com/workspace/cdp-debugger/internal/recorder"
	"github.com/workspace/cdp-debugger/internal/session"
	"github.com/workspace/cdp-debugger/internal/sessionmanager"
	"github.com/workspace/cdp-debugger/internal/spawner"
)

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(os.Args[1:], cfg); err != nil {
		slog.Error("cdp-debugger exited with error", "error", err)
		os.Exit(1)
	}
}

// run parses flags and dispatches to the requested mode. Split out from
// main so it returns an error instead of calling os.Exit directly.
func run(args []string, cfg *config.Config) error {
	fs := flag.NewFlagSet("cdp-debugger", flag.ContinueOnError)
	hangCheck := fs.Bool("hang-check", false, "run the standalone HangDetector instead of an interactive debug session")
	mode := fs.String("mode", cfg.DefaultInspectMode, "inspector mode: brk or running")
	timeout := fs.Duration("timeout", cfg.DefaultTimeout, "hang-check overall timeout")
	sampleInterval := fs.Duration("sample-interval", cfg.DefaultSampleInterval, "hang-check periodic sampler interval (0 = activity-idle monitor)")
	dir := fs.String("dir", "", "working directory for the spawned target")

	if err := fs.Parse(args); err != nil {
		return err
	}

	command, targetArgs := splitCommand(fs.Args())
	if command == "" {
		return fmt.Errorf("usage: cdp-debugger [flags] -- <command> [args...]")
	}

	if *hangCheck {
		return runHangCheck(command, targetArgs, *dir, *timeout, *sampleInterval, cfg)
	}
	return runDebugSession(command, targetArgs, *dir, *mode, cfg)
}

// splitCommand separates the target command from any flags that precede
// it, honoring a "--" separator if present.
func splitCommand(args []string) (string, []string) {
	for i, a := range args {
		if a == "--" {
			args = append(args[:i], args[i+1:]...)
			break
		}
	}
	if len(args) == 0 {
		return "", nil
	}
	return args[0], args[1:]
}

func runDebugSession(command string, args []string, dir, mode string, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := sessionmanager.New(cfg)

	var rec recorder.SessionRecorder
	if cfg.RecorderEnabled {
		sqliteRecorder, err := recorder.OpenSQLiteRecorder(cfg.RecorderDBPath, recorder.NoopRedactor)
		if err != nil {
			return fmt.Errorf("open recorder: %w", err)
		}
		defer sqliteRecorder.Close()
		rec = sqliteRecorder
	}

	transportBreaker := breaker.New("transport", breaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		OpenDuration:     cfg.BreakerOpenDuration,
	})

	var tokenStore *auth.TokenStore
	var issuer *auth.TokenIssuer
	if cfg.SessionTokenSecret != "" {
		tokenStore = auth.NewTokenStore(auth.TokenStoreConfig{})
		defer tokenStore.Stop()
		issuer = auth.NewTokenIssuer([]byte(cfg.SessionTokenSecret), cfg.SessionTokenIssuer, cfg.SessionTokenTTL, tokenStore)
	}

	sess, err := mgr.CreateSession(ctx, spawner.Options{
		Command: command,
		Args:    args,
		Dir:     dir,
		Mode:    spawner.Mode(mode),
		Timeout: cfg.SpawnDeadline,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	sessLog := logging.WithSession(sess.ID())
	sessLog.Info("debug session started", "command", command)

	if issuer != nil {
		token, err := issuer.Issue(sess.ID())
		if err != nil {
			sessLog.Warn("failed to issue session token", "error", err)
		} else {
			sessLog.Info("session token issued", "token_prefix", token[:minInt(12, len(token))])
		}
	}

	sess.OnCrash(func(err error) {
		sessLog.Warn("debug session crashed", "error", err)
		if tokenStore != nil {
			tokenStore.RevokeSession(sess.ID())
		}
		cancel()
	})

	if rec != nil {
		recordLifecycleEvents(sess, rec)
	}

	if frames, err := sess.GetCallStack(); err == nil {
		for _, f := range frames {
			sessLog.Info("paused at", "file", f.File, "line", f.Line, "function", f.FunctionName)
		}
	}

	// Resuming execution is guarded by the breaker so a target whose
	// inspector WebSocket has wedged doesn't accumulate repeated timeouts
	// against it; if the breaker is open or Resume fails, the target stays
	// paused until the shutdown below tears it down.
	if err := transportBreaker.Do(ctx, sess.Resume); err != nil {
		sessLog.Warn("resume failed", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		slog.Info("session ended, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if errs := mgr.CleanupAll(shutdownCtx); len(errs) > 0 {
		for _, e := range errs {
			slog.Warn("cleanup error", "error", e)
		}
	}

	slog.Info("cdp-debugger stopped")
	return nil
}

// recordLifecycleEvents wires rec to record session-lifecycle events (crash
// so far) through the recorder, a minimal audit trail grounded on the
// AuditLogger collaborator described for the core.
func recordLifecycleEvents(sess *session.Session, rec recorder.SessionRecorder) {
	sess.OnCrash(func(err error) {
		detail := fmt.Sprintf(`{"error":%q}`, err.Error())
		if recErr := rec.RecordEvent(sess.ID(), recorder.Event{Kind: "session.crashed", Detail: []byte(detail)}); recErr != nil {
			slog.Warn("failed to record crash event", "session_id", sess.ID(), "error", recErr)
		}
	})
}

func runHangCheck(command string, args []string, dir string, timeout, sampleInterval time.Duration, cfg *config.Config) error {
	ctx := context.Background()

	result, err := hang.Run(ctx, hang.Options{
		Command:        command,
		Args:           args,
		Dir:            dir,
		Timeout:        timeout,
		SampleInterval: sampleInterval,
		ConnectTimeout: cfg.ConnectTimeout,
		SendTimeout:    cfg.SendTimeout,
	})
	if err != nil {
		return fmt.Errorf("hang check: %w", err)
	}

	if result.Hung {
		slog.Warn("target appears hung", "location", result.Location, "message", result.Message, "duration", result.Duration)
		fmt.Printf("HUNG at %s after %s: %s\n", result.Location, result.Duration.Round(time.Millisecond), result.Message)
		if len(result.Stack) > 0 {
			fmt.Println(strings.Join(result.Stack, "\n"))
		}
		return nil
	}

	slog.Info("target completed", "exit_code", result.ExitCode, "duration", result.Duration)
	fmt.Printf("completed (exit %d) after %s\n", result.ExitCode, result.Duration.Round(time.Millisecond))
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
