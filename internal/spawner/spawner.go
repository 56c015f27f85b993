// Package spawner launches a target Node.js process with the V8 inspector
// enabled and recovers its WebSocket debugger URL from stderr.
package spawner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/workspace/cdp-debugger/internal/debugerr"
)

// inspectorURLPattern matches the line Node prints once the inspector is
// listening, e.g. "Debugger listening on ws://127.0.0.1:9229/<uuid>".
var inspectorURLPattern = regexp.MustCompile(`(ws://127\.0\.0\.1:\d+/[0-9a-fA-F-]+)`)

// wrapperCommands are package-manager launchers that re-exec node as a
// child process, so --inspect flags must be forwarded through `--`.
var wrapperCommands = map[string]bool{
	"npx":  true,
	"npm":  true,
	"yarn": true,
	"pnpm": true,
	"bun":  true,
}

// Mode selects whether the spawned process pauses before the first line
// of user code or starts running immediately.
type Mode string

const (
	ModeBreak   Mode = "brk"
	ModeRunning Mode = "running"
)

// Options configures a spawn.
type Options struct {
	Command string
	Args    []string
	Dir     string
	Mode    Mode
	Port    int // 0 lets the OS choose an ephemeral port
	Timeout time.Duration
}

// Process wraps a running target, its stdio, and the inspector URL
// recovered from its stderr banner.
type Process struct {
	cmd          *exec.Cmd
	stdout       io.ReadCloser
	stderr       io.ReadCloser
	InspectorURL string

	mu      sync.Mutex
	stopped bool
}

// Spawn starts the target process with the appropriate --inspect flag and
// blocks until the inspector WebSocket URL appears on stderr or the
// timeout elapses.
func Spawn(ctx context.Context, opts Options) (*Process, error) {
	flag := inspectFlag(opts.Mode, opts.Port)

	name, args := buildCommand(opts.Command, opts.Args, flag)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, debugerr.Wrap(debugerr.SpawnError, "create stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, debugerr.Wrap(debugerr.SpawnError, "create stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, debugerr.Wrap(debugerr.SpawnError, fmt.Sprintf("start %s", name), err)
	}

	p := &Process{cmd: cmd, stdout: stdout, stderr: stderr}

	urlCh := make(chan string, 1)
	go p.scanStderrForInspectorURL(urlCh)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	select {
	case url := <-urlCh:
		if url == "" {
			p.Stop()
			return nil, debugerr.New(debugerr.SpawnError, "target exited before announcing inspector URL")
		}
		p.InspectorURL = url
		return p, nil
	case <-time.After(timeout):
		p.Stop()
		return nil, debugerr.New(debugerr.SpawnError, fmt.Sprintf("timed out after %s waiting for inspector URL", timeout))
	case <-ctx.Done():
		p.Stop()
		return nil, ctx.Err()
	}
}

// scanStderrForInspectorURL reads stderr line by line looking for the
// Node inspector banner, forwarding every line to the structured logger
// so callers retain the target's diagnostic output.
func (p *Process) scanStderrForInspectorURL(urlCh chan<- string) {
	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)

	found := false
	for scanner.Scan() {
		line := scanner.Text()
		slog.Debug("target stderr", "line", line)
		if !found {
			if m := inspectorURLPattern.FindStringSubmatch(line); m != nil {
				found = true
				urlCh <- m[1]
			}
		}
	}
	if !found {
		urlCh <- ""
	}
}

// Stdout returns the target's stdout pipe for consumers that want to
// relay program output.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }

// Stop terminates the process if still running. Safe to call more than
// once.
func (p *Process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Wait blocks until the process exits and returns its error, if any.
func (p *Process) Wait() error {
	return p.cmd.Wait()
}

// Pid returns the OS process id, or 0 if the process never started.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// ExitDescription renders the child's termination for crash reporting,
// e.g. "exit status 1" or "signal: killed". Falls back to err's own text
// when ProcessState isn't available yet.
func (p *Process) ExitDescription(err error) string {
	if p.cmd.ProcessState != nil {
		return p.cmd.ProcessState.String()
	}
	if err != nil {
		return err.Error()
	}
	return "unknown exit"
}

// ExitCode returns the child's exit code, or -1 if it hasn't exited or
// was terminated by a signal.
func (p *Process) ExitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

func inspectFlag(mode Mode, port int) string {
	flagName := "--inspect"
	if mode == ModeBreak {
		flagName = "--inspect-brk"
	}
	if port > 0 {
		return fmt.Sprintf("%s=%d", flagName, port)
	}
	return fmt.Sprintf("%s=0", flagName)
}

// buildCommand decides how to splice the inspector flag into the target
// command line. Direct node invocations take the flag before the script
// path; package-manager wrappers need it forwarded after a `--`
// separator so the wrapper doesn't swallow it.
func buildCommand(command string, args []string, flag string) (string, []string) {
	base := command
	if idx := strings.LastIndexByte(command, '/'); idx >= 0 {
		base = command[idx+1:]
	}

	if wrapperCommands[base] {
		forwarded := append([]string{}, args...)
		forwarded = append(forwarded, "--", flag)
		return command, forwarded
	}

	direct := append([]string{flag}, args...)
	return command, direct
}
