// Package hang implements HangDetector: a standalone orchestrator that
// spawns a target, periodically samples its call stack, and reports
// whether it hung or completed within a bounded timeout.
package hang

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/workspace/cdp-debugger/internal/cdp"
	"github.com/workspace/cdp-debugger/internal/spawner"
)

// Options configures one detection run.
type Options struct {
	Command       string
	Args          []string
	Dir           string
	Timeout       time.Duration
	SampleInterval time.Duration // zero disables periodic sampling; activity-idle monitor is used instead

	ConnectTimeout        time.Duration
	SendTimeout           time.Duration
	IdleWindowFraction    float64
	IdleWindowCap         time.Duration
	IdleSilence           time.Duration
	IdleMinElapsed        time.Duration
	SamplerFraction       float64
	SamplerPauseWait      time.Duration
	MinConsecutiveSamples int
	ConsecutiveFraction   float64
}

// Result is the outcome of one detection run.
type Result struct {
	Hung      bool
	Completed bool
	ExitCode  int
	Location  string
	Stack     []string
	Message   string
	Duration  time.Duration
}

// childProcess is the subset of spawner.Process that runState depends on,
// so tests can substitute a fake without spawning a real target.
type childProcess interface {
	Wait() error
	Stop() error
	ExitCode() int
}

type runState struct {
	opts Options

	process childProcess
	client  *cdp.Client

	scriptURLByID map[string]string
	scriptMu      sync.Mutex

	startedAt time.Time

	resultOnce sync.Once
	resultCh   chan Result

	lastActivity   time.Time
	activityMu     sync.Mutex
}

// Run spawns the target in running mode and resolves once it completes,
// hangs, or the detection timeout fires. Every resolution path goes
// through a single sink that cancels timers, disconnects the inspector,
// and kills the child if it's still alive.
func Run(ctx context.Context, opts Options) (Result, error) {
	applyDefaults(&opts)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	proc, err := spawner.Spawn(runCtx, spawner.Options{
		Command: opts.Command,
		Args:    opts.Args,
		Dir:     opts.Dir,
		Mode:    spawner.ModeRunning,
		Timeout: opts.ConnectTimeout,
	})
	if err != nil {
		return Result{}, err
	}

	client := cdp.New()
	if err := client.Connect(runCtx, proc.InspectorURL, opts.ConnectTimeout); err != nil {
		proc.Stop()
		return Result{}, err
	}

	return runDetection(ctx, opts, proc, client)
}

// runDetection drives detection against an already spawned process and
// an already connected client, so tests can substitute fakes for both.
func runDetection(ctx context.Context, opts Options, proc childProcess, client *cdp.Client) (Result, error) {
	rs := &runState{
		opts:          opts,
		scriptURLByID: make(map[string]string),
		resultCh:      make(chan Result, 1),
		process:       proc,
		client:        client,
	}
	rs.startedAt = time.Now()
	rs.lastActivity = rs.startedAt

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	client.On("event", func(e cdp.Event) {
		rs.activityMu.Lock()
		rs.lastActivity = time.Now()
		rs.activityMu.Unlock()
	})
	client.On("Debugger.scriptParsed", rs.handleScriptParsed)

	if err := client.Send(runCtx, "Debugger.enable", nil, opts.SendTimeout, nil); err != nil {
		client.Disconnect()
		proc.Stop()
		return Result{}, err
	}
	if err := client.Send(runCtx, "Runtime.enable", nil, opts.SendTimeout, nil); err != nil {
		client.Disconnect()
		proc.Stop()
		return Result{}, err
	}

	go rs.watchExit()

	if opts.SampleInterval > 0 {
		go rs.runSampler(runCtx)
	} else {
		go rs.runIdleMonitor()
	}

	go rs.runTimeout(runCtx)

	select {
	case r := <-rs.resultCh:
		rs.teardown()
		return r, nil
	case <-ctx.Done():
		rs.teardown()
		return Result{}, ctx.Err()
	}
}

func applyDefaults(opts *Options) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.IdleWindowFraction <= 0 {
		opts.IdleWindowFraction = 0.2
	}
	if opts.IdleWindowCap <= 0 {
		opts.IdleWindowCap = time.Second
	}
	if opts.IdleSilence <= 0 {
		opts.IdleSilence = 300 * time.Millisecond
	}
	if opts.IdleMinElapsed <= 0 {
		opts.IdleMinElapsed = 150 * time.Millisecond
	}
	if opts.SamplerFraction <= 0 {
		opts.SamplerFraction = 0.9
	}
	if opts.SamplerPauseWait <= 0 {
		opts.SamplerPauseWait = 100 * time.Millisecond
	}
	if opts.MinConsecutiveSamples <= 0 {
		opts.MinConsecutiveSamples = 50
	}
	if opts.ConsecutiveFraction <= 0 {
		opts.ConsecutiveFraction = 0.5
	}
}

type scriptParsedParams struct {
	ScriptID string `json:"scriptId"`
	URL      string `json:"url"`
}

func (rs *runState) handleScriptParsed(e cdp.Event) {
	var p scriptParsedParams
	if err := decodeParams(e, &p); err != nil || p.URL == "" {
		return
	}
	rs.scriptMu.Lock()
	rs.scriptURLByID[p.ScriptID] = p.URL
	rs.scriptMu.Unlock()
}

// watchExit resolves the result as a clean completion the moment the
// child process exits, regardless of which detection path is racing it.
func (rs *runState) watchExit() {
	err := rs.process.Wait()
	exitCode := 0
	if err != nil {
		exitCode = rs.process.ExitCode()
		if exitCode < 0 {
			exitCode = 1
		}
	}
	rs.resolve(Result{
		Hung:      false,
		Completed: true,
		ExitCode:  exitCode,
		Duration:  time.Since(rs.startedAt),
	}, nil)
}

// runIdleMonitor watches for a quiet inspector channel during the first
// min(1s, 20%*timeout) of the run; 300ms of silence after at least 150ms
// elapsed is treated as "the target finished before emitting a clean
// exit over the inspector channel".
func (rs *runState) runIdleMonitor() {
	window := time.Duration(float64(rs.opts.Timeout) * rs.opts.IdleWindowFraction)
	if window > rs.opts.IdleWindowCap {
		window = rs.opts.IdleWindowCap
	}

	deadline := time.Now().Add(window)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		<-ticker.C

		elapsed := time.Since(rs.startedAt)
		if elapsed < rs.opts.IdleMinElapsed {
			continue
		}

		rs.activityMu.Lock()
		silence := time.Since(rs.lastActivity)
		rs.activityMu.Unlock()

		if silence >= rs.opts.IdleSilence {
			rs.resolve(Result{
				Hung:      false,
				Completed: true,
				ExitCode:  0,
				Duration:  elapsed,
			}, nil)
			return
		}
	}
}

// runSampler periodically pauses the target, records the top stack
// frame, and resumes, looking for a repeated identical location.
func (rs *runState) runSampler(ctx context.Context) {
	cutoff := time.Duration(float64(rs.opts.Timeout) * rs.opts.SamplerFraction)
	deadline := rs.startedAt.Add(cutoff)

	requiredConsecutive := rs.opts.MinConsecutiveSamples
	if byFraction := int(rs.opts.ConsecutiveFraction * float64(rs.opts.Timeout) / float64(rs.opts.SampleInterval)); byFraction > requiredConsecutive {
		requiredConsecutive = byFraction
	}

	var lastLocation string
	consecutive := 0

	ticker := time.NewTicker(rs.opts.SampleInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		location, stack, ok := rs.sampleTopFrame(ctx, rs.opts.SamplerPauseWait)
		if !ok {
			continue
		}

		if location == lastLocation {
			consecutive++
		} else {
			consecutive = 1
			lastLocation = location
		}

		if consecutive >= requiredConsecutive {
			rs.resolve(Result{
				Hung:     true,
				Location: location,
				Stack:    stack,
				Message:  fmt.Sprintf("Infinite loop detected at %s", location),
				Duration: time.Since(rs.startedAt),
			}, nil)
			return
		}
	}
}

// sampleTopFrame pauses, captures the top call frame's "file:line", and
// resumes. Returns ok=false if the paused event never arrived within wait.
func (rs *runState) sampleTopFrame(ctx context.Context, wait time.Duration) (string, []string, bool) {
	pausedCh := make(chan pausedParams, 1)
	rs.client.Once("Debugger.paused", func(e cdp.Event) {
		var p pausedParams
		decodeParams(e, &p)
		pausedCh <- p
	})
	// Off unconditionally on every return path: Once only guards against a
	// handler firing twice, it never unsubscribes on timeout, so without
	// this a long-running sampler accumulates one dead "Debugger.paused"
	// handler per missed sample. rs.client is private to this run, so no
	// other caller's subscription is affected.
	defer rs.client.Off("Debugger.paused")

	if err := rs.client.Send(ctx, "Debugger.pause", nil, rs.opts.SendTimeout, nil); err != nil {
		return "", nil, false
	}

	var params pausedParams
	select {
	case params = <-pausedCh:
	case <-time.After(wait):
		rs.client.Send(ctx, "Debugger.resume", nil, rs.opts.SendTimeout, nil)
		return "", nil, false
	}

	location, stack := rs.describeFrames(params.CallFrames)
	rs.client.Send(ctx, "Debugger.resume", nil, rs.opts.SendTimeout, nil)
	return location, stack, location != ""
}

// runTimeout resolves a hang at the overall timeout: pause, wait up to
// 500ms for the paused event, capture the top frame.
func (rs *runState) runTimeout(ctx context.Context) {
	select {
	case <-time.After(rs.opts.Timeout):
	case <-ctx.Done():
		return
	}

	location, stack, _ := rs.sampleTopFrame(ctx, 500*time.Millisecond)
	message := "Execution timed out"
	if location != "" {
		message = fmt.Sprintf("Execution timed out at %s", location)
	}
	rs.resolve(Result{
		Hung:     true,
		Location: location,
		Stack:    stack,
		Message:  message,
		Duration: time.Since(rs.startedAt),
	}, nil)
}

type pausedParams struct {
	CallFrames []pausedCallFrame `json:"callFrames"`
}

type pausedCallFrame struct {
	FunctionName string         `json:"functionName"`
	URL          string         `json:"url"`
	Location     pausedLocation `json:"location"`
}

type pausedLocation struct {
	LineNumber   int `json:"lineNumber"`
	ColumnNumber int `json:"columnNumber"`
}

func (rs *runState) describeFrames(frames []pausedCallFrame) (string, []string) {
	if len(frames) == 0 {
		return "", nil
	}
	stack := make([]string, 0, len(frames))
	for _, f := range frames {
		file := stripFileScheme(f.URL)
		stack = append(stack, fmt.Sprintf("%s:%d", file, f.Location.LineNumber+1))
	}
	return stack[0], stack
}

func stripFileScheme(url string) string {
	const prefix = "file://"
	if len(url) >= len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):]
	}
	return url
}

// resolve delivers r (or logs err) exactly once; subsequent calls are
// no-ops.
func (rs *runState) resolve(r Result, err error) {
	rs.resultOnce.Do(func() {
		if err != nil {
			slog.Warn("hang detection run ended with error", "error", err)
		}
		slog.Info("hang detection run resolved",
			"hung", r.Hung,
			"elapsed", humanize.RelTime(rs.startedAt, rs.startedAt.Add(r.Duration), "", ""))
		rs.resultCh <- r
	})
}

func (rs *runState) teardown() {
	if rs.client != nil {
		rs.client.Disconnect()
	}
	if rs.process != nil {
		rs.process.Stop()
	}
}

func decodeParams(e cdp.Event, v interface{}) error {
	if len(e.Params) == 0 {
		return nil
	}
	return json.Unmarshal(e.Params, v)
}
