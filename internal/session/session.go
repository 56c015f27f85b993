// Package session implements DebugSession, the per-target state machine
// that composes the transport, breakpoint catalogue, variable inspector,
// and source-map translator into one coherent debugging surface.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/workspace/cdp-debugger/internal/breakpoint"
	"github.com/workspace/cdp-debugger/internal/cdp"
	"github.com/workspace/cdp-debugger/internal/cdpbreakpoint"
	"github.com/workspace/cdp-debugger/internal/config"
	"github.com/workspace/cdp-debugger/internal/debugerr"
	"github.com/workspace/cdp-debugger/internal/logging"
	"github.com/workspace/cdp-debugger/internal/profiler"
	"github.com/workspace/cdp-debugger/internal/sourcemap"
	"github.com/workspace/cdp-debugger/internal/spawner"
	"github.com/workspace/cdp-debugger/internal/variable"
)

// State is the session's lifecycle state. Terminated is absorbing.
type State int

const (
	Starting State = iota
	Paused
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Paused:
		return "paused"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ChildProcess is the subset of spawner.Process that DebugSession relies
// on, so tests can substitute a fake.
type ChildProcess interface {
	Wait() error
	Stop() error
	Pid() int
}

// CallFrame is a captured stack level, valid only for the Paused episode
// that produced it.
type CallFrame struct {
	CallFrameID  string
	FunctionName string
	File         string
	Line         int
	Column       int
}

// ExceptionBreakpoint gates whether the debugger should pause on thrown
// exceptions.
type ExceptionBreakpoint struct {
	ID              string
	BreakOnCaught   bool
	BreakOnUncaught bool
	Enabled         bool
	Filter          string
}

// WatchedVariable is a named expression re-evaluated on every pause.
type WatchedVariable struct {
	Name       string
	Expression string
	LastValue  interface{}
}

// Session is one target's debugger state machine. CDP events for a
// session are dispatched one at a time, in arrival order, by the
// client's dedicated dispatch goroutine, so user-API methods that read
// state never race the event handlers.
type Session struct {
	id  string
	cfg *config.Config
	log *slog.Logger

	mu    sync.RWMutex
	state State

	client  *cdp.Client
	process ChildProcess

	Breakpoints *breakpoint.Manager
	Ops         *cdpbreakpoint.Ops
	Variables   *variable.Inspector
	SourceMaps  *sourcemap.Manager
	Profiler    *profiler.Profiler

	exceptionBreakpoints map[string]*ExceptionBreakpoint

	watchedVariables       map[string]*WatchedVariable
	watchedVariableChanges map[string]interface{}

	callFrames        []CallFrame
	currentFrameIndex int

	crashMu       sync.Mutex
	crashHandlers []func(error)
	crashError    error
	crashed       bool

	pausedWaiters []chan struct{}
	pausedMu      sync.Mutex
}

// New constructs a Session in the Starting state. Call Start to spawn the
// target and bring the session up.
func New(id string, cfg *config.Config) *Session {
	return &Session{
		id:                      id,
		cfg:                     cfg,
		log:                     logging.WithSession(id),
		state:                   Starting,
		exceptionBreakpoints:    make(map[string]*ExceptionBreakpoint),
		watchedVariables:        make(map[string]*WatchedVariable),
		watchedVariableChanges:  make(map[string]interface{}),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(newState State) {
	s.mu.Lock()
	s.state = newState
	s.mu.Unlock()
}

// Start spawns the target process, connects the inspector, and brings the
// session to Paused: on the first Debugger.paused event, or by force once
// StartPauseWait elapses without one (also in "running" mode). On
// any failure the session transitions to Terminated and the error
// propagates; it is never left half-initialized.
func (s *Session) Start(ctx context.Context, opts spawner.Options) error {
	s.mu.Lock()
	if s.state != Starting {
		s.mu.Unlock()
		return debugerr.New(debugerr.BadState, fmt.Sprintf("start() requires Starting, session is %s", s.state))
	}
	s.mu.Unlock()

	proc, err := spawner.Spawn(ctx, opts)
	if err != nil {
		s.setState(Terminated)
		return err
	}

	client := cdp.New()
	client.SetRateLimit(rate.Limit(s.cfg.TransportRateLimit), s.cfg.TransportBurst)
	if err := client.Connect(ctx, proc.InspectorURL, s.cfg.ConnectTimeout); err != nil {
		proc.Stop()
		s.setState(Terminated)
		return err
	}

	if err := s.attach(ctx, client, proc); err != nil {
		client.Disconnect()
		proc.Stop()
		s.setState(Terminated)
		return err
	}
	return nil
}

// attach wires up collaborators and event handlers against an already
// connected client and an already running process, then waits for the
// inspector to report its first paused state. Split out from Start so
// tests can attach to a fake transport without spawning a real target.
func (s *Session) attach(ctx context.Context, client *cdp.Client, process ChildProcess) error {
	s.client = client
	s.process = process
	s.Breakpoints = breakpoint.NewManager()
	s.Ops = cdpbreakpoint.New(client, s.cfg.SendTimeout)
	s.Variables = variable.New(client, s.cfg.SendTimeout)
	s.SourceMaps = sourcemap.NewManager(s.cfg.SourceMapSameDirHeuristic)
	// Profiler is instantiated alongside the other collaborators so callers
	// who want CPU/heap/timeline profiling can reach it from the session;
	// the core itself never calls into it (profiling is out of scope per
	// the core's own design), so it sits unused unless a caller opts in.
	s.Profiler = profiler.New(client, s.cfg.SendTimeout)

	client.On("Debugger.paused", s.handlePaused)
	client.On("Debugger.resumed", s.handleResumed)

	if err := client.Send(ctx, "Debugger.enable", nil, s.cfg.SendTimeout, nil); err != nil {
		return err
	}
	if err := client.Send(ctx, "Runtime.enable", nil, s.cfg.SendTimeout, nil); err != nil {
		return err
	}
	if err := client.Send(ctx, "Runtime.runIfWaitingForDebugger", nil, s.cfg.SendTimeout, nil); err != nil {
		return err
	}

	go s.watchChildExit()

	if !s.waitForPaused(s.cfg.StartPauseWait) {
		// Forced by fiat per the bounded-wait design note: no evidence of
		// an actual paused event, but start() must resolve.
		s.setState(Paused)
	}
	return nil
}

// watchChildExit blocks on the child's exit and runs the crash pipeline.
// Exits cleanly with Wait() == nil are not reported as crashes; the
// caller distinguishes clean shutdown from crash via cleanup ordering.
func (s *Session) watchChildExit() {
	err := s.process.Wait()
	s.handleChildExit(err)
}

func (s *Session) handleChildExit(err error) {
	s.mu.Lock()
	if s.state == Terminated {
		s.mu.Unlock()
		return
	}
	s.state = Terminated
	s.mu.Unlock()

	if err != nil {
		var desc string
		if p, ok := s.process.(*spawner.Process); ok {
			desc = p.ExitDescription(err)
		} else {
			desc = err.Error()
		}
		crashErr := fmt.Errorf("process crashed: %s", desc)
		s.reportCrash(crashErr)
	}

	go s.cleanupAsync()
}

func (s *Session) cleanupAsync() {
	if err := s.Cleanup(context.Background()); err != nil {
		s.log.Warn("session cleanup after crash reported an error", "error", err)
	}
}

// reportCrash records the crash and fires every registered handler in
// insertion order. A handler's panic is isolated: it never prevents
// subsequent handlers from running. Per spec §7, crashes fire exactly
// once per registered handler.
func (s *Session) reportCrash(err error) {
	s.crashMu.Lock()
	s.crashed = true
	s.crashError = err
	handlers := append([]func(error){}, s.crashHandlers...)
	s.crashMu.Unlock()

	for _, h := range handlers {
		s.invokeCrashHandler(h, err)
	}
}

func (s *Session) invokeCrashHandler(h func(error), err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("crash handler panicked", "recover", r)
		}
	}()
	h(err)
}

// OnCrash registers a handler invoked once if the target crashes.
func (s *Session) OnCrash(h func(error)) {
	s.crashMu.Lock()
	defer s.crashMu.Unlock()
	s.crashHandlers = append(s.crashHandlers, h)
}

// HasCrashed reports whether the target has crashed.
func (s *Session) HasCrashed() bool {
	s.crashMu.Lock()
	defer s.crashMu.Unlock()
	return s.crashed
}

// CrashError returns the recorded crash error, or nil if none occurred.
func (s *Session) CrashError() error {
	s.crashMu.Lock()
	defer s.crashMu.Unlock()
	return s.crashError
}

type pausedParams struct {
	CallFrames []pausedCallFrame `json:"callFrames"`
}

type pausedCallFrame struct {
	CallFrameID  string            `json:"callFrameId"`
	FunctionName string            `json:"functionName"`
	Location     pausedLocation    `json:"location"`
	URL          string            `json:"url"`
}

type pausedLocation struct {
	ScriptID     string `json:"scriptId"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

func (s *Session) handlePaused(e cdp.Event) {
	var params pausedParams
	if err := decodeEventParams(e, &params); err != nil {
		s.log.Warn("failed to decode Debugger.paused", "error", err)
		return
	}

	frames := make([]CallFrame, 0, len(params.CallFrames))
	for _, f := range params.CallFrames {
		frames = append(frames, CallFrame{
			CallFrameID:  f.CallFrameID,
			FunctionName: f.FunctionName,
			File:         stripFileScheme(f.URL),
			Line:         f.Location.LineNumber + 1,
			Column:       f.Location.ColumnNumber,
		})
	}

	s.mu.Lock()
	s.state = Paused
	s.callFrames = frames
	s.currentFrameIndex = 0
	s.mu.Unlock()

	s.evaluateWatchedVariablesLocked()
	s.notifyPausedWaiters()
}

func (s *Session) handleResumed(e cdp.Event) {
	s.mu.Lock()
	s.state = Running
	s.callFrames = nil
	s.currentFrameIndex = 0
	s.mu.Unlock()
}

func (s *Session) notifyPausedWaiters() {
	s.pausedMu.Lock()
	waiters := s.pausedWaiters
	s.pausedWaiters = nil
	s.pausedMu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

// waitForPaused blocks until the next Debugger.paused arrives or the
// timeout elapses, returning whether it was observed.
func (s *Session) waitForPaused(timeout time.Duration) bool {
	ch := make(chan struct{})
	s.pausedMu.Lock()
	s.pausedWaiters = append(s.pausedWaiters, ch)
	s.pausedMu.Unlock()

	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

func stripFileScheme(url string) string {
	const prefix = "file://"
	if len(url) >= len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):]
	}
	return url
}

// Pause requests the target halt execution. Waits up to PauseWait for the
// corresponding Debugger.paused event so call frames are populated before
// returning.
func (s *Session) Pause(ctx context.Context) error {
	if err := s.requireConnected(); err != nil {
		return err
	}
	if err := s.client.Send(ctx, "Debugger.pause", nil, s.cfg.SendTimeout, nil); err != nil {
		return err
	}
	if !s.waitForPaused(s.cfg.PauseWait) {
		s.setState(Paused)
	}
	return nil
}

// Resume requests the target continue execution. Fire-and-return: state
// updates when Debugger.resumed arrives.
func (s *Session) Resume(ctx context.Context) error {
	if err := s.requirePaused(); err != nil {
		return err
	}
	return s.client.Send(ctx, "Debugger.resume", nil, s.cfg.SendTimeout, nil)
}

// StepOver requires Paused and steps over the current line.
func (s *Session) StepOver(ctx context.Context) error {
	return s.step(ctx, "Debugger.stepOver")
}

// StepInto requires Paused and steps into the current call.
func (s *Session) StepInto(ctx context.Context) error {
	return s.step(ctx, "Debugger.stepInto")
}

// StepOut requires Paused and steps out of the current frame.
func (s *Session) StepOut(ctx context.Context) error {
	return s.step(ctx, "Debugger.stepOut")
}

func (s *Session) step(ctx context.Context, method string) error {
	if err := s.requirePaused(); err != nil {
		return err
	}
	return s.client.Send(ctx, method, nil, s.cfg.SendTimeout, nil)
}

func (s *Session) requirePaused() error {
	if s.State() != Paused {
		return debugerr.New(debugerr.BadState, fmt.Sprintf("operation requires Paused, session is %s", s.State()))
	}
	return s.requireConnected()
}

func (s *Session) requireConnected() error {
	if s.client == nil {
		return debugerr.New(debugerr.NotStarted, "session has not completed start()")
	}
	if s.State() == Terminated {
		return debugerr.New(debugerr.BadState, "session is terminated")
	}
	return nil
}

// Cleanup tears down the session: removes every CDP-registered
// breakpoint (tolerating a dead transport), disconnects the inspector,
// kills the child if still alive, clears the catalogue/watches/exception
// table and the source-map cache, and marks Terminated. Idempotent.
func (s *Session) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	alreadyTerminated := s.state == Terminated
	s.state = Terminated
	s.mu.Unlock()

	if s.Breakpoints != nil && s.Ops != nil {
		for _, bp := range s.Breakpoints.ListAll() {
			if bp.CdpBreakpointID == "" {
				continue
			}
			if err := s.Ops.RemoveBreakpoint(ctx, bp.CdpBreakpointID); err != nil {
				s.log.Debug("ignoring breakpoint removal error during cleanup", "error", err)
			}
		}
	}

	if s.client != nil {
		s.client.Disconnect()
	}
	if s.process != nil && !alreadyTerminated {
		s.process.Stop()
	}

	if s.Breakpoints != nil {
		s.Breakpoints.ClearAll()
	}
	if s.SourceMaps != nil {
		s.SourceMaps.ClearCache()
	}

	s.mu.Lock()
	s.exceptionBreakpoints = make(map[string]*ExceptionBreakpoint)
	s.watchedVariables = make(map[string]*WatchedVariable)
	s.watchedVariableChanges = make(map[string]interface{})
	s.callFrames = nil
	s.mu.Unlock()

	return nil
}

// SetBreakpoint creates a catalogue entry for file/line, translating
// through the source-map manager when file is a .ts/.tsx source so the
// CDP call targets the compiled location while the catalogue entry stays
// keyed to the user's original file/line.
func (s *Session) SetBreakpoint(ctx context.Context, file string, line int, condition string) (*breakpoint.Breakpoint, error) {
	bp := s.Breakpoints.CreateStandard(file, line, condition)
	if err := s.setOverWire(ctx, bp, file, line); err != nil {
		return bp, err
	}
	return bp, nil
}

// SetLogpoint is SetBreakpoint's logging counterpart.
func (s *Session) SetLogpoint(ctx context.Context, file string, line int, logMessage string) (*breakpoint.Breakpoint, error) {
	bp := s.Breakpoints.CreateLogpoint(file, line, logMessage)
	if err := s.setOverWire(ctx, bp, file, line); err != nil {
		return bp, err
	}
	return bp, nil
}

// SetFunctionBreakpoint registers a catalogue-only function breakpoint;
// see the design notes on function breakpoints for the CDP-wiring gap.
func (s *Session) SetFunctionBreakpoint(name string) *breakpoint.Breakpoint {
	return s.Breakpoints.CreateFunction(name)
}

func (s *Session) setOverWire(ctx context.Context, bp *breakpoint.Breakpoint, originalFile string, originalLine int) error {
	wireFile, wireLine := originalFile, originalLine
	if isTypeScript(originalFile) {
		if compiled, ok := s.SourceMaps.MapSourceToCompiled(sourcemap.SourceLocation{File: originalFile, Line: originalLine, Column: 0}); ok {
			wireFile, wireLine = compiled.File, compiled.Line
		}
	}

	if !bp.Enabled {
		return nil
	}

	wireBp := *bp
	wireBp.File = wireFile
	wireBp.Line = wireLine

	cdpID, err := s.Ops.SetBreakpoint(ctx, &wireBp)
	if err != nil {
		return err
	}
	s.Breakpoints.UpdateCdpBreakpointID(bp.ID, cdpID)
	bp.CdpBreakpointID = cdpID
	return nil
}

func isTypeScript(file string) bool {
	return hasSuffix(file, ".ts") || hasSuffix(file, ".tsx")
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// SetBreakpointHitCountCondition installs a hit-count gate on an existing
// breakpoint.
func (s *Session) SetBreakpointHitCountCondition(id string, cond *breakpoint.HitCountCondition) bool {
	return s.Breakpoints.SetHitCountCondition(id, cond)
}

// RemoveBreakpoint removes the CDP registration (if any) then the
// catalogue entry.
func (s *Session) RemoveBreakpoint(ctx context.Context, id string) (bool, error) {
	bp, ok := s.Breakpoints.Get(id)
	if !ok {
		return false, nil
	}
	if bp.CdpBreakpointID != "" {
		if err := s.Ops.RemoveBreakpoint(ctx, bp.CdpBreakpointID); err != nil {
			return false, err
		}
	}
	return s.Breakpoints.Remove(id), nil
}

// ToggleBreakpoint flips the catalogue bit and keeps the CDP registration
// in sync: newly enabled entries are set over the wire, newly disabled
// entries are removed and their cdpId cleared.
func (s *Session) ToggleBreakpoint(ctx context.Context, id string) (bool, error) {
	bp, ok := s.Breakpoints.Get(id)
	if !ok {
		return false, debugerr.New(debugerr.NotFound, fmt.Sprintf("no breakpoint %q", id))
	}

	enabled, _ := s.Breakpoints.Toggle(id)

	if enabled && bp.CdpBreakpointID == "" {
		if err := s.setOverWire(ctx, bp, bp.File, bp.Line); err != nil {
			return enabled, err
		}
	} else if !enabled && bp.CdpBreakpointID != "" {
		if err := s.Ops.RemoveBreakpoint(ctx, bp.CdpBreakpointID); err != nil {
			return enabled, err
		}
		s.Breakpoints.UpdateCdpBreakpointID(id, "")
		bp.CdpBreakpointID = ""
	}
	return enabled, nil
}

// AddExceptionBreakpoint inserts an entry and recomputes the combined
// pause-on-exceptions mode.
func (s *Session) AddExceptionBreakpoint(ctx context.Context, eb *ExceptionBreakpoint) error {
	s.mu.Lock()
	s.exceptionBreakpoints[eb.ID] = eb
	s.mu.Unlock()
	return s.syncPauseOnExceptions(ctx)
}

// RemoveExceptionBreakpoint removes an entry and recomputes the mode.
func (s *Session) RemoveExceptionBreakpoint(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.exceptionBreakpoints, id)
	s.mu.Unlock()
	return s.syncPauseOnExceptions(ctx)
}

// ExceptionMode returns the currently composed pause-on-exceptions mode.
func (s *Session) ExceptionMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return composeExceptionMode(s.exceptionBreakpoints)
}

func composeExceptionMode(table map[string]*ExceptionBreakpoint) string {
	caught, uncaught := false, false
	for _, eb := range table {
		if !eb.Enabled {
			continue
		}
		if eb.BreakOnCaught {
			caught = true
		}
		if eb.BreakOnUncaught {
			uncaught = true
		}
	}
	switch {
	case caught && uncaught:
		return "all"
	case uncaught:
		return "uncaught"
	case caught:
		return "caught"
	default:
		return "none"
	}
}

func (s *Session) syncPauseOnExceptions(ctx context.Context) error {
	mode := s.ExceptionMode()
	return s.client.Send(ctx, "Debugger.setPauseOnExceptions", map[string]string{"state": mode}, s.cfg.SendTimeout, nil)
}

// GetCallStack returns the current call frames (Paused-only), mapping
// each frame's location back to source via the source-map manager when a
// map exists for that file.
func (s *Session) GetCallStack() ([]CallFrame, error) {
	frames, err := s.callStackSnapshot()
	if err != nil {
		return nil, err
	}

	translated := make([]CallFrame, len(frames))
	for i, f := range frames {
		translated[i] = f
		if s.SourceMaps != nil && s.SourceMaps.HasSourceMap(f.File) {
			if src, ok := s.SourceMaps.MapCompiledToSource(sourcemap.Location{File: f.File, Line: f.Line - 1, Column: f.Column}); ok {
				translated[i].File = src.File
				translated[i].Line = src.Line
				translated[i].Column = src.Column
			}
		}
	}
	return translated, nil
}

// GetCallStackSync returns the current call frames without source-map
// translation.
func (s *Session) GetCallStackSync() ([]CallFrame, error) {
	return s.callStackSnapshot()
}

func (s *Session) callStackSnapshot() ([]CallFrame, error) {
	if s.State() != Paused {
		return nil, debugerr.New(debugerr.BadState, "getCallStack requires Paused")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	frames := make([]CallFrame, len(s.callFrames))
	copy(frames, s.callFrames)
	return frames, nil
}

// SwitchToFrame moves the active evaluation frame to index i.
func (s *Session) SwitchToFrame(i int) error {
	if s.State() != Paused {
		return debugerr.New(debugerr.BadState, "switchToFrame requires Paused")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.callFrames) {
		return debugerr.New(debugerr.NotFound, fmt.Sprintf("frame index %d out of range [0,%d)", i, len(s.callFrames)))
	}
	s.currentFrameIndex = i
	return nil
}

// CurrentCallFrameID returns the callFrameId of the active frame for use
// in expression evaluation.
func (s *Session) CurrentCallFrameID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentFrameIndex < 0 || s.currentFrameIndex >= len(s.callFrames) {
		return "", debugerr.New(debugerr.BadState, "no active call frame")
	}
	return s.callFrames[s.currentFrameIndex].CallFrameID, nil
}

// AddWatchedVariable registers wv, keyed by its Name. Idempotent: adding
// the same name again replaces the prior entry.
func (s *Session) AddWatchedVariable(wv *WatchedVariable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchedVariables[wv.Name] = wv
}

// EvaluateWatchedVariables re-evaluates every watched expression against
// the active frame, returning the name->newValue diff map. Per-variable
// evaluation failures are swallowed so one broken watch never breaks the
// pause handler.
func (s *Session) EvaluateWatchedVariables(ctx context.Context) map[string]interface{} {
	frameID, err := s.CurrentCallFrameID()
	if err != nil {
		return map[string]interface{}{}
	}

	s.mu.RLock()
	vars := make([]*WatchedVariable, 0, len(s.watchedVariables))
	for _, wv := range s.watchedVariables {
		vars = append(vars, wv)
	}
	s.mu.RUnlock()

	changes := make(map[string]interface{})
	for _, wv := range vars {
		val, err := s.Variables.EvaluateExpression(ctx, wv.Expression, frameID)
		if err != nil {
			continue
		}
		newValue := unwrapForWatch(val)

		s.mu.Lock()
		changed := wv.LastValue != nil && newValue != wv.LastValue
		wv.LastValue = newValue
		s.mu.Unlock()

		if changed {
			changes[wv.Name] = newValue
		}
	}

	s.mu.Lock()
	s.watchedVariableChanges = changes
	s.mu.Unlock()
	return changes
}

func unwrapForWatch(v variable.Value) interface{} {
	if v.Value != nil {
		return v.Value
	}
	return v.Description
}

// evaluateWatchedVariablesLocked runs watch evaluation from the
// Debugger.paused handler. Uses a background context with the
// configured send timeout since the handler has no caller-supplied
// context.
func (s *Session) evaluateWatchedVariablesLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
	defer cancel()
	s.EvaluateWatchedVariables(ctx)
}

func decodeEventParams(e cdp.Event, v interface{}) error {
	if len(e.Params) == 0 {
		return nil
	}
	return json.Unmarshal(e.Params, v)
}
