// Package profiler provides a reference ProfilerCollaborator implementation
// wrapping the Profiler and HeapProfiler CDP domains over the same
// InspectorClient transport DebugSession uses. Profiling is explicitly out
// of scope for the core; this package exists so the core has a concrete
// collaborator to compose with.
package profiler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/workspace/cdp-debugger/internal/cdp"
)

// ProfilerCollaborator is the interface the core would compose against if
// it drove profiling itself; it does not. This package's Profiler type
// implements it for standalone use.
type ProfilerCollaborator interface {
	StartCPUProfile(ctx context.Context) error
	StopCPUProfile(ctx context.Context) (CPUProfile, error)
	TakeHeapSnapshot(ctx context.Context) (HeapSnapshot, error)
	StartTimeline(ctx context.Context, categories []string) error
}

// CPUProfile is the decoded result of Profiler.stop.
type CPUProfile struct {
	StartTime float64       `json:"startTime"`
	EndTime   float64       `json:"endTime"`
	Nodes     []ProfileNode `json:"nodes"`
}

// ProfileNode is one sampled call-tree node within a CPUProfile.
type ProfileNode struct {
	ID           int    `json:"id"`
	FunctionName string `json:"functionName"`
	HitCount     int    `json:"hitCount"`
	Children     []int  `json:"children"`
}

// HeapSnapshot is a coarse summary of HeapProfiler.takeHeapSnapshot; the
// CDP domain streams the snapshot in chunks, which this reference
// implementation simply concatenates.
type HeapSnapshot struct {
	Chunks []string
}

// Profiler drives the Profiler and HeapProfiler CDP domains over an
// already-connected InspectorClient.
type Profiler struct {
	client  *cdp.Client
	timeout time.Duration
}

// New constructs a Profiler bound to client.
func New(client *cdp.Client, timeout time.Duration) *Profiler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Profiler{client: client, timeout: timeout}
}

// StartCPUProfile enables the Profiler domain and begins sampling.
func (p *Profiler) StartCPUProfile(ctx context.Context) error {
	if err := p.client.Send(ctx, "Profiler.enable", nil, p.timeout, nil); err != nil {
		return err
	}
	return p.client.Send(ctx, "Profiler.start", nil, p.timeout, nil)
}

// StopCPUProfile stops sampling and decodes the resulting profile.
func (p *Profiler) StopCPUProfile(ctx context.Context) (CPUProfile, error) {
	var result struct {
		Profile CPUProfile `json:"profile"`
	}
	if err := p.client.Send(ctx, "Profiler.stop", nil, p.timeout, &result); err != nil {
		return CPUProfile{}, err
	}
	return result.Profile, nil
}

// TakeHeapSnapshot requests a heap snapshot and accumulates the streamed
// chunks delivered via HeapProfiler.addHeapSnapshotChunk events.
func (p *Profiler) TakeHeapSnapshot(ctx context.Context) (HeapSnapshot, error) {
	var snapshot HeapSnapshot
	done := make(chan struct{})

	p.client.On("HeapProfiler.addHeapSnapshotChunk", func(e cdp.Event) {
		var params struct {
			Chunk string `json:"chunk"`
		}
		if err := decodeEvent(e, &params); err == nil {
			snapshot.Chunks = append(snapshot.Chunks, params.Chunk)
		}
	})

	if err := p.client.Send(ctx, "HeapProfiler.enable", nil, p.timeout, nil); err != nil {
		p.client.Off("HeapProfiler.addHeapSnapshotChunk")
		return HeapSnapshot{}, err
	}

	go func() {
		p.client.Send(ctx, "HeapProfiler.takeHeapSnapshot", nil, p.timeout, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.client.Off("HeapProfiler.addHeapSnapshotChunk")
		return HeapSnapshot{}, ctx.Err()
	}

	p.client.Off("HeapProfiler.addHeapSnapshotChunk")
	return snapshot, nil
}

// StartTimeline enables Tracing for the given categories, the CDP
// equivalent of a Chrome DevTools performance-timeline recording.
func (p *Profiler) StartTimeline(ctx context.Context, categories []string) error {
	params := map[string]interface{}{
		"categories": categories,
	}
	return p.client.Send(ctx, "Tracing.start", params, p.timeout, nil)
}

func decodeEvent(e cdp.Event, v interface{}) error {
	if len(e.Params) == 0 {
		return nil
	}
	return json.Unmarshal(e.Params, v)
}

var _ ProfilerCollaborator = (*Profiler)(nil)
