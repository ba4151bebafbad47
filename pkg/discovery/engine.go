package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/registry"
)

const meterName = "github.com/vikashloomba/mcp-hub-gateway/pkg/discovery"

// EngineOptions configure an Engine.
type EngineOptions struct {
	// MaxAge is how long a published snapshot is reused by Snapshot before an
	// on-demand refresh. Defaults to 10s.
	MaxAge time.Duration
	Logger *slog.Logger
	// Meter records cycle metrics. Defaults to the global meter provider.
	Meter metric.Meter
	Now   func() time.Time
}

func (o *EngineOptions) withDefaults() EngineOptions {
	if o == nil {
		o = &EngineOptions{}
	}
	opts := *o
	if opts.MaxAge <= 0 {
		opts.MaxAge = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(meterName)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// Engine runs discovery cycles over the registry and owns the published
// snapshot. It is the only writer of that snapshot; readers get an
// immutable instance that is swapped atomically.
type Engine struct {
	registry *registry.Registry
	prober   Prober
	opts     EngineOptions

	current atomic.Pointer[Snapshot]
	flight  singleflight.Group

	subMu       sync.RWMutex
	subscribers []func(*Snapshot)

	cycles  metric.Int64Counter
	healthy metric.Int64Gauge
}

// NewEngine builds an Engine. No probing happens until Discover, Refresh,
// Snapshot or Run is called.
func NewEngine(reg *registry.Registry, prober Prober, opts *EngineOptions) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("discovery: registry is required")
	}
	if prober == nil {
		return nil, fmt.Errorf("discovery: prober is required")
	}
	options := opts.withDefaults()
	e := &Engine{registry: reg, prober: prober, opts: options}

	var err error
	if e.cycles, err = options.Meter.Int64Counter("mcphub.discovery.cycles",
		metric.WithDescription("Completed discovery cycles")); err != nil {
		return nil, fmt.Errorf("discovery: cycles counter: %w", err)
	}
	if e.healthy, err = options.Meter.Int64Gauge("mcphub.backends.healthy",
		metric.WithDescription("Healthy backends in the latest snapshot")); err != nil {
		return nil, fmt.Errorf("discovery: healthy gauge: %w", err)
	}
	return e, nil
}

// Discover probes every active backend concurrently and assembles a new
// snapshot in configuration order. It never fails: unreachable backends are
// recorded as unhealthy. The result is not published; see Refresh.
func (e *Engine) Discover(ctx context.Context) *Snapshot {
	takenAt := e.opts.Now()
	backends := e.registry.ListActive()
	statuses := make([]BackendStatus, len(backends))

	var g errgroup.Group
	for i, backend := range backends {
		g.Go(func() error {
			statuses[i] = e.probe(ctx, backend)
			return nil
		})
	}
	_ = g.Wait()

	entries := make([]Entry, len(backends))
	for i, backend := range backends {
		entries[i] = Entry{Backend: backend, Status: settle(backend, statuses[i])}
	}
	return NewSnapshot(takenAt, entries)
}

// probe isolates one backend: a panicking prober only marks that backend
// unhealthy for this cycle.
func (e *Engine) probe(ctx context.Context, backend registry.BackendDescriptor) (status BackendStatus) {
	defer func() {
		if r := recover(); r != nil {
			e.opts.Logger.Error("prober panicked", "backend", backend.ID, "panic", r)
			status = BackendStatus{
				ID:            backend.ID,
				LastCheckedAt: e.opts.Now(),
				Error:         fmt.Sprintf("probe panic: %v", r),
				ErrorKind:     ErrorKindOther,
			}
		}
	}()
	return e.prober.Probe(ctx, backend)
}

// settle applies the per-backend rules that do not depend on the prober.
func settle(backend registry.BackendDescriptor, status BackendStatus) BackendStatus {
	status.ID = backend.ID
	if status.Healthy {
		if status.Tools == nil {
			status.Tools = []ToolDescriptor{}
		}
		if status.ObservedToolCount < 0 {
			status.ObservedToolCount = 0
		}
		return status
	}
	status.Tools = []ToolDescriptor{}
	if backend.AlwaysIncluded {
		status.ObservedToolCount = backend.DeclaredToolCount
	} else {
		status.ObservedToolCount = 0
	}
	return status
}

// Refresh runs a discovery cycle and publishes its snapshot. Concurrent
// callers share one cycle.
func (e *Engine) Refresh(ctx context.Context) *Snapshot {
	v, _, _ := e.flight.Do("refresh", func() (any, error) {
		snap := e.Discover(context.WithoutCancel(ctx))
		e.publish(ctx, snap)
		return snap, nil
	})
	return v.(*Snapshot)
}

func (e *Engine) publish(ctx context.Context, snap *Snapshot) {
	e.current.Store(snap)
	healthy := snap.HealthyCount()
	e.cycles.Add(ctx, 1)
	e.healthy.Record(ctx, int64(healthy), metric.WithAttributes(attribute.Int("total", snap.Len())))
	e.opts.Logger.Debug("discovery cycle complete", "backends", snap.Len(), "healthy", healthy)

	e.subMu.RLock()
	subs := append([]func(*Snapshot){}, e.subscribers...)
	e.subMu.RUnlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// Current returns the last published snapshot, or nil before the first cycle.
func (e *Engine) Current() *Snapshot {
	return e.current.Load()
}

// Snapshot returns the published snapshot while it is younger than MaxAge
// and refreshes on demand otherwise.
func (e *Engine) Snapshot(ctx context.Context) *Snapshot {
	if cur := e.current.Load(); cur != nil && e.opts.Now().Sub(cur.TakenAt()) < e.opts.MaxAge {
		return cur
	}
	return e.Refresh(ctx)
}

// Subscribe registers fn to be called with every published snapshot. fn runs
// on the refreshing goroutine and must not block for long.
func (e *Engine) Subscribe(fn func(*Snapshot)) {
	if fn == nil {
		return
	}
	e.subMu.Lock()
	e.subscribers = append(e.subscribers, fn)
	e.subMu.Unlock()
}

// Run refreshes immediately and then every interval until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("discovery: interval must be positive, got %s", interval)
	}
	e.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Refresh(ctx)
		}
	}
}
