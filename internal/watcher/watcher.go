// internal/watcher/watcher.go

// Package watcher runs the monitoring loop: it consumes log lines in
// arrival order, updates the sliding window and pool detector, evaluates
// alert policy and hands intents to the dispatcher.
package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FairForge/poolwatch/internal/detector"
	"github.com/FairForge/poolwatch/internal/history"
	"github.com/FairForge/poolwatch/internal/logparse"
	"github.com/FairForge/poolwatch/internal/metrics"
	"github.com/FairForge/poolwatch/internal/policy"
	"github.com/FairForge/poolwatch/internal/window"
)

// Sender delivers one alert intent. Implementations must be safe for
// concurrent use; deliveries run outside the monitor loop.
type Sender interface {
	Send(ctx context.Context, intent policy.AlertIntent) error
}

// Options wires a Monitor's collaborators.
type Options struct {
	Parser     *logparse.Parser
	Aggregator *window.Aggregator
	Detector   *detector.Detector
	Engine     *policy.Engine

	// Sender may be nil: alerts are then logged locally only.
	Sender Sender

	// History may be nil: fired alerts are then not persisted.
	History *history.Store

	Logger *zap.Logger

	// DispatchTimeout bounds each delivery. In-flight deliveries get this
	// long to finish during shutdown.
	DispatchTimeout time.Duration

	// MaxInFlight bounds concurrent deliveries.
	MaxInFlight int

	// Maintenance sets the initial maintenance-mode state.
	Maintenance bool

	// Now may be injected by tests.
	Now func() time.Time
}

// Status is a point-in-time view of the monitor, served by the admin API.
type Status struct {
	Pool          logparse.Pool            `json:"pool"`
	PoolChangedAt time.Time                `json:"pool_changed_at,omitempty"`
	Window        window.ErrorRateSnapshot `json:"window"`
	EventsTotal   uint64                   `json:"events_total"`
	ParseFailures uint64                   `json:"parse_failures"`
	Maintenance   bool                     `json:"maintenance"`

	LastTransition *detector.Transition `json:"last_transition,omitempty"`
}

// Monitor owns all mutable monitoring state. The loop in Run is the sole
// writer; dispatches are pure consumers of already-computed intents.
type Monitor struct {
	parser     *logparse.Parser
	aggregator *window.Aggregator
	detector   *detector.Detector
	engine     *policy.Engine
	sender     Sender
	store      *history.Store
	logger     *zap.Logger

	dispatchTimeout time.Duration
	sem             chan struct{}
	wg              sync.WaitGroup
	now             func() time.Time

	maintenance atomic.Bool
	parseWarn   *rate.Limiter

	mu     sync.RWMutex
	status Status
}

// New creates a monitor.
func New(opts Options) (*Monitor, error) {
	if opts.Parser == nil || opts.Aggregator == nil || opts.Detector == nil || opts.Engine == nil {
		return nil, errors.New("watcher: parser, aggregator, detector and engine are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 10 * time.Second
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 16
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Monitor{
		parser:          opts.Parser,
		aggregator:      opts.Aggregator,
		detector:        opts.Detector,
		engine:          opts.Engine,
		sender:          opts.Sender,
		store:           opts.History,
		logger:          opts.Logger,
		dispatchTimeout: opts.DispatchTimeout,
		sem:             make(chan struct{}, opts.MaxInFlight),
		now:             opts.Now,
		// One malformed-line warning per 5s; the rest are only counted.
		parseWarn: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	m.maintenance.Store(opts.Maintenance)
	m.status.Pool = logparse.PoolUnknown
	return m, nil
}

// Run consumes lines until the channel closes or ctx is canceled, then
// waits for in-flight dispatches. Per-line failures never terminate the
// loop.
func (m *Monitor) Run(ctx context.Context, lines <-chan string) error {
	defer m.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			m.processLine(ctx, line)
		}
	}
}

// processLine handles one raw log line end to end.
func (m *Monitor) processLine(ctx context.Context, line string) {
	ev, err := m.parser.Parse(line)
	if err != nil {
		metrics.RecordParseFailure()
		m.mu.Lock()
		m.status.ParseFailures++
		m.mu.Unlock()
		if m.parseWarn.Allow() {
			m.logger.Warn("skipping malformed log line", zap.Error(err))
		}
		return
	}

	metrics.RecordEvent(string(ev.Pool))

	m.aggregator.Add(ev)
	snap := m.aggregator.Snapshot()
	metrics.RecordSnapshot(snap.RatePercent, snap.TotalCount)

	tr, changed := m.detector.Observe(ev)
	if changed {
		metrics.RecordPoolChange()
		m.logger.Info("pool transition observed",
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)),
			zap.String("release", tr.Release),
			zap.String("upstream", tr.Upstream))
	}

	state := m.detector.State()
	m.mu.Lock()
	m.status.EventsTotal++
	m.status.Pool = state.Pool
	m.status.PoolChangedAt = state.ChangedAt
	m.status.Window = snap
	if changed {
		m.status.LastTransition = tr
	}
	m.mu.Unlock()

	intents := m.engine.Evaluate(tr, snap, state.Pool, m.now(), m.maintenance.Load())
	for _, intent := range intents {
		m.dispatch(ctx, intent)
	}
}

// dispatch delivers one intent on its own goroutine so a slow webhook never
// backpressures ingestion. Deliveries never touch monitor state.
func (m *Monitor) dispatch(ctx context.Context, intent policy.AlertIntent) {
	if m.sender == nil {
		m.logger.Info("alert (no webhook configured)",
			zap.String("kind", string(intent.Kind)),
			zap.String("id", intent.ID))
		m.store.RecordAlert(ctx, intent, false)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sem <- struct{}{}
		defer func() { <-m.sem }()

		// Deliberately not derived from the run context: an in-flight
		// delivery may outlive shutdown up to its own timeout.
		sendCtx, cancel := context.WithTimeout(context.Background(), m.dispatchTimeout)
		defer cancel()

		err := m.sender.Send(sendCtx, intent)
		if err != nil {
			metrics.RecordDispatchFailure()
			m.logger.Error("alert delivery failed, dropping",
				zap.String("kind", string(intent.Kind)),
				zap.String("id", intent.ID),
				zap.Error(err))
		} else {
			m.logger.Info("alert delivered",
				zap.String("kind", string(intent.Kind)),
				zap.String("id", intent.ID))
		}

		// Fresh context: sendCtx is often already expired when delivery
		// timed out.
		recCtx, recCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer recCancel()
		m.store.RecordAlert(recCtx, intent, err == nil)
	}()
}

// Status returns a snapshot of monitor state for the admin API.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.status
	st.Maintenance = m.maintenance.Load()
	return st
}

// SetMaintenance toggles alert suppression at runtime.
func (m *Monitor) SetMaintenance(on bool) {
	prev := m.maintenance.Swap(on)
	if prev != on {
		m.logger.Info("maintenance mode changed", zap.Bool("enabled", on))
	}
}

// Maintenance reports whether alerting is suppressed.
func (m *Monitor) Maintenance() bool { return m.maintenance.Load() }
