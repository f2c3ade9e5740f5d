package tplink

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// PollerState is the lifecycle state of the poll loop.
type PollerState string

const (
	PollerIdle     PollerState = "idle"
	PollerPolling  PollerState = "polling"
	PollerSleeping PollerState = "sleeping"
	PollerStopped  PollerState = "stopped"
)

// DefaultPollInterval is the sleep between reconciliation passes.
const DefaultPollInterval = 5 * time.Second

// DefaultMaxParallelReads bounds concurrent device reads within one pass.
const DefaultMaxParallelReads = 4

// PollerConfig configures a Poller.
type PollerConfig struct {
	Registry *HandleRegistry
	Reader   *Reader
	Dataset  *Dataset

	// Interval is the sleep between passes. Default: 5 seconds.
	Interval time.Duration

	// MaxParallelReads bounds concurrent device reads. Default: 4.
	MaxParallelReads int

	Logger Logger
}

// ReconcileOptions controls one reconciliation pass.
type ReconcileOptions struct {
	// DeviceID additionally reads this strip outlet on its own, as the
	// dispatcher does after a command.
	DeviceID string

	// Refresh issues live status requests before reading.
	Refresh bool
}

// ReconcileResult summarises one pass.
type ReconcileResult struct {
	StripsRead int
	PlugsRead  int

	// Failed maps device ids to their read error. Failed devices keep their
	// last-known record.
	Failed map[string]error

	Duration time.Duration
}

// Poller drives Reader into Dataset for every registered device.
type Poller struct {
	registry    *HandleRegistry
	reader      *Reader
	dataset     *Dataset
	interval    time.Duration
	maxParallel int
	logger      Logger

	mu       sync.RWMutex
	state    PollerState
	lastPass time.Time
	passes   uint64
}

// NewPoller creates a poller in the idle state.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.Registry == nil || cfg.Reader == nil || cfg.Dataset == nil {
		return nil, fmt.Errorf("tplink: poller requires registry, reader and dataset")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.MaxParallelReads <= 0 {
		cfg.MaxParallelReads = DefaultMaxParallelReads
	}

	return &Poller{
		registry:    cfg.Registry,
		reader:      cfg.Reader,
		dataset:     cfg.Dataset,
		interval:    cfg.Interval,
		maxParallel: cfg.MaxParallelReads,
		logger:      loggerOrNoop(cfg.Logger),
		state:       PollerIdle,
	}, nil
}

// State returns the current loop state.
func (p *Poller) State() PollerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// LastPass returns when the last reconciliation pass finished.
func (p *Poller) LastPass() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPass
}

// Passes returns the number of completed passes.
func (p *Poller) Passes() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.passes
}

func (p *Poller) setState(s PollerState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run polls until ctx is cancelled, returning nil, or until the loop's own
// control logic fails, returning an error wrapping ErrLoopFatal. Either way
// the poller ends in the stopped state.
func (p *Poller) Run(ctx context.Context) error {
	defer p.setState(PollerStopped)

	p.logger.Info("poll loop started", "interval", p.interval.String())

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poll loop stopped")
			return nil
		case <-timer.C:
		}

		p.setState(PollerPolling)
		result, err := p.Reconcile(ctx, ReconcileOptions{Refresh: true})
		if err != nil {
			p.logger.Error("poll loop failed", "error", err)
			return err
		}
		if len(result.Failed) > 0 {
			p.logger.Warn("poll pass completed with failures",
				"strips", result.StripsRead, "plugs", result.PlugsRead, "failed", len(result.Failed))
		} else {
			p.logger.Debug("poll pass completed",
				"strips", result.StripsRead, "plugs", result.PlugsRead, "duration", result.Duration.String())
		}

		p.setState(PollerSleeping)
		timer.Reset(p.interval)
	}
}

// Reconcile runs one pass: every strip with its outlets, then every
// standalone plug and the outlet named by opts.DeviceID. Device failures
// are logged and recorded in the result. The returned error is non-nil
// only for ErrLoopFatal.
func (p *Poller) Reconcile(ctx context.Context, opts ReconcileOptions) (result ReconcileResult, err error) {
	start := time.Now()
	result.Failed = make(map[string]error)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrLoopFatal, r, debug.Stack())
		}
	}()

	var resultMu sync.Mutex
	fail := func(id string, err error) {
		p.logger.Warn("device read failed", "device_id", id, "error", err)
		resultMu.Lock()
		result.Failed[id] = err
		resultMu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(p.maxParallel)

	for _, s := range p.registry.Strips() {
		g.Go(guard(func() error {
			reading, err := p.reader.ReadStrip(ctx, s.Handle, opts.Refresh)
			if err != nil {
				fail(s.ID, err)
				return nil
			}
			p.registry.registerChildren(s.ID, s.Handle)
			if err := p.dataset.IngestReplace(CollectionStrip, s.ID, reading.Strip); err != nil {
				return err
			}
			for id, rec := range reading.Outlets {
				if err := p.dataset.IngestReplace(CollectionPlug, id, rec); err != nil {
					return err
				}
			}
			// Failed outlets keep their previous record.
			for id, err := range reading.Failed {
				fail(id, err)
			}
			resultMu.Lock()
			result.StripsRead++
			result.PlugsRead += len(reading.Outlets)
			resultMu.Unlock()
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	for _, pl := range p.registry.Plugs() {
		if !pl.Standalone() && pl.ID != opts.DeviceID {
			continue
		}
		g.Go(guard(func() error {
			rec, err := p.reader.ReadPlug(ctx, pl.Handle, pl.ParentID, opts.Refresh)
			if err != nil {
				fail(pl.ID, err)
				return nil
			}
			if err := p.dataset.IngestReplace(CollectionPlug, pl.ID, rec); err != nil {
				return err
			}
			resultMu.Lock()
			result.PlugsRead++
			resultMu.Unlock()
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)

	p.mu.Lock()
	p.lastPass = time.Now()
	p.passes++
	p.mu.Unlock()

	return result, nil
}

// guard converts a panic or ingest error inside a read goroutine into
// ErrLoopFatal so it reaches the loop instead of crashing the process.
func guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v\n%s", ErrLoopFatal, r, debug.Stack())
			}
		}()
		if err := fn(); err != nil {
			return fmt.Errorf("%w: %w", ErrLoopFatal, err)
		}
		return nil
	}
}
