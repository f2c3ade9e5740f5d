package tplink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tplink/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tplink/internal/supervisor"
)

// DefaultHealthInterval is how often health is published.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher publishes health messages. Typically the MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// PollerInfo exposes poll loop progress to the reporter.
type PollerInfo interface {
	State() PollerState
	Passes() uint64
	LastPass() time.Time
}

// LoopInfo exposes the poll loop's supervisor to the reporter.
// Satisfied by *supervisor.Manager.
type LoopInfo interface {
	Stats() supervisor.Stats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Interval between reports. Default: 30 seconds.
	Interval time.Duration

	// StaleAfter flags records not refreshed within this window. Zero
	// disables the check.
	StaleAfter time.Duration

	Publisher HealthPublisher
	Poller    PollerInfo
	Dataset   *Dataset
	Registry  *HandleRegistry
}

// HealthReporter publishes retained bridge health at a fixed interval.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time
	now       func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// mu guards logger and loop.
	mu     sync.RWMutex
	logger Logger
	loop   LoopInfo
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHealthInterval
	}
	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		now:       time.Now,
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.mu.Lock()
	h.logger = loggerOrNoop(logger)
	h.mu.Unlock()
}

// SetLoop attaches the poll loop supervisor. Its stats are included in
// every report from then on.
func (h *HealthReporter) SetLoop(loop LoopInfo) {
	h.mu.Lock()
	h.loop = loop
	h.mu.Unlock()
}

func (h *HealthReporter) loopStats() *supervisor.Stats {
	h.mu.RLock()
	loop := h.loop
	h.mu.RUnlock()
	if loop == nil {
		return nil
	}
	stats := loop.Stats()
	return &stats
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		if err := h.publish(HealthStopping, "bridge stopping"); err != nil {
			h.logError("failed to publish stopping health", err)
		}
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the bridge status and the reason for any
// degradation.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	var reasons []string

	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		reasons = append(reasons, "MQTT disconnected")
	}
	if h.cfg.Poller != nil && h.cfg.Poller.State() == PollerStopped {
		reasons = append(reasons, "poll loop stopped")
	}
	if stats := h.loopStats(); stats != nil && stats.Status == supervisor.StatusFailed {
		reasons = append(reasons, fmt.Sprintf("poll loop failed after %d restarts", stats.RestartCount))
	}
	if stale := h.staleDevices(); len(stale) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d stale devices", len(stale)))
	}

	if len(reasons) > 0 {
		return HealthDegraded, strings.Join(reasons, "; ")
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) staleDevices() []string {
	if h.cfg.StaleAfter <= 0 || h.cfg.Dataset == nil {
		return nil
	}
	return h.cfg.Dataset.Stale(h.now().Add(-h.cfg.StaleAfter))
}

// buildMessage assembles a health message for the given status.
func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Bridge:        h.cfg.BridgeID,
		Timestamp:     h.now().UTC(),
		Status:        status,
		Version:       h.cfg.Version,
		UptimeSeconds: int64(h.now().Sub(h.startTime).Seconds()),
		StaleDevices:  h.staleDevices(),
		PollLoop:      h.loopStats(),
		Reason:        reason,
	}

	if h.cfg.Registry != nil {
		msg.StripsManaged, msg.DevicesManaged = h.cfg.Registry.Count()
	}

	if h.cfg.Poller != nil {
		ps := &PollerStatus{
			State:  h.cfg.Poller.State(),
			Passes: h.cfg.Poller.Passes(),
		}
		if last := h.cfg.Poller.LastPass(); !last.IsZero() {
			utc := last.UTC()
			ps.LastPass = &utc
		}
		msg.Poller = ps
	}

	return msg
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.buildMessage(status, reason))
	if err != nil {
		return err
	}

	return h.cfg.Publisher.Publish(mqtt.Topics{}.BridgeHealth(Protocol), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.mu.RLock()
	logger := h.logger
	h.mu.RUnlock()

	logger.Error(msg, "error", err)
}
