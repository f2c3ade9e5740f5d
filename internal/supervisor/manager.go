package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Status represents the current state of a supervised loop.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// DefaultRestartDelay is used when Config.RestartDelay is zero.
const DefaultRestartDelay = 5 * time.Second

// ErrAlreadyRunning is returned by Start on a running manager.
var ErrAlreadyRunning = errors.New("supervisor: already running")

// Config holds configuration for a supervised loop.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Run is the loop. It must return nil once ctx is cancelled and a
	// non-nil error when it fails.
	Run func(ctx context.Context) error

	// RestartOnFailure enables automatic restart when Run returns an error.
	RestartOnFailure bool

	// RestartDelay is the time to wait before restarting after a failure.
	RestartDelay time.Duration

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// OnStart is called each time Run is entered.
	OnStart func()

	// OnStop is called each time Run returns, with its error.
	OnStop func(err error)

	// OnRestart is called before each restart attempt.
	OnRestart func(attempt int)
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises one loop.
type Manager struct {
	config Config
	logger Logger

	mu           sync.RWMutex
	status       Status
	restartCount int
	lastError    error
	startTime    time.Time
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewManager creates a new supervisor with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

func (m *Manager) log() Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

// Start runs the loop in a new goroutine and begins supervising it.
func (m *Manager) Start(ctx context.Context) error {
	if m.config.Run == nil {
		return fmt.Errorf("supervisor %s: no run function", m.config.Name)
	}

	m.mu.Lock()
	if m.supervising() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.status = StatusStarting
	m.cancel = cancel
	m.done = make(chan struct{})
	m.restartCount = 0
	m.lastError = nil
	done := m.done
	m.mu.Unlock()

	go m.monitor(runCtx, done)
	return nil
}

// supervising reports whether a monitor goroutine is still active,
// including while it waits to restart. Caller holds mu.
func (m *Manager) supervising() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// monitor runs the loop and handles restarts.
func (m *Manager) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		err := m.runOnce(ctx)

		if ctx.Err() != nil {
			m.log().Info("loop stopped as requested", "name", m.config.Name)
			m.setStatus(StatusStopped)
			return
		}

		if err == nil {
			m.log().Info("loop exited", "name", m.config.Name)
			m.setStatus(StatusStopped)
			return
		}

		m.log().Error("loop failed", "name", m.config.Name, "error", err)

		m.mu.Lock()
		m.lastError = err
		m.status = StatusFailed
		m.mu.Unlock()

		if !m.config.RestartOnFailure {
			m.log().Info("restart disabled, not restarting", "name", m.config.Name)
			return
		}

		m.mu.Lock()
		m.restartCount++
		attempt := m.restartCount
		m.mu.Unlock()

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.log().Error("max restart attempts reached",
				"name", m.config.Name,
				"attempts", attempt-1,
			)
			return
		}

		m.log().Info("restarting loop",
			"name", m.config.Name,
			"attempt", attempt,
			"delay", m.config.RestartDelay.String(),
		)

		if m.config.OnRestart != nil {
			m.config.OnRestart(attempt)
		}

		timer := time.NewTimer(m.config.RestartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.log().Info("context cancelled, not restarting", "name", m.config.Name)
			m.setStatus(StatusStopped)
			return
		case <-timer.C:
		}
	}
}

// runOnce calls Run, converting a panic into an error.
func (m *Manager) runOnce(ctx context.Context) (err error) {
	m.mu.Lock()
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	if m.config.OnStart != nil {
		m.config.OnStart()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v\n%s", m.config.Name, r, debug.Stack())
		}
		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}
	}()

	return m.config.Run(ctx)
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Stop cancels the loop and waits for it to return. Safe to call on a
// manager that was never started.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// Done is closed once supervision ends: after Stop, after a clean exit, or
// when restarts are exhausted. Nil before Start.
func (m *Manager) Done() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.done
}

// Status returns the current status of the supervised loop.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// LastError returns the last error the loop failed with.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// Stats returns statistics about the supervised loop.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the loop.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:         m.config.Name,
		Status:       m.status,
		RestartCount: m.restartCount,
	}
	if m.status == StatusRunning {
		stats.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}
	return stats
}
