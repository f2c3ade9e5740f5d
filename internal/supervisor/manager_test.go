package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// blockingRun returns a Run function that blocks until ctx is cancelled.
func blockingRun(calls *atomic.Int32) func(context.Context) error {
	return func(ctx context.Context) error {
		calls.Add(1)
		<-ctx.Done()
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{Name: "poller"})

	if m.config.RestartDelay != DefaultRestartDelay {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, DefaultRestartDelay)
	}
	if m.Status() != StatusStopped {
		t.Errorf("initial Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.Status() == StatusRunning || m.Stats().RestartCount != 0 || m.Stats().Uptime != 0 || m.LastError() != nil {
		t.Error("new manager should report an idle state")
	}
	if m.Done() != nil {
		t.Error("Done() before Start should be nil")
	}
}

func TestManager_StartRequiresRun(t *testing.T) {
	m := NewManager(Config{Name: "empty"})
	if err := m.Start(context.Background()); err == nil {
		t.Error("Start() without Run should fail")
	}
}

func TestManager_StopWhenNotRunning(t *testing.T) {
	m := NewManager(Config{Name: "idle", Run: blockingRun(new(atomic.Int32))})
	m.Stop()
}

func TestManager_StartAndStop(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(Config{Name: "poller", Run: blockingRun(&calls)})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return m.Status() == StatusRunning })

	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	m.Stop()
	if m.Status() != StatusStopped {
		t.Errorf("Status() after Stop = %q, want %q", m.Status(), StatusStopped)
	}
	select {
	case <-m.Done():
	default:
		t.Error("Done() not closed after Stop")
	}
	if calls.Load() != 1 {
		t.Errorf("Run called %d times, want 1", calls.Load())
	}
}

func TestManager_ParentContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(Config{Name: "poller", Run: blockingRun(new(atomic.Int32))})

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return m.Status() == StatusRunning })
	cancel()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("supervision did not end after context cancel")
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
}

func TestManager_RestartsOnFailure(t *testing.T) {
	var calls atomic.Int32
	var restarts []int
	errFatal := errors.New("loop fatal")

	m := NewManager(Config{
		Name: "poller",
		Run: func(ctx context.Context) error {
			if calls.Add(1) < 3 {
				return errFatal
			}
			<-ctx.Done()
			return nil
		},
		RestartOnFailure: true,
		RestartDelay:     time.Millisecond,
		OnRestart:        func(attempt int) { restarts = append(restarts, attempt) },
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return calls.Load() == 3 && m.Status() == StatusRunning })
	m.Stop()

	if n := m.Stats().RestartCount; n != 2 {
		t.Errorf("RestartCount = %d, want 2", n)
	}
	if len(restarts) != 2 || restarts[0] != 1 || restarts[1] != 2 {
		t.Errorf("OnRestart attempts = %v, want [1 2]", restarts)
	}
	if !errors.Is(m.LastError(), errFatal) {
		t.Errorf("LastError() = %v, want %v", m.LastError(), errFatal)
	}
}

func TestManager_MaxRestartAttempts(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(Config{
		Name: "poller",
		Run: func(context.Context) error {
			calls.Add(1)
			return errors.New("boom")
		},
		RestartOnFailure:   true,
		RestartDelay:       time.Millisecond,
		MaxRestartAttempts: 2,
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("supervision did not give up")
	}

	if calls.Load() != 3 {
		t.Errorf("Run called %d times, want 3 (initial + 2 restarts)", calls.Load())
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
	if stats := m.Stats(); stats.LastError != "boom" || stats.Name != "poller" {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestManager_NoRestartWhenDisabled(t *testing.T) {
	var calls atomic.Int32
	var stopErr atomic.Value
	m := NewManager(Config{
		Name: "poller",
		Run: func(context.Context) error {
			calls.Add(1)
			return errors.New("boom")
		},
		OnStop: func(err error) {
			if err != nil {
				stopErr.Store(err)
			}
		},
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-m.Done()

	if calls.Load() != 1 {
		t.Errorf("Run called %d times, want 1", calls.Load())
	}
	if stopErr.Load() == nil {
		t.Error("OnStop not called with the failure")
	}
}

func TestManager_RecoversPanic(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(Config{
		Name: "poller",
		Run: func(ctx context.Context) error {
			if calls.Add(1) == 1 {
				panic("nil map")
			}
			<-ctx.Done()
			return nil
		},
		RestartOnFailure: true,
		RestartDelay:     time.Millisecond,
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return calls.Load() == 2 && m.Status() == StatusRunning })
	m.Stop()

	if m.LastError() == nil {
		t.Error("panic not recorded as LastError")
	}
}

func TestManager_StopDuringRestartDelay(t *testing.T) {
	m := NewManager(Config{
		Name:             "poller",
		Run:              func(context.Context) error { return errors.New("boom") },
		RestartOnFailure: true,
		RestartDelay:     time.Hour,
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return m.Stats().RestartCount == 1 })

	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start() during restart delay error = %v, want ErrAlreadyRunning", err)
	}

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked during restart delay")
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
}
