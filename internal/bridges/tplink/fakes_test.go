package tplink

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakePlug implements PlugHandle. live is what the device would report;
// status is the cache Update copies it into.
type fakePlug struct {
	mu sync.Mutex

	live   Status
	status Status

	energy     EnergyReading
	energyErr  error
	updateErr  error
	commandErr error
	delay      time.Duration
	panicMsg   string

	updates     int
	energyCalls int
	commands    int
}

func newFakePlug(rawID string, on bool, powerMW float64) *fakePlug {
	st := Status{
		DeviceID: rawID,
		Alias:    "Plug " + rawID,
		LEDOn:    true,
		IsOn:     on,
		Model:    "HS110",
		HWInfo:   map[string]string{"hw_ver": "2.0"},
	}
	if on {
		st.OnSince = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	}
	return &fakePlug{
		live:   st,
		status: st,
		energy: EnergyReading{VoltageMV: 230500, CurrentMA: 150, PowerMW: powerMW, TotalWh: 1200},
	}
}

func (f *fakePlug) wait(ctx context.Context) error {
	f.mu.Lock()
	d := f.delay
	f.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (f *fakePlug) Update(ctx context.Context) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates++
	f.status = f.live
	return nil
}

func (f *fakePlug) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakePlug) EnergyRealtime(ctx context.Context) (EnergyReading, error) {
	if err := f.wait(ctx); err != nil {
		return EnergyReading{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.energyCalls++
	if f.energyErr != nil {
		return EnergyReading{}, f.energyErr
	}
	return f.energy, nil
}

func (f *fakePlug) TurnOn(ctx context.Context) error  { return f.switchRelay(ctx, true) }
func (f *fakePlug) TurnOff(ctx context.Context) error { return f.switchRelay(ctx, false) }

func (f *fakePlug) switchRelay(ctx context.Context, on bool) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commandErr != nil {
		return f.commandErr
	}
	f.commands++
	f.live.IsOn = on
	f.live.OnSince = time.Time{}
	if on {
		f.live.OnSince = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	}
	f.status.IsOn = f.live.IsOn
	f.status.OnSince = f.live.OnSince
	return nil
}

// setLive changes what the next Update returns.
func (f *fakePlug) setLive(fn func(*Status)) {
	f.mu.Lock()
	fn(&f.live)
	f.mu.Unlock()
}

func (f *fakePlug) set(fn func(*fakePlug)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakePlug) counts() (updates, energyCalls, commands int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates, f.energyCalls, f.commands
}

// fakeStrip implements StripHandle.
type fakeStrip struct {
	*fakePlug
	children []*fakePlug
}

func newFakeStrip(rawID string, outlets ...string) *fakeStrip {
	s := &fakeStrip{fakePlug: newFakePlug(rawID, true, 0)}
	s.live.MAC = rawID
	s.status.MAC = rawID
	s.energyErr = ErrTelemetryUnsupported
	for _, o := range outlets {
		s.children = append(s.children, newFakePlug(o, false, 0))
	}
	return s
}

func (s *fakeStrip) Update(ctx context.Context) error {
	if err := s.fakePlug.Update(ctx); err != nil {
		return err
	}
	for _, c := range s.children {
		c.mu.Lock()
		c.status = c.live
		c.mu.Unlock()
	}
	return nil
}

func (s *fakeStrip) Children() []PlugHandle {
	out := make([]PlugHandle, len(s.children))
	for i, c := range s.children {
		out[i] = c
	}
	return out
}

// fakeDialer implements Dialer over fixed handles.
type fakeDialer struct {
	mu       sync.Mutex
	plugs    map[string]*fakePlug
	strips   map[string]*fakeStrip
	dialErrs map[string]error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		plugs:    make(map[string]*fakePlug),
		strips:   make(map[string]*fakeStrip),
		dialErrs: make(map[string]error),
	}
}

func (d *fakeDialer) DialPlug(ctx context.Context, address string) (PlugHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.dialErrs[address]; err != nil {
		return nil, err
	}
	p, ok := d.plugs[address]
	if !ok {
		return nil, fmt.Errorf("no plug at %s", address)
	}
	return p, nil
}

func (d *fakeDialer) DialStrip(ctx context.Context, address string) (StripHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.dialErrs[address]; err != nil {
		return nil, err
	}
	s, ok := d.strips[address]
	if !ok {
		return nil, fmt.Errorf("no strip at %s", address)
	}
	return s, nil
}

// recordingLogger captures log messages by level.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

// testRig wires registry, reader, dataset and poller over a fakeDialer.
type testRig struct {
	dialer   *fakeDialer
	registry *HandleRegistry
	reader   *Reader
	dataset  *Dataset
	poller   *Poller
}

func newTestRig() *testRig {
	d := newFakeDialer()
	r := &testRig{
		dialer:  d,
		reader:  NewReader(time.Second),
		dataset: NewDataset(),
	}
	r.registry = NewHandleRegistry(d, time.Second, nil)
	p, err := NewPoller(PollerConfig{
		Registry: r.registry,
		Reader:   r.reader,
		Dataset:  r.dataset,
		Interval: 10 * time.Millisecond,
	})
	if err != nil {
		panic(err)
	}
	r.poller = p
	return r
}
