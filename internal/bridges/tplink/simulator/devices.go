package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tplink/internal/bridges/tplink"
)

// faults holds injected failures for one device.
type faults struct {
	update  error
	energy  error
	command error
	delay   time.Duration
}

// Plug is a simulated outlet, standalone or on a strip.
type Plug struct {
	mu  sync.Mutex
	now func() time.Time

	deviceID string
	mac      string
	alias    string
	model    string
	led      bool
	on       bool
	onSince  time.Time
	meter    bool

	powerMW   float64
	voltageMV float64
	currentMA float64
	totalWh   float64

	cached tplink.Status
	faults faults

	// parent is set for strip outlets.
	parent *Strip

	updates  int
	commands int
}

func newPlug(deviceID string, opts PlugOptions, now func() time.Time) *Plug {
	p := &Plug{
		now:       now,
		deviceID:  deviceID,
		mac:       opts.MAC,
		alias:     opts.Alias,
		model:     opts.Model,
		led:       true,
		meter:     opts.Meter,
		powerMW:   opts.PowerMW,
		voltageMV: opts.VoltageMV,
		currentMA: opts.CurrentMA,
		totalWh:   opts.TotalWh,
	}
	if p.voltageMV == 0 {
		p.voltageMV = 230000
	}
	if opts.On {
		p.on = true
		p.onSince = now().UTC()
	}
	return p
}

// snapshot copies live state into the cache. Caller holds mu.
func (p *Plug) snapshot() {
	p.cached = tplink.Status{
		DeviceID: p.deviceID,
		MAC:      p.mac,
		Alias:    p.alias,
		LEDOn:    p.led,
		IsOn:     p.on,
		Model:    p.model,
		HWInfo:   map[string]string{"hw_ver": "2.0", "sw_ver": "1.0.3", "mac": p.mac},
		OnSince:  p.onSince,
	}
}

// Update implements tplink.DeviceHandle.
func (p *Plug) Update(ctx context.Context) error {
	p.mu.Lock()
	f := p.faults
	p.mu.Unlock()

	if err := wait(ctx, f.delay); err != nil {
		return err
	}
	if f.update != nil {
		return f.update
	}

	p.mu.Lock()
	p.updates++
	p.snapshot()
	p.mu.Unlock()
	return nil
}

// Status implements tplink.DeviceHandle.
func (p *Plug) Status() tplink.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.cached
	if st.HWInfo != nil {
		hw := make(map[string]string, len(st.HWInfo))
		for k, v := range st.HWInfo {
			hw[k] = v
		}
		st.HWInfo = hw
	}
	return st
}

// EnergyRealtime implements tplink.DeviceHandle.
func (p *Plug) EnergyRealtime(ctx context.Context) (tplink.EnergyReading, error) {
	p.mu.Lock()
	f := p.faults
	p.mu.Unlock()

	if err := wait(ctx, f.delay); err != nil {
		return tplink.EnergyReading{}, err
	}
	if f.energy != nil {
		return tplink.EnergyReading{}, f.energy
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.meter {
		return tplink.EnergyReading{}, tplink.ErrTelemetryUnsupported
	}
	if !p.on {
		return tplink.EnergyReading{VoltageMV: p.voltageMV, TotalWh: p.totalWh}, nil
	}
	return tplink.EnergyReading{
		VoltageMV: p.voltageMV,
		CurrentMA: p.currentMA,
		PowerMW:   p.powerMW,
		TotalWh:   p.totalWh,
	}, nil
}

// TurnOn implements tplink.DeviceHandle.
func (p *Plug) TurnOn(ctx context.Context) error {
	return p.switchRelay(ctx, true)
}

// TurnOff implements tplink.DeviceHandle.
func (p *Plug) TurnOff(ctx context.Context) error {
	return p.switchRelay(ctx, false)
}

func (p *Plug) switchRelay(ctx context.Context, on bool) error {
	p.mu.Lock()
	f := p.faults
	p.mu.Unlock()

	if err := wait(ctx, f.delay); err != nil {
		return err
	}
	if f.command != nil {
		return f.command
	}

	p.mu.Lock()
	p.commands++
	p.setRelay(on)
	p.cached.IsOn = p.on
	p.cached.OnSince = p.onSince
	parent := p.parent
	p.mu.Unlock()

	if parent != nil {
		parent.refreshCachedPower()
	}
	return nil
}

// setRelay changes live relay state. Caller holds mu.
func (p *Plug) setRelay(on bool) {
	if on && !p.on {
		p.onSince = p.now().UTC()
	}
	if !on {
		p.onSince = time.Time{}
	}
	p.on = on
}

// SetOn changes the relay as if switched by hand. Visible after the next Update.
func (p *Plug) SetOn(on bool) {
	p.mu.Lock()
	p.setRelay(on)
	p.mu.Unlock()
}

// SetPower sets the reported draw in milliwatts.
func (p *Plug) SetPower(mw float64) {
	p.mu.Lock()
	p.powerMW = mw
	p.mu.Unlock()
}

// SetAlias renames the plug. Visible after the next Update.
func (p *Plug) SetAlias(alias string) {
	p.mu.Lock()
	p.alias = alias
	p.mu.Unlock()
}

// SetUpdateError makes Update fail with err. A nil err clears it.
func (p *Plug) SetUpdateError(err error) {
	p.mu.Lock()
	p.faults.update = err
	p.mu.Unlock()
}

// SetEnergyError makes EnergyRealtime fail with err. A nil err clears it.
func (p *Plug) SetEnergyError(err error) {
	p.mu.Lock()
	p.faults.energy = err
	p.mu.Unlock()
}

// SetCommandError makes TurnOn and TurnOff fail with err. A nil err clears it.
func (p *Plug) SetCommandError(err error) {
	p.mu.Lock()
	p.faults.command = err
	p.mu.Unlock()
}

// SetDelay delays every device call by d.
func (p *Plug) SetDelay(d time.Duration) {
	p.mu.Lock()
	p.faults.delay = d
	p.mu.Unlock()
}

// IsOn reports the live relay state.
func (p *Plug) IsOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}

// Updates returns how many Update calls succeeded.
func (p *Plug) Updates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updates
}

// Commands returns how many on/off commands succeeded.
func (p *Plug) Commands() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commands
}

// Strip is a simulated multi-outlet strip.
type Strip struct {
	*Plug
	outlets []*Plug
}

func newStrip(opts StripOptions, now func() time.Time) *Strip {
	st := &Strip{
		Plug: newPlug(opts.MAC, PlugOptions{MAC: opts.MAC, Alias: opts.Alias, Model: opts.Model}, now),
	}

	base := tplink.NormalizeID(opts.MAC)
	for i := 0; i < opts.Outlets; i++ {
		id := fmt.Sprintf("%s_%s%02d", base, base, i)
		outlet := newPlug(id, PlugOptions{
			MAC:       opts.MAC,
			Alias:     fmt.Sprintf("%s %d", opts.Alias, i+1),
			Model:     opts.Model,
			Meter:     true,
			PowerMW:   float64(5000 * (i + 1)),
			CurrentMA: float64(22 * (i + 1)),
		}, now)
		outlet.parent = st
		st.outlets = append(st.outlets, outlet)
	}
	return st
}

// Update refreshes the strip and every outlet's cached status.
func (s *Strip) Update(ctx context.Context) error {
	if err := s.Plug.Update(ctx); err != nil {
		return err
	}

	s.Plug.mu.Lock()
	anyOn := false
	for _, o := range s.outlets {
		o.mu.Lock()
		o.snapshot()
		anyOn = anyOn || o.on
		o.mu.Unlock()
	}
	s.Plug.cached.IsOn = anyOn
	s.Plug.mu.Unlock()
	return nil
}

// refreshCachedPower recomputes the strip's cached on state from its
// outlets' cached states, as a real strip reports after an outlet command.
func (s *Strip) refreshCachedPower() {
	anyOn := false
	for _, o := range s.outlets {
		o.mu.Lock()
		anyOn = anyOn || o.cached.IsOn
		o.mu.Unlock()
	}
	s.Plug.mu.Lock()
	s.Plug.cached.IsOn = anyOn
	s.Plug.mu.Unlock()
}

// EnergyRealtime reports no strip-level meter; outlets meter individually.
func (s *Strip) EnergyRealtime(ctx context.Context) (tplink.EnergyReading, error) {
	return tplink.EnergyReading{}, tplink.ErrTelemetryUnsupported
}

// TurnOn switches every outlet on.
func (s *Strip) TurnOn(ctx context.Context) error {
	return s.switchAll(ctx, true)
}

// TurnOff switches every outlet off.
func (s *Strip) TurnOff(ctx context.Context) error {
	return s.switchAll(ctx, false)
}

func (s *Strip) switchAll(ctx context.Context, on bool) error {
	if err := s.Plug.switchRelay(ctx, on); err != nil {
		return err
	}
	for _, o := range s.outlets {
		if err := o.switchRelay(ctx, on); err != nil {
			return err
		}
	}
	return nil
}

// Children implements tplink.StripHandle.
func (s *Strip) Children() []tplink.PlugHandle {
	out := make([]tplink.PlugHandle, len(s.outlets))
	for i, o := range s.outlets {
		out[i] = o
	}
	return out
}

// Outlet returns the simulated outlet at index i.
func (s *Strip) Outlet(i int) *Plug {
	return s.outlets[i]
}
