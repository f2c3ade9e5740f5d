package simulator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tplink/internal/bridges/tplink"
)

// DefaultOutlets is the outlet count of strips built by FromAddresses.
const DefaultOutlets = 3

// ErrUnreachable is returned when dialing an address with no simulated device.
var ErrUnreachable = errors.New("simulator: device unreachable")

// Simulator is a tplink.Dialer backed by in-memory devices.
type Simulator struct {
	mu         sync.RWMutex
	plugs      map[string]*Plug
	strips     map[string]*Strip
	dialErrors map[string]error
	now        func() time.Time
}

// New creates an empty simulator.
func New() *Simulator {
	return &Simulator{
		plugs:      make(map[string]*Plug),
		strips:     make(map[string]*Strip),
		dialErrors: make(map[string]error),
		now:        time.Now,
	}
}

// FromAddresses builds a simulator with one plug per plug address and one
// strip of DefaultOutlets outlets per strip address. Device ids are derived
// from the address, so they are stable across restarts.
func FromAddresses(strips, plugs []string) *Simulator {
	s := New()
	for _, addr := range strips {
		s.AddStrip(addr, StripOptions{Outlets: DefaultOutlets})
	}
	for _, addr := range plugs {
		s.AddPlug(addr, PlugOptions{Meter: true})
	}
	return s
}

// PlugOptions configures a simulated plug.
type PlugOptions struct {
	// MAC defaults to one derived from the address.
	MAC   string
	Alias string
	Model string
	On    bool

	// Meter enables energy telemetry.
	Meter bool

	// PowerMW, VoltageMV and CurrentMA are reported while the plug is on.
	PowerMW   float64
	VoltageMV float64
	CurrentMA float64
	TotalWh   float64
}

// StripOptions configures a simulated strip.
type StripOptions struct {
	MAC     string
	Alias   string
	Model   string
	Outlets int
}

// AddPlug adds a standalone plug reachable at address.
func (s *Simulator) AddPlug(address string, opts PlugOptions) *Plug {
	if opts.MAC == "" {
		opts.MAC = macFor(address)
	}
	if opts.Alias == "" {
		opts.Alias = "Plug " + address
	}
	if opts.Model == "" {
		opts.Model = "HS110(UK)"
	}
	p := newPlug(opts.MAC, opts, s.now)

	s.mu.Lock()
	s.plugs[address] = p
	s.mu.Unlock()
	return p
}

// AddStrip adds a strip reachable at address.
func (s *Simulator) AddStrip(address string, opts StripOptions) *Strip {
	if opts.MAC == "" {
		opts.MAC = macFor(address)
	}
	if opts.Alias == "" {
		opts.Alias = "Strip " + address
	}
	if opts.Model == "" {
		opts.Model = "HS300(UK)"
	}
	st := newStrip(opts, s.now)

	s.mu.Lock()
	s.strips[address] = st
	s.mu.Unlock()
	return st
}

// SetDialError makes dialing address fail with err. A nil err clears it.
func (s *Simulator) SetDialError(address string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.dialErrors, address)
		return
	}
	s.dialErrors[address] = err
}

// DialPlug implements tplink.Dialer.
func (s *Simulator) DialPlug(ctx context.Context, address string) (tplink.PlugHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.dialErrors[address]; err != nil {
		return nil, err
	}
	p, ok := s.plugs[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, address)
	}
	return p, nil
}

// DialStrip implements tplink.Dialer.
func (s *Simulator) DialStrip(ctx context.Context, address string) (tplink.StripHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.dialErrors[address]; err != nil {
		return nil, err
	}
	st, ok := s.strips[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, address)
	}
	return st, nil
}

// macFor derives a locally administered MAC address from a network address.
func macFor(address string) string {
	h := fnv.New64a()
	h.Write([]byte(address))
	sum := h.Sum64()

	octets := make([]string, 6)
	octets[0] = "02"
	for i := 1; i < 6; i++ {
		octets[i] = fmt.Sprintf("%02X", byte(sum>>(8*uint(i))))
	}
	return strings.Join(octets, ":")
}

// wait honours an injected delay unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
