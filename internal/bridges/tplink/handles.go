package tplink

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RegisteredStrip is a strip handle with its normalized id.
type RegisteredStrip struct {
	ID      string
	Address string
	Handle  StripHandle
}

// RegisteredPlug is a plug handle with its short id.
type RegisteredPlug struct {
	// ID is the short id the plug's record is stored under.
	ID string

	// RawID is the id reported by the device before shortening.
	RawID string

	// ParentID is the owning strip id; nil for standalone plugs.
	ParentID *string

	Handle PlugHandle
}

// Standalone reports whether the plug is polled on its own rather than
// through its strip.
func (p RegisteredPlug) Standalone() bool {
	return !isChildID(p.RawID)
}

// RegistrationReport summarises a RegisterAll pass.
type RegistrationReport struct {
	Strips []string
	Plugs  []string

	// Failed maps configured addresses to their ErrRegistration error.
	Failed map[string]error
}

// HandleRegistry holds live handles to known plugs and strips keyed by
// normalized device id.
//
// Outlets discovered through a strip are registered under their short id
// alongside standalone plugs, so both collections share one namespace.
type HandleRegistry struct {
	dialer  Dialer
	timeout time.Duration
	logger  Logger

	mu     sync.RWMutex
	strips map[string]RegisteredStrip
	plugs  map[string]RegisteredPlug
}

// NewHandleRegistry creates an empty registry. timeout bounds each dial and
// identity round-trip; zero disables the bound.
func NewHandleRegistry(dialer Dialer, timeout time.Duration, logger Logger) *HandleRegistry {
	return &HandleRegistry{
		dialer:  dialer,
		timeout: timeout,
		logger:  loggerOrNoop(logger),
		strips:  make(map[string]RegisteredStrip),
		plugs:   make(map[string]RegisteredPlug),
	}
}

// RegisterStrip dials a strip, confirms its identity, and registers every
// outlet under its short id with the strip as parent.
func (r *HandleRegistry) RegisterStrip(ctx context.Context, address string) (StripHandle, error) {
	callCtx, cancel := withDeviceTimeout(ctx, r.timeout)
	defer cancel()

	h, err := r.dialer.DialStrip(callCtx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial strip %s: %w", ErrRegistration, address, err)
	}
	if err := h.Update(callCtx); err != nil {
		return nil, fmt.Errorf("%w: identify strip %s: %w", ErrRegistration, address, err)
	}

	id := NormalizeID(h.Status().DeviceID)
	if id == "" {
		return nil, fmt.Errorf("%w: strip %s reported an empty device id", ErrRegistration, address)
	}

	r.mu.Lock()
	r.strips[id] = RegisteredStrip{ID: id, Address: address, Handle: h}
	r.mu.Unlock()

	r.registerChildren(id, h)
	return h, nil
}

// RegisterPlug dials a standalone plug and registers it under its
// normalized id.
func (r *HandleRegistry) RegisterPlug(ctx context.Context, address string) (PlugHandle, error) {
	callCtx, cancel := withDeviceTimeout(ctx, r.timeout)
	defer cancel()

	h, err := r.dialer.DialPlug(callCtx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial plug %s: %w", ErrRegistration, address, err)
	}
	if err := h.Update(callCtx); err != nil {
		return nil, fmt.Errorf("%w: identify plug %s: %w", ErrRegistration, address, err)
	}

	raw := NormalizeID(h.Status().DeviceID)
	if raw == "" {
		return nil, fmt.Errorf("%w: plug %s reported an empty device id", ErrRegistration, address)
	}

	short := ShortID(raw)

	r.mu.Lock()
	// An outlet already known through its strip keeps its parent.
	if existing, ok := r.plugs[short]; !ok || existing.ParentID == nil {
		r.plugs[short] = RegisteredPlug{ID: short, RawID: raw, Handle: h}
	}
	r.mu.Unlock()

	return h, nil
}

// RegisterAll registers every configured strip, then every configured plug.
// A failing device is logged and excluded; the others are still registered.
func (r *HandleRegistry) RegisterAll(ctx context.Context, strips, plugs []string) RegistrationReport {
	report := RegistrationReport{Failed: make(map[string]error)}

	for _, addr := range strips {
		if err := ctx.Err(); err != nil {
			report.Failed[addr] = fmt.Errorf("%w: %s: %w", ErrRegistration, addr, err)
			continue
		}
		h, err := r.RegisterStrip(ctx, addr)
		if err != nil {
			r.logger.Error("strip registration failed", "address", addr, "error", err)
			report.Failed[addr] = err
			continue
		}
		id := NormalizeID(h.Status().DeviceID)
		report.Strips = append(report.Strips, id)
		r.logger.Info("strip registered", "address", addr, "device_id", id, "outlets", len(h.Children()))
	}

	for _, addr := range plugs {
		if err := ctx.Err(); err != nil {
			report.Failed[addr] = fmt.Errorf("%w: %s: %w", ErrRegistration, addr, err)
			continue
		}
		h, err := r.RegisterPlug(ctx, addr)
		if err != nil {
			r.logger.Error("plug registration failed", "address", addr, "error", err)
			report.Failed[addr] = err
			continue
		}
		id := ShortID(NormalizeID(h.Status().DeviceID))
		report.Plugs = append(report.Plugs, id)
		r.logger.Info("plug registered", "address", addr, "device_id", id)
	}

	return report
}

// registerChildren records the outlets a strip currently reports.
// Called at registration and after every successful strip read.
func (r *HandleRegistry) registerChildren(stripID string, h StripHandle) {
	children := h.Children()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, child := range children {
		raw := NormalizeID(child.Status().DeviceID)
		if raw == "" {
			continue
		}
		parent := stripID
		short := ShortID(raw)
		r.plugs[short] = RegisteredPlug{ID: short, RawID: raw, ParentID: &parent, Handle: child}
	}
}

// LookupPlug returns the handle for a plug or strip outlet.
func (r *HandleRegistry) LookupPlug(id string) (PlugHandle, error) {
	r.mu.RLock()
	p, ok := r.plugs[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return p.Handle, nil
}

// Strips returns a snapshot of registered strips sorted by id.
func (r *HandleRegistry) Strips() []RegisteredStrip {
	r.mu.RLock()
	out := make([]RegisteredStrip, 0, len(r.strips))
	for _, s := range r.strips {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Plugs returns a snapshot of registered plugs and outlets sorted by id.
func (r *HandleRegistry) Plugs() []RegisteredPlug {
	r.mu.RLock()
	out := make([]RegisteredPlug, 0, len(r.plugs))
	for _, p := range r.plugs {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered strips and plugs.
func (r *HandleRegistry) Count() (strips, plugs int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strips), len(r.plugs)
}

// withDeviceTimeout bounds a single device call.
func withDeviceTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// isTimeout reports whether err came from a device call deadline.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
