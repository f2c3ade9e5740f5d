package tplink

import (
	"context"
	"errors"
	"time"
)

var errEmptyDeviceID = errors.New("device reported an empty id")

// Reader fetches device status and telemetry and converts them to records.
// Every device call is bounded by the reader's timeout.
type Reader struct {
	timeout time.Duration
	now     func() time.Time
}

// NewReader creates a reader. timeout bounds each device call; zero
// disables the bound.
func NewReader(timeout time.Duration) *Reader {
	return &Reader{
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ReadPlug returns the current record of a plug or strip outlet.
//
// When refresh is true a live status request is issued first, except for
// strip outlets whose status arrives with the strip's own update. Energy
// telemetry is always fetched fresh.
func (r *Reader) ReadPlug(ctx context.Context, h PlugHandle, parentID *string, refresh bool) (PlugRecord, error) {
	raw := NormalizeID(h.Status().DeviceID)

	if refresh && !isChildID(raw) {
		if err := r.call(ctx, h.Update); err != nil {
			return PlugRecord{}, &ReadError{DeviceID: raw, Op: "update", Err: err}
		}
		raw = NormalizeID(h.Status().DeviceID)
	}

	st := h.Status()
	if raw == "" {
		return PlugRecord{}, &ReadError{DeviceID: raw, Op: "status", Err: errEmptyDeviceID}
	}
	now := r.now()

	rec := PlugRecord{
		ID:         ShortID(raw),
		Name:       st.Alias,
		LEDEnabled: st.LEDOn,
		PowerState: powerStateOf(st.IsOn),
		HWInfo:     cloneHWInfo(st.HWInfo),
		Model:      st.Model,
		UpdatedAt:  now,
	}
	if parentID != nil {
		parent := *parentID
		rec.ParentID = &parent
	}
	if st.IsOn {
		since := st.OnSince
		if since.IsZero() {
			since = now
		}
		since = since.UTC()
		rec.OnSince = &since
	}

	var reading EnergyReading
	err := r.call(ctx, func(callCtx context.Context) error {
		var err error
		reading, err = h.EnergyRealtime(callCtx)
		return err
	})
	switch {
	case err == nil:
		e := energyFromReading(reading)
		rec.Energy = &e
	case errors.Is(err, ErrTelemetryUnsupported):
	default:
		return PlugRecord{}, &ReadError{DeviceID: raw, Op: "read energy", Err: err}
	}

	return rec, nil
}

// StripReading is one strip read: the strip's record, the outlets that
// were read, and the outlets that were not. Both maps are keyed by short id.
type StripReading struct {
	Strip   StripRecord
	Outlets map[string]PlugRecord
	Failed  map[string]error
}

// ReadStrip reads a strip and each of its outlets.
//
// Outlets are read without refresh since the strip's update already carries
// their status. A failed outlet is reported in Failed and does not stop the
// read of the strip or its other outlets. The error is non-nil only when the
// strip itself cannot be read.
func (r *Reader) ReadStrip(ctx context.Context, h StripHandle, refresh bool) (StripReading, error) {
	if refresh {
		if err := r.call(ctx, h.Update); err != nil {
			return StripReading{}, &ReadError{DeviceID: NormalizeID(h.Status().DeviceID), Op: "update", Err: err}
		}
	}

	st := h.Status()
	id := NormalizeID(st.DeviceID)
	if id == "" {
		return StripReading{}, &ReadError{DeviceID: id, Op: "status", Err: errEmptyDeviceID}
	}
	mac := st.MAC
	if mac == "" {
		mac = st.DeviceID
	}

	children := h.Children()
	out := StripReading{
		Strip: StripRecord{
			ID:         id,
			MAC:        mac,
			Name:       st.Alias,
			LEDEnabled: st.LEDOn,
			PowerState: powerStateOf(st.IsOn),
			HWInfo:     cloneHWInfo(st.HWInfo),
			Model:      st.Model,
			Children:   make([]string, 0, len(children)),
			UpdatedAt:  r.now(),
		},
		Outlets: make(map[string]PlugRecord, len(children)),
		Failed:  make(map[string]error),
	}

	for _, child := range children {
		childID := ShortID(NormalizeID(child.Status().DeviceID))
		rec, err := r.ReadPlug(ctx, child, &id, false)
		if err != nil {
			out.Failed[childID] = err
			if childID != "" {
				out.Strip.Children = append(out.Strip.Children, childID)
			}
			continue
		}
		out.Strip.Children = append(out.Strip.Children, rec.ID)
		out.Outlets[rec.ID] = rec
	}

	return out, nil
}

func (r *Reader) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := withDeviceTimeout(ctx, r.timeout)
	defer cancel()
	return fn(callCtx)
}
