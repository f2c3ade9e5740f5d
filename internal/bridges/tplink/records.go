package tplink

import (
	"strings"
	"time"
)

// Protocol is the protocol identifier used in topics and endpoint ids.
const Protocol = "tplink"

// parentDelimiter separates a strip id from an outlet index in raw outlet ids.
const parentDelimiter = "_"

// Collection names a typed record collection in the Dataset.
type Collection string

const (
	CollectionStrip Collection = "strip"
	CollectionPlug  Collection = "plug"
)

// PowerState is the relay state of a plug or strip.
type PowerState string

const (
	PowerOn  PowerState = "on"
	PowerOff PowerState = "off"
)

func powerStateOf(on bool) PowerState {
	if on {
		return PowerOn
	}
	return PowerOff
}

// NormalizeID strips ":" separators from a hardware address.
//
//	NormalizeID("AA:BB:CC:DD:EE:FF") // "AABBCCDDEEFF"
func NormalizeID(raw string) string {
	return strings.ReplaceAll(raw, ":", "")
}

// ShortID returns the outlet part of a raw strip-outlet id, or the raw id
// itself when it carries no parent delimiter. Only the first delimiter
// splits: everything after it is the outlet id, so two outlets whose ids
// differ after a second "_" never collapse onto one short id.
//
//	ShortID("AA:BB_1")  // "1"
//	ShortID("AABB_1_2") // "1_2"
//	ShortID("AABBCC")   // "AABBCC"
func ShortID(raw string) string {
	if _, suffix, ok := strings.Cut(raw, parentDelimiter); ok {
		return suffix
	}
	return raw
}

// isChildID reports whether a raw id names a strip outlet.
func isChildID(raw string) bool {
	return strings.Contains(raw, parentDelimiter)
}

// Energy is converted realtime telemetry in SI units. Values are never negative.
type Energy struct {
	VoltageV float64 `json:"voltage_v"`
	CurrentA float64 `json:"current_a"`
	PowerW   float64 `json:"power_w"`
	TotalWh  float64 `json:"total_wh"`
}

// energyFromReading converts device units (mV, mA, mW) to V, A and W.
func energyFromReading(r EnergyReading) Energy {
	return Energy{
		VoltageV: nonNegative(r.VoltageMV) / 1000,
		CurrentA: nonNegative(r.CurrentMA) / 1000,
		PowerW:   nonNegative(r.PowerMW) / 1000,
		TotalWh:  nonNegative(r.TotalWh),
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// StripRecord is the last-known state of a power strip.
type StripRecord struct {
	ID         string            `json:"id"`
	MAC        string            `json:"mac"`
	Name       string            `json:"alias"`
	LEDEnabled bool              `json:"led"`
	PowerState PowerState        `json:"power_state"`
	HWInfo     map[string]string `json:"hw_info,omitempty"`
	Model      string            `json:"model"`

	// Children are the short ids of the strip's outlets.
	Children  []string  `json:"children"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlugRecord is the last-known state of a plug or strip outlet.
type PlugRecord struct {
	ID string `json:"id"`

	// ParentID is the owning strip's raw id; nil for standalone plugs.
	ParentID   *string           `json:"parent_id"`
	Name       string            `json:"alias"`
	LEDEnabled bool              `json:"led"`
	PowerState PowerState        `json:"power_state"`
	HWInfo     map[string]string `json:"hw_info,omitempty"`
	Model      string            `json:"model"`

	// OnSince is set if and only if PowerState is on.
	OnSince *time.Time `json:"on_since,omitempty"`

	// Energy is nil when the device has no meter.
	Energy    *Energy   `json:"energy,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOn reports whether the plug relay is on.
func (p PlugRecord) IsOn() bool {
	return p.PowerState == PowerOn
}

// Clone returns a deep copy of the record.
func (p PlugRecord) Clone() PlugRecord {
	c := p
	if p.ParentID != nil {
		parent := *p.ParentID
		c.ParentID = &parent
	}
	if p.OnSince != nil {
		since := *p.OnSince
		c.OnSince = &since
	}
	if p.Energy != nil {
		e := *p.Energy
		c.Energy = &e
	}
	c.HWInfo = cloneHWInfo(p.HWInfo)
	return c
}

// Clone returns a deep copy of the record.
func (s StripRecord) Clone() StripRecord {
	c := s
	if s.Children != nil {
		c.Children = append([]string(nil), s.Children...)
	}
	c.HWInfo = cloneHWInfo(s.HWInfo)
	return c
}

func cloneHWInfo(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Logger is the logging interface used by the bridge components.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func loggerOrNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}
