package tplink

import (
	"context"
	"time"
)

// Status is the cached status payload of a device, as last fetched by Update.
type Status struct {
	// DeviceID is the raw identifier reported by the device, for example
	// "AA:BB:CC:DD:EE:FF" for a strip or "AABBCCDDEEFF_1" for a strip outlet.
	DeviceID string

	// MAC is the hardware address, when the device reports one.
	MAC string

	Alias string
	LEDOn bool
	IsOn  bool
	Model string

	// HWInfo carries hardware and firmware details (hw_ver, sw_ver, ...).
	HWInfo map[string]string

	// OnSince is when the relay last switched on. Zero when off.
	OnSince time.Time
}

// EnergyReading is a realtime meter reading in device units.
type EnergyReading struct {
	VoltageMV float64
	CurrentMA float64
	PowerMW   float64
	TotalWh   float64
}

// DeviceHandle is a live connection to one plug or strip.
//
// Every method that takes a context performs a network round-trip and may
// fail; implementations must honour the context deadline.
type DeviceHandle interface {
	// Update fetches the current status from the device.
	Update(ctx context.Context) error

	// Status returns the status cached by the last Update.
	Status() Status

	// EnergyRealtime fetches a fresh meter reading. Devices without a meter
	// return ErrTelemetryUnsupported.
	EnergyRealtime(ctx context.Context) (EnergyReading, error)

	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
}

// PlugHandle is a single controllable outlet, standalone or on a strip.
type PlugHandle interface {
	DeviceHandle
}

// StripHandle is a multi-outlet power strip.
type StripHandle interface {
	DeviceHandle

	// Children returns the outlet handles. Their cached status is refreshed
	// by the strip's own Update.
	Children() []PlugHandle
}

// Dialer opens device handles from configured network addresses.
type Dialer interface {
	DialPlug(ctx context.Context, address string) (PlugHandle, error)
	DialStrip(ctx context.Context, address string) (StripHandle, error)
}
