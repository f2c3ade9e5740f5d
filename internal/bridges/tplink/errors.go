package tplink

import (
	"errors"
	"fmt"
)

// Domain errors for the TP-Link bridge package.
var (
	// ErrDeviceCommunication is returned when a single device call times out
	// or fails at the protocol level. It is contained per device.
	ErrDeviceCommunication = errors.New("tplink: device communication failed")

	// ErrDeviceNotFound is returned when a device id has no registered handle
	// or no dataset record.
	ErrDeviceNotFound = errors.New("tplink: device not found")

	// ErrRegistration is returned when a configured device cannot be
	// registered at startup. The device is excluded from polling.
	ErrRegistration = errors.New("tplink: device registration failed")

	// ErrLoopFatal is returned when the poll loop's own control logic fails.
	// The loop stops permanently and a supervisor may restart it.
	ErrLoopFatal = errors.New("tplink: poll loop failed")

	// ErrCommandFailed is returned when an on/off command cannot be executed.
	ErrCommandFailed = errors.New("tplink: command failed")

	// ErrTelemetryUnsupported is returned by drivers for devices without an
	// energy meter.
	ErrTelemetryUnsupported = errors.New("tplink: energy telemetry not supported")

	// ErrInvalidRecord is returned when a record does not match its collection.
	ErrInvalidRecord = errors.New("tplink: invalid record")

	// ErrUnknownCollection is returned for a collection other than strip or plug.
	ErrUnknownCollection = errors.New("tplink: unknown collection")

	// ErrInvalidPath is returned when a device path is not tplink/<type>/<id>.
	ErrInvalidPath = errors.New("tplink: invalid device path")
)

// ReadError describes a failed device read.
// It wraps ErrDeviceCommunication so callers can test with errors.Is.
type ReadError struct {
	DeviceID string
	Op       string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("tplink: %s %s: %v", e.Op, e.DeviceID, e.Err)
}

// Unwrap exposes both the communication sentinel and the underlying cause.
func (e *ReadError) Unwrap() []error {
	return []error{ErrDeviceCommunication, e.Err}
}
