package endpoint

import (
	"fmt"
	"strings"
)

const maxNameLength = 100

// ValidateEndpoint checks required fields and known enum values.
func ValidateEndpoint(e *Endpoint) error {
	if e == nil {
		return fmt.Errorf("%w: endpoint is nil", ErrInvalidEndpoint)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEndpoint)
	}
	if e.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidEndpoint)
	}
	if e.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidEndpoint)
	}

	name := strings.TrimSpace(e.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEndpoint)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidEndpoint, maxNameLength)
	}

	switch e.Category {
	case CategorySmartPlug, CategoryOther:
	default:
		return fmt.Errorf("%w: unknown category %q", ErrInvalidEndpoint, e.Category)
	}

	for _, c := range e.Capabilities {
		switch c {
		case CapabilityPowerController, CapabilityEnergyModeController,
			CapabilityEnergySensor, CapabilityEndpointHealth:
		default:
			return fmt.Errorf("%w: unknown capability %q", ErrInvalidEndpoint, c)
		}
	}

	return nil
}
