package endpoint

import "time"

// Category classifies an endpoint for the consumer's device picker.
type Category string

// Supported categories.
const (
	CategorySmartPlug Category = "SMARTPLUG"
	CategoryOther     Category = "OTHER"
)

// Capability names an interface an endpoint supports.
type Capability string

// Capabilities every TP-Link outlet endpoint exposes.
const (
	CapabilityPowerController      Capability = "PowerController"
	CapabilityEnergyModeController Capability = "EnergyModeController"
	CapabilityEnergySensor         Capability = "EnergySensor"
	CapabilityEndpointHealth       Capability = "EndpointHealth"
)

// OutletCapabilities is the capability set of a plug or strip outlet.
func OutletCapabilities() []Capability {
	return []Capability{
		CapabilityPowerController,
		CapabilityEnergyModeController,
		CapabilityEnergySensor,
		CapabilityEndpointHealth,
	}
}

// Endpoint is a materialized, consumer-facing device.
type Endpoint struct {
	// ID is "tplink:<type>:<device id>".
	ID string `json:"id"`

	// Path is "tplink/<type>/<device id>".
	Path string `json:"path"`

	DeviceID string  `json:"device_id"`
	ParentID *string `json:"parent_id,omitempty"`

	Name         string       `json:"name"`
	Category     Category     `json:"category"`
	Capabilities []Capability `json:"capabilities"`

	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of the endpoint.
func (e *Endpoint) DeepCopy() *Endpoint {
	if e == nil {
		return nil
	}

	cpy := *e
	if e.ParentID != nil {
		parent := *e.ParentID
		cpy.ParentID = &parent
	}
	if e.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(e.Capabilities))
		copy(cpy.Capabilities, e.Capabilities)
	}
	return &cpy
}

