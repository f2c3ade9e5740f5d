package tplink

import "context"

// EnergyMode is the coarse energy level reported by EnergyModeController.
type EnergyMode string

const (
	EnergyModeOff     EnergyMode = "Off"
	EnergyModeStandby EnergyMode = "Standby"
	EnergyModeLow     EnergyMode = "Low"
	EnergyModeMedium  EnergyMode = "Medium"
	EnergyModeHigh    EnergyMode = "High"
)

// Energy tier upper bounds in watts.
const (
	standbyBelowW = 3
	lowBelowW     = 10
	mediumBelowW  = 51
)

// ClassifyEnergyMode maps relay state and power draw to an energy tier.
func ClassifyEnergyMode(on bool, watts float64) EnergyMode {
	switch {
	case !on:
		return EnergyModeOff
	case watts < standbyBelowW:
		return EnergyModeStandby
	case watts < lowBelowW:
		return EnergyModeLow
	case watts < mediumBelowW:
		return EnergyModeMedium
	default:
		return EnergyModeHigh
	}
}

// Connectivity value reported by EndpointHealth. Offline detection is not
// modelled, so every endpoint reports OK.
const ConnectivityOK = "OK"

// Power controller values.
const (
	PowerControllerOn  = "ON"
	PowerControllerOff = "OFF"
)

// Commander executes on/off commands.
type Commander interface {
	TurnOn(ctx context.Context, deviceID, token string) (Ack, error)
	TurnOff(ctx context.Context, deviceID, token string) (Ack, error)
}

// SmartPlug is the consumer-facing view of one materialized outlet. Every
// property is computed from the current dataset record on each call.
type SmartPlug struct {
	EndpointID string
	DeviceID   string

	dataset   *Dataset
	commander Commander
}

func (s *SmartPlug) record() (PlugRecord, bool) {
	return s.dataset.Plug(s.DeviceID)
}

// PowerState returns "ON" or "OFF". A missing record reads as OFF.
func (s *SmartPlug) PowerState() string {
	rec, ok := s.record()
	if ok && rec.IsOn() {
		return PowerControllerOn
	}
	return PowerControllerOff
}

// TurnOn switches the outlet on through the dispatcher.
func (s *SmartPlug) TurnOn(ctx context.Context, token string) (Ack, error) {
	return s.commander.TurnOn(ctx, s.DeviceID, token)
}

// TurnOff switches the outlet off through the dispatcher.
func (s *SmartPlug) TurnOff(ctx context.Context, token string) (Ack, error) {
	return s.commander.TurnOff(ctx, s.DeviceID, token)
}

// EnergyMode returns the outlet's energy tier. An outlet without telemetry
// reads as Off.
func (s *SmartPlug) EnergyMode() EnergyMode {
	rec, ok := s.record()
	if !ok || rec.Energy == nil {
		return EnergyModeOff
	}
	return ClassifyEnergyMode(rec.IsOn(), rec.Energy.PowerW)
}

// EnergySensor returns the latest converted telemetry, zero when absent.
func (s *SmartPlug) EnergySensor() Energy {
	rec, ok := s.record()
	if !ok || rec.Energy == nil {
		return Energy{}
	}
	return *rec.Energy
}

// Connectivity returns the EndpointHealth connectivity value.
func (s *SmartPlug) Connectivity() string {
	return ConnectivityOK
}

// Properties returns every capability property keyed by interface name.
func (s *SmartPlug) Properties() map[string]any {
	e := s.EnergySensor()
	return map[string]any{
		"PowerController":      map[string]any{"powerState": s.PowerState()},
		"EnergyModeController": map[string]any{"mode": string(s.EnergyMode())},
		"EnergySensor": map[string]any{
			"voltage": e.VoltageV,
			"current": e.CurrentA,
			"power":   e.PowerW,
			"total":   e.TotalWh,
		},
		"EndpointHealth": map[string]any{"connectivity": s.Connectivity()},
	}
}
