package tplink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-tplink/internal/supervisor"
)

// MQTT message types exchanged between Gray Logic Core and the TP-Link bridge.

// Commands accepted on the command topic.
const (
	CommandOn  = "on"
	CommandOff = "off"
)

// Request actions accepted on the request topic.
const (
	ActionReadState   = "read_state"
	ActionReadAll     = "read_all"
	ActionReadHistory = "read_history"
)

// CommandMessage is sent from Core to the bridge to switch an outlet.
// Topic: graylogic/command/tplink/{device_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the plug's short id. Empty means the topic's last segment.
	DeviceID string `json:"device_id"`

	// Command is "on" or "off".
	Command string `json:"command"`

	// Source indicates where the command originated ("api", "automation", ...).
	Source string `json:"source,omitempty"`
}

// MarshalJSON writes the timestamp as RFC3339 UTC.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON accepts an absent timestamp.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}

	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
	AckTimeout  AckStatus = "timeout"
)

// Error codes for failed commands and requests.
const (
	ErrCodeDeviceNotFound    = "DEVICE_NOT_FOUND"
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/tplink/{device_id}
type AckMessage struct {
	MessageID string    `json:"message_id"`
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	// PowerState is the reconciled relay state after an accepted command.
	PowerState PowerState `json:"power_state,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError describes a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage builds the acknowledgement of an accepted command.
func NewAckMessage(ack Ack) AckMessage {
	return AckMessage{
		MessageID:  uuid.NewString(),
		CommandID:  ack.CorrelationToken,
		Timestamp:  time.Now().UTC(),
		DeviceID:   ack.DeviceID,
		Status:     AckAccepted,
		Protocol:   Protocol,
		PowerState: ack.PowerState,
	}
}

// NewAckError builds the acknowledgement of a failed command.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	return AckMessage{
		MessageID: uuid.NewString(),
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  Protocol,
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// StateMessage carries the full last-known state of one plug or strip.
// Topic: graylogic/state/tplink/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID   string         `json:"device_id"`
	Collection Collection     `json:"collection"`
	Timestamp  time.Time      `json:"timestamp"`
	State      map[string]any `json:"state"`
	Protocol   string         `json:"protocol"`
}

// NewPlugStateMessage builds the state message for a plug record.
func NewPlugStateMessage(rec PlugRecord) StateMessage {
	state := map[string]any{
		"on":          rec.IsOn(),
		"power_state": string(rec.PowerState),
		"alias":       rec.Name,
		"led":         rec.LEDEnabled,
		"model":       rec.Model,
		"energy_mode": string(EnergyModeOff),
	}
	if rec.ParentID != nil {
		state["parent_id"] = *rec.ParentID
	}
	if rec.OnSince != nil {
		state["on_since"] = rec.OnSince.UTC().Format(time.RFC3339)
	}
	if rec.Energy != nil {
		state["voltage_v"] = rec.Energy.VoltageV
		state["current_a"] = rec.Energy.CurrentA
		state["power_w"] = rec.Energy.PowerW
		state["total_wh"] = rec.Energy.TotalWh
		state["energy_mode"] = string(ClassifyEnergyMode(rec.IsOn(), rec.Energy.PowerW))
	}

	return StateMessage{
		DeviceID:   rec.ID,
		Collection: CollectionPlug,
		Timestamp:  rec.UpdatedAt.UTC(),
		State:      state,
		Protocol:   Protocol,
	}
}

// NewStripStateMessage builds the state message for a strip record.
func NewStripStateMessage(rec StripRecord) StateMessage {
	children := append([]string{}, rec.Children...)
	return StateMessage{
		DeviceID:   rec.ID,
		Collection: CollectionStrip,
		Timestamp:  rec.UpdatedAt.UTC(),
		State: map[string]any{
			"on":          rec.PowerState == PowerOn,
			"power_state": string(rec.PowerState),
			"alias":       rec.Name,
			"led":         rec.LEDEnabled,
			"model":       rec.Model,
			"mac":         rec.MAC,
			"children":    children,
		},
		Protocol: Protocol,
	}
}

// HealthStatus is the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/tplink
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	Poller *PollerStatus `json:"poller,omitempty"`

	// PollLoop reports the supervisor running the poll loop.
	PollLoop *supervisor.Stats `json:"poll_loop,omitempty"`

	StripsManaged  int `json:"strips_managed"`
	DevicesManaged int `json:"devices_managed"`

	// StaleDevices lists records older than the configured threshold.
	StaleDevices []string `json:"stale_devices,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// PollerStatus describes the poll loop in health messages.
type PollerStatus struct {
	State    PollerState `json:"state"`
	Passes   uint64      `json:"passes"`
	LastPass *time.Time  `json:"last_pass,omitempty"`
}

// RequestMessage is sent from Core for request/response operations.
// Topic: graylogic/request/tplink/{request_id}
type RequestMessage struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Action is "read_state", "read_all" or "read_history".
	Action string `json:"action"`

	// DeviceID is required for read_state and read_history.
	DeviceID string `json:"device_id,omitempty"`

	// Limit caps read_history entries. Zero uses the store's default.
	Limit int `json:"limit,omitempty"`
}

// ResponseMessage answers a request.
// Topic: graylogic/response/tplink/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed request.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DiscoveryMessage announces newly materialized endpoints.
// Topic: graylogic/discovery/tplink
type DiscoveryMessage struct {
	MessageID string             `json:"message_id"`
	Timestamp time.Time          `json:"timestamp"`
	Bridge    string             `json:"bridge"`
	Devices   []DiscoveredDevice `json:"devices"`
}

// DiscoveredDevice is one endpoint in a discovery message.
type DiscoveredDevice struct {
	EndpointID    string   `json:"endpoint_id"`
	DeviceID      string   `json:"device_id"`
	ParentID      string   `json:"parent_id,omitempty"`
	Protocol      string   `json:"protocol"`
	Type          string   `json:"type"`
	Category      string   `json:"category"`
	Capabilities  []string `json:"capabilities"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	Model         string   `json:"model,omitempty"`
	SuggestedName string   `json:"suggested_name,omitempty"`
}
