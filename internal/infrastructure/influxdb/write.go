package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementEnergy     = "energy"
	MeasurementPowerState = "power_state"
)

const whPerKWh = 1000

// EnergySample is one telemetry reading from a plug.
type EnergySample struct {
	DeviceID string

	// ParentID is the owning strip for outlets, empty for standalone plugs.
	ParentID string

	PowerWatts float64
	VoltageV   float64
	CurrentA   float64
	TotalWh    float64

	// Time defaults to now when zero.
	Time time.Time
}

// WriteEnergySample writes a plug's energy reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteEnergySample(s EnergySample) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id": s.DeviceID,
		"protocol":  "tplink",
	}
	if s.ParentID != "" {
		tags["parent_id"] = s.ParentID
	}

	fields := map[string]interface{}{
		"power_watts": s.PowerWatts,
		"voltage_v":   s.VoltageV,
		"current_a":   s.CurrentA,
	}
	// Zero total means the device has not reported a meter total yet.
	if s.TotalWh > 0 {
		fields["energy_kwh"] = s.TotalWh / whPerKWh
	}

	c.writer.WritePoint(write.NewPoint(MeasurementEnergy, tags, fields, c.timestamp(s.Time)))
}

// WritePowerState records an on/off transition.
func (c *Client) WritePowerState(deviceID string, on bool, source string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementPowerState,
		map[string]string{
			"device_id": deviceID,
			"protocol":  "tplink",
			"source":    source,
		},
		map[string]interface{}{
			"on": on,
		},
		c.timestamp(time.Time{}),
	)

	c.writer.WritePoint(point)
}

func (c *Client) timestamp(t time.Time) time.Time {
	if !t.IsZero() {
		return t
	}
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
