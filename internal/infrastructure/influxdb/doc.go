// Package influxdb records TP-Link energy telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library: connection with a
// ping check, the non-blocking batched write API, and health monitoring.
//
// Measurements written:
//   - energy: power_watts, energy_kwh, voltage_v, current_a per plug
//   - power_state: on (bool) per plug, written on transitions
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteEnergySample(influxdb.EnergySample{DeviceID: "AABB01", PowerWatts: 12.5})
//
// Writes are asynchronous. Failures are delivered to the SetOnError callback.
package influxdb
