package tplink

import (
	"context"
	"testing"
)

func TestClassifyEnergyMode(t *testing.T) {
	tests := []struct {
		on    bool
		watts float64
		want  EnergyMode
	}{
		{false, 100, EnergyModeOff},
		{true, 0, EnergyModeStandby},
		{true, 2.9, EnergyModeStandby},
		{true, 3, EnergyModeLow},
		{true, 9.9, EnergyModeLow},
		{true, 10, EnergyModeMedium},
		{true, 50.9, EnergyModeMedium},
		{true, 51, EnergyModeHigh},
		{true, 100, EnergyModeHigh},
	}
	for _, tt := range tests {
		if got := ClassifyEnergyMode(tt.on, tt.watts); got != tt.want {
			t.Errorf("ClassifyEnergyMode(%v, %v) = %q, want %q", tt.on, tt.watts, got, tt.want)
		}
	}
}

type recordingCommander struct {
	calls []string
}

func (c *recordingCommander) TurnOn(_ context.Context, id, token string) (Ack, error) {
	c.calls = append(c.calls, "on:"+id+":"+token)
	return Ack{CorrelationToken: token, DeviceID: id, PowerState: PowerOn}, nil
}

func (c *recordingCommander) TurnOff(_ context.Context, id, token string) (Ack, error) {
	c.calls = append(c.calls, "off:"+id+":"+token)
	return Ack{CorrelationToken: token, DeviceID: id, PowerState: PowerOff}, nil
}

func TestSmartPlugReadsLiveRecord(t *testing.T) {
	d := NewDataset()
	cmd := &recordingCommander{}
	m := NewMaterializer(d, cmd, newFakeEndpointStore(), nil, nil)
	view := m.SmartPlug("1")

	if view.PowerState() != PowerControllerOff || view.EnergyMode() != EnergyModeOff {
		t.Errorf("missing record = %s/%s, want OFF/Off", view.PowerState(), view.EnergyMode())
	}

	rec := plugRecord("1", true)
	rec.Energy = &Energy{VoltageV: 230, CurrentA: 0.2, PowerW: 45, TotalWh: 12}
	_ = d.IngestReplace(CollectionPlug, "1", rec)

	if view.PowerState() != PowerControllerOn {
		t.Errorf("PowerState() = %q, want ON", view.PowerState())
	}
	if view.EnergyMode() != EnergyModeMedium {
		t.Errorf("EnergyMode() = %q, want Medium", view.EnergyMode())
	}
	if view.EnergySensor().PowerW != 45 {
		t.Errorf("EnergySensor() = %+v", view.EnergySensor())
	}

	rec.Energy = nil
	_ = d.IngestReplace(CollectionPlug, "1", rec)
	if view.EnergyMode() != EnergyModeOff {
		t.Errorf("EnergyMode() without telemetry = %q, want Off", view.EnergyMode())
	}

	props := view.Properties()
	for _, iface := range []string{"PowerController", "EnergyModeController", "EnergySensor", "EndpointHealth"} {
		if _, ok := props[iface]; !ok {
			t.Errorf("Properties() missing %s", iface)
		}
	}
	if props["EndpointHealth"].(map[string]any)["connectivity"] != ConnectivityOK {
		t.Error("connectivity should be OK")
	}

	if _, err := view.TurnOff(context.Background(), "t1"); err != nil {
		t.Fatalf("TurnOff() error = %v", err)
	}
	if len(cmd.calls) != 1 || cmd.calls[0] != "off:1:t1" {
		t.Errorf("commander calls = %v", cmd.calls)
	}
}
