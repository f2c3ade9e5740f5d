package tplink

import (
	"testing"
	"time"
)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"AA:BB:CC:DD:EE:FF", "AABBCCDDEEFF"},
		{"AABBCCDDEEFF", "AABBCCDDEEFF"},
		{"AA:BB_1", "AABB_1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeID(tt.raw); got != tt.want {
			t.Errorf("NormalizeID(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"AA:BB_1", "1"},
		{"AABB_AABB01", "AABB01"},
		{"AABBCC", "AABBCC"},
		{"AABB_1_2", "1_2"},
		{"AABB_1_3", "1_3"},
		{"AABB_", ""},
	}
	for _, tt := range tests {
		if got := ShortID(tt.raw); got != tt.want {
			t.Errorf("ShortID(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestEnergyFromReading(t *testing.T) {
	tests := []struct {
		name string
		in   EnergyReading
		want Energy
	}{
		{
			name: "unit conversion",
			in:   EnergyReading{VoltageMV: 230500, CurrentMA: 150, PowerMW: 34500, TotalWh: 1200},
			want: Energy{VoltageV: 230.5, CurrentA: 0.15, PowerW: 34.5, TotalWh: 1200},
		},
		{
			name: "zero",
			in:   EnergyReading{},
			want: Energy{},
		},
		{
			name: "negative values clamp to zero",
			in:   EnergyReading{VoltageMV: -1, CurrentMA: -20, PowerMW: -300, TotalWh: -4},
			want: Energy{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := energyFromReading(tt.in)
			if got != tt.want {
				t.Errorf("energyFromReading() = %+v, want %+v", got, tt.want)
			}
			if got.VoltageV < 0 || got.CurrentA < 0 || got.PowerW < 0 || got.TotalWh < 0 {
				t.Errorf("energy must be non-negative: %+v", got)
			}
		})
	}
}

func TestPlugRecordClone(t *testing.T) {
	parent := "STRIP"
	since := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	orig := PlugRecord{
		ID:         "1",
		ParentID:   &parent,
		PowerState: PowerOn,
		OnSince:    &since,
		Energy:     &Energy{PowerW: 10},
		HWInfo:     map[string]string{"hw_ver": "1.0"},
	}

	c := orig.Clone()
	*c.ParentID = "OTHER"
	*c.OnSince = since.Add(time.Hour)
	c.Energy.PowerW = 99
	c.HWInfo["hw_ver"] = "9.9"

	if *orig.ParentID != "STRIP" || !orig.OnSince.Equal(since) || orig.Energy.PowerW != 10 || orig.HWInfo["hw_ver"] != "1.0" {
		t.Errorf("Clone() shares state with the original: %+v", orig)
	}
}

func TestStripRecordClone(t *testing.T) {
	orig := StripRecord{ID: "S", Children: []string{"1", "2"}}
	c := orig.Clone()
	c.Children[0] = "X"
	if orig.Children[0] != "1" {
		t.Error("Clone() shares Children with the original")
	}
}
