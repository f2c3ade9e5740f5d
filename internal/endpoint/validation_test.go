package endpoint

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *Endpoint)
		wantErr bool
	}{
		{"valid", func(*Endpoint) {}, false},
		{"other category", func(e *Endpoint) { e.Category = CategoryOther }, false},
		{"missing id", func(e *Endpoint) { e.ID = "" }, true},
		{"missing path", func(e *Endpoint) { e.Path = "" }, true},
		{"missing device id", func(e *Endpoint) { e.DeviceID = "" }, true},
		{"blank name", func(e *Endpoint) { e.Name = "   " }, true},
		{"long name", func(e *Endpoint) { e.Name = strings.Repeat("x", maxNameLength+1) }, true},
		{"unknown category", func(e *Endpoint) { e.Category = "LIGHT" }, true},
		{"unknown capability", func(e *Endpoint) { e.Capabilities = append(e.Capabilities, "ColorController") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := testEndpoint("P1")
			tt.mutate(ep)
			err := ValidateEndpoint(ep)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEndpoint() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEndpoint) {
				t.Errorf("ValidateEndpoint() error = %v, want ErrInvalidEndpoint", err)
			}
		})
	}

	if err := ValidateEndpoint(nil); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("ValidateEndpoint(nil) error = %v, want ErrInvalidEndpoint", err)
	}
}

func TestEndpoint_DeepCopy(t *testing.T) {
	parent := "STRIP"
	ep := testEndpoint("P1")
	ep.ParentID = &parent

	cpy := ep.DeepCopy()
	*cpy.ParentID = "OTHER"
	cpy.Capabilities[0] = CapabilityEndpointHealth

	if *ep.ParentID != "STRIP" {
		t.Error("DeepCopy shares ParentID")
	}
	if ep.Capabilities[0] != CapabilityPowerController {
		t.Error("DeepCopy shares Capabilities")
	}
	if (*Endpoint)(nil).DeepCopy() != nil {
		t.Error("DeepCopy of nil is not nil")
	}
}
