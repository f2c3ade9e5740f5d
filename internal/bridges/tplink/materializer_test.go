package tplink

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-tplink/internal/endpoint"
)

// fakeEndpointStore implements EndpointStore in memory.
type fakeEndpointStore struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint.Endpoint
	creates   int
	err       error
}

func newFakeEndpointStore() *fakeEndpointStore {
	return &fakeEndpointStore{endpoints: make(map[string]*endpoint.Endpoint)}
}

func (s *fakeEndpointStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.endpoints[id]
	return ok, nil
}

func (s *fakeEndpointStore) CreateIfNotExists(_ context.Context, e *endpoint.Endpoint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.endpoints[e.ID]; ok {
		return false, nil
	}
	s.creates++
	s.endpoints[e.ID] = e.DeepCopy()
	return true, nil
}

func (s *fakeEndpointStore) get(id string) *endpoint.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoints[id]
}

func TestParseDevicePath(t *testing.T) {
	tests := []struct {
		path     string
		wantType string
		wantID   string
		wantErr  bool
	}{
		{path: "tplink/plug/1", wantType: "plug", wantID: "1"},
		{path: "tplink/strip/AABB", wantType: "strip", wantID: "AABB"},
		{path: "knx/plug/1", wantErr: true},
		{path: "tplink/plug", wantErr: true},
		{path: "tplink/plug/", wantErr: true},
		{path: "tplink/plug/1/extra", wantErr: true},
		{path: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			typ, id, err := ParseDevicePath(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPath) {
					t.Errorf("error = %v, want ErrInvalidPath", err)
				}
				return
			}
			if err != nil || typ != tt.wantType || id != tt.wantID {
				t.Errorf("ParseDevicePath() = %q, %q, %v", typ, id, err)
			}
		})
	}

	if got := DevicePath(DeviceTypePlug, "1"); got != "tplink/plug/1" {
		t.Errorf("DevicePath() = %q", got)
	}
	if got := EndpointID(DeviceTypePlug, "1"); got != "tplink:plug:1" {
		t.Errorf("EndpointID() = %q", got)
	}
}

func TestAddSmartDeviceIsIdempotent(t *testing.T) {
	d := NewDataset()
	parent := "AABB"
	rec := plugRecord("1", true)
	rec.Name = "Kettle"
	rec.Model = "HS300"
	rec.ParentID = &parent
	_ = d.IngestReplace(CollectionPlug, "1", rec)

	store := newFakeEndpointStore()
	m := NewMaterializer(d, &recordingCommander{}, store, nil, nil)

	created, err := m.AddSmartDevice(context.Background(), "tplink/plug/1")
	if err != nil || !created {
		t.Fatalf("AddSmartDevice() = %v, %v; want true, nil", created, err)
	}
	created, err = m.AddSmartDevice(context.Background(), "tplink/plug/1")
	if err != nil || created {
		t.Errorf("second AddSmartDevice() = %v, %v; want false, nil", created, err)
	}
	if store.creates != 1 {
		t.Errorf("creates = %d, want 1", store.creates)
	}

	ep := store.get("tplink:plug:1")
	if ep == nil {
		t.Fatal("endpoint not stored")
	}
	if ep.Name != "Kettle outlet" || ep.Category != endpoint.CategorySmartPlug {
		t.Errorf("endpoint = %+v", ep)
	}
	if ep.Manufacturer != Manufacturer || ep.Model != "HS300" || ep.Path != "tplink/plug/1" {
		t.Errorf("endpoint metadata = %+v", ep)
	}
	if ep.ParentID == nil || *ep.ParentID != "AABB" {
		t.Errorf("ParentID = %v, want AABB", ep.ParentID)
	}
	for _, c := range endpoint.OutletCapabilities() {
		if !slices.Contains(ep.Capabilities, c) {
			t.Errorf("endpoint missing capability %s", c)
		}
	}
}

func TestAddSmartDeviceCases(t *testing.T) {
	d := NewDataset()
	_ = d.IngestReplace(CollectionPlug, "1", plugRecord("1", false))
	_ = d.IngestReplace(CollectionPlug, "2", plugRecord("2", false))

	tests := []struct {
		name        string
		path        string
		storeErr    error
		wantCreated bool
		wantErr     error
	}{
		{name: "non-plug type", path: "tplink/strip/1"},
		{name: "invalid path", path: "tplink/1", wantErr: ErrInvalidPath},
		{name: "missing record", path: "tplink/plug/99", wantErr: ErrDeviceNotFound},
		{name: "store failure", path: "tplink/plug/1", storeErr: errors.New("db locked")},
		{name: "other category", path: "tplink/plug/2", wantCreated: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeEndpointStore()
			store.err = tt.storeErr
			m := NewMaterializer(d, &recordingCommander{}, store, []string{"2"}, nil)

			created, err := m.AddSmartDevice(context.Background(), tt.path)
			if created != tt.wantCreated {
				t.Errorf("created = %v, want %v", created, tt.wantCreated)
			}
			switch {
			case tt.storeErr != nil:
				if !errors.Is(err, tt.storeErr) {
					t.Errorf("error = %v, want store error", err)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case err != nil:
				t.Errorf("unexpected error = %v", err)
			}

			if tt.wantCreated {
				if ep := store.get("tplink:plug:2"); ep == nil || ep.Category != endpoint.CategoryOther {
					t.Errorf("endpoint = %+v, want OTHER category", ep)
				}
			}
		})
	}
}

func TestSmartPlugViewIsCached(t *testing.T) {
	m := NewMaterializer(NewDataset(), &recordingCommander{}, newFakeEndpointStore(), nil, nil)
	a := m.SmartPlug("1")
	if a != m.SmartPlug("1") {
		t.Error("SmartPlug() should return the same view for a device")
	}
	if a.EndpointID != "tplink:plug:1" {
		t.Errorf("EndpointID = %q", a.EndpointID)
	}
}
