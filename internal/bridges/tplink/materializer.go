package tplink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-tplink/internal/endpoint"
)

// DeviceTypePlug is the only device type that materializes into an endpoint.
const DeviceTypePlug = "plug"

// Manufacturer recorded on materialized endpoints.
const Manufacturer = "TP-Link"

// EndpointStore persists materialized endpoints.
// Satisfied by *endpoint.Registry.
type EndpointStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	CreateIfNotExists(ctx context.Context, e *endpoint.Endpoint) (bool, error)
}

// Materializer turns dataset plug records into consumer endpoints, at most
// once per device.
type Materializer struct {
	dataset   *Dataset
	commander Commander
	store     EndpointStore
	typeOther map[string]struct{}
	logger    Logger

	mu    sync.Mutex
	views map[string]*SmartPlug
}

// NewMaterializer creates a materializer. Device ids in typeOther are
// categorised OTHER instead of SMARTPLUG.
func NewMaterializer(dataset *Dataset, commander Commander, store EndpointStore, typeOther []string, logger Logger) *Materializer {
	other := make(map[string]struct{}, len(typeOther))
	for _, id := range typeOther {
		other[id] = struct{}{}
	}
	return &Materializer{
		dataset:   dataset,
		commander: commander,
		store:     store,
		typeOther: other,
		logger:    loggerOrNoop(logger),
		views:     make(map[string]*SmartPlug),
	}
}

// DevicePath returns the device path "tplink/<type>/<id>".
func DevicePath(deviceType, deviceID string) string {
	return Protocol + "/" + deviceType + "/" + deviceID
}

// EndpointID returns the stable endpoint id "tplink:<type>:<id>".
func EndpointID(deviceType, deviceID string) string {
	return Protocol + ":" + deviceType + ":" + deviceID
}

// ParseDevicePath splits "tplink/<type>/<id>".
func ParseDevicePath(path string) (deviceType, deviceID string, err error) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[0] != Protocol || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return parts[1], parts[2], nil
}

// AddSmartDevice materializes the device at path. It returns true only
// when a new endpoint was created; an existing endpoint or a non-plug type
// returns false with no error.
func (m *Materializer) AddSmartDevice(ctx context.Context, path string) (bool, error) {
	deviceType, deviceID, err := ParseDevicePath(path)
	if err != nil {
		return false, err
	}
	endpointID := EndpointID(deviceType, deviceID)

	exists, err := m.store.Exists(ctx, endpointID)
	if err != nil {
		return false, fmt.Errorf("checking endpoint %s: %w", endpointID, err)
	}
	if exists || deviceType != DeviceTypePlug {
		return false, nil
	}

	rec, ok := m.dataset.Plug(deviceID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	category := m.Category(deviceID)
	ep := &endpoint.Endpoint{
		ID:           endpointID,
		Path:         path,
		DeviceID:     deviceID,
		ParentID:     rec.ParentID,
		Name:         rec.Name + " outlet",
		Category:     category,
		Capabilities: endpoint.OutletCapabilities(),
		Manufacturer: Manufacturer,
		Model:        rec.Model,
	}

	created, err := m.store.CreateIfNotExists(ctx, ep)
	if err != nil {
		return false, fmt.Errorf("creating endpoint %s: %w", endpointID, err)
	}
	if created {
		m.logger.Info("endpoint materialized", "endpoint_id", endpointID, "category", category)
	}
	return created, nil
}

// Category returns the endpoint category for a device id.
func (m *Materializer) Category(deviceID string) endpoint.Category {
	if _, other := m.typeOther[deviceID]; other {
		return endpoint.CategoryOther
	}
	return endpoint.CategorySmartPlug
}

// SmartPlug returns the live view for a plug, creating it on first use.
// Views exist for any device id; properties read from the dataset.
func (m *Materializer) SmartPlug(deviceID string) *SmartPlug {
	endpointID := EndpointID(DeviceTypePlug, deviceID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.views[endpointID]; ok {
		return v
	}
	v := &SmartPlug{
		EndpointID: endpointID,
		DeviceID:   deviceID,
		dataset:    m.dataset,
		commander:  m.commander,
	}
	m.views[endpointID] = v
	return v
}
