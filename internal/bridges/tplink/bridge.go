package tplink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-tplink/internal/endpoint"
	"github.com/nerrad567/gray-logic-tplink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tplink/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tplink/internal/infrastructure/mqtt"
)

const (
	// minTopicParts is graylogic/{category}/tplink/{id}.
	minTopicParts = 4

	// readAllTimeout bounds a read_all request's reconciliation pass.
	readAllTimeout = 30 * time.Second
)

var errUnknownCommand = errors.New("unknown command")

// MQTTClient is the subset of the MQTT client used by the bridge.
// Satisfied by *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// StateRecorder stores and reads back power-state snapshots.
// Satisfied by *endpoint.SQLiteStateHistoryRepository.
type StateRecorder interface {
	RecordStateChange(ctx context.Context, deviceID string, state endpoint.State, source string) error
	GetHistory(ctx context.Context, deviceID string, limit int) ([]endpoint.StateHistoryEntry, error)
}

// EnergyMetrics writes telemetry to a time-series store.
// Satisfied by *influxdb.Client.
type EnergyMetrics interface {
	WriteEnergySample(s influxdb.EnergySample)
	WritePowerState(deviceID string, on bool, source string)
}

// BridgeOptions holds the dependencies of a Bridge.
type BridgeOptions struct {
	Config     *config.Config
	Dialer     Dialer
	MQTTClient MQTTClient
	Endpoints  EndpointStore

	// History is optional. When set, power-state changes are recorded.
	History StateRecorder

	// Metrics is optional. When set, telemetry is written on every ingest.
	Metrics EnergyMetrics

	Version string
	Logger  Logger
}

// Bridge connects the TP-Link core components to the Gray Logic MQTT bus.
//
// Inbound: commands and requests. Outbound: retained state after every
// ingest, acknowledgements, responses, discovery and health.
type Bridge struct {
	cfg  *config.Config
	mqtt MQTTClient

	registry     *HandleRegistry
	dataset      *Dataset
	poller       *Poller
	dispatcher   *Dispatcher
	materializer *Materializer
	health       *HealthReporter

	history StateRecorder
	metrics EnergyMetrics

	// pendingCommands counts in-flight commands per device so ingests they
	// cause are attributed to the command.
	pendingMu       sync.Mutex
	pendingCommands map[string]int

	materializedMu sync.Mutex
	materialized   map[string]bool

	done      chan struct{}
	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge validates the options and builds the bridge components.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Dialer == nil {
		return nil, fmt.Errorf("device dialer is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Endpoints == nil {
		return nil, fmt.Errorf("endpoint store is required")
	}

	cfg := opts.Config
	logger := loggerOrNoop(opts.Logger)

	registry := NewHandleRegistry(opts.Dialer, cfg.GetDeviceTimeout(), logger)
	dataset := NewDataset()
	poller, err := NewPoller(PollerConfig{
		Registry:         registry,
		Reader:           NewReader(cfg.GetDeviceTimeout()),
		Dataset:          dataset,
		Interval:         cfg.GetPollInterval(),
		MaxParallelReads: cfg.TPLink.MaxParallelReads,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	dispatcher := NewDispatcher(registry, poller, dataset, cfg.GetCommandTimeout(), logger)

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:             cfg,
		mqtt:            opts.MQTTClient,
		registry:        registry,
		dataset:         dataset,
		poller:          poller,
		dispatcher:      dispatcher,
		materializer:    NewMaterializer(dataset, dispatcher, opts.Endpoints, cfg.TPLink.TypeOther, logger),
		history:         opts.History,
		metrics:         opts.Metrics,
		pendingCommands: make(map[string]int),
		materialized:    make(map[string]bool),
		done:            make(chan struct{}),
		ctx:             ctx,
		ctxCancel:       ctxCancel,
		logger:          logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:   cfg.Bridge.ID,
		Version:    opts.Version,
		Interval:   cfg.GetHealthInterval(),
		StaleAfter: cfg.GetStaleAfter(),
		Publisher:  opts.MQTTClient,
		Poller:     poller,
		Dataset:    dataset,
		Registry:   registry,
	})
	b.health.SetLogger(logger)

	dataset.SetOnIngest(b.handleIngest)

	return b, nil
}

// Poller returns the poll loop. Its Run method is driven by the caller,
// typically under a supervisor.
func (b *Bridge) Poller() *Poller { return b.poller }

// Dataset returns the bridge's dataset.
func (b *Bridge) Dataset() *Dataset { return b.dataset }

// Dispatcher returns the command dispatcher.
func (b *Bridge) Dispatcher() *Dispatcher { return b.dispatcher }

// Materializer returns the endpoint materializer.
func (b *Bridge) Materializer() *Materializer { return b.materializer }

// Start registers the configured devices, runs one reconciliation pass,
// and begins handling MQTT traffic. The poll loop is not started here.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	report := b.registry.RegisterAll(ctx, b.cfg.TPLink.PowerStrips, b.cfg.TPLink.Plugs)
	b.logInfo("devices registered",
		"strips", len(report.Strips),
		"plugs", len(report.Plugs),
		"failed", len(report.Failed))

	result, err := b.poller.Reconcile(ctx, ReconcileOptions{Refresh: true})
	if err != nil {
		return fmt.Errorf("initial reconciliation: %w", err)
	}
	b.logInfo("initial reconciliation complete",
		"strips", result.StripsRead,
		"plugs", result.PlugsRead,
		"failed", len(result.Failed))

	topics := mqtt.Topics{}

	commandTopic := topics.BridgeCommands(Protocol)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	requestTopic := topics.BridgeRequests(Protocol)
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed to requests", "topic", requestTopic)

	b.health.Start(ctx)

	b.logInfo("bridge started", "bridge_id", b.cfg.Bridge.ID)
	return nil
}

// Stop aborts in-flight commands and stops health reporting.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// handleMQTTMessage routes inbound messages by topic category.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		return fmt.Errorf("invalid topic format: %s", topic)
	}

	select {
	case <-b.done:
		return nil
	default:
	}

	b.wg.Add(1)
	defer b.wg.Done()

	switch parts[1] {
	case "command":
		b.handleCommand(parts[3], payload)
	case "request":
		b.handleRequest(payload)
	default:
		return fmt.Errorf("unknown message type: %s", parts[1])
	}
	return nil
}

func (b *Bridge) handleCommand(topicDeviceID string, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = topicDeviceID
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	var (
		ack Ack
		err error
	)

	b.markPending(cmd.DeviceID, 1)
	switch cmd.Command {
	case CommandOn:
		ack, err = b.dispatcher.TurnOn(b.ctx, cmd.DeviceID, cmd.ID)
	case CommandOff:
		ack, err = b.dispatcher.TurnOff(b.ctx, cmd.DeviceID, cmd.ID)
	default:
		err = fmt.Errorf("%w: %q", errUnknownCommand, cmd.Command)
	}
	b.markPending(cmd.DeviceID, -1)

	if err != nil {
		b.logError("command failed", err)
		b.publishAck(cmd.DeviceID, NewAckError(cmd, commandErrorCode(err), err.Error()))
		return
	}

	b.publishAck(cmd.DeviceID, NewAckMessage(ack))
}

// commandErrorCode maps a dispatch error to an ack error code.
func commandErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		return ErrCodeDeviceNotFound
	case IsCommandTimeout(err):
		return ErrCodeTimeout
	case errors.Is(err, ErrCommandFailed):
		return ErrCodeDeviceUnreachable
	case errors.Is(err, errUnknownCommand):
		return ErrCodeInvalidCommand
	default:
		return ErrCodeBridgeError
	}
}

func (b *Bridge) publishAck(deviceID string, ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := mqtt.Topics{}.BridgeAck(Protocol, deviceID)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

func (b *Bridge) markPending(deviceID string, delta int) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	n := b.pendingCommands[deviceID] + delta
	if n <= 0 {
		delete(b.pendingCommands, deviceID)
		return
	}
	b.pendingCommands[deviceID] = n
}

func (b *Bridge) changeSource(deviceID string) string {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	if b.pendingCommands[deviceID] > 0 {
		return endpoint.StateHistorySourceCommand
	}
	return endpoint.StateHistorySourcePoll
}

func (b *Bridge) handleRequest(payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse request", err)
		return
	}

	b.logInfo("received request",
		"request_id", req.RequestID,
		"action", req.Action)

	var resp ResponseMessage

	switch req.Action {
	case ActionReadState:
		resp = b.handleReadState(req)
	case ActionReadAll:
		resp = b.handleReadAll(req)
	case ActionReadHistory:
		resp = b.handleReadHistory(req)
	default:
		resp = errorResponse(req, ErrCodeInvalidRequest, fmt.Sprintf("unknown action: %s", req.Action))
	}

	respPayload, err := json.Marshal(resp)
	if err != nil {
		b.logError("failed to marshal response", err)
		return
	}

	respTopic := mqtt.Topics{}.BridgeResponse(Protocol, req.RequestID)
	if err := b.mqtt.Publish(respTopic, respPayload, 1, false); err != nil {
		b.logError("failed to publish response", err)
	}
}

// handleReadState answers with the dataset's current record for one device.
func (b *Bridge) handleReadState(req RequestMessage) ResponseMessage {
	if req.DeviceID == "" {
		return errorResponse(req, ErrCodeInvalidRequest, "device_id is required")
	}

	if rec, ok := b.dataset.Plug(req.DeviceID); ok {
		msg := NewPlugStateMessage(rec)
		return ResponseMessage{
			RequestID: req.RequestID,
			Timestamp: time.Now().UTC(),
			Success:   true,
			Data: map[string]any{
				"device_id":  rec.ID,
				"collection": string(CollectionPlug),
				"state":      msg.State,
				"endpoint":   b.materializer.SmartPlug(rec.ID).Properties(),
			},
		}
	}

	if rec, ok := b.dataset.Strip(req.DeviceID); ok {
		return ResponseMessage{
			RequestID: req.RequestID,
			Timestamp: time.Now().UTC(),
			Success:   true,
			Data: map[string]any{
				"device_id":  rec.ID,
				"collection": string(CollectionStrip),
				"state":      NewStripStateMessage(rec).State,
			},
		}
	}

	return errorResponse(req, ErrCodeDeviceNotFound, fmt.Sprintf("device %s not found", req.DeviceID))
}

// handleReadAll runs a refreshing reconciliation pass. State updates for
// every device follow on the state topics.
func (b *Bridge) handleReadAll(req RequestMessage) ResponseMessage {
	ctx, cancel := context.WithTimeout(b.ctx, readAllTimeout)
	defer cancel()

	result, err := b.poller.Reconcile(ctx, ReconcileOptions{Refresh: true})
	if err != nil {
		return errorResponse(req, ErrCodeBridgeError, err.Error())
	}

	failed := make([]string, 0, len(result.Failed))
	for id := range result.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"strips_read": result.StripsRead,
			"plugs_read":  result.PlugsRead,
			"failed":      failed,
		},
	}
}

// handleReadHistory answers with a device's recorded power-state changes,
// newest first.
func (b *Bridge) handleReadHistory(req RequestMessage) ResponseMessage {
	if req.DeviceID == "" {
		return errorResponse(req, ErrCodeInvalidRequest, "device_id is required")
	}
	if b.history == nil {
		return errorResponse(req, ErrCodeBridgeError, "state history is not enabled")
	}

	ctx, cancel := context.WithTimeout(b.ctx, readAllTimeout)
	defer cancel()

	entries, err := b.history.GetHistory(ctx, req.DeviceID, req.Limit)
	if err != nil {
		return errorResponse(req, ErrCodeBridgeError, err.Error())
	}

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"device_id": req.DeviceID,
			"entries":   entries,
		},
	}
}

func errorResponse(req RequestMessage, code, message string) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   false,
		Error: &ResponseError{
			Code:    code,
			Message: message,
		},
	}
}

// handleIngest publishes state and feeds history, metrics and
// materialization for every replaced record. It runs on the poller's read
// goroutines.
func (b *Bridge) handleIngest(c Change) {
	switch {
	case c.Strip != nil:
		b.publishState(c.ID, NewStripStateMessage(*c.Strip))
	case c.Plug != nil:
		rec := *c.Plug
		b.publishState(c.ID, NewPlugStateMessage(rec))
		b.writeMetrics(rec)
		if c.PowerChanged() {
			b.recordPowerChange(rec)
		}
		b.materialize(rec.ID)
	}
}

func (b *Bridge) publishState(deviceID string, msg StateMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	topic := mqtt.Topics{}.BridgeState(Protocol, deviceID)
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

func (b *Bridge) writeMetrics(rec PlugRecord) {
	if b.metrics == nil || rec.Energy == nil {
		return
	}

	sample := influxdb.EnergySample{
		DeviceID:   rec.ID,
		PowerWatts: rec.Energy.PowerW,
		VoltageV:   rec.Energy.VoltageV,
		CurrentA:   rec.Energy.CurrentA,
		TotalWh:    rec.Energy.TotalWh,
		Time:       rec.UpdatedAt,
	}
	if rec.ParentID != nil {
		sample.ParentID = *rec.ParentID
	}
	b.metrics.WriteEnergySample(sample)
}

func (b *Bridge) recordPowerChange(rec PlugRecord) {
	source := b.changeSource(rec.ID)

	if b.metrics != nil {
		b.metrics.WritePowerState(rec.ID, rec.IsOn(), source)
	}

	if b.history == nil {
		return
	}
	state := endpoint.State(NewPlugStateMessage(rec).State)
	if err := b.history.RecordStateChange(b.ctx, rec.ID, state, source); err != nil {
		b.logError("failed to record state change", err)
	}
}

// materialize creates the plug's endpoint once and announces new endpoints
// on the discovery topic.
func (b *Bridge) materialize(deviceID string) {
	b.materializedMu.Lock()
	done := b.materialized[deviceID]
	b.materializedMu.Unlock()
	if done {
		return
	}

	path := DevicePath(DeviceTypePlug, deviceID)
	created, err := b.materializer.AddSmartDevice(b.ctx, path)
	if err != nil {
		b.logError("failed to materialize endpoint", err)
		return
	}

	b.materializedMu.Lock()
	b.materialized[deviceID] = true
	b.materializedMu.Unlock()

	if created {
		b.publishDiscovery(deviceID)
	}
}

func (b *Bridge) publishDiscovery(deviceID string) {
	rec, ok := b.dataset.Plug(deviceID)
	if !ok {
		return
	}

	caps := endpoint.OutletCapabilities()
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}

	device := DiscoveredDevice{
		EndpointID:    EndpointID(DeviceTypePlug, deviceID),
		DeviceID:      deviceID,
		Protocol:      Protocol,
		Type:          DeviceTypePlug,
		Category:      string(b.materializer.Category(deviceID)),
		Capabilities:  names,
		Manufacturer:  Manufacturer,
		Model:         rec.Model,
		SuggestedName: rec.Name + " outlet",
	}
	if rec.ParentID != nil {
		device.ParentID = *rec.ParentID
	}

	msg := DiscoveryMessage{
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Bridge:    b.cfg.Bridge.ID,
		Devices:   []DiscoveredDevice{device},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal discovery", err)
		return
	}

	if err := b.mqtt.Publish(mqtt.Topics{}.BridgeDiscovery(Protocol), payload, 1, false); err != nil {
		b.logError("failed to publish discovery", err)
	}
}

// SetPollLoop attaches the supervisor running the poll loop so health
// reports include its status.
func (b *Bridge) SetPollLoop(loop LoopInfo) {
	b.health.SetLoop(loop)
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = loggerOrNoop(logger)
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	logger.Info(msg, keysAndValues...)
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	logger.Error(msg, "error", err)
}
