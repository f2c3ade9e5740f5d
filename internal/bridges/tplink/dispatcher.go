package tplink

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultCommandTimeout bounds a device on/off call.
const DefaultCommandTimeout = 5 * time.Second

// Ack acknowledges a completed command.
type Ack struct {
	CorrelationToken string     `json:"correlation_token"`
	DeviceID         string     `json:"device_id"`
	PowerState       PowerState `json:"power_state"`
}

// Reconciler runs an out-of-cycle reconciliation pass.
type Reconciler interface {
	Reconcile(ctx context.Context, opts ReconcileOptions) (ReconcileResult, error)
}

// Dispatcher routes on/off intents to device handles and reconciles the
// dataset once the device has accepted the command.
type Dispatcher struct {
	registry   *HandleRegistry
	reconciler Reconciler
	dataset    *Dataset
	timeout    time.Duration
	logger     Logger
}

// NewDispatcher creates a dispatcher. timeout bounds the device call; zero
// uses DefaultCommandTimeout.
func NewDispatcher(registry *HandleRegistry, reconciler Reconciler, dataset *Dataset, timeout time.Duration, logger Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Dispatcher{
		registry:   registry,
		reconciler: reconciler,
		dataset:    dataset,
		timeout:    timeout,
		logger:     loggerOrNoop(logger),
	}
}

// TurnOn switches a plug on. Turning on a plug that is already on is
// forwarded to the device like any other command.
func (d *Dispatcher) TurnOn(ctx context.Context, deviceID, token string) (Ack, error) {
	return d.dispatch(ctx, deviceID, token, true)
}

// TurnOff switches a plug off.
func (d *Dispatcher) TurnOff(ctx context.Context, deviceID, token string) (Ack, error) {
	return d.dispatch(ctx, deviceID, token, false)
}

func (d *Dispatcher) dispatch(ctx context.Context, deviceID, token string, on bool) (Ack, error) {
	op := "turn off"
	if on {
		op = "turn on"
	}

	h, err := d.registry.LookupPlug(deviceID)
	if err != nil {
		return Ack{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	if on {
		err = h.TurnOn(callCtx)
	} else {
		err = h.TurnOff(callCtx)
	}
	cancel()
	if err != nil {
		d.logger.Error("command failed", "device_id", deviceID, "command", op, "error", err)
		return Ack{}, fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, op, deviceID, err)
	}

	if _, err := d.reconciler.Reconcile(ctx, ReconcileOptions{DeviceID: deviceID}); err != nil {
		// The device accepted the command; the next poll pass catches up.
		d.logger.Error("reconcile after command failed", "device_id", deviceID, "error", err)
	}

	state := powerStateOf(on)
	if rec, ok := d.dataset.Plug(deviceID); ok {
		state = rec.PowerState
	}

	d.logger.Info("command executed", "device_id", deviceID, "command", op, "power_state", state)
	return Ack{CorrelationToken: token, DeviceID: deviceID, PowerState: state}, nil
}

// IsCommandTimeout reports whether a dispatch error came from the device
// call deadline.
func IsCommandTimeout(err error) bool {
	return errors.Is(err, ErrCommandFailed) && isTimeout(err)
}
