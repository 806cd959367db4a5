package orchestrator

import (
	"context"

	"github.com/hearth-home/hearth/internal/event"
	"github.com/hearth-home/hearth/pkg/models"
	"github.com/hearth-home/hearth/pkg/plugin"
	"go.uber.org/zap"
)

// The orchestrator is the Emitter handed to every driver plugin. All methods
// are called from driver goroutines; completions that match nothing pending
// are dropped with a warning, they are driver bugs, not hub state.

var _ plugin.Emitter = (*Orchestrator)(nil)

// DevicesDiscovered completes an asynchronous discovery.
func (o *Orchestrator) DevicesDiscovered(classID models.DeviceClassID, descriptors []models.DeviceDescriptor) {
	ctx := context.Background()
	p, ok := o.host.PluginForClass(classID)
	if !ok {
		o.logger.Warn("discovery completion for unknown class",
			zap.String("class_id", classID.String()),
		)
		return
	}
	pluginID := p.Info().ID

	o.mu.Lock()
	if o.discovering[pluginID] == 0 {
		o.mu.Unlock()
		o.logger.Warn("dropping discovery completion with no discovery in flight",
			zap.String("class_id", classID.String()),
		)
		return
	}
	o.discovering[pluginID]--
	o.adoptDescriptors(classID, descriptors)
	o.mu.Unlock()
	o.flush(ctx)
	o.metrics.discoveriesTotal.WithLabelValues("ok").Inc()
}

// DeviceSetupFinished completes an asynchronous device setup.
func (o *Orchestrator) DeviceSetupFinished(deviceID models.DeviceID, status plugin.SetupStatus) {
	ctx := context.Background()
	if status == plugin.SetupStatusAsync {
		o.logger.Warn("driver completed a setup with status async, dropping",
			zap.String("device_id", deviceID.String()),
		)
		return
	}

	o.mu.Lock()
	pending, ok := o.pendingSetups[deviceID]
	if !ok {
		o.mu.Unlock()
		o.logger.Warn("dropping setup completion for unknown device",
			zap.String("device_id", deviceID.String()),
		)
		return
	}
	delete(o.pendingSetups, deviceID)
	o.finishDeviceSetup(ctx, pending.device, pending.origin, status == plugin.SetupStatusSuccess)
	o.mu.Unlock()
	o.flush(ctx)
}

// PairingFinished completes an asynchronous pairing confirmation.
func (o *Orchestrator) PairingFinished(tx models.PairingTransactionID, status plugin.SetupStatus) {
	ctx := context.Background()
	if status == plugin.SetupStatusAsync {
		o.logger.Warn("driver completed a pairing with status async, dropping",
			zap.String("transaction_id", tx.String()),
		)
		return
	}

	o.mu.Lock()
	pairing, ok := o.pendingPairs[tx]
	o.mu.Unlock()
	if !ok {
		o.logger.Warn("dropping pairing completion for unknown transaction",
			zap.String("transaction_id", tx.String()),
		)
		return
	}

	if status != plugin.SetupStatusSuccess {
		o.closePairing(ctx, tx, models.DeviceID{}, models.DeviceErrorSetupFailed)
		return
	}
	deviceID := models.NewDeviceID()
	o.closePairing(ctx, tx, deviceID, models.DeviceErrorNoError)
	o.completePairing(ctx, pairing, deviceID)
}

// ActionExecutionFinished completes an asynchronous action execution.
func (o *Orchestrator) ActionExecutionFinished(actionID models.ActionID, status models.DeviceError) {
	ctx := context.Background()

	o.mu.Lock()
	if !o.pendingActions[actionID] {
		o.mu.Unlock()
		o.logger.Warn("dropping action completion for unknown action",
			zap.String("action_id", actionID.String()),
		)
		return
	}
	delete(o.pendingActions, actionID)
	o.note(event.TopicActionFinished, ActionFinishedPayload{
		ActionID: actionID,
		Error:    status,
	})
	o.mu.Unlock()
	o.flush(ctx)

	if status.OK() {
		o.metrics.actionsTotal.WithLabelValues("ok").Inc()
	} else {
		o.metrics.actionsTotal.WithLabelValues("error").Inc()
	}
}

// AutoDevicesAppeared configures devices a driver noticed on its own. Only
// classes with the auto creation method may appear this way; a candidate
// whose params match an existing device of the class is already configured
// and skipped.
func (o *Orchestrator) AutoDevicesAppeared(classID models.DeviceClassID, descriptors []models.DeviceDescriptor) {
	ctx := context.Background()
	class := o.host.FindDeviceClass(classID)
	if !class.Valid() {
		o.logger.Warn("auto devices for unknown class",
			zap.String("class_id", classID.String()),
		)
		return
	}
	if !class.CreateMethods.Has(models.CreateMethodAuto) {
		o.logger.Warn("auto devices for class without auto creation",
			zap.String("class", class.Name),
		)
		return
	}

	for _, descriptor := range descriptors {
		if o.autoDeviceExists(classID, descriptor.Params) {
			continue
		}
		name := descriptor.Title
		if name == "" {
			name = class.Name
		}
		if _, derr := o.createDevice(ctx, class, name, descriptor.Params, models.DeviceID{}, originAuto); !derr.OK() && !derr.Async() {
			o.logger.Warn("auto device setup failed",
				zap.String("class", class.Name),
				zap.String("error", string(derr)),
			)
		}
	}
}

func (o *Orchestrator) autoDeviceExists(classID models.DeviceClassID, params models.ParamList) bool {
	for _, d := range o.devices.FindByClass(classID) {
		if d.Params().Equal(params) {
			return true
		}
	}
	return false
}

// EmitEvent forwards a driver-defined event.
func (o *Orchestrator) EmitEvent(ev models.Event) {
	ctx := context.Background()
	o.mu.Lock()
	o.note(event.TopicDeviceEvent, ev)
	o.mu.Unlock()
	o.flush(ctx)
}

// SetStateValue updates a device state on behalf of a driver. The value is
// converted to the state type's primitive type; the state-changed
// notification and the synthetic event fire through the device's observer.
func (o *Orchestrator) SetStateValue(deviceID models.DeviceID, stateTypeID models.StateTypeID, value models.Value) {
	ctx := context.Background()

	d, ok := o.devices.Find(deviceID)
	if !ok {
		o.logger.Warn("state update for unknown device",
			zap.String("device_id", deviceID.String()),
		)
		return
	}
	class := o.host.FindDeviceClass(d.DeviceClassID())
	stateType, ok := class.StateType(stateTypeID)
	if !ok {
		o.logger.Warn("state update for unknown state type",
			zap.String("device_id", deviceID.String()),
			zap.String("state_type_id", stateTypeID.String()),
		)
		return
	}
	converted, ok := value.ConvertTo(stateType.Type)
	if !ok {
		o.logger.Warn("state update with unconvertible value",
			zap.String("device_id", deviceID.String()),
			zap.String("state", stateType.Name),
			zap.String("got", string(value.Type())),
			zap.String("want", string(stateType.Type)),
		)
		return
	}

	o.mu.Lock()
	if derr := d.SetStateValue(stateTypeID, converted); !derr.OK() {
		o.logger.Warn("state update refused",
			zap.String("device_id", deviceID.String()),
			zap.String("error", string(derr)),
		)
	}
	o.mu.Unlock()
	o.flush(ctx)
}
