package orchestrator

import (
	"context"

	"github.com/hearth-home/hearth/internal/event"
	"github.com/hearth-home/hearth/pkg/models"
	"github.com/hearth-home/hearth/pkg/plugin"
	"go.uber.org/zap"
)

// DiscoverDevices starts a discovery for the class. A synchronous driver
// returns its batch immediately and the result is NoError; an asynchronous
// driver returns Async here and the batch arrives as a device.discovered
// notification.
func (o *Orchestrator) DiscoverDevices(ctx context.Context, classID models.DeviceClassID, params models.ParamList) models.DeviceError {
	class := o.host.FindDeviceClass(classID)
	if !class.Valid() {
		return models.DeviceErrorDeviceClassNotFound
	}
	if !class.CreateMethods.Has(models.CreateMethodDiscovery) {
		return models.DeviceErrorCreationMethodNotSupported
	}
	// Discovery params are hints; the driver copes with absent ones.
	effective, perr := models.VerifyParams(class.DiscoveryParamTypes, params, false)
	if perr != nil {
		return perr.Code
	}
	p, ok := o.host.PluginForClass(classID)
	if !ok {
		return models.DeviceErrorPluginNotFound
	}
	pluginID := p.Info().ID

	o.mu.Lock()
	o.discovering[pluginID]++
	o.mu.Unlock()

	descriptors, derr := p.DiscoverDevices(classID, effective)
	if derr.Async() {
		// The driver completes via Emitter.DevicesDiscovered, which takes
		// the refcount back down.
		o.metrics.discoveriesTotal.WithLabelValues("async").Inc()
		return models.DeviceErrorAsync
	}

	o.mu.Lock()
	o.discovering[pluginID]--
	if derr.OK() {
		o.adoptDescriptors(classID, descriptors)
	}
	o.mu.Unlock()
	o.flush(ctx)

	if derr.OK() {
		o.metrics.discoveriesTotal.WithLabelValues("ok").Inc()
	} else {
		o.metrics.discoveriesTotal.WithLabelValues("error").Inc()
	}
	return derr
}

// adoptDescriptors replaces the class's discovery pool with a fresh batch and
// queues the device.discovered notification. o.mu must be held.
func (o *Orchestrator) adoptDescriptors(classID models.DeviceClassID, descriptors []models.DeviceDescriptor) {
	for _, old := range o.classDescriptors[classID] {
		delete(o.descriptorIndex, old.ID)
	}

	adopted := make([]models.DeviceDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.ID.IsZero() {
			d.ID = models.NewDeviceDescriptorID()
		}
		d.DeviceClassID = classID
		adopted = append(adopted, d)
		o.descriptorIndex[d.ID] = d
	}
	o.classDescriptors[classID] = adopted

	o.note(event.TopicDeviceDiscovered, DiscoveredPayload{
		DeviceClassID: classID,
		Descriptors:   adopted,
	})
}

// AddConfiguredDevice creates, sets up and persists a device of a just-add
// class. A zero id lets the hub generate one; a caller-supplied id that is
// already taken fails with duplicate_uuid. Classes with a pairing setup
// method must go through PairDevice instead.
func (o *Orchestrator) AddConfiguredDevice(ctx context.Context, classID models.DeviceClassID, name string, params models.ParamList, id models.DeviceID) (models.DeviceID, models.DeviceError) {
	class := o.host.FindDeviceClass(classID)
	if !class.Valid() {
		return models.DeviceID{}, models.DeviceErrorDeviceClassNotFound
	}
	if !class.CreateMethods.Has(models.CreateMethodUser) {
		return models.DeviceID{}, models.DeviceErrorCreationMethodNotSupported
	}
	if class.SetupMethod != models.SetupMethodJustAdd {
		return models.DeviceID{}, models.DeviceErrorSetupMethodNotSupported
	}
	effective, perr := models.VerifyParams(class.ParamTypes, params, true)
	if perr != nil {
		return models.DeviceID{}, perr.Code
	}
	return o.createDevice(ctx, class, name, effective, id, originAdd)
}

// AddConfiguredDeviceFromDescriptor is AddConfiguredDevice for a discovered
// candidate: the descriptor supplies the params and is consumed once the
// device is created.
func (o *Orchestrator) AddConfiguredDeviceFromDescriptor(ctx context.Context, classID models.DeviceClassID, name string, descriptorID models.DeviceDescriptorID, id models.DeviceID) (models.DeviceID, models.DeviceError) {
	class := o.host.FindDeviceClass(classID)
	if !class.Valid() {
		return models.DeviceID{}, models.DeviceErrorDeviceClassNotFound
	}
	if !class.CreateMethods.Has(models.CreateMethodDiscovery) {
		return models.DeviceID{}, models.DeviceErrorCreationMethodNotSupported
	}
	if class.SetupMethod != models.SetupMethodJustAdd {
		return models.DeviceID{}, models.DeviceErrorSetupMethodNotSupported
	}

	o.mu.Lock()
	descriptor, ok := o.descriptorIndex[descriptorID]
	o.mu.Unlock()
	if !ok || descriptor.DeviceClassID != classID {
		return models.DeviceID{}, models.DeviceErrorDeviceDescriptorNotFound
	}
	if name == "" {
		name = descriptor.Title
	}
	deviceID, derr := o.createDevice(ctx, class, name, descriptor.Params, id, originAdd)
	if derr.OK() || derr.Async() {
		o.consumeDescriptor(descriptorID)
	}
	return deviceID, derr
}

// consumeDescriptor drops a used descriptor from the discovery pool so it
// cannot produce a second device.
func (o *Orchestrator) consumeDescriptor(id models.DeviceDescriptorID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	descriptor, ok := o.descriptorIndex[id]
	if !ok {
		return
	}
	delete(o.descriptorIndex, id)
	pool := o.classDescriptors[descriptor.DeviceClassID]
	for i, d := range pool {
		if d.ID == id {
			o.classDescriptors[descriptor.DeviceClassID] = append(pool[:i], pool[i+1:]...)
			break
		}
	}
}

// createDevice builds the live device and runs it through setup. Missing
// hardware never blocks creation; the device simply gets no deliveries until
// the resource comes up.
func (o *Orchestrator) createDevice(ctx context.Context, class models.DeviceClass, name string, params models.ParamList, id models.DeviceID, origin setupOrigin) (models.DeviceID, models.DeviceError) {
	if !o.hardwareAvailable(class.RequiredHardware) {
		o.logger.Warn("hardware for device class not available",
			zap.String("class", class.Name),
		)
	}
	p, ok := o.host.PluginForClass(class.ID)
	if !ok {
		return models.DeviceID{}, models.DeviceErrorPluginNotFound
	}

	if id.IsZero() {
		id = models.NewDeviceID()
	}
	if _, taken := o.devices.Find(id); taken {
		return models.DeviceID{}, models.DeviceErrorDuplicateUUID
	}

	d := models.NewDevice(p.Info().ID, id, class.ID)
	d.SetName(name)
	d.SetParams(params)

	derr := o.setupAndCommit(ctx, d, class, origin)
	if derr.OK() || derr.Async() {
		return id, derr
	}
	return models.DeviceID{}, derr
}

// setupAndCommit initialises the device states, runs the driver's setup and
// commits the outcome. It must be called without o.mu held.
func (o *Orchestrator) setupAndCommit(ctx context.Context, d *models.Device, class models.DeviceClass, origin setupOrigin) models.DeviceError {
	states := make([]models.State, 0, len(class.StateTypes))
	for _, st := range class.StateTypes {
		states = append(states, models.State{
			StateTypeID: st.ID,
			DeviceID:    d.ID(),
			Value:       st.Default,
		})
	}
	d.SetStates(states)

	p, ok := o.host.Plugin(d.PluginID())
	if !ok {
		return models.DeviceErrorPluginNotFound
	}

	status := p.SetupDevice(d)
	switch status {
	case plugin.SetupStatusAsync:
		o.mu.Lock()
		o.pendingSetups[d.ID()] = pendingSetup{device: d, origin: origin}
		o.mu.Unlock()
		return models.DeviceErrorAsync
	case plugin.SetupStatusSuccess:
		o.mu.Lock()
		derr := o.finishDeviceSetup(ctx, d, origin, true)
		o.mu.Unlock()
		o.flush(ctx)
		return derr
	default:
		o.mu.Lock()
		o.finishDeviceSetup(ctx, d, origin, false)
		o.mu.Unlock()
		o.flush(ctx)
		return models.DeviceErrorSetupFailed
	}
}

// finishDeviceSetup commits a setup outcome: on success the device joins the
// live set (unless it was loaded, then it is already in), is persisted, gets
// its state observer and its hardware registrations. The setup-finished
// notification fires either way. o.mu must be held.
func (o *Orchestrator) finishDeviceSetup(ctx context.Context, d *models.Device, origin setupOrigin, success bool) (derr models.DeviceError) {
	defer func() {
		o.note(event.TopicDeviceSetupFinished, SetupFinishedPayload{
			DeviceID: d.ID(),
			Error:    derr,
		})
	}()

	if !success {
		// A freshly created device that failed setup never becomes
		// configured. A loaded one stays, not setup-complete.
		return models.DeviceErrorSetupFailed
	}

	if origin != originLoad {
		if derr := o.devices.Add(d); !derr.OK() {
			return derr
		}
		if err := o.devices.Save(ctx, d); err != nil {
			o.logger.Error("persist device", zap.String("device_id", d.ID().String()), zap.Error(err))
		}
	}
	d.MarkSetupComplete()
	d.SetStateChangeHandler(o.onDeviceStateChanged)

	class := o.host.FindDeviceClass(d.DeviceClassID())
	if o.hw != nil && class.RequiredHardware.Has(models.HardwareResourceTimer) {
		o.hw.AddTimerUser(d.ID())
	}

	o.metrics.devicesConfigured.Set(float64(len(o.devices.All())))
	return models.DeviceErrorNoError
}

// onDeviceStateChanged runs inside Device.SetStateValue while o.mu is held.
// It queues the state-changed notification and the synthetic event every
// state type doubles as.
func (o *Orchestrator) onDeviceStateChanged(d *models.Device, stateTypeID models.StateTypeID, value models.Value) {
	o.metrics.stateChangesTotal.Inc()
	o.note(event.TopicDeviceStateChanged, StateChangedPayload{
		DeviceID:    d.ID(),
		StateTypeID: stateTypeID,
		Value:       value,
	})
	o.note(event.TopicDeviceEvent, models.Event{
		EventTypeID:  models.EventTypeID(stateTypeID),
		DeviceID:     d.ID(),
		Params:       models.ParamList{{Name: "value", Value: value}},
		StateDerived: true,
	})
}

// PairDevice opens a pairing transaction for a class whose setup method
// needs user interaction. The returned transaction id is confirmed with
// ConfirmPairing.
func (o *Orchestrator) PairDevice(ctx context.Context, classID models.DeviceClassID, name string, params models.ParamList) (models.PairingTransactionID, models.SetupMethod, models.DeviceError) {
	class := o.host.FindDeviceClass(classID)
	if !class.Valid() {
		return models.PairingTransactionID{}, "", models.DeviceErrorDeviceClassNotFound
	}
	if !class.CreateMethods.Has(models.CreateMethodUser) {
		return models.PairingTransactionID{}, "", models.DeviceErrorCreationMethodNotSupported
	}
	if class.SetupMethod == models.SetupMethodJustAdd {
		return models.PairingTransactionID{}, "", models.DeviceErrorSetupMethodNotSupported
	}
	effective, perr := models.VerifyParams(class.ParamTypes, params, true)
	if perr != nil {
		return models.PairingTransactionID{}, "", perr.Code
	}

	tx := models.NewPairingTransactionID()
	o.mu.Lock()
	o.pendingPairs[tx] = pendingPairing{classID: classID, name: name, params: effective}
	o.mu.Unlock()
	return tx, class.SetupMethod, models.DeviceErrorNoError
}

// PairDeviceFromDescriptor opens a pairing transaction for a discovered
// candidate.
func (o *Orchestrator) PairDeviceFromDescriptor(ctx context.Context, classID models.DeviceClassID, name string, descriptorID models.DeviceDescriptorID) (models.PairingTransactionID, models.SetupMethod, models.DeviceError) {
	class := o.host.FindDeviceClass(classID)
	if !class.Valid() {
		return models.PairingTransactionID{}, "", models.DeviceErrorDeviceClassNotFound
	}
	if !class.CreateMethods.Has(models.CreateMethodDiscovery) {
		return models.PairingTransactionID{}, "", models.DeviceErrorCreationMethodNotSupported
	}
	if class.SetupMethod == models.SetupMethodJustAdd {
		return models.PairingTransactionID{}, "", models.DeviceErrorSetupMethodNotSupported
	}

	o.mu.Lock()
	descriptor, ok := o.descriptorIndex[descriptorID]
	if !ok || descriptor.DeviceClassID != classID {
		o.mu.Unlock()
		return models.PairingTransactionID{}, "", models.DeviceErrorDeviceDescriptorNotFound
	}
	tx := models.NewPairingTransactionID()
	if name == "" {
		name = descriptor.Title
	}
	o.pendingPairs[tx] = pendingPairing{
		classID:      classID,
		name:         name,
		params:       descriptor.Params,
		descriptorID: descriptorID,
	}
	o.mu.Unlock()
	return tx, class.SetupMethod, models.DeviceErrorNoError
}

// ConfirmPairing hands the user-supplied secret to the driver. On
// synchronous success the pairing-finished notification precedes the device
// setup; an Async reply keeps the transaction open until the driver calls
// PairingFinished.
func (o *Orchestrator) ConfirmPairing(ctx context.Context, tx models.PairingTransactionID, secret string) models.DeviceError {
	o.mu.Lock()
	pairing, ok := o.pendingPairs[tx]
	o.mu.Unlock()
	if !ok {
		return models.DeviceErrorPairingTransactionIDNotFound
	}

	p, okPlugin := o.host.PluginForClass(pairing.classID)
	if !okPlugin {
		return models.DeviceErrorPluginNotFound
	}

	status := p.ConfirmPairing(tx, pairing.classID, pairing.params, secret)
	switch status {
	case plugin.SetupStatusAsync:
		return models.DeviceErrorAsync
	case plugin.SetupStatusSuccess:
		deviceID := models.NewDeviceID()
		o.closePairing(ctx, tx, deviceID, models.DeviceErrorNoError)
		return o.completePairing(ctx, pairing, deviceID)
	default:
		o.closePairing(ctx, tx, models.DeviceID{}, models.DeviceErrorSetupFailed)
		return models.DeviceErrorSetupFailed
	}
}

// closePairing removes the transaction and publishes pairing.finished. On
// success deviceID names the device the pairing is about to produce.
func (o *Orchestrator) closePairing(ctx context.Context, tx models.PairingTransactionID, deviceID models.DeviceID, derr models.DeviceError) {
	o.mu.Lock()
	delete(o.pendingPairs, tx)
	o.note(event.TopicPairingFinished, PairingFinishedPayload{
		TransactionID: tx,
		DeviceID:      deviceID,
		Error:         derr,
	})
	o.mu.Unlock()
	o.flush(ctx)
}

// completePairing turns a successfully confirmed pairing into a configured
// device under the id announced with pairing.finished. The id is minted only
// once pairing succeeded, never before.
func (o *Orchestrator) completePairing(ctx context.Context, pairing pendingPairing, id models.DeviceID) models.DeviceError {
	class := o.host.FindDeviceClass(pairing.classID)
	if !class.Valid() {
		return models.DeviceErrorDeviceClassNotFound
	}
	params := pairing.params
	if !pairing.descriptorID.IsZero() {
		o.mu.Lock()
		descriptor, ok := o.descriptorIndex[pairing.descriptorID]
		o.mu.Unlock()
		if !ok {
			o.logger.Warn("descriptor evicted while pairing was open",
				zap.String("descriptor_id", pairing.descriptorID.String()),
			)
			return models.DeviceErrorDeviceDescriptorNotFound
		}
		params = descriptor.Params
	}

	_, derr := o.createDevice(ctx, class, pairing.name, params, id, originPair)
	if (derr.OK() || derr.Async()) && !pairing.descriptorID.IsZero() {
		o.consumeDescriptor(pairing.descriptorID)
	}
	return derr
}

// RemoveConfiguredDevice removes a device from the live set and the settings
// store and tells its driver.
func (o *Orchestrator) RemoveConfiguredDevice(ctx context.Context, id models.DeviceID) models.DeviceError {
	d, ok := o.devices.Find(id)
	if !ok {
		return models.DeviceErrorDeviceNotFound
	}

	o.devices.Remove(id)
	if o.hw != nil {
		o.hw.RemoveTimerUser(id)
	}

	if p, okPlugin := o.host.Plugin(d.PluginID()); okPlugin {
		p.DeviceRemoved(d)
	}
	if err := o.devices.DeleteConfig(ctx, id); err != nil {
		o.logger.Error("delete device config", zap.String("device_id", id.String()), zap.Error(err))
	}

	o.mu.Lock()
	// A still-open async setup must not resurrect the device.
	delete(o.pendingSetups, id)
	o.note(event.TopicDeviceRemoved, RemovedPayload{DeviceID: id})
	o.mu.Unlock()
	o.flush(ctx)

	o.metrics.devicesConfigured.Set(float64(len(o.devices.All())))
	return models.DeviceErrorNoError
}

// ExecuteAction validates and dispatches an action to the device's driver.
// Async replies complete through an action.finished notification correlated
// by the action id.
func (o *Orchestrator) ExecuteAction(ctx context.Context, action models.Action) models.DeviceError {
	d, ok := o.devices.Find(action.DeviceID)
	if !ok {
		return models.DeviceErrorDeviceNotFound
	}
	if !d.SetupComplete() {
		return models.DeviceErrorSetupFailed
	}
	class := o.host.FindDeviceClass(d.DeviceClassID())
	actionType, ok := class.ActionType(action.ActionTypeID)
	if !ok {
		return models.DeviceErrorActionTypeNotFound
	}
	effective, perr := models.VerifyParams(actionType.ParamTypes, action.Params, true)
	if perr != nil {
		return perr.Code
	}
	action.Params = effective
	if action.ID.IsZero() {
		action.ID = models.NewActionID()
	}

	p, okPlugin := o.host.Plugin(d.PluginID())
	if !okPlugin {
		return models.DeviceErrorPluginNotFound
	}

	// Registered before the driver call so an immediate async completion
	// from the driver's goroutine always finds its slot.
	o.mu.Lock()
	o.pendingActions[action.ID] = true
	o.mu.Unlock()

	derr := p.ExecuteAction(d, action)
	if derr.Async() {
		o.metrics.actionsTotal.WithLabelValues("async").Inc()
		return models.DeviceErrorAsync
	}

	o.mu.Lock()
	delete(o.pendingActions, action.ID)
	o.mu.Unlock()

	if derr.OK() {
		o.metrics.actionsTotal.WithLabelValues("ok").Inc()
	} else {
		o.metrics.actionsTotal.WithLabelValues("error").Inc()
	}
	return derr
}
