// Package plugin provides the public SDK for Hearth driver plugins. A driver
// plugin declares the vendors and device classes it supports, and implements
// the subset of the capability set it needs; everything else is inherited as
// an explicit no-op from Base.
//
// Concurrency contract: the hub serialises all capability calls. A plugin
// must not call Emitter methods or mutate device state synchronously from
// inside a capability call; completions, discovery results and state updates
// have to be posted from the plugin's own goroutine. Plugins must correlate
// deferred work by DeviceID; Device pointers are borrowed for the duration
// of a single call.
package plugin

import (
	"context"

	"github.com/hearth-home/hearth/pkg/models"
	"go.uber.org/zap"
)

// SetupStatus is a driver's reply to setup and pairing-confirmation requests.
type SetupStatus string

const (
	SetupStatusSuccess SetupStatus = "success"
	SetupStatusFailure SetupStatus = "failure"
	SetupStatusAsync   SetupStatus = "async"
)

// Info is a plugin's self-declared metadata. ID, Name and at least one
// vendor are mandatory; plugins with malformed metadata are skipped at load.
type Info struct {
	ID          models.PluginID
	Name        string
	Description string

	// ConfigurationDescription declares the plugin's own configuration
	// schema. Stored configuration is validated against it and defaults are
	// drawn from it when nothing is stored.
	ConfigurationDescription []models.ParamType
}

// Emitter is the plugin's channel back into the hub. All methods are safe to
// call from any goroutine; the hub posts them onto its own serialised state.
type Emitter interface {
	// DevicesDiscovered completes an Async discovery for the class.
	DevicesDiscovered(classID models.DeviceClassID, descriptors []models.DeviceDescriptor)

	// DeviceSetupFinished completes an Async SetupDevice. Status must be
	// Success or Failure; Async is rejected with a warning.
	DeviceSetupFinished(deviceID models.DeviceID, status SetupStatus)

	// PairingFinished completes an Async ConfirmPairing.
	PairingFinished(tx models.PairingTransactionID, status SetupStatus)

	// ActionExecutionFinished completes an Async ExecuteAction.
	ActionExecutionFinished(actionID models.ActionID, status models.DeviceError)

	// AutoDevicesAppeared announces devices of an auto-creation class the
	// plugin noticed on its own.
	AutoDevicesAppeared(classID models.DeviceClassID, descriptors []models.DeviceDescriptor)

	// EmitEvent forwards a custom plugin event verbatim.
	EmitEvent(event models.Event)

	// SetStateValue updates a device state by id; the hub synthesises the
	// state-changed notification and the implicit event.
	SetStateValue(deviceID models.DeviceID, stateTypeID models.StateTypeID, value models.Value)
}

// UpnpDiscoverer starts a search on the shared UPnP transport. The result
// batch is delivered back to the requesting plugin via UpnpDiscoveryFinished.
type UpnpDiscoverer interface {
	DiscoverUpnp(ctx context.Context) models.DeviceError
}

// Dependencies provides controlled access to shared hub services.
// Injected during Init.
type Dependencies struct {
	Logger  *zap.Logger
	Emitter Emitter
	Upnp    UpnpDiscoverer
}

// UpnpDeviceDescriptor is one device answer from a UPnP discovery round.
type UpnpDeviceDescriptor struct {
	Location string
	Server   string
	USN      string
	Address  string
}

// DevicePlugin is the full capability set of a Hearth driver. Embed Base and
// override what the driver supports.
type DevicePlugin interface {
	// Info returns the plugin's metadata. Called before Init.
	Info() Info

	// Init hands the plugin its dependencies.
	Init(ctx context.Context, deps Dependencies) error

	// SupportedVendors lists the vendors this plugin contributes to the
	// catalog.
	SupportedVendors() []models.Vendor

	// SupportedDevices lists the device classes this plugin drives.
	SupportedDevices() []models.DeviceClass

	// RequiredHardware declares the shared hardware resources the plugin
	// needs delivered.
	RequiredHardware() models.HardwareResources

	// SetConfiguration applies a validated plugin configuration.
	SetConfiguration(params models.ParamList) models.DeviceError

	// SetupDevice brings a device into operation. The pointer is borrowed
	// for the duration of the call.
	SetupDevice(device *models.Device) SetupStatus

	// DeviceRemoved tells the plugin a device it set up is gone.
	DeviceRemoved(device *models.Device)

	// DiscoverDevices starts a discovery. Synchronous drivers return the
	// descriptor batch directly with NoError; asynchronous drivers return
	// (nil, Async) and complete via Emitter.DevicesDiscovered.
	DiscoverDevices(classID models.DeviceClassID, params models.ParamList) ([]models.DeviceDescriptor, models.DeviceError)

	// ConfirmPairing checks the user-supplied secret for a pending pairing.
	ConfirmPairing(tx models.PairingTransactionID, classID models.DeviceClassID, params models.ParamList, secret string) SetupStatus

	// ExecuteAction runs an already-validated action on a device.
	ExecuteAction(device *models.Device, action models.Action) models.DeviceError

	// StartMonitoringAutoDevices is called once after load for plugins with
	// auto-creation classes.
	StartMonitoringAutoDevices()

	// RadioData delivers a raw pulse-width frame from a shared radio.
	RadioData(band models.RadioBand, raw []int)

	// Tick delivers the shared 15 second hub timer.
	Tick()

	// UpnpDiscoveryFinished delivers the result of a UPnP discovery this
	// plugin requested.
	UpnpDiscoveryFinished(descriptors []UpnpDeviceDescriptor)

	// UpnpNotifyReceived delivers an unsolicited UPnP multicast datagram.
	UpnpNotifyReceived(data []byte)
}

// Base provides explicit no-op implementations for every optional
// capability, plus storage for the injected dependencies. Drivers embed it
// and override the calls they support.
type Base struct {
	deps Dependencies
}

// Init stores the dependencies. Overriding plugins should call it first.
func (b *Base) Init(_ context.Context, deps Dependencies) error {
	b.deps = deps
	return nil
}

// Logger returns the injected named logger.
func (b *Base) Logger() *zap.Logger {
	if b.deps.Logger == nil {
		return zap.NewNop()
	}
	return b.deps.Logger
}

// Emitter returns the injected hub channel.
func (b *Base) Emitter() Emitter { return b.deps.Emitter }

// Upnp returns the shared UPnP discovery handle. Without one every search
// reports the hardware as unavailable.
func (b *Base) Upnp() UpnpDiscoverer {
	if b.deps.Upnp == nil {
		return unavailableUpnp{}
	}
	return b.deps.Upnp
}

type unavailableUpnp struct{}

func (unavailableUpnp) DiscoverUpnp(context.Context) models.DeviceError {
	return models.DeviceErrorHardwareNotAvailable
}

func (b *Base) RequiredHardware() models.HardwareResources { return models.HardwareResourceNone }

func (b *Base) SetConfiguration(models.ParamList) models.DeviceError {
	return models.DeviceErrorNoError
}

func (b *Base) SetupDevice(*models.Device) SetupStatus { return SetupStatusSuccess }

func (b *Base) DeviceRemoved(*models.Device) {}

func (b *Base) DiscoverDevices(models.DeviceClassID, models.ParamList) ([]models.DeviceDescriptor, models.DeviceError) {
	return nil, models.DeviceErrorCreationMethodNotSupported
}

func (b *Base) ConfirmPairing(models.PairingTransactionID, models.DeviceClassID, models.ParamList, string) SetupStatus {
	return SetupStatusFailure
}

func (b *Base) ExecuteAction(*models.Device, models.Action) models.DeviceError {
	return models.DeviceErrorActionTypeNotFound
}

func (b *Base) StartMonitoringAutoDevices() {}

func (b *Base) RadioData(models.RadioBand, []int) {}

func (b *Base) Tick() {}

func (b *Base) UpnpDiscoveryFinished([]UpnpDeviceDescriptor) {}

func (b *Base) UpnpNotifyReceived([]byte) {}
