package plugintest

import (
	"context"
	"sync"

	"github.com/hearth-home/hearth/pkg/models"
	"github.com/hearth-home/hearth/pkg/plugin"
)

// MockPlugin is a scriptable plugin.DevicePlugin for hub-level tests. The
// reply fields select the scripted result for each capability; the On* hooks,
// when set, run instead and can drive the Emitter from a goroutine. Recorded
// calls are available through the thread-safe accessors.
type MockPlugin struct {
	plugin.Base

	Meta     plugin.Info
	Vendors  []models.Vendor
	Classes  []models.DeviceClass
	Hardware models.HardwareResources

	SetupReply   plugin.SetupStatus
	ConfirmReply plugin.SetupStatus
	ConfigReply  models.DeviceError
	ActionReply  models.DeviceError

	DiscoverReply       models.DeviceError
	DiscoverDescriptors []models.DeviceDescriptor

	OnSetup    func(device *models.Device) plugin.SetupStatus
	OnDiscover func(classID models.DeviceClassID, params models.ParamList) ([]models.DeviceDescriptor, models.DeviceError)
	OnConfirm  func(tx models.PairingTransactionID, classID models.DeviceClassID, params models.ParamList, secret string) plugin.SetupStatus
	OnExecute  func(device *models.Device, action models.Action) models.DeviceError
	OnTick     func()
	OnRadio    func(band models.RadioBand, raw []int)

	mu            sync.Mutex
	setupCalls    []models.DeviceID
	removedCalls  []models.DeviceID
	configCalls   []models.ParamList
	actionCalls   []models.Action
	radioCalls    [][]int
	tickCount     int
	monitorCalls  int
	upnpFinished  [][]plugin.UpnpDeviceDescriptor
	upnpNotifies  [][]byte
	discoverCalls []models.DeviceClassID
}

// NewMockPlugin returns a mock with fresh metadata, one vendor and one
// just-add device class, and success replies everywhere.
func NewMockPlugin() *MockPlugin {
	vendorID := models.NewVendorID()
	classID := models.NewDeviceClassID()
	pluginID := models.NewPluginID()
	return &MockPlugin{
		Meta: plugin.Info{ID: pluginID, Name: "mock"},
		Vendors: []models.Vendor{
			{ID: vendorID, Name: "Mock Vendor"},
		},
		Classes: []models.DeviceClass{
			{
				ID:            classID,
				PluginID:      pluginID,
				VendorID:      vendorID,
				Name:          "Mock Device",
				CreateMethods: models.CreateMethodUser,
				SetupMethod:   models.SetupMethodJustAdd,
			},
		},
		SetupReply:    plugin.SetupStatusSuccess,
		ConfirmReply:  plugin.SetupStatusSuccess,
		ConfigReply:   models.DeviceErrorNoError,
		ActionReply:   models.DeviceErrorNoError,
		DiscoverReply: models.DeviceErrorNoError,
	}
}

func (m *MockPlugin) Info() plugin.Info { return m.Meta }

// Init delegates to Base so the Emitter is reachable via m.Emitter().
func (m *MockPlugin) Init(ctx context.Context, deps plugin.Dependencies) error {
	return m.Base.Init(ctx, deps)
}

func (m *MockPlugin) SupportedVendors() []models.Vendor      { return m.Vendors }
func (m *MockPlugin) SupportedDevices() []models.DeviceClass { return m.Classes }

func (m *MockPlugin) RequiredHardware() models.HardwareResources { return m.Hardware }

func (m *MockPlugin) SetConfiguration(params models.ParamList) models.DeviceError {
	m.mu.Lock()
	m.configCalls = append(m.configCalls, params.Clone())
	m.mu.Unlock()
	return m.ConfigReply
}

func (m *MockPlugin) SetupDevice(device *models.Device) plugin.SetupStatus {
	m.mu.Lock()
	m.setupCalls = append(m.setupCalls, device.ID())
	m.mu.Unlock()
	if m.OnSetup != nil {
		return m.OnSetup(device)
	}
	return m.SetupReply
}

func (m *MockPlugin) DeviceRemoved(device *models.Device) {
	m.mu.Lock()
	m.removedCalls = append(m.removedCalls, device.ID())
	m.mu.Unlock()
}

func (m *MockPlugin) DiscoverDevices(classID models.DeviceClassID, params models.ParamList) ([]models.DeviceDescriptor, models.DeviceError) {
	m.mu.Lock()
	m.discoverCalls = append(m.discoverCalls, classID)
	m.mu.Unlock()
	if m.OnDiscover != nil {
		return m.OnDiscover(classID, params)
	}
	return m.DiscoverDescriptors, m.DiscoverReply
}

func (m *MockPlugin) ConfirmPairing(tx models.PairingTransactionID, classID models.DeviceClassID, params models.ParamList, secret string) plugin.SetupStatus {
	if m.OnConfirm != nil {
		return m.OnConfirm(tx, classID, params, secret)
	}
	return m.ConfirmReply
}

func (m *MockPlugin) ExecuteAction(device *models.Device, action models.Action) models.DeviceError {
	m.mu.Lock()
	m.actionCalls = append(m.actionCalls, action)
	m.mu.Unlock()
	if m.OnExecute != nil {
		return m.OnExecute(device, action)
	}
	return m.ActionReply
}

func (m *MockPlugin) StartMonitoringAutoDevices() {
	m.mu.Lock()
	m.monitorCalls++
	m.mu.Unlock()
}

func (m *MockPlugin) RadioData(band models.RadioBand, raw []int) {
	m.mu.Lock()
	m.radioCalls = append(m.radioCalls, raw)
	m.mu.Unlock()
	if m.OnRadio != nil {
		m.OnRadio(band, raw)
	}
}

func (m *MockPlugin) Tick() {
	m.mu.Lock()
	m.tickCount++
	m.mu.Unlock()
	if m.OnTick != nil {
		m.OnTick()
	}
}

func (m *MockPlugin) UpnpDiscoveryFinished(descriptors []plugin.UpnpDeviceDescriptor) {
	m.mu.Lock()
	m.upnpFinished = append(m.upnpFinished, descriptors)
	m.mu.Unlock()
}

func (m *MockPlugin) UpnpNotifyReceived(data []byte) {
	m.mu.Lock()
	m.upnpNotifies = append(m.upnpNotifies, data)
	m.mu.Unlock()
}

// SetupCalls returns the device ids SetupDevice was called with, in order.
func (m *MockPlugin) SetupCalls() []models.DeviceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DeviceID(nil), m.setupCalls...)
}

// RemovedCalls returns the device ids DeviceRemoved was called with.
func (m *MockPlugin) RemovedCalls() []models.DeviceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DeviceID(nil), m.removedCalls...)
}

// ConfigCalls returns every configuration the hub pushed, in order.
func (m *MockPlugin) ConfigCalls() []models.ParamList {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ParamList(nil), m.configCalls...)
}

// ActionCalls returns every action the hub dispatched, in order.
func (m *MockPlugin) ActionCalls() []models.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Action(nil), m.actionCalls...)
}

// DiscoverCalls returns the class ids DiscoverDevices was called with.
func (m *MockPlugin) DiscoverCalls() []models.DeviceClassID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DeviceClassID(nil), m.discoverCalls...)
}

// RadioCalls returns every raw frame delivered to the plugin.
func (m *MockPlugin) RadioCalls() [][]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]int(nil), m.radioCalls...)
}

// TickCount returns how many timer ticks the plugin has received.
func (m *MockPlugin) TickCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickCount
}

// MonitorCalls returns how often StartMonitoringAutoDevices was called.
func (m *MockPlugin) MonitorCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitorCalls
}

// UpnpFinished returns every UPnP discovery result batch delivered to the
// plugin, in order.
func (m *MockPlugin) UpnpFinished() [][]plugin.UpnpDeviceDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]plugin.UpnpDeviceDescriptor(nil), m.upnpFinished...)
}

// UpnpNotifies returns every raw UPnP notification delivered to the plugin.
func (m *MockPlugin) UpnpNotifies() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.upnpNotifies...)
}
