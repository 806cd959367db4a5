// Package orchestrator is the hub core. It owns the configured device set,
// drives discovery, pairing, setup and action dispatch through the driver
// plugins, and publishes every externally visible change on the notification
// bus.
//
// Concurrency model: one mutex serialises all hub state. Driver capability
// calls are made outside the lock; drivers post completions back through the
// Emitter from their own goroutines. Notifications are collected while the
// lock is held and published after it is released, so bus subscribers never
// run under the hub lock.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/hearth-home/hearth/internal/device"
	"github.com/hearth-home/hearth/internal/event"
	"github.com/hearth-home/hearth/internal/hardware"
	"github.com/hearth-home/hearth/internal/registry"
	"github.com/hearth-home/hearth/pkg/models"
	"github.com/hearth-home/hearth/pkg/plugin"
	"go.uber.org/zap"
)

type setupOrigin int

const (
	originAdd setupOrigin = iota
	originLoad
	originPair
	originAuto
)

type pendingSetup struct {
	device *models.Device
	origin setupOrigin
}

type pendingPairing struct {
	classID      models.DeviceClassID
	name         string
	params       models.ParamList
	descriptorID models.DeviceDescriptorID // zero for just-add pairings
}

// Orchestrator is the hub core. Construct with New, attach the hardware bus
// with SetHardware, then call Start exactly once.
type Orchestrator struct {
	host    *registry.Host
	devices *device.Registry
	bus     *event.Bus
	hw      *hardware.Bus
	logger  *zap.Logger
	metrics *coreMetrics

	mu     sync.Mutex
	loaded bool

	// Transient discovery pool: descriptors live from discovery completion
	// until the next discovery for the same class evicts them.
	classDescriptors map[models.DeviceClassID][]models.DeviceDescriptor
	descriptorIndex  map[models.DeviceDescriptorID]models.DeviceDescriptor

	discovering    map[models.PluginID]int
	pendingSetups  map[models.DeviceID]pendingSetup
	pendingPairs   map[models.PairingTransactionID]pendingPairing
	pendingActions map[models.ActionID]bool

	notes []event.Notification // collected under mu, published by flush
}

// New creates an orchestrator over the given plugin host, device registry and
// notification bus.
func New(host *registry.Host, devices *device.Registry, bus *event.Bus, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		host:             host,
		devices:          devices,
		bus:              bus,
		logger:           logger,
		metrics:          newCoreMetrics(),
		classDescriptors: make(map[models.DeviceClassID][]models.DeviceDescriptor),
		descriptorIndex:  make(map[models.DeviceDescriptorID]models.DeviceDescriptor),
		discovering:      make(map[models.PluginID]int),
		pendingSetups:    make(map[models.DeviceID]pendingSetup),
		pendingPairs:     make(map[models.PairingTransactionID]pendingPairing),
		pendingActions:   make(map[models.ActionID]bool),
	}
}

// SetHardware attaches the hardware bus. Must be called before Start; the
// two-step wiring exists because the bus needs the orchestrator as its
// consumer directory.
func (o *Orchestrator) SetHardware(hw *hardware.Bus) { o.hw = hw }

// Deps builds the dependency set for a loading plugin: a named logger, the
// orchestrator as Emitter and a UPnP handle bound to the plugin so search
// results come back to their requester.
func (o *Orchestrator) Deps(info plugin.Info) plugin.Dependencies {
	return plugin.Dependencies{
		Logger:  o.logger.Named("plugin." + info.Name),
		Emitter: o,
		Upnp:    upnpHandle{orch: o, pluginID: info.ID},
	}
}

// upnpHandle routes a plugin's UPnP search requests through the hub.
type upnpHandle struct {
	orch     *Orchestrator
	pluginID models.PluginID
}

func (h upnpHandle) DiscoverUpnp(ctx context.Context) models.DeviceError {
	return h.orch.discoverUpnp(ctx, h.pluginID)
}

// discoverUpnp starts a UPnP search on behalf of a plugin. The result is
// delivered via the plugin's UpnpDiscoveryFinished.
func (o *Orchestrator) discoverUpnp(ctx context.Context, pluginID models.PluginID) models.DeviceError {
	p, ok := o.host.Plugin(pluginID)
	if !ok {
		return models.DeviceErrorPluginNotFound
	}
	if o.hw == nil {
		return models.DeviceErrorHardwareNotAvailable
	}
	return o.hw.DiscoverUpnp(ctx, p)
}

// Start loads the plugins, restores configured devices from the settings
// store, starts auto-device monitoring and the hardware bus, and announces
// the hub as loaded. It must be called exactly once.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.loaded {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.mu.Unlock()

	if err := o.host.LoadAll(ctx, o.Deps); err != nil {
		return fmt.Errorf("load plugins: %w", err)
	}

	if err := o.loadConfiguredDevices(ctx); err != nil {
		return fmt.Errorf("load configured devices: %w", err)
	}

	for _, p := range o.host.All() {
		if hasAutoClass(p) {
			p.StartMonitoringAutoDevices()
		}
	}

	if o.hw != nil {
		if err := o.hw.Start(ctx); err != nil {
			return fmt.Errorf("start hardware: %w", err)
		}
	}

	o.mu.Lock()
	o.loaded = true
	o.note(event.TopicHubLoaded, LoadedPayload{
		Plugins: len(o.host.Plugins()),
		Devices: len(o.devices.All()),
	})
	o.mu.Unlock()
	o.flush(ctx)

	o.logger.Info("hub loaded",
		zap.Int("plugins", len(o.host.Plugins())),
		zap.Int("devices", len(o.devices.All())),
	)
	return nil
}

// Stop shuts down the hardware bus.
func (o *Orchestrator) Stop() {
	if o.hw != nil {
		o.hw.Stop()
	}
}

// loadConfiguredDevices rebuilds the live device set from the settings store
// and runs setup for every restored device. A device whose class vanished
// (plugin removed) still joins the live set, never setup-complete, so its
// configuration and any references to it survive.
func (o *Orchestrator) loadConfiguredDevices(ctx context.Context) error {
	records, err := o.devices.LoadAll(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		d := models.NewDevice(rec.PluginID, rec.ID, rec.DeviceClassID)
		d.SetName(rec.Name)
		d.SetParams(rec.Params)

		// Loaded devices join the live set before setup; a failing setup
		// leaves them present but not setup-complete.
		if derr := o.devices.Add(d); !derr.OK() {
			o.logger.Warn("duplicate device id in store, skipping",
				zap.String("device_id", rec.ID.String()),
			)
			continue
		}

		class := o.host.FindDeviceClass(rec.DeviceClassID)
		if !class.Valid() {
			o.logger.Warn("device class unknown, device stays unconfigured",
				zap.String("device_id", rec.ID.String()),
				zap.String("class_id", rec.DeviceClassID.String()),
			)
			continue
		}

		o.setupAndCommit(ctx, d, class, originLoad)
	}
	o.metrics.devicesConfigured.Set(float64(len(o.devices.All())))
	return nil
}

// Devices returns the configured devices.
func (o *Orchestrator) Devices() []*models.Device { return o.devices.All() }

// Device returns the configured device with the given id.
func (o *Orchestrator) Device(id models.DeviceID) (*models.Device, bool) {
	return o.devices.Find(id)
}

// Descriptors returns the current discovery pool for a class.
func (o *Orchestrator) Descriptors(classID models.DeviceClassID) []models.DeviceDescriptor {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.DeviceDescriptor(nil), o.classDescriptors[classID]...)
}

// note appends a notification; o.mu must be held.
func (o *Orchestrator) note(topic string, payload any) {
	o.notes = append(o.notes, event.Notification{Topic: topic, Payload: payload})
}

// flush publishes collected notifications; o.mu must NOT be held.
func (o *Orchestrator) flush(ctx context.Context) {
	o.mu.Lock()
	notes := o.notes
	o.notes = nil
	o.mu.Unlock()
	for _, n := range notes {
		o.bus.Publish(ctx, n)
	}
}

// hardwareAvailable reports whether every hardware resource in the set is
// currently usable. Used for logging only: missing hardware never blocks a
// device, the driver simply receives no deliveries for that resource.
func (o *Orchestrator) hardwareAvailable(res models.HardwareResources) bool {
	if res == models.HardwareResourceNone {
		return true
	}
	if o.hw == nil {
		return res == models.HardwareResourceTimer
	}
	return o.hw.Available(res)
}

func hasAutoClass(p plugin.DevicePlugin) bool {
	for _, dc := range p.SupportedDevices() {
		if dc.CreateMethods.Has(models.CreateMethodAuto) {
			return true
		}
	}
	return false
}

// RadioConsumers returns, in plugin load order, the plugins a received radio
// frame is delivered to: those that need the band and either drive a
// configured device or have a discovery in flight.
func (o *Orchestrator) RadioConsumers(band models.RadioBand) []plugin.DevicePlugin {
	o.mu.Lock()
	defer o.mu.Unlock()

	var result []plugin.DevicePlugin
	for _, p := range o.host.All() {
		if !p.RequiredHardware().Has(band.Resource()) {
			continue
		}
		id := p.Info().ID
		if o.discovering[id] > 0 || len(o.devices.FindByPlugin(id)) > 0 {
			result = append(result, p)
		}
	}
	return result
}

// TimerConsumers returns the plugins the shared tick is delivered to: those
// that need the timer and drive at least one configured device.
func (o *Orchestrator) TimerConsumers() []plugin.DevicePlugin {
	var result []plugin.DevicePlugin
	for _, p := range o.host.All() {
		if !p.RequiredHardware().Has(models.HardwareResourceTimer) {
			continue
		}
		if len(o.devices.FindByPlugin(p.Info().ID)) > 0 {
			result = append(result, p)
		}
	}
	return result
}

// UpnpConsumers returns the plugins unsolicited UPnP notifications go to.
func (o *Orchestrator) UpnpConsumers() []plugin.DevicePlugin {
	var result []plugin.DevicePlugin
	for _, p := range o.host.All() {
		if p.RequiredHardware().Has(models.HardwareResourceUpnpDiscovery) {
			result = append(result, p)
		}
	}
	return result
}
