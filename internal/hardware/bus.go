// Package hardware multiplexes shared hub hardware (the 433/868 MHz radios,
// the global tick timer and UPnP discovery) across driver plugins. Drivers
// never touch transports directly; the bus fans deliveries out to every
// plugin the directory reports as interested.
package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hearth-home/hearth/pkg/models"
	"github.com/hearth-home/hearth/pkg/plugin"
	"go.uber.org/zap"
)

// Directory answers, at delivery time, which plugins a hardware event goes
// to. The hub core implements it; consumers are returned in plugin load
// order and free of duplicates.
type Directory interface {
	RadioConsumers(band models.RadioBand) []plugin.DevicePlugin
	TimerConsumers() []plugin.DevicePlugin
	UpnpConsumers() []plugin.DevicePlugin
}

// RadioTransport is one physical radio. Start delivers received raw frames
// through the callback until Stop.
type RadioTransport interface {
	Band() models.RadioBand
	Start(ctx context.Context, onFrame func(raw []int)) error
	Stop() error
}

// UpnpTransport performs SSDP searches and listens for unsolicited NOTIFY
// datagrams.
type UpnpTransport interface {
	Search(ctx context.Context) ([]plugin.UpnpDeviceDescriptor, error)
	Listen(ctx context.Context, onNotify func(data []byte)) error
	Stop() error
}

// Bus wires the transports to the plugin directory.
type Bus struct {
	dir    Directory
	logger *zap.Logger

	timer  *Timer
	radios map[models.RadioBand]RadioTransport
	upnp   UpnpTransport

	mu        sync.Mutex
	available models.HardwareResources
	started   bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithRadio attaches a radio transport.
func WithRadio(r RadioTransport) Option {
	return func(b *Bus) { b.radios[r.Band()] = r }
}

// WithUpnp attaches the UPnP transport.
func WithUpnp(u UpnpTransport) Option {
	return func(b *Bus) { b.upnp = u }
}

// WithTickInterval overrides the shared timer period.
func WithTickInterval(d time.Duration) Option {
	return func(b *Bus) { b.timer = NewTimer(d, b.deliverTick, b.logger.Named("timer")) }
}

// NewBus creates a bus over the given directory.
func NewBus(dir Directory, logger *zap.Logger, opts ...Option) *Bus {
	b := &Bus{
		dir:    dir,
		logger: logger,
		radios: make(map[models.RadioBand]RadioTransport),
	}
	b.timer = NewTimer(DefaultTickInterval, b.deliverTick, logger.Named("timer"))
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start brings up the attached transports. A transport that fails to start
// is logged and left unavailable; the rest of the hub keeps running. The
// timer is always available.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return fmt.Errorf("hardware bus already started")
	}
	b.started = true
	b.available = models.HardwareResourceTimer

	for band, radio := range b.radios {
		band := band
		err := radio.Start(ctx, func(raw []int) { b.deliverRadio(band, raw) })
		if err != nil {
			b.logger.Warn("radio unavailable",
				zap.Int("band", int(band)),
				zap.Error(err),
			)
			continue
		}
		b.available |= band.Resource()
		b.logger.Info("radio started", zap.Int("band", int(band)))
	}

	if b.upnp != nil {
		if err := b.upnp.Listen(ctx, b.deliverUpnpNotify); err != nil {
			b.logger.Warn("upnp listener unavailable", zap.Error(err))
		} else {
			b.available |= models.HardwareResourceUpnpDiscovery
			b.logger.Info("upnp listener started")
		}
	}
	return nil
}

// Stop shuts down the timer and every transport.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.started = false

	b.timer.Shutdown()
	for band, radio := range b.radios {
		if err := radio.Stop(); err != nil {
			b.logger.Warn("radio stop failed", zap.Int("band", int(band)), zap.Error(err))
		}
	}
	if b.upnp != nil {
		if err := b.upnp.Stop(); err != nil {
			b.logger.Warn("upnp stop failed", zap.Error(err))
		}
	}
}

// Available reports whether every resource in the set is currently usable.
func (b *Bus) Available(res models.HardwareResources) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available&res == res
}

// AddTimerUser registers a device with the shared timer.
func (b *Bus) AddTimerUser(id models.DeviceID) { b.timer.AddUser(id) }

// RemoveTimerUser deregisters a device from the shared timer.
func (b *Bus) RemoveTimerUser(id models.DeviceID) { b.timer.RemoveUser(id) }

// TimerRunning reports whether the shared timer is ticking.
func (b *Bus) TimerRunning() bool { return b.timer.Running() }

// DiscoverUpnp runs an SSDP search in the background and delivers the result
// to the requesting plugin via UpnpDiscoveryFinished.
func (b *Bus) DiscoverUpnp(ctx context.Context, requester plugin.DevicePlugin) models.DeviceError {
	if b.upnp == nil || !b.Available(models.HardwareResourceUpnpDiscovery) {
		return models.DeviceErrorHardwareNotAvailable
	}
	go func() {
		descriptors, err := b.upnp.Search(ctx)
		if err != nil {
			b.logger.Warn("upnp search failed", zap.Error(err))
		}
		b.safeDeliver("upnp discovery finished", func() {
			requester.UpnpDiscoveryFinished(descriptors)
		})
	}()
	return models.DeviceErrorNoError
}

func (b *Bus) deliverTick() {
	for _, p := range b.dir.TimerConsumers() {
		p := p
		b.safeDeliver("tick", p.Tick)
	}
}

func (b *Bus) deliverRadio(band models.RadioBand, raw []int) {
	for _, p := range b.dir.RadioConsumers(band) {
		p := p
		b.safeDeliver("radio frame", func() { p.RadioData(band, raw) })
	}
}

func (b *Bus) deliverUpnpNotify(data []byte) {
	for _, p := range b.dir.UpnpConsumers() {
		p := p
		b.safeDeliver("upnp notify", func() { p.UpnpNotifyReceived(data) })
	}
}

// safeDeliver keeps one panicking driver from killing the delivery loop.
func (b *Bus) safeDeliver(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("plugin panicked during hardware delivery",
				zap.String("delivery", what),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
