// Package netpresence is the built-in network presence driver: it pings
// configured hosts on the shared hub timer and reflects reachability and
// round-trip latency as device states.
package netpresence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hearth-home/hearth/pkg/models"
	"github.com/hearth-home/hearth/pkg/plugin"
	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// Fixed catalog ids. These must never change between releases or configured
// devices stop resolving their class.
var (
	pluginID         = models.PluginID(uuid.MustParse("7c10bba2-5f1e-4ae1-9a4e-1f4f1db5c6b1"))
	vendorID         = models.VendorID(uuid.MustParse("2b4f9d46-4a11-4b07-8fd8-7bbe1a6f0d86"))
	hostClassID      = models.DeviceClassID(uuid.MustParse("0be79a4b-42f9-4736-9f6f-6bdd1eaeb72e"))
	addressParamID   = models.ParamTypeID(uuid.MustParse("f8b52cbe-6f36-4f6a-a4d6-4c8c39dae7a8"))
	reachableID      = models.StateTypeID(uuid.MustParse("5f0c7b56-1dd3-4e85-8a24-4dbe73b3cb18"))
	latencyID        = models.StateTypeID(uuid.MustParse("9a2f5a31-0a94-4e60-b9a9-9d14b3bc54b7"))
	pingCountCfgID   = models.ParamTypeID(uuid.MustParse("3ab7a1e1-41cf-4f45-86a5-0e2fda2f1ad2"))
	pingTimeoutCfgID = models.ParamTypeID(uuid.MustParse("c6f9e9a4-8b7e-4a5e-b0a4-52f3d9b6e881"))
)

const (
	defaultPingCount      = 3
	defaultTimeoutSeconds = 2
)

// Plugin pings its devices once per hub tick.
type Plugin struct {
	plugin.Base

	mu       sync.Mutex
	hosts    map[models.DeviceID]string // device id -> address
	inFlight map[models.DeviceID]bool
	count    int
	timeout  time.Duration
}

// New creates the netpresence plugin.
func New() *Plugin {
	return &Plugin{
		hosts:    make(map[models.DeviceID]string),
		inFlight: make(map[models.DeviceID]bool),
		count:    defaultPingCount,
		timeout:  defaultTimeoutSeconds * time.Second,
	}
}

func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		ID:          pluginID,
		Name:        "netpresence",
		Description: "Presence detection for network hosts via ICMP ping",
		ConfigurationDescription: []models.ParamType{
			{
				ID:      pingCountCfgID,
				Name:    "pingCount",
				Type:    models.ValueTypeInt,
				Min:     models.IntValue(1),
				Max:     models.IntValue(10),
				Default: models.IntValue(defaultPingCount),
			},
			{
				ID:      pingTimeoutCfgID,
				Name:    "timeoutSeconds",
				Type:    models.ValueTypeInt,
				Min:     models.IntValue(1),
				Max:     models.IntValue(30),
				Default: models.IntValue(defaultTimeoutSeconds),
			},
		},
	}
}

func (p *Plugin) SupportedVendors() []models.Vendor {
	return []models.Vendor{
		{ID: vendorID, Name: "Hearth Labs"},
	}
}

func (p *Plugin) SupportedDevices() []models.DeviceClass {
	return []models.DeviceClass{
		{
			ID:               hostClassID,
			PluginID:         pluginID,
			VendorID:         vendorID,
			Name:             "Network Host",
			CreateMethods:    models.CreateMethodUser,
			SetupMethod:      models.SetupMethodJustAdd,
			RequiredHardware: models.HardwareResourceTimer,
			ParamTypes: []models.ParamType{
				{ID: addressParamID, Name: "address", Type: models.ValueTypeString},
			},
			StateTypes: []models.StateType{
				{ID: reachableID, Name: "reachable", Type: models.ValueTypeBool, Default: models.BoolValue(false)},
				{ID: latencyID, Name: "latency", Type: models.ValueTypeDouble, Default: models.DoubleValue(0)},
			},
		},
	}
}

func (p *Plugin) RequiredHardware() models.HardwareResources {
	return models.HardwareResourceTimer
}

func (p *Plugin) SetConfiguration(params models.ParamList) models.DeviceError {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := params.Get("pingCount"); ok {
		if n, ok := v.Int(); ok {
			p.count = int(n)
		}
	}
	if v, ok := params.Get("timeoutSeconds"); ok {
		if n, ok := v.Int(); ok {
			p.timeout = time.Duration(n) * time.Second
		}
	}
	return models.DeviceErrorNoError
}

func (p *Plugin) SetupDevice(device *models.Device) plugin.SetupStatus {
	addr, ok := device.ParamValue("address")
	if !ok {
		return plugin.SetupStatusFailure
	}
	s, ok := addr.Str()
	if !ok || s == "" {
		return plugin.SetupStatusFailure
	}

	p.mu.Lock()
	p.hosts[device.ID()] = s
	p.mu.Unlock()
	return plugin.SetupStatusSuccess
}

func (p *Plugin) DeviceRemoved(device *models.Device) {
	p.mu.Lock()
	delete(p.hosts, device.ID())
	delete(p.inFlight, device.ID())
	p.mu.Unlock()
}

// Tick probes every host. Probes run in their own goroutines so a slow or
// silent host never stalls the shared timer; a host whose previous probe is
// still in flight is skipped this round.
func (p *Plugin) Tick() {
	p.mu.Lock()
	count := p.count
	timeout := p.timeout
	targets := make(map[models.DeviceID]string, len(p.hosts))
	for id, addr := range p.hosts {
		if p.inFlight[id] {
			continue
		}
		p.inFlight[id] = true
		targets[id] = addr
	}
	p.mu.Unlock()

	for id, addr := range targets {
		go p.probe(id, addr, count, timeout)
	}
}

func (p *Plugin) probe(id models.DeviceID, addr string, count int, timeout time.Duration) {
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, id)
		p.mu.Unlock()
	}()

	alive, rtt := pingHost(context.Background(), addr, count, timeout, p.Logger())

	p.mu.Lock()
	_, stillConfigured := p.hosts[id]
	p.mu.Unlock()
	if !stillConfigured {
		return
	}

	p.Emitter().SetStateValue(id, reachableID, models.BoolValue(alive))
	if alive {
		p.Emitter().SetStateValue(id, latencyID, models.DoubleValue(float64(rtt.Microseconds())/1000.0))
	}
}

// pingHost pings a single host and returns whether it is alive.
func pingHost(ctx context.Context, addr string, count int, timeout time.Duration, logger *zap.Logger) (alive bool, rtt time.Duration) {
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		logger.Debug("failed to create pinger", zap.String("addr", addr), zap.Error(err))
		return false, 0
	}

	pinger.Count = count
	pinger.Timeout = timeout

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := pinger.Run(); runErr != nil {
			logger.Debug("ping failed", zap.String("addr", addr), zap.Error(runErr))
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		return false, 0
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv > 0 {
		return true, stats.AvgRtt
	}
	return false, 0
}
