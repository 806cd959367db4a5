package netpresence

import (
	"context"
	"testing"
	"time"

	"github.com/hearth-home/hearth/pkg/models"
	"github.com/hearth-home/hearth/pkg/plugin"
	"github.com/hearth-home/hearth/pkg/plugin/plugintest"
	"go.uber.org/zap"
)

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.DevicePlugin { return New() })
}

func initialised(t *testing.T) *Plugin {
	t.Helper()
	p := New()
	deps := plugin.Dependencies{
		Logger:  zap.NewNop(),
		Emitter: &plugintest.NopEmitter{},
	}
	if err := p.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return p
}

func hostDevice(t *testing.T, addr string) *models.Device {
	t.Helper()
	d := models.NewDevice(pluginID, models.NewDeviceID(), hostClassID)
	if addr != "" {
		d.SetParams(models.ParamList{{Name: "address", Value: models.StringValue(addr)}})
	}
	return d
}

func TestSetupDevice(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want plugin.SetupStatus
	}{
		{"valid_address", "192.168.1.10", plugin.SetupStatusSuccess},
		{"hostname", "printer.local", plugin.SetupStatusSuccess},
		{"missing_address", "", plugin.SetupStatusFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := initialised(t)
			if got := p.SetupDevice(hostDevice(t, tc.addr)); got != tc.want {
				t.Errorf("SetupDevice = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDeviceRemoved_stops_tracking(t *testing.T) {
	p := initialised(t)
	d := hostDevice(t, "192.168.1.10")

	if got := p.SetupDevice(d); got != plugin.SetupStatusSuccess {
		t.Fatalf("SetupDevice = %v", got)
	}
	p.mu.Lock()
	tracked := len(p.hosts)
	p.mu.Unlock()
	if tracked != 1 {
		t.Fatalf("%d hosts tracked, want 1", tracked)
	}

	p.DeviceRemoved(d)
	p.mu.Lock()
	tracked = len(p.hosts)
	p.mu.Unlock()
	if tracked != 0 {
		t.Errorf("%d hosts tracked after removal, want 0", tracked)
	}
}

func TestSetConfiguration(t *testing.T) {
	p := initialised(t)

	derr := p.SetConfiguration(models.ParamList{
		{Name: "pingCount", Value: models.IntValue(5)},
		{Name: "timeoutSeconds", Value: models.IntValue(10)},
	})
	if !derr.OK() {
		t.Fatalf("SetConfiguration: %s", derr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count != 5 {
		t.Errorf("count = %d, want 5", p.count)
	}
	if p.timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", p.timeout)
	}
}

func TestTick_skips_hosts_with_probe_in_flight(t *testing.T) {
	p := initialised(t)
	d := hostDevice(t, "192.0.2.1") // TEST-NET, never answers
	if got := p.SetupDevice(d); got != plugin.SetupStatusSuccess {
		t.Fatalf("SetupDevice = %v", got)
	}

	p.mu.Lock()
	p.inFlight[d.ID()] = true
	p.mu.Unlock()

	// With the probe marked in flight Tick must not clear or re-add it.
	p.Tick()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inFlight[d.ID()] {
		t.Error("in-flight marker lost")
	}
}
