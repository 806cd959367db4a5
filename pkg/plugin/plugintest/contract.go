// Package plugintest provides shared contract tests that verify any
// plugin.DevicePlugin implementation behaves correctly, plus a scriptable
// mock driver for hub-level tests.
package plugintest

import (
	"context"
	"testing"

	"github.com/hearth-home/hearth/pkg/models"
	"github.com/hearth-home/hearth/pkg/plugin"
	"go.uber.org/zap"
)

// TestPluginContract runs a suite of behavioral contract tests against any
// plugin.DevicePlugin implementation. Call this from each driver's _test.go:
//
//	func TestContract(t *testing.T) {
//	    plugintest.TestPluginContract(t, func() plugin.DevicePlugin { return netpresence.New() })
//	}
func TestPluginContract(t *testing.T, factory func() plugin.DevicePlugin) {
	t.Helper()

	t.Run("Info_returns_valid_metadata", func(t *testing.T) {
		p := factory()
		info := p.Info()
		if info.ID.IsZero() {
			t.Error("Info().ID must not be the zero uuid")
		}
		if info.Name == "" {
			t.Error("Info().Name must not be empty")
		}
	})

	t.Run("Init_succeeds_with_valid_deps", func(t *testing.T) {
		p := factory()
		if err := p.Init(context.Background(), testDeps(p.Info().Name)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
	})

	t.Run("declares_at_least_one_vendor", func(t *testing.T) {
		p := factory()
		if len(p.SupportedVendors()) == 0 {
			t.Error("SupportedVendors() must not be empty")
		}
	})

	t.Run("device_classes_reference_declared_vendors", func(t *testing.T) {
		p := factory()
		vendors := map[models.VendorID]bool{}
		for _, v := range p.SupportedVendors() {
			vendors[v.ID] = true
		}
		for _, dc := range p.SupportedDevices() {
			if dc.ID.IsZero() {
				t.Errorf("device class %q has a zero id", dc.Name)
			}
			if !vendors[dc.VendorID] {
				t.Errorf("device class %q references undeclared vendor %s", dc.Name, dc.VendorID)
			}
		}
	})

	t.Run("Info_is_idempotent", func(t *testing.T) {
		p := factory()
		a := p.Info()
		b := p.Info()
		if a.ID != b.ID || a.Name != b.Name {
			t.Error("Info() must return consistent results")
		}
	})
}

func testDeps(name string) plugin.Dependencies {
	logger, _ := zap.NewDevelopment()
	return plugin.Dependencies{
		Logger:  logger.Named(name),
		Emitter: &NopEmitter{},
	}
}

// NopEmitter discards every notification. Useful as a default in tests that
// exercise a driver in isolation.
type NopEmitter struct{}

func (*NopEmitter) DevicesDiscovered(models.DeviceClassID, []models.DeviceDescriptor)   {}
func (*NopEmitter) DeviceSetupFinished(models.DeviceID, plugin.SetupStatus)             {}
func (*NopEmitter) PairingFinished(models.PairingTransactionID, plugin.SetupStatus)     {}
func (*NopEmitter) ActionExecutionFinished(models.ActionID, models.DeviceError)         {}
func (*NopEmitter) AutoDevicesAppeared(models.DeviceClassID, []models.DeviceDescriptor) {}
func (*NopEmitter) EmitEvent(models.Event)                                              {}
func (*NopEmitter) SetStateValue(models.DeviceID, models.StateTypeID, models.Value)     {}
