package device

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hearth-home/hearth/internal/settings"
	"github.com/hearth-home/hearth/pkg/models"
	"go.uber.org/zap"
)

func tempRegistry(t *testing.T) *Registry {
	t.Helper()
	s, err := settings.Open(filepath.Join(t.TempDir(), "hearth.db"))
	if err != nil {
		t.Fatalf("settings.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, zap.NewNop())
}

func sampleDevice() *models.Device {
	d := models.NewDevice(models.NewPluginID(), models.NewDeviceID(), models.NewDeviceClassID())
	d.SetName("living room lamp")
	d.SetParams(models.ParamList{
		{Name: "address", Value: models.StringValue("192.168.1.20")},
		{Name: "channel", Value: models.IntValue(3)},
	})
	return d
}

func TestAdd_and_Find(t *testing.T) {
	r := tempRegistry(t)
	d := sampleDevice()

	if got := r.Add(d); got != models.DeviceErrorNoError {
		t.Fatalf("Add: %s", got)
	}
	found, ok := r.Find(d.ID())
	if !ok || found != d {
		t.Error("Find did not return the added device")
	}
}

func TestAdd_duplicate_id_refused(t *testing.T) {
	r := tempRegistry(t)
	d := sampleDevice()
	r.Add(d)

	dup := models.NewDevice(models.NewPluginID(), d.ID(), models.NewDeviceClassID())
	if got := r.Add(dup); got != models.DeviceErrorDuplicateUUID {
		t.Errorf("Add duplicate: got %s, want duplicate_uuid", got)
	}
}

func TestRemove(t *testing.T) {
	r := tempRegistry(t)
	d := sampleDevice()
	r.Add(d)

	r.Remove(d.ID())
	if _, ok := r.Find(d.ID()); ok {
		t.Error("device still present after Remove")
	}
	if got := len(r.All()); got != 0 {
		t.Errorf("All() has %d entries after Remove, want 0", got)
	}

	// Removing an unknown id is a no-op.
	r.Remove(models.NewDeviceID())
}

func TestFindByClass_and_FindByPlugin(t *testing.T) {
	r := tempRegistry(t)
	classID := models.NewDeviceClassID()
	pluginID := models.NewPluginID()

	a := models.NewDevice(pluginID, models.NewDeviceID(), classID)
	b := models.NewDevice(pluginID, models.NewDeviceID(), models.NewDeviceClassID())
	c := models.NewDevice(models.NewPluginID(), models.NewDeviceID(), classID)
	for _, d := range []*models.Device{a, b, c} {
		r.Add(d)
	}

	if got := len(r.FindByClass(classID)); got != 2 {
		t.Errorf("FindByClass: got %d, want 2", got)
	}
	if got := len(r.FindByPlugin(pluginID)); got != 2 {
		t.Errorf("FindByPlugin: got %d, want 2", got)
	}
}

func TestSave_and_LoadAll_round_trip(t *testing.T) {
	r := tempRegistry(t)
	ctx := context.Background()
	d := sampleDevice()

	if err := r.Save(ctx, d); err != nil {
		t.Fatalf("Save: %v", err)
	}

	records, err := r.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.ID != d.ID() || rec.PluginID != d.PluginID() || rec.DeviceClassID != d.DeviceClassID() {
		t.Error("persisted ids do not round-trip")
	}
	if rec.Name != d.Name() {
		t.Errorf("name = %q, want %q", rec.Name, d.Name())
	}
	if !rec.Params.Equal(d.Params()) {
		t.Errorf("params = %v, want %v", rec.Params, d.Params())
	}
	if v, _ := rec.Params.Get("channel"); v.Type() != models.ValueTypeInt {
		t.Errorf("channel came back as %s, want int", v.Type())
	}
}

func TestSave_overwrites_previous_row(t *testing.T) {
	r := tempRegistry(t)
	ctx := context.Background()
	d := sampleDevice()
	r.Save(ctx, d)

	d.SetName("renamed")
	d.SetParams(models.ParamList{{Name: "address", Value: models.StringValue("10.0.0.9")}})
	if err := r.Save(ctx, d); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	records, err := r.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Name != "renamed" {
		t.Errorf("name = %q, want %q", records[0].Name, "renamed")
	}
	if len(records[0].Params) != 1 {
		t.Errorf("stale params survived the overwrite: %v", records[0].Params)
	}
}

func TestDeleteConfig(t *testing.T) {
	r := tempRegistry(t)
	ctx := context.Background()
	d := sampleDevice()
	other := sampleDevice()
	r.Save(ctx, d)
	r.Save(ctx, other)

	if err := r.DeleteConfig(ctx, d.ID()); err != nil {
		t.Fatalf("DeleteConfig: %v", err)
	}

	records, err := r.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(records) != 1 || records[0].ID != other.ID() {
		t.Error("DeleteConfig removed the wrong row")
	}
}
