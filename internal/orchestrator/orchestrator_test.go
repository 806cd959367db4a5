package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hearth-home/hearth/internal/device"
	"github.com/hearth-home/hearth/internal/event"
	"github.com/hearth-home/hearth/internal/hardware"
	"github.com/hearth-home/hearth/internal/registry"
	"github.com/hearth-home/hearth/internal/settings"
	"github.com/hearth-home/hearth/pkg/models"
	"github.com/hearth-home/hearth/pkg/plugin"
	"github.com/hearth-home/hearth/pkg/plugin/plugintest"
	"go.uber.org/zap"
)

// recorder captures bus notifications for assertions.
type recorder struct {
	mu    sync.Mutex
	notes []event.Notification
}

func (r *recorder) handle(_ context.Context, n event.Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notes))
	for i, n := range r.notes {
		out[i] = n.Topic
	}
	return out
}

func (r *recorder) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, n := range r.notes {
		if n.Topic == topic {
			c++
		}
	}
	return c
}

func (r *recorder) last(topic string) (event.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notes) - 1; i >= 0; i-- {
		if r.notes[i].Topic == topic {
			return r.notes[i], true
		}
	}
	return event.Notification{}, false
}

func (r *recorder) waitFor(t *testing.T, topic string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.count(topic) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q notifications, have %d", want, topic, r.count(topic))
}

type hub struct {
	orch  *Orchestrator
	rec   *recorder
	store *settings.Store
}

// newHub wires a full core over a temp store and starts it.
func newHub(t *testing.T, store *settings.Store, plugins ...plugin.DevicePlugin) *hub {
	t.Helper()
	logger := zap.NewNop()

	host := registry.New(store, logger)
	for _, p := range plugins {
		host.Register(p)
	}
	devices := device.New(store, logger)
	bus := event.NewBus(logger)
	rec := &recorder{}
	bus.SubscribeAll(rec.handle)

	o := New(host, devices, bus, logger)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return &hub{orch: o, rec: rec, store: store}
}

func tempStore(t *testing.T) *settings.Store {
	t.Helper()
	s, err := settings.Open(filepath.Join(t.TempDir(), "hearth.db"))
	if err != nil {
		t.Fatalf("settings.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// lampPlugin returns a mock whose class has an address param, a power state
// and a toggle action.
func lampPlugin() (*plugintest.MockPlugin, models.StateTypeID, models.ActionTypeID) {
	m := plugintest.NewMockPlugin()
	stateID := models.NewStateTypeID()
	actionID := models.NewActionTypeID()
	m.Classes[0].CreateMethods = models.CreateMethodUser | models.CreateMethodDiscovery
	m.Classes[0].ParamTypes = []models.ParamType{
		{ID: models.NewParamTypeID(), Name: "address", Type: models.ValueTypeString},
	}
	m.Classes[0].StateTypes = []models.StateType{
		{ID: stateID, Name: "power", Type: models.ValueTypeBool, Default: models.BoolValue(false)},
	}
	m.Classes[0].ActionTypes = []models.ActionType{
		{ID: actionID, Name: "toggle"},
	}
	return m, stateID, actionID
}

func addressParams(addr string) models.ParamList {
	return models.ParamList{{Name: "address", Value: models.StringValue(addr)}}
}

func TestAddConfiguredDevice_sync_success(t *testing.T) {
	mock, _, _ := lampPlugin()
	h := newHub(t, tempStore(t), mock)
	classID := mock.Classes[0].ID

	id, derr := h.orch.AddConfiguredDevice(context.Background(), classID, "lamp", addressParams("10.0.0.5"), models.DeviceID{})
	if !derr.OK() {
		t.Fatalf("AddConfiguredDevice: %s", derr)
	}

	d, ok := h.orch.Device(id)
	if !ok {
		t.Fatal("device not in live set")
	}
	if !d.SetupComplete() {
		t.Error("device not setup-complete after sync success")
	}
	if v, _ := d.StateValue(mock.Classes[0].StateTypes[0].ID); !v.Equal(models.BoolValue(false)) {
		t.Error("state default not materialised")
	}
	if n, ok := h.rec.last(event.TopicDeviceSetupFinished); !ok {
		t.Error("no setup-finished notification for sync success")
	} else if p := n.Payload.(SetupFinishedPayload); !p.Error.OK() || p.DeviceID != id {
		t.Errorf("setup-finished payload = %+v", p)
	}
	if len(mock.SetupCalls()) != 1 {
		t.Errorf("driver saw %d setup calls, want 1", len(mock.SetupCalls()))
	}
}

func TestAddConfiguredDevice_validation_errors(t *testing.T) {
	mock, _, _ := lampPlugin()
	h := newHub(t, tempStore(t), mock)
	ctx := context.Background()
	classID := mock.Classes[0].ID

	tests := []struct {
		name    string
		classID models.DeviceClassID
		params  models.ParamList
		want    models.DeviceError
	}{
		{"unknown_class", models.NewDeviceClassID(), nil, models.DeviceErrorDeviceClassNotFound},
		{"missing_param", classID, nil, models.DeviceErrorMissingParameter},
		{"unknown_param", classID, models.ParamList{{Name: "bogus", Value: models.IntValue(1)}}, models.DeviceErrorInvalidParameter},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, got := h.orch.AddConfiguredDevice(ctx, tc.classID, "x", tc.params, models.DeviceID{}); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}

	if len(mock.SetupCalls()) != 0 {
		t.Error("driver saw setup despite failed validation")
	}
}

func TestAddConfiguredDevice_duplicate_id(t *testing.T) {
	mock, _, _ := lampPlugin()
	h := newHub(t, tempStore(t), mock)
	ctx := context.Background()
	classID := mock.Classes[0].ID

	id, derr := h.orch.AddConfiguredDevice(ctx, classID, "one", addressParams("a"), models.DeviceID{})
	if !derr.OK() {
		t.Fatal(derr)
	}
	if _, got := h.orch.AddConfiguredDevice(ctx, classID, "two", addressParams("b"), id); got != models.DeviceErrorDuplicateUUID {
		t.Errorf("got %s, want duplicate_uuid", got)
	}
}

func TestAddConfiguredDevice_sync_failure(t *testing.T) {
	mock, _, _ := lampPlugin()
	mock.SetupReply = plugin.SetupStatusFailure
	h := newHub(t, tempStore(t), mock)

	_, derr := h.orch.AddConfiguredDevice(context.Background(), mock.Classes[0].ID, "lamp", addressParams("a"), models.DeviceID{})
	if derr != models.DeviceErrorSetupFailed {
		t.Fatalf("got %s, want setup_failed", derr)
	}
	if len(h.orch.Devices()) != 0 {
		t.Error("failed device entered the live set")
	}
	if n, ok := h.rec.last(event.TopicDeviceSetupFinished); !ok {
		t.Error("no setup-finished notification on failure")
	} else if n.Payload.(SetupFinishedPayload).Error.OK() {
		t.Error("failure reported as success")
	}
}

func TestAddConfiguredDevice_async_setup(t *testing.T) {
	mock, _, _ := lampPlugin()
	mock.SetupReply = plugin.SetupStatusAsync
	h := newHub(t, tempStore(t), mock)
	ctx := context.Background()

	id, derr := h.orch.AddConfiguredDevice(ctx, mock.Classes[0].ID, "lamp", addressParams("a"), models.DeviceID{})
	if !derr.Async() {
		t.Fatalf("got %s, want async", derr)
	}
	if _, ok := h.orch.Device(id); ok {
		t.Error("device configured before async setup finished")
	}

	// Driver completes from its own goroutine.
	go mock.Emitter().DeviceSetupFinished(id, plugin.SetupStatusSuccess)
	h.rec.waitFor(t, event.TopicDeviceSetupFinished, 1)

	d, ok := h.orch.Device(id)
	if !ok {
		t.Fatal("device missing after async success")
	}
	if !d.SetupComplete() {
		t.Error("device not setup-complete")
	}
}

func TestDeviceSetupFinished_unmatched_is_dropped(t *testing.T) {
	mock, _, _ := lampPlugin()
	h := newHub(t, tempStore(t), mock)

	mock.Emitter().DeviceSetupFinished(models.NewDeviceID(), plugin.SetupStatusSuccess)

	if got := h.rec.count(event.TopicDeviceSetupFinished); got != 0 {
		t.Errorf("unmatched completion produced %d notifications", got)
	}
	if len(h.orch.Devices()) != 0 {
		t.Error("unmatched completion created a device")
	}
}

func TestDiscoverDevices_sync(t *testing.T) {
	mock, _, _ := lampPlugin()
	mock.DiscoverDescriptors = []models.DeviceDescriptor{
		{Title: "lamp in the hall", Params: addressParams("10.0.0.9")},
	}
	h := newHub(t, tempStore(t), mock)
	ctx := context.Background()
	classID := mock.Classes[0].ID

	if derr := h.orch.DiscoverDevices(ctx, classID, nil); !derr.OK() {
		t.Fatalf("DiscoverDevices: %s", derr)
	}

	descriptors := h.orch.Descriptors(classID)
	if len(descriptors) != 1 {
		t.Fatalf("pool has %d descriptors, want 1", len(descriptors))
	}
	if descriptors[0].ID.IsZero() {
		t.Error("descriptor id not minted")
	}
	if h.rec.count(event.TopicDeviceDiscovered) != 1 {
		t.Error("no device.discovered notification")
	}

	// Adding from the descriptor configures the device with its params.
	id, derr := h.orch.AddConfiguredDeviceFromDescriptor(ctx, classID, "", descriptors[0].ID, models.DeviceID{})
	if !derr.OK() {
		t.Fatalf("AddConfiguredDeviceFromDescriptor: %s", derr)
	}
	d, _ := h.orch.Device(id)
	if d.Name() != "lamp in the hall" {
		t.Errorf("name = %q, want the descriptor title", d.Name())
	}
	if v, _ := d.ParamValue("address"); !v.Equal(models.StringValue("10.0.0.9")) {
		t.Error("descriptor params not applied")
	}
}

func TestDiscoverDevices_async_and_eviction(t *testing.T) {
	mock, _, _ := lampPlugin()
	mock.DiscoverReply = models.DeviceErrorAsync
	h := newHub(t, tempStore(t), mock)
	ctx := context.Background()
	classID := mock.Classes[0].ID

	if derr := h.orch.DiscoverDevices(ctx, classID, nil); !derr.Async() {
		t.Fatalf("got %s, want async", derr)
	}

	go mock.Emitter().DevicesDiscovered(classID, []models.DeviceDescriptor{
		{Title: "first", Params: addressParams("a")},
	})
	h.rec.waitFor(t, event.TopicDeviceDiscovered, 1)
	firstID := h.orch.Descriptors(classID)[0].ID

	// A second discovery evicts the previous pool for the class.
	if derr := h.orch.DiscoverDevices(ctx, classID, nil); !derr.Async() {
		t.Fatal("second discovery not async")
	}
	go mock.Emitter().DevicesDiscovered(classID, []models.DeviceDescriptor{
		{Title: "second", Params: addressParams("b")},
	})
	h.rec.waitFor(t, event.TopicDeviceDiscovered, 2)

	descriptors := h.orch.Descriptors(classID)
	if len(descriptors) != 1 || descriptors[0].Title != "second" {
		t.Fatalf("pool after eviction = %+v", descriptors)
	}
	if _, derr := h.orch.AddConfiguredDeviceFromDescriptor(ctx, classID, "", firstID, models.DeviceID{}); derr != models.DeviceErrorDeviceDescriptorNotFound {
		t.Errorf("evicted descriptor usable: %s", derr)
	}
}

func TestDevicesDiscovered_unmatched_is_dropped(t *testing.T) {
	mock, _, _ := lampPlugin()
	h := newHub(t, tempStore(t), mock)

	mock.Emitter().DevicesDiscovered(mock.Classes[0].ID, []models.DeviceDescriptor{{Title: "ghost"}})

	if got := h.rec.count(event.TopicDeviceDiscovered); got != 0 {
		t.Errorf("unmatched discovery produced %d notifications", got)
	}
	if len(h.orch.Descriptors(mock.Classes[0].ID)) != 0 {
		t.Error("unmatched discovery filled the pool")
	}
}

func TestDiscoverDevices_requires_discovery_method(t *testing.T) {
	mock := plugintest.NewMockPlugin() // user-create only
	h := newHub(t, tempStore(t), mock)

	if derr := h.orch.DiscoverDevices(context.Background(), mock.Classes[0].ID, nil); derr != models.DeviceErrorCreationMethodNotSupported {
		t.Errorf("got %s, want creation_method_not_supported", derr)
	}
}

func pairingPlugin() *plugintest.MockPlugin {
	m := plugintest.NewMockPlugin()
	m.Classes[0].SetupMethod = models.SetupMethodPushButton
	m.Classes[0].ParamTypes = []models.ParamType{
		{ID: models.NewParamTypeID(), Name: "address", Type: models.ValueTypeString},
	}
	return m
}

func TestPairing_sync_success(t *testing.T) {
	mock := pairingPlugin()
	h := newHub(t, tempStore(t), mock)
	ctx := context.Background()
	classID := mock.Classes[0].ID

	tx, method, derr := h.orch.PairDevice(ctx, classID, "button lamp", addressParams("a"))
	if !derr.OK() {
		t.Fatalf("PairDevice: %s", derr)
	}
	if method != models.SetupMethodPushButton {
		t.Errorf("setup method = %s", method)
	}

	if derr := h.orch.ConfirmPairing(ctx, tx, ""); !derr.OK() {
		t.Fatalf("ConfirmPairing: %s", derr)
	}

	// pairing.finished precedes device.setup_finished.
	topics := h.rec.topics()
	pairIdx, setupIdx := -1, -1
	for i, topic := range topics {
		if topic == event.TopicPairingFinished && pairIdx == -1 {
			pairIdx = i
		}
		if topic == event.TopicDeviceSetupFinished && setupIdx == -1 {
			setupIdx = i
		}
	}
	if pairIdx == -1 || setupIdx == -1 || pairIdx > setupIdx {
		t.Errorf("notification order = %v, want pairing.finished before device.setup_finished", topics)
	}

	devices := h.orch.Devices()
	if len(devices) != 1 {
		t.Fatalf("%d devices after pairing, want 1", len(devices))
	}
	if !devices[0].SetupComplete() {
		t.Error("paired device not setup-complete")
	}

	// pairing.finished names the device the pairing produced.
	n, _ := h.rec.last(event.TopicPairingFinished)
	if p := n.Payload.(PairingFinishedPayload); !p.Error.OK() || p.DeviceID != devices[0].ID() {
		t.Errorf("pairing.finished payload = %+v, want device %s", p, devices[0].ID())
	}

	// The transaction is spent.
	if derr := h.orch.ConfirmPairing(ctx, tx, ""); derr != models.DeviceErrorPairingTransactionIDNotFound {
		t.Errorf("reused transaction: %s", derr)
	}
}

func TestPairing_sync_failure(t *testing.T) {
	mock := pairingPlugin()
	mock.ConfirmReply = plugin.SetupStatusFailure
	h := newHub(t, tempStore(t), mock)
	ctx := context.Background()

	tx, _, _ := h.orch.PairDevice(ctx, mock.Classes[0].ID, "x", addressParams("a"))
	if derr := h.orch.ConfirmPairing(ctx, tx, "wrong"); derr != models.DeviceErrorSetupFailed {
		t.Fatalf("got %s, want setup_failed", derr)
	}
	if len(h.orch.Devices()) != 0 {
		t.Error("failed pairing configured a device")
	}
	if n, _ := h.rec.last(event.TopicPairingFinished); n.Payload.(PairingFinishedPayload).Error.OK() {
		t.Error("failed pairing reported as success")
	}
}

func TestPairing_async(t *testing.T) {
	mock := pairingPlugin()
	mock.ConfirmReply = plugin.SetupStatusAsync
	h := newHub(t, tempStore(t), mock)
	ctx := context.Background()

	tx, _, _ := h.orch.PairDevice(ctx, mock.Classes[0].ID, "x", addressParams("a"))
	if derr := h.orch.ConfirmPairing(ctx, tx, "1234"); !derr.Async() {
		t.Fatalf("got %s, want async", derr)
	}

	go mock.Emitter().PairingFinished(tx, plugin.SetupStatusSuccess)
	h.rec.waitFor(t, event.TopicDeviceSetupFinished, 1)

	if len(h.orch.Devices()) != 1 {
		t.Fatal("async pairing did not configure the device")
	}
}

func TestPairing_rejects_just_add_class(t *testing.T) {
	mock, _, _ := lampPlugin()
	h := newHub(t, tempStore(t), mock)

	_, _, derr := h.orch.PairDevice(context.Background(), mock.Classes[0].ID, "x", addressParams("a"))
	if derr != models.DeviceErrorSetupMethodNotSupported {
		t.Errorf("got %s, want setup_method_not_supported", derr)
	}
}

func TestConfirmPairing_unknown_transaction(t *testing.T) {
	mock := pairingPlugin()
	h := newHub(t, tempStore(t), mock)

	if derr := h.orch.ConfirmPairing(context.Background(), models.NewPairingTransactionID(), ""); derr != models.DeviceErrorPairingTransactionIDNotFound {
		t.Errorf("got %s, want pairing_transaction_not_found", derr)
	}
}

func TestExecuteAction(t *testing.T) {
	mock, _, actionTypeID := lampPlugin()
	h := newHub(t, tempStore(t), mock)
	ctx := context.Background()

	id, _ := h.orch.AddConfiguredDevice(ctx, mock.Classes[0].ID, "lamp", addressParams("a"), models.DeviceID{})

	t.Run("sync_ok", func(t *testing.T) {
		action := models.Action{ActionTypeID: actionTypeID, DeviceID: id}
		if derr := h.orch.ExecuteAction(ctx, action); !derr.OK() {
			t.Fatalf("ExecuteAction: %s", derr)
		}
		if len(mock.ActionCalls()) != 1 {
			t.Error("driver did not see the action")
		}
	})

	t.Run("unknown_device", func(t *testing.T) {
		action := models.Action{ActionTypeID: actionTypeID, DeviceID: models.NewDeviceID()}
		if derr := h.orch.ExecuteAction(ctx, action); derr != models.DeviceErrorDeviceNotFound {
			t.Errorf("got %s, want device_not_found", derr)
		}
	})

	t.Run("unknown_action_type", func(t *testing.T) {
		action := models.Action{ActionTypeID: models.NewActionTypeID(), DeviceID: id}
		if derr := h.orch.ExecuteAction(ctx, action); derr != models.DeviceErrorActionTypeNotFound {
			t.Errorf("got %s, want action_type_not_found", derr)
		}
	})

	t.Run("async_completion", func(t *testing.T) {
		mock.ActionReply = models.DeviceErrorAsync
		defer func() { mock.ActionReply = models.DeviceErrorNoError }()

		actionID := models.NewActionID()
		action := models.Action{ID: actionID, ActionTypeID: actionTypeID, DeviceID: id}
		if derr := h.orch.ExecuteAction(ctx, action); !derr.Async() {
			t.Fatal("want async")
		}

		go mock.Emitter().ActionExecutionFinished(actionID, models.DeviceErrorNoError)
		h.rec.waitFor(t, event.TopicActionFinished, 1)

		n, _ := h.rec.last(event.TopicActionFinished)
		p := n.Payload.(ActionFinishedPayload)
		if p.ActionID != actionID || !p.Error.OK() {
			t.Errorf("action.finished payload = %+v", p)
		}
	})

	t.Run("unmatched_completion_dropped", func(t *testing.T) {
		before := h.rec.count(event.TopicActionFinished)
		mock.Emitter().ActionExecutionFinished(models.NewActionID(), models.DeviceErrorNoError)
		if got := h.rec.count(event.TopicActionFinished); got != before {
			t.Error("unmatched action completion produced a notification")
		}
	})
}

func TestSetStateValue_state_change_and_synthetic_event(t *testing.T) {
	mock, stateTypeID, _ := lampPlugin()
	h := newHub(t, tempStore(t), mock)
	ctx := context.Background()

	id, _ := h.orch.AddConfiguredDevice(ctx, mock.Classes[0].ID, "lamp", addressParams("a"), models.DeviceID{})

	mock.Emitter().SetStateValue(id, stateTypeID, models.BoolValue(true))

	if got := h.rec.count(event.TopicDeviceStateChanged); got != 1 {
		t.Fatalf("%d state-changed notifications, want 1", got)
	}
	n, _ := h.rec.last(event.TopicDeviceEvent)
	ev := n.Payload.(models.Event)
	if !ev.StateDerived {
		t.Error("synthetic event not marked state-derived")
	}
	if ev.EventTypeID != models.EventTypeID(stateTypeID) {
		t.Error("synthetic event id differs from state type id")
	}
	if v, _ := ev.Params.Get("value"); !v.Equal(models.BoolValue(true)) {
		t.Error("synthetic event value param wrong")
	}

	// Same value again: no change, no notification.
	mock.Emitter().SetStateValue(id, stateTypeID, models.BoolValue(true))
	if got := h.rec.count(event.TopicDeviceStateChanged); got != 1 {
		t.Errorf("unchanged state produced a notification (%d total)", got)
	}

	d, _ := h.orch.Device(id)
	if v, _ := d.StateValue(stateTypeID); !v.Equal(models.BoolValue(true)) {
		t.Error("state value not applied")
	}
}

func TestRemoveConfiguredDevice(t *testing.T) {
	mock, _, _ := lampPlugin()
	store := tempStore(t)
	h := newHub(t, store, mock)
	ctx := context.Background()

	id, _ := h.orch.AddConfiguredDevice(ctx, mock.Classes[0].ID, "lamp", addressParams("a"), models.DeviceID{})

	if derr := h.orch.RemoveConfiguredDevice(ctx, id); !derr.OK() {
		t.Fatalf("RemoveConfiguredDevice: %s", derr)
	}
	if _, ok := h.orch.Device(id); ok {
		t.Error("device still live after removal")
	}
	if got := mock.RemovedCalls(); len(got) != 1 || got[0] != id {
		t.Error("driver not told about the removal")
	}
	if h.rec.count(event.TopicDeviceRemoved) != 1 {
		t.Error("no device.removed notification")
	}
	if derr := h.orch.RemoveConfiguredDevice(ctx, id); derr != models.DeviceErrorDeviceNotFound {
		t.Errorf("double removal: %s", derr)
	}
}

func TestDevices_persist_across_restart(t *testing.T) {
	mock, _, _ := lampPlugin()
	store := tempStore(t)
	h := newHub(t, store, mock)
	ctx := context.Background()

	id, _ := h.orch.AddConfiguredDevice(ctx, mock.Classes[0].ID, "lamp", addressParams("10.1.1.1"), models.DeviceID{})

	// Second hub over the same store and the same catalog.
	reborn, _, _ := lampPlugin()
	reborn.Meta = mock.Meta
	reborn.Classes = mock.Classes
	reborn.Vendors = mock.Vendors
	h2 := newHub(t, store, reborn)

	d, ok := h2.orch.Device(id)
	if !ok {
		t.Fatal("device not restored after restart")
	}
	if d.Name() != "lamp" {
		t.Errorf("restored name = %q", d.Name())
	}
	if v, _ := d.ParamValue("address"); !v.Equal(models.StringValue("10.1.1.1")) {
		t.Error("restored params wrong")
	}
	if !d.SetupComplete() {
		t.Error("restored device not set up")
	}
	if got := len(reborn.SetupCalls()); got != 1 {
		t.Errorf("driver saw %d setup calls during restore, want 1", got)
	}
}

func TestLoad_keeps_device_whose_setup_fails(t *testing.T) {
	mock, _, _ := lampPlugin()
	store := tempStore(t)
	h := newHub(t, store, mock)
	ctx := context.Background()

	id, _ := h.orch.AddConfiguredDevice(ctx, mock.Classes[0].ID, "lamp", addressParams("a"), models.DeviceID{})

	reborn, _, _ := lampPlugin()
	reborn.Meta = mock.Meta
	reborn.Classes = mock.Classes
	reborn.Vendors = mock.Vendors
	reborn.SetupReply = plugin.SetupStatusFailure
	h2 := newHub(t, store, reborn)

	d, ok := h2.orch.Device(id)
	if !ok {
		t.Fatal("loaded device dropped because setup failed")
	}
	if d.SetupComplete() {
		t.Error("failed setup marked complete")
	}
}

func TestAutoDevicesAppeared(t *testing.T) {
	mock := plugintest.NewMockPlugin()
	mock.Classes[0].CreateMethods = models.CreateMethodAuto
	h := newHub(t, tempStore(t), mock)
	classID := mock.Classes[0].ID

	if got := mock.MonitorCalls(); got != 1 {
		t.Fatalf("StartMonitoringAutoDevices called %d times, want 1", got)
	}

	params := models.ParamList{{Name: "serial", Value: models.StringValue("A1")}}
	mock.Emitter().AutoDevicesAppeared(classID, []models.DeviceDescriptor{{Title: "sensor", Params: params}})

	devices := h.orch.Devices()
	if len(devices) != 1 {
		t.Fatalf("%d devices after auto appearance, want 1", len(devices))
	}

	// The same candidate appearing again is already configured.
	mock.Emitter().AutoDevicesAppeared(classID, []models.DeviceDescriptor{{Title: "sensor", Params: params}})
	if got := len(h.orch.Devices()); got != 1 {
		t.Errorf("duplicate auto device configured (%d devices)", got)
	}
}

func TestAddConfiguredDevice_missing_hardware_warns_only(t *testing.T) {
	mock, _, _ := lampPlugin()
	mock.Hardware = models.HardwareResourceRadio433
	mock.Classes[0].RequiredHardware = models.HardwareResourceRadio433
	h := newHub(t, tempStore(t), mock) // no hardware bus attached

	id, derr := h.orch.AddConfiguredDevice(context.Background(), mock.Classes[0].ID, "remote", addressParams("a"), models.DeviceID{})
	if !derr.OK() {
		t.Fatalf("missing radio blocked device creation: %s", derr)
	}
	if _, ok := h.orch.Device(id); !ok {
		t.Fatal("device not configured")
	}
	if len(mock.SetupCalls()) != 1 {
		t.Errorf("driver saw %d setup calls, want 1", len(mock.SetupCalls()))
	}
}

func TestDiscoverDevices_params_are_optional(t *testing.T) {
	mock, _, _ := lampPlugin()
	mock.Classes[0].DiscoveryParamTypes = []models.ParamType{
		{ID: models.NewParamTypeID(), Name: "timeout", Type: models.ValueTypeInt},
	}
	h := newHub(t, tempStore(t), mock)

	if derr := h.orch.DiscoverDevices(context.Background(), mock.Classes[0].ID, nil); !derr.OK() {
		t.Fatalf("discovery without optional params: %s", derr)
	}
	if len(mock.DiscoverCalls()) != 1 {
		t.Error("driver not asked to discover")
	}
}

func TestDescriptor_consumed_by_add(t *testing.T) {
	mock, _, _ := lampPlugin()
	mock.DiscoverDescriptors = []models.DeviceDescriptor{
		{Title: "lamp", Params: addressParams("a")},
	}
	h := newHub(t, tempStore(t), mock)
	ctx := context.Background()
	classID := mock.Classes[0].ID

	if derr := h.orch.DiscoverDevices(ctx, classID, nil); !derr.OK() {
		t.Fatal(derr)
	}
	descriptorID := h.orch.Descriptors(classID)[0].ID

	if _, derr := h.orch.AddConfiguredDeviceFromDescriptor(ctx, classID, "", descriptorID, models.DeviceID{}); !derr.OK() {
		t.Fatal(derr)
	}
	if len(h.orch.Descriptors(classID)) != 0 {
		t.Error("consumed descriptor still in the pool")
	}
	if _, derr := h.orch.AddConfiguredDeviceFromDescriptor(ctx, classID, "", descriptorID, models.DeviceID{}); derr != models.DeviceErrorDeviceDescriptorNotFound {
		t.Errorf("spent descriptor produced a second device: %s", derr)
	}
	if got := len(h.orch.Devices()); got != 1 {
		t.Errorf("%d devices, want 1", got)
	}
}

func TestAddConfiguredDeviceFromDescriptor_explicit_id(t *testing.T) {
	mock, _, _ := lampPlugin()
	mock.DiscoverDescriptors = []models.DeviceDescriptor{
		{Title: "lamp", Params: addressParams("a")},
	}
	h := newHub(t, tempStore(t), mock)
	ctx := context.Background()
	classID := mock.Classes[0].ID

	if derr := h.orch.DiscoverDevices(ctx, classID, nil); !derr.OK() {
		t.Fatal(derr)
	}
	want := models.NewDeviceID()
	got, derr := h.orch.AddConfiguredDeviceFromDescriptor(ctx, classID, "", h.orch.Descriptors(classID)[0].ID, want)
	if !derr.OK() {
		t.Fatalf("AddConfiguredDeviceFromDescriptor: %s", derr)
	}
	if got != want {
		t.Errorf("device id = %s, want the caller-supplied %s", got, want)
	}
}

func TestLoad_keeps_device_of_unknown_class(t *testing.T) {
	mock, _, _ := lampPlugin()
	store := tempStore(t)
	h := newHub(t, store, mock)
	ctx := context.Background()

	id, _ := h.orch.AddConfiguredDevice(ctx, mock.Classes[0].ID, "lamp", addressParams("a"), models.DeviceID{})
	if _, ok := h.orch.Device(id); !ok {
		t.Fatal("device not configured")
	}

	// Same plugin id, but the catalog changed underneath the stored device.
	reborn := plugintest.NewMockPlugin()
	reborn.Meta = mock.Meta
	h2 := newHub(t, store, reborn)

	d, ok := h2.orch.Device(id)
	if !ok {
		t.Fatal("device of vanished class dropped from the live set")
	}
	if d.SetupComplete() {
		t.Error("device without a class marked setup-complete")
	}
	if len(reborn.SetupCalls()) != 0 {
		t.Error("driver asked to set up a device of unknown class")
	}
}

func TestRemove_cancels_pending_setup(t *testing.T) {
	mock, _, _ := lampPlugin()
	store := tempStore(t)
	h := newHub(t, store, mock)
	ctx := context.Background()

	id, _ := h.orch.AddConfiguredDevice(ctx, mock.Classes[0].ID, "lamp", addressParams("a"), models.DeviceID{})

	// Restored devices are live while their async setup is still open.
	reborn, _, _ := lampPlugin()
	reborn.Meta = mock.Meta
	reborn.Classes = mock.Classes
	reborn.SetupReply = plugin.SetupStatusAsync
	h2 := newHub(t, store, reborn)

	if derr := h2.orch.RemoveConfiguredDevice(ctx, id); !derr.OK() {
		t.Fatalf("RemoveConfiguredDevice: %s", derr)
	}

	// A late driver completion must not resurrect the device.
	reborn.Emitter().DeviceSetupFinished(id, plugin.SetupStatusSuccess)
	if got := h2.rec.count(event.TopicDeviceSetupFinished); got != 0 {
		t.Errorf("late completion produced %d setup-finished notifications", got)
	}
	if _, ok := h2.orch.Device(id); ok {
		t.Error("removed device resurrected by late setup completion")
	}
}

func TestUpnpDiscovery_without_transport(t *testing.T) {
	mock, _, _ := lampPlugin()
	mock.Hardware = models.HardwareResourceUpnpDiscovery
	newHub(t, tempStore(t), mock)

	if derr := mock.Upnp().DiscoverUpnp(context.Background()); derr != models.DeviceErrorHardwareNotAvailable {
		t.Errorf("got %s, want hardware_not_available", derr)
	}
}

type fakeUpnpTransport struct {
	results []plugin.UpnpDeviceDescriptor
}

func (f *fakeUpnpTransport) Search(context.Context) ([]plugin.UpnpDeviceDescriptor, error) {
	return f.results, nil
}
func (f *fakeUpnpTransport) Listen(context.Context, func(data []byte)) error { return nil }
func (f *fakeUpnpTransport) Stop() error                                     { return nil }

func TestUpnpDiscovery_roundtrip(t *testing.T) {
	mock, _, _ := lampPlugin()
	mock.Hardware = models.HardwareResourceUpnpDiscovery
	transport := &fakeUpnpTransport{
		results: []plugin.UpnpDeviceDescriptor{
			{Location: "http://10.0.0.7:1400/desc.xml", USN: "uuid:abc"},
		},
	}

	logger := zap.NewNop()
	store := tempStore(t)
	host := registry.New(store, logger)
	host.Register(mock)
	o := New(host, device.New(store, logger), event.NewBus(logger), logger)
	o.SetHardware(hardware.NewBus(o, logger, hardware.WithUpnp(transport)))
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(o.Stop)

	if derr := mock.Upnp().DiscoverUpnp(context.Background()); !derr.OK() {
		t.Fatalf("DiscoverUpnp: %s", derr)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if batches := mock.UpnpFinished(); len(batches) == 1 {
			if len(batches[0]) != 1 || batches[0][0].USN != "uuid:abc" {
				t.Fatalf("delivered batch = %+v", batches[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for the discovery result")
}

func TestStart_publishes_loaded_once(t *testing.T) {
	mock := plugintest.NewMockPlugin()
	h := newHub(t, tempStore(t), mock)

	if got := h.rec.count(event.TopicHubLoaded); got != 1 {
		t.Fatalf("%d hub.loaded notifications, want 1", got)
	}
	if err := h.orch.Start(context.Background()); err == nil {
		t.Error("second Start did not fail")
	}
	if got := h.rec.count(event.TopicHubLoaded); got != 1 {
		t.Error("hub.loaded published again")
	}
}
