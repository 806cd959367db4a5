// Package device keeps the live set of configured devices and persists them
// to the settings tree so they survive restarts.
package device

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/hearth-home/hearth/internal/settings"
	"github.com/hearth-home/hearth/pkg/models"
	"go.uber.org/zap"
)

const (
	deviceConfigGroup = "DeviceConfig"

	keyName     = "devicename"
	keyClassID  = "deviceClassId"
	keyPluginID = "pluginid"
)

// Record is one persisted device row, enough to rebuild the live Device
// during startup.
type Record struct {
	ID            models.DeviceID
	PluginID      models.PluginID
	DeviceClassID models.DeviceClassID
	Name          string
	Params        models.ParamList
}

// Registry is the live device set. The orchestrator is the only writer;
// transports read through it.
type Registry struct {
	mu      sync.RWMutex
	devices []*models.Device
	byID    map[models.DeviceID]*models.Device

	store  *settings.Store
	logger *zap.Logger
}

// New creates an empty registry persisting to the given settings store.
func New(store *settings.Store, logger *zap.Logger) *Registry {
	return &Registry{
		byID:   make(map[models.DeviceID]*models.Device),
		store:  store,
		logger: logger,
	}
}

// Add inserts a device into the live set. A device id that is already present
// is refused.
func (r *Registry) Add(d *models.Device) models.DeviceError {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[d.ID()]; exists {
		return models.DeviceErrorDuplicateUUID
	}
	r.devices = append(r.devices, d)
	r.byID[d.ID()] = d
	return models.DeviceErrorNoError
}

// Remove drops a device from the live set.
func (r *Registry) Remove(id models.DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; !exists {
		return
	}
	delete(r.byID, id)
	for i, d := range r.devices {
		if d.ID() == id {
			r.devices = append(r.devices[:i], r.devices[i+1:]...)
			break
		}
	}
}

// Find returns the live device with the given id.
func (r *Registry) Find(id models.DeviceID) (*models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// All returns the live devices in insertion order.
func (r *Registry) All() []*models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*models.Device(nil), r.devices...)
}

// FindByClass returns the live devices of the given class.
func (r *Registry) FindByClass(classID models.DeviceClassID) []*models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.Device
	for _, d := range r.devices {
		if d.DeviceClassID() == classID {
			result = append(result, d)
		}
	}
	return result
}

// FindByPlugin returns the live devices owned by the given plugin.
func (r *Registry) FindByPlugin(pluginID models.PluginID) []*models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.Device
	for _, d := range r.devices {
		if d.PluginID() == pluginID {
			result = append(result, d)
		}
	}
	return result
}

// Save writes the device's persistent form in one transaction, replacing any
// previous row for the same id.
func (r *Registry) Save(ctx context.Context, d *models.Device) error {
	group := deviceConfigGroup + "/" + d.ID().String()
	err := r.store.Tx(ctx, func(tx *sql.Tx) error {
		if err := r.store.RemoveGroupTx(ctx, tx, group); err != nil {
			return err
		}
		if err := r.store.SetValueTx(ctx, tx, group, keyName, models.StringValue(d.Name())); err != nil {
			return err
		}
		if err := r.store.SetValueTx(ctx, tx, group, keyClassID, models.StringValue(d.DeviceClassID().String())); err != nil {
			return err
		}
		if err := r.store.SetValueTx(ctx, tx, group, keyPluginID, models.StringValue(d.PluginID().String())); err != nil {
			return err
		}
		for _, p := range d.Params() {
			if err := r.store.SetValueTx(ctx, tx, group+"/Params", p.Name, p.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save device %s: %w", d.ID(), err)
	}
	return nil
}

// DeleteConfig removes the persisted row of a device.
func (r *Registry) DeleteConfig(ctx context.Context, id models.DeviceID) error {
	return r.store.RemoveGroup(ctx, deviceConfigGroup+"/"+id.String())
}

// LoadAll reads every persisted device row. Rows that fail to parse are
// skipped with a warning so one corrupt entry cannot block startup.
func (r *Registry) LoadAll(ctx context.Context) ([]Record, error) {
	ids, err := r.store.ChildGroups(ctx, deviceConfigGroup)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, raw := range ids {
		rec, err := r.loadRecord(ctx, raw)
		if err != nil {
			r.logger.Warn("skipping unreadable device row",
				zap.String("group", raw),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *Registry) loadRecord(ctx context.Context, rawID string) (Record, error) {
	id, err := models.ParseDeviceID(rawID)
	if err != nil {
		return Record{}, fmt.Errorf("parse device id: %w", err)
	}
	group := deviceConfigGroup + "/" + rawID

	name, err := r.stringValue(ctx, group, keyName)
	if err != nil {
		return Record{}, err
	}
	rawClass, err := r.stringValue(ctx, group, keyClassID)
	if err != nil {
		return Record{}, err
	}
	classID, err := models.ParseDeviceClassID(rawClass)
	if err != nil {
		return Record{}, fmt.Errorf("parse class id: %w", err)
	}
	rawPlugin, err := r.stringValue(ctx, group, keyPluginID)
	if err != nil {
		return Record{}, err
	}
	pluginID, err := models.ParsePluginID(rawPlugin)
	if err != nil {
		return Record{}, fmt.Errorf("parse plugin id: %w", err)
	}
	params, err := r.store.LoadParams(ctx, group+"/Params")
	if err != nil {
		return Record{}, err
	}

	return Record{
		ID:            id,
		PluginID:      pluginID,
		DeviceClassID: classID,
		Name:          name,
		Params:        params,
	}, nil
}

func (r *Registry) stringValue(ctx context.Context, group, key string) (string, error) {
	v, ok, err := r.store.Value(ctx, group, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	s, _ := v.Str()
	return s, nil
}
