// Package registry manages driver plugin lifecycle: registration, metadata
// verification, catalog assembly and plugin configuration.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/hearth-home/hearth/internal/settings"
	"github.com/hearth-home/hearth/pkg/models"
	"github.com/hearth-home/hearth/pkg/plugin"
	"go.uber.org/zap"
)

const pluginConfigGroup = "PluginConfig"

// DepsFn builds the dependency set handed to a plugin during load.
type DepsFn func(info plugin.Info) plugin.Dependencies

// Host owns the registered driver plugins and the device catalog they
// contribute. Plugins are registered at composition time and loaded once;
// afterwards the catalog is immutable and only plugin configuration changes.
type Host struct {
	mu      sync.RWMutex
	plugins map[models.PluginID]plugin.DevicePlugin
	infos   map[models.PluginID]plugin.Info
	configs map[models.PluginID]models.ParamList
	order   []models.PluginID // load order

	vendors     []models.Vendor
	vendorSet   map[models.VendorID]bool
	classes     []models.DeviceClass
	classIndex  map[models.DeviceClassID]models.DeviceClass
	classOwners map[models.DeviceClassID]models.PluginID

	candidates []plugin.DevicePlugin
	store      *settings.Store
	logger     *zap.Logger
}

// New creates an empty plugin host persisting configuration to the given
// settings store.
func New(store *settings.Store, logger *zap.Logger) *Host {
	return &Host{
		plugins:     make(map[models.PluginID]plugin.DevicePlugin),
		infos:       make(map[models.PluginID]plugin.Info),
		configs:     make(map[models.PluginID]models.ParamList),
		vendorSet:   make(map[models.VendorID]bool),
		classIndex:  make(map[models.DeviceClassID]models.DeviceClass),
		classOwners: make(map[models.DeviceClassID]models.PluginID),
		store:       store,
		logger:      logger,
	}
}

// Register queues a plugin candidate for LoadAll. Must be called before
// LoadAll; registration order is load order.
func (h *Host) Register(p plugin.DevicePlugin) {
	h.mu.Lock()
	h.candidates = append(h.candidates, p)
	h.mu.Unlock()
}

// LoadAll verifies, configures and initializes every registered candidate.
// A candidate with broken metadata is skipped with a warning, never a hard
// failure: one bad driver must not take the hub down.
func (h *Host) LoadAll(ctx context.Context, depsFn DepsFn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range h.candidates {
		info := p.Info()
		if err := h.verifyMetadata(p, info); err != nil {
			h.logger.Warn("skipping plugin with invalid metadata",
				zap.String("name", info.Name),
				zap.Error(err),
			)
			continue
		}

		if err := p.Init(ctx, depsFn(info)); err != nil {
			h.logger.Warn("skipping plugin that failed to initialize",
				zap.String("name", info.Name),
				zap.Error(err),
			)
			continue
		}

		// Configuration is resolved before the catalog absorbs anything so a
		// skipped plugin leaves no half-adopted vendors or classes behind.
		config, err := h.initialConfig(ctx, info)
		if err != nil {
			h.logger.Warn("skipping plugin whose configuration cannot be loaded",
				zap.String("name", info.Name),
				zap.Error(err),
			)
			continue
		}

		h.adoptCatalog(info, p)
		h.plugins[info.ID] = p
		h.infos[info.ID] = info
		h.order = append(h.order, info.ID)
		h.configs[info.ID] = config
		if len(config) > 0 {
			if derr := p.SetConfiguration(config); !derr.OK() {
				h.logger.Warn("plugin rejected its stored configuration",
					zap.String("name", info.Name),
					zap.String("error", string(derr)),
				)
			}
		}

		h.logger.Info("plugin loaded",
			zap.String("name", info.Name),
			zap.String("id", info.ID.String()),
		)
	}
	return nil
}

// verifyMetadata checks the invariants every loadable plugin must satisfy.
func (h *Host) verifyMetadata(p plugin.DevicePlugin, info plugin.Info) error {
	if info.ID.IsZero() {
		return fmt.Errorf("plugin id is the zero uuid")
	}
	if info.Name == "" {
		return fmt.Errorf("plugin name is empty")
	}
	if _, exists := h.plugins[info.ID]; exists {
		return fmt.Errorf("plugin id %s already loaded", info.ID)
	}
	if len(p.SupportedVendors()) == 0 {
		return fmt.Errorf("plugin declares no vendors")
	}
	return nil
}

// adoptCatalog merges the plugin's vendors and device classes into the
// catalog. A vendor id already contributed by an earlier plugin is kept as-is;
// a device class referencing a vendor the plugin did not declare is rejected.
func (h *Host) adoptCatalog(info plugin.Info, p plugin.DevicePlugin) {
	declared := make(map[models.VendorID]bool)
	for _, v := range p.SupportedVendors() {
		declared[v.ID] = true
		if h.vendorSet[v.ID] {
			continue
		}
		h.vendorSet[v.ID] = true
		h.vendors = append(h.vendors, v)
	}

	for _, dc := range p.SupportedDevices() {
		if !declared[dc.VendorID] {
			h.logger.Warn("rejecting device class with unknown vendor",
				zap.String("plugin", info.Name),
				zap.String("class", dc.Name),
				zap.String("vendor_id", dc.VendorID.String()),
			)
			continue
		}
		if _, dup := h.classIndex[dc.ID]; dup {
			h.logger.Warn("rejecting device class with duplicate id",
				zap.String("plugin", info.Name),
				zap.String("class", dc.Name),
				zap.String("class_id", dc.ID.String()),
			)
			continue
		}
		dc.PluginID = info.ID
		h.classes = append(h.classes, dc)
		h.classIndex[dc.ID] = dc
		h.classOwners[dc.ID] = info.ID
	}
}

// initialConfig resolves a plugin's starting configuration: stored values
// win, schema defaults fill the rest, and a plugin without a schema gets an
// empty list. Stored values that no longer validate are discarded in favor of
// the defaults.
func (h *Host) initialConfig(ctx context.Context, info plugin.Info) (models.ParamList, error) {
	if len(info.ConfigurationDescription) == 0 {
		return nil, nil
	}

	stored, err := h.store.LoadParams(ctx, pluginConfigGroup+"/"+info.ID.String())
	if err != nil {
		return nil, err
	}

	effective, perr := models.VerifyParams(info.ConfigurationDescription, stored, true)
	if perr != nil {
		h.logger.Warn("stored plugin configuration no longer validates, using defaults",
			zap.String("name", info.Name),
			zap.String("param", perr.Param),
			zap.String("reason", perr.Reason),
		)
		effective, perr = models.VerifyParams(info.ConfigurationDescription, nil, true)
		if perr != nil {
			// Schema without defaults for every slot: start unconfigured.
			return nil, nil
		}
	}
	return effective, nil
}

// Plugins returns the loaded plugin metadata in load order.
func (h *Host) Plugins() []plugin.Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	infos := make([]plugin.Info, 0, len(h.order))
	for _, id := range h.order {
		infos = append(infos, h.infos[id])
	}
	return infos
}

// Plugin returns the loaded plugin with the given id.
func (h *Host) Plugin(id models.PluginID) (plugin.DevicePlugin, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.plugins[id]
	return p, ok
}

// All returns the loaded plugins in load order.
func (h *Host) All() []plugin.DevicePlugin {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]plugin.DevicePlugin, 0, len(h.order))
	for _, id := range h.order {
		result = append(result, h.plugins[id])
	}
	return result
}

// SupportedVendors returns the merged vendor catalog.
func (h *Host) SupportedVendors() []models.Vendor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.Vendor(nil), h.vendors...)
}

// SupportedDevices returns the device classes of the given vendor. The zero
// VendorID returns the whole catalog.
func (h *Host) SupportedDevices(vendorID models.VendorID) []models.DeviceClass {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if vendorID.IsZero() {
		return append([]models.DeviceClass(nil), h.classes...)
	}
	var result []models.DeviceClass
	for _, dc := range h.classes {
		if dc.VendorID == vendorID {
			result = append(result, dc)
		}
	}
	return result
}

// FindDeviceClass returns the catalog entry with the given id, or the zero
// DeviceClass when unknown.
func (h *Host) FindDeviceClass(id models.DeviceClassID) models.DeviceClass {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.classIndex[id]
}

// PluginForClass returns the plugin driving the given device class.
func (h *Host) PluginForClass(id models.DeviceClassID) (plugin.DevicePlugin, bool) {
	h.mu.RLock()
	pid, ok := h.classOwners[id]
	h.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return h.Plugin(pid)
}

// PluginConfig returns the plugin's current effective configuration.
func (h *Host) PluginConfig(id models.PluginID) (models.ParamList, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cfg, ok := h.configs[id]
	if !ok {
		if _, loaded := h.plugins[id]; !loaded {
			return nil, false
		}
	}
	return cfg.Clone(), true
}

// SetPluginConfig validates new configuration against the plugin's schema,
// pushes it to the plugin and persists it only after the plugin accepted it.
// Pushing the configuration the plugin already has is a no-op.
func (h *Host) SetPluginConfig(ctx context.Context, id models.PluginID, params models.ParamList) models.DeviceError {
	h.mu.Lock()
	p, ok := h.plugins[id]
	if !ok {
		h.mu.Unlock()
		return models.DeviceErrorPluginNotFound
	}
	info := h.infos[id]
	current := h.configs[id]
	h.mu.Unlock()

	effective, perr := models.VerifyParams(info.ConfigurationDescription, params, true)
	if perr != nil {
		h.logger.Debug("plugin configuration rejected",
			zap.String("name", info.Name),
			zap.String("param", perr.Param),
			zap.String("reason", perr.Reason),
		)
		return perr.Code
	}

	if effective.Equal(current) {
		return models.DeviceErrorNoError
	}

	if derr := p.SetConfiguration(effective); !derr.OK() {
		return derr
	}

	if err := h.store.ReplaceParams(ctx, pluginConfigGroup+"/"+id.String(), effective); err != nil {
		h.logger.Error("persist plugin configuration",
			zap.String("name", info.Name),
			zap.Error(err),
		)
		return models.DeviceErrorHardwareFailure
	}

	h.mu.Lock()
	h.configs[id] = effective
	h.mu.Unlock()
	return models.DeviceErrorNoError
}
