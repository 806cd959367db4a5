package server

import (
	"encoding/json"
	"net/http"

	"github.com/hearth-home/hearth/pkg/models"
)

// DeviceResponse is the wire form of a configured device.
type DeviceResponse struct {
	ID            models.DeviceID      `json:"id"`
	Name          string               `json:"name"`
	DeviceClassID models.DeviceClassID `json:"deviceClassId"`
	PluginID      models.PluginID      `json:"pluginId"`
	Params        models.ParamList     `json:"params,omitempty"`
	States        []models.State       `json:"states,omitempty"`
	SetupComplete bool                 `json:"setupComplete"`
}

func deviceResponse(d *models.Device) DeviceResponse {
	return DeviceResponse{
		ID:            d.ID(),
		Name:          d.Name(),
		DeviceClassID: d.DeviceClassID(),
		PluginID:      d.PluginID(),
		Params:        d.Params(),
		States:        d.States(),
		SetupComplete: d.SetupComplete(),
	}
}

// PluginResponse describes a loaded driver plugin.
type PluginResponse struct {
	ID          models.PluginID    `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	ConfigTypes []models.ParamType `json:"configTypes,omitempty"`
}

// handleVendors returns the vendors of all loaded plugins.
func (s *Server) handleVendors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.SupportedVendors())
}

// handleDeviceClasses returns the device class catalog, optionally filtered
// by ?vendorId=.
func (s *Server) handleDeviceClasses(w http.ResponseWriter, r *http.Request) {
	var vendorID models.VendorID
	if raw := r.URL.Query().Get("vendorId"); raw != "" {
		id, err := models.ParseVendorID(raw)
		if err != nil {
			BadRequest(w, "invalid vendorId", r.URL.Path)
			return
		}
		vendorID = id
	}
	classes := s.catalog.SupportedDevices(vendorID)
	if classes == nil {
		classes = []models.DeviceClass{}
	}
	writeJSON(w, http.StatusOK, classes)
}

func (s *Server) handleDeviceClass(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseDeviceClassID(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid device class id", r.URL.Path)
		return
	}
	class := s.catalog.FindDeviceClass(id)
	if !class.Valid() {
		NotFound(w, "device class not found", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, class)
}

// handlePlugins returns the loaded plugins with their configuration schemas.
func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	infos := s.catalog.Plugins()
	out := make([]PluginResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, PluginResponse{
			ID:          info.ID,
			Name:        info.Name,
			Description: info.Description,
			ConfigTypes: info.ConfigurationDescription,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPluginConfig(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePluginID(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid plugin id", r.URL.Path)
		return
	}
	params, ok := s.catalog.PluginConfig(id)
	if !ok {
		NotFound(w, "plugin not found", r.URL.Path)
		return
	}
	if params == nil {
		params = models.ParamList{}
	}
	writeJSON(w, http.StatusOK, params)
}

// SetPluginConfigRequest is the body of PUT /api/v1/plugins/{id}/config.
type SetPluginConfigRequest struct {
	Params models.ParamList `json:"params"`
}

func (s *Server) handleSetPluginConfig(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePluginID(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid plugin id", r.URL.Path)
		return
	}
	var req SetPluginConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}
	if derr := s.catalog.SetPluginConfig(r.Context(), id, req.Params); !derr.OK() {
		writeDeviceError(w, derr, r.URL.Path)
		return
	}
	params, _ := s.catalog.PluginConfig(id)
	writeJSON(w, http.StatusOK, params)
}

// handleDevices lists the configured devices.
func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.hub.Devices()
	out := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseDeviceID(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid device id", r.URL.Path)
		return
	}
	d, ok := s.hub.Device(id)
	if !ok {
		NotFound(w, "device not found", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, deviceResponse(d))
}

func (s *Server) handleDeviceStates(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseDeviceID(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid device id", r.URL.Path)
		return
	}
	d, ok := s.hub.Device(id)
	if !ok {
		NotFound(w, "device not found", r.URL.Path)
		return
	}
	states := d.States()
	if states == nil {
		states = []models.State{}
	}
	writeJSON(w, http.StatusOK, states)
}

// AddDeviceRequest is the body of POST /api/v1/devices. DescriptorID and
// Params are mutually exclusive: a descriptor id configures a discovered
// candidate, params configure a manual add.
type AddDeviceRequest struct {
	DeviceClassID models.DeviceClassID      `json:"deviceClassId"`
	Name          string                    `json:"name"`
	DeviceID      models.DeviceID           `json:"deviceId,omitzero"`
	DescriptorID  models.DeviceDescriptorID `json:"descriptorId,omitzero"`
	Params        models.ParamList          `json:"params,omitempty"`
}

// AddDeviceResponse carries the id of the new device. With status 202 the
// device is not configured yet; the outcome arrives as a
// device.setup_finished notification.
type AddDeviceResponse struct {
	DeviceID models.DeviceID `json:"deviceId"`
}

func (s *Server) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	var req AddDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}

	var (
		id   models.DeviceID
		derr models.DeviceError
	)
	if !req.DescriptorID.IsZero() {
		id, derr = s.hub.AddConfiguredDeviceFromDescriptor(r.Context(), req.DeviceClassID, req.Name, req.DescriptorID, req.DeviceID)
	} else {
		id, derr = s.hub.AddConfiguredDevice(r.Context(), req.DeviceClassID, req.Name, req.Params, req.DeviceID)
	}

	switch {
	case derr.OK():
		writeJSON(w, http.StatusCreated, AddDeviceResponse{DeviceID: id})
	case derr.Async():
		writeJSON(w, http.StatusAccepted, AddDeviceResponse{DeviceID: id})
	default:
		writeDeviceError(w, derr, r.URL.Path)
	}
}

func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseDeviceID(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid device id", r.URL.Path)
		return
	}
	if derr := s.hub.RemoveConfiguredDevice(r.Context(), id); !derr.OK() {
		writeDeviceError(w, derr, r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExecuteActionRequest is the body of POST /api/v1/devices/{id}/actions.
type ExecuteActionRequest struct {
	ActionTypeID models.ActionTypeID `json:"actionTypeId"`
	Params       models.ParamList    `json:"params,omitempty"`
}

// ExecuteActionResponse carries the action id. With status 202 the result
// arrives as an action.finished notification correlated by this id.
type ExecuteActionResponse struct {
	ActionID models.ActionID `json:"actionId"`
}

func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	deviceID, err := models.ParseDeviceID(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid device id", r.URL.Path)
		return
	}
	var req ExecuteActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}

	action := models.Action{
		ID:           models.NewActionID(),
		ActionTypeID: req.ActionTypeID,
		DeviceID:     deviceID,
		Params:       req.Params,
	}
	derr := s.hub.ExecuteAction(r.Context(), action)
	switch {
	case derr.OK():
		writeJSON(w, http.StatusOK, ExecuteActionResponse{ActionID: action.ID})
	case derr.Async():
		writeJSON(w, http.StatusAccepted, ExecuteActionResponse{ActionID: action.ID})
	default:
		writeDeviceError(w, derr, r.URL.Path)
	}
}

// DiscoverRequest is the body of POST /api/v1/discoveries.
type DiscoverRequest struct {
	DeviceClassID models.DeviceClassID `json:"deviceClassId"`
	Params        models.ParamList     `json:"params,omitempty"`
}

// DiscoverResponse carries the descriptor pool of a synchronously finished
// discovery. With status 202 the pool fills when the device.discovered
// notification arrives.
type DiscoverResponse struct {
	DeviceClassID models.DeviceClassID      `json:"deviceClassId"`
	Descriptors   []models.DeviceDescriptor `json:"descriptors"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}

	derr := s.hub.DiscoverDevices(r.Context(), req.DeviceClassID, req.Params)
	switch {
	case derr.OK():
		writeJSON(w, http.StatusOK, DiscoverResponse{
			DeviceClassID: req.DeviceClassID,
			Descriptors:   s.descriptorPool(req.DeviceClassID),
		})
	case derr.Async():
		writeJSON(w, http.StatusAccepted, DiscoverResponse{
			DeviceClassID: req.DeviceClassID,
			Descriptors:   []models.DeviceDescriptor{},
		})
	default:
		writeDeviceError(w, derr, r.URL.Path)
	}
}

func (s *Server) handleDescriptors(w http.ResponseWriter, r *http.Request) {
	classID, err := models.ParseDeviceClassID(r.PathValue("classId"))
	if err != nil {
		BadRequest(w, "invalid device class id", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, DiscoverResponse{
		DeviceClassID: classID,
		Descriptors:   s.descriptorPool(classID),
	})
}

func (s *Server) descriptorPool(classID models.DeviceClassID) []models.DeviceDescriptor {
	descriptors := s.hub.Descriptors(classID)
	if descriptors == nil {
		descriptors = []models.DeviceDescriptor{}
	}
	return descriptors
}

// PairRequest is the body of POST /api/v1/pairings.
type PairRequest struct {
	DeviceClassID models.DeviceClassID      `json:"deviceClassId"`
	Name          string                    `json:"name"`
	DescriptorID  models.DeviceDescriptorID `json:"descriptorId,omitzero"`
	Params        models.ParamList          `json:"params,omitempty"`
}

// PairResponse tells the client how to complete the pairing: push the
// button, read the displayed pin, or enter one, then confirm.
type PairResponse struct {
	TransactionID models.PairingTransactionID `json:"transactionId"`
	SetupMethod   models.SetupMethod          `json:"setupMethod"`
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	var req PairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}

	var (
		tx     models.PairingTransactionID
		method models.SetupMethod
		derr   models.DeviceError
	)
	if !req.DescriptorID.IsZero() {
		tx, method, derr = s.hub.PairDeviceFromDescriptor(r.Context(), req.DeviceClassID, req.Name, req.DescriptorID)
	} else {
		tx, method, derr = s.hub.PairDevice(r.Context(), req.DeviceClassID, req.Name, req.Params)
	}
	if !derr.OK() {
		writeDeviceError(w, derr, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, PairResponse{TransactionID: tx, SetupMethod: method})
}

// ConfirmPairingRequest is the body of POST /api/v1/pairings/{id}/confirm.
type ConfirmPairingRequest struct {
	Secret string `json:"secret"`
}

func (s *Server) handleConfirmPairing(w http.ResponseWriter, r *http.Request) {
	tx, err := models.ParsePairingTransactionID(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pairing transaction id", r.URL.Path)
		return
	}
	var req ConfirmPairingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}

	derr := s.hub.ConfirmPairing(r.Context(), tx, req.Secret)
	switch {
	case derr.OK():
		writeJSON(w, http.StatusOK, map[string]string{"status": "paired"})
	case derr.Async():
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
	default:
		writeDeviceError(w, derr, r.URL.Path)
	}
}
