package orchestrator

import "github.com/hearth-home/hearth/pkg/models"

// Payload types carried on the notification bus. Transports serialise them
// as-is.

// LoadedPayload announces startup completion. Published exactly once.
type LoadedPayload struct {
	Plugins int `json:"plugins"`
	Devices int `json:"devices"`
}

// DiscoveredPayload carries the result batch of one finished discovery.
type DiscoveredPayload struct {
	DeviceClassID models.DeviceClassID      `json:"deviceClassId"`
	Descriptors   []models.DeviceDescriptor `json:"descriptors"`
}

// SetupFinishedPayload reports the outcome of a device setup.
type SetupFinishedPayload struct {
	DeviceID models.DeviceID    `json:"deviceId"`
	Error    models.DeviceError `json:"error"`
}

// StateChangedPayload reports one device state mutation.
type StateChangedPayload struct {
	DeviceID    models.DeviceID    `json:"deviceId"`
	StateTypeID models.StateTypeID `json:"stateTypeId"`
	Value       models.Value       `json:"value"`
}

// ActionFinishedPayload reports the completion of an action execution.
type ActionFinishedPayload struct {
	ActionID models.ActionID    `json:"actionId"`
	Error    models.DeviceError `json:"error"`
}

// PairingFinishedPayload reports the outcome of a pairing confirmation. On
// success DeviceID names the device the pairing produced.
type PairingFinishedPayload struct {
	TransactionID models.PairingTransactionID `json:"transactionId"`
	DeviceID      models.DeviceID             `json:"deviceId,omitzero"`
	Error         models.DeviceError          `json:"error"`
}

// RemovedPayload announces removal of a configured device.
type RemovedPayload struct {
	DeviceID models.DeviceID `json:"deviceId"`
}
