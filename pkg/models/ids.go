// Package models defines the public data model of the Hearth hub: typed
// identifiers, the tagged parameter value space, device class descriptors,
// configured devices and the DeviceError result taxonomy. All driver plugins
// and hub components share these types.
package models

import "github.com/google/uuid"

// Each logical identifier kind gets its own Go type so ids of different
// kinds cannot be mixed up at compile time. All of them are 128-bit UUIDs
// compared by value and persisted in canonical string form.

// PluginID identifies a driver plugin.
type PluginID uuid.UUID

// VendorID identifies a device vendor.
type VendorID uuid.UUID

// DeviceClassID identifies a device class in the catalog.
type DeviceClassID uuid.UUID

// DeviceID identifies a configured device.
type DeviceID uuid.UUID

// DeviceDescriptorID identifies a discovery result candidate.
type DeviceDescriptorID uuid.UUID

// ParamTypeID identifies a parameter schema slot.
type ParamTypeID uuid.UUID

// StateTypeID identifies a state type of a device class.
type StateTypeID uuid.UUID

// EventTypeID identifies an event type of a device class.
type EventTypeID uuid.UUID

// ActionTypeID identifies an action type of a device class.
type ActionTypeID uuid.UUID

// ActionID correlates an action invocation with its async completion.
type ActionID uuid.UUID

// PairingTransactionID correlates a multi-step pairing flow.
type PairingTransactionID uuid.UUID

func NewPluginID() PluginID                         { return PluginID(uuid.New()) }
func NewVendorID() VendorID                         { return VendorID(uuid.New()) }
func NewDeviceClassID() DeviceClassID               { return DeviceClassID(uuid.New()) }
func NewDeviceID() DeviceID                         { return DeviceID(uuid.New()) }
func NewDeviceDescriptorID() DeviceDescriptorID     { return DeviceDescriptorID(uuid.New()) }
func NewParamTypeID() ParamTypeID                   { return ParamTypeID(uuid.New()) }
func NewStateTypeID() StateTypeID                   { return StateTypeID(uuid.New()) }
func NewEventTypeID() EventTypeID                   { return EventTypeID(uuid.New()) }
func NewActionTypeID() ActionTypeID                 { return ActionTypeID(uuid.New()) }
func NewActionID() ActionID                         { return ActionID(uuid.New()) }
func NewPairingTransactionID() PairingTransactionID { return PairingTransactionID(uuid.New()) }

func ParsePluginID(s string) (PluginID, error) {
	u, err := uuid.Parse(s)
	return PluginID(u), err
}

func ParseVendorID(s string) (VendorID, error) {
	u, err := uuid.Parse(s)
	return VendorID(u), err
}

func ParseDeviceClassID(s string) (DeviceClassID, error) {
	u, err := uuid.Parse(s)
	return DeviceClassID(u), err
}

func ParseDeviceID(s string) (DeviceID, error) {
	u, err := uuid.Parse(s)
	return DeviceID(u), err
}

func ParseDeviceDescriptorID(s string) (DeviceDescriptorID, error) {
	u, err := uuid.Parse(s)
	return DeviceDescriptorID(u), err
}

func ParseParamTypeID(s string) (ParamTypeID, error) {
	u, err := uuid.Parse(s)
	return ParamTypeID(u), err
}

func ParseStateTypeID(s string) (StateTypeID, error) {
	u, err := uuid.Parse(s)
	return StateTypeID(u), err
}

func ParseEventTypeID(s string) (EventTypeID, error) {
	u, err := uuid.Parse(s)
	return EventTypeID(u), err
}

func ParseActionTypeID(s string) (ActionTypeID, error) {
	u, err := uuid.Parse(s)
	return ActionTypeID(u), err
}

func ParseActionID(s string) (ActionID, error) {
	u, err := uuid.Parse(s)
	return ActionID(u), err
}

func ParsePairingTransactionID(s string) (PairingTransactionID, error) {
	u, err := uuid.Parse(s)
	return PairingTransactionID(u), err
}

func (id PluginID) String() string               { return uuid.UUID(id).String() }
func (id VendorID) String() string               { return uuid.UUID(id).String() }
func (id DeviceClassID) String() string          { return uuid.UUID(id).String() }
func (id DeviceID) String() string               { return uuid.UUID(id).String() }
func (id DeviceDescriptorID) String() string     { return uuid.UUID(id).String() }
func (id ParamTypeID) String() string            { return uuid.UUID(id).String() }
func (id StateTypeID) String() string            { return uuid.UUID(id).String() }
func (id EventTypeID) String() string            { return uuid.UUID(id).String() }
func (id ActionTypeID) String() string           { return uuid.UUID(id).String() }
func (id ActionID) String() string               { return uuid.UUID(id).String() }
func (id PairingTransactionID) String() string   { return uuid.UUID(id).String() }

func (id PluginID) IsZero() bool             { return id == PluginID{} }
func (id VendorID) IsZero() bool             { return id == VendorID{} }
func (id DeviceClassID) IsZero() bool        { return id == DeviceClassID{} }
func (id DeviceID) IsZero() bool             { return id == DeviceID{} }
func (id DeviceDescriptorID) IsZero() bool   { return id == DeviceDescriptorID{} }
func (id ParamTypeID) IsZero() bool          { return id == ParamTypeID{} }
func (id StateTypeID) IsZero() bool          { return id == StateTypeID{} }
func (id EventTypeID) IsZero() bool          { return id == EventTypeID{} }
func (id ActionTypeID) IsZero() bool         { return id == ActionTypeID{} }
func (id ActionID) IsZero() bool             { return id == ActionID{} }
func (id PairingTransactionID) IsZero() bool { return id == PairingTransactionID{} }

func (id PluginID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id *PluginID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id VendorID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id *VendorID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id DeviceClassID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *DeviceClassID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
func (id DeviceID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id *DeviceID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id DeviceDescriptorID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}
func (id *DeviceDescriptorID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
func (id ParamTypeID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id *ParamTypeID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id StateTypeID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id *StateTypeID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id EventTypeID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id *EventTypeID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id ActionTypeID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *ActionTypeID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
func (id ActionID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id *ActionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id PairingTransactionID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}
func (id *PairingTransactionID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
