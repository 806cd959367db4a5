package models

// Vendor describes a device manufacturer known to the catalog.
type Vendor struct {
	ID   VendorID `json:"id"`
	Name string   `json:"name"`
}

// CreateMethods is a bitset describing how devices of a class may come into
// existence.
type CreateMethods uint8

const (
	CreateMethodUser CreateMethods = 1 << iota
	CreateMethodDiscovery
	CreateMethodAuto
)

// Has reports whether the given method is part of the set.
func (m CreateMethods) Has(method CreateMethods) bool { return m&method != 0 }

// SetupMethod describes how initial pairing of a device class is performed.
type SetupMethod string

const (
	SetupMethodJustAdd    SetupMethod = "just_add"
	SetupMethodDisplayPin SetupMethod = "display_pin"
	SetupMethodEnterPin   SetupMethod = "enter_pin"
	SetupMethodPushButton SetupMethod = "push_button"
)

// HardwareResources is a bitset of shared hardware a plugin needs the hub to
// multiplex for it.
type HardwareResources uint8

const (
	HardwareResourceRadio433 HardwareResources = 1 << iota
	HardwareResourceRadio868
	HardwareResourceTimer
	HardwareResourceUpnpDiscovery

	HardwareResourceNone HardwareResources = 0
)

// Has reports whether the given resource is part of the set.
func (r HardwareResources) Has(res HardwareResources) bool { return r&res != 0 }

// RadioBand distinguishes the two shared radios.
type RadioBand int

const (
	RadioBand433 RadioBand = 433
	RadioBand868 RadioBand = 868
)

// Resource returns the hardware resource flag for the band.
func (b RadioBand) Resource() HardwareResources {
	if b == RadioBand868 {
		return HardwareResourceRadio868
	}
	return HardwareResourceRadio433
}

// StateType describes one state slot of a device class. Every StateType also
// acts as an implicit EventType of the same id, fired when the state changes.
type StateType struct {
	ID      StateTypeID `json:"id"`
	Name    string      `json:"name"`
	Type    ValueType   `json:"type"`
	Default Value       `json:"default,omitzero"`
}

// EventType describes a custom event a device class can emit.
type EventType struct {
	ID         EventTypeID `json:"id"`
	Name       string      `json:"name"`
	ParamTypes []ParamType `json:"paramTypes,omitempty"`
}

// ActionType describes an invocable action of a device class.
type ActionType struct {
	ID         ActionTypeID `json:"id"`
	Name       string       `json:"name"`
	ParamTypes []ParamType  `json:"paramTypes,omitempty"`
}

// DeviceClass is an immutable catalog entry describing a device type: who
// provides it, how instances are created and set up, which shared hardware
// the driver needs, and the four parameter/state/action schemas.
type DeviceClass struct {
	ID                  DeviceClassID     `json:"id"`
	PluginID            PluginID          `json:"pluginId"`
	VendorID            VendorID          `json:"vendorId"`
	Name                string            `json:"name"`
	CreateMethods       CreateMethods     `json:"createMethods"`
	SetupMethod         SetupMethod       `json:"setupMethod"`
	RequiredHardware    HardwareResources `json:"requiredHardware"`
	ParamTypes          []ParamType       `json:"paramTypes,omitempty"`
	DiscoveryParamTypes []ParamType       `json:"discoveryParamTypes,omitempty"`
	StateTypes          []StateType       `json:"stateTypes,omitempty"`
	EventTypes          []EventType       `json:"eventTypes,omitempty"`
	ActionTypes         []ActionType      `json:"actionTypes,omitempty"`
}

// Valid reports whether this is a real catalog entry rather than the
// zero sentinel returned for unknown ids.
func (c DeviceClass) Valid() bool { return !c.ID.IsZero() }

// StateType returns the state type with the given id.
func (c DeviceClass) StateType(id StateTypeID) (StateType, bool) {
	for _, st := range c.StateTypes {
		if st.ID == id {
			return st, true
		}
	}
	return StateType{}, false
}

// ActionType returns the action type with the given id.
func (c DeviceClass) ActionType(id ActionTypeID) (ActionType, bool) {
	for _, at := range c.ActionTypes {
		if at.ID == id {
			return at, true
		}
	}
	return ActionType{}, false
}

// DeviceDescriptor is a transient discovery result: a candidate device that
// has not been configured yet. It lives only between discovery completion
// and pairing/add or eviction.
type DeviceDescriptor struct {
	ID            DeviceDescriptorID `json:"id"`
	DeviceClassID DeviceClassID      `json:"deviceClassId"`
	Title         string             `json:"title"`
	Params        ParamList          `json:"params,omitempty"`
}
