package models

// State is the current value of one state slot of a configured device.
type State struct {
	StateTypeID StateTypeID `json:"stateTypeId"`
	DeviceID    DeviceID    `json:"deviceId"`
	Value       Value       `json:"value"`
}

// Event is a notification emitted for a device: either synthesised from a
// state change (StateDerived=true, event type id equals the state type id)
// or emitted by the driver plugin directly.
type Event struct {
	EventTypeID  EventTypeID `json:"eventTypeId"`
	DeviceID     DeviceID    `json:"deviceId"`
	Params       ParamList   `json:"params,omitempty"`
	StateDerived bool        `json:"stateDerived"`
}

// Action is an invocation of an ActionType on a configured device. The
// ActionID correlates an Async reply with its completion notification.
type Action struct {
	ID           ActionID     `json:"id"`
	ActionTypeID ActionTypeID `json:"actionTypeId"`
	DeviceID     DeviceID     `json:"deviceId"`
	Params       ParamList    `json:"params,omitempty"`
}

// StateChangeHandler observes state mutations of a device. The orchestrator
// installs exactly one handler per device during setup.
type StateChangeHandler func(d *Device, stateTypeID StateTypeID, value Value)

// Device is a configured, persisted instance of a DeviceClass. The
// orchestrator is the sole owner; driver plugins receive a borrowed
// reference scoped to a single capability call and must correlate later
// work by DeviceID, never by retaining the pointer.
type Device struct {
	id            DeviceID
	pluginID      PluginID
	deviceClassID DeviceClassID

	name          string
	params        ParamList
	states        []State
	setupComplete bool

	onStateChange StateChangeHandler
}

// NewDevice creates a device shell for the given plugin, id and class.
func NewDevice(pluginID PluginID, id DeviceID, classID DeviceClassID) *Device {
	return &Device{id: id, pluginID: pluginID, deviceClassID: classID}
}

func (d *Device) ID() DeviceID                  { return d.id }
func (d *Device) PluginID() PluginID            { return d.pluginID }
func (d *Device) DeviceClassID() DeviceClassID  { return d.deviceClassID }
func (d *Device) Name() string                  { return d.name }
func (d *Device) SetName(name string)           { d.name = name }
func (d *Device) Params() ParamList             { return d.params }
func (d *Device) SetParams(params ParamList)    { d.params = params }
func (d *Device) SetupComplete() bool           { return d.setupComplete }

// ParamValue returns the value of the named device param.
func (d *Device) ParamValue(name string) (Value, bool) { return d.params.Get(name) }

// States returns the device's current states.
func (d *Device) States() []State { return d.states }

// SetStates replaces the state set, typically with the class defaults during
// setup. No change notifications fire.
func (d *Device) SetStates(states []State) { d.states = states }

// StateValue returns the current value of the given state type.
func (d *Device) StateValue(stateTypeID StateTypeID) (Value, bool) {
	for _, s := range d.states {
		if s.StateTypeID == stateTypeID {
			return s.Value, true
		}
	}
	return Value{}, false
}

// SetStateValue updates a state and invokes the state-change handler when the
// value actually changed. Returns DeviceErrorStateTypeNotFound for a state
// type the device does not have.
func (d *Device) SetStateValue(stateTypeID StateTypeID, value Value) DeviceError {
	for i, s := range d.states {
		if s.StateTypeID != stateTypeID {
			continue
		}
		if s.Value.Equal(value) {
			return DeviceErrorNoError
		}
		d.states[i].Value = value
		if d.onStateChange != nil {
			d.onStateChange(d, stateTypeID, value)
		}
		return DeviceErrorNoError
	}
	return DeviceErrorStateTypeNotFound
}

// SetStateChangeHandler installs the observer for state mutations.
func (d *Device) SetStateChangeHandler(fn StateChangeHandler) { d.onStateChange = fn }

// MarkSetupComplete flips the monotonic setup-complete flag. It never goes
// back to false for the same instance.
func (d *Device) MarkSetupComplete() { d.setupComplete = true }
