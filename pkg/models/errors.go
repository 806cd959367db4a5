package models

import "fmt"

// DeviceError is the tagged result of every orchestrator call. DeviceErrorAsync
// is not a failure: it announces that the reply arrives as a later
// notification.
type DeviceError string

const (
	DeviceErrorNoError                      DeviceError = "no_error"
	DeviceErrorAsync                        DeviceError = "async"
	DeviceErrorPluginNotFound               DeviceError = "plugin_not_found"
	DeviceErrorDeviceNotFound               DeviceError = "device_not_found"
	DeviceErrorDeviceClassNotFound          DeviceError = "device_class_not_found"
	DeviceErrorActionTypeNotFound           DeviceError = "action_type_not_found"
	DeviceErrorStateTypeNotFound            DeviceError = "state_type_not_found"
	DeviceErrorEventTypeNotFound            DeviceError = "event_type_not_found"
	DeviceErrorDeviceDescriptorNotFound     DeviceError = "device_descriptor_not_found"
	DeviceErrorPairingTransactionIDNotFound DeviceError = "pairing_transaction_not_found"
	DeviceErrorMissingParameter             DeviceError = "missing_parameter"
	DeviceErrorInvalidParameter             DeviceError = "invalid_parameter"
	DeviceErrorSetupFailed                  DeviceError = "setup_failed"
	DeviceErrorDuplicateUUID                DeviceError = "duplicate_uuid"
	DeviceErrorCreationMethodNotSupported   DeviceError = "creation_method_not_supported"
	DeviceErrorSetupMethodNotSupported      DeviceError = "setup_method_not_supported"
	DeviceErrorHardwareNotAvailable         DeviceError = "hardware_not_available"
	DeviceErrorHardwareFailure              DeviceError = "hardware_failure"
	DeviceErrorDeviceInUse                  DeviceError = "device_in_use"
)

// OK reports success, i.e. a synchronous NoError reply.
func (e DeviceError) OK() bool { return e == DeviceErrorNoError }

// Async reports that the reply will arrive as a later notification.
func (e DeviceError) Async() bool { return e == DeviceErrorAsync }

// ParamError carries the offending parameter name alongside the DeviceError
// code produced by schema verification.
type ParamError struct {
	Code   DeviceError
	Param  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("param %q: %s (%s)", e.Param, e.Reason, e.Code)
}
