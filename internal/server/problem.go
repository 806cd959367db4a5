package server

import (
	"encoding/json"
	"net/http"

	"github.com/hearth-home/hearth/pkg/models"
)

// Problem types for RFC 7807 Problem Details responses.
const (
	ProblemTypeNotFound    = "https://hearth-home.io/problems/not-found"
	ProblemTypeBadRequest  = "https://hearth-home.io/problems/bad-request"
	ProblemTypeInternal    = "https://hearth-home.io/problems/internal-error"
	ProblemTypeConflict    = "https://hearth-home.io/problems/conflict"
	ProblemTypeUnavailable = "https://hearth-home.io/problems/unavailable"
	ProblemTypeRateLimited = "https://hearth-home.io/problems/rate-limited"
)

// Problem represents an RFC 7807 Problem Details response. Code carries the
// hub's device error tag when the problem maps one.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
}

// WriteProblem writes an RFC 7807 Problem Details JSON response.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NotFound writes a 404 problem response.
func NotFound(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeNotFound,
		Title:    "Not Found",
		Status:   http.StatusNotFound,
		Detail:   detail,
		Instance: instance,
	})
}

// BadRequest writes a 400 problem response.
func BadRequest(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeBadRequest,
		Title:    "Bad Request",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: instance,
	})
}

// InternalError writes a 500 problem response.
func InternalError(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeInternal,
		Title:    "Internal Server Error",
		Status:   http.StatusInternalServerError,
		Detail:   detail,
		Instance: instance,
	})
}

// RateLimited writes a 429 problem response.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeRateLimited,
		Title:    "Too Many Requests",
		Status:   http.StatusTooManyRequests,
		Detail:   detail,
		Instance: instance,
	})
}

// statusForDeviceError maps a hub device error to an HTTP status.
func statusForDeviceError(derr models.DeviceError) int {
	switch derr {
	case models.DeviceErrorNoError:
		return http.StatusOK
	case models.DeviceErrorAsync:
		return http.StatusAccepted
	case models.DeviceErrorDeviceNotFound,
		models.DeviceErrorDeviceClassNotFound,
		models.DeviceErrorPluginNotFound,
		models.DeviceErrorActionTypeNotFound,
		models.DeviceErrorStateTypeNotFound,
		models.DeviceErrorEventTypeNotFound,
		models.DeviceErrorDeviceDescriptorNotFound,
		models.DeviceErrorPairingTransactionIDNotFound:
		return http.StatusNotFound
	case models.DeviceErrorMissingParameter,
		models.DeviceErrorInvalidParameter,
		models.DeviceErrorCreationMethodNotSupported,
		models.DeviceErrorSetupMethodNotSupported:
		return http.StatusBadRequest
	case models.DeviceErrorDuplicateUUID,
		models.DeviceErrorDeviceInUse:
		return http.StatusConflict
	case models.DeviceErrorHardwareNotAvailable,
		models.DeviceErrorHardwareFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func problemTypeForStatus(status int) (string, string) {
	switch status {
	case http.StatusNotFound:
		return ProblemTypeNotFound, "Not Found"
	case http.StatusBadRequest:
		return ProblemTypeBadRequest, "Bad Request"
	case http.StatusConflict:
		return ProblemTypeConflict, "Conflict"
	case http.StatusServiceUnavailable:
		return ProblemTypeUnavailable, "Service Unavailable"
	default:
		return ProblemTypeInternal, "Internal Server Error"
	}
}

// writeDeviceError writes a problem response carrying the device error tag.
// Must only be called for actual failures, never NoError or Async.
func writeDeviceError(w http.ResponseWriter, derr models.DeviceError, instance string) {
	status := statusForDeviceError(derr)
	problemType, title := problemTypeForStatus(status)
	WriteProblem(w, Problem{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   string(derr),
		Instance: instance,
		Code:     string(derr),
	})
}
