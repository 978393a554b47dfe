package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/listing-intel/internal/intel"
)

// kindInvalidRequest is reported for bodies that are not valid JSON.
const kindInvalidRequest = "invalid_request"

// Envelope is the response body of every API route.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failure without exposing internals beyond the
// structured kind, stage and cause kind.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Cause   string `json:"cause,omitempty"`
	Message string `json:"message"`
}

// StatusFor maps an orchestration failure to an HTTP status.
func StatusFor(err error) int {
	switch intel.KindOf(err) {
	case intel.KindInvalidURL:
		return http.StatusBadRequest
	case intel.KindUpstreamFailure:
		return http.StatusBadGateway
	case intel.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorBody builds the structured error for err.
func errorBody(err error) *ErrorBody {
	var ie *intel.Error
	if !errors.As(err, &ie) {
		return &ErrorBody{Kind: "internal", Message: "internal error"}
	}
	return &ErrorBody{
		Kind:    string(ie.Kind),
		Stage:   string(ie.Stage),
		Cause:   ie.CauseKind(),
		Message: ie.Error(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("gateway: write response", zap.Error(err))
	}
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, body *ErrorBody) {
	writeJSON(w, status, Envelope{Success: false, Error: body})
}
