package api

import (
	"encoding/json"
	"net/http"
)

// Error codes emitted by the control and calculation paths
const (
	CodeTaskNotFound         = "TASK_NOT_FOUND"
	CodeCalculationRequired  = "CALCULATION_REQUIRED"
	CodeMissingStatusMatrix  = "MISSING_STATUS_MATRIX"
	CodeSchedulerStartFailed = "SCHEDULER_START_FAILED"
	CodeDataIntegrityError   = "DATA_INTEGRITY_ERROR"
	CodeInvalidAction        = "INVALID_ACTION"
	CodeInvalidSenders       = "INVALID_SEND_EMAILS"
	CodeDisabledSenders      = "DISABLED_SEND_EMAILS"
	CodeNoRecipients         = "NO_RECEIVE_EMAILS"
	CodeValidationError      = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeInternalError        = "INTERNAL_ERROR"
)

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data}); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	s.sendErrorDetails(w, status, code, message, nil)
}

func (s *Server) sendErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	env := errorEnvelope{Error: errorBody{Code: code, Message: message, Details: details}}
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Error("failed to encode error response", "error", err)
	}
}
