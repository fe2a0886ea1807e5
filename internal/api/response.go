// Package api holds the JSON envelope shared by every HTTP handler.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

// SuccessResponse is the envelope around every successful payload.
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorResponse is the envelope around every failure. Code is the domain error code when known.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Queue sentinels carry generic codes, so they are matched before codeStatus.
var sentinelStatus = []struct {
	err    error
	status int
}{
	{domain.ErrUploadNotPending, http.StatusConflict},
	{domain.ErrQueueFull, http.StatusServiceUnavailable},
	{domain.ErrQueueStopped, http.StatusServiceUnavailable},
}

var codeStatus = map[string]int{
	domain.ErrCodeValidation: http.StatusBadRequest,
	domain.ErrCodeChunking:   http.StatusBadRequest,
	domain.ErrCodeExtraction: http.StatusUnprocessableEntity,
	domain.ErrCodeNotFound:   http.StatusNotFound,
	domain.ErrCodeEmbedding:  http.StatusBadGateway,
}

// JSON encodes data with the given status. A nil data writes headers only.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// Success wraps data in SuccessResponse.
func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes a message without a domain code.
func Error(w http.ResponseWriter, status int, message string) {
	ErrorWithCode(w, status, "", message)
}

// ErrorWithCode writes a message tagged with code.
func ErrorWithCode(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Error: message, Code: code})
}

// DomainErrorToHTTP picks the status for err. Store, internal and unknown errors are 500.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	if status, ok := codeStatus[domain.ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError answers with the status and code derived from err.
func HandleError(w http.ResponseWriter, err error) {
	ErrorWithCode(w, DomainErrorToHTTP(err), domain.ErrorCode(err), err.Error())
}
