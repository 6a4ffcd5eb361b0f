package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"consult-settlement/internal/domain"
)

type APIResponse struct {
	ErrorCode int         `json:"error_code"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
}

func Response(w http.ResponseWriter, message string, data interface{}, errorCode int, status string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	response := APIResponse{
		ErrorCode: errorCode,
		Status:    status,
		Message:   message,
		Data:      data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[HTTP] write response error: %v", err)
	}
}

func Success(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusOK)
}

func SuccessCreated(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusCreated)
}

func SuccessAccepted(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusAccepted)
}

func Error(w http.ResponseWriter, message string, errorCode int, httpStatus int) {
	Response(w, message, nil, errorCode, "error", httpStatus)
}

func ErrorBadRequest(w http.ResponseWriter, message string) {
	Error(w, message, 400, http.StatusBadRequest)
}

func ErrorUnauthorized(w http.ResponseWriter, message string) {
	Error(w, message, 401, http.StatusUnauthorized)
}

func ErrorNotFound(w http.ResponseWriter, message string) {
	Error(w, message, 404, http.StatusNotFound)
}

func ErrorInternal(w http.ResponseWriter, message string) {
	Error(w, message, 500, http.StatusInternalServerError)
}

// ErrorFromDomain maps settlement errors onto HTTP statuses. Unknown errors
// are reported as internal without leaking their text.
func ErrorFromDomain(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		Error(w, err.Error(), 400, http.StatusBadRequest)
	case errors.Is(err, domain.ErrRiskBlocked):
		Error(w, err.Error(), 403, http.StatusForbidden)
	case errors.Is(err, domain.ErrNotFound):
		Error(w, "not found", 404, http.StatusNotFound)
	case errors.Is(err, domain.ErrDuplicatePayment),
		errors.Is(err, domain.ErrDuplicateEscrow),
		errors.Is(err, domain.ErrConflictingFreeze),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrOverRelease),
		errors.Is(err, domain.ErrConflict):
		Error(w, err.Error(), 409, http.StatusConflict)
	case errors.Is(err, domain.ErrEngagementNotComplete):
		Error(w, err.Error(), 422, http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrFrozen):
		Error(w, err.Error(), 423, http.StatusLocked)
	case errors.Is(err, domain.ErrCollaborator):
		Error(w, err.Error(), 502, http.StatusBadGateway)
	default:
		log.Printf("[HTTP] internal error: %v", err)
		Error(w, "internal error", 500, http.StatusInternalServerError)
	}
}
