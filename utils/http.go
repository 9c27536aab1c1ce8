package utils

import (
	"encoding/json"
	"net/http"
)

// Response type tags. Every JSON body carries one of these in "type".
const (
	TypeAuthenticationRequired = "AuthenticationRequired"
	TypeInvalidCredentials     = "InvalidCredentials"
	TypeTokenExpired           = "TokenExpired"
	TypePermissionDenied       = "PermissionDenied"
	TypeAuthFailed             = "AuthFailed"
	TypeBadRequest             = "BadRequest"
	TypeNotFound               = "NotFound"
	TypeConflict               = "Conflict"
	TypeRateLimitExceeded      = "RateLimitExceeded"
	TypeMethodNotAllowed       = "MethodNotAllowed"
	TypeInternalError          = "InternalError"

	TypeMessage = "Message"
	TypeList    = "List"
	TypeLogin   = "Login"
	TypePerson  = "Person"
	TypeHealth  = "Health"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Success bool                   `json:"success"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// MessageResponse is a success response carrying only a message
type MessageResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ListResponse is a success response carrying a list of items
type ListResponse struct {
	Type    string      `json:"type"`
	List    interface{} `json:"list"`
	Success bool        `json:"success"`
}

// DataResponse is a success response carrying a single object
type DataResponse struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data"`
	Success bool        `json:"success"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteMessage writes a 200 OK response with a message
func WriteMessage(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, MessageResponse{Type: TypeMessage, Message: message, Success: true})
}

// WriteList writes a 200 OK response wrapping list
func WriteList(w http.ResponseWriter, list interface{}) error {
	return WriteJSON(w, http.StatusOK, ListResponse{Type: TypeList, List: list, Success: true})
}

// WriteOK writes a 200 OK response with a typed payload
func WriteOK(w http.ResponseWriter, typ string, data interface{}) error {
	return WriteJSON(w, http.StatusOK, DataResponse{Type: typ, Data: data, Success: true})
}

// WriteCreated writes a 201 Created response with a typed payload
func WriteCreated(w http.ResponseWriter, typ string, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, DataResponse{Type: typ, Data: data, Success: true})
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorType writes an error body with an explicit status and type tag
func WriteErrorType(w http.ResponseWriter, status int, typ, message string, details map[string]interface{}) error {
	return WriteJSON(w, status, ErrorResponse{
		Type:    typ,
		Message: message,
		Details: details,
	})
}

// WriteBadRequest writes a 400 Bad Request response with error details
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteErrorType(w, http.StatusBadRequest, TypeBadRequest, message, details)
}

// WriteUnauthorized writes a 401 response for a missing credential
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Authentication failed!"
	}
	return WriteErrorType(w, http.StatusUnauthorized, TypeAuthenticationRequired, message, nil)
}

// WriteForbidden writes a 403 response for a missing permission
func WriteForbidden(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Insufficient Privileges!"
	}
	return WriteErrorType(w, http.StatusForbidden, TypePermissionDenied, message, nil)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Resource not found"
	}
	return WriteErrorType(w, http.StatusNotFound, TypeNotFound, message, nil)
}

// WriteConflict writes a 409 Conflict response
func WriteConflict(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteErrorType(w, http.StatusConflict, TypeConflict, message, details)
}

// WriteTooManyRequests writes a 429 Too Many Requests response
func WriteTooManyRequests(w http.ResponseWriter, message string, details map[string]interface{}) error {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return WriteErrorType(w, http.StatusTooManyRequests, TypeRateLimitExceeded, message, details)
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return WriteErrorType(w, http.StatusInternalServerError, TypeInternalError, message, nil)
}
