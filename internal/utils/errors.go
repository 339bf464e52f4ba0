package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is an error that knows which status and JSON body it renders as.
type HTTPError struct {
	Code          int      `json:"-"`
	Message       string   `json:"error"`
	Details       any      `json:"details,omitempty"`
	MissingFields []string `json:"missingFields,omitempty"`
}

func (e *HTTPError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("Code: %d, Message: %s, Details: %v", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

func New(code int, message string) error {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

// BadRequest builds a 400 error.
func BadRequest(message string, details any) *HTTPError {
	return &HTTPError{Code: http.StatusBadRequest, Message: message, Details: details}
}

// MissingFields builds the 400 returned when required fields are absent.
func MissingFields(fields []string) *HTTPError {
	return &HTTPError{
		Code:          http.StatusBadRequest,
		Message:       "Missing required fields",
		MissingFields: fields,
	}
}

// Internal builds a 500 error, using err as details when present.
func Internal(message string, err error) *HTTPError {
	e := &HTTPError{Code: http.StatusInternalServerError, Message: message}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// AsHTTPError unwraps err into an *HTTPError, falling back to a 500.
func AsHTTPError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}
	return Internal("Internal server error", err)
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteRawJSON writes an already encoded JSON body.
func WriteRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteError renders err as {error, details, missingFields}.
func WriteError(w http.ResponseWriter, err error) {
	he := AsHTTPError(err)
	code := he.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	WriteJSON(w, code, he)
}
