package main

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	errInvalidInput       = errors.New("invalid input")
	errDuplicateIdentity  = errors.New("email is already registered")
	errInvalidCredentials = errors.New("invalid credentials")
	errUnauthenticated    = errors.New("invalid or missing token")
	errTokenExpired       = errors.New("token has expired")
	errForbidden          = errors.New("you are not allowed to access this resource")
	errNotFound           = errors.New("todo not found")
	errTooManyAttempts    = errors.New("too many failed login attempts, try again later")
)

// inputError carries per-field validation messages and matches errInvalidInput.
type inputError struct {
	fields map[string]string
}

func (e *inputError) Error() string {
	data, err := json.Marshal(e.fields)
	if err != nil {
		return errInvalidInput.Error()
	}
	return errInvalidInput.Error() + ": " + string(data)
}

func (e *inputError) Is(target error) bool {
	return target == errInvalidInput
}

func newInputError(field, msg string) error {
	return &inputError{fields: map[string]string{field: msg}}
}

// statusFor maps an error to the status code the client sees. Unknown
// errors are internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidInput), errors.Is(err, errDuplicateIdentity):
		return http.StatusBadRequest
	case errors.Is(err, errInvalidCredentials), errors.Is(err, errUnauthenticated), errors.Is(err, errTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, errTooManyAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
