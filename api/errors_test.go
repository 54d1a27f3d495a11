package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errInvalidInput, http.StatusBadRequest},
		{newInputError("text", "must be provided"), http.StatusBadRequest},
		{errDuplicateIdentity, http.StatusBadRequest},
		{errInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("%w: signature is invalid", errUnauthenticated), http.StatusUnauthorized},
		{errTokenExpired, http.StatusUnauthorized},
		{errForbidden, http.StatusForbidden},
		{errNotFound, http.StatusNotFound},
		{errTooManyAttempts, http.StatusTooManyRequests},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestComposeJSONError(t *testing.T) {
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal([]byte(composeJSONError(errNotFound)), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.Error != errNotFound.Error() || body.Fields != nil {
		t.Errorf("unexpected body %+v", body)
	}

	v := newValidator()
	v.checkEmail("not-an-email")
	v.checkPassword("short")
	body.Fields = nil
	if err := json.Unmarshal([]byte(composeJSONError(v.toError())), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.Error != errInvalidInput.Error() {
		t.Errorf("Expected %q, got %q", errInvalidInput, body.Error)
	}
	if body.Fields["email"] == "" || body.Fields["password"] == "" {
		t.Errorf("Expected email and password field errors, got %v", body.Fields)
	}
}

func TestValidator(t *testing.T) {
	v := newValidator()
	v.checkEmail("alice@example.com")
	v.checkPassword("password123")
	v.checkUsername("alice")
	v.checkText("buy milk")
	v.checkPriority(priorityHigh)
	if v.hasErrors() {
		t.Errorf("Expected no errors, got %v", v.errors)
	}

	v = newValidator()
	v.checkEmail("")
	v.checkUsername("   ")
	v.checkPassword(string(make([]byte, 73)))
	v.checkPriority("urgent")
	for _, key := range []string{"email", "username", "password", "priority"} {
		if v.errors[key] == "" {
			t.Errorf("Expected an error for %q", key)
		}
	}
	if v.errors["email"] != "must be provided" {
		t.Errorf("Expected the first failing check to win, got %q", v.errors["email"])
	}
	if !errors.Is(v.toError(), errInvalidInput) {
		t.Error("Expected validator error to match errInvalidInput")
	}

	if got := normalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Errorf("normalizeEmail = %q", got)
	}
}
