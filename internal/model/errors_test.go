package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestHasCode_MatchesWrappedError(t *testing.T) {
	err := fmt.Errorf("register: %w", NewConflictError())

	if !HasCode(err, ErrCodeConflict) {
		t.Error("expected HasCode to find CONFLICT through wrapping")
	}
	if HasCode(err, ErrCodeValidation) {
		t.Error("expected HasCode to reject a different code")
	}
	if HasCode(errors.New("plain"), ErrCodeConflict) {
		t.Error("expected HasCode to reject non-APIError")
	}
}

func TestNewStorageError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStorageError(cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() = %q, should include cause for logging", err.Error())
	}
	// クライアント向けメッセージには原因を含めない
	if strings.Contains(err.Message, "connection refused") {
		t.Errorf("Message = %q, must not leak cause", err.Message)
	}
}

func TestNewAuthError_GenericMessage(t *testing.T) {
	a, b := NewAuthError(), NewAuthError()
	if a.Message != b.Message || a.Message != "Incorrect credentials." {
		t.Errorf("auth error message = %q, want a constant generic message", a.Message)
	}
}

func TestRole_Valid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleAnonymous, true},
		{RoleUser, true},
		{RoleOwner, true},
		{Role("admin"), false},
		{Role(""), false},
	}
	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.want {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}
