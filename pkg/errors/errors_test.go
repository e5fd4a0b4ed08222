package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	expected := "INVALID_INPUT: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("redis down")
	err := WrapError(originalErr, ErrCodeInternal, "failed to load consultation", 500)

	if err.Cause != originalErr {
		t.Errorf("Cause = %v, want %v", err.Cause, originalErr)
	}
	if !strings.Contains(err.Error(), "redis down") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("errors.Is should see the wrapped cause")
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewConflictError("consultation already being handled")
	err.WithContext("consultation_id", "c-1").WithContext("attempt", 2)

	if err.Context["consultation_id"] != "c-1" {
		t.Errorf("Context[consultation_id] = %v, want 'c-1'", err.Context["consultation_id"])
	}
	if err.Context["attempt"] != 2 {
		t.Errorf("Context[attempt] = %v, want 2", err.Context["attempt"])
	}
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{"not found", NewNotFoundError("call"), ErrCodeNotFound, http.StatusNotFound},
		{"invalid state", NewInvalidStateError("consultation is not waiting"), ErrCodeInvalidState, http.StatusConflict},
		{"conflict", NewConflictError("dup"), ErrCodeConflict, http.StatusConflict},
		{"invalid input", NewInvalidInputError("bad"), ErrCodeInvalidInput, http.StatusBadRequest},
		{"unauthorized", NewUnauthorizedError("no token"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{"rate limit", NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("Code = %v, want %v", tc.err.Code, tc.code)
			}
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("HTTPStatus = %v, want %v", tc.err.HTTPStatus, tc.status)
			}
		})
	}

	if msg := NewNotFoundError("call").Message; msg != "call not found" {
		t.Errorf("Message = %q, want %q", msg, "call not found")
	}
}

func TestHasCode_ThroughWrapping(t *testing.T) {
	base := NewNotFoundError("consultation")
	wrapped := fmt.Errorf("start call: %w", base)

	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should unwrap fmt.Errorf chains")
	}
	if IsConflict(wrapped) {
		t.Error("IsConflict should be false for NOT_FOUND")
	}
	if GetAppError(errors.New("plain")) != nil {
		t.Error("GetAppError should return nil for non-AppError")
	}
	if GetAppError(nil) != nil {
		t.Error("GetAppError should return nil for nil")
	}
}
