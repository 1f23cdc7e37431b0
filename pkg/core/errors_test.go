package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "No Agent ID",
	}

	expected := "invalid_request_error: No Agent ID"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrConnection,
		Message: "dial failed",
		Code:    "ws_dial_failed",
	}

	expected := "connection_error: dial failed (code: ws_dial_failed)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestClassify_PermissionIsPermanent(t *testing.T) {
	err := NewPermissionError("microphone permission denied")
	if Classify(err) != ClassPermanent {
		t.Errorf("Classify(permission) = %v, want permanent", Classify(err))
	}
	if err.IsRetryable() {
		t.Error("permission error should not be retryable")
	}
}

func TestClassify_WrappedPermission(t *testing.T) {
	err := fmt.Errorf("connect: %w", NewPermissionError("denied"))
	if Classify(err) != ClassPermanent {
		t.Error("wrapped permission error should classify permanent")
	}
}

func TestClassify_TransientByDefault(t *testing.T) {
	cases := []error{
		errors.New("connection reset by peer"),
		NewTimeoutError("handshake timed out"),
		NewConnectionError("dial failed", errors.New("refused")),
	}
	for _, err := range cases {
		if Classify(err) != ClassTransient {
			t.Errorf("Classify(%v) = %v, want transient", err, Classify(err))
		}
	}
}

func TestIsPermissionDenied_MessageMatch(t *testing.T) {
	err := errors.New("NotAllowedError: Permission denied by user")
	if !IsPermissionDenied(err) {
		t.Error("expected message-based permission detection")
	}
}

func TestIsCancellation(t *testing.T) {
	if !IsCancellation(context.Canceled) {
		t.Error("context.Canceled should be cancellation")
	}
	if !IsCancellation(fmt.Errorf("teardown: %w", context.DeadlineExceeded)) {
		t.Error("wrapped deadline should be cancellation")
	}
	if IsCancellation(errors.New("boom")) {
		t.Error("plain error should not be cancellation")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("refused")
	err := NewTransportError("dial", inner)
	if !errors.Is(err, inner) {
		t.Error("Unwrap should expose the underlying error")
	}
}
