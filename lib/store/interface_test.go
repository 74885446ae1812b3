package store

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestErrorClassification tests the typed error helpers
func TestErrorClassification(t *testing.T) {
	unavailable := NewError(RetCUnavailable, "connection refused")
	backendFault := NewError(RetCBackendError, "agent fault")

	if !IsUnavailable(unavailable) {
		t.Error("IsUnavailable() should match RetCUnavailable")
	}
	if IsUnavailable(backendFault) {
		t.Error("IsUnavailable() should not match RetCBackendError")
	}
	if !IsBackendError(backendFault) {
		t.Error("IsBackendError() should match RetCBackendError")
	}
	if IsBackendError(unavailable) {
		t.Error("IsBackendError() should not match RetCUnavailable")
	}

	// Plain errors match neither
	plain := errors.New("something else")
	if IsUnavailable(plain) || IsBackendError(plain) {
		t.Error("plain errors should not classify as backend errors")
	}
	if IsUnavailable(nil) || IsBackendError(nil) {
		t.Error("nil should not classify as a backend error")
	}
}

// TestErrorClassificationThroughWrapping tests that classification survives wrapping
func TestErrorClassificationThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("operation failed: %w", NewError(RetCUnavailable, "timeout"))

	if !IsUnavailable(wrapped) {
		t.Error("IsUnavailable() should match through error wrapping")
	}
}

// TestErrorMessage tests that the message carries the code name and detail
func TestErrorMessage(t *testing.T) {
	msg := NewErrorf(RetCBackendError, "key %q rejected", "k").Error()

	if !strings.Contains(msg, "BackendError") {
		t.Errorf("error message %q should name the code", msg)
	}
	if !strings.Contains(msg, `key "k" rejected`) {
		t.Errorf("error message %q should carry the detail", msg)
	}
}

// TestBackendKindString tests the BackendKind labels
func TestBackendKindString(t *testing.T) {
	if KindInMemory.String() != "inmemory" {
		t.Errorf("KindInMemory.String() = %q", KindInMemory.String())
	}
	if KindSidecar.String() != "sidecar" {
		t.Errorf("KindSidecar.String() = %q", KindSidecar.String())
	}
	if BackendKind(99).String() != "unknown" {
		t.Errorf("BackendKind(99).String() = %q", BackendKind(99).String())
	}
}
