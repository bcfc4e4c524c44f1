package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"drowsy/internal/services"
)

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("boom")
	marker := errors.New("marker")
	err := services.Wrap(marker, "camera", "acquire", "open device", cause)
	if !errors.Is(err, marker) || !errors.Is(err, cause) {
		t.Fatalf("expected marker and cause in chain: %v", err)
	}
	if !strings.Contains(err.Error(), "camera: acquire: open device") {
		t.Fatalf("unexpected detail: %q", err.Error())
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := services.WithSessionID(context.Background(), "s-1")
	ctx = services.WithRequestID(ctx, "r-1")
	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "s-1" {
		t.Fatalf("unexpected session id %q ok=%v", id, ok)
	}
	if id, ok := services.RequestIDFromContext(ctx); !ok || id != "r-1" {
		t.Fatalf("unexpected request id %q ok=%v", id, ok)
	}
	if _, ok := services.SessionIDFromContext(services.WithSessionID(context.Background(), "")); ok {
		t.Fatal("empty session id should not be stored")
	}
}
