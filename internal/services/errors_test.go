package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"weatherflow/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "stage-input", "put", "upload failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"stage-input", "put", "upload failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.ErrorClass
	}{
		{"nil", nil, services.ClassNone},
		{"configuration", services.Wrap(services.ErrConfiguration, "preflight", "", "missing docker", nil), services.ClassConfiguration},
		{"timeout", services.Wrap(services.ErrTimeout, "run-temperature", "", "", nil), services.ClassTimeout},
		{"verification", fmt.Errorf("outer: %w", services.ErrVerification), services.ClassVerification},
		{"not found", services.Wrap(services.ErrNotFound, "retrieve", "", "", nil), services.ClassNotFound},
		{"canceled", fmt.Errorf("poll: %w", context.Canceled), services.ClassCanceled},
		{"untagged", errors.New("flaky"), services.ClassTransient},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestConfigurationWinsOverOtherMarkers(t *testing.T) {
	err := fmt.Errorf("%w: %w", services.ErrTimeout, services.ErrConfiguration)
	if !services.IsConfiguration(err) {
		t.Fatal("expected configuration marker to be detected")
	}
	if services.Classify(err) != services.ClassConfiguration {
		t.Fatalf("expected configuration class, got %q", services.Classify(err))
	}
}
