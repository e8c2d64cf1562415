package procexec_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"weatherflow/internal/procexec"
	"weatherflow/internal/services"
)

func TestRunCapturesOutput(t *testing.T) {
	runner := procexec.New()
	result, err := runner.Run(context.Background(), procexec.Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err 1>&2"},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if strings.TrimSpace(string(result.Stdout)) != "out" {
		t.Fatalf("unexpected stdout %q", result.Stdout)
	}
	if strings.TrimSpace(string(result.Stderr)) != "err" {
		t.Fatalf("unexpected stderr %q", result.Stderr)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", result.ExitCode)
	}
}

func TestRunReportsExitCode(t *testing.T) {
	runner := procexec.New()
	result, err := runner.Run(context.Background(), procexec.Command{
		Name: "sh",
		Args: []string{"-c", "echo first 1>&2; echo boom 1>&2; exit 3"},
	})
	var exitErr *procexec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if result.ExitCode != 3 || exitErr.Result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
	if !strings.HasSuffix(err.Error(), "boom") {
		t.Fatalf("expected last stderr line in message, got %q", err.Error())
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatal("expected exit error to carry external tool marker")
	}
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	runner := procexec.New()
	start := time.Now()
	result, err := runner.Run(context.Background(), procexec.Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 30 & sleep 30"},
		Timeout: 200 * time.Millisecond,
	})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !result.TimedOut {
		t.Fatal("expected TimedOut flag")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
}

func TestRunMissingBinaryIsConfigurationError(t *testing.T) {
	runner := procexec.New()
	_, err := runner.Run(context.Background(), procexec.Command{Name: "weatherflow-definitely-missing"})
	if !services.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunCancelledContext(t *testing.T) {
	runner := procexec.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Run(ctx, procexec.Command{Name: "sh", Args: []string{"-c", "sleep 5"}})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if errors.Is(err, services.ErrTimeout) {
		t.Fatalf("cancellation must not be reported as timeout: %v", err)
	}
}
