package readiness_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"weatherflow/internal/cluster"
	"weatherflow/internal/readiness"
	"weatherflow/internal/services"
	"weatherflow/internal/testsupport"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newProber(t *testing.T, fake *testsupport.FakeCluster) *readiness.Prober {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return readiness.New(cluster.NewAdmin(cfg, fake, nil), nil, readiness.WithSleeper(noSleep))
}

func TestNodeDownFailsAfterOneAttempt(t *testing.T) {
	fake := testsupport.NewFakeCluster()
	fake.Probes = []testsupport.ProbeState{testsupport.StateNodeDown}
	prober := newProber(t, fake)

	err := prober.WaitUntilReady(context.Background(), 30, time.Second)
	if !errors.Is(err, readiness.ErrNodeDown) {
		t.Fatalf("expected ErrNodeDown, got %v", err)
	}
	if prober.Attempts() != 1 {
		t.Fatalf("expected 1 attempt, got %d", prober.Attempts())
	}
	if fake.Count("report") != 0 {
		t.Fatal("report must not be requested when the node is down")
	}
}

func TestWriteProtectedThenReady(t *testing.T) {
	fake := testsupport.NewFakeCluster()
	fake.Probes = []testsupport.ProbeState{
		testsupport.StateWriteProtected,
		testsupport.StateWriteProtected,
		testsupport.StateReady,
	}
	prober := newProber(t, fake)

	if err := prober.WaitUntilReady(context.Background(), 30, time.Second); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}
	if prober.Attempts() != 3 {
		t.Fatalf("expected 3 attempts, got %d", prober.Attempts())
	}
	if fake.Count("leave") != 2 {
		t.Fatalf("expected leave issued twice, got %d", fake.Count("leave"))
	}
	if prober.LastState() != readiness.StateReady {
		t.Fatalf("expected ready state, got %s", prober.LastState())
	}
}

func TestReportFailuresAreRetried(t *testing.T) {
	fake := testsupport.NewFakeCluster()
	fake.Probes = []testsupport.ProbeState{testsupport.StateReportFails, testsupport.StateReady}
	prober := newProber(t, fake)

	if err := prober.WaitUntilReady(context.Background(), 5, 0); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}
	if prober.Attempts() != 2 {
		t.Fatalf("expected 2 attempts, got %d", prober.Attempts())
	}
}

func TestExhaustedBudgetCarriesLogs(t *testing.T) {
	fake := testsupport.NewFakeCluster()
	fake.Probes = []testsupport.ProbeState{testsupport.StateWriteProtected}
	fake.Logs = "WARN The reported blocks 0 needs additional 12 blocks"
	prober := newProber(t, fake)

	err := prober.WaitUntilReady(context.Background(), 4, 0)
	var timeoutErr *readiness.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatal("expected timeout marker")
	}
	if timeoutErr.Attempts != 4 || prober.Attempts() != 4 {
		t.Fatalf("expected 4 attempts, got %d", timeoutErr.Attempts)
	}
	if timeoutErr.LastState != readiness.StateWriteProtected {
		t.Fatalf("unexpected last state %s", timeoutErr.LastState)
	}
	if !strings.Contains(timeoutErr.Logs, "additional 12 blocks") {
		t.Fatalf("expected coordinator log tail, got %q", timeoutErr.Logs)
	}
	if fake.Count("leave") != 4 {
		t.Fatalf("expected leave on every attempt, got %d", fake.Count("leave"))
	}
}
