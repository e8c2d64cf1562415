package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"weatherflow/internal/cluster"
	"weatherflow/internal/pipeline"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Cluster", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Cluster:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Cluster", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestStatusKindStyleFallsBackToInfo(t *testing.T) {
	if label, color := statusKind(42).style(); label != "INFO" || color != ansiBlue {
		t.Fatalf("expected INFO fallback, got %q %q", label, color)
	}
}

func TestWriteSection(t *testing.T) {
	var b strings.Builder
	writeSection(&b, " Last run ", []string{"a"}, false)
	if got, want := b.String(), "== Last run ==\n--------------\na\n\n"; got != want {
		t.Fatalf("writeSection mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestClusterLines(t *testing.T) {
	state := cluster.ClusterState{
		Reachable: true,
		Services: []cluster.ServiceState{
			{Name: "namenode", State: "running"},
			{Name: "datanode", State: "exited"},
		},
	}
	lines := clusterLines(state, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[WARN] some services are not running (2 services)") {
		t.Fatalf("unexpected summary line %q", lines[0])
	}
	if !strings.Contains(lines[2], "[ERROR] exited") {
		t.Fatalf("expected exited datanode, got %q", lines[2])
	}

	unreachable := clusterLines(cluster.ClusterState{Detail: "docker: not found\nmore"}, false)
	if len(unreachable) != 1 || !strings.Contains(unreachable[0], "unreachable: docker: not found") {
		t.Fatalf("unexpected unreachable lines %v", unreachable)
	}
}

func TestRenderRunListsEveryStage(t *testing.T) {
	run := &pipeline.Run{ID: "abc", Outcome: pipeline.RunPartialFailure}
	for _, name := range pipeline.StageOrder {
		run.Stages = append(run.Stages, pipeline.StageResult{Name: name, Outcome: pipeline.OutcomeSuccess, Attempts: 1})
	}
	run.Stages[3].Outcome = pipeline.OutcomeFailed
	run.Stages[3].Diagnostic = "job timed out\nstderr tail"

	out := renderRun(run, false)
	for _, name := range pipeline.StageOrder {
		requireContains(t, out, pipeline.Label(name))
	}
	requireContains(t, out, "job timed out")
	if strings.Contains(out, "stderr tail") {
		t.Fatalf("detail column should only show the first diagnostic line:\n%s", out)
	}
	requireContains(t, out, "[WARN] partial_failure")
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
