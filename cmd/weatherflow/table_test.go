package main

import (
	"strings"
	"testing"
)

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]column{{header: "Stage"}, {header: "Attempts", align: alignRight}}, [][]string{{"readiness"}})
	if !strings.Contains(out, "Stage") || !strings.Contains(out, "readiness") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if strings.Contains(out, "STAGE") {
		t.Fatalf("expected headers as written, got:\n%s", out)
	}
	if lines := strings.Split(out, "\n"); len(lines) != 5 {
		t.Fatalf("expected 5 rendered lines, got %d:\n%s", len(lines), out)
	}
}

func TestRenderTableWrapsWideColumns(t *testing.T) {
	out := renderTable([]column{{header: "Detail", maxWidth: 10}}, [][]string{{"one two three four"}})
	for _, line := range strings.Split(out, "\n") {
		if len([]rune(line)) > 14 {
			t.Fatalf("expected wrapped column, got line %q", line)
		}
	}
}

func TestRenderTableWithoutColumns(t *testing.T) {
	if out := renderTable(nil, [][]string{{"x"}}); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}
