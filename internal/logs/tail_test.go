package logs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"weatherflow/internal/logs"
)

func TestLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weatherflow.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	lines, err := logs.LastLines(path, 2)
	if err != nil {
		t.Fatalf("LastLines returned error: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}

	lines, err = logs.LastLines(path, 10)
	if err != nil {
		t.Fatalf("LastLines returned error: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected all lines when limit exceeds file, got %#v", lines)
	}
}

func TestLastLinesMissingFile(t *testing.T) {
	lines, err := logs.LastLines(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no lines, got %#v", lines)
	}
}

func TestLastLinesRejectsDirectory(t *testing.T) {
	if _, err := logs.LastLines(t.TempDir(), 5); err == nil {
		t.Fatal("expected error for directory path")
	}
}

func TestTailText(t *testing.T) {
	text := "one\ntwo\nthree\nfour\n"
	if got := logs.TailText(text, 2); got != "three\nfour" {
		t.Fatalf("unexpected tail: %q", got)
	}
	if got := logs.TailText(text, 0); got != "" {
		t.Fatalf("expected empty tail for zero limit, got %q", got)
	}
}

func TestExcerpts(t *testing.T) {
	if logs.Excerpt("stderr", "  \n") != "" {
		t.Fatal("expected blank excerpt to be dropped")
	}
	joined := logs.JoinExcerpts(logs.Excerpt("stderr", "boom\n"), "", logs.Excerpt("namenode", "safe mode"))
	if !strings.HasPrefix(joined, "--- stderr ---\nboom") {
		t.Fatalf("unexpected excerpt: %q", joined)
	}
	if !strings.Contains(joined, "\n\n--- namenode ---\nsafe mode") {
		t.Fatalf("expected second excerpt separated by blank line: %q", joined)
	}
}
