// Package logging assembles structured slog loggers and attribute helpers
// used across weatherflow.
//
// It owns the console/JSON handlers, level and output plumbing, and
// context-aware helpers so stage code automatically tags log lines with the
// run ID, stage, and job name. A no-op logger is provided for tests and
// wiring code that cannot fail.
package logging
