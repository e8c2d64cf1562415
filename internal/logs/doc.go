// Package logs provides bounded-memory tail helpers used to build diagnostic
// excerpts for failed stages.
//
// Excerpts come from three places: local log files (the run log), captured
// process output, and text returned by commands executed inside the cluster.
// All three are reduced to the last N lines so a StageResult stays readable.
package logs
