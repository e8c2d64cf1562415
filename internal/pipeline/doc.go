// Package pipeline sequences a full weatherflow run.
//
// A run always records seven stage results in a fixed order:
//
//	lifecycle-start, readiness, stage-input, run-temperature,
//	run-precipitation, retrieve-outputs, report
//
// Failures in the first three stages abort the run; the stages that
// follow are recorded as skipped but the report stage still runs. Job and
// retrieval failures are recorded and the run continues, ending in a
// partial failure.
package pipeline
