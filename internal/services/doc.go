// Package services defines shared utilities consumed by the pipeline stages
// and the cluster adapters.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs and stage names for logging.
//   - Structured error markers plus the Wrap helper that let the orchestrator
//     decide between aborting a run and recording a non-fatal stage failure.
//
// Use these helpers when wiring new stage logic so error classification stays
// uniform across the pipeline.
package services
