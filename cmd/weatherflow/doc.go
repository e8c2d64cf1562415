// Package main hosts the weatherflow CLI entrypoint and command graph.
//
// The Cobra command tree maps terminal invocations onto the pipeline
// orchestrator, the cluster lifecycle manager, and the run history store.
// Configuration resolution, logger construction, and the run lock live in
// commandContext so subcommands only deal with presentation.
package main
