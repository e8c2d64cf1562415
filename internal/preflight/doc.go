// Package preflight validates the local environment before a pipeline run
// touches the cluster: required binaries, readable inputs, and writable
// output directories. Any failure is a configuration error and aborts the run.
package preflight
