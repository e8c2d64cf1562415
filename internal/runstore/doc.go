// Package runstore persists pipeline run history in SQLite so `status` can
// report the most recent run after the process that executed it has exited.
package runstore
