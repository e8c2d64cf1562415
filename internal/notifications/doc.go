// Package notifications pushes run-completion messages to an ntfy topic.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers can notify unconditionally. Delivery is best effort: errors are
// returned to the caller for logging and never change a run's outcome.
package notifications
