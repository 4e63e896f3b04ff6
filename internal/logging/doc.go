// Package logging builds the slog loggers used across mediasync.
//
// It provides console and JSON handlers, file fan-out, attribute helpers with
// standardized field names, and context plumbing so the dispatcher and
// executors emit consistent task/source identifiers without threading them
// manually.
package logging
