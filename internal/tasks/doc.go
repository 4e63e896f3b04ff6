// Package tasks is the persistent background task registry. It stores units
// of work in SQLite keyed by (kind, target, args), replaces pending
// duplicates on enqueue, and hands tasks to workers in priority order while
// keeping each queue partition serial.
package tasks
