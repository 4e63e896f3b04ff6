// Package daemon coordinates the long-running mediasync process.
//
// It wires configuration, the entity store, the task registry, and the worker
// dispatcher into a single lifecycle with flock-based locking to prevent
// multiple instances. Individual task implementations live in their own
// packages; the daemon focuses on startup, shutdown, and status reporting.
package daemon
