// Package reconcile contains the lifecycle rules that keep the task registry
// converged with entity state. Source and media mutations re-derive
// dependent flags, persist them once without re-entering the rules, and
// enqueue or cancel background tasks so that at most one pending task exists
// per key.
package reconcile
