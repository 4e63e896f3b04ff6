// Package services holds cross-cutting helpers shared by executors and the
// dispatcher: sentinel error markers with a Wrap helper for classification,
// and context plumbing for task/source identifiers used in structured logs.
package services
