// Package logs provides file tailing helpers for the CLI.
//
// It reads trailing lines with bounded memory and supports follow-mode
// polling for `mediasync logs -f`. Callers supply a context so polling shuts
// down cleanly when the CLI exits.
package logs
