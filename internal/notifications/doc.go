// Package notifications delivers archive events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Download and error categories can be toggled independently so a
// busy archive does not page its owner for every file.
//
// Extend this package if you need alternative transports; all dispatcher code
// depends only on the simple Service interface.
package notifications
