// Package store persists sources, media items, and media server
// registrations in SQLite and dispatches lifecycle hooks around entity
// mutations. Hooks fire on the normal save and delete paths;
// UpdateMediaDerived writes derived media columns without hooks so the
// reconciler can persist computed state without re-entering itself.
package store
