package store

import "context"

// SourceHooks are lifecycle callbacks dispatched around source mutations.
// BeforeUpdate receives the currently persisted row and the about-to-be-written
// values; it is not invoked on the creation path. Hook errors abort the
// mutation for the before-* hooks and are returned to the caller for the
// after-* hooks.
type SourceHooks struct {
	BeforeUpdate func(ctx context.Context, old, updated *Source) error
	AfterSave    func(ctx context.Context, source *Source, created bool) error
	BeforeDelete func(ctx context.Context, source *Source) error
	AfterDelete  func(ctx context.Context, source *Source) error
}

// MediaHooks are lifecycle callbacks dispatched around media mutations.
type MediaHooks struct {
	AfterSave    func(ctx context.Context, media *Media, created bool) error
	BeforeDelete func(ctx context.Context, media *Media) error
	AfterDelete  func(ctx context.Context, media *Media) error
}

// SetSourceHooks registers the source lifecycle callbacks. Call before any
// mutation traffic; hooks are not synchronized against concurrent replacement.
func (s *Store) SetSourceHooks(hooks SourceHooks) {
	s.sourceHooks = hooks
}

// SetMediaHooks registers the media lifecycle callbacks.
func (s *Store) SetMediaHooks(hooks MediaHooks) {
	s.mediaHooks = hooks
}
