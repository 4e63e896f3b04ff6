// Package filtering decides whether a media item should be skipped based on
// its source's filter settings. Rules run in a fixed order and the first
// match wins; an item passing every rule is downloadable.
package filtering

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"mediasync/internal/logging"
	"mediasync/internal/store"
)

const day = 24 * time.Hour

// Engine evaluates source filter rules against media items. Compiled title
// filters are cached per pattern.
type Engine struct {
	logger *slog.Logger

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		logger:   logger.With(logging.String(logging.FieldComponent, "filtering")),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// ShouldSkip reports whether media should be skipped under its source's
// filter settings, with a human-readable reason for the first rule that
// matched. Manual skips are handled by the caller and are not consulted
// here.
func (e *Engine) ShouldSkip(source *store.Source, media *store.Media, now time.Time) (bool, string) {
	if source == nil || media == nil {
		return false, ""
	}

	if skip, reason := e.titleFiltered(source, media); skip {
		return true, reason
	}
	if skip, reason := publishedTooOld(source, media, now); skip {
		return true, reason
	}
	if skip, reason := durationOutOfRange(source, media); skip {
		return true, reason
	}
	return false, ""
}

// titleFiltered skips items whose title does not match the source's filter
// pattern. An empty pattern or an unparseable one filters nothing.
func (e *Engine) titleFiltered(source *store.Source, media *store.Media) (bool, string) {
	if source.FilterText == "" {
		return false, ""
	}
	pattern, err := e.compile(source.FilterText)
	if err != nil {
		e.logger.Warn("invalid filter pattern, skipping rule",
			logging.String("pattern", source.FilterText),
			logging.Error(err))
		return false, ""
	}
	if media.Title == "" || !pattern.MatchString(media.Title) {
		return true, fmt.Sprintf("title does not match filter %q", source.FilterText)
	}
	return false, ""
}

func publishedTooOld(source *store.Source, media *store.Media, now time.Time) (bool, string) {
	if source.DownloadCapDays <= 0 || media.Published == nil {
		return false, ""
	}
	cutoff := now.Add(-time.Duration(source.DownloadCapDays) * day)
	if media.Published.Before(cutoff) {
		return true, fmt.Sprintf("published %s is older than the %d day cap",
			media.Published.Format(time.DateOnly), source.DownloadCapDays)
	}
	return false, ""
}

func durationOutOfRange(source *store.Source, media *store.Media) (bool, string) {
	if media.Duration <= 0 {
		return false, ""
	}
	if source.MinDuration > 0 && media.Duration < source.MinDuration {
		return true, fmt.Sprintf("duration %ds is below the %ds minimum", media.Duration, source.MinDuration)
	}
	if source.MaxDuration > 0 && media.Duration > source.MaxDuration {
		return true, fmt.Sprintf("duration %ds is above the %ds maximum", media.Duration, source.MaxDuration)
	}
	return false, ""
}

func (e *Engine) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if compiled, ok := e.patterns[pattern]; ok {
		return compiled, nil
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	e.patterns[pattern] = compiled
	return compiled, nil
}
