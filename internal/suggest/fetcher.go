// Package suggest fetches address suggestions for the search box: debounced,
// cancellable, and guarded against stale responses.
package suggest

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"fractionax_search/internal/classifier"
	"fractionax_search/internal/maps"
	"fractionax_search/platform/logger"
)

const (
	// DefaultDelay is the quiet period after the last keystroke.
	DefaultDelay = 300 * time.Millisecond
	// DefaultMinChars is the shortest trimmed input that triggers a lookup.
	DefaultMinChars = 3
)

// Provider is the external autocomplete and place-details service.
type Provider interface {
	Autocomplete(ctx context.Context, query string) ([]maps.Suggestion, error)
	PlaceDetails(ctx context.Context, placeID string) (maps.PlaceDetails, error)
}

// Sink receives every suggestion list the fetcher decides to show. An empty
// list means "nothing to show".
type Sink interface {
	SetSuggestions(suggestions []maps.Suggestion)
}

// Options tunes a Fetcher. Zero values select the defaults.
type Options struct {
	Delay     time.Duration
	MinChars  int
	AfterFunc AfterFunc
	// OnChange is called (outside any lock) after loading state or the
	// suggestion list changed asynchronously.
	OnChange func()
}

// Fetcher turns keystrokes into at most one suggestion request per quiet
// period and publishes results to its Sink.
type Fetcher struct {
	provider  Provider
	sink      Sink
	log       *logger.Logger
	minChars  int
	debouncer *Debouncer
	onChange  func()

	mu      sync.Mutex
	current string
	seq     uint64
	active  uint64
	cancel  context.CancelFunc
	loading bool
	closed  bool
}

// NewFetcher builds a Fetcher publishing to sink.
func NewFetcher(provider Provider, sink Sink, log *logger.Logger, opts Options) *Fetcher {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.MinChars <= 0 {
		opts.MinChars = DefaultMinChars
	}
	if opts.OnChange == nil {
		opts.OnChange = func() {}
	}
	return &Fetcher{
		provider:  provider,
		sink:      sink,
		log:       log,
		minChars:  opts.MinChars,
		debouncer: NewDebouncer(opts.Delay, opts.AfterFunc),
		onChange:  opts.OnChange,
	}
}

// Update records a keystroke. In address mode with enough characters it
// (re)schedules a lookup for text; otherwise it drops pending and in-flight
// work and clears the suggestions.
func (f *Fetcher) Update(text string, mode classifier.Mode) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.current = text

	if mode != classifier.ModeAddress || utf8.RuneCountInString(strings.TrimSpace(text)) < f.minChars {
		f.debouncer.Cancel()
		changed := f.abandonLocked()
		f.sink.SetSuggestions(nil)
		f.mu.Unlock()
		if changed {
			f.onChange()
		}
		return
	}
	f.debouncer.Schedule(func() { f.fetch(text) })
	f.mu.Unlock()
}

// Settle makes text the current input without scheduling a lookup. Pending
// work is dropped and in-flight results for other text will be discarded.
func (f *Fetcher) Settle(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = text
	f.debouncer.Cancel()
}

// FetchDetails loads the full place record for a selected suggestion. It is
// not debounced.
func (f *Fetcher) FetchDetails(ctx context.Context, placeID string) (maps.PlaceDetails, error) {
	return f.provider.PlaceDetails(ctx, placeID)
}

// Loading reports whether a suggestion request is in flight.
func (f *Fetcher) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// Pending reports whether a lookup is waiting for the quiet period.
func (f *Fetcher) Pending() bool {
	return f.debouncer.Pending()
}

// Close stops all pending and in-flight work. Later calls are no-ops.
func (f *Fetcher) Close() {
	f.debouncer.Cancel()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.abandonLocked()
}

func (f *Fetcher) fetch(text string) {
	ctx, cancel := context.WithCancel(context.Background())

	f.mu.Lock()
	if f.closed || f.current != text {
		f.mu.Unlock()
		cancel()
		return
	}
	if f.cancel != nil {
		f.cancel()
	}
	f.seq++
	seq := f.seq
	f.active = seq
	f.cancel = cancel
	f.loading = true
	f.mu.Unlock()
	f.onChange()

	defer f.finish(seq, cancel)

	suggestions, err := f.provider.Autocomplete(ctx, text)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.active != seq || f.current != text {
		f.log.Debug("discarding stale suggestions", "query", text)
		return
	}
	if err != nil {
		f.log.Warn("suggestion lookup failed", "query", text, "error", err)
		f.sink.SetSuggestions(nil)
		return
	}
	f.sink.SetSuggestions(suggestions)
}

func (f *Fetcher) finish(seq uint64, cancel context.CancelFunc) {
	cancel()
	f.mu.Lock()
	if f.active == seq {
		f.active = 0
		f.cancel = nil
		f.loading = false
	}
	f.mu.Unlock()
	f.onChange()
}

// abandonLocked cancels the in-flight request and clears loading.
// It reports whether loading was set.
func (f *Fetcher) abandonLocked() bool {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.active = 0
	wasLoading := f.loading
	f.loading = false
	return wasLoading
}
