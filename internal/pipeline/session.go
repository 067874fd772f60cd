// Package pipeline composes the query pipeline for one search box session:
// classification, debounced suggestions, dropdown selection, address
// resolution and search dispatch.
package pipeline

import (
	"context"
	"sync"
	"time"

	"fractionax_search/internal/address"
	"fractionax_search/internal/classifier"
	"fractionax_search/internal/dispatch"
	"fractionax_search/internal/maps"
	"fractionax_search/internal/searchapi"
	"fractionax_search/internal/selection"
	"fractionax_search/internal/suggest"
	"fractionax_search/platform/apperr"
	"fractionax_search/platform/events"
	"fractionax_search/platform/logger"

	"github.com/google/uuid"
)

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Provider   suggest.Provider
	Searcher   dispatch.Searcher
	Classifier *classifier.Classifier
	// Bus receives session events. May be nil.
	Bus events.Bus
	// Renderer is told about results and committed addresses. May be nil.
	Renderer dispatch.Renderer
	Log      *logger.Logger
}

// Options tunes a session. Zero values select the defaults.
type Options struct {
	Debounce     time.Duration
	MinChars     int
	HistoryLimit int
	AfterFunc    suggest.AfterFunc
	Now          func() time.Time
}

// Session is one search box. All methods are safe for concurrent use.
type Session struct {
	id          uuid.UUID
	classifier  *classifier.Classifier
	fetcher     *suggest.Fetcher
	selection   *selection.Machine
	pointer     *selection.PointerHub
	resolver    *address.Resolver
	coordinator *dispatch.Coordinator
	bus         events.Bus
	renderer    dispatch.Renderer
	log         *logger.Logger
	now         func() time.Time
	changes     chan struct{}

	// commitMu serializes commits so each resolves and reports once.
	commitMu sync.Mutex

	mu         sync.Mutex
	deactivate func()
	listings   []searchapi.Listing
	summary    string
	selected   *address.Resolution
	warning    string
	lastActive time.Time
	closed     bool
}

// New wires a session and activates its outside-press listener.
func New(deps Deps, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.New(classifier.DefaultPolicy())
	}
	if deps.Renderer == nil {
		deps.Renderer = nopRenderer{}
	}

	id := uuid.New()
	s := &Session{
		id:         id,
		classifier: deps.Classifier,
		bus:        deps.Bus,
		renderer:   deps.Renderer,
		log:        deps.Log.WithSessionID(id.String()),
		now:        opts.Now,
		changes:    make(chan struct{}, 1),
		pointer:    selection.NewPointerHub(),
		lastActive: opts.Now(),
	}

	s.selection = selection.New(s.notify)
	s.fetcher = suggest.NewFetcher(deps.Provider, s.selection, s.log, suggest.Options{
		Delay:     opts.Debounce,
		MinChars:  opts.MinChars,
		AfterFunc: opts.AfterFunc,
		OnChange:  s.notify,
	})
	s.resolver = address.NewResolver(s.fetcher, s.log)
	s.coordinator = dispatch.NewCoordinator(deps.Searcher, sessionRenderer{s}, deps.Classifier, s.log, dispatch.Options{
		HistoryLimit: opts.HistoryLimit,
		Now:          opts.Now,
		OnAccept: func() {
			s.fetcher.Update("", classifier.ModeAddress)
		},
	})
	s.deactivate = s.selection.Activate(s.pointer)
	return s
}

// ID identifies the session.
func (s *Session) ID() uuid.UUID { return s.id }

// Changes signals asynchronous state changes (suggestions arriving, loading
// toggling). Signals coalesce; read View after each one.
func (s *Session) Changes() <-chan struct{} { return s.changes }

// Input handles a keystroke that changed the input text.
func (s *Session) Input(text string) classifier.Mode {
	s.touch()
	s.mu.Lock()
	s.warning = ""
	if s.selected != nil && s.selected.Address != text {
		s.selected = nil
	}
	s.mu.Unlock()

	mode := s.coordinator.SetInput(text)
	s.fetcher.Update(text, mode)
	_, rule := s.classifier.Explain(text)
	s.log.Debug("input classified", "mode", mode, "rule", rule)
	return mode
}

// Key applies a navigation key and reports whether the dropdown consumed it.
// Enter on a highlighted row commits that row.
func (s *Session) Key(ctx context.Context, k selection.Key) bool {
	s.touch()
	chosen, committed, consumed := s.selection.Key(k)
	if committed {
		s.commit(ctx, chosen)
	}
	return consumed
}

// Click commits the suggestion at index.
func (s *Session) Click(ctx context.Context, index int) error {
	s.touch()
	chosen, ok := s.selection.Click(index)
	if !ok {
		return apperr.BadRequest("no suggestion at that position").WithOp("pipeline.Click")
	}
	s.commit(ctx, chosen)
	return nil
}

// Pointer reports a pointer press.
func (s *Session) Pointer(r selection.Region) {
	s.touch()
	s.pointer.Press(r)
}

// Focus reports that the input regained focus.
func (s *Session) Focus() {
	s.touch()
	s.selection.Focus(s.coordinator.Input().Mode)
}

// Submit dispatches the current input.
func (s *Session) Submit(ctx context.Context) (*dispatch.Outcome, error) {
	s.touch()
	s.selection.Dismiss()

	out, err := s.coordinator.Submit(ctx)
	if dispatch.IsRejection(err) {
		return nil, err
	}

	if err != nil {
		s.publish(ctx, SearchFailed{
			BaseEvent: events.NewBaseEvent(s.id),
			Class:     dispatch.FailureClass(err),
			Reason:    err.Error(),
		})
		return nil, err
	}

	s.publish(ctx, SearchCompleted{
		BaseEvent: events.NewBaseEvent(s.id),
		Query:     out.Query,
		Mode:      string(out.Mode),
		Listings:  len(out.Listings),
	})
	return out, nil
}

// ClearConversation empties the history and resets the remote conversation.
func (s *Session) ClearConversation(ctx context.Context) {
	s.touch()
	s.coordinator.ClearConversation(ctx)
	s.publish(ctx, ConversationCleared{BaseEvent: events.NewBaseEvent(s.id)})
}

// LastActive is the time of the last user interaction.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Close stops timers, in-flight lookups and the pointer listener.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	deactivate := s.deactivate
	s.mu.Unlock()

	deactivate()
	s.fetcher.Close()
}

func (s *Session) commit(ctx context.Context, chosen maps.Suggestion) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.fetcher.Settle(chosen.Description)
	res := s.resolver.Resolve(ctx, chosen)
	s.coordinator.SelectAddress(res)

	s.mu.Lock()
	s.selected = &res
	s.warning = res.Warning()
	s.mu.Unlock()

	s.renderer.OnAddressSelect(res)
	s.publish(ctx, AddressSelected{
		BaseEvent:      events.NewBaseEvent(s.id),
		PlaceID:        chosen.PlaceID,
		Address:        res.Address,
		Valid:          res.Validation.IsValid,
		HasCoordinates: res.Validation.HasCoordinates,
		MissingFields:  res.Validation.MissingFields,
	})
	s.notify()
}

func (s *Session) publish(ctx context.Context, e events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, e)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// notify never blocks; it may run under component locks.
func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

type sessionRenderer struct {
	s *Session
}

func (r sessionRenderer) OnResults(listings []searchapi.Listing, summary string) {
	r.s.mu.Lock()
	r.s.listings = listings
	r.s.summary = summary
	r.s.mu.Unlock()
	r.s.renderer.OnResults(listings, summary)
	r.s.notify()
}

func (r sessionRenderer) OnAddressSelect(res address.Resolution) {
	r.s.renderer.OnAddressSelect(res)
}

type nopRenderer struct{}

func (nopRenderer) OnResults([]searchapi.Listing, string) {}
func (nopRenderer) OnAddressSelect(address.Resolution)   {}
