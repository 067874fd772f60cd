package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
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
)

func ptr(v float64) *float64 { return &v }

type stepClock struct {
	mu    sync.Mutex
	funcs []func()
}

type stepTimer struct {
	clock *stepClock
	idx   int
}

func (t stepTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := t.clock.funcs[t.idx] != nil
	t.clock.funcs[t.idx] = nil
	return active
}

func (c *stepClock) AfterFunc(_ time.Duration, f func()) suggest.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs = append(c.funcs, f)
	return stepTimer{clock: c, idx: len(c.funcs) - 1}
}

func (c *stepClock) fire() {
	c.mu.Lock()
	var due []func()
	for i, f := range c.funcs {
		if f != nil {
			due = append(due, f)
			c.funcs[i] = nil
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

type fakeMaps struct {
	mu           sync.Mutex
	autocomplete []string
	details      []string
	detailsErr   error
}

func (f *fakeMaps) Autocomplete(_ context.Context, q string) ([]maps.Suggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autocomplete = append(f.autocomplete, q)
	return []maps.Suggestion{
		{PlaceID: "W1", Description: "123 Main Street, Houston, TX 77002"},
		{PlaceID: "W2", Description: "123 Main Street, Katy, TX 77494"},
	}, nil
}

func (f *fakeMaps) PlaceDetails(_ context.Context, placeID string) (maps.PlaceDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details = append(f.details, placeID)
	if f.detailsErr != nil {
		return maps.PlaceDetails{}, f.detailsErr
	}
	return maps.PlaceDetails{
		PlaceID:   placeID,
		Latitude:  ptr(29.76),
		Longitude: ptr(-95.37),
		Components: maps.AddressComponents{
			HouseNumber: "123", Road: "Main Street", City: "Houston", StateCode: "TX", Postcode: "77002",
		},
	}, nil
}

type fakeSearch struct {
	mu       sync.Mutex
	requests []searchapi.Request
	resp     searchapi.Response
	err      error
	resets   int
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeSearch) Search(_ context.Context, req searchapi.Request) (searchapi.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block, started := f.block, f.started
	resp, err := f.resp, f.err
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	return resp, err
}

func (f *fakeSearch) ResetConversation(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

type countingRenderer struct {
	mu        sync.Mutex
	results   int
	selects   []address.Resolution
	lastItems []searchapi.Listing
}

func (r *countingRenderer) OnResults(listings []searchapi.Listing, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results++
	r.lastItems = listings
}

func (r *countingRenderer) OnAddressSelect(res address.Resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selects = append(r.selects, res)
}

type harness struct {
	session  *Session
	clock    *stepClock
	maps     *fakeMaps
	search   *fakeSearch
	renderer *countingRenderer
	bus      *events.InMemoryBus
	seen     *[]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Discard()
	bus := events.NewInMemoryBus(log)
	var mu sync.Mutex
	seen := []string{}
	record := events.HandlerFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.EventName())
		return nil
	})
	for _, name := range []string{EventAddressSelected, EventSearchCompleted, EventSearchFailed, EventConversationCleared} {
		bus.Subscribe(name, record)
	}

	h := &harness{
		clock:    &stepClock{},
		maps:     &fakeMaps{},
		search:   &fakeSearch{},
		renderer: &countingRenderer{},
		bus:      bus,
		seen:     &seen,
	}
	h.session = New(Deps{
		Provider: h.maps,
		Searcher: h.search,
		Bus:      bus,
		Renderer: h.renderer,
		Log:      log,
	}, Options{AfterFunc: h.clock.AfterFunc})
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) typeText(text string) {
	for i := 1; i <= len(text); i++ {
		h.session.Input(text[:i])
	}
}

func (h *harness) events() []string {
	h.bus.Wait()
	return append([]string(nil), *h.seen...)
}

func TestAddressFlowFromKeystrokesToResults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.search.resp = searchapi.Response{
		Listings: []searchapi.Listing{{ID: "a"}, {ID: "b", Latitude: ptr(30), Longitude: ptr(-96)}},
		Summary:  "Analysis ready",
	}

	h.typeText("123 Main")
	if v := h.session.View(); v.Input.Mode != classifier.ModeAddress || !v.SuggestPending {
		t.Fatalf("expected pending address lookup, got %+v", v)
	}
	h.clock.fire()

	if len(h.maps.autocomplete) != 1 || h.maps.autocomplete[0] != "123 Main" {
		t.Fatalf("expected one lookup for final text, got %v", h.maps.autocomplete)
	}
	v := h.session.View()
	if !v.Selection.Open || v.Selection.HighlightedIndex != -1 || len(v.Selection.Suggestions) != 2 || v.Loading {
		t.Fatalf("expected open dropdown, got %+v", v.Selection)
	}

	h.session.Key(ctx, selection.ArrowDown)
	if !h.session.Key(ctx, selection.Enter) {
		t.Fatalf("expected enter consumed")
	}
	if len(h.maps.details) != 1 || h.maps.details[0] != "W1" {
		t.Fatalf("expected one details call, got %v", h.maps.details)
	}
	if len(h.renderer.selects) != 1 || !h.renderer.selects[0].Validation.IsValid {
		t.Fatalf("expected one valid address selection, got %+v", h.renderer.selects)
	}

	v = h.session.View()
	if v.Input.Text != "123 Main Street, Houston, TX 77002" || v.Selection.Open || v.Address == nil {
		t.Fatalf("unexpected view after commit %+v", v)
	}

	out, err := h.session.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if want := dispatch.AnalysisPrefix + "123 Main Street, Houston, TX 77002"; h.search.requests[0].Query != want {
		t.Fatalf("expected framed query, got %q", h.search.requests[0].Query)
	}
	if out.Listings[0].Latitude == nil || *out.Listings[0].Latitude != 29.76 || *out.Listings[1].Latitude != 30 {
		t.Fatalf("unexpected backfill %+v", out.Listings)
	}
	if h.renderer.results != 1 {
		t.Fatalf("expected one results render, got %d", h.renderer.results)
	}

	v = h.session.View()
	if v.Input.Text != "" || len(v.History) != 2 || v.Summary != "Analysis ready" || len(v.Listings) != 2 {
		t.Fatalf("unexpected view after submit %+v", v)
	}

	got := h.events()
	if len(got) != 2 || got[0] != EventAddressSelected || got[1] != EventSearchCompleted {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestTypingAfterSelectionRequiresNewSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.typeText("123 Main")
	h.clock.fire()
	if err := h.session.Click(ctx, 1); err != nil {
		t.Fatalf("click: %v", err)
	}
	h.session.Input("123 Main Street, Katy, TX 7749")

	if _, err := h.session.Submit(ctx); !errors.Is(err, dispatch.ErrAddressRequired) {
		t.Fatalf("expected address required, got %v", err)
	}
	if len(h.search.requests) != 0 {
		t.Fatalf("expected no search call")
	}
	if h.session.View().Address != nil {
		t.Fatalf("expected selection dropped after edit")
	}
}

func TestDetailFailureKeepsTextAndWarns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.maps.detailsErr = apperr.Unavailable("lookup down")

	h.typeText("123 Main")
	h.clock.fire()
	if err := h.session.Click(ctx, 0); err != nil {
		t.Fatalf("click: %v", err)
	}

	v := h.session.View()
	if v.Input.Text != "123 Main Street, Houston, TX 77002" {
		t.Fatalf("expected suggestion text kept, got %q", v.Input.Text)
	}
	if v.Warning == "" || v.Address == nil || v.Address.Validation.IsValid {
		t.Fatalf("expected degraded selection with warning, got %+v", v)
	}
	if len(h.renderer.selects) != 1 {
		t.Fatalf("expected one selection callback")
	}
	if _, err := h.session.Submit(ctx); !errors.Is(err, dispatch.ErrAddressRequired) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestClickWithoutSuggestionsIsBadRequest(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Click(context.Background(), 0); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestNaturalQueryFailureIsReported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.search.err = errors.New("failed to fetch")

	h.session.Input("find homes with a pool near downtown")
	h.clock.fire()
	if len(h.maps.autocomplete) != 0 {
		t.Fatalf("natural input must not request suggestions")
	}

	_, err := h.session.Submit(ctx)
	if dispatch.FailureClass(err) != dispatch.ClassNetwork {
		t.Fatalf("expected network class, got %v", err)
	}
	v := h.session.View()
	if v.InlineError != dispatch.ClassNetwork.Message() || len(v.History) != 2 || !v.History[1].IsError {
		t.Fatalf("unexpected view %+v", v)
	}
	if got := h.events(); len(got) != 1 || got[0] != EventSearchFailed {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestOutsidePressAndFocus(t *testing.T) {
	h := newHarness(t)

	h.typeText("123 Main")
	h.clock.fire()
	h.session.Key(context.Background(), selection.ArrowDown)

	h.session.Pointer(selection.RegionOutside)
	if st := h.session.View().Selection; st.Open || st.HighlightedIndex != -1 {
		t.Fatalf("expected closed dropdown, got %+v", st)
	}
	if h.session.Key(context.Background(), selection.ArrowDown) {
		t.Fatalf("keys must be ignored while closed")
	}

	h.session.Focus()
	if st := h.session.View().Selection; !st.Open || st.HighlightedIndex != -1 {
		t.Fatalf("expected reopened dropdown, got %+v", st)
	}
}

func TestCloseReleasesListenerAndStopsLookups(t *testing.T) {
	h := newHarness(t)
	if h.session.pointer.Listeners() != 1 {
		t.Fatalf("expected one listener while open")
	}

	h.typeText("123 Main")
	h.session.Close()
	h.session.Close()
	h.clock.fire()

	if h.session.pointer.Listeners() != 0 {
		t.Fatalf("expected listener removed on close")
	}
	if len(h.maps.autocomplete) != 0 {
		t.Fatalf("expected no lookups after close")
	}
}

func TestClearConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.search.resp = searchapi.Response{Summary: "ok"}

	h.session.Input("show me condos")
	if _, err := h.session.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.session.ClearConversation(ctx)

	if len(h.session.View().History) != 0 || h.search.resets != 1 {
		t.Fatalf("expected cleared history and a reset call")
	}
}

func TestTypingDuringDispatchKeepsSuggestions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.search.resp = searchapi.Response{Summary: "ok"}
	h.search.block = make(chan struct{})
	h.search.started = make(chan struct{})

	h.session.Input("show me homes with a pool")
	done := make(chan error, 1)
	go func() {
		_, err := h.session.Submit(ctx)
		done <- err
	}()
	<-h.search.started

	h.typeText("456 Elm St")
	close(h.search.block)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.clock.fire()

	h.maps.mu.Lock()
	lookups := append([]string(nil), h.maps.autocomplete...)
	h.maps.mu.Unlock()
	if len(lookups) != 1 || lookups[0] != "456 Elm St" {
		t.Fatalf("expected one lookup for text typed during dispatch, got %v", lookups)
	}
	v := h.session.View()
	if v.Input.Text != "456 Elm St" || !v.Selection.Open || len(v.Selection.Suggestions) != 2 {
		t.Fatalf("expected open dropdown for new text, got input %q selection %+v", v.Input.Text, v.Selection)
	}
}
