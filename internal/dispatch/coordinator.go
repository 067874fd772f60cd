// Package dispatch owns the search box input and the conversation, decides how
// a submission is framed, and hands results to the renderer.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fractionax_search/internal/address"
	"fractionax_search/internal/classifier"
	"fractionax_search/internal/searchapi"
	"fractionax_search/platform/apperr"
	"fractionax_search/platform/logger"

	"github.com/google/uuid"
)

// DefaultHistoryLimit is how many past turns accompany a search.
const DefaultHistoryLimit = 10

// AnalysisPrefix frames an address as an analysis request.
const AnalysisPrefix = "Provide a detailed property analysis for "

// Searcher is the remote search capability.
type Searcher interface {
	Search(ctx context.Context, req searchapi.Request) (searchapi.Response, error)
	ResetConversation(ctx context.Context) error
}

// Renderer receives results and committed addresses.
type Renderer interface {
	OnResults(listings []searchapi.Listing, summary string)
	OnAddressSelect(resolution address.Resolution)
}

// ChatTurn is one entry of the conversation.
type ChatTurn struct {
	ID        uuid.UUID      `json:"id"`
	Role      searchapi.Role `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	IsError   bool           `json:"isError"`
}

// Input is the raw input snapshot.
type Input struct {
	Text    string          `json:"text"`
	Touched bool            `json:"touched"`
	Mode    classifier.Mode `json:"mode"`
}

// Outcome describes a successful dispatch.
type Outcome struct {
	Query    string              `json:"query"`
	Mode     classifier.Mode     `json:"mode"`
	Listings []searchapi.Listing `json:"listings"`
	Summary  string              `json:"summary"`
}

// Options tunes a Coordinator.
type Options struct {
	HistoryLimit int
	Now          func() time.Time

	// OnAccept runs under the coordinator lock once a submission is accepted
	// and the input cleared. It must not call back into the Coordinator.
	OnAccept func()
}

// Coordinator is the single entry point for search submission.
type Coordinator struct {
	searcher   Searcher
	renderer   Renderer
	classifier *classifier.Classifier
	log        *logger.Logger
	limit      int
	now        func() time.Time
	onAccept   func()

	mu          sync.Mutex
	text        string
	touched     bool
	mode        classifier.Mode
	held        *address.Resolution
	inlineError string
	history     []ChatTurn
	pending     bool

	// generation counts ClearConversation calls so a dispatch started before
	// a clear does not write its reply into the new conversation.
	generation uint64
}

// NewCoordinator builds a coordinator. renderer may be nil.
func NewCoordinator(searcher Searcher, renderer Renderer, c *classifier.Classifier, log *logger.Logger, opts Options) *Coordinator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnAccept == nil {
		opts.OnAccept = func() {}
	}
	if renderer == nil {
		renderer = nopRenderer{}
	}
	if c == nil {
		c = classifier.New(classifier.DefaultPolicy())
	}
	return &Coordinator{
		searcher:   searcher,
		renderer:   renderer,
		classifier: c,
		log:        log,
		limit:      opts.HistoryLimit,
		now:        opts.Now,
		onAccept:   opts.OnAccept,
		mode:       classifier.ModeAddress,
	}
}

// SetInput records a keystroke and returns the new mode. A held address is
// dropped once the mode leaves address or the text no longer matches it.
func (c *Coordinator) SetInput(text string) classifier.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.text = text
	c.touched = true
	c.inlineError = ""
	if c.held != nil && text == c.held.Address {
		c.mode = classifier.ModeAddress
		return c.mode
	}
	c.mode = c.classifier.Classify(text)
	c.held = nil
	return c.mode
}

// SelectAddress writes a committed suggestion into the input. The record is
// held for dispatch only if it validated.
func (c *Coordinator) SelectAddress(res address.Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.text = res.Address
	c.touched = true
	c.mode = classifier.ModeAddress
	c.inlineError = res.Warning()
	if res.Validation.IsValid && res.Record != nil {
		held := res
		c.held = &held
		return
	}
	c.held = nil
}

// Submit dispatches the current input. Rejections leave history untouched and
// make no remote call.
func (c *Coordinator) Submit(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return nil, ErrDispatchPending
	}

	text := strings.TrimSpace(c.text)
	if text == "" {
		c.inlineError = ErrEmptyQuery.Message
		c.mu.Unlock()
		return nil, ErrEmptyQuery
	}
	mode := c.mode
	if mode == classifier.ModeAddress && c.held == nil {
		c.inlineError = ErrAddressRequired.Message
		c.mu.Unlock()
		return nil, ErrAddressRequired
	}

	var record *address.Record
	query := text
	if mode == classifier.ModeAddress {
		record = c.held.Record
		query = AnalysisPrefix + c.held.Address
	}

	req := searchapi.Request{Query: query, ChatHistory: c.recentLocked()}
	c.history = append(c.history, c.turn(searchapi.RoleUser, text, false))
	c.text = ""
	c.touched = false
	c.mode = classifier.ModeAddress
	c.held = nil
	c.inlineError = ""
	c.pending = true
	gen := c.generation
	c.onAccept()
	c.mu.Unlock()

	log := c.log.WithContext(ctx)
	log.Info("dispatching search", "mode", mode, "historyTurns", len(req.ChatHistory))

	resp, err := c.searcher.Search(ctx, req)

	c.mu.Lock()
	c.pending = false
	cleared := gen != c.generation
	if err != nil {
		class := ClassifyError(err)
		msg := class.Message()
		if !cleared {
			c.history = append(c.history, c.turn(searchapi.RoleAssistant, msg, true))
			c.inlineError = msg
		}
		c.mu.Unlock()

		log.Warn("search failed", "class", class, "error", err)
		kind := apperr.GetKind(err)
		if kind == apperr.KindUnknown {
			kind = apperr.KindUnavailable
		}
		return nil, apperr.Wrap(kind, msg, err).
			WithOp("dispatch.Submit").
			WithDetails(map[string]string{"class": string(class)})
	}

	listings := Backfill(resp.Listings, record)
	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		summary = countSummary(len(listings))
	}
	if !cleared {
		c.history = append(c.history, c.turn(searchapi.RoleAssistant, summary, false))
	}
	c.mu.Unlock()

	c.renderer.OnResults(listings, summary)
	return &Outcome{Query: query, Mode: mode, Listings: listings, Summary: summary}, nil
}

// ClearConversation empties the history locally and asks the service to
// forget it. A failed reset is only logged. A dispatch still in flight keeps
// its results but adds no turn to the cleared history.
func (c *Coordinator) ClearConversation(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	c.history = nil
	c.inlineError = ""
	c.mu.Unlock()

	if err := c.searcher.ResetConversation(ctx); err != nil {
		c.log.WithContext(ctx).Warn("conversation reset failed", "error", err)
	}
}

// History returns a copy of the full conversation.
func (c *Coordinator) History() []ChatTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatTurn{}, c.history...)
}

// Input returns the current raw input.
func (c *Coordinator) Input() Input {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Input{Text: c.text, Touched: c.touched, Mode: c.mode}
}

// InlineError returns the message shown under the input, if any.
func (c *Coordinator) InlineError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inlineError
}

// Pending reports whether a dispatch is in flight.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// HeldAddress returns the validated selection awaiting dispatch, if any.
func (c *Coordinator) HeldAddress() (address.Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held == nil {
		return address.Resolution{}, false
	}
	return *c.held, true
}

func (c *Coordinator) recentLocked() []searchapi.Message {
	start := 0
	if len(c.history) > c.limit {
		start = len(c.history) - c.limit
	}
	msgs := make([]searchapi.Message, 0, len(c.history)-start)
	for _, t := range c.history[start:] {
		msgs = append(msgs, searchapi.Message{Role: t.Role, Content: t.Content})
	}
	return msgs
}

func (c *Coordinator) turn(role searchapi.Role, content string, isError bool) ChatTurn {
	return ChatTurn{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Timestamp: c.now(),
		IsError:   isError,
	}
}

func countSummary(n int) string {
	switch n {
	case 0:
		return "No properties matched your search."
	case 1:
		return "Found 1 property."
	default:
		return fmt.Sprintf("Found %d properties.", n)
	}
}

type nopRenderer struct{}

func (nopRenderer) OnResults([]searchapi.Listing, string) {}
func (nopRenderer) OnAddressSelect(address.Resolution)   {}
