// Package selection holds the suggestion dropdown state: which row is
// highlighted, whether the list is open, and how keys and pointer presses move
// between those states.
package selection

import (
	"sync"

	"fractionax_search/internal/classifier"
	"fractionax_search/internal/maps"
)

// Key is a navigation key the dropdown reacts to.
type Key string

const (
	ArrowDown Key = "ArrowDown"
	ArrowUp   Key = "ArrowUp"
	Enter     Key = "Enter"
	Escape    Key = "Escape"
)

// NoHighlight is the highlighted index when no row is highlighted.
const NoHighlight = -1

// State is a snapshot of the dropdown.
type State struct {
	Open             bool              `json:"open"`
	HighlightedIndex int               `json:"highlightedIndex"`
	Suggestions      []maps.Suggestion `json:"suggestions"`
}

// Machine is the dropdown state machine. It is safe for concurrent use; the
// fetcher delivers suggestions from timer goroutines while key handlers run on
// the caller's goroutine.
type Machine struct {
	mu          sync.Mutex
	open        bool
	highlighted int
	suggestions []maps.Suggestion
	onChange    func()
	deactivate  func()
}

// New returns a closed machine with an empty list. onChange, if set, runs
// after every asynchronous list update.
func New(onChange func()) *Machine {
	if onChange == nil {
		onChange = func() {}
	}
	return &Machine{highlighted: NoHighlight, onChange: onChange}
}

// SetSuggestions replaces the list. A non-empty list opens the dropdown with
// nothing highlighted; an empty list closes it.
func (m *Machine) SetSuggestions(suggestions []maps.Suggestion) {
	m.mu.Lock()
	m.suggestions = append([]maps.Suggestion(nil), suggestions...)
	m.highlighted = NoHighlight
	m.open = len(m.suggestions) > 0
	m.mu.Unlock()
	m.onChange()
}

// Key applies a navigation key. It returns the committed suggestion and true
// for Enter on a highlighted row. consumed reports whether the key changed or
// was meant for the dropdown; closed or empty dropdowns consume nothing.
func (m *Machine) Key(k Key) (committed maps.Suggestion, ok bool, consumed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.suggestions)
	if !m.open || n == 0 {
		return maps.Suggestion{}, false, false
	}

	switch k {
	case ArrowDown:
		m.highlighted = (m.highlighted + 1) % n
		return maps.Suggestion{}, false, true
	case ArrowUp:
		if m.highlighted < 0 {
			m.highlighted = n - 1
		} else {
			m.highlighted = (m.highlighted - 1 + n) % n
		}
		return maps.Suggestion{}, false, true
	case Enter:
		if m.highlighted < 0 || m.highlighted >= n {
			return maps.Suggestion{}, false, false
		}
		chosen := m.suggestions[m.highlighted]
		m.commitLocked()
		return chosen, true, true
	case Escape:
		m.closeLocked()
		return maps.Suggestion{}, false, true
	default:
		return maps.Suggestion{}, false, false
	}
}

// Click commits row i regardless of the highlight.
func (m *Machine) Click(i int) (maps.Suggestion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || i < 0 || i >= len(m.suggestions) {
		return maps.Suggestion{}, false
	}
	chosen := m.suggestions[i]
	m.commitLocked()
	return chosen, true
}

// Focus reopens a kept list when the input regains focus in address mode.
func (m *Machine) Focus(mode classifier.Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mode != classifier.ModeAddress || len(m.suggestions) == 0 {
		return
	}
	m.open = true
	m.highlighted = NoHighlight
}

// Dismiss closes the dropdown without committing.
func (m *Machine) Dismiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Open:             m.open,
		HighlightedIndex: m.highlighted,
		Suggestions:      append([]maps.Suggestion{}, m.suggestions...),
	}
}

// Activate subscribes the machine to outside presses from source. While the
// machine is active, further calls return the current deactivate func without
// subscribing again. The returned func removes the subscription and may be
// called more than once.
func (m *Machine) Activate(source PointerSource) (deactivate func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deactivate != nil {
		return m.deactivate
	}

	unsubscribe := source.Subscribe(func(r Region) {
		if r == RegionOutside {
			m.Dismiss()
		}
	})
	var once sync.Once
	deactivate = func() {
		once.Do(func() {
			m.mu.Lock()
			m.deactivate = nil
			m.mu.Unlock()
			unsubscribe()
		})
	}
	m.deactivate = deactivate
	return deactivate
}

// commitLocked closes and forgets the list; the committed row is now the input.
func (m *Machine) commitLocked() {
	m.closeLocked()
	m.suggestions = nil
}

// closeLocked keeps the list so a later focus can reopen it.
func (m *Machine) closeLocked() {
	m.open = false
	m.highlighted = NoHighlight
}
