package pipeline

import (
	"fractionax_search/internal/address"
	"fractionax_search/internal/dispatch"
	"fractionax_search/internal/searchapi"
	"fractionax_search/internal/selection"
)

// View is a point-in-time snapshot of everything a front end renders.
type View struct {
	ID             string              `json:"id"`
	Input          dispatch.Input      `json:"input"`
	Loading        bool                `json:"loading"`
	SuggestPending bool                `json:"suggestPending"`
	Dispatching    bool                `json:"dispatching"`
	Selection      selection.State     `json:"selection"`
	InlineError    string              `json:"inlineError,omitempty"`
	Warning        string              `json:"warning,omitempty"`
	Address        *address.Resolution `json:"address,omitempty"`
	History        []dispatch.ChatTurn `json:"history"`
	Listings       []searchapi.Listing `json:"listings"`
	Summary        string              `json:"summary,omitempty"`
}

// View snapshots the session.
func (s *Session) View() View {
	v := View{
		ID:             s.id.String(),
		Input:          s.coordinator.Input(),
		Loading:        s.fetcher.Loading(),
		SuggestPending: s.fetcher.Pending(),
		Dispatching:    s.coordinator.Pending(),
		Selection:      s.selection.State(),
		InlineError:    s.coordinator.InlineError(),
		History:        s.coordinator.History(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v.Warning = s.warning
	if s.selected != nil {
		sel := *s.selected
		v.Address = &sel
	}
	v.Listings = append([]searchapi.Listing{}, s.listings...)
	v.Summary = s.summary
	return v
}
