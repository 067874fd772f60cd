package pipeline

import (
	"fractionax_search/internal/dispatch"
	"fractionax_search/platform/events"
)

// Event names published on the bus.
const (
	EventAddressSelected     = "pipeline.address_selected"
	EventSearchCompleted     = "pipeline.search_completed"
	EventSearchFailed        = "pipeline.search_failed"
	EventConversationCleared = "pipeline.conversation_cleared"
)

// AddressSelected is published once per committed suggestion.
type AddressSelected struct {
	events.BaseEvent
	PlaceID        string   `json:"placeId"`
	Address        string   `json:"address"`
	Valid          bool     `json:"valid"`
	HasCoordinates bool     `json:"hasCoordinates"`
	MissingFields  []string `json:"missingFields"`
}

func (AddressSelected) EventName() string { return EventAddressSelected }

// SearchCompleted is published after results were rendered.
type SearchCompleted struct {
	events.BaseEvent
	Query    string `json:"query"`
	Mode     string `json:"mode"`
	Listings int    `json:"listings"`
}

func (SearchCompleted) EventName() string { return EventSearchCompleted }

// SearchFailed is published when a dispatched search failed.
type SearchFailed struct {
	events.BaseEvent
	Class  dispatch.ErrorClass `json:"class"`
	Reason string              `json:"reason"`
}

func (SearchFailed) EventName() string { return EventSearchFailed }

// ConversationCleared is published when the user clears the history.
type ConversationCleared struct {
	events.BaseEvent
}

func (ConversationCleared) EventName() string { return EventConversationCleared }
