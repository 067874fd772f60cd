package dispatch

import (
	"context"
	"errors"
	"net"
	"strings"

	"fractionax_search/platform/apperr"
)

// Rejections returned by Submit before anything is sent.
var (
	ErrEmptyQuery      = apperr.Validation("Please enter an address or describe what you're looking for.").WithOp("dispatch.Submit")
	ErrAddressRequired = apperr.Validation("Please select an address from the suggestions.").WithOp("dispatch.Submit")
	ErrDispatchPending = apperr.Conflict("A search is already in progress.").WithOp("dispatch.Submit")
)

// ErrorClass groups search failures by what the user can do about them.
type ErrorClass string

const (
	ClassNotFound ErrorClass = "not-found"
	ClassTimeout  ErrorClass = "timeout"
	ClassNetwork  ErrorClass = "network"
	ClassGeneric  ErrorClass = "generic"
)

var classMessages = map[ErrorClass]string{
	ClassNotFound: "No properties found matching your search. Try adjusting your criteria.",
	ClassTimeout:  "The search took too long to respond. Please try again.",
	ClassNetwork:  "Network error. Please check your connection and try again.",
	ClassGeneric:  "Something went wrong while searching. Please try again.",
}

// Message is the user-facing text for a class.
func (c ErrorClass) Message() string {
	if msg, ok := classMessages[c]; ok {
		return msg
	}
	return classMessages[ClassGeneric]
}

// ClassifyError maps a search failure to its class. Typed signals win over
// message content.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ClassGeneric
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		apperr.Is(err, apperr.KindTimeout):
		return ClassTimeout
	case apperr.Is(err, apperr.KindNotFound):
		return ClassNotFound
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "not found", "no results", "404"):
		return ClassNotFound
	case containsAny(msg, "timeout", "timed out", "deadline"):
		return ClassTimeout
	case containsAny(msg, "network", "connection", "refused", "unreachable", "no such host", "fetch"):
		return ClassNetwork
	case errors.As(err, &netErr):
		return ClassNetwork
	default:
		return ClassGeneric
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// FailureClass returns the class recorded on a failed Submit.
func FailureClass(err error) ErrorClass {
	var e *apperr.Error
	if errors.As(err, &e) {
		if d, ok := e.Details.(map[string]string); ok && d["class"] != "" {
			return ErrorClass(d["class"])
		}
	}
	return ClassifyError(err)
}

// IsRejection reports whether Submit refused before dispatching.
func IsRejection(err error) bool {
	return errors.Is(err, ErrEmptyQuery) || errors.Is(err, ErrAddressRequired) || errors.Is(err, ErrDispatchPending)
}
