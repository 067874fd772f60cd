// Package address turns a chosen suggestion into a structured address record
// and decides whether that record is complete enough to search on.
package address

import (
	"context"
	"strings"

	"fractionax_search/internal/maps"
	"fractionax_search/platform/apperr"
	"fractionax_search/platform/logger"
	"fractionax_search/platform/validator"
)

// DetailsField is reported as missing when the place lookup itself failed.
const DetailsField = "details"

// Record is a resolved postal address. It is a value type and is never
// modified after resolution.
type Record struct {
	StreetNumber     string   `json:"streetNumber" validate:"required"`
	StreetName       string   `json:"streetName" validate:"required"`
	City             string   `json:"city" validate:"required"`
	State            string   `json:"state" validate:"required"`
	ZipCode          string   `json:"zipCode"`
	Country          string   `json:"country"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	FormattedAddress string   `json:"formattedAddress"`
}

// Validation is derived from a Record.
type Validation struct {
	IsValid        bool     `json:"isValid"`
	MissingFields  []string `json:"missingFields"`
	HasCoordinates bool     `json:"hasCoordinates"`
}

// Resolution is what the caller learns about a committed suggestion. Address
// always carries the suggestion text, even when Record is nil.
type Resolution struct {
	Address    string     `json:"address"`
	Record     *Record    `json:"addressData"`
	Validation Validation `json:"validation"`
	Err        error      `json:"-"`
}

// Warning returns the user-facing message for a degraded resolution.
func (r Resolution) Warning() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

var recordValidator = validator.New()

// Validate checks the required fields. Missing fields are reported by JSON
// name in declaration order.
func Validate(r Record) Validation {
	missing := validator.FailedFields(recordValidator.Struct(trimmed(r)))
	if missing == nil {
		missing = []string{}
	}
	return Validation{
		IsValid:        len(missing) == 0,
		MissingFields:  missing,
		HasCoordinates: r.Latitude != nil && r.Longitude != nil,
	}
}

// FromPlace extracts an address record from a place lookup.
func FromPlace(p maps.PlaceDetails) Record {
	c := p.Components
	state := c.StateCode
	if state == "" {
		state = c.State
	}
	country := c.CountryCode
	if country == "" {
		country = c.Country
	}
	return Record{
		StreetNumber:     strings.TrimSpace(c.HouseNumber),
		StreetName:       strings.TrimSpace(c.Road),
		City:             strings.TrimSpace(c.City),
		State:            strings.TrimSpace(state),
		ZipCode:          strings.TrimSpace(c.Postcode),
		Country:          strings.TrimSpace(country),
		Latitude:         p.Latitude,
		Longitude:        p.Longitude,
		FormattedAddress: strings.TrimSpace(p.DisplayName),
	}
}

// DetailsSource loads place details for a suggestion.
type DetailsSource interface {
	FetchDetails(ctx context.Context, placeID string) (maps.PlaceDetails, error)
}

// Resolver resolves committed suggestions.
type Resolver struct {
	details DetailsSource
	log     *logger.Logger
}

// NewResolver creates a resolver backed by details.
func NewResolver(details DetailsSource, log *logger.Logger) *Resolver {
	return &Resolver{details: details, log: log}
}

// Resolve makes exactly one details call for s. A failed call keeps the
// suggestion text and reports the details as missing.
func (r *Resolver) Resolve(ctx context.Context, s maps.Suggestion) Resolution {
	place, err := r.details.FetchDetails(ctx, s.PlaceID)
	if err != nil {
		r.log.WithContext(ctx).Warn("place details failed", "placeId", s.PlaceID, "error", err)
		return Resolution{
			Address: s.Description,
			Validation: Validation{
				IsValid:        false,
				MissingFields:  []string{DetailsField},
				HasCoordinates: false,
			},
			Err: apperr.Wrap(apperr.KindUnavailable,
				"Could not load details for this address. Please try selecting it again.", err).
				WithOp("address.Resolve"),
		}
	}

	record := FromPlace(place)
	return Resolution{
		Address:    s.Description,
		Record:     &record,
		Validation: Validate(record),
	}
}

func trimmed(r Record) Record {
	r.StreetNumber = strings.TrimSpace(r.StreetNumber)
	r.StreetName = strings.TrimSpace(r.StreetName)
	r.City = strings.TrimSpace(r.City)
	r.State = strings.TrimSpace(r.State)
	return r
}
