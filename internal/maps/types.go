package maps

// LookupRequest represents the query parameters from the frontend.
type LookupRequest struct {
	Query string `form:"q" binding:"required,min=3"`
}

// Suggestion is a single autocomplete candidate. PlaceID is opaque to callers
// and is only meaningful to PlaceDetails.
type Suggestion struct {
	PlaceID     string `json:"placeId"`
	Description string `json:"description"`
}

// AddressComponents is the structured part of a place lookup.
type AddressComponents struct {
	HouseNumber string `json:"houseNumber"`
	Road        string `json:"road"`
	City        string `json:"city"`
	State       string `json:"state"`
	StateCode   string `json:"stateCode"`
	Postcode    string `json:"postcode"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
}

// PlaceDetails is the full record behind a suggestion.
type PlaceDetails struct {
	PlaceID     string            `json:"placeId"`
	DisplayName string            `json:"displayName"`
	Latitude    *float64          `json:"latitude"`
	Longitude   *float64          `json:"longitude"`
	Components  AddressComponents `json:"components"`
}

type nominatimAddress struct {
	Road         string `json:"road"`
	HouseNumber  string `json:"house_number"`
	Postcode     string `json:"postcode"`
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
	Hamlet       string `json:"hamlet"`
	State        string `json:"state"`
	ISOLevel4    string `json:"ISO3166-2-lvl4"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
}

// nominatimResponse mirrors the relevant parts of the OSM search and lookup payloads.
type nominatimResponse struct {
	OSMType     string           `json:"osm_type"`
	OSMID       int64            `json:"osm_id"`
	DisplayName string           `json:"display_name"`
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	Address     nominatimAddress `json:"address"`
}
