package dispatch

import (
	"fractionax_search/internal/address"
	"fractionax_search/internal/searchapi"
)

// Backfill fills missing listing coordinates from the address the search was
// made for. Coordinates the service supplied are kept. The input slice is not
// modified.
func Backfill(listings []searchapi.Listing, record *address.Record) []searchapi.Listing {
	out := make([]searchapi.Listing, len(listings))
	copy(out, listings)
	if record == nil || record.Latitude == nil || record.Longitude == nil {
		return out
	}

	for i := range out {
		if out[i].Latitude == nil {
			lat := *record.Latitude
			out[i].Latitude = &lat
		}
		if out[i].Longitude == nil {
			lng := *record.Longitude
			out[i].Longitude = &lng
		}
	}
	return out
}
