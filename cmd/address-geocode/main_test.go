package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fractionax_search/internal/address"
	"fractionax_search/internal/maps"
	"fractionax_search/platform/logger"
)

type testMapsConfig struct {
	url string
}

func (c testMapsConfig) GetNominatimURL() string            { return c.url }
func (c testMapsConfig) GetNominatimUserAgent() string      { return "test-agent" }
func (c testMapsConfig) GetNominatimCountryCodes() string   { return "us" }
func (c testMapsConfig) GetNominatimRatePerSecond() float64 { return 1000 }
func (c testMapsConfig) GetNominatimTimeout() time.Duration { return 2 * time.Second }

const place = `[{"osm_type":"way","osm_id":111,"display_name":"1180, Main Street, Houston","lat":"29.76","lon":"-95.37",
  "address":{"house_number":"1180","road":"Main Street","city":"Houston","state":"Texas","ISO3166-2-lvl4":"US-TX","postcode":"77002","country_code":"us"}}]`

func TestGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") == "nowhere at all" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(place))
	}))
	defer srv.Close()

	log := logger.Discard()
	svc := maps.NewService(testMapsConfig{url: srv.URL}, nil, log)
	resolver := address.NewResolver(placeDetails{svc: svc}, log)

	got := geocode(context.Background(), svc, resolver, log, "1180 Main Street Houston")
	if !got.Matched || got.Resolution == nil {
		t.Fatalf("expected a match, got %+v", got)
	}
	if !got.Resolution.Validation.IsValid || !got.Resolution.Validation.HasCoordinates {
		t.Fatalf("expected a complete address, got %+v", got.Resolution.Validation)
	}
	if got.Resolution.Record.State != "TX" || got.Warning != "" {
		t.Fatalf("unexpected record %+v warning %q", got.Resolution.Record, got.Warning)
	}

	miss := geocode(context.Background(), svc, resolver, log, "nowhere at all")
	if miss.Matched || miss.Resolution != nil {
		t.Fatalf("expected no match, got %+v", miss)
	}
}
