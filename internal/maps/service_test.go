package maps

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fractionax_search/platform/apperr"
	"fractionax_search/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testMapsConfig struct {
	url string
}

func (c testMapsConfig) GetNominatimURL() string            { return c.url }
func (c testMapsConfig) GetNominatimUserAgent() string      { return "test-agent" }
func (c testMapsConfig) GetNominatimCountryCodes() string   { return "us" }
func (c testMapsConfig) GetNominatimRatePerSecond() float64 { return 1000 }
func (c testMapsConfig) GetNominatimTimeout() time.Duration { return 2 * time.Second }

const searchPayload = `[
  {"osm_type":"way","osm_id":111,"display_name":"1180, Main Street, Houston, Texas, 77002, United States","lat":"29.7569","lon":"-95.3633",
   "address":{"house_number":"1180","road":"Main Street","city":"Houston","state":"Texas","ISO3166-2-lvl4":"US-TX","postcode":"77002","country":"United States","country_code":"us"}},
  {"osm_type":"node","osm_id":222,"display_name":"Main Street Square","lat":"29.75","lon":"-95.36",
   "address":{"city":"Houston","state":"Texas"}},
  {"osm_type":"way","osm_id":111,"display_name":"duplicate","lat":"29.7569","lon":"-95.3633",
   "address":{"house_number":"1180","road":"Main Street","city":"Houston"}},
  {"osm_type":"relation","osm_id":333,"display_name":"1180, Main Street, Katy","lat":"29.78","lon":"-95.82",
   "address":{"house_number":"1180","road":"Main Street","town":"Katy","state":"Texas","ISO3166-2-lvl4":"US-TX"}}
]`

const lookupPayload = `[
  {"osm_type":"way","osm_id":111,"display_name":"1180, Main Street, Houston","lat":"29.76","lon":"-95.37",
   "address":{"house_number":"1180","road":"Main Street","city":"Houston","state":"Texas","ISO3166-2-lvl4":"US-TX","postcode":"77002","country":"United States","country_code":"us"}}
]`

func newTestServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("expected user agent header, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search":
			if r.URL.Query().Get("countrycodes") != "us" {
				t.Errorf("expected countrycodes=us, got %q", r.URL.Query().Get("countrycodes"))
			}
			_, _ = w.Write([]byte(searchPayload))
		case "/lookup":
			if r.URL.Query().Get("osm_ids") != "W111" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(lookupPayload))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestAutocompleteBuildsOrderedSuggestions(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	defer srv.Close()

	svc := NewService(testMapsConfig{url: srv.URL}, nil, logger.Discard())
	got, err := svc.Autocomplete(context.Background(), "1180 Main")
	if err != nil {
		t.Fatalf("autocomplete: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions (no road and duplicate skipped), got %d: %+v", len(got), got)
	}
	if got[0].PlaceID != "W111" || got[0].Description != "1180 Main Street, Houston, TX 77002" {
		t.Fatalf("unexpected first suggestion %+v", got[0])
	}
	if got[1].PlaceID != "R333" || got[1].Description != "1180 Main Street, Katy, TX" {
		t.Fatalf("unexpected second suggestion %+v", got[1])
	}
}

func TestAutocompleteRejectsEmptyQuery(t *testing.T) {
	svc := NewService(testMapsConfig{url: "http://127.0.0.1:1"}, nil, logger.Discard())
	_, err := svc.Autocomplete(context.Background(), "   ")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlaceDetailsParsesCoordinates(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	defer srv.Close()

	svc := NewService(testMapsConfig{url: srv.URL}, nil, logger.Discard())
	details, err := svc.PlaceDetails(context.Background(), "W111")
	if err != nil {
		t.Fatalf("place details: %v", err)
	}
	if details.Latitude == nil || *details.Latitude != 29.76 {
		t.Fatalf("unexpected latitude %v", details.Latitude)
	}
	if details.Longitude == nil || *details.Longitude != -95.37 {
		t.Fatalf("unexpected longitude %v", details.Longitude)
	}
	if details.Components.StateCode != "TX" || details.Components.CountryCode != "US" {
		t.Fatalf("unexpected components %+v", details.Components)
	}
}

func TestPlaceDetailsErrors(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	defer srv.Close()

	svc := NewService(testMapsConfig{url: srv.URL}, nil, logger.Discard())

	if _, err := svc.PlaceDetails(context.Background(), "not-an-id"); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request for malformed id, got %v", err)
	}
	if _, err := svc.PlaceDetails(context.Background(), "N999"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for empty lookup, got %v", err)
	}
}

func TestPlaceDetailsSurvivesFirstCallerCancel(t *testing.T) {
	arrived := make(chan struct{}, 4)
	release := make(chan struct{})
	var aborted int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
			atomic.StoreInt32(&aborted, 1)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(lookupPayload))
	}))
	defer srv.Close()

	svc := NewService(testMapsConfig{url: srv.URL}, nil, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.PlaceDetails(ctx, "W111")
		firstErr <- err
	}()
	<-arrived
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to return its context error, got %v", err)
	}

	second := make(chan error, 1)
	go func() {
		details, err := svc.PlaceDetails(context.Background(), "W111")
		if err == nil && details.PlaceID != "W111" {
			t.Errorf("unexpected details %+v", details)
		}
		second <- err
	}()
	close(release)
	if err := <-second; err != nil {
		t.Fatalf("joined caller should get the shared result, got %v", err)
	}
	if atomic.LoadInt32(&aborted) != 0 {
		t.Fatalf("upstream request was aborted by the first caller's cancel")
	}
}

func TestUpstreamServerErrorIsRetriedThenUnavailable(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewService(testMapsConfig{url: srv.URL}, nil, logger.Discard())
	_, err := svc.Autocomplete(context.Background(), "1180 Main")
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits)
	}
}

func TestRedisCacheServesRepeatLookups(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	defer srv.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisCache(client, time.Minute, logger.Discard())

	svc := NewService(testMapsConfig{url: srv.URL}, cache, logger.Discard())
	ctx := context.Background()

	first, err := svc.Autocomplete(ctx, "1180 Main")
	if err != nil {
		t.Fatalf("first autocomplete: %v", err)
	}
	second, err := svc.Autocomplete(ctx, "1180 MAIN ")
	if err != nil {
		t.Fatalf("second autocomplete: %v", err)
	}
	if len(first) != len(second) || first[0] != second[0] {
		t.Fatalf("expected cached suggestions to match, got %+v vs %+v", first, second)
	}

	if _, err := svc.PlaceDetails(ctx, "W111"); err != nil {
		t.Fatalf("first details: %v", err)
	}
	details, err := svc.PlaceDetails(ctx, "W111")
	if err != nil {
		t.Fatalf("second details: %v", err)
	}
	if details.Latitude == nil || *details.Latitude != 29.76 {
		t.Fatalf("expected cached coordinates, got %+v", details)
	}

	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 upstream calls with cache, got %d", hits)
	}
	if !mr.Exists(suggestionKeyPrefix+"1180 main") || !mr.Exists(detailsKeyPrefix+"W111") {
		t.Fatalf("expected cache keys to be written, have %v", mr.Keys())
	}
	if ttl := mr.TTL(detailsKeyPrefix + "W111"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", ttl)
	}
}

func TestRedisCacheIgnoresCorruptEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisCache(client, time.Minute, logger.Discard())

	if err := mr.Set(detailsKeyPrefix+"W1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := cache.GetDetails(context.Background(), "W1"); ok {
		t.Fatalf("expected corrupt entry to be a miss")
	}
}
