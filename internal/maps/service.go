package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fractionax_search/platform/apperr"
	"fractionax_search/platform/config"
	"fractionax_search/platform/logger"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	suggestionLimit    = 5
	upstreamName       = "nominatim"
	defaultMapsURL     = "https://nominatim.openstreetmap.org"
	defaultUserAgent   = "FractionaXSearch/1.0"
	defaultMapsTimeout = 5 * time.Second
)

var placeIDPattern = regexp.MustCompile(`^[NWR]\d+$`)

// Service resolves address suggestions and place details against Nominatim.
type Service struct {
	client       *http.Client
	baseURL      string
	userAgent    string
	countryCodes string
	limiter      *rate.Limiter
	executor     failsafe.Executor[*http.Response]
	cache        Cache
	details      singleflight.Group
	log          *logger.Logger
}

// NewService builds a Service. cache may be nil.
func NewService(cfg config.MapsConfig, cache Cache, log *logger.Logger) *Service {
	baseURL := strings.TrimRight(cfg.GetNominatimURL(), "/")
	if baseURL == "" {
		baseURL = defaultMapsURL
	}
	userAgent := cfg.GetNominatimUserAgent()
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	timeout := cfg.GetNominatimTimeout()
	if timeout <= 0 {
		timeout = defaultMapsTimeout
	}
	perSecond := cfg.GetNominatimRatePerSecond()
	if perSecond <= 0 {
		perSecond = 1
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(_ *http.Response, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}).
		WithBackoff(200*time.Millisecond, 2*time.Second).
		WithMaxRetries(2).
		Build()

	return &Service{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		userAgent:    userAgent,
		countryCodes: cfg.GetNominatimCountryCodes(),
		limiter:      rate.NewLimiter(rate.Limit(perSecond), 1),
		executor:     failsafe.With(retry),
		cache:        cache,
		log:          log,
	}
}

// Autocomplete returns street-address suggestions for a partial query, in the
// order Nominatim ranked them.
func (s *Service) Autocomplete(ctx context.Context, query string) ([]Suggestion, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, apperr.Validation("query is required").WithOp("maps.Autocomplete")
	}

	cacheKey := strings.ToLower(q)
	if s.cache != nil {
		if cached, ok := s.cache.GetSuggestions(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	params := url.Values{}
	params.Add("q", q)
	params.Add("format", "jsonv2")
	params.Add("addressdetails", "1")
	params.Add("limit", strconv.Itoa(suggestionLimit))
	if s.countryCodes != "" {
		params.Add("countrycodes", s.countryCodes)
	}

	var raw []nominatimResponse
	if err := s.getJSON(ctx, "/search", params, &raw); err != nil {
		return nil, upstreamError("maps.Autocomplete", err)
	}

	suggestions := make([]Suggestion, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		suggestion, ok := buildSuggestion(r)
		if !ok {
			continue
		}
		if _, dup := seen[suggestion.PlaceID]; dup {
			continue
		}
		seen[suggestion.PlaceID] = struct{}{}
		suggestions = append(suggestions, suggestion)
	}

	if s.cache != nil {
		s.cache.SetSuggestions(ctx, cacheKey, suggestions)
	}
	return suggestions, nil
}

// PlaceDetails fetches the full record for a suggestion's PlaceID.
// Concurrent lookups for the same place share one upstream call.
func (s *Service) PlaceDetails(ctx context.Context, placeID string) (PlaceDetails, error) {
	placeID = strings.TrimSpace(placeID)
	if !placeIDPattern.MatchString(placeID) {
		return PlaceDetails{}, apperr.BadRequest("invalid place id").WithOp("maps.PlaceDetails")
	}

	if s.cache != nil {
		if cached, ok := s.cache.GetDetails(ctx, placeID); ok {
			return cached, nil
		}
	}

	// The shared lookup outlives any single caller; the client timeout still
	// bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.details.DoChan(placeID, func() (interface{}, error) {
		params := url.Values{}
		params.Add("osm_ids", placeID)
		params.Add("format", "jsonv2")
		params.Add("addressdetails", "1")

		var raw []nominatimResponse
		if err := s.getJSON(flightCtx, "/lookup", params, &raw); err != nil {
			return PlaceDetails{}, upstreamError("maps.PlaceDetails", err)
		}
		if len(raw) == 0 {
			return PlaceDetails{}, apperr.NotFound("place not found").WithOp("maps.PlaceDetails")
		}

		details := buildDetails(placeID, raw[0])
		if s.cache != nil {
			s.cache.SetDetails(flightCtx, placeID, details)
		}
		return details, nil
	})

	select {
	case <-ctx.Done():
		return PlaceDetails{}, upstreamError("maps.PlaceDetails", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return PlaceDetails{}, res.Err
		}
		return res.Val.(PlaceDetails), nil
	}
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream api error: %d", e.status)
}

func (s *Service) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := fmt.Sprintf("%s%s?%s", s.baseURL, path, params.Encode())

	resp, err := s.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", s.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.log.UpstreamError(upstreamName, path, err)
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			s.log.Error("nominatim upstream error", "status", resp.StatusCode, "path", path)
			return nil, &statusError{status: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		s.log.Error("nominatim upstream error", "status", resp.StatusCode, "path", path)
		return &statusError{status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		s.log.Error("failed to decode nominatim payload", "error", err)
		return err
	}
	return nil
}

func upstreamError(op string, err error) error {
	return apperr.Upstream(err, "address lookup timed out", "address lookup service unavailable").WithOp(op)
}

func buildSuggestion(raw nominatimResponse) (Suggestion, bool) {
	placeID := osmPlaceID(raw)
	if placeID == "" || raw.Address.Road == "" {
		return Suggestion{}, false
	}

	components := buildComponents(raw.Address)
	if components.City == "" {
		return Suggestion{}, false
	}

	return Suggestion{
		PlaceID:     placeID,
		Description: buildLabel(components),
	}, true
}

func buildDetails(placeID string, raw nominatimResponse) PlaceDetails {
	components := buildComponents(raw.Address)
	display := raw.DisplayName
	if components.Road != "" && components.City != "" {
		display = buildLabel(components)
	}
	return PlaceDetails{
		PlaceID:     placeID,
		DisplayName: display,
		Latitude:    parseCoordinate(raw.Lat),
		Longitude:   parseCoordinate(raw.Lon),
		Components:  components,
	}
}

func buildComponents(address nominatimAddress) AddressComponents {
	return AddressComponents{
		HouseNumber: address.HouseNumber,
		Road:        address.Road,
		City:        pickCity(address),
		State:       address.State,
		StateCode:   stateCode(address),
		Postcode:    address.Postcode,
		Country:     address.Country,
		CountryCode: strings.ToUpper(address.CountryCode),
	}
}

// osmPlaceID encodes the OSM object as the lookup endpoint expects it, e.g. W123.
func osmPlaceID(raw nominatimResponse) string {
	if raw.OSMType == "" || raw.OSMID == 0 {
		return ""
	}
	prefix := strings.ToUpper(raw.OSMType[:1])
	if prefix != "N" && prefix != "W" && prefix != "R" {
		return ""
	}
	return prefix + strconv.FormatInt(raw.OSMID, 10)
}

func pickCity(address nominatimAddress) string {
	if address.City != "" {
		return address.City
	}
	if address.Town != "" {
		return address.Town
	}
	if address.Village != "" {
		return address.Village
	}
	if address.Municipality != "" {
		return address.Municipality
	}
	return address.Hamlet
}

// stateCode turns "US-TX" into "TX".
func stateCode(address nominatimAddress) string {
	if _, code, ok := strings.Cut(address.ISOLevel4, "-"); ok {
		return code
	}
	return ""
}

func buildLabel(c AddressComponents) string {
	street := strings.TrimSpace(c.HouseNumber + " " + c.Road)
	parts := []string{street, c.City}

	region := c.StateCode
	if region == "" {
		region = c.State
	}
	region = strings.TrimSpace(region + " " + c.Postcode)
	if region != "" {
		parts = append(parts, region)
	}
	return strings.Join(parts, ", ")
}

func parseCoordinate(value string) *float64 {
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}
