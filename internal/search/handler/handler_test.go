package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fractionax_search/internal/maps"
	"fractionax_search/internal/pipeline"
	"fractionax_search/internal/search/repository"
	"fractionax_search/internal/search/service"
	"fractionax_search/internal/search/transport"
	"fractionax_search/internal/searchapi"
	"fractionax_search/internal/suggest"
	"fractionax_search/platform/logger"
	"fractionax_search/platform/validator"

	"github.com/gin-gonic/gin"
)

type queuedClock struct {
	mu    sync.Mutex
	queue []func()
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return true }

// AfterFunc keeps only the latest func; earlier ones are treated as stopped.
func (c *queuedClock) AfterFunc(_ time.Duration, f func()) suggest.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = []func(){f}
	return noopTimer{}
}

func (c *queuedClock) fire() {
	c.mu.Lock()
	q := c.queue
	c.queue = nil
	c.mu.Unlock()
	for _, f := range q {
		f()
	}
}

type stubMaps struct{}

func (stubMaps) Autocomplete(context.Context, string) ([]maps.Suggestion, error) {
	return []maps.Suggestion{{PlaceID: "W9", Description: "9 Elm Street, Houston, TX"}}, nil
}

func (stubMaps) PlaceDetails(_ context.Context, id string) (maps.PlaceDetails, error) {
	lat, lng := 29.76, -95.37
	return maps.PlaceDetails{
		PlaceID: id, Latitude: &lat, Longitude: &lng,
		Components: maps.AddressComponents{HouseNumber: "9", Road: "Elm Street", City: "Houston", StateCode: "TX"},
	}, nil
}

type stubSearch struct{}

func (stubSearch) Search(context.Context, searchapi.Request) (searchapi.Response, error) {
	return searchapi.Response{Listings: []searchapi.Listing{{ID: "x"}}, Summary: "done"}, nil
}

func (stubSearch) ResetConversation(context.Context) error { return nil }

func setupRouter(t *testing.T) (*gin.Engine, *queuedClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := &queuedClock{}
	log := logger.Discard()
	svc := service.New(repository.New(), pipeline.Deps{
		Provider: stubMaps{},
		Searcher: stubSearch{},
		Log:      log,
	}, pipeline.Options{AfterFunc: clock.AfterFunc}, time.Minute, log)

	r := gin.New()
	New(svc, validator.New()).RegisterRoutes(r.Group("/api/v1/sessions"))
	return r, clock
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSessionLifecycle(t *testing.T) {
	r, clock := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", w.Code)
	}
	var created transport.CreateSessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	base := "/api/v1/sessions/" + created.ID

	if w := do(t, r, http.MethodPut, base+"/input", transport.InputRequest{Text: "9 Elm"}); w.Code != http.StatusOK {
		t.Fatalf("input: expected 200, got %d", w.Code)
	}
	clock.fire()

	w = do(t, r, http.MethodGet, base, nil)
	var view pipeline.View
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if !view.Selection.Open || len(view.Selection.Suggestions) != 1 {
		t.Fatalf("expected open dropdown, got %+v", view.Selection)
	}

	w = do(t, r, http.MethodPost, base+"/keys", transport.KeyRequest{Key: "ArrowDown"})
	var key transport.KeyResponse
	_ = json.Unmarshal(w.Body.Bytes(), &key)
	if w.Code != http.StatusOK || !key.Consumed || key.View.Selection.HighlightedIndex != 0 {
		t.Fatalf("unexpected key response %d %+v", w.Code, key)
	}

	if w := do(t, r, http.MethodPost, base+"/suggestions/0/select", nil); w.Code != http.StatusOK {
		t.Fatalf("select: expected 200, got %d", w.Code)
	}

	w = do(t, r, http.MethodPost, base+"/search", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result transport.SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if result.Outcome == nil || len(result.Outcome.Listings) != 1 || result.Outcome.Listings[0].Latitude == nil {
		t.Fatalf("expected backfilled listing, got %+v", result.Outcome)
	}

	if w := do(t, r, http.MethodDelete, base+"/conversation", nil); w.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", w.Code)
	}
	if w := do(t, r, http.MethodDelete, base, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, base, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", w.Code)
	}
}

func TestRequestValidation(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/sessions", nil)
	var created transport.CreateSessionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	base := "/api/v1/sessions/" + created.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"bad session id", http.MethodGet, "/api/v1/sessions/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/v1/sessions/6f1c1f5e-6a51-4cf5-9c35-3b5f0c7c8f11", nil, http.StatusNotFound},
		{"bad key", http.MethodPost, base + "/keys", map[string]string{"key": "Tab"}, http.StatusBadRequest},
		{"bad region", http.MethodPost, base + "/pointer", map[string]string{"region": "sidebar"}, http.StatusBadRequest},
		{"bad index", http.MethodPost, base + "/suggestions/x/select", nil, http.StatusBadRequest},
		{"nothing to select", http.MethodPost, base + "/suggestions/0/select", nil, http.StatusBadRequest},
		{"empty search", http.MethodPost, base + "/search", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, r, tt.method, tt.path, tt.body); w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestAddressWithoutSelectionIsRejected(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/sessions", nil)
	var created transport.CreateSessionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	base := "/api/v1/sessions/" + created.ID

	do(t, r, http.MethodPut, base+"/input", transport.InputRequest{Text: "9 Elm Street"})
	w = do(t, r, http.MethodPost, base+"/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "Please select an address from the suggestions." || body["code"] != "validation" {
		t.Fatalf("unexpected error body %v", body)
	}
}
