// Package searchapi is the client for the remote property search service.
package searchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fractionax_search/platform/apperr"
	"fractionax_search/platform/config"
	"fractionax_search/platform/logger"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	upstreamName         = "search-api"
	defaultSearchTimeout = 30 * time.Second
	maxErrorBody         = 4 << 10
)

// Client calls the search service over HTTP.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	reset   failsafe.Executor[*http.Response]
	log     *logger.Logger
}

// NewClient builds a Client from config.
func NewClient(cfg config.SearchConfig, log *logger.Logger) *Client {
	timeout := cfg.GetSearchAPITimeout()
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(_ *http.Response, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}).
		WithBackoff(250*time.Millisecond, 2*time.Second).
		WithMaxRetries(2).
		Build()

	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.GetSearchAPIURL(), "/"),
		apiKey:  cfg.GetSearchAPIKey(),
		reset:   failsafe.With(retry),
		log:     log,
	}
}

// Search submits a query with its conversation context. It is not retried:
// a repeated search would append a second turn on the remote side.
func (c *Client) Search(ctx context.Context, req Request) (Response, error) {
	if req.ChatHistory == nil {
		req.ChatHistory = []Message{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindInternal, "failed to encode search request", err).WithOp("searchapi.Search")
	}

	resp, err := c.post(ctx, "/search", body)
	if err != nil {
		return Response{}, transportError("searchapi.Search", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Response{}, c.statusError("searchapi.Search", resp)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.log.Error("failed to decode search response", "error", err)
		return Response{}, apperr.Wrap(apperr.KindUnavailable, "search service returned an invalid response", err).WithOp("searchapi.Search")
	}
	if out.Listings == nil {
		out.Listings = []Listing{}
	}
	return out, nil
}

// ResetConversation asks the service to forget the conversation. Transport
// failures and 5xx answers are retried.
func (c *Client) ResetConversation(ctx context.Context) error {
	resp, err := c.reset.WithContext(ctx).Get(func() (*http.Response, error) {
		resp, err := c.post(ctx, "/search/reset", []byte(`{}`))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("reset returned status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return transportError("searchapi.ResetConversation", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return c.statusError("searchapi.ResetConversation", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.UpstreamError(upstreamName, path, err)
		return nil, err
	}
	return resp, nil
}

func (c *Client) statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := upstreamMessage(raw)
	c.log.Error("search upstream error", "op", op, "status", resp.StatusCode, "message", msg)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.NotFound(orDefault(msg, "no results found")).WithOp(op)
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return apperr.Timeout(orDefault(msg, "search request timed out")).WithOp(op)
	case resp.StatusCode >= http.StatusInternalServerError:
		return apperr.Unavailable(orDefault(msg, fmt.Sprintf("search service error (%d)", resp.StatusCode))).WithOp(op)
	default:
		return apperr.BadRequest(orDefault(msg, fmt.Sprintf("search request rejected (%d)", resp.StatusCode))).WithOp(op)
	}
}

func transportError(op string, err error) error {
	return apperr.Upstream(err, "search request timed out", "network error contacting search service").WithOp(op)
}

func upstreamMessage(raw []byte) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
