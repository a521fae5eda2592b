package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mcoot/matchsync/internal/api/apierr"
	"github.com/mcoot/matchsync/internal/api/response"
	"github.com/mcoot/matchsync/internal/model"
)

// Client is an HTTP client for the API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetToken updates the client's token
func (c *Client) SetToken(token string) {
	c.token = token
}

// APIError is an error response from the API. It unwraps to the error kind
// the server reported, so errors.Is works across the wire.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *APIError) Unwrap() error {
	return apierr.KindOf(e.Code)
}

// Do performs an HTTP request
func (c *Client) Do(method, path string, body, result any) error {
	return c.DoContext(context.Background(), method, path, body, result)
}

// DoContext performs an HTTP request bound to ctx
func (c *Client) DoContext(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", model.Transient(err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return responseError(resp.StatusCode, respBody)
	}

	// Parse successful response
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func responseError(status int, body []byte) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Code != "" {
		errResp.Error.Status = status
		return &errResp.Error
	}
	return fmt.Errorf("HTTP %d: %s", status, string(body))
}

// Get performs a GET request
func (c *Client) Get(path string, result any) error {
	return c.Do(http.MethodGet, path, nil, result)
}

// Post performs a POST request
func (c *Client) Post(path string, body, result any) error {
	return c.Do(http.MethodPost, path, body, result)
}

// Patch performs a PATCH request
func (c *Client) Patch(path string, body, result any) error {
	return c.Do(http.MethodPatch, path, body, result)
}

// Delete performs a DELETE request
func (c *Client) Delete(path string) error {
	return c.Do(http.MethodDelete, path, nil, nil)
}

// Stream opens a long-lived GET. The caller closes the body.
func (c *Client) Stream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The shared client's timeout would cut the stream
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", model.Transient(err))
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		return nil, responseError(resp.StatusCode, body)
	}
	return resp.Body, nil
}

// Snapshot reads the full state of a match
func (c *Client) Snapshot(ctx context.Context, matchID model.MatchID) (*model.Snapshot, error) {
	var state response.MatchState
	if err := c.DoContext(ctx, http.MethodGet, matchPath(matchID, ""), nil, &state); err != nil {
		return nil, err
	}
	return &model.Snapshot{
		Match:      state.Match.Match,
		Players:    state.Players,
		Units:      state.Units,
		Spectators: state.Spectators,
	}, nil
}

// PauseTimer pauses the match clock and returns the written match row
func (c *Client) PauseTimer(ctx context.Context, matchID model.MatchID) (*model.Match, error) {
	var m response.Match
	if err := c.DoContext(ctx, http.MethodPost, matchPath(matchID, "/timer/pause"), nil, &m); err != nil {
		return nil, err
	}
	return m.Match, nil
}

func matchPath(id model.MatchID, rest string) string {
	return "/api/v1/matches/" + string(id) + rest
}
