package agora

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Agora server (e.g. "http://localhost:8080").
	BaseURL string

	// Token is an optional pre-issued bearer token. Register overwrites it
	// with the token the server assigns.
	Token string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Agora action protocol API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("agora: BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
		token:   cfg.Token,
	}, nil
}

// Register registers a new agent. baseID is a requested base; the server
// assigns a unique suffixed id. The returned token is stored on the client
// and used for all subsequent calls.
func (c *Client) Register(ctx context.Context, baseID string, metadata map[string]any) (*RegisterResponse, error) {
	body := map[string]any{
		"agent": AgentProfile{ID: baseID, Metadata: metadata},
	}
	var resp RegisterResponse
	if err := c.post(ctx, "/agents/register", body, &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return &resp, nil
}

// Agents lists registered agents. limit <= 0 returns all; after is the
// cursor from a previous page.
func (c *Client) Agents(ctx context.Context, limit int, after string) (*AgentsPage, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if after != "" {
		params.Set("after", after)
	}
	path := "/agents"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var page AgentsPage
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Agent fetches one agent profile by id.
func (c *Client) Agent(ctx context.Context, agentID string) (*AgentProfile, error) {
	var resp struct {
		Agent AgentProfile `json:"agent"`
	}
	if err := c.get(ctx, "/agents/"+url.PathEscape(agentID), &resp); err != nil {
		return nil, err
	}
	return &resp.Agent, nil
}

// Protocol returns the action descriptors the server currently exposes.
func (c *Client) Protocol(ctx context.Context) ([]ActionDescriptor, error) {
	var resp struct {
		Actions []ActionDescriptor `json:"actions"`
	}
	if err := c.get(ctx, "/actions/protocol", &resp); err != nil {
		return nil, err
	}
	return resp.Actions, nil
}

// Execute submits one action and returns its terminal result. Domain errors
// come back as a result with IsError set, not as a Go error; rejections and
// faults surface as *Error (see IsRejected, IsFault).
func (c *Client) Execute(ctx context.Context, name string, parameters map[string]any) (*ActionResult, error) {
	body := map[string]any{
		"name":       name,
		"parameters": parameters,
	}
	var resp struct {
		Result ActionResult `json:"result"`
	}
	if err := c.post(ctx, "/actions/execute", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// CreateLog stores one simulation log entry.
func (c *Client) CreateLog(ctx context.Context, entry Log) error {
	return c.post(ctx, "/logs", entry, nil)
}

// Logs lists stored log entries with cursor pagination.
func (c *Client) Logs(ctx context.Context, limit int, after string) (*LogsPage, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if after != "" {
		params.Set("after", after)
	}
	path := "/logs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var page LogsPage
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Health reports the server's health. Requires no token.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("agora: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("agora: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("agora: create request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("agora: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("agora: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}
	return json.Unmarshal(bodyBytes, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}
	return apiErr
}
