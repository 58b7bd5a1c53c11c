// Package client fetches active prompts from a Prompty server using a project
// API key.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/kaenova/prompty/pkg/logger"
)

var (
	// ErrInvalidAPIKey is returned when the server rejects the API key.
	ErrInvalidAPIKey = errors.New("prompty: invalid API key")
	// ErrNotFound is returned when the agent is unknown or has no active prompt.
	ErrNotFound = errors.New("prompty: prompt not found")
	// ErrServer is returned for 5xx responses once retries are exhausted.
	ErrServer = errors.New("prompty: server error")
)

// Client talks to the public prompt endpoint.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	// Attempts bounds retries of server errors and transport failures.
	Attempts uint
}

// NewClient creates a new Prompty client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		Attempts: 3,
	}
}

// Prompt is the active prompt of an agent.
type Prompt struct {
	AgentName  string    `json:"agent_name"`
	PromptText string    `json:"prompt_text"`
	PromptID   string    `json:"prompt_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// APIError carries the server's error body.
type APIError struct {
	Status  int
	Message string `json:"error"`
	Code    string `json:"code"`
	kind    error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%v: %s (%s)", e.kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%v: %s", e.kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

// GetPrompt returns just the active prompt text for agentName.
func (c *Client) GetPrompt(ctx context.Context, agentName string) (string, error) {
	p, err := c.GetPromptDetails(ctx, agentName)
	if err != nil {
		return "", err
	}
	return p.PromptText, nil
}

// GetPromptDetails calls GET /api/prompt?agent_name=...
func (c *Client) GetPromptDetails(ctx context.Context, agentName string) (*Prompt, error) {
	if agentName == "" {
		return nil, errors.New("prompty: agent name is required")
	}
	endpoint := c.BaseURL + "/api/prompt?" + url.Values{"agent_name": {agentName}}.Encode()

	var out Prompt
	err := retry.Do(
		func() error { return c.fetch(ctx, endpoint, &out) },
		retry.Context(ctx),
		retry.Attempts(max(c.Attempts, 1)),
		retry.Delay(100*time.Millisecond),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrInvalidAPIKey) && !errors.Is(err, ErrNotFound) && ctx.Err() == nil
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, out *Prompt) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	req.Header.Set("X-API-Key", c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Unrecoverable(fmt.Errorf("decoding error: %w", err))
		}
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	_ = json.NewDecoder(resp.Body).Decode(apiErr)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.kind = ErrInvalidAPIKey
	case resp.StatusCode == http.StatusNotFound:
		apiErr.kind = ErrNotFound
	case resp.StatusCode >= 500:
		apiErr.kind = ErrServer
		logger.Warn("prompt fetch failed", "status", resp.StatusCode)
	default:
		apiErr.kind = fmt.Errorf("prompty: unexpected status %d", resp.StatusCode)
		return retry.Unrecoverable(apiErr)
	}
	return apiErr
}
