package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/sidekick/internal/profile"
)

// errorBodyLimit bounds how much of a failed response is read back for the
// StatusError excerpt.
const errorBodyLimit = 8 * 1024

// Client issues streaming completion requests against one provider endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewClient(profile *profile.Profile) *Client {
	return &Client{
		// No client-level timeout: it would cut streaming bodies short. The
		// per-request context carries the deadline instead.
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(strings.TrimSpace(profile.LLMBaseURL), "/"),
		apiKey:     profile.LLMAPIKey,
		model:      profile.LLMModel,
	}
}

// Model returns the default model requests fall back to.
func (c *Client) Model() string {
	return c.model
}

// StreamCompletion posts the request with streaming forced on and returns the
// raw SSE body. The caller owns the returned body and must close it. A non-2xx
// status is turned into a *StatusError after the body has been drained.
func (c *Client) StreamCompletion(ctx context.Context, request *CompletionRequest) (io.ReadCloser, error) {
	if request.Model == "" {
		request.Model = c.model
	}
	request.Stream = true
	if err := request.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal completion request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build completion request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	// Compressed bodies would delay delta delivery behind decoder buffering.
	req.Header.Set("Accept-Encoding", "identity")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "completion request failed")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close error response body", "err", closeErr)
		}
		if readErr != nil {
			return nil, &StatusError{StatusCode: resp.StatusCode}
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return resp.Body, nil
}
