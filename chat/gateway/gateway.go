// Package gateway forwards chat completion requests to an OpenAI-compatible
// provider and hands back the raw SSE body.
package gateway

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/hrygo/sidekick/store"
)

const (
	// MaxMessages caps the history forwarded upstream in a single request.
	MaxMessages = 64
	// MaxMessageBytes caps a single message body.
	MaxMessageBytes = 32 * 1024
)

// ChatMessage is one entry of the forwarded history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the payload sent to the provider. Stream is always
// forced on by the client; callers only fill the history and optional
// overrides.
type CompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// Validate rejects requests that would be refused upstream anyway.
func (r *CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("messages must not be empty")
	}
	if len(r.Messages) > MaxMessages {
		return errors.Errorf("too many messages: %d > %d", len(r.Messages), MaxMessages)
	}
	for i, m := range r.Messages {
		if !store.Role(m.Role).IsValid() {
			return errors.Errorf("message %d: invalid role %q", i, m.Role)
		}
		if len(m.Content) > MaxMessageBytes {
			return errors.Errorf("message %d: content exceeds %d bytes", i, MaxMessageBytes)
		}
	}
	return nil
}

// StatusError reports a non-2xx provider response. Body holds a bounded
// excerpt of the error payload.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}
