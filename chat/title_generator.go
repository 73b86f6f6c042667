package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/sidekick/chat/metrics"
	"github.com/hrygo/sidekick/internal/profile"
	"github.com/hrygo/sidekick/internal/strutil"
	"github.com/hrygo/sidekick/store"
)

// LLM parameters for title generation
const (
	titleTimeout         = 15 * time.Second
	titleMaxTokens       = 20
	titleTemperature     = 0.5
	titleContextMessages = 8
	titleInputMaxLen     = 500
	titleMaxWords        = 4
	titleMaxRuneCount    = 50
	titleConcurrency     = 4

	// fallbackTitle is used when the provider returns nothing usable. It is
	// distinct from store.SentinelTitle so a fallback still closes the
	// auto-title window.
	fallbackTitle = "Untitled Chat"
)

const titleSystemPrompt = "You are a helpful AI that creates concise and descriptive chat titles. " +
	"Rules: Only output ONE title, 2-4 words long, no punctuation, no numbering, no quotes, no markdown."

// TitleStore is the slice of the store the title generator needs.
type TitleStore interface {
	ListMessages(ctx context.Context, conversationUID string) ([]*store.Message, error)
	SetAutoTitle(ctx context.Context, conversationUID string, title string) error
}

// TitleGenerator names conversations from their opening exchange.
type TitleGenerator struct {
	client  *openai.Client
	model   string
	store   TitleStore
	metrics *metrics.Exporter
	sem     *semaphore.Weighted
}

// NewTitleGenerator creates a title generator bound to the profile's
// provider. The exporter may be nil.
func NewTitleGenerator(p *profile.Profile, titleStore TitleStore, exporter *metrics.Exporter) *TitleGenerator {
	model := p.TitleModel
	if model == "" {
		model = p.LLMModel
	}

	config := openai.DefaultConfig(p.LLMAPIKey)
	config.BaseURL = p.LLMBaseURL

	return &TitleGenerator{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		store:   titleStore,
		metrics: exporter,
		sem:     semaphore.NewWeighted(titleConcurrency),
	}
}

// Generate produces a short title from the tail of the conversation.
func (tg *TitleGenerator) Generate(ctx context.Context, messages []*store.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages to title")
	}

	if err := tg.sem.Acquire(ctx, 1); err != nil {
		return "", errors.Wrap(err, "failed to acquire title slot")
	}
	defer tg.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	// Only the last few messages matter for naming.
	if len(messages) > titleContextMessages {
		messages = messages[len(messages)-titleContextMessages:]
	}
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, string(m.Role)+": "+strutil.Truncate(m.Content, titleInputMaxLen))
	}
	prompt := fmt.Sprintf("Conversation:\n%s\n\nReturn only the title.", strings.Join(lines, "\n"))

	start := time.Now()
	resp, err := tg.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       tg.model,
		MaxTokens:   titleMaxTokens,
		Temperature: titleTemperature,
		Stop:        []string{"\n"},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titleSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	latency := time.Since(start)

	if err != nil {
		slog.Error("title generation failed",
			"model", tg.model,
			"err", err,
			"latency_ms", latency.Milliseconds())
		return "", errors.Wrap(err, "title request failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from provider")
	}

	title := sanitizeTitle(resp.Choices[0].Message.Content)
	if title == "" {
		title = fallbackTitle
	}

	slog.Debug("title generated",
		"model", tg.model,
		"title", title,
		"latency_ms", latency.Milliseconds(),
		"tokens_total", resp.Usage.TotalTokens)

	return title, nil
}

// Retitle generates and applies an automatic title. The conversation keeps
// its current name unless it still carries the default one.
func (tg *TitleGenerator) Retitle(ctx context.Context, conversationUID string) (string, error) {
	messages, err := tg.store.ListMessages(ctx, conversationUID)
	if err != nil {
		tg.recordTitle("error")
		return "", err
	}

	title, err := tg.Generate(ctx, messages)
	if err != nil {
		tg.recordTitle("error")
		return "", err
	}

	if err := tg.store.SetAutoTitle(ctx, conversationUID, title); err != nil {
		tg.recordTitle("error")
		return "", err
	}
	tg.recordTitle("success")
	return title, nil
}

func (tg *TitleGenerator) recordTitle(status string) {
	if tg.metrics != nil {
		tg.metrics.RecordTitleRequest(status)
	}
}

// sanitizeTitle strips wrapping quotes, markdown leftovers and length
// overruns from a generated title.
func sanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	title = strings.Map(func(r rune) rune {
		switch r {
		case ':', '*', '#', '`':
			return -1
		}
		return r
	}, title)

	words := strings.Fields(title)
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	title = strings.Join(words, " ")

	runes := []rune(title)
	if len(runes) > titleMaxRuneCount {
		title = string(runes[:titleMaxRuneCount])
	}
	return strings.TrimSpace(title)
}
