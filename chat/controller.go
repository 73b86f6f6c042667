// Package chat drives conversation turns: it persists the user message,
// streams the assistant response and fans lifecycle events out to listeners.
package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hrygo/sidekick/chat/gateway"
	"github.com/hrygo/sidekick/chat/metrics"
	"github.com/hrygo/sidekick/chat/stream"
	"github.com/hrygo/sidekick/store"
)

// State is the controller's turn state.
type State string

const (
	// StateIdle means no turn is in flight.
	StateIdle State = "idle"
	// StateSending means the user message is persisted and the upstream
	// request is being opened.
	StateSending State = "sending"
	// StateStreaming means deltas are arriving.
	StateStreaming State = "streaming"
)

// ConversationStore is the slice of the store the controller needs.
type ConversationStore interface {
	GetConversation(ctx context.Context, uid string) (*store.Conversation, error)
	AppendMessage(ctx context.Context, conversationUID string, role store.Role, content string) (*store.Message, error)
	ListMessages(ctx context.Context, conversationUID string) ([]*store.Message, error)
	GetGenerationSetting(ctx context.Context) (*store.GenerationSetting, error)
}

// CompletionStreamer opens a streaming completion and returns the raw SSE
// body.
type CompletionStreamer interface {
	StreamCompletion(ctx context.Context, request *gateway.CompletionRequest) (io.ReadCloser, error)
}

// Retitler applies an automatic title to a conversation.
type Retitler interface {
	Retitle(ctx context.Context, conversationUID string) (string, error)
}

// ControllerConfig wires a controller's collaborators. Titler and Metrics
// are optional.
type ControllerConfig struct {
	Store        ConversationStore
	Streamer     CompletionStreamer
	Bus          *EventBus
	Titler       Retitler
	Metrics      *metrics.Exporter
	SystemPrompt string
}

// Controller serializes turns for its conversations. One turn runs at a
// time; Submit blocks until the previous turn has fully torn down.
type Controller struct {
	store        ConversationStore
	streamer     CompletionStreamer
	bus          *EventBus
	titler       Retitler
	metrics      *metrics.Exporter
	systemPrompt string

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func NewController(cfg ControllerConfig) *Controller {
	bus := cfg.Bus
	if bus == nil {
		bus = NewEventBus()
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Controller{
		store:        cfg.Store,
		streamer:     cfg.Streamer,
		bus:          bus,
		titler:       cfg.Titler,
		metrics:      cfg.Metrics,
		systemPrompt: systemPrompt,
		state:        StateIdle,
	}
}

// Bus returns the event bus turns publish on.
func (c *Controller) Bus() *EventBus {
	return c.bus
}

// State returns the current turn state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cancel aborts the in-flight turn, if any. The partial response is
// discarded; already persisted messages are untouched.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Submit runs one full turn: persist the user message, stream the response,
// persist the sanitized result. Blank input is a no-op. A submit while a turn
// is in flight cancels that turn and waits for its teardown before starting.
// promptName selects a system prompt persona; empty selects the default.
func (c *Controller) Submit(ctx context.Context, conversationUID string, text string, promptName string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	for {
		c.mu.Lock()
		if c.state == StateIdle {
			turnCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			c.state, c.cancel, c.done = StateSending, cancel, done
			c.mu.Unlock()
			return c.runTurn(turnCtx, cancel, done, conversationUID, text, promptName)
		}
		// A new submit replaces the in-flight turn: cancel it, then wait for
		// its teardown barrier before claiming the slot.
		if c.cancel != nil {
			c.cancel()
		}
		prev := c.done
		c.mu.Unlock()

		select {
		case <-prev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) runTurn(ctx context.Context, cancel context.CancelFunc, done chan struct{}, conversationUID string, text string, promptName string) error {
	start := time.Now()
	defer func() {
		cancel()
		c.mu.Lock()
		c.state, c.cancel, c.done = StateIdle, nil, nil
		c.mu.Unlock()
		// Closing done is the teardown barrier the next Submit waits on.
		close(done)
	}()

	// The user message is persisted before anything goes upstream; a failed
	// or cancelled stream never loses the user's input.
	if _, err := c.store.AppendMessage(ctx, conversationUID, store.RoleUser, text); err != nil {
		return c.failTurn(ctx, conversationUID, start, err)
	}

	history, err := c.store.ListMessages(ctx, conversationUID)
	if err != nil {
		return c.failTurn(ctx, conversationUID, start, err)
	}

	settings, err := c.store.GetGenerationSetting(ctx)
	if err != nil {
		slog.Warn("failed to load generation settings, using defaults", "err", err)
		settings = store.DefaultGenerationSetting()
	}

	body, err := c.streamer.StreamCompletion(ctx, c.buildRequest(history, settings, promptName))
	if err != nil {
		if ctx.Err() != nil {
			return c.cancelTurn(ctx, conversationUID, start)
		}
		return c.failTurn(ctx, conversationUID, start, err)
	}

	c.mu.Lock()
	c.state = StateStreaming
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.StreamOpened()
		defer c.metrics.StreamClosed()
	}

	reader := stream.NewReader(body)
	defer reader.Close()

	var full strings.Builder
	for {
		delta, err := reader.Recv(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return c.cancelTurn(ctx, conversationUID, start)
			}
			return c.failTurn(ctx, conversationUID, start, err)
		}

		full.WriteString(delta)
		if c.metrics != nil {
			c.metrics.RecordDelta()
		}
		c.bus.Publish(ctx, &Event{
			Type:            EventStreamDelta,
			ConversationUID: conversationUID,
			Delta:           delta,
		})
	}

	return c.finalizeTurn(ctx, conversationUID, start, full.String())
}

func (c *Controller) buildRequest(history []*store.Message, settings *store.GenerationSetting, promptName string) *gateway.CompletionRequest {
	// Leave room for the system prompt within the upstream message cap.
	if len(history) > gateway.MaxMessages-1 {
		history = history[len(history)-(gateway.MaxMessages-1):]
	}

	systemPrompt := c.systemPrompt
	if promptName != "" {
		systemPrompt = SystemPromptFor(promptName)
	}

	messages := make([]gateway.ChatMessage, 0, len(history)+1)
	messages = append(messages, gateway.ChatMessage{
		Role:    string(store.RoleSystem),
		Content: systemPrompt,
	})
	for _, m := range history {
		messages = append(messages, gateway.ChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return &gateway.CompletionRequest{
		Model:       settings.Model,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		Messages:    messages,
	}
}

// finalizeTurn persists the sanitized response and kicks off auto-titling.
// An all-whitespace response completes the turn without an assistant
// message.
func (c *Controller) finalizeTurn(ctx context.Context, conversationUID string, start time.Time, response string) error {
	if strings.TrimSpace(response) == "" {
		c.recordTurn("completed", start)
		c.bus.Publish(ctx, &Event{
			Type:            EventTurnCompleted,
			ConversationUID: conversationUID,
		})
		return nil
	}

	clean := SanitizeResponse(response)
	if _, err := c.store.AppendMessage(ctx, conversationUID, store.RoleAssistant, clean); err != nil {
		return c.failTurn(ctx, conversationUID, start, err)
	}

	c.recordTurn("completed", start)
	c.bus.Publish(ctx, &Event{
		Type:            EventTurnCompleted,
		ConversationUID: conversationUID,
		Content:         clean,
	})

	c.maybeAutoTitle(ctx, conversationUID)
	return nil
}

func (c *Controller) cancelTurn(ctx context.Context, conversationUID string, start time.Time) error {
	c.recordTurn("cancelled", start)
	c.bus.Publish(context.WithoutCancel(ctx), &Event{
		Type:            EventTurnCancelled,
		ConversationUID: conversationUID,
	})
	return nil
}

func (c *Controller) failTurn(ctx context.Context, conversationUID string, start time.Time, err error) error {
	slog.Error("turn failed", "conversation_uid", conversationUID, "err", err)
	c.recordTurn("failed", start)
	c.bus.Publish(context.WithoutCancel(ctx), &Event{
		Type:            EventTurnFailed,
		ConversationUID: conversationUID,
		Err:             err,
	})
	return err
}

func (c *Controller) recordTurn(status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordTurn(status, time.Since(start))
	}
}

// maybeAutoTitle retitles the conversation once, after its first completed
// exchange. A manual rename before or during the turn wins: the store-level
// guard refuses to overwrite it.
func (c *Controller) maybeAutoTitle(ctx context.Context, conversationUID string) {
	if c.titler == nil {
		return
	}

	conversation, err := c.store.GetConversation(ctx, conversationUID)
	if err != nil {
		slog.Warn("failed to load conversation for auto-title", "conversation_uid", conversationUID, "err", err)
		return
	}
	if conversation == nil || conversation.TitleSource != store.TitleSourceDefault {
		return
	}

	// Titling outlives the turn context on purpose; cancelling the next turn
	// must not kill a title request already in flight.
	titleCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("auto-title panic", "conversation_uid", conversationUID, "panic", r)
			}
		}()

		title, err := c.titler.Retitle(titleCtx, conversationUID)
		if err != nil {
			slog.Warn("auto-title failed", "conversation_uid", conversationUID, "err", err)
			return
		}
		c.bus.Publish(titleCtx, &Event{
			Type:            EventTitleUpdated,
			ConversationUID: conversationUID,
			Title:           title,
		})
	}()
}
