package v1

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/sidekick/chat"
)

type submitTurnRequest struct {
	Text string `json:"text"`
	// Prompt selects a system prompt persona, e.g. "Code" or "Summarizer".
	// Empty selects the default assistant persona.
	Prompt string `json:"prompt"`
}

// SubmitTurn runs one conversation turn and streams its lifecycle as SSE.
// Turn events are published synchronously on this goroutine, so writing to
// the response from the listener is safe. Title updates arrive later from a
// background goroutine and are deliberately not part of this stream.
func (s *APIV1Service) SubmitTurn(c echo.Context) error {
	request := &submitTurnRequest{}
	if err := c.Bind(request); err != nil {
		return newErrorResponse(c, http.StatusBadRequest, "malformed request body")
	}

	uid := c.Param("uid")
	ctx := c.Request().Context()

	conversation, err := s.Store.GetConversation(ctx, uid)
	if err != nil {
		return internalError(c, err)
	}
	if conversation == nil {
		return newErrorResponse(c, http.StatusNotFound, "conversation not found")
	}

	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)
	response.Flush()

	writeEvent := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("failed to marshal turn event", "event", event, "err", err)
			return
		}
		if _, err := response.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n")); err != nil {
			slog.Debug("client went away during turn stream", "err", err)
			return
		}
		response.Flush()
	}

	listener := func(_ context.Context, event *chat.Event) {
		if event.ConversationUID != uid {
			return
		}
		switch event.Type {
		case chat.EventStreamDelta:
			writeEvent("delta", map[string]string{"delta": event.Delta})
		case chat.EventTurnCompleted:
			writeEvent("completed", map[string]string{"content": event.Content})
		case chat.EventTurnCancelled:
			writeEvent("cancelled", map[string]string{})
		case chat.EventTurnFailed:
			writeEvent("failed", map[string]string{"message": event.Err.Error()})
		}
	}

	bus := s.Controller.Bus()
	turnEvents := []chat.EventType{
		chat.EventStreamDelta,
		chat.EventTurnCompleted,
		chat.EventTurnCancelled,
		chat.EventTurnFailed,
	}
	unsubs := make([]func(), 0, len(turnEvents))
	for _, eventType := range turnEvents {
		unsubs = append(unsubs, bus.Subscribe(eventType, listener))
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	// The error is already reported on the stream as a failed event.
	if err := s.Controller.Submit(ctx, uid, request.Text, request.Prompt); err != nil {
		slog.Warn("turn ended with error", "conversation_uid", uid, "err", err)
	}
	return nil
}

// CancelTurn aborts the in-flight turn, if any. Idempotent.
func (s *APIV1Service) CancelTurn(c echo.Context) error {
	s.Controller.Cancel()
	return c.NoContent(http.StatusNoContent)
}

type turnStateResponse struct {
	State string `json:"state"`
}

func (s *APIV1Service) TurnState(c echo.Context) error {
	return c.JSON(http.StatusOK, &turnStateResponse{State: string(s.Controller.State())})
}
