package v1

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/sidekick/store"
)

// messageResponse is the wire shape of a message.
type messageResponse struct {
	UID             string `json:"uid"`
	ConversationUID string `json:"conversationUid"`
	Role            string `json:"role"`
	Content         string `json:"content"`
	CreatedTs       int64  `json:"createdTs"`
}

func convertMessage(m *store.Message) *messageResponse {
	return &messageResponse{
		UID:             m.UID,
		ConversationUID: m.ConversationUID,
		Role:            string(m.Role),
		Content:         m.Content,
		CreatedTs:       m.CreatedTs,
	}
}

func (s *APIV1Service) ListMessages(c echo.Context) error {
	list, err := s.Store.ListMessages(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return internalError(c, err)
	}

	response := make([]*messageResponse, 0, len(list))
	for _, message := range list {
		response = append(response, convertMessage(message))
	}
	return c.JSON(http.StatusOK, response)
}

type createMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *APIV1Service) CreateMessage(c echo.Context) error {
	request := &createMessageRequest{}
	if err := c.Bind(request); err != nil {
		return newErrorResponse(c, http.StatusBadRequest, "malformed request body")
	}

	role := store.Role(request.Role)
	if !role.IsValid() || role == store.RoleSystem {
		return newErrorResponse(c, http.StatusBadRequest, "role must be user or assistant")
	}

	message, err := s.Store.AppendMessage(c.Request().Context(), c.Param("uid"), role, request.Content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newErrorResponse(c, http.StatusNotFound, "conversation not found")
		}
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, convertMessage(message))
}

type updateMessageRequest struct {
	Content string `json:"content"`
}

// UpdateMessage edits a message in place. With ?truncate=true every later
// message in the conversation is dropped as well, which is the
// "edit and resend" flow.
func (s *APIV1Service) UpdateMessage(c echo.Context) error {
	request := &updateMessageRequest{}
	if err := c.Bind(request); err != nil {
		return newErrorResponse(c, http.StatusBadRequest, "malformed request body")
	}

	ctx := c.Request().Context()
	message, err := s.Store.UpdateMessageContent(ctx, c.Param("uid"), request.Content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newErrorResponse(c, http.StatusNotFound, "message not found")
		}
		return internalError(c, err)
	}

	if c.QueryParam("truncate") == "true" {
		if _, err := s.Store.TruncateAfter(ctx, message.ConversationUID, message.UID); err != nil {
			return internalError(c, err)
		}
	}
	return c.JSON(http.StatusOK, convertMessage(message))
}

type truncateResponse struct {
	Deleted int64 `json:"deleted"`
}

// TruncateMessages drops everything created after the target message. Used
// when the user edits a message and regenerates from that point.
func (s *APIV1Service) TruncateMessages(c echo.Context) error {
	deleted, err := s.Store.TruncateAfter(c.Request().Context(), c.Param("uid"), c.Param("messageUID"))
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, &truncateResponse{Deleted: deleted})
}
