package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/sidekick/store"
)

// conversationResponse is the wire shape of a conversation.
type conversationResponse struct {
	UID          string `json:"uid"`
	Title        string `json:"title"`
	TitleSource  string `json:"titleSource"`
	DisplayOrder int64  `json:"displayOrder"`
	CreatedTs    int64  `json:"createdTs"`
	UpdatedTs    int64  `json:"updatedTs"`
}

func convertConversation(c *store.Conversation) *conversationResponse {
	return &conversationResponse{
		UID:          c.UID,
		Title:        c.Title,
		TitleSource:  string(c.TitleSource),
		DisplayOrder: c.DisplayOrder,
		CreatedTs:    c.CreatedTs,
		UpdatedTs:    c.UpdatedTs,
	}
}

func (s *APIV1Service) CreateConversation(c echo.Context) error {
	conversation, err := s.Store.CreateConversation(c.Request().Context())
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, convertConversation(conversation))
}

func (s *APIV1Service) ListConversations(c echo.Context) error {
	find := &store.FindConversation{}
	if c.QueryParam("order") == "display" {
		find.Order = store.OrderByDisplay
	}

	list, err := s.Store.ListConversations(c.Request().Context(), find)
	if err != nil {
		return internalError(c, err)
	}

	response := make([]*conversationResponse, 0, len(list))
	for _, conversation := range list {
		response = append(response, convertConversation(conversation))
	}
	return c.JSON(http.StatusOK, response)
}

func (s *APIV1Service) GetConversation(c echo.Context) error {
	conversation, err := s.Store.GetConversation(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return internalError(c, err)
	}
	if conversation == nil {
		return newErrorResponse(c, http.StatusNotFound, "conversation not found")
	}
	return c.JSON(http.StatusOK, convertConversation(conversation))
}

type renameConversationRequest struct {
	Title string `json:"title"`
}

// RenameConversation applies a user rename. The conversation is permanently
// excluded from auto-titling afterwards.
func (s *APIV1Service) RenameConversation(c echo.Context) error {
	request := &renameConversationRequest{}
	if err := c.Bind(request); err != nil {
		return newErrorResponse(c, http.StatusBadRequest, "malformed request body")
	}

	ctx := c.Request().Context()
	if err := s.Store.RenameConversation(ctx, c.Param("uid"), request.Title); err != nil {
		return internalError(c, err)
	}

	conversation, err := s.Store.GetConversation(ctx, c.Param("uid"))
	if err != nil {
		return internalError(c, err)
	}
	if conversation == nil {
		return newErrorResponse(c, http.StatusNotFound, "conversation not found")
	}
	return c.JSON(http.StatusOK, convertConversation(conversation))
}

func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	if err := s.Store.DeleteConversation(c.Request().Context(), c.Param("uid")); err != nil {
		return internalError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type reorderConversationsRequest struct {
	UIDs []string `json:"uids"`
}

func (s *APIV1Service) ReorderConversations(c echo.Context) error {
	request := &reorderConversationsRequest{}
	if err := c.Bind(request); err != nil {
		return newErrorResponse(c, http.StatusBadRequest, "malformed request body")
	}
	if err := s.Store.ReorderConversations(c.Request().Context(), request.UIDs); err != nil {
		return internalError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type retitleResponse struct {
	Title string `json:"title"`
}

// RetitleConversation regenerates the automatic title on demand. The
// store-level guard still applies: a user-renamed conversation keeps its
// name.
func (s *APIV1Service) RetitleConversation(c echo.Context) error {
	title, err := s.TitleGenerator.Retitle(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return newErrorResponse(c, http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, &retitleResponse{Title: title})
}
