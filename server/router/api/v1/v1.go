// Package v1 exposes the REST and streaming API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/hrygo/sidekick/chat"
	"github.com/hrygo/sidekick/chat/gateway"
	"github.com/hrygo/sidekick/internal/profile"
	"github.com/hrygo/sidekick/store"
)

// turnRateLimit bounds how fast a single client may open turns or relay
// completions.
const turnRateLimit = rate.Limit(5)

type APIV1Service struct {
	Profile        *profile.Profile
	Store          *store.Store
	Controller     *chat.Controller
	Gateway        *gateway.Client
	TitleGenerator *chat.TitleGenerator
}

func NewAPIV1Service(
	instanceProfile *profile.Profile,
	storeInstance *store.Store,
	controller *chat.Controller,
	gatewayClient *gateway.Client,
	titleGenerator *chat.TitleGenerator,
) *APIV1Service {
	return &APIV1Service{
		Profile:        instanceProfile,
		Store:          storeInstance,
		Controller:     controller,
		Gateway:        gatewayClient,
		TitleGenerator: titleGenerator,
	}
}

// RegisterRoutes mounts every /api/v1 route on the Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	apiGroup := echoServer.Group("/api/v1")
	apiGroup.Use(middleware.CORS())

	limiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(turnRateLimit),
	})

	// Conversations
	apiGroup.POST("/conversations", s.CreateConversation)
	apiGroup.GET("/conversations", s.ListConversations)
	apiGroup.GET("/conversations/:uid", s.GetConversation)
	apiGroup.PATCH("/conversations/:uid", s.RenameConversation)
	apiGroup.DELETE("/conversations/:uid", s.DeleteConversation)
	apiGroup.POST("/conversations/reorder", s.ReorderConversations)
	apiGroup.POST("/conversations/:uid/retitle", s.RetitleConversation, limiter)

	// Messages
	apiGroup.GET("/conversations/:uid/messages", s.ListMessages)
	apiGroup.POST("/conversations/:uid/messages", s.CreateMessage)
	apiGroup.PATCH("/messages/:uid", s.UpdateMessage)
	apiGroup.POST("/conversations/:uid/messages/:messageUID/truncate", s.TruncateMessages)

	// Turns
	apiGroup.POST("/conversations/:uid/turns", s.SubmitTurn, limiter)
	apiGroup.POST("/conversations/:uid/turns/cancel", s.CancelTurn)
	apiGroup.GET("/turns/state", s.TurnState)

	// Raw completion relay
	apiGroup.POST("/chat/completions", s.RelayCompletion, limiter)

	// Settings
	apiGroup.GET("/settings", s.ListSettings)
	apiGroup.GET("/settings/:key", s.GetSetting)
	apiGroup.PUT("/settings/:key", s.UpsertSetting)
}

// errorResponse is the uniform error payload.
type errorResponse struct {
	Message string `json:"message"`
}

func newErrorResponse(c echo.Context, status int, message string) error {
	return c.JSON(status, &errorResponse{Message: message})
}

func internalError(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, &errorResponse{Message: err.Error()})
}
