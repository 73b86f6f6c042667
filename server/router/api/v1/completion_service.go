package v1

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/sidekick/chat/gateway"
)

// RelayCompletion forwards a completion request to the provider and relays
// the SSE body verbatim, flushing after every read so deltas reach the
// client immediately.
func (s *APIV1Service) RelayCompletion(c echo.Context) error {
	request := &gateway.CompletionRequest{}
	if err := c.Bind(request); err != nil {
		return newErrorResponse(c, http.StatusBadRequest, "invalid JSON payload")
	}

	body, err := s.Gateway.StreamCompletion(c.Request().Context(), request)
	if err != nil {
		var statusErr *gateway.StatusError
		if errors.As(err, &statusErr) {
			return newErrorResponse(c, http.StatusBadGateway, statusErr.Error())
		}
		if c.Request().Context().Err() != nil {
			return nil
		}
		return newErrorResponse(c, http.StatusBadRequest, err.Error())
	}
	defer body.Close()

	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)
	response.Flush()

	buf := make([]byte, 4*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := response.Write(buf[:n]); writeErr != nil {
				slog.Debug("client went away during relay", "err", writeErr)
				return nil
			}
			response.Flush()
		}
		if readErr != nil {
			if readErr != io.EOF && c.Request().Context().Err() == nil {
				slog.Warn("upstream relay interrupted", "err", readErr)
			}
			return nil
		}
	}
}
