package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/sidekick/store"
)

type settingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *APIV1Service) ListSettings(c echo.Context) error {
	list, err := s.Store.ListUserSettings(c.Request().Context())
	if err != nil {
		return internalError(c, err)
	}

	response := make([]*settingResponse, 0, len(list))
	for _, setting := range list {
		response = append(response, &settingResponse{Key: setting.Key, Value: setting.Value})
	}
	return c.JSON(http.StatusOK, response)
}

func (s *APIV1Service) GetSetting(c echo.Context) error {
	setting, err := s.Store.GetUserSetting(c.Request().Context(), c.Param("key"))
	if err != nil {
		return internalError(c, err)
	}
	if setting == nil {
		return newErrorResponse(c, http.StatusNotFound, "setting not found")
	}
	return c.JSON(http.StatusOK, &settingResponse{Key: setting.Key, Value: setting.Value})
}

type upsertSettingRequest struct {
	Value string `json:"value"`
}

func (s *APIV1Service) UpsertSetting(c echo.Context) error {
	request := &upsertSettingRequest{}
	if err := c.Bind(request); err != nil {
		return newErrorResponse(c, http.StatusBadRequest, "malformed request body")
	}

	setting := &store.UserSetting{Key: c.Param("key"), Value: request.Value}
	if err := s.Store.UpsertUserSetting(c.Request().Context(), setting); err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, &settingResponse{Key: setting.Key, Value: setting.Value})
}
