package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// resetCache drops the counter and cached block state for one (module, key)
// pair in every store layer. It exists for support workflows: un-sticking a
// key that was rate limited by a misconfigured policy.
func (s *Server) resetCache(c echo.Context) error {
	var req struct {
		Module string `json:"module"`
		Key    string `json:"key"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Module == "" || req.Key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "module and key are required")
	}

	if err := s.store.ClearCache(c.Request().Context(), req.Module, req.Key); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if s.logger != nil {
		s.logger.WithField("module", req.Module).Info("cache reset")
	}
	return c.NoContent(http.StatusNoContent)
}
