package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
)

// configResponse is the wire form of a policy; durations travel as milliseconds.
type configResponse struct {
	Module      string         `json:"module"`
	MaxRequests int            `json:"max_requests"`
	WindowMs    int64          `json:"window_ms"`
	BlockMs     int64          `json:"block_ms"`
	Mode        ratelimit.Mode `json:"mode"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func configResponseFrom(cfg ratelimit.Config) configResponse {
	return configResponse{
		Module:      cfg.Module,
		MaxRequests: cfg.MaxRequests,
		WindowMs:    cfg.Window.Milliseconds(),
		BlockMs:     cfg.BlockDuration.Milliseconds(),
		Mode:        cfg.Mode,
		UpdatedAt:   cfg.UpdatedAt,
	}
}

type updateConfigRequest struct {
	MaxRequests *int            `json:"max_requests"`
	WindowMs    *int64          `json:"window_ms"`
	BlockMs     *int64          `json:"block_ms"`
	Mode        *ratelimit.Mode `json:"mode"`
}

func (s *Server) getConfig(c echo.Context) error {
	module := c.Param("module")
	cfg := s.configSvc.GetConfig(c.Request().Context(), module)
	return c.JSON(http.StatusOK, configResponseFrom(cfg))
}

func (s *Server) updateConfig(c echo.Context) error {
	module := c.Param("module")
	var req updateConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	update := &ratelimit.UpdateConfigRequest{
		MaxRequests: req.MaxRequests,
		Mode:        req.Mode,
	}
	if req.WindowMs != nil {
		window := time.Duration(*req.WindowMs) * time.Millisecond
		update.Window = &window
	}
	if req.BlockMs != nil {
		block := time.Duration(*req.BlockMs) * time.Millisecond
		update.BlockDuration = &block
	}

	cfg, err := s.configSvc.UpdateConfig(c.Request().Context(), module, update)
	if err != nil {
		if errors.Is(err, ratelimit.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, configResponseFrom(*cfg))
}

func (s *Server) invalidateConfig(c echo.Context) error {
	module := c.Param("module")
	s.configSvc.Invalidate(module)
	return c.JSON(http.StatusOK, map[string]interface{}{"invalidated": module})
}
