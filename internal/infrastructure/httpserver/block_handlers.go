package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
)

func (s *Server) createBlock(c echo.Context) error {
	var req ratelimit.CreateBlockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	block, err := s.blockSvc.CreateBlock(c.Request().Context(), &req)
	if err != nil {
		if errors.Is(err, ratelimit.ErrBlockExists) {
			return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
				"code":    "BLOCK_EXISTS",
				"message": err.Error(),
			})
		}
		if errors.Is(err, ratelimit.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, block)
}

func (s *Server) listBlocks(c echo.Context) error {
	module := c.QueryParam("module")
	activeOnly := true
	if v := c.QueryParam("active"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			activeOnly = b
		}
	}

	blocks, err := s.blockSvc.ListBlocks(c.Request().Context(), module, activeOnly)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if blocks == nil {
		blocks = []*ratelimit.ManualBlock{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"blocks": blocks, "total": len(blocks)})
}

// revokeBlock identifies the target via query parameters; email and domain
// values do not survive cleanly as path segments.
func (s *Server) revokeBlock(c echo.Context) error {
	module := c.QueryParam("module")
	targetType := ratelimit.TargetType(c.QueryParam("target_type"))
	targetValue := c.QueryParam("target_value")
	revokedBy := c.QueryParam("revoked_by")
	if module == "" || targetType == "" || targetValue == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "module, target_type and target_value are required")
	}

	if err := s.blockSvc.RevokeBlock(c.Request().Context(), module, targetType, targetValue, revokedBy); err != nil {
		if errors.Is(err, ratelimit.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
