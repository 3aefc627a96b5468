package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
)

type checkRequest struct {
	Key     string `json:"key"`
	Module  string `json:"module"`
	Context struct {
		UserID      string                `json:"user_id"`
		Email       string                `json:"email"`
		IPAddress   string                `json:"ip_address"`
		KeyType     ratelimit.TargetType  `json:"key_type"`
		Environment ratelimit.Environment `json:"environment"`
		Increment   *bool                 `json:"increment"`
	} `json:"context"`
}

func (s *Server) checkLimit(c echo.Context) error {
	var req checkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Key == "" || req.Module == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key and module are required")
	}

	reqCtx := ratelimit.RequestContext{
		UserID:      req.Context.UserID,
		Email:       req.Context.Email,
		IPAddress:   req.Context.IPAddress,
		KeyType:     req.Context.KeyType,
		Environment: req.Context.Environment,
		Increment:   true,
	}
	if req.Context.Increment != nil {
		reqCtx.Increment = *req.Context.Increment
	}

	decision := s.limiterSvc.CheckLimit(c.Request().Context(), req.Key, req.Module, reqCtx)
	s.setRateLimitHeaders(c, req.Module, decision)

	return c.JSON(http.StatusOK, decision)
}

// limitStatus is the read-only preview: same evaluation path as checkLimit but
// with Increment forced off, so no counters move and no events are written.
func (s *Server) limitStatus(c echo.Context) error {
	module := c.Param("module")
	key := c.QueryParam("key")
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key query parameter is required")
	}

	reqCtx := ratelimit.RequestContext{
		KeyType:   ratelimit.TargetType(c.QueryParam("type")),
		Increment: false,
	}

	decision := s.limiterSvc.CheckLimit(c.Request().Context(), key, module, reqCtx)
	s.setRateLimitHeaders(c, module, decision)

	cfg := s.configSvc.GetConfig(c.Request().Context(), module)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"module":   module,
		"key":      key,
		"decision": decision,
		"config":   configResponseFrom(cfg),
	})
}

func (s *Server) setRateLimitHeaders(c echo.Context, module string, decision ratelimit.Decision) {
	cfg := s.configSvc.GetConfig(c.Request().Context(), module)
	c.Response().Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.MaxRequests))
	c.Response().Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
	c.Response().Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", decision.ResetTime.Unix()))

	if !decision.Allowed {
		retryAfter := time.Until(decision.ResetTime)
		if decision.BlockedUntil != nil {
			retryAfter = time.Until(*decision.BlockedUntil)
		}
		if retryAfter > 0 {
			c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
		}
	}
}
