package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/codeweberdotcom/limitguard/internal/core/ports"
)

// SelfLimitMiddleware runs the engine against its own admin surface, keyed by
// client IP, so the blocking API cannot itself be hammered.
type SelfLimitMiddleware struct {
	limiter ports.LimiterService
	module  string
	logger  *logrus.Logger
}

func NewSelfLimitMiddleware(limiter ports.LimiterService, module string, logger *logrus.Logger) *SelfLimitMiddleware {
	return &SelfLimitMiddleware{limiter: limiter, module: module, logger: logger}
}

func (m *SelfLimitMiddleware) Handler() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				return next(c)
			}

			decision := m.limiter.CheckLimit(c.Request().Context(), ip, m.module, ratelimit.RequestContext{
				IPAddress: ip,
				KeyType:   ratelimit.TargetIP,
				Increment: true,
			})

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
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"ip": ip, "path": c.Request().URL.Path}).Warn("admin surface rate limit exceeded")
				}
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
