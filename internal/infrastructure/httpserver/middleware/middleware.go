package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/codeweberdotcom/limitguard/internal/core/ports"
)

// MiddlewareCollection holds all middleware instances
type MiddlewareCollection struct {
	Logging   *LoggingMiddleware
	Metrics   *MetricsMiddleware
	Admin     *AdminMiddleware
	SelfLimit *SelfLimitMiddleware
}

// NewMiddlewareCollection creates a new collection of all middleware
func NewMiddlewareCollection(
	limiter ports.LimiterService,
	selfProtectModule string,
	adminToken string,
	logger *logrus.Logger,
	requestsTotal *prometheus.CounterVec,
	requestDuration *prometheus.HistogramVec,
) *MiddlewareCollection {
	return &MiddlewareCollection{
		Logging:   NewLoggingMiddleware(logger),
		Metrics:   NewMetricsMiddleware(requestsTotal, requestDuration),
		Admin:     NewAdminMiddleware(adminToken, logger),
		SelfLimit: NewSelfLimitMiddleware(limiter, selfProtectModule, logger),
	}
}
