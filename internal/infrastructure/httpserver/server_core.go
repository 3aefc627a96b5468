package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/codeweberdotcom/limitguard/internal/core/ports"
	customMiddleware "github.com/codeweberdotcom/limitguard/internal/infrastructure/httpserver/middleware"
)

type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	TLSCertFile       string
	TLSKeyFile        string
	AllowedOrigins    []string
	AdminToken        string
	SelfProtectModule string
}

type ServerDeps struct {
	LimiterService ports.LimiterService
	BlockService   ports.BlockService
	EventService   ports.EventService
	ConfigService  ports.ConfigService
	Store          ports.StoreManager
	HealthCheckers []ports.HealthChecker
}

type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	limiterSvc     ports.LimiterService
	blockSvc       ports.BlockService
	eventSvc       ports.EventService
	configSvc      ports.ConfigService
	store          ports.StoreManager
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		limiterSvc:     deps.LimiterService,
		blockSvc:       deps.BlockService,
		eventSvc:       deps.EventService,
		configSvc:      deps.ConfigService,
		store:          deps.Store,
		healthCheckers: deps.HealthCheckers,
		middleware: customMiddleware.NewMiddlewareCollection(
			deps.LimiterService,
			serverConfig.SelfProtectModule,
			serverConfig.AdminToken,
			logger,
			GetRequestsTotal(),
			GetRequestDuration(),
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}
