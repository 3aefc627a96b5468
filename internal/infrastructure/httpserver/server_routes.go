package httpserver

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	api := s.echo.Group("/v1")
	api.POST("/check", s.checkLimit)
	api.GET("/limits/:module/status", s.limitStatus)

	admin := api.Group("/admin")
	admin.Use(s.middleware.Admin.RequireAdminToken())
	admin.Use(s.middleware.SelfLimit.Handler())

	admin.GET("/configs/:module", s.getConfig)
	admin.PUT("/configs/:module", s.updateConfig)
	admin.POST("/configs/:module/invalidate", s.invalidateConfig)

	admin.GET("/blocks", s.listBlocks)
	admin.POST("/blocks", s.createBlock)
	admin.DELETE("/blocks", s.revokeBlock)

	admin.GET("/events", s.listEvents)

	admin.POST("/cache/reset", s.resetCache)
}
