package api

import (
	"strings"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func (s *Server) setupRoutes() {
	s.app.Use(s.observe())
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	s.app.Get("/api/metrics", s.handleMetricsJSON)

	api := s.app.Group("/api")

	api.Post("/auth/login", s.handleLogin)

	protected := api.Use(s.authMiddleware(), s.rateLimitMiddleware())

	protected.Get("/medications", s.handleListMedications)
	protected.Post("/medications", s.handleCreateMedication)
	protected.Get("/medications/:id", s.handleGetMedication)
	protected.Put("/medications/:id", s.handleUpdateMedication)
	protected.Delete("/medications/:id", s.handleDeleteMedication)
	protected.Post("/medications/:id/schedules", s.handleCreateSchedule)

	protected.Get("/schedules", s.handleListSchedules)
	protected.Delete("/schedules/:id", s.handleDeleteSchedule)

	protected.Get("/today", s.handleToday)
	protected.Get("/today/next", s.handleNextDose)
	protected.Post("/doses/:time/taken", s.handleMarkTaken)

	protected.Post("/logs", s.handleRecordLog)
	protected.Get("/logs", s.handleListLogs)

	protected.Get("/adherence/monthly", s.handleMonthly)
	protected.Get("/adherence/weekly", s.handleWeekly)
	protected.Get("/adherence/streak", s.handleStreak)
	protected.Get("/adherence/patterns", s.handlePatterns)

	protected.Get("/preferences", s.handleGetPreferences)
	protected.Put("/preferences", s.handlePutPreferences)

	protected.Get("/export", s.handleExport)
}
