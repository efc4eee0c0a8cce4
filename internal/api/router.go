package api

import (
	"medportal/internal/config"
	"medportal/internal/metrics"
	"medportal/internal/middleware"
	"medportal/pkg/constraints"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(practiceHandler *PracticeHandler, authHandler *AuthHandler, tokens middleware.TokenParser, cors config.CORSConfig) *gin.Engine {
	r := gin.New()

	// Global Middleware
	r.Use(
		middleware.CORS(cors),
		middleware.RequestID(),
		middleware.GinZapLogger("/health", "/metrics"),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
		middleware.TraceMiddleware(),
	)
	r.SetTrustedProxies(nil)

	// Public Routes
	r.GET("/health", practiceHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	public := r.Group("/api")
	{
		public.POST("/auth/login", authHandler.Login)
		public.POST("/auth/refresh", authHandler.Refresh)
		public.POST("/appointments", practiceHandler.BookAppointment)
		public.GET("/availabilities", practiceHandler.ListAvailabilities)
	}

	protected := r.Group("/api")
	protected.Use(middleware.JWTMiddleware(tokens))
	{
		protected.GET("/auth/me", authHandler.Me)
		protected.POST("/auth/logout", authHandler.Logout)

		protected.GET("/appointments", practiceHandler.ListAppointments)
		protected.POST("/appointments/:id/cancel", practiceHandler.CancelAppointment)

		protected.GET("/prescriptions", practiceHandler.ListPrescriptions)
		protected.GET("/prescriptions/:id/document", practiceHandler.PrescriptionDocument)
	}

	doctor := protected.Group("")
	doctor.Use(middleware.RequireRole(constraints.RoleDoctor))
	{
		doctor.POST("/availabilities", practiceHandler.CreateAvailability)
		doctor.POST("/prescriptions", practiceHandler.CreatePrescription)
	}

	admin := protected.Group("")
	admin.Use(middleware.RequireRole(constraints.RoleAdmin))
	{
		admin.GET("/users", practiceHandler.ListUsers)
		admin.POST("/users", practiceHandler.CreateUser)
		admin.DELETE("/users/:id", practiceHandler.DeleteUser)
		admin.GET("/stats", practiceHandler.Stats)
	}
	return r
}
