package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"trainslot/internal/auth"
	"trainslot/internal/booking"
	"trainslot/internal/config"
	"trainslot/internal/ledger"
	"trainslot/internal/user"
)

type Server struct {
	router *gin.Engine
	db     *sqlx.DB
	config *config.Config
	http   *http.Server
}

func New(database *sqlx.DB, cfg *config.Config, bookingService booking.Service, ledgerRepo ledger.Repository, userService user.Service) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(RateLimitMiddleware(20, 40))

	userHandler := user.NewHandler(userService)
	ledgerHandler := ledger.NewHandler(ledgerRepo)
	bookingHandler := booking.NewHandler(bookingService)

	public := router.Group("/auth")
	{
		public.POST("/register", userHandler.Register)
		public.POST("/login", userHandler.Login)
		public.POST("/refresh", userHandler.RefreshToken)
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", userHandler.GetMe)

		protected.GET("/trainers/:trainerID/packages", ledgerHandler.ListTrainerPackages)
		protected.POST("/packages", auth.RequireRole(auth.RoleTrainer), ledgerHandler.CreatePackage)
		protected.POST("/packages/:packageID/purchase", auth.RequireRole(auth.RoleCustomer), ledgerHandler.PurchasePackage)
		protected.GET("/purchases", ledgerHandler.ListMyPurchases)

		protected.POST("/sessions", auth.RequireRole(auth.RoleCustomer), bookingHandler.Book)
		protected.GET("/sessions", bookingHandler.ListMySessions)
		protected.GET("/sessions/:sessionID", bookingHandler.GetSession)
		protected.POST("/sessions/:sessionID/cancel", bookingHandler.Cancel)
		protected.POST("/sessions/:sessionID/reschedule", bookingHandler.Reschedule)
		protected.POST("/sessions/:sessionID/confirm", auth.RequireRole(auth.RoleTrainer), bookingHandler.Confirm)
		protected.POST("/sessions/:sessionID/start", auth.RequireRole(auth.RoleTrainer), bookingHandler.Start)
		protected.POST("/sessions/:sessionID/complete", auth.RequireRole(auth.RoleTrainer), bookingHandler.Complete)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/trainers/:trainerID/sessions", bookingHandler.ListTrainerSessions)
	}

	router.GET("/health", Health)
	router.GET("/ready", Ready(database))
	router.GET("/metrics", Metrics())

	return &Server{
		router: router,
		db:     database,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: s.router,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
