package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/api/websocket"
	"github.com/KevinKickass/OpenEnergyCore/internal/auth"
	"github.com/KevinKickass/OpenEnergyCore/internal/config"
	"github.com/KevinKickass/OpenEnergyCore/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.Default(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Inject AuthService into Gin context
	s.router.Use(func(c *gin.Context) {
		c.Set("authService", s.authService)
		c.Next()
	})

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH ENDPOINTS (PUBLIC) ====================
		authPublic := v1.Group("/auth")
		{
			authPublic.POST("/login", s.login)
			authPublic.POST("/refresh", s.refreshToken)
		}

		// ==================== AUTH ENDPOINTS (AUTHENTICATED) ====================
		authProtected := v1.Group("/auth")
		authProtected.Use(s.authService.AuthMiddleware())
		{
			authProtected.POST("/logout", s.logout)
			authProtected.GET("/me", s.getCurrentUser)
		}

		// ==================== USER MANAGEMENT (ADMIN ONLY) ====================
		users := v1.Group("/users")
		users.Use(s.authService.AuthMiddleware())
		users.Use(auth.RequirePermission(auth.PermAdmin))
		{
			users.POST("", s.createUser)
			users.GET("", s.listUsers)
			users.PATCH("/:id", s.updateUser)
			users.DELETE("/:id", s.deleteUser)
		}

		// ==================== SYSTEM ====================
		system := v1.Group("/system")
		system.Use(s.authService.AuthMiddleware())
		{
			system.GET("/status", auth.RequirePermission(auth.PermOperator), s.getSystemStatus)
			system.POST("/shutdown", auth.RequirePermission(auth.PermAdmin), s.shutdown)
		}

		// ==================== ANALYZERS ====================
		analyzers := v1.Group("/analyzers")
		analyzers.Use(s.authService.AuthMiddleware())
		{
			// Read operations: Operator+
			analyzers.GET("", auth.RequirePermission(auth.PermOperator), s.listAnalyzers)
			analyzers.GET("/:id", auth.RequirePermission(auth.PermOperator), s.getAnalyzer)
			analyzers.GET("/:id/registers", auth.RequirePermission(auth.PermOperator), s.listAnalyzerRegisters)
			analyzers.POST("/:id/read", auth.RequirePermission(auth.PermOperator), s.readRegister)

			// Write operations: Technician+ / Admin
			analyzers.POST("", auth.RequirePermission(auth.PermAdmin), s.createAnalyzer)
			analyzers.DELETE("/:id", auth.RequirePermission(auth.PermAdmin), s.deleteAnalyzer)
			analyzers.POST("/:id/write", auth.RequirePermission(auth.PermTechnician), s.writeRegister)
		}

		// ==================== TREND LOGS ====================
		trendLogs := v1.Group("/trend-logs")
		trendLogs.Use(s.authService.AuthMiddleware())
		{
			trendLogs.GET("", auth.RequirePermission(auth.PermOperator), s.listTrendLogs)
			trendLogs.GET("/:id", auth.RequirePermission(auth.PermOperator), s.getTrendLog)
			trendLogs.GET("/:id/samples", auth.RequirePermission(auth.PermOperator), s.getTrendLogSamples)

			trendLogs.POST("", auth.RequirePermission(auth.PermTechnician), s.createTrendLog)
			trendLogs.PUT("/:id", auth.RequirePermission(auth.PermTechnician), s.updateTrendLog)
			trendLogs.DELETE("/:id", auth.RequirePermission(auth.PermTechnician), s.deleteTrendLog)
		}

		// ==================== MULTI LOG CONFIGS ====================
		multiLogs := v1.Group("/multi-log-configs")
		multiLogs.Use(s.authService.AuthMiddleware())
		{
			multiLogs.GET("", auth.RequirePermission(auth.PermOperator), s.listMultiLogConfigs)
			multiLogs.GET("/:id", auth.RequirePermission(auth.PermOperator), s.getMultiLogConfig)

			multiLogs.POST("", auth.RequirePermission(auth.PermOperator), s.saveMultiLogConfig)
			multiLogs.DELETE("/:id", auth.RequirePermission(auth.PermOperator), s.deleteMultiLogConfig)
		}

		// ==================== DASHBOARD (MULTI LOG VIEW) ====================
		dashboard := v1.Group("/dashboard")
		dashboard.Use(s.authService.AuthMiddleware())
		dashboard.Use(auth.RequirePermission(auth.PermOperator))
		{
			dashboard.GET("", s.getDashboard)
			dashboard.POST("/selection", s.selectDashboardLogs)
			dashboard.DELETE("/selection", s.clearDashboardSelection)
			dashboard.POST("/apply/:id", s.applyDashboardConfig)
			dashboard.PUT("/refresh-rate", s.setDashboardRefreshRate)
			dashboard.PUT("/log-limit", s.setDashboardLogLimit)
		}

		// ==================== UNITS ====================
		units := v1.Group("/units")
		units.Use(s.authService.AuthMiddleware())
		{
			units.GET("", auth.RequirePermission(auth.PermOperator), s.listUnitTrees)
			units.GET("/:id", auth.RequirePermission(auth.PermOperator), s.getUnitTree)
			units.GET("/:id/registers", auth.RequirePermission(auth.PermOperator), s.getRegistersByUnit)

			units.POST("", auth.RequirePermission(auth.PermAdmin), s.saveUnitTree)
			units.DELETE("/:id", auth.RequirePermission(auth.PermAdmin), s.deleteUnitTree)
		}

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.authService.AuthMiddleware(), auth.RequirePermission(auth.PermOperator), s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
