package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"codemail/backend/internal/config"
	"codemail/backend/internal/domain"
	"codemail/backend/internal/health"
	"codemail/backend/internal/logger"
	"codemail/backend/internal/middleware"
	"codemail/backend/internal/monitoring"
	"codemail/backend/internal/service"
	"codemail/backend/internal/websocket"
)

// Version API 版本号
const Version = "1.0.0"

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	CodeService    *service.CodeService
	SessionService *service.SessionService
	MailboxService *service.MailboxService
	MessageService *service.MessageService
	AdminService   *service.AdminService
	TokenVerifier  middleware.TokenVerifier
	WebSocketHub   *websocket.Hub   // 可选
	Health         *health.Checker  // 可选
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := logger.OrNop(deps.Logger)
	router := gin.New()

	monitor := middleware.NewMonitor(deps.Metrics, log)
	router.Use(middleware.RequestID())
	router.Use(monitor.Recovery())
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(deps.Config.Message.MaxBodyBytes + 64*1024))

	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 如果允许所有来源，则需清空凭证支持
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	authHandler := NewAuthHandler(deps.SessionService, deps.AdminService, log)
	mailboxHandler := NewMailboxHandler(deps.MailboxService, log)
	messageHandler := NewMessageHandler(deps.MessageService, log)
	adminHandler := NewAdminHandler(deps.CodeService, deps.AdminService, log)

	sessionAuth := middleware.NewSessionAuth(deps.TokenVerifier, log)
	requireUser := sessionAuth.RequireRole(domain.RoleUser)
	requireAdmin := sessionAuth.RequireRole(domain.RoleAdmin)

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查
	router.GET("/health", healthHandler(deps.Health))
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	}

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	if deps.WebSocketHub != nil {
		router.GET("/ws", deps.WebSocketHub.Handler())
	}

	// 同一组接口同时挂载在 /api 和根路径下
	for _, prefix := range []string{"/api", ""} {
		api := router.Group(prefix)

		api.GET("/", banner)

		api.POST("/verify-code", authHandler.VerifyCode)
		api.POST("/mock-email", messageHandler.MockEmail)

		user := api.Group("", requireUser)
		{
			user.POST("/email/generate", mailboxHandler.Generate)
			user.GET("/emails", mailboxHandler.List)
			user.GET("/messages", messageHandler.List)
			user.GET("/messages/:id", messageHandler.Get)
			user.DELETE("/messages/:id", messageHandler.Delete)
		}

		api.POST("/admin/login", authHandler.AdminLogin)
		admin := api.Group("/admin", requireAdmin)
		{
			admin.POST("/generate-code", adminHandler.GenerateCode)
			admin.GET("/codes", adminHandler.ListCodes)
			admin.DELETE("/codes/:id", adminHandler.RevokeCode)
			admin.GET("/stats", adminHandler.Stats)
		}
	}

	return router
}

type bannerResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// banner API 信息
// @Summary API 信息
// @Tags 系统
// @Produce json
// @Success 200 {object} bannerResponse
// @Router /api/ [get]
func banner(c *gin.Context) {
	c.JSON(http.StatusOK, bannerResponse{Message: "TempMail SaaS API", Version: Version})
}

// healthHandler 汇总健康状态
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func healthHandler(checker *health.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}

		healthy, results := checker.Status()
		status := http.StatusOK
		results["status"] = "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			results["status"] = "degraded"
		}
		c.JSON(status, results)
	}
}
