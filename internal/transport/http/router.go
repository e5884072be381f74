package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	jwtpkg "smscode/backend/internal/auth/jwt"
	"smscode/backend/internal/config"
	"smscode/backend/internal/health"
	"smscode/backend/internal/middleware"
	"smscode/backend/internal/monitoring"
	"smscode/backend/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config              *config.Config
	VerificationService *service.VerificationService
	SettingsService     *service.SettingsService
	JWTManager          *jwtpkg.Manager
	RateLimiter         *middleware.IPRateLimiter // 为 nil 时不限流
	Metrics             *monitoring.Metrics       // 为 nil 时不暴露 /metrics
	Health              *health.HealthChecker
	Logger              *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger, deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	smsHandler := NewSMSHandler(deps.VerificationService, deps.Logger)
	adminHandler := NewAdminHandler(deps.VerificationService, deps.Logger)
	configHandler := NewConfigHandler(deps.SettingsService, deps.Logger)
	adminAuth := middleware.NewAdminAuth(deps.JWTManager, deps.Logger)

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		results, healthy := deps.Health.CheckHealth(c.Request.Context())
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, results)
	})
	router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	smsRoutes := router.Group("/sms")
	{
		// ========== 公开接口 ==========
		sendChain := []gin.HandlerFunc{middleware.BodySizeLimit(middleware.SmallBodyLimit)}
		verifyChain := []gin.HandlerFunc{middleware.BodySizeLimit(middleware.SmallBodyLimit)}
		if deps.RateLimiter != nil {
			sendChain = append(sendChain, deps.RateLimiter.Middleware("send"))
			verifyChain = append(verifyChain, deps.RateLimiter.Middleware("verify"))
		}
		smsRoutes.POST("/send", append(sendChain, smsHandler.SendCode)...)
		smsRoutes.POST("/verify", append(verifyChain, smsHandler.VerifyCode)...)

		// ========== 管理接口 ==========
		adminRoutes := smsRoutes.Group("/admin")
		adminRoutes.Use(adminAuth.RequireAdmin())
		{
			adminRoutes.GET("/logs", adminHandler.ListLogs)               // 发送记录
			adminRoutes.GET("/stats", adminHandler.Stats)                 // 今日统计
			adminRoutes.POST("/clean-expired", adminHandler.CleanExpired) // 清理过期验证码
			adminRoutes.GET("/config", configHandler.GetConfig)           // 获取短信配置
			adminRoutes.PUT("/config", configHandler.UpdateConfig)        // 更新短信配置
			adminRoutes.POST("/config/reset", configHandler.ResetConfig)  // 重置短信配置
		}
	}

	return router
}
