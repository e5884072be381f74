package main

// @title SMS Code Backend API
// @version 1.0.0
// @description 短信验证码服务 API 文档
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description 使用格式：Bearer {token}

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	jwtpkg "smscode/backend/internal/auth/jwt"
	"smscode/backend/internal/config"
	"smscode/backend/internal/health"
	"smscode/backend/internal/logger"
	"smscode/backend/internal/middleware"
	"smscode/backend/internal/monitoring"
	"smscode/backend/internal/service"
	"smscode/backend/internal/sms"
	"smscode/backend/internal/storage"
	"smscode/backend/internal/storage/memory"
	"smscode/backend/internal/storage/redis"
	sqlstore "smscode/backend/internal/storage/sql"
	httptransport "smscode/backend/internal/transport/http"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.NewLogger(logger.FromAppConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting smscode server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("sms_provider", cfg.SMS.Provider),
	)

	store, err := initializeStorage(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}

	// Redis 可选，仅用于跨实例 IP 限流
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient, err = redis.New(cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
	}

	metrics := monitoring.NewMetrics()

	provider, err := sms.New(cfg.SMS, log)
	if err != nil {
		log.Fatal("failed to initialize sms provider", zap.Error(err))
	}

	settingsService := service.NewSettingsService(store, cfg.SMS, log)
	verificationService := service.NewVerificationService(store, provider, settingsService, cfg.SMS, metrics, log)
	jwtManager := jwtpkg.NewManager(cfg.Admin.JWTSecret, cfg.Admin.Issuer, cfg.Admin.TokenExpiry)

	var healthChecker *health.HealthChecker
	var rateLimiter *middleware.IPRateLimiter
	// 避免把 nil 指针装进接口
	if redisClient != nil {
		healthChecker = health.NewHealthChecker(store, redisClient, log)
		if cfg.RateLimit.Enabled {
			rateLimiter = middleware.NewIPRateLimiter(redisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window, metrics, log)
		}
	} else {
		healthChecker = health.NewHealthChecker(store, nil, log)
		if cfg.RateLimit.Enabled {
			rateLimiter = middleware.NewIPRateLimiter(nil, cfg.RateLimit.Limit, cfg.RateLimit.Window, metrics, log)
		}
	}

	alertManager := newAlertManager(cfg.Alert, store, verificationService, log)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:              cfg,
		VerificationService: verificationService,
		SettingsService:     settingsService,
		JWTManager:          jwtManager,
		RateLimiter:         rateLimiter,
		Metrics:             metrics,
		Health:              healthChecker,
		Logger:              log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 定时清理过期验证码，周期为 0 时交给 clean-expired 命令或管理接口
	if cfg.SMS.CleanupInterval > 0 {
		group.Go(func() error {
			ticker := time.NewTicker(cfg.SMS.CleanupInterval)
			defer ticker.Stop()

			log.Info("starting expired code cleanup task", zap.Duration("interval", cfg.SMS.CleanupInterval))

			for {
				select {
				case <-groupCtx.Done():
					log.Info("cleanup task stopped")
					return nil
				case <-ticker.C:
					count, err := verificationService.CleanExpired(groupCtx)
					if err != nil {
						log.Error("failed to clean expired codes", zap.Error(err))
					} else if count > 0 {
						log.Info("expired codes cleaned up", zap.Int64("count", count))
					}
				}
			}
		})
	}

	if alertManager != nil {
		group.Go(func() error {
			log.Info("starting alert monitoring", zap.Duration("interval", cfg.Alert.Interval))
			alertManager.StartMonitoring(groupCtx, cfg.Alert.Interval)
			return nil
		})
	}

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Warn("redis close warning", zap.Error(err))
			}
		}
		if err := store.Close(); err != nil {
			log.Warn("store close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeStorage 根据配置选择 SQL 或内存存储
func initializeStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	}

	log.Info("initializing database storage", zap.String("database_type", cfg.Database.Type))
	store, err := sqlstore.NewStore(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create sql store: %w", err)
	}
	return store, nil
}

// newAlertManager 组装告警规则，未配置检查周期时返回 nil
func newAlertManager(cfg config.AlertConfig, store storage.Store, verification *service.VerificationService, log *zap.Logger) *monitoring.AlertManager {
	if cfg.Interval <= 0 {
		return nil
	}

	am := monitoring.NewAlertManager(log)
	am.AddReceiver(monitoring.NewLogAlertReceiver(log))
	if cfg.WebhookURL != "" {
		am.AddReceiver(monitoring.NewWebhookAlertReceiver(cfg.WebhookURL, log))
	}
	am.AddRule(monitoring.HighMemoryUsageRule(cfg.MemoryThreshold))
	am.AddRule(monitoring.StoreConnectionRule(store.Health))
	am.AddRule(monitoring.DeliveryFailureRateRule(verification.Stats, cfg.FailureRate, cfg.MinDeliveries))
	return am
}
