package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"smscode/backend/internal/config"
	"smscode/backend/internal/logger"
	"smscode/backend/internal/service"
	"smscode/backend/internal/sms"
	sqlstore "smscode/backend/internal/storage/sql"
)

// 一次性清理过期验证码，供 cron 调用
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("错误: 加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.FromAppConfig(cfg.Log))
	if err != nil {
		fmt.Printf("错误: 初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Fatal("clean-expired requires SMSCODE_DATABASE_TYPE and SMSCODE_DATABASE_DSN")
	}

	store, err := sqlstore.NewStore(cfg.Database, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer store.Close()

	// 清理不经过短信通道，使用日志通道即可
	settings := service.NewSettingsService(store, cfg.SMS, log)
	verification := service.NewVerificationService(store, sms.NewLogProvider(log), settings, cfg.SMS, nil, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	count, err := verification.CleanExpired(ctx)
	if err != nil {
		log.Fatal("failed to clean expired codes", zap.Error(err))
	}

	log.Info("expired codes cleaned up", zap.Int64("count", count))
	fmt.Printf("✓ 已清理 %d 条过期验证码\n", count)
}
