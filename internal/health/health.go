package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"smscode/backend/internal/storage"
)

const checkTimeout = 2 * time.Second

// Pinger 可探活的外部依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker 健康检查器
//
// 存活检查只看进程自身；就绪检查覆盖存储与 Redis（若配置）。
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	redis  Pinger
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器，redis 为 nil 表示未启用
func NewHealthChecker(store storage.Store, redis Pinger, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		redis:  redis,
		logger: logger,
	}

	hc.addChecks()
	return hc
}

func (hc *HealthChecker) addChecks() {
	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))

	hc.health.AddReadinessCheck("database", StoreHealthCheck(hc.store))
	if hc.redis != nil {
		hc.health.AddReadinessCheck("redis", RedisHealthCheck(hc.redis))
	}
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行全部检查，返回各组件状态
func (hc *HealthChecker) CheckHealth(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string)
	healthy := true

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := hc.store.Health(ctx); err != nil {
		results["database"] = fmt.Sprintf("ERROR: %v", err)
		healthy = false
		hc.logger.Warn("database health check failed", zap.Error(err))
	} else {
		results["database"] = "OK"
	}

	if hc.redis == nil {
		results["redis"] = "NOT_CONFIGURED"
	} else if err := hc.redis.Ping(ctx); err != nil {
		results["redis"] = fmt.Sprintf("ERROR: %v", err)
		healthy = false
		hc.logger.Warn("redis health check failed", zap.Error(err))
	} else {
		results["redis"] = "OK"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)
	return results, healthy
}

// StoreHealthCheck 存储健康检查
func StoreHealthCheck(store storage.Store) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		return store.Health(ctx)
	}
}

// RedisHealthCheck Redis 健康检查
func RedisHealthCheck(redis Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		return redis.Ping(ctx)
	}
}
