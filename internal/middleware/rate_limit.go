package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"smscode/backend/internal/cache"
	"smscode/backend/internal/monitoring"
)

// 进程内限流器最多跟踪的 IP 数
const maxTrackedIPs = 10000

// WindowCounter 固定窗口计数器（Redis 实现）
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// IPRateLimiter 按客户端 IP 限流
//
// 配置了 Redis 时使用固定窗口计数，多实例共享；否则退化为进程内令牌桶。
// Redis 出错时放行请求。
type IPRateLimiter struct {
	counter WindowCounter
	limit   int
	window  time.Duration
	metrics *monitoring.Metrics
	log     *zap.Logger

	mu      sync.Mutex
	buckets *cache.LocalCache
}

// NewIPRateLimiter 创建限流器，counter 为 nil 时使用进程内限流
func NewIPRateLimiter(counter WindowCounter, limit int, window time.Duration, metrics *monitoring.Metrics, log *zap.Logger) *IPRateLimiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &IPRateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		metrics: metrics,
		log:     log,
		buckets: cache.NewLocalCache(maxTrackedIPs, 2*window),
	}
}

// Middleware 返回限流中间件，scope 区分不同接口的计数
func (l *IPRateLimiter) Middleware(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-RateLimit-Limit", strconv.Itoa(l.limit))

		if !l.allow(c.Request.Context(), scope, c.ClientIP()) {
			l.metrics.RecordRateLimitBlock(scope)
			c.Header("Retry-After", strconv.Itoa(int(l.window/time.Second)))
			abortWithError(c, http.StatusTooManyRequests, "请求过于频繁，请稍后再试")
			return
		}

		c.Next()
	}
}

func (l *IPRateLimiter) allow(ctx context.Context, scope, ip string) bool {
	if l.counter != nil {
		key := fmt.Sprintf("ratelimit:%s:%s", scope, ip)
		count, err := l.counter.IncrWindow(ctx, key, l.window)
		if err != nil {
			// Redis 出错时降级放行
			l.log.Warn("rate limit counter unavailable", zap.String("scope", scope), zap.Error(err))
			return true
		}
		return count <= int64(l.limit)
	}

	return l.bucket(scope + ":" + ip).Allow()
}

// bucket 获取或创建 IP 对应的令牌桶，每次访问刷新过期时间
func (l *IPRateLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	var limiter *rate.Limiter
	if cached, ok := l.buckets.Get(key); ok {
		limiter = cached.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)
	}
	l.buckets.Set(key, limiter, 0)
	return limiter
}
