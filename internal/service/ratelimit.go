package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"smscode/backend/internal/domain"
	"smscode/backend/internal/storage"
)

const (
	DefaultResendInterval = 60 * time.Second
	DefaultDailyLimit     = 10
)

// RateLimiter 验证码发送频率策略：
// 同一 (phone, purpose) 的重发间隔，以及同一手机号自本地零点起的发送总量。
type RateLimiter struct {
	reader     storage.CodeReader
	interval   time.Duration
	dailyLimit int
}

// NewRateLimiter 创建限流器，非正数参数使用默认值
func NewRateLimiter(reader storage.CodeReader, interval time.Duration, dailyLimit int) *RateLimiter {
	if interval <= 0 {
		interval = DefaultResendInterval
	}
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	return &RateLimiter{reader: reader, interval: interval, dailyLimit: dailyLimit}
}

// Bind 返回使用指定读取源的限流器，用于在发送锁的工作单元内检查
func (l *RateLimiter) Bind(reader storage.CodeReader) *RateLimiter {
	return &RateLimiter{reader: reader, interval: l.interval, dailyLimit: l.dailyLimit}
}

// CheckAllowed 依次检查重发间隔与每日上限，返回 nil 或 *LimitError
func (l *RateLimiter) CheckAllowed(ctx context.Context, phone string, purpose domain.Purpose, now time.Time) error {
	latest, found, err := l.reader.LatestCodeCreatedAt(ctx, phone, purpose)
	if err != nil {
		return fmt.Errorf("query latest code: %w", err)
	}
	if found {
		elapsed := now.Sub(latest)
		if elapsed < l.interval {
			return &LimitError{Reason: ReasonResendInterval, RetryAfter: l.retryAfter(elapsed)}
		}
	}

	count, err := l.reader.CountCodesSince(ctx, phone, startOfDay(now))
	if err != nil {
		return fmt.Errorf("count codes today: %w", err)
	}
	if count >= int64(l.dailyLimit) {
		return &LimitError{Reason: ReasonDailyCap}
	}
	return nil
}

// retryAfter 向上取整到秒，范围 [1s, interval]
func (l *RateLimiter) retryAfter(elapsed time.Duration) time.Duration {
	if elapsed < 0 {
		elapsed = 0
	}
	seconds := math.Ceil((l.interval - elapsed).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

// startOfDay 返回 t 所在时区当天零点
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
