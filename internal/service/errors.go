package service

import (
	"errors"
	"fmt"
	"time"

	"smscode/backend/internal/domain"
)

var (
	// ErrRateLimited 同一手机号同一用途重发过快
	ErrRateLimited = errors.New("sms resend too frequent")
	// ErrDailyCapExceeded 手机号当日发送次数已达上限
	ErrDailyCapExceeded = errors.New("sms daily limit exceeded")
	// ErrProviderConfigMissing 短信通道配置不完整
	ErrProviderConfigMissing = errors.New("sms provider configuration incomplete")
	// ErrDispatchFailed 短信通道发送失败，细节只写日志
	ErrDispatchFailed = errors.New("sms dispatch failed")
	// ErrCodeInvalidOrExpired 验证码错误、已使用或已过期，对外不做区分
	ErrCodeInvalidOrExpired = errors.New("code incorrect or expired")
	// ErrInvalidSettings 运行时配置不合法
	ErrInvalidSettings = errors.New("invalid sms settings")

	ErrInvalidPhone    = domain.ErrInvalidPhone
	ErrInvalidPurpose  = domain.ErrInvalidPurpose
	ErrInvalidTemplate = domain.ErrInvalidTemplate
)

// LimitReason 限流原因
type LimitReason string

const (
	ReasonResendInterval LimitReason = "resend_interval"
	ReasonDailyCap       LimitReason = "daily_cap"
)

// LimitError 限流拒绝，可用 errors.Is 匹配 ErrRateLimited / ErrDailyCapExceeded
type LimitError struct {
	Reason     LimitReason
	RetryAfter time.Duration // 仅重发间隔限制时有值
}

func (e *LimitError) Error() string {
	if e.Reason == ReasonResendInterval {
		return fmt.Sprintf("%s, retry after %ds", ErrRateLimited, e.RetryAfterSeconds())
	}
	return ErrDailyCapExceeded.Error()
}

// Unwrap 返回对应的哨兵错误
func (e *LimitError) Unwrap() error {
	if e.Reason == ReasonResendInterval {
		return ErrRateLimited
	}
	return ErrDailyCapExceeded
}

// RetryAfterSeconds 重试等待秒数
func (e *LimitError) RetryAfterSeconds() int {
	return int(e.RetryAfter / time.Second)
}
