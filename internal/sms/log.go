package sms

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smscode/backend/internal/config"
)

// LogProvider 开发环境通道：只写日志，不发送短信
type LogProvider struct {
	log *zap.Logger
}

// NewLogProvider 创建日志通道
func NewLogProvider(log *zap.Logger) *LogProvider {
	return &LogProvider{log: log}
}

// Name 通道名称
func (p *LogProvider) Name() string { return config.ProviderLog }

// Send 记录短信内容并返回成功
//
// Info 级别只输出遮蔽验证码后的正文，完整正文仅在 Debug 级别可见。
func (p *LogProvider) Send(_ context.Context, phone, content, code string) DeliveryResult {
	masked := content
	if code != "" {
		masked = strings.ReplaceAll(content, code, strings.Repeat("*", len(code)))
	}
	p.log.Info("sms skipped by log provider",
		zap.String("phone", maskPhone(phone)),
		zap.String("content", masked),
	)
	p.log.Debug("sms content", zap.String("phone", maskPhone(phone)), zap.String("content", content))
	return success(uuid.New().String())
}
