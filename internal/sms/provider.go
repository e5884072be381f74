// Package sms 短信通道。通道在启动时按配置选定，发送失败统一转换为 DeliveryResult，不向调用方返回 error。
package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"smscode/backend/internal/config"
)

// Failure 发送失败的类别
type Failure string

const (
	FailureNone     Failure = ""
	FailureConfig   Failure = "config"   // 通道配置缺失，未发起网络请求
	FailureProvider Failure = "provider" // 通道返回失败或响应无法解析
	FailureNetwork  Failure = "network"  // 网络错误或超时
)

// MsgConfigIncomplete 通道配置缺失时的错误信息
const MsgConfigIncomplete = "短信配置不完整"

// 响应体读取上限
const maxResponseBytes = 64 << 10

// DeliveryResult 单次发送结果
type DeliveryResult struct {
	Success      bool
	MessageID    string
	ErrorMessage string
	Failure      Failure
}

func success(messageID string) DeliveryResult {
	return DeliveryResult{Success: true, MessageID: messageID}
}

func failure(kind Failure, format string, args ...interface{}) DeliveryResult {
	return DeliveryResult{ErrorMessage: fmt.Sprintf(format, args...), Failure: kind}
}

// Provider 短信通道
type Provider interface {
	// Name 通道名称，写入发送记录
	Name() string
	// Send 发送已渲染的短信正文，code 供需要模板参数的通道使用
	Send(ctx context.Context, phone, content, code string) DeliveryResult
}

// New 根据配置创建短信通道
func New(cfg config.SMSConfig, log *zap.Logger) (Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch cfg.Provider {
	case config.ProviderSMSBao:
		return NewSMSBaoProvider(cfg.SMSBao, client, log), nil
	case config.ProviderAliyun:
		return NewAliyunProvider(cfg.Aliyun, client, log), nil
	case config.ProviderLog, "":
		return NewLogProvider(log), nil
	default:
		return nil, fmt.Errorf("unsupported sms provider: %s", cfg.Provider)
	}
}

// doGet 发起 GET 请求并读取响应体
func doGet(ctx context.Context, client *http.Client, reqURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// maskPhone 日志中隐藏手机号中间位
func maskPhone(phone string) string {
	if len(phone) < 7 {
		return phone
	}
	return phone[:3] + "****" + phone[len(phone)-4:]
}
