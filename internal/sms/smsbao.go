package sms

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smscode/backend/internal/config"
)

// smsbaoMessages 短信宝返回码
var smsbaoMessages = map[string]string{
	"30": "wrong password",
	"40": "account not found",
	"41": "IP blocked",
	"42": "account expired",
	"43": "insufficient balance",
	"50": "content contains forbidden words",
	"51": "malformed phone number",
}

// SMSBaoProvider 短信宝通道：GET 请求，密码以 MD5 形式传输，响应体为纯文本状态码
type SMSBaoProvider struct {
	endpoint string
	username string
	password string
	client   *http.Client
	log      *zap.Logger
}

// NewSMSBaoProvider 创建短信宝通道
func NewSMSBaoProvider(cfg config.SMSBaoConfig, client *http.Client, log *zap.Logger) *SMSBaoProvider {
	return &SMSBaoProvider{
		endpoint: cfg.Endpoint,
		username: cfg.Username,
		password: cfg.Password,
		client:   client,
		log:      log,
	}
}

// Name 通道名称
func (p *SMSBaoProvider) Name() string { return config.ProviderSMSBao }

// Send 发送短信
func (p *SMSBaoProvider) Send(ctx context.Context, phone, content, _ string) DeliveryResult {
	if p.username == "" || p.password == "" {
		return failure(FailureConfig, MsgConfigIncomplete)
	}

	sum := md5.Sum([]byte(p.password))
	params := url.Values{}
	params.Set("username", p.username)
	params.Set("password", hex.EncodeToString(sum[:]))
	params.Set("mobile", phone)
	params.Set("content", content)

	status, body, err := doGet(ctx, p.client, p.endpoint+"?"+params.Encode())
	if err != nil {
		p.log.Warn("smsbao request failed", zap.String("phone", maskPhone(phone)), zap.Error(err))
		return failure(FailureNetwork, "request failed: %v", err)
	}
	if status != http.StatusOK {
		return failure(FailureProvider, "unexpected http status: %d", status)
	}

	code := strings.TrimSpace(string(body))
	if code == "0" {
		return success(uuid.New().String())
	}
	if msg, ok := smsbaoMessages[code]; ok {
		return failure(FailureProvider, "%s", msg)
	}
	return failure(FailureProvider, "provider error code: %s", code)
}
