package sms

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smscode/backend/internal/config"
)

const (
	aliyunAction          = "SendSms"
	aliyunVersion         = "2017-05-25"
	aliyunDefaultRegion   = "cn-hangzhou"
	aliyunTimestampLayout = "2006-01-02T15:04:05Z"
)

// aliyunResponse 阿里云短信接口响应
type aliyunResponse struct {
	Code      string `json:"Code"`
	Message   string `json:"Message"`
	BizID     string `json:"BizId"`
	RequestID string `json:"RequestId"`
}

// AliyunProvider 阿里云短信通道（HMAC-SHA1 签名的 GET 请求）
type AliyunProvider struct {
	cfg    config.AliyunConfig
	client *http.Client
	log    *zap.Logger

	now   func() time.Time
	nonce func() string
}

// NewAliyunProvider 创建阿里云短信通道
func NewAliyunProvider(cfg config.AliyunConfig, client *http.Client, log *zap.Logger) *AliyunProvider {
	if cfg.RegionID == "" {
		cfg.RegionID = aliyunDefaultRegion
	}
	return &AliyunProvider{
		cfg:    cfg,
		client: client,
		log:    log,
		now:    time.Now,
		nonce:  func() string { return uuid.New().String() },
	}
}

// Name 通道名称
func (p *AliyunProvider) Name() string { return config.ProviderAliyun }

// Send 发送短信，正文由阿里云模板渲染，这里只传递验证码参数
func (p *AliyunProvider) Send(ctx context.Context, phone, _ string, code string) DeliveryResult {
	if p.cfg.AccessKeyID == "" || p.cfg.AccessKeySecret == "" || p.cfg.SignName == "" || p.cfg.TemplateCode == "" {
		return failure(FailureConfig, MsgConfigIncomplete)
	}

	templateParam, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return failure(FailureProvider, "encode template param: %v", err)
	}

	params := map[string]string{
		"AccessKeyId":      p.cfg.AccessKeyID,
		"Action":           aliyunAction,
		"Format":           "JSON",
		"PhoneNumbers":     phone,
		"RegionId":         p.cfg.RegionID,
		"SignName":         p.cfg.SignName,
		"SignatureMethod":  "HMAC-SHA1",
		"SignatureNonce":   p.nonce(),
		"SignatureVersion": "1.0",
		"TemplateCode":     p.cfg.TemplateCode,
		"TemplateParam":    string(templateParam),
		"Timestamp":        p.now().UTC().Format(aliyunTimestampLayout),
		"Version":          aliyunVersion,
	}
	params["Signature"] = signAliyun(params, p.cfg.AccessKeySecret)

	status, body, err := doGet(ctx, p.client, p.cfg.Endpoint+"?"+canonicalQuery(params))
	if err != nil {
		p.log.Warn("aliyun sms request failed", zap.String("phone", maskPhone(phone)), zap.Error(err))
		return failure(FailureNetwork, "request failed: %v", err)
	}

	var resp aliyunResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return failure(FailureProvider, "invalid response (http %d): %v", status, err)
	}
	if resp.Code != "OK" {
		return failure(FailureProvider, "%s (%s)", resp.Message, resp.Code)
	}
	return success(resp.BizID)
}

// percentEncode RFC 3986 编码：大写十六进制，保留 - _ . ~
func percentEncode(s string) string {
	encoded := url.QueryEscape(s)
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	encoded = strings.ReplaceAll(encoded, "*", "%2A")
	encoded = strings.ReplaceAll(encoded, "%7E", "~")
	return encoded
}

// canonicalQuery 按 key 字节序排序后编码拼接
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(params[k]))
	}
	return strings.Join(pairs, "&")
}

// signAliyun 计算请求签名，params 不应包含 Signature
func signAliyun(params map[string]string, secret string) string {
	stringToSign := http.MethodGet + "&" + percentEncode("/") + "&" + percentEncode(canonicalQuery(params))

	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
