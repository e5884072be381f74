package httptransport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smscode/backend/internal/service"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	service.ErrInvalidPhone:          "手机号格式不正确",
	service.ErrInvalidPurpose:        "验证码用途无效",
	service.ErrInvalidTemplate:       "模板必须包含 {code} 占位符且不超过300字",
	service.ErrInvalidSettings:       "短信签名不能为空且不超过32字",
	service.ErrDailyCapExceeded:      "今日验证码发送次数已达上限",
	service.ErrProviderConfigMissing: "短信配置不完整",
	service.ErrDispatchFailed:        "短信发送失败，请稍后重试",
	service.ErrCodeInvalidOrExpired:  "验证码错误或已过期",
}

// errorStatus 业务错误对应的 HTTP 状态码
var errorStatus = map[error]int{
	service.ErrInvalidPhone:          http.StatusBadRequest,
	service.ErrInvalidPurpose:        http.StatusBadRequest,
	service.ErrInvalidTemplate:       http.StatusBadRequest,
	service.ErrInvalidSettings:       http.StatusBadRequest,
	service.ErrDailyCapExceeded:      http.StatusTooManyRequests,
	service.ErrProviderConfigMissing: http.StatusServiceUnavailable,
	service.ErrDispatchFailed:        http.StatusBadGateway,
	service.ErrCodeInvalidOrExpired:  http.StatusBadRequest,
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for target, msg := range errorMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return MsgInternalError
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"

	// 管理端
	MsgLogListFailed     = "获取发送记录失败"
	MsgStatsFailed       = "获取发送统计失败"
	MsgCleanFailed       = "清理过期验证码失败"
	MsgSettingsGetFailed = "获取短信配置失败"
	MsgSettingsResetFail = "重置短信配置失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)

// retryAfterData 重发间隔限制时返回的数据
type retryAfterData struct {
	RetryAfter int `json:"retryAfter"` // 秒
}

// writeServiceError 将业务错误转换为统一响应，未识别的错误记录日志并返回 500
func writeServiceError(c *gin.Context, log *zap.Logger, err error) {
	var limitErr *service.LimitError
	if errors.As(err, &limitErr) && limitErr.Reason == service.ReasonResendInterval {
		seconds := limitErr.RetryAfterSeconds()
		TooManyRequests(c, fmt.Sprintf("发送过于频繁，请%d秒后再试", seconds), retryAfterData{RetryAfter: seconds})
		return
	}

	for target, status := range errorStatus {
		if errors.Is(err, target) {
			Error(c, status, errorMessages[target])
			return
		}
	}

	log.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	InternalError(c, MsgInternalError)
}
