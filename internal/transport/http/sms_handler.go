package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smscode/backend/internal/domain"
	"smscode/backend/internal/service"
)

// SMSHandler 验证码公开接口
type SMSHandler struct {
	verification *service.VerificationService
	log          *zap.Logger
}

// NewSMSHandler 创建验证码处理器
func NewSMSHandler(verification *service.VerificationService, log *zap.Logger) *SMSHandler {
	return &SMSHandler{verification: verification, log: log}
}

type sendCodeRequest struct {
	Phone   string `json:"phone" binding:"required"`
	Purpose string `json:"purpose" binding:"required"`
}

type sendCodeResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
	Simulated bool      `json:"simulated"` // 短信功能关闭时为 true，未实际下发
}

// SendCode godoc
// @Summary 发送短信验证码
// @Description 向手机号发送指定用途的验证码。同一用途60秒内只能发送一次，每个手机号每天最多10次。
// @Tags SMS
// @Accept json
// @Produce json
// @Param request body sendCodeRequest true "手机号与用途"
// @Success 200 {object} Response{data=sendCodeResponse}
// @Failure 400 {object} Response
// @Failure 429 {object} Response{data=retryAfterData}
// @Failure 502 {object} Response
// @Failure 503 {object} Response
// @Router /sms/send [post]
func (h *SMSHandler) SendCode(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.verification.Send(c.Request.Context(), service.SendInput{
		Phone:   req.Phone,
		Purpose: domain.Purpose(req.Purpose),
		IP:      c.ClientIP(),
	})
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}

	SuccessWithMsg(c, "验证码已发送", sendCodeResponse{ExpiresAt: result.ExpiresAt, Simulated: result.Simulated})
}

type verifyCodeRequest struct {
	Phone   string `json:"phone" binding:"required"`
	Code    string `json:"code" binding:"required"`
	Purpose string `json:"purpose" binding:"required"`
}

// VerifyCode godoc
// @Summary 校验短信验证码
// @Description 校验成功后验证码立即失效，不能重复使用
// @Tags SMS
// @Accept json
// @Produce json
// @Param request body verifyCodeRequest true "手机号、验证码与用途"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /sms/verify [post]
func (h *SMSHandler) VerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	err := h.verification.Verify(c.Request.Context(), service.VerifyInput{
		Phone:   req.Phone,
		Purpose: domain.Purpose(req.Purpose),
		Code:    req.Code,
	})
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}

	SuccessWithMsg(c, "验证成功", nil)
}
