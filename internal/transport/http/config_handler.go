package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smscode/backend/internal/middleware"
	"smscode/backend/internal/service"
)

// ConfigHandler 短信运行时配置处理器
type ConfigHandler struct {
	settings *service.SettingsService
	log      *zap.Logger
}

// NewConfigHandler 创建配置处理器
func NewConfigHandler(settings *service.SettingsService, log *zap.Logger) *ConfigHandler {
	return &ConfigHandler{settings: settings, log: log}
}

// GetConfig godoc
// @Summary 获取短信配置
// @Description 返回启用状态、签名与各用途模板
// @Tags Admin - Config
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=domain.SMSSettings}
// @Failure 500 {object} Response
// @Router /sms/admin/config [get]
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.log.Error("failed to load sms settings", zap.Error(err))
		InternalError(c, MsgSettingsGetFailed)
		return
	}

	Success(c, settings)
}

// UpdateConfigRequest 更新短信配置请求，省略的字段保持不变
type UpdateConfigRequest struct {
	Enabled   *bool             `json:"enabled"`
	SignName  *string           `json:"signName"`
	Templates map[string]string `json:"templates"` // 空字符串表示恢复静态模板
}

// UpdateConfig godoc
// @Summary 更新短信配置
// @Tags Admin - Config
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateConfigRequest true "配置信息"
// @Success 200 {object} Response{data=domain.SMSSettings}
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /sms/admin/config [put]
func (h *ConfigHandler) UpdateConfig(c *gin.Context) {
	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	settings, err := h.settings.Update(c.Request.Context(), service.UpdateSettingsInput{
		Enabled:   req.Enabled,
		SignName:  req.SignName,
		Templates: req.Templates,
		UpdatedBy: c.GetString(middleware.ContextAdminID),
	})
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}

	SuccessWithMsg(c, "短信配置更新成功", settings)
}

// ResetConfig godoc
// @Summary 重置短信配置
// @Description 恢复为启动配置中的默认值
// @Tags Admin - Config
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=domain.SMSSettings}
// @Failure 500 {object} Response
// @Router /sms/admin/config/reset [post]
func (h *ConfigHandler) ResetConfig(c *gin.Context) {
	settings, err := h.settings.Reset(c.Request.Context(), c.GetString(middleware.ContextAdminID))
	if err != nil {
		h.log.Error("failed to reset sms settings", zap.Error(err))
		InternalError(c, MsgSettingsResetFail)
		return
	}

	SuccessWithMsg(c, "短信配置已重置为默认值", settings)
}
