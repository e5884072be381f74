package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smscode/backend/internal/domain"
	"smscode/backend/internal/service"
)

// AdminHandler 短信管理接口
type AdminHandler struct {
	verification *service.VerificationService
	log          *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(verification *service.VerificationService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{verification: verification, log: log}
}

type logListResponse struct {
	Items    []domain.DeliveryLog `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
}

// ListLogs godoc
// @Summary 短信发送记录
// @Description 按创建时间倒序分页查询，可按手机号过滤
// @Tags Admin - SMS
// @Produce json
// @Security BearerAuth
// @Param phone query string false "手机号"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页条数" default(20)
// @Success 200 {object} Response{data=logListResponse}
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /sms/admin/logs [get]
func (h *AdminHandler) ListLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultPageSize)))
	page, limit = service.NormalizePage(page, limit)

	items, total, err := h.verification.Logs(c.Request.Context(), c.Query("phone"), page, limit)
	if err != nil {
		h.log.Error("failed to list delivery logs", zap.Error(err))
		InternalError(c, MsgLogListFailed)
		return
	}

	Success(c, logListResponse{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: limit,
	})
}

// Stats godoc
// @Summary 今日发送统计
// @Tags Admin - SMS
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=domain.DeliveryStats}
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /sms/admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.verification.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("failed to load delivery stats", zap.Error(err))
		InternalError(c, MsgStatsFailed)
		return
	}

	Success(c, stats)
}

type cleanExpiredResponse struct {
	Count int64 `json:"count"`
}

// CleanExpired godoc
// @Summary 清理过期验证码
// @Description 将已过期的待使用验证码批量标记为已过期
// @Tags Admin - SMS
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=cleanExpiredResponse}
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /sms/admin/clean-expired [post]
func (h *AdminHandler) CleanExpired(c *gin.Context) {
	count, err := h.verification.CleanExpired(c.Request.Context())
	if err != nil {
		h.log.Error("failed to clean expired codes", zap.Error(err))
		InternalError(c, MsgCleanFailed)
		return
	}

	SuccessWithMsg(c, "清理完成", cleanExpiredResponse{Count: count})
}
