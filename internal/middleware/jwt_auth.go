package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smscode/backend/internal/auth/jwt"
)

// ContextAdminID 上下文中的管理员标识
const ContextAdminID = "adminID"

// AdminAuth 管理端 JWT 认证中间件
type AdminAuth struct {
	jwtManager *jwt.Manager
	log        *zap.Logger
}

// NewAdminAuth 创建管理端认证中间件
func NewAdminAuth(jwtManager *jwt.Manager, log *zap.Logger) *AdminAuth {
	return &AdminAuth{
		jwtManager: jwtManager,
		log:        log,
	}
}

// RequireAdmin 要求有效的管理端令牌
func (a *AdminAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "需要登录认证")
			return
		}

		claims, err := a.jwtManager.ValidateToken(token)
		if err != nil {
			a.log.Warn("invalid admin token",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			msg := "无效的访问令牌"
			if errors.Is(err, jwt.ErrExpiredToken) {
				msg = "登录已过期，请重新登录"
			}
			abortWithError(c, http.StatusUnauthorized, msg)
			return
		}

		if !claims.IsAdmin() {
			abortWithError(c, http.StatusForbidden, "权限不足")
			return
		}

		c.Set(ContextAdminID, claims.Subject)
		c.Next()
	}
}

// extractBearer 从 Authorization 头提取 Bearer 令牌
func extractBearer(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
