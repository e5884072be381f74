package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	jwtpkg "smscode/backend/internal/auth/jwt"
	"smscode/backend/internal/config"
	"smscode/backend/internal/domain"
	"smscode/backend/internal/health"
	"smscode/backend/internal/monitoring"
	"smscode/backend/internal/service"
	"smscode/backend/internal/sms"
	"smscode/backend/internal/storage"
	"smscode/backend/internal/storage/memory"
)

const testSecret = "test-secret-key-for-development-32-chars-long-at-least"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  *memory.Store
	token  string
}

func newTestServer(t *testing.T, smsCfg config.SMSConfig) *testServer {
	t.Helper()

	log := zap.NewNop()
	store := memory.NewStore()
	provider, err := sms.New(smsCfg, log)
	require.NoError(t, err)

	metrics := monitoring.NewMetrics()
	settings := service.NewSettingsService(store, smsCfg, log)
	verification := service.NewVerificationService(store, provider, settings, smsCfg, metrics, log)
	manager := jwtpkg.NewManager(testSecret, "smscode", time.Hour)

	router := NewRouter(RouterDependencies{
		Config:              &config.Config{CORS: config.CORSConfig{AllowedOrigins: []string{"*"}}},
		VerificationService: verification,
		SettingsService:     settings,
		JWTManager:          manager,
		Metrics:             metrics,
		Health:              health.NewHealthChecker(store, nil, log),
		Logger:              log,
	})

	token, err := manager.GenerateAdminToken("ops")
	require.NoError(t, err)

	return &testServer{router: router, store: store, token: token.AccessToken}
}

func (s *testServer) do(method, path, body string, admin bool) (*httptest.ResponseRecorder, Response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

var codePattern = regexp.MustCompile(`[0-9]{6}`)

// latestCode 从发送记录正文中取出最近下发的验证码
func (s *testServer) latestCode(t *testing.T, phone string, purpose domain.Purpose) string {
	t.Helper()

	logs, _, err := s.store.ListDeliveryLogs(context.Background(), storage.DeliveryLogFilter{Phone: phone})
	require.NoError(t, err)
	for _, entry := range logs {
		if entry.Purpose == purpose {
			return codePattern.FindString(entry.Content)
		}
	}
	t.Fatalf("no code delivered to %s", phone)
	return ""
}

func logConfig() config.SMSConfig {
	return config.SMSConfig{Enabled: true, Provider: config.ProviderLog, SignName: "测试"}
}

func TestSMSRoutes_SendAndVerify(t *testing.T) {
	srv := newTestServer(t, logConfig())

	w, resp := srv.do(http.MethodPost, "/sms/send", `{"phone":"13800138000","purpose":"login"}`, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["simulated"])

	code := srv.latestCode(t, "13800138000", domain.PurposeLogin)
	require.Len(t, code, 6)

	w, _ = srv.do(http.MethodPost, "/sms/verify", `{"phone":"13800138000","purpose":"login","code":"`+code+`"}`, false)
	assert.Equal(t, http.StatusOK, w.Code)

	// 已使用
	w, resp = srv.do(http.MethodPost, "/sms/verify", `{"phone":"13800138000","purpose":"login","code":"`+code+`"}`, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "验证码错误或已过期", resp.Msg)
}

func TestSMSRoutes_SendErrors(t *testing.T) {
	t.Run("重发过快返回429和等待秒数", func(t *testing.T) {
		srv := newTestServer(t, logConfig())
		body := `{"phone":"13800138000","purpose":"register"}`

		w, _ := srv.do(http.MethodPost, "/sms/send", body, false)
		require.Equal(t, http.StatusOK, w.Code)

		w, resp := srv.do(http.MethodPost, "/sms/send", body, false)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Greater(t, data["retryAfter"].(float64), 0.0)
	})

	t.Run("缺少参数", func(t *testing.T) {
		srv := newTestServer(t, logConfig())

		w, resp := srv.do(http.MethodPost, "/sms/send", `{"phone":"13800138000"}`, false)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, MsgInvalidRequest, resp.Msg)
	})

	t.Run("手机号格式错误", func(t *testing.T) {
		srv := newTestServer(t, logConfig())

		w, resp := srv.do(http.MethodPost, "/sms/send", `{"phone":"abc","purpose":"login"}`, false)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "手机号格式不正确", resp.Msg)
	})

	t.Run("用途无效", func(t *testing.T) {
		srv := newTestServer(t, logConfig())

		w, resp := srv.do(http.MethodPost, "/sms/send", `{"phone":"13800138000","purpose":"payment"}`, false)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "验证码用途无效", resp.Msg)
	})

	t.Run("通道配置不完整", func(t *testing.T) {
		cfg := logConfig()
		cfg.Provider = config.ProviderSMSBao
		srv := newTestServer(t, cfg)

		w, resp := srv.do(http.MethodPost, "/sms/send", `{"phone":"13800138000","purpose":"login"}`, false)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "短信配置不完整", resp.Msg)
	})
}

func TestSMSRoutes_Disabled(t *testing.T) {
	cfg := logConfig()
	cfg.Enabled = false
	srv := newTestServer(t, cfg)

	w, resp := srv.do(http.MethodPost, "/sms/send", `{"phone":"13800138000","purpose":"withdraw"}`, false)
	assert.Equal(t, http.StatusOK, w.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["simulated"])

	w, _ = srv.do(http.MethodPost, "/sms/verify", `{"phone":"13800138000","purpose":"withdraw","code":"123456"}`, false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	srv := newTestServer(t, logConfig())

	t.Run("未认证", func(t *testing.T) {
		w, _ := srv.do(http.MethodGet, "/sms/admin/logs", "", false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	_, _ = srv.do(http.MethodPost, "/sms/send", `{"phone":"13800138000","purpose":"login"}`, false)
	_, _ = srv.do(http.MethodPost, "/sms/send", `{"phone":"13900139000","purpose":"login"}`, false)

	t.Run("发送记录", func(t *testing.T) {
		w, resp := srv.do(http.MethodGet, "/sms/admin/logs?phone=13800138000&page=1&limit=500", "", true)
		require.Equal(t, http.StatusOK, w.Code)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, 1.0, data["total"])
		assert.Equal(t, float64(service.MaxPageSize), data["pageSize"])
	})

	t.Run("今日统计", func(t *testing.T) {
		w, resp := srv.do(http.MethodGet, "/sms/admin/stats", "", true)
		require.Equal(t, http.StatusOK, w.Code)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, 2.0, data["total"])
		assert.Equal(t, 2.0, data["success"])
	})

	t.Run("清理过期验证码", func(t *testing.T) {
		w, resp := srv.do(http.MethodPost, "/sms/admin/clean-expired", "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0.0, resp.Data.(map[string]interface{})["count"])
	})

	t.Run("更新与重置配置", func(t *testing.T) {
		w, resp := srv.do(http.MethodPut, "/sms/admin/config", `{"signName":"新签名","templates":{"login":"登录码{code}"}}`, true)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "新签名", data["signName"])
		assert.Equal(t, "ops", data["updatedBy"])

		w, _ = srv.do(http.MethodPut, "/sms/admin/config", `{"templates":{"login":"没有占位符"}}`, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w, resp = srv.do(http.MethodPost, "/sms/admin/config/reset", "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "测试", resp.Data.(map[string]interface{})["signName"])

		w, resp = srv.do(http.MethodGet, "/sms/admin/config", "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, resp.Data.(map[string]interface{})["enabled"])
	})
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	srv := newTestServer(t, logConfig())

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/metrics"} {
		w, _ := srv.do(http.MethodGet, path, "", false)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
