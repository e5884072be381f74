package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"smscode/backend/internal/domain"
)

// AlertLevel 告警级别
type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "info"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
)

// Alert 告警
type Alert struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Level      AlertLevel `json:"level"`
	Component  string     `json:"component"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// AlertCondition 返回是否触发以及告警描述
type AlertCondition func(ctx context.Context) (bool, string)

// AlertRule 告警规则，同一规则同一时间只保留一条未解决告警
type AlertRule struct {
	ID        string
	Name      string
	Condition AlertCondition
	Level     AlertLevel
	Component string
	Cooldown  time.Duration
}

// AlertReceiver 告警接收器接口
type AlertReceiver interface {
	SendAlert(ctx context.Context, alert *Alert) error
}

// AlertManager 告警管理器
type AlertManager struct {
	alerts        map[string]*Alert
	rules         []AlertRule
	lastTriggered map[string]time.Time
	receivers     []AlertReceiver
	logger        *zap.Logger
	now           func() time.Time
	mu            sync.RWMutex
}

// NewAlertManager 创建告警管理器
func NewAlertManager(logger *zap.Logger) *AlertManager {
	return &AlertManager{
		alerts:        make(map[string]*Alert),
		lastTriggered: make(map[string]time.Time),
		logger:        logger,
		now:           time.Now,
	}
}

// AddReceiver 添加告警接收器
func (am *AlertManager) AddReceiver(receiver AlertReceiver) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.receivers = append(am.receivers, receiver)
}

// AddRule 添加告警规则
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

// TriggerAlert 触发告警，已存在的未解决告警不会重复通知
func (am *AlertManager) TriggerAlert(ctx context.Context, alert *Alert) {
	am.mu.Lock()
	if existing, exists := am.alerts[alert.ID]; exists && !existing.Resolved {
		am.mu.Unlock()
		am.logger.Debug("alert already active", zap.String("alert_id", alert.ID))
		return
	}
	am.alerts[alert.ID] = alert
	receivers := append([]AlertReceiver(nil), am.receivers...)
	am.mu.Unlock()

	// 通知在锁外进行，Webhook 可能较慢
	for _, receiver := range receivers {
		if err := receiver.SendAlert(ctx, alert); err != nil {
			am.logger.Error("failed to send alert",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}

	am.logger.Info("alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("level", string(alert.Level)),
		zap.String("component", alert.Component),
	)
}

// ResolveAlert 解决告警
func (am *AlertManager) ResolveAlert(alertID string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if alert, exists := am.alerts[alertID]; exists && !alert.Resolved {
		now := am.now()
		alert.Resolved = true
		alert.ResolvedAt = &now

		am.logger.Info("alert resolved", zap.String("alert_id", alertID))
	}
}

// GetAlerts 获取全部告警，按触发时间排序
func (am *AlertManager) GetAlerts() []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	alerts := make([]Alert, 0, len(am.alerts))
	for _, alert := range am.alerts {
		alerts = append(alerts, *alert)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Timestamp.Before(alerts[j].Timestamp) })
	return alerts
}

// GetActiveAlerts 获取未解决的告警
func (am *AlertManager) GetActiveAlerts() []Alert {
	active := make([]Alert, 0)
	for _, alert := range am.GetAlerts() {
		if !alert.Resolved {
			active = append(active, alert)
		}
	}
	return active
}

// CheckRules 逐条评估告警规则；条件恢复后自动解决对应告警
func (am *AlertManager) CheckRules(ctx context.Context) {
	am.mu.RLock()
	rules := make([]AlertRule, len(am.rules))
	copy(rules, am.rules)
	am.mu.RUnlock()

	for _, rule := range rules {
		fired, message := rule.Condition(ctx)
		if !fired {
			am.ResolveAlert(rule.ID)
			continue
		}

		now := am.now()
		am.mu.Lock()
		last := am.lastTriggered[rule.ID]
		if !last.IsZero() && now.Sub(last) < rule.Cooldown {
			am.mu.Unlock()
			continue
		}
		am.lastTriggered[rule.ID] = now
		am.mu.Unlock()

		am.TriggerAlert(ctx, &Alert{
			ID:        rule.ID,
			Title:     rule.Name,
			Message:   message,
			Level:     rule.Level,
			Component: rule.Component,
			Timestamp: now,
		})
	}
}

// StartMonitoring 按周期检查规则，直到 ctx 结束
func (am *AlertManager) StartMonitoring(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.CheckRules(ctx)
		}
	}
}

// ========== 内置告警规则 ==========

// HighMemoryUsageRule 高内存使用告警规则
func HighMemoryUsageRule(thresholdMB float64) AlertRule {
	return AlertRule{
		ID:   "high_memory_usage",
		Name: "High Memory Usage",
		Condition: func(context.Context) (bool, string) {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			usage := float64(m.Alloc) / 1024 / 1024
			return usage > thresholdMB, fmt.Sprintf("memory usage %.1f MB exceeds %.1f MB", usage, thresholdMB)
		},
		Level:     AlertLevelWarning,
		Component: "memory",
		Cooldown:  5 * time.Minute,
	}
}

// StoreConnectionRule 存储连接告警规则
func StoreConnectionRule(ping func(ctx context.Context) error) AlertRule {
	return AlertRule{
		ID:   "store_connection",
		Name: "Store Connection",
		Condition: func(ctx context.Context) (bool, string) {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				return true, fmt.Sprintf("store ping failed: %v", err)
			}
			return false, ""
		},
		Level:     AlertLevelCritical,
		Component: "database",
		Cooldown:  time.Minute,
	}
}

// DeliveryFailureRateRule 短信发送失败率告警规则，样本不足 minDeliveries 时不评估
func DeliveryFailureRateRule(stats func(ctx context.Context) (*domain.DeliveryStats, error), threshold float64, minDeliveries int64) AlertRule {
	return AlertRule{
		ID:   "sms_failure_rate",
		Name: "High SMS Failure Rate",
		Condition: func(ctx context.Context) (bool, string) {
			s, err := stats(ctx)
			if err != nil || s == nil || s.Total == 0 || s.Total < minDeliveries {
				return false, ""
			}
			rate := float64(s.Failed) / float64(s.Total)
			return rate > threshold, fmt.Sprintf("sms failure rate %.1f%% (%d/%d) exceeds %.1f%%",
				rate*100, s.Failed, s.Total, threshold*100)
		},
		Level:     AlertLevelWarning,
		Component: "sms",
		Cooldown:  10 * time.Minute,
	}
}

// ========== 告警接收器实现 ==========

// LogAlertReceiver 日志告警接收器
type LogAlertReceiver struct {
	logger *zap.Logger
}

// NewLogAlertReceiver 创建日志告警接收器
func NewLogAlertReceiver(logger *zap.Logger) *LogAlertReceiver {
	return &LogAlertReceiver{logger: logger}
}

// SendAlert 发送告警到日志
func (lar *LogAlertReceiver) SendAlert(_ context.Context, alert *Alert) error {
	fields := []zap.Field{
		zap.String("alert_id", alert.ID),
		zap.String("title", alert.Title),
		zap.String("message", alert.Message),
		zap.String("component", alert.Component),
		zap.Time("timestamp", alert.Timestamp),
	}

	switch alert.Level {
	case AlertLevelCritical:
		lar.logger.Error("CRITICAL ALERT", fields...)
	case AlertLevelWarning:
		lar.logger.Warn("WARNING ALERT", fields...)
	default:
		lar.logger.Info("INFO ALERT", fields...)
	}
	return nil
}

// WebhookAlertReceiver Webhook 告警接收器，以 JSON POST 告警内容
type WebhookAlertReceiver struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookAlertReceiver 创建 Webhook 告警接收器
func NewWebhookAlertReceiver(url string, logger *zap.Logger) *WebhookAlertReceiver {
	return &WebhookAlertReceiver{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// SendAlert 发送告警到 Webhook
func (war *WebhookAlertReceiver) SendAlert(ctx context.Context, alert *Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, war.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := war.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}

	war.logger.Debug("alert delivered to webhook",
		zap.String("alert_id", alert.ID),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}
