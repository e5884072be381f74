package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"smscode/backend/internal/cache"
	"smscode/backend/internal/config"
	"smscode/backend/internal/domain"
	"smscode/backend/internal/storage"
)

const (
	settingsCacheKey = "sms:settings"
	settingsCacheTTL = 30 * time.Second
)

// SettingsService 短信运行时配置服务（管理后台可修改启用状态、签名与模板）
type SettingsService struct {
	repo     storage.SettingsRepository
	defaults config.SMSConfig
	cache    *cache.LocalCache
	log      *zap.Logger
	now      func() time.Time
}

// NewSettingsService 创建配置服务，defaults 用于首次读取时初始化
func NewSettingsService(repo storage.SettingsRepository, defaults config.SMSConfig, log *zap.Logger) *SettingsService {
	return &SettingsService{
		repo:     repo,
		defaults: defaults,
		cache:    cache.NewLocalCache(4, settingsCacheTTL),
		log:      log,
		now:      time.Now,
	}
}

// Current 返回当前生效配置（带短时缓存）
func (s *SettingsService) Current(ctx context.Context) (*domain.SMSSettings, error) {
	if cached, ok := s.cache.Get(settingsCacheKey); ok {
		return cached.(*domain.SMSSettings).Clone(), nil
	}

	settings, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(settingsCacheKey, settings.Clone(), 0)
	return settings, nil
}

// Get 从存储读取配置，不存在时写入默认值
func (s *SettingsService) Get(ctx context.Context) (*domain.SMSSettings, error) {
	settings, err := s.repo.GetSMSSettings(ctx)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, storage.ErrSettingsNotFound) {
		return nil, fmt.Errorf("load sms settings: %w", err)
	}

	settings = s.seed("")
	if err := s.repo.SaveSMSSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("seed sms settings: %w", err)
	}
	s.log.Info("sms settings initialized from static config", zap.Bool("enabled", settings.Enabled))
	return settings, nil
}

// UpdateSettingsInput 更新配置输入，nil 字段保持不变
type UpdateSettingsInput struct {
	Enabled   *bool             `json:"enabled,omitempty"`
	SignName  *string           `json:"signName,omitempty"`
	Templates map[string]string `json:"templates,omitempty"` // 空字符串表示删除该用途模板
	UpdatedBy string            `json:"-"`
}

// Update 更新运行时配置
func (s *SettingsService) Update(ctx context.Context, input UpdateSettingsInput) (*domain.SMSSettings, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	if input.Enabled != nil {
		settings.Enabled = *input.Enabled
	}

	if input.SignName != nil {
		sign := strings.TrimSpace(*input.SignName)
		if sign == "" || len([]rune(sign)) > domain.MaxSignNameLength {
			return nil, fmt.Errorf("%w: sign name must be 1-%d characters", ErrInvalidSettings, domain.MaxSignNameLength)
		}
		settings.SignName = sign
	}

	if settings.Templates == nil {
		settings.Templates = make(map[domain.Purpose]string)
	}
	for key, text := range input.Templates {
		purpose, err := domain.ParsePurpose(key)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			delete(settings.Templates, purpose)
			continue
		}
		if err := domain.ValidateTemplate(text); err != nil {
			return nil, err
		}
		settings.Templates[purpose] = text
	}

	settings.UpdatedBy = input.UpdatedBy
	settings.UpdatedAt = s.now()

	if err := s.repo.SaveSMSSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("save sms settings: %w", err)
	}
	s.cache.Delete(settingsCacheKey)

	s.log.Info("sms settings updated",
		zap.String("updated_by", input.UpdatedBy),
		zap.Bool("enabled", settings.Enabled),
		zap.Int("templates", len(settings.Templates)),
	)
	return settings, nil
}

// Reset 恢复为静态配置的默认值
func (s *SettingsService) Reset(ctx context.Context, updatedBy string) (*domain.SMSSettings, error) {
	settings := s.seed(updatedBy)
	if err := s.repo.SaveSMSSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("save sms settings: %w", err)
	}
	s.cache.Delete(settingsCacheKey)

	s.log.Info("sms settings reset", zap.String("updated_by", updatedBy))
	return settings, nil
}

// seed 由静态配置生成默认运行时配置，模板留空以便回退到静态模板
func (s *SettingsService) seed(updatedBy string) *domain.SMSSettings {
	settings := domain.DefaultSMSSettings()
	settings.Enabled = s.defaults.Enabled
	if sign := strings.TrimSpace(s.defaults.SignName); sign != "" {
		settings.SignName = sign
	}
	settings.UpdatedAt = s.now()
	settings.UpdatedBy = updatedBy
	return settings
}
