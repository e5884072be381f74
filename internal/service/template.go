package service

import (
	"context"
	"strings"

	"smscode/backend/internal/domain"
)

// DefaultTemplate 未配置用途模板时使用的通用模板
const DefaultTemplate = "您的验证码是{code}，5分钟内有效，请勿泄露给他人。"

// SettingsProvider 提供当前生效的短信运行时配置
type SettingsProvider interface {
	Current(ctx context.Context) (*domain.SMSSettings, error)
}

// TemplateRenderer 渲染短信正文
//
// 模板查找顺序：运行时配置 -> 静态配置 -> 通用模板。
// 正文以 【签名】 开头。
type TemplateRenderer struct {
	settings  SettingsProvider
	fallbacks map[domain.Purpose]string
}

// NewTemplateRenderer 创建模板渲染器，fallbacks 为静态配置中的用途模板
func NewTemplateRenderer(settings SettingsProvider, fallbacks map[string]string) *TemplateRenderer {
	tpl := make(map[domain.Purpose]string, len(fallbacks))
	for purpose, text := range fallbacks {
		if strings.Contains(text, domain.CodePlaceholder) {
			tpl[domain.Purpose(purpose)] = text
		}
	}
	return &TemplateRenderer{settings: settings, fallbacks: tpl}
}

// Render 返回最终发送的短信正文
func (r *TemplateRenderer) Render(ctx context.Context, purpose domain.Purpose, code string) (string, error) {
	settings, err := r.settings.Current(ctx)
	if err != nil {
		return "", err
	}
	return r.RenderWith(settings, purpose, code), nil
}

// RenderWith 使用已读取的配置快照渲染，不会失败
func (r *TemplateRenderer) RenderWith(settings *domain.SMSSettings, purpose domain.Purpose, code string) string {
	return renderWith(settings, r.fallbacks, purpose, code)
}

func renderWith(settings *domain.SMSSettings, fallbacks map[domain.Purpose]string, purpose domain.Purpose, code string) string {
	tpl := settings.Templates[purpose]
	if tpl == "" {
		tpl = fallbacks[purpose]
	}
	if tpl == "" {
		tpl = DefaultTemplate
	}

	sign := strings.TrimSpace(settings.SignName)
	if sign == "" {
		sign = domain.DefaultSignName
	}

	return "【" + sign + "】" + strings.ReplaceAll(tpl, domain.CodePlaceholder, code)
}
