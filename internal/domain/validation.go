package domain

import (
	"errors"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidPurpose  = errors.New("invalid purpose")
	ErrInvalidCode     = errors.New("invalid verification code format")
	ErrInvalidTemplate = errors.New("template must contain {code}")
)

// 验证常量
const (
	CodeLength        = 6   // 验证码位数
	MaxSignNameLength = 32  // 短信签名最大长度
	MaxTemplateLength = 300 // 单条模板最大长度
)

// 正则表达式
var (
	// 手机号：可选 "+" 前缀，6-15 位数字
	phoneRegex = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

	// 验证码：固定 6 位 ASCII 数字
	codeRegex = regexp.MustCompile(`^[0-9]{6}$`)
)

// NormalizePhone 去除首尾空白并校验手机号格式
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if !phoneRegex.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

// ValidatePhone 验证手机号格式
func ValidatePhone(phone string) bool {
	_, err := NormalizePhone(phone)
	return err == nil
}

// ValidateCode 验证码格式检查，不涉及存储
func ValidateCode(code string) bool {
	return codeRegex.MatchString(code)
}

// ParsePurpose 解析用途字符串
func ParsePurpose(value string) (Purpose, error) {
	p := Purpose(strings.TrimSpace(value))
	if !p.Valid() {
		return "", ErrInvalidPurpose
	}
	return p, nil
}

// ValidateTemplate 模板必须包含验证码占位符且长度合理
func ValidateTemplate(tpl string) error {
	if !strings.Contains(tpl, CodePlaceholder) {
		return ErrInvalidTemplate
	}
	if len([]rune(tpl)) > MaxTemplateLength {
		return ErrInvalidTemplate
	}
	return nil
}
