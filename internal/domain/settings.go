package domain

import "time"

// DefaultSignName 默认短信签名
const DefaultSignName = "系统"

// CodePlaceholder 模板中的验证码占位符
const CodePlaceholder = "{code}"

// SMSSettings 短信运行时配置（管理后台可修改）
type SMSSettings struct {
	ID        string             `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Enabled   bool               `json:"enabled"`
	SignName  string             `json:"signName" gorm:"type:varchar(64)"`
	Templates map[Purpose]string `json:"templates" gorm:"serializer:json;type:text"`
	UpdatedAt time.Time          `json:"updatedAt"`
	UpdatedBy string             `json:"updatedBy" gorm:"type:varchar(64)"`
}

// TableName 指定表名
func (SMSSettings) TableName() string { return "sms_settings" }

// SettingsID 运行时配置只有一行
const SettingsID = "sms"

// Clone 返回深拷贝，避免调用方修改共享的模板表
func (s *SMSSettings) Clone() *SMSSettings {
	out := *s
	out.Templates = make(map[Purpose]string, len(s.Templates))
	for k, v := range s.Templates {
		out.Templates[k] = v
	}
	return &out
}

// DefaultSMSSettings 返回默认运行时配置
func DefaultSMSSettings() *SMSSettings {
	return &SMSSettings{
		ID:        SettingsID,
		Enabled:   true,
		SignName:  DefaultSignName,
		Templates: map[Purpose]string{},
		UpdatedAt: time.Now(),
	}
}
