package domain

import "time"

// DeliveryLog 短信发送记录，无论成功失败都会追加写入
type DeliveryLog struct {
	ID                string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Phone             string    `json:"phone" gorm:"type:varchar(20);not null;index"`
	Purpose           Purpose   `json:"purpose" gorm:"type:varchar(32);not null"`
	Content           string    `json:"content" gorm:"type:text"`
	Provider          string    `json:"provider" gorm:"type:varchar(32);not null"`
	ProviderMessageID string    `json:"providerMessageId,omitempty" gorm:"type:varchar(128)"`
	Success           bool      `json:"success" gorm:"not null"`
	ErrorMessage      string    `json:"errorMessage,omitempty" gorm:"type:text"`
	RequestIP         string    `json:"requestIp,omitempty" gorm:"type:varchar(64)"`
	CreatedAt         time.Time `json:"createdAt" gorm:"not null;index"`
}

// TableName 指定表名
func (DeliveryLog) TableName() string { return "sms_delivery_logs" }

// DeliveryStats 发送统计
type DeliveryStats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}
