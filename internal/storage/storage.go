package storage

import (
	"context"
	"errors"
	"time"

	"smscode/backend/internal/domain"
)

var (
	// ErrCodeNotFound 没有匹配的待使用验证码
	ErrCodeNotFound = errors.New("verification code not found")
	// ErrSettingsNotFound 运行时配置尚未写入
	ErrSettingsNotFound = errors.New("sms settings not found")
)

// CodeReader 限流检查所需的只读查询。
type CodeReader interface {
	// LatestCodeCreatedAt 返回 (phone, purpose) 最近一条验证码的创建时间，不区分状态
	LatestCodeCreatedAt(ctx context.Context, phone string, purpose domain.Purpose) (time.Time, bool, error)
	// CountCodesSince 统计手机号自 since 起创建的验证码数量（全部用途）
	CountCodesSince(ctx context.Context, phone string, since time.Time) (int64, error)
}

// CodeRepository 定义验证码数据存取操作。
type CodeRepository interface {
	CodeReader

	SaveCode(ctx context.Context, code *domain.VerificationCode) error
	// FindPendingCode 查找最新的、未过期的待使用验证码
	FindPendingCode(ctx context.Context, phone string, purpose domain.Purpose, code string, now time.Time) (*domain.VerificationCode, error)
	// MarkCodeUsed 仅当验证码仍为 pending 时置为 used，返回是否发生了状态变更
	MarkCodeUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)
	// ExpirePendingCodes 将 expires_at <= now 的 pending 验证码批量置为 expired
	ExpirePendingCodes(ctx context.Context, now time.Time) (int64, error)

	// WithSendLock 在手机号维度的互斥区内执行 fn，fn 收到的仓库与锁处于同一工作单元。
	// fn 内不得再次调用 WithSendLock。
	WithSendLock(ctx context.Context, phone string, fn func(repo CodeRepository) error) error
}

// DeliveryLogFilter 发送记录查询条件
type DeliveryLogFilter struct {
	Phone    string // 为空表示不过滤
	Page     int
	PageSize int
}

// DeliveryLogRepository 定义发送记录数据存取操作。
type DeliveryLogRepository interface {
	SaveDeliveryLog(ctx context.Context, entry *domain.DeliveryLog) error
	// ListDeliveryLogs 按创建时间倒序分页查询，返回当前页与总数
	ListDeliveryLogs(ctx context.Context, filter DeliveryLogFilter) ([]domain.DeliveryLog, int64, error)
	DeliveryStatsSince(ctx context.Context, since time.Time) (*domain.DeliveryStats, error)
}

// SettingsRepository 定义短信运行时配置存取操作。
type SettingsRepository interface {
	GetSMSSettings(ctx context.Context) (*domain.SMSSettings, error)
	SaveSMSSettings(ctx context.Context, settings *domain.SMSSettings) error
}

// Store 聚合所有存储接口。
type Store interface {
	CodeRepository
	DeliveryLogRepository
	SettingsRepository

	Health(ctx context.Context) error
	Close() error
}
