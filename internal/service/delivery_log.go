package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"smscode/backend/internal/domain"
	"smscode/backend/internal/storage"
)

// 分页参数
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// DeliveryLogService 短信发送记录（只追加）
type DeliveryLogService struct {
	repo storage.DeliveryLogRepository
	now  func() time.Time
}

// NewDeliveryLogService 创建发送记录服务
func NewDeliveryLogService(repo storage.DeliveryLogRepository) *DeliveryLogService {
	return &DeliveryLogService{repo: repo, now: time.Now}
}

// Record 追加一条发送记录，ID 与创建时间为空时自动填充
func (s *DeliveryLogService) Record(ctx context.Context, entry *domain.DeliveryLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if err := s.repo.SaveDeliveryLog(ctx, entry); err != nil {
		return fmt.Errorf("save delivery log: %w", err)
	}
	return nil
}

// Query 分页查询，按创建时间倒序
func (s *DeliveryLogService) Query(ctx context.Context, phone string, page, pageSize int) ([]domain.DeliveryLog, int64, error) {
	page, pageSize = NormalizePage(page, pageSize)

	items, total, err := s.repo.ListDeliveryLogs(ctx, storage.DeliveryLogFilter{
		Phone:    strings.TrimSpace(phone),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list delivery logs: %w", err)
	}
	if items == nil {
		items = []domain.DeliveryLog{}
	}
	return items, total, nil
}

// StatsSince 统计 since 之后的发送结果
func (s *DeliveryLogService) StatsSince(ctx context.Context, since time.Time) (*domain.DeliveryStats, error) {
	stats, err := s.repo.DeliveryStatsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("delivery stats: %w", err)
	}
	return stats, nil
}

// NormalizePage 页码从 1 开始，每页条数限制在 [1, MaxPageSize]
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
