package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"smscode/backend/internal/domain"
	"smscode/backend/internal/storage"
)

// Store 使用内存保存验证码、发送记录与运行时配置，主要用于开发验证。
type Store struct {
	mu       sync.RWMutex
	codes    map[string]*domain.VerificationCode // codeID -> code
	byPhone  map[string][]string                 // phone -> codeID（按写入顺序）
	logs     []*domain.DeliveryLog
	settings *domain.SMSSettings

	// 手机号维度的发送锁，引用计数归零后回收
	locksMu   sync.Mutex
	sendLocks map[string]*sendLock
}

type sendLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		codes:     make(map[string]*domain.VerificationCode),
		byPhone:   make(map[string][]string),
		logs:      make([]*domain.DeliveryLog, 0),
		sendLocks: make(map[string]*sendLock),
	}
}

var _ storage.Store = (*Store)(nil)

// SaveCode 保存验证码，ID 已存在时覆盖。
func (s *Store) SaveCode(_ context.Context, code *domain.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *code
	if _, exists := s.codes[code.ID]; !exists {
		s.byPhone[code.Phone] = append(s.byPhone[code.Phone], code.ID)
	}
	s.codes[code.ID] = &cp
	return nil
}

// LatestCodeCreatedAt 返回 (phone, purpose) 最近一条验证码的创建时间。
func (s *Store) LatestCodeCreatedAt(_ context.Context, phone string, purpose domain.Purpose) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	found := false
	for _, id := range s.byPhone[phone] {
		c := s.codes[id]
		if c.Purpose != purpose {
			continue
		}
		if !found || c.CreatedAt.After(latest) {
			latest = c.CreatedAt
			found = true
		}
	}
	return latest, found, nil
}

// CountCodesSince 统计手机号自 since 起创建的验证码数量。
func (s *Store) CountCodesSince(_ context.Context, phone string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, id := range s.byPhone[phone] {
		if !s.codes[id].CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// FindPendingCode 查找最新的待使用验证码。
func (s *Store) FindPendingCode(_ context.Context, phone string, purpose domain.Purpose, code string, now time.Time) (*domain.VerificationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match *domain.VerificationCode
	for _, id := range s.byPhone[phone] {
		c := s.codes[id]
		if c.Purpose != purpose || c.Code != code || !c.Pending(now) {
			continue
		}
		if match == nil || c.CreatedAt.After(match.CreatedAt) {
			match = c
		}
	}
	if match == nil {
		return nil, storage.ErrCodeNotFound
	}
	cp := *match
	return &cp, nil
}

// MarkCodeUsed 条件更新：仅 pending 状态可变为 used。
func (s *Store) MarkCodeUsed(_ context.Context, id string, usedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[id]
	if !ok || c.Status != domain.CodeStatusPending {
		return false, nil
	}
	c.Status = domain.CodeStatusUsed
	c.UsedAt = &usedAt
	return true, nil
}

// ExpirePendingCodes 批量过期，返回受影响的数量。
func (s *Store) ExpirePendingCodes(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, c := range s.codes {
		if c.Status == domain.CodeStatusPending && !c.ExpiresAt.After(now) {
			c.Status = domain.CodeStatusExpired
			count++
		}
	}
	return count, nil
}

// WithSendLock 持有手机号互斥锁执行 fn。
func (s *Store) WithSendLock(ctx context.Context, phone string, fn func(repo storage.CodeRepository) error) error {
	lock := s.acquireSendLock(phone)
	defer s.releaseSendLock(phone, lock)

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s)
}

func (s *Store) acquireSendLock(phone string) *sendLock {
	s.locksMu.Lock()
	lock, ok := s.sendLocks[phone]
	if !ok {
		lock = &sendLock{}
		s.sendLocks[phone] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	lock.mu.Lock()
	return lock
}

func (s *Store) releaseSendLock(phone string, lock *sendLock) {
	lock.mu.Unlock()

	s.locksMu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.sendLocks, phone)
	}
	s.locksMu.Unlock()
}

// SaveDeliveryLog 追加发送记录。
func (s *Store) SaveDeliveryLog(_ context.Context, entry *domain.DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.logs = append(s.logs, &cp)
	return nil
}

// ListDeliveryLogs 按创建时间倒序分页。
func (s *Store) ListDeliveryLogs(_ context.Context, filter storage.DeliveryLogFilter) ([]domain.DeliveryLog, int64, error) {
	s.mu.RLock()
	matched := make([]domain.DeliveryLog, 0)
	for _, entry := range s.logs {
		if filter.Phone != "" && entry.Phone != filter.Phone {
			continue
		}
		matched = append(matched, *entry)
	}
	s.mu.RUnlock()

	// 同一时刻写入的记录保持后写在前
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = len(matched)
	}

	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []domain.DeliveryLog{}, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// DeliveryStatsSince 统计 since 之后的发送结果。
func (s *Store) DeliveryStatsSince(_ context.Context, since time.Time) (*domain.DeliveryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.DeliveryStats{}
	for _, entry := range s.logs {
		if entry.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		if entry.Success {
			stats.Success++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}

// GetSMSSettings 获取运行时配置。
func (s *Store) GetSMSSettings(_ context.Context) (*domain.SMSSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, storage.ErrSettingsNotFound
	}
	return s.settings.Clone(), nil
}

// SaveSMSSettings 保存运行时配置。
func (s *Store) SaveSMSSettings(_ context.Context, settings *domain.SMSSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings.Clone()
	return nil
}

// Health 内存存储始终可用。
func (s *Store) Health(context.Context) error { return nil }

// Close 内存存储无需释放资源。
func (s *Store) Close() error { return nil }
