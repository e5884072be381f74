package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smscode/backend/internal/domain"
	"smscode/backend/internal/storage"
)

func newCode(id, phone string, purpose domain.Purpose, code string, createdAt time.Time) *domain.VerificationCode {
	return &domain.VerificationCode{
		ID:        id,
		Phone:     phone,
		Purpose:   purpose,
		Code:      code,
		Status:    domain.CodeStatusPending,
		ExpiresAt: createdAt.Add(5 * time.Minute),
		CreatedAt: createdAt,
	}
}

func TestMemoryStore_CodeOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now()

	require.NoError(t, store.SaveCode(ctx, newCode("c1", "13800138000", domain.PurposeLogin, "111111", now.Add(-2*time.Minute))))
	require.NoError(t, store.SaveCode(ctx, newCode("c2", "13800138000", domain.PurposeLogin, "222222", now.Add(-time.Minute))))
	require.NoError(t, store.SaveCode(ctx, newCode("c3", "13800138000", domain.PurposeRegister, "333333", now)))

	t.Run("最近创建时间按用途区分", func(t *testing.T) {
		latest, ok, err := store.LatestCodeCreatedAt(ctx, "13800138000", domain.PurposeLogin)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, latest.Equal(now.Add(-time.Minute)))

		_, ok, err = store.LatestCodeCreatedAt(ctx, "13800138000", domain.PurposeWithdraw)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("按手机号统计全部用途", func(t *testing.T) {
		count, err := store.CountCodesSince(ctx, "13800138000", now.Add(-90*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		count, err = store.CountCodesSince(ctx, "13900139000", now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("查找待使用验证码", func(t *testing.T) {
		found, err := store.FindPendingCode(ctx, "13800138000", domain.PurposeLogin, "111111", now)
		require.NoError(t, err)
		assert.Equal(t, "c1", found.ID)

		_, err = store.FindPendingCode(ctx, "13800138000", domain.PurposeRegister, "111111", now)
		assert.ErrorIs(t, err, storage.ErrCodeNotFound)

		_, err = store.FindPendingCode(ctx, "13800138000", domain.PurposeLogin, "111111", now.Add(10*time.Minute))
		assert.ErrorIs(t, err, storage.ErrCodeNotFound)
	})

	t.Run("条件更新只成功一次", func(t *testing.T) {
		ok, err := store.MarkCodeUsed(ctx, "c2", now)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.MarkCodeUsed(ctx, "c2", now)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.FindPendingCode(ctx, "13800138000", domain.PurposeLogin, "222222", now)
		assert.ErrorIs(t, err, storage.ErrCodeNotFound)

		ok, err = store.MarkCodeUsed(ctx, "missing", now)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryStore_ExpirePendingCodes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now()

	expired := newCode("old", "13800138000", domain.PurposeLogin, "111111", now.Add(-10*time.Minute))
	used := newCode("used", "13800138000", domain.PurposeLogin, "222222", now.Add(-10*time.Minute))
	used.Status = domain.CodeStatusUsed
	fresh := newCode("fresh", "13800138000", domain.PurposeLogin, "333333", now)

	for _, c := range []*domain.VerificationCode{expired, used, fresh} {
		require.NoError(t, store.SaveCode(ctx, c))
	}

	count, err := store.ExpirePendingCodes(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.Equal(t, domain.CodeStatusExpired, store.codes["old"].Status)
	assert.Equal(t, domain.CodeStatusUsed, store.codes["used"].Status)
	assert.Equal(t, domain.CodeStatusPending, store.codes["fresh"].Status)

	count, err = store.ExpirePendingCodes(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStore_WithSendLock(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithSendLock(ctx, "13800138000", func(repo storage.CodeRepository) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, store.sendLocks, "锁在无人持有后回收")

	t.Run("已取消的上下文不执行", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		called := false
		err := store.WithSendLock(cancelled, "13800138000", func(storage.CodeRepository) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}

func TestMemoryStore_DeliveryLogs(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveDeliveryLog(ctx, &domain.DeliveryLog{
			ID:        string(rune('a' + i)),
			Phone:     "13800138000",
			Provider:  "log",
			Success:   i%2 == 0,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.SaveDeliveryLog(ctx, &domain.DeliveryLog{
		ID: "other", Phone: "13900139000", Provider: "log", Success: true, CreatedAt: base,
	}))

	t.Run("倒序分页", func(t *testing.T) {
		items, total, err := store.ListDeliveryLogs(ctx, storage.DeliveryLogFilter{Phone: "13800138000", Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, items, 2)
		assert.Equal(t, "e", items[0].ID)
		assert.Equal(t, "d", items[1].ID)

		items, _, err = store.ListDeliveryLogs(ctx, storage.DeliveryLogFilter{Phone: "13800138000", Page: 3, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "a", items[0].ID)

		items, _, err = store.ListDeliveryLogs(ctx, storage.DeliveryLogFilter{Phone: "13800138000", Page: 4, PageSize: 2})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("不过滤手机号", func(t *testing.T) {
		_, total, err := store.ListDeliveryLogs(ctx, storage.DeliveryLogFilter{Page: 1, PageSize: 20})
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
	})

	t.Run("统计", func(t *testing.T) {
		stats, err := store.DeliveryStatsSince(ctx, base.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(4), stats.Total)
		assert.Equal(t, int64(2), stats.Success)
		assert.Equal(t, int64(2), stats.Failed)
	})
}

func TestMemoryStore_Settings(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.GetSMSSettings(ctx)
	assert.ErrorIs(t, err, storage.ErrSettingsNotFound)

	settings := domain.DefaultSMSSettings()
	settings.Templates[domain.PurposeLogin] = "登录{code}"
	require.NoError(t, store.SaveSMSSettings(ctx, settings))

	// 调用方修改不影响已保存的数据
	settings.Templates[domain.PurposeLogin] = "changed"

	got, err := store.GetSMSSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "登录{code}", got.Templates[domain.PurposeLogin])
	assert.True(t, got.Enabled)
}
