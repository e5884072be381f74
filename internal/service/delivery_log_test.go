package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smscode/backend/internal/domain"
	"smscode/backend/internal/storage/memory"
)

func TestDeliveryLogService(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local)

	newService := func(t *testing.T) *DeliveryLogService {
		svc := NewDeliveryLogService(memory.NewStore())
		for i := 0; i < 25; i++ {
			phone := "13800138000"
			if i%5 == 0 {
				phone = "13900139000"
			}
			require.NoError(t, svc.Record(ctx, &domain.DeliveryLog{
				Phone:     phone,
				Purpose:   domain.PurposeLogin,
				Provider:  "log",
				Success:   i%4 != 0,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}))
		}
		return svc
	}

	t.Run("自动填充ID与时间", func(t *testing.T) {
		svc := NewDeliveryLogService(memory.NewStore())
		svc.now = func() time.Time { return base }

		entry := &domain.DeliveryLog{Phone: "13800138000", Purpose: domain.PurposeLogin}
		require.NoError(t, svc.Record(ctx, entry))
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, base, entry.CreatedAt)
	})

	t.Run("默认分页按时间倒序", func(t *testing.T) {
		svc := newService(t)

		items, total, err := svc.Query(ctx, "", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(25), total)
		require.Len(t, items, DefaultPageSize)
		assert.Equal(t, base.Add(24*time.Minute), items[0].CreatedAt)
	})

	t.Run("第二页", func(t *testing.T) {
		svc := newService(t)

		items, _, err := svc.Query(ctx, "", 2, 20)
		require.NoError(t, err)
		require.Len(t, items, 5)
		assert.Equal(t, base.Add(4*time.Minute), items[0].CreatedAt)
	})

	t.Run("按手机号过滤", func(t *testing.T) {
		svc := newService(t)

		items, total, err := svc.Query(ctx, " 13900139000 ", 1, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, items, 5)
	})

	t.Run("超出范围返回空列表", func(t *testing.T) {
		svc := newService(t)

		items, total, err := svc.Query(ctx, "", 9, 20)
		require.NoError(t, err)
		assert.Equal(t, int64(25), total)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})

	t.Run("统计", func(t *testing.T) {
		svc := newService(t)

		stats, err := svc.StatsSince(ctx, base.Add(10*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(15), stats.Total)
		assert.Equal(t, stats.Total, stats.Success+stats.Failed)
		// 10..24 中能被 4 整除的: 12, 16, 20, 24
		assert.Equal(t, int64(4), stats.Failed)
	})
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name               string
		page, pageSize     int
		wantPage, wantSize int
	}{
		{"默认值", 0, 0, 1, DefaultPageSize},
		{"负数", -3, -1, 1, DefaultPageSize},
		{"超过上限", 2, 500, 2, MaxPageSize},
		{"正常", 3, 50, 3, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, size := NormalizePage(tt.page, tt.pageSize)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantSize, size)
		})
	}
}
