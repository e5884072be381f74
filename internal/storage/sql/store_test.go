package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smscode/backend/internal/config"
	"smscode/backend/internal/domain"
	"smscode/backend/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := newStoreFromDB("postgres", db, zap.NewNop())
	require.NoError(t, err)
	return store, mock
}

func TestNewStore_UnsupportedDriver(t *testing.T) {
	_, err := NewStore(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")

	_, err = NewStore(config.DatabaseConfig{Type: "postgres"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

func TestStore_MarkCodeUsed(t *testing.T) {
	ctx := context.Background()

	t.Run("pending 状态更新成功", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE "sms_verification_codes" SET .* WHERE id = \$\d+ AND status = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := store.MarkCodeUsed(ctx, "code-1", time.Now())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("已被其他请求使用", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE "sms_verification_codes" SET .* WHERE id = \$\d+ AND status = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := store.MarkCodeUsed(ctx, "code-1", time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_ExpirePendingCodes(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "sms_verification_codes" SET "status"=\$1 WHERE status = \$2 AND expires_at <= \$3`).
		WillReturnResult(sqlmock.NewResult(0, 7))

	count, err := store.ExpirePendingCodes(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindPendingCode_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "sms_verification_codes" WHERE phone = \$1 AND purpose = \$2 AND code = \$3 AND status = \$4 AND expires_at > \$5 ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "phone", "purpose", "code", "status", "expires_at", "created_at"}))

	_, err := store.FindPendingCode(context.Background(), "13800138000", domain.PurposeLogin, "123456", time.Now())
	assert.ErrorIs(t, err, storage.ErrCodeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestCodeCreatedAt(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	t.Run("存在记录", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT "created_at" FROM "sms_verification_codes" WHERE phone = \$1 AND purpose = \$2 ORDER BY created_at DESC LIMIT \$3`).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))

		latest, ok, err := store.LatestCodeCreatedAt(ctx, "13800138000", domain.PurposeLogin)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, latest.Equal(createdAt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("无记录", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT "created_at" FROM "sms_verification_codes" WHERE phone = \$1 AND purpose = \$2`).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

		_, ok, err := store.LatestCodeCreatedAt(ctx, "13800138000", domain.PurposeLogin)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_WithSendLock(t *testing.T) {
	ctx := context.Background()

	t.Run("事务内加锁并提交", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "sms_send_guards" .* ON CONFLICT DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT \* FROM "sms_send_guards" WHERE phone = \$1 .*FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"phone", "updated_at"}).AddRow("13800138000", time.Now()))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "sms_verification_codes" WHERE phone = \$1 AND created_at >= \$2`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectCommit()

		var count int64
		err := store.WithSendLock(ctx, "13800138000", func(repo storage.CodeRepository) error {
			var err error
			count, err = repo.CountCodesSince(ctx, "13800138000", time.Now().Add(-time.Hour))
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("回调出错时回滚", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "sms_send_guards"`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT \* FROM "sms_send_guards"`).
			WillReturnRows(sqlmock.NewRows([]string{"phone", "updated_at"}).AddRow("13800138000", time.Now()))
		mock.ExpectRollback()

		denied := errors.New("denied")
		err := store.WithSendLock(ctx, "13800138000", func(storage.CodeRepository) error {
			return denied
		})
		assert.ErrorIs(t, err, denied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_DeliveryStatsSince(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS total, .* AS success FROM "sms_delivery_logs" WHERE created_at >= `).
		WillReturnRows(sqlmock.NewRows([]string{"total", "success"}).AddRow(10, 7))

	stats, err := store.DeliveryStatsSince(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, &domain.DeliveryStats{Total: 10, Success: 7, Failed: 3}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetSMSSettings_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "sms_settings" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "enabled", "sign_name", "templates"}))

	_, err := store.GetSMSSettings(context.Background())
	assert.ErrorIs(t, err, storage.ErrSettingsNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
