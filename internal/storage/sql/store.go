package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"smscode/backend/internal/config"
	"smscode/backend/internal/domain"
	"smscode/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
	log        *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建SQL数据库存储并执行迁移
func NewStore(cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	store, err := Open(cfg, log)
	if err != nil {
		return nil, err
	}

	// 自动执行数据库迁移
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Open 连接数据库但不执行迁移，迁移命令使用
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	// 验证驱动类型
	if cfg.Type != "mysql" && cfg.Type != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", cfg.Type)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	// 打开数据库连接
	db, err := sql.Open(cfg.Type, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 测试连接
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := newStoreFromDB(cfg.Type, db, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info("connected to database",
		zap.String("driver", cfg.Type),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return store, nil
}

// newStoreFromDB 在已打开的连接上初始化 GORM
func newStoreFromDB(driverName string, db *sql.DB, log *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driverName {
	case "mysql":
		dialector = mysql.New(mysql.Config{Conn: db})
	case "postgres":
		dialector = postgres.New(postgres.Config{Conn: db})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// 单条写入无需额外事务，发送锁显式开启事务
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	return &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
		log:        log,
	}, nil
}

// withTx 返回绑定到事务的存储
func (s *Store) withTx(tx *gorm.DB) *Store {
	return &Store{db: s.db, gormDB: tx, driverName: s.driverName, log: s.log}
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.PingContext(ctx)
}

// Migrate 执行数据库迁移（使用GORM AutoMigrate）
func (s *Store) Migrate() error {
	return s.gormDB.AutoMigrate(Models()...)
}

// DropAll 删除全部表
func (s *Store) DropAll() error {
	return s.gormDB.Migrator().DropTable(Models()...)
}

// PendingTables 返回尚未创建的表名
func (s *Store) PendingTables() ([]string, error) {
	var pending []string
	for _, model := range Models() {
		stmt := &gorm.Statement{DB: s.gormDB}
		if err := stmt.Parse(model); err != nil {
			return nil, fmt.Errorf("parse model: %w", err)
		}
		if !s.gormDB.Migrator().HasTable(model) {
			pending = append(pending, stmt.Schema.Table)
		}
	}
	return pending, nil
}

// Models 返回需要迁移的全部表模型
func Models() []interface{} {
	return []interface{}{
		&domain.VerificationCode{},
		&domain.DeliveryLog{},
		&domain.SendGuard{},
		&domain.SMSSettings{},
	}
}

// ========== 验证码 ==========

// SaveCode 写入验证码
func (s *Store) SaveCode(ctx context.Context, code *domain.VerificationCode) error {
	return s.gormDB.WithContext(ctx).Create(code).Error
}

// LatestCodeCreatedAt 查询 (phone, purpose) 最近一条验证码的创建时间
func (s *Store) LatestCodeCreatedAt(ctx context.Context, phone string, purpose domain.Purpose) (time.Time, bool, error) {
	var code domain.VerificationCode
	err := s.gormDB.WithContext(ctx).
		Select("created_at").
		Where("phone = ? AND purpose = ?", phone, purpose).
		Order("created_at DESC").
		Take(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return code.CreatedAt, true, nil
}

// CountCodesSince 统计手机号自 since 起创建的验证码数量
func (s *Store) CountCodesSince(ctx context.Context, phone string, since time.Time) (int64, error) {
	var count int64
	err := s.gormDB.WithContext(ctx).
		Model(&domain.VerificationCode{}).
		Where("phone = ? AND created_at >= ?", phone, since).
		Count(&count).Error
	return count, err
}

// FindPendingCode 查找最新的待使用验证码
func (s *Store) FindPendingCode(ctx context.Context, phone string, purpose domain.Purpose, code string, now time.Time) (*domain.VerificationCode, error) {
	var found domain.VerificationCode
	err := s.gormDB.WithContext(ctx).
		Where("phone = ? AND purpose = ? AND code = ? AND status = ? AND expires_at > ?",
			phone, purpose, code, domain.CodeStatusPending, now).
		Order("created_at DESC").
		Take(&found).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrCodeNotFound
		}
		return nil, err
	}
	return &found, nil
}

// MarkCodeUsed 条件更新，并发校验时只有一个请求能把 pending 改为 used
func (s *Store) MarkCodeUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	result := s.gormDB.WithContext(ctx).
		Model(&domain.VerificationCode{}).
		Where("id = ? AND status = ?", id, domain.CodeStatusPending).
		Updates(map[string]interface{}{
			"status":  domain.CodeStatusUsed,
			"used_at": usedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ExpirePendingCodes 批量过期
func (s *Store) ExpirePendingCodes(ctx context.Context, now time.Time) (int64, error) {
	result := s.gormDB.WithContext(ctx).
		Model(&domain.VerificationCode{}).
		Where("status = ? AND expires_at <= ?", domain.CodeStatusPending, now).
		Update("status", domain.CodeStatusExpired)
	return result.RowsAffected, result.Error
}

// WithSendLock 在事务内锁定手机号对应的占位行后执行 fn
func (s *Store) WithSendLock(ctx context.Context, phone string, fn func(repo storage.CodeRepository) error) error {
	return s.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guard := domain.SendGuard{Phone: phone, UpdatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&guard).Error; err != nil {
			return fmt.Errorf("failed to ensure send guard: %w", err)
		}

		var locked domain.SendGuard
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("phone = ?", phone).
			Take(&locked).Error; err != nil {
			return fmt.Errorf("failed to lock send guard: %w", err)
		}

		return fn(s.withTx(tx))
	})
}

// ========== 发送记录 ==========

// SaveDeliveryLog 追加发送记录
func (s *Store) SaveDeliveryLog(ctx context.Context, entry *domain.DeliveryLog) error {
	return s.gormDB.WithContext(ctx).Create(entry).Error
}

// ListDeliveryLogs 按创建时间倒序分页查询
func (s *Store) ListDeliveryLogs(ctx context.Context, filter storage.DeliveryLogFilter) ([]domain.DeliveryLog, int64, error) {
	query := s.gormDB.WithContext(ctx).Model(&domain.DeliveryLog{})
	if filter.Phone != "" {
		query = query.Where("phone = ?", filter.Phone)
	}

	// 获取总数
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	// 分页查询
	var items []domain.DeliveryLog
	offset := (page - 1) * pageSize
	err := query.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&items).Error

	return items, total, err
}

// DeliveryStatsSince 统计 since 之后的发送结果
func (s *Store) DeliveryStatsSince(ctx context.Context, since time.Time) (*domain.DeliveryStats, error) {
	var row struct {
		Total   int64
		Success int64
	}
	err := s.gormDB.WithContext(ctx).
		Model(&domain.DeliveryLog{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN success = ? THEN 1 ELSE 0 END), 0) AS success", true).
		Where("created_at >= ?", since).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	return &domain.DeliveryStats{
		Total:   row.Total,
		Success: row.Success,
		Failed:  row.Total - row.Success,
	}, nil
}

// ========== 运行时配置 ==========

// GetSMSSettings 获取运行时配置
func (s *Store) GetSMSSettings(ctx context.Context) (*domain.SMSSettings, error) {
	var settings domain.SMSSettings
	err := s.gormDB.WithContext(ctx).Where("id = ?", domain.SettingsID).Take(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrSettingsNotFound
		}
		return nil, err
	}
	if settings.Templates == nil {
		settings.Templates = map[domain.Purpose]string{}
	}
	return &settings, nil
}

// SaveSMSSettings 保存运行时配置（存在则更新）
func (s *Store) SaveSMSSettings(ctx context.Context, settings *domain.SMSSettings) error {
	settings.ID = domain.SettingsID
	return s.gormDB.WithContext(ctx).Save(settings).Error
}
