package domain

import "time"

// Purpose 验证码用途，不同用途的验证码互相独立
type Purpose string

const (
	PurposeRegister      Purpose = "register"       // 注册
	PurposeLogin         Purpose = "login"          // 登录
	PurposeResetPassword Purpose = "reset_password" // 重置密码
	PurposeBindPhone     Purpose = "bind_phone"     // 绑定手机
	PurposeWithdraw      Purpose = "withdraw"       // 提现
	PurposeChangePhone   Purpose = "change_phone"   // 更换手机
	PurposeIdentity      Purpose = "identity"       // 身份验证
)

// AllPurposes 返回全部用途
func AllPurposes() []Purpose {
	return []Purpose{
		PurposeRegister,
		PurposeLogin,
		PurposeResetPassword,
		PurposeBindPhone,
		PurposeWithdraw,
		PurposeChangePhone,
		PurposeIdentity,
	}
}

// Valid 判断用途是否受支持
func (p Purpose) Valid() bool {
	for _, known := range AllPurposes() {
		if p == known {
			return true
		}
	}
	return false
}

// CodeStatus 验证码状态
type CodeStatus string

const (
	CodeStatusPending CodeStatus = "pending" // 待使用
	CodeStatusUsed    CodeStatus = "used"    // 已使用（终态）
	CodeStatusExpired CodeStatus = "expired" // 已过期（终态，仅由清理任务写入）
)

// VerificationCode 已下发的短信验证码，记录保留用于审计，不做物理删除
type VerificationCode struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Phone     string     `json:"phone" gorm:"type:varchar(20);not null;index:idx_sms_code_lookup,priority:1;index:idx_sms_code_daily,priority:1"`
	Purpose   Purpose    `json:"purpose" gorm:"type:varchar(32);not null;index:idx_sms_code_lookup,priority:2"`
	Code      string     `json:"-" gorm:"type:varchar(6);not null"`
	Status    CodeStatus `json:"status" gorm:"type:varchar(16);not null;default:pending;index:idx_sms_code_sweep,priority:1"`
	ExpiresAt time.Time  `json:"expiresAt" gorm:"not null;index:idx_sms_code_sweep,priority:2"`
	RequestIP string     `json:"requestIp,omitempty" gorm:"type:varchar(64)"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt" gorm:"not null;index:idx_sms_code_lookup,priority:3;index:idx_sms_code_daily,priority:2"`
}

// TableName 指定表名
func (VerificationCode) TableName() string { return "sms_verification_codes" }

// Pending 判断验证码在 now 时刻是否仍可用于校验
func (c *VerificationCode) Pending(now time.Time) bool {
	return c.Status == CodeStatusPending && c.ExpiresAt.After(now)
}

// SendGuard 按手机号加行锁的占位记录，保证限流检查与写入在同一事务内完成
type SendGuard struct {
	Phone     string    `gorm:"primaryKey;type:varchar(20)"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName 指定表名
func (SendGuard) TableName() string { return "sms_send_guards" }
