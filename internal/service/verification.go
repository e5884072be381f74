package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smscode/backend/internal/config"
	"smscode/backend/internal/domain"
	"smscode/backend/internal/monitoring"
	"smscode/backend/internal/sms"
	"smscode/backend/internal/storage"
)

const (
	// BypassCode 短信功能关闭时可直接通过校验的固定验证码
	BypassCode = "123456"

	DefaultCodeTTL         = 5 * time.Minute
	DefaultProviderTimeout = 5 * time.Second
)

// VerificationService 验证码发送与校验
type VerificationService struct {
	codes       storage.CodeRepository
	limiter     *RateLimiter
	generator   Generator
	renderer    *TemplateRenderer
	provider    sms.Provider
	deliveryLog *DeliveryLogService
	settings    SettingsProvider
	metrics     *monitoring.Metrics
	log         *zap.Logger

	codeTTL         time.Duration
	providerTimeout time.Duration
	now             func() time.Time
}

// NewVerificationService 创建验证码服务。metrics 可为 nil。
func NewVerificationService(
	store storage.Store,
	provider sms.Provider,
	settings SettingsProvider,
	cfg config.SMSConfig,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *VerificationService {
	codeTTL := cfg.CodeTTL
	if codeTTL <= 0 {
		codeTTL = DefaultCodeTTL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}

	return &VerificationService{
		codes:           store,
		limiter:         NewRateLimiter(store, cfg.ResendInterval, cfg.DailyLimit),
		generator:       NewCodeGenerator(),
		renderer:        NewTemplateRenderer(settings, cfg.Templates),
		provider:        provider,
		deliveryLog:     NewDeliveryLogService(store),
		settings:        settings,
		metrics:         metrics,
		log:             log,
		codeTTL:         codeTTL,
		providerTimeout: timeout,
		now:             time.Now,
	}
}

// SendInput 发送验证码输入
type SendInput struct {
	Phone   string
	Purpose domain.Purpose
	IP      string
}

// SendResult 发送结果
type SendResult struct {
	ExpiresAt time.Time `json:"expiresAt"`
	Simulated bool      `json:"simulated"` // 短信功能关闭，未实际发送
}

// Send 生成并发送验证码
//
// 短信功能关闭时只生成并保存验证码，不限流、不发送、不写发送记录。
// 开启时在手机号发送锁内完成限流检查与写入，随后在锁外调用短信通道。
func (s *VerificationService) Send(ctx context.Context, input SendInput) (*SendResult, error) {
	phone, err := domain.NormalizePhone(input.Phone)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	if !input.Purpose.Valid() {
		return nil, ErrInvalidPurpose
	}
	purpose := string(input.Purpose)

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	if !settings.Enabled {
		code := s.newCode(phone, input.Purpose, input.IP, s.now())
		if err := s.codes.SaveCode(ctx, code); err != nil {
			return nil, fmt.Errorf("save verification code: %w", err)
		}
		s.metrics.RecordSend(purpose, monitoring.SendResultSimulated)
		return &SendResult{ExpiresAt: code.ExpiresAt, Simulated: true}, nil
	}

	var issued *domain.VerificationCode
	err = s.codes.WithSendLock(ctx, phone, func(repo storage.CodeRepository) error {
		now := s.now()
		if err := s.limiter.Bind(repo).CheckAllowed(ctx, phone, input.Purpose, now); err != nil {
			return err
		}
		issued = s.newCode(phone, input.Purpose, input.IP, now)
		return repo.SaveCode(ctx, issued)
	})
	if err != nil {
		var limitErr *LimitError
		if errors.As(err, &limitErr) {
			result := monitoring.SendResultRateLimited
			if limitErr.Reason == ReasonDailyCap {
				result = monitoring.SendResultDailyCap
			}
			s.metrics.RecordSend(purpose, result)
			return nil, limitErr
		}
		return nil, fmt.Errorf("issue verification code: %w", err)
	}

	// 使用本次请求开头读取的配置快照，签发后不再有失败分支
	content := s.renderer.RenderWith(settings, input.Purpose, issued.Code)

	result := s.dispatch(ctx, phone, content, issued.Code)

	entry := &domain.DeliveryLog{
		Phone:             phone,
		Purpose:           input.Purpose,
		Content:           content,
		Provider:          s.provider.Name(),
		ProviderMessageID: result.MessageID,
		Success:           result.Success,
		ErrorMessage:      result.ErrorMessage,
		RequestIP:         input.IP,
		CreatedAt:         s.now(),
	}
	// 调用方断开也要留下发送记录
	if err := s.deliveryLog.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Error("failed to record sms delivery",
			zap.String("phone", phone),
			zap.String("purpose", purpose),
			zap.Error(err),
		)
	}

	if !result.Success {
		s.log.Warn("sms dispatch failed",
			zap.String("phone", phone),
			zap.String("purpose", purpose),
			zap.String("provider", s.provider.Name()),
			zap.String("failure", string(result.Failure)),
			zap.String("error", result.ErrorMessage),
		)
		if result.Failure == sms.FailureConfig {
			s.metrics.RecordSend(purpose, monitoring.SendResultConfigMissing)
			return nil, ErrProviderConfigMissing
		}
		s.metrics.RecordSend(purpose, monitoring.SendResultDispatchFailed)
		return nil, ErrDispatchFailed
	}

	s.metrics.RecordSend(purpose, monitoring.SendResultSent)
	s.log.Info("verification code sent",
		zap.String("phone", phone),
		zap.String("purpose", purpose),
		zap.String("provider", s.provider.Name()),
		zap.String("message_id", result.MessageID),
	)
	return &SendResult{ExpiresAt: issued.ExpiresAt}, nil
}

// dispatch 调用短信通道，超时独立于请求上下文之外的剩余时间
func (s *VerificationService) dispatch(ctx context.Context, phone, content, code string) sms.DeliveryResult {
	dispatchCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	start := time.Now()
	result := s.provider.Send(dispatchCtx, phone, content, code)

	outcome := "success"
	if !result.Success {
		outcome = string(result.Failure)
	}
	s.metrics.RecordProviderRequest(s.provider.Name(), outcome, time.Since(start))
	return result
}

// VerifyInput 校验验证码输入
type VerifyInput struct {
	Phone   string
	Purpose domain.Purpose
	Code    string
}

// Verify 校验验证码，成功后验证码变为已使用
func (s *VerificationService) Verify(ctx context.Context, input VerifyInput) error {
	phone, err := domain.NormalizePhone(input.Phone)
	if err != nil {
		return ErrInvalidPhone
	}
	if !input.Purpose.Valid() {
		return ErrInvalidPurpose
	}
	purpose := string(input.Purpose)

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return err
	}
	if !settings.Enabled && input.Code == BypassCode {
		s.metrics.RecordVerify(purpose, monitoring.VerifyResultBypass)
		return nil
	}

	if !domain.ValidateCode(input.Code) {
		s.metrics.RecordVerify(purpose, monitoring.VerifyResultInvalid)
		return ErrCodeInvalidOrExpired
	}

	now := s.now()
	code, err := s.codes.FindPendingCode(ctx, phone, input.Purpose, input.Code, now)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) {
			s.metrics.RecordVerify(purpose, monitoring.VerifyResultInvalid)
			return ErrCodeInvalidOrExpired
		}
		return fmt.Errorf("find verification code: %w", err)
	}

	// 并发校验同一验证码时只有一个请求能完成状态变更
	ok, err := s.codes.MarkCodeUsed(ctx, code.ID, now)
	if err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	if !ok {
		s.metrics.RecordVerify(purpose, monitoring.VerifyResultInvalid)
		return ErrCodeInvalidOrExpired
	}

	s.metrics.RecordVerify(purpose, monitoring.VerifyResultSuccess)
	return nil
}

// CleanExpired 将过期的待使用验证码批量置为已过期，返回数量
func (s *VerificationService) CleanExpired(ctx context.Context) (int64, error) {
	count, err := s.codes.ExpirePendingCodes(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire pending codes: %w", err)
	}
	s.metrics.RecordExpired(count)
	if count > 0 {
		s.log.Info("expired verification codes cleaned", zap.Int64("count", count))
	}
	return count, nil
}

// Logs 分页查询发送记录
func (s *VerificationService) Logs(ctx context.Context, phone string, page, pageSize int) ([]domain.DeliveryLog, int64, error) {
	return s.deliveryLog.Query(ctx, phone, page, pageSize)
}

// Stats 今日（本地零点起）发送统计
func (s *VerificationService) Stats(ctx context.Context) (*domain.DeliveryStats, error) {
	return s.deliveryLog.StatsSince(ctx, startOfDay(s.now()))
}

func (s *VerificationService) newCode(phone string, purpose domain.Purpose, ip string, now time.Time) *domain.VerificationCode {
	return &domain.VerificationCode{
		ID:        uuid.New().String(),
		Phone:     phone,
		Purpose:   purpose,
		Code:      s.generator.Generate(),
		Status:    domain.CodeStatusPending,
		ExpiresAt: now.Add(s.codeTTL),
		RequestIP: ip,
		CreatedAt: now,
	}
}
