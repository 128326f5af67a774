package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/qs3c/quota_relay/config"
	"github.com/qs3c/quota_relay/internal/model"
	"github.com/qs3c/quota_relay/internal/model/dto"
	"github.com/qs3c/quota_relay/internal/pkg/clock"
	"github.com/qs3c/quota_relay/internal/pkg/metrics"
	"github.com/qs3c/quota_relay/internal/repository"
)

type DecisionOutcome string

const (
	DecisionAllow DecisionOutcome = "allow"
	DecisionBlock DecisionOutcome = "block"
)

// Decision 一次计数命令的准入结果
type Decision struct {
	Outcome   DecisionOutcome
	Remaining int
	Limit     int
	IsNewUser bool
	LastOne   bool      // 放行后额度恰好用完，仅用于提示文案
	ResetAt   time.Time // 下一个民用日零点
}

func (d *Decision) Allowed() bool {
	return d.Outcome == DecisionAllow
}

type QuotaService struct {
	accountRepo        *repository.AccountRepository
	entitlementService *EntitlementService
	clock              clock.Clock
	cfg                *config.Config
	log                zerolog.Logger
}

func NewQuotaService(
	accountRepo *repository.AccountRepository,
	entitlementService *EntitlementService,
	clk clock.Clock,
	cfg *config.Config,
	log zerolog.Logger,
) *QuotaService {
	return &QuotaService{
		accountRepo:        accountRepo,
		entitlementService: entitlementService,
		clock:              clk,
		cfg:                cfg,
		log:                log.With().Str("component", "quota").Logger(),
	}
}

// LimitFor 新用户额度要求标志位仍在且今天就是注册日
func (s *QuotaService) LimitFor(account *model.Account, today string) int {
	if account.IsNewUser && account.RegistrationDate == today {
		return s.cfg.Quota.NewUserLimit
	}
	return s.cfg.Quota.DailyLimit
}

// ResetIfNewDay 跨日后首次访问时清零计数
func (s *QuotaService) ResetIfNewDay(ctx context.Context, userID int64) error {
	return s.resetIfNewDay(ctx, userID, clock.Today(s.clock))
}

func (s *QuotaService) resetIfNewDay(ctx context.Context, userID int64, today string) error {
	reset, err := s.accountRepo.ResetIfNewDay(ctx, userID, today)
	if err != nil {
		return storageError("quota.reset", err)
	}
	if reset {
		s.log.Debug().Int64("user_id", userID).Msg("daily counter reset")
	}
	return nil
}

// Admit 对计数命令做准入判断：跨日重置、计算上限、条件自增。
// 自增是一条带条件的 UPDATE，同一用户的并发命令不会越过上限
func (s *QuotaService) Admit(ctx context.Context, userID int64) (*Decision, error) {
	const maxAttempts = 2

	var (
		account *model.Account
		limit   int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		today := clock.Today(s.clock)

		if err := s.resetIfNewDay(ctx, userID, today); err != nil {
			metrics.AdmissionsTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		var err error
		account, err = s.accountRepo.GetByUserID(ctx, userID)
		if err != nil {
			metrics.AdmissionsTotal.WithLabelValues("error").Inc()
			return nil, lookupError("quota.load", err)
		}
		limit = s.LimitFor(account, today)

		used, admitted, err := s.accountRepo.AdmitIfUnderLimit(ctx, userID, today, limit)
		if err != nil {
			metrics.AdmissionsTotal.WithLabelValues("error").Inc()
			return nil, storageError("quota.admit", err)
		}
		if admitted {
			return s.allow(account, used, limit), nil
		}

		// 自增未命中：要么额度用完，要么期间跨过了零点
		if clock.Today(s.clock) == today && account.LastResetDate == today {
			break
		}
	}

	metrics.AdmissionsTotal.WithLabelValues(string(DecisionBlock)).Inc()
	s.log.Info().Int64("user_id", userID).Int("limit", limit).Msg("command blocked")

	return &Decision{
		Outcome:   DecisionBlock,
		Limit:     limit,
		IsNewUser: account.IsNewUser,
		ResetAt:   clock.NextMidnight(s.clock),
	}, nil
}

func (s *QuotaService) allow(account *model.Account, used, limit int) *Decision {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	metrics.AdmissionsTotal.WithLabelValues(string(DecisionAllow)).Inc()

	return &Decision{
		Outcome:   DecisionAllow,
		Remaining: remaining,
		Limit:     limit,
		IsNewUser: account.IsNewUser,
		LastOne:   remaining == 0,
		ResetAt:   clock.NextMidnight(s.clock),
	}
}

// GetQuotaInfo 获取用户额度信息
func (s *QuotaService) GetQuotaInfo(ctx context.Context, userID int64) (*dto.QuotaInfo, error) {
	if err := s.ResetIfNewDay(ctx, userID); err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, lookupError("quota.load", err)
	}

	active, err := s.entitlementService.IsActive(ctx, account)
	if err != nil {
		return nil, err
	}

	limit := s.LimitFor(account, clock.Today(s.clock))
	dailyRemain := limit - account.MessageCount
	if dailyRemain < 0 {
		dailyRemain = 0
	}

	return &dto.QuotaInfo{
		UserID:        account.UserID,
		IsPremium:     active,
		Entitlement:   account.Entitlement,
		DailyLimit:    limit,
		DailyUsed:     account.MessageCount,
		DailyRemain:   dailyRemain,
		IsNewUser:     account.IsNewUser,
		ResetAt:       clock.NextMidnight(s.clock).Format(time.RFC3339),
		TotalCommands: account.TotalCommands,
	}, nil
}
