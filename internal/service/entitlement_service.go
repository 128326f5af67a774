package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/qs3c/quota_relay/internal/model"
	"github.com/qs3c/quota_relay/internal/pkg/clock"
	"github.com/qs3c/quota_relay/internal/pkg/metrics"
	"github.com/qs3c/quota_relay/internal/repository"
)

type EntitlementService struct {
	accountRepo *repository.AccountRepository
	clock       clock.Clock
	log         zerolog.Logger
}

func NewEntitlementService(accountRepo *repository.AccountRepository, clk clock.Clock, log zerolog.Logger) *EntitlementService {
	return &EntitlementService{
		accountRepo: accountRepo,
		clock:       clk,
		log:         log.With().Str("component", "entitlement").Logger(),
	}
}

// IsActive 判断会员是否有效，过期的会员在此时被惰性清除
func (s *EntitlementService) IsActive(ctx context.Context, account *model.Account) (bool, error) {
	if account.Entitlement == nil {
		return false, nil
	}

	now := s.clock.Now()
	if account.Entitlement.ActiveAt(now) {
		return true, nil
	}

	cleared, err := s.accountRepo.ClearEntitlementIfExpired(ctx, account.UserID, now.Unix())
	if err != nil {
		return false, storageError("entitlement.clear", err)
	}
	if cleared {
		s.log.Info().
			Int64("user_id", account.UserID).
			Str("plan", string(account.Entitlement.Plan)).
			Time("expired_at", account.Entitlement.ExpiresAt).
			Msg("entitlement expired")
	}

	account.Entitlement = nil
	account.EntitlementExpiresAt = nil
	return false, nil
}

// Grant 以当前时刻为起点授予 days 天会员，覆盖现有会员（不叠加）；账户不存在时新建
func (s *EntitlementService) Grant(ctx context.Context, userID int64, plan model.PlanTag, days int, amount int64, source model.EntitlementSource) (*model.Entitlement, error) {
	if days <= 0 {
		return nil, invalidArgument("days must be positive, got %d", days)
	}

	now := s.clock.Now()
	ent := &model.Entitlement{
		Plan:         plan,
		GrantedAt:    now,
		ExpiresAt:    now.AddDate(0, 0, days),
		DurationDays: days,
		AmountPaid:   amount,
		Source:       source,
	}

	// 直接授予时账户可能尚未登记，此时不享受新用户额度
	fallback := newAccount(s.clock, userID, "", false)
	if _, err := s.accountRepo.SetEntitlement(ctx, userID, ent, fallback); err != nil {
		return nil, storageError("entitlement.grant", err)
	}

	metrics.EntitlementsGranted.WithLabelValues(string(source)).Inc()
	s.log.Info().
		Int64("user_id", userID).
		Str("plan", string(plan)).
		Int("days", days).
		Int64("amount", amount).
		Str("source", string(source)).
		Time("expires_at", ent.ExpiresAt).
		Msg("entitlement granted")

	return ent, nil
}

// PlanForDays 7 天为周卡，30 天为月卡，其他为自定义
func PlanForDays(days int) model.PlanTag {
	switch days {
	case 7:
		return model.PlanWeekly
	case 30:
		return model.PlanMonthly
	default:
		return model.PlanCustom
	}
}
