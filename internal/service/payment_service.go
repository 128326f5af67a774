package service

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/qs3c/quota_relay/config"
	"github.com/qs3c/quota_relay/internal/model"
	"github.com/qs3c/quota_relay/internal/model/dto"
	"github.com/qs3c/quota_relay/internal/pkg/clock"
	"github.com/qs3c/quota_relay/internal/pkg/metrics"
	"github.com/qs3c/quota_relay/internal/repository"
)

// Resolution 购买请求的处理结果，通知用户所需的数据都在这里
type Resolution struct {
	Request     *model.PaymentRequest
	Outcome     model.PaymentOutcome
	Entitlement *model.Entitlement // 仅确认时有值
}

type PaymentService struct {
	paymentRepo        *repository.PaymentRepository
	entitlementService *EntitlementService
	clock              clock.Clock
	cfg                *config.Config
	log                zerolog.Logger
}

func NewPaymentService(
	paymentRepo *repository.PaymentRepository,
	entitlementService *EntitlementService,
	clk clock.Clock,
	cfg *config.Config,
	log zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		paymentRepo:        paymentRepo,
		entitlementService: entitlementService,
		clock:              clk,
		cfg:                cfg,
		log:                log.With().Str("component", "payment").Logger(),
	}
}

// Plan 按 key 查找套餐
func (s *PaymentService) Plan(key string) (config.PlanConfig, bool) {
	plan, ok := s.cfg.Plans[key]
	return plan, ok
}

// Plans 按时长升序返回可购买套餐
func (s *PaymentService) Plans() []dto.PlanInfo {
	plans := make([]dto.PlanInfo, 0, len(s.cfg.Plans))
	for key, p := range s.cfg.Plans {
		plans = append(plans, dto.PlanInfo{
			Key:          key,
			Name:         p.Name,
			Price:        p.Price,
			DurationDays: p.DurationDays,
		})
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].DurationDays != plans[j].DurationDays {
			return plans[i].DurationDays < plans[j].DurationDays
		}
		return plans[i].Key < plans[j].Key
	})
	return plans
}

// CreateRequest 用户选择套餐后创建待处理请求，通知管理员由调用方负责
func (s *PaymentService) CreateRequest(ctx context.Context, userID int64, requesterName, planKey string) (*model.PaymentRequest, error) {
	plan, ok := s.Plan(planKey)
	if !ok {
		return nil, invalidArgument("unknown plan %q", planKey)
	}

	now := s.clock.Now()
	req := &model.PaymentRequest{
		ID:            model.PaymentRequestID(userID, planKey, now),
		UserID:        userID,
		RequesterName: requesterName,
		Plan:          planKey,
		Amount:        plan.Price,
		CreatedAt:     now,
		State:         model.PaymentPending,
	}

	if err := s.paymentRepo.Put(ctx, req); err != nil {
		return nil, storageError("payment.put", err)
	}

	metrics.PaymentRequestsCreated.Inc()
	s.log.Info().
		Str("request_id", req.ID).
		Int64("user_id", userID).
		Str("plan", planKey).
		Int64("amount", req.Amount).
		Msg("payment request created")

	return req, nil
}

// Resolve 管理员确认或拒绝请求。请求先被原子取出，并发处理时只有一方成功，另一方得到 ErrNotFound
func (s *PaymentService) Resolve(ctx context.Context, requestID string, action model.PaymentAction, adminID int64) (*Resolution, error) {
	if adminID == 0 || adminID != s.cfg.Bot.AdminUserID {
		return nil, ErrUnauthorized
	}
	if action != model.ActionConfirm && action != model.ActionReject {
		return nil, invalidArgument("unknown action %q", action)
	}

	req, err := s.paymentRepo.Take(ctx, requestID)
	if err != nil {
		return nil, storageError("payment.take", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}

	if action == model.ActionReject {
		return s.finish(req, model.OutcomeRejected, nil), nil
	}

	plan, ok := s.Plan(req.Plan)
	if !ok {
		s.restore(ctx, req)
		return nil, invalidArgument("plan %q is no longer offered", req.Plan)
	}

	ent, err := s.entitlementService.Grant(ctx, req.UserID, PlanForDays(plan.DurationDays), plan.DurationDays, req.Amount, model.SourcePurchaseConfirmed)
	if err != nil {
		// 授予失败时放回请求，管理员可以重试
		s.restore(ctx, req)
		return nil, err
	}

	return s.finish(req, model.OutcomeConfirmed, ent), nil
}

// ExpireStale 自动拒绝超过 RequestTTL 的请求
func (s *PaymentService) ExpireStale(ctx context.Context) ([]*Resolution, error) {
	if s.cfg.Payment.RequestTTL <= 0 {
		return nil, nil
	}

	cutoff := s.clock.Now().Add(-s.cfg.Payment.RequestTTL)
	ids, err := s.paymentRepo.ListOlderThan(ctx, cutoff)
	if err != nil {
		return nil, storageError("payment.list", err)
	}

	resolutions := make([]*Resolution, 0, len(ids))
	for _, id := range ids {
		req, err := s.paymentRepo.Take(ctx, id)
		if err != nil {
			return resolutions, storageError("payment.take", err)
		}
		if req == nil {
			continue // 已被管理员处理
		}
		resolutions = append(resolutions, s.finish(req, model.OutcomeExpired, nil))
	}

	return resolutions, nil
}

// ListPending 按创建时间升序返回待处理请求
func (s *PaymentService) ListPending(ctx context.Context) ([]*model.PaymentRequest, error) {
	requests, err := s.paymentRepo.List(ctx)
	if err != nil {
		return nil, storageError("payment.list", err)
	}
	return requests, nil
}

// Get 查看单个待处理请求
func (s *PaymentService) Get(ctx context.Context, requestID string) (*model.PaymentRequest, error) {
	req, err := s.paymentRepo.Get(ctx, requestID)
	if err != nil {
		return nil, storageError("payment.get", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}
	return req, nil
}

func (s *PaymentService) finish(req *model.PaymentRequest, outcome model.PaymentOutcome, ent *model.Entitlement) *Resolution {
	req.State = model.PaymentResolved

	metrics.PaymentResolutionsTotal.WithLabelValues(string(outcome)).Inc()
	event := s.log.Info().
		Str("request_id", req.ID).
		Int64("user_id", req.UserID).
		Str("plan", req.Plan).
		Str("outcome", string(outcome))
	if ent != nil {
		event = event.Time("expires_at", ent.ExpiresAt)
	}
	event.Msg("payment request resolved")

	return &Resolution{Request: req, Outcome: outcome, Entitlement: ent}
}

func (s *PaymentService) restore(ctx context.Context, req *model.PaymentRequest) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.paymentRepo.Put(ctx, req); err != nil {
		s.log.Error().Err(err).Str("request_id", req.ID).Msg("failed to restore payment request")
	}
}
