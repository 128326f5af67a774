package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/qs3c/quota_relay/config"
	"github.com/qs3c/quota_relay/internal/bot"
	"github.com/qs3c/quota_relay/internal/pkg/clock"
	"github.com/qs3c/quota_relay/internal/repository"
)

const (
	dailySummarySpec = "0 0 * * *"
	jobTimeout       = 30 * time.Second
)

// PaymentExpirer 处理超时未决的购买请求
type PaymentExpirer interface {
	ExpireStalePayments(ctx context.Context) (*bot.Result, error)
}

// Summary 前一民用日的用量汇总
type Summary struct {
	Date            string `json:"date"`
	Commands        int64  `json:"commands"`
	Accounts        int64  `json:"accounts"`
	ActivePremium   int64  `json:"active_premium"`
	PendingPayments int64  `json:"pending_payments"`
}

type Service struct {
	expirer        PaymentExpirer
	accountRepo    *repository.AccountRepository
	commandLogRepo *repository.CommandLogRepository
	paymentRepo    *repository.PaymentRepository
	clock          clock.Clock
	log            zerolog.Logger
	scheduler      *cron.Cron
}

// NewService 注册过期检查与每日汇总任务，cron 表达式按额度时区解释
func NewService(
	expirer PaymentExpirer,
	accountRepo *repository.AccountRepository,
	commandLogRepo *repository.CommandLogRepository,
	paymentRepo *repository.PaymentRepository,
	clk clock.Clock,
	cfg *config.Config,
	log zerolog.Logger,
) (*Service, error) {
	s := &Service{
		expirer:        expirer,
		accountRepo:    accountRepo,
		commandLogRepo: commandLogRepo,
		paymentRepo:    paymentRepo,
		clock:          clk,
		log:            log.With().Str("component", "cron").Logger(),
		scheduler:      cron.New(cron.WithLocation(clk.Location())),
	}

	if cfg.Payment.RequestTTL > 0 && cfg.Payment.ExpireCheckInterval != "" {
		if _, err := s.scheduler.AddFunc(cfg.Payment.ExpireCheckInterval, s.runExpire); err != nil {
			return nil, fmt.Errorf("invalid payment.expire_check_interval %q: %w", cfg.Payment.ExpireCheckInterval, err)
		}
	}
	if _, err := s.scheduler.AddFunc(dailySummarySpec, s.runSummary); err != nil {
		return nil, err
	}

	return s, nil
}

// Start 启动定时任务
func (s *Service) Start() {
	s.scheduler.Start()
	s.log.Info().Int("jobs", len(s.scheduler.Entries())).Msg("cron service started")
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Service) Stop() {
	<-s.scheduler.Stop().Done()
	s.log.Info().Msg("cron service stopped")
}

func (s *Service) runExpire() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.ExpireNow(ctx); err != nil {
		s.log.Error().Err(err).Msg("expire stale payments failed")
	}
}

func (s *Service) runSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.SummaryNow(ctx); err != nil {
		s.log.Error().Err(err).Msg("daily summary failed")
	}
}

// ExpireNow 立即执行一次过期检查，返回被过期的请求数
func (s *Service) ExpireNow(ctx context.Context) (int, error) {
	if s.expirer == nil {
		return 0, nil
	}

	res, err := s.expirer.ExpireStalePayments(ctx)
	if err != nil {
		return 0, err
	}

	requests := make(map[string]struct{})
	for _, n := range res.Notices {
		if n.Resolution != nil {
			requests[n.Resolution.RequestID] = struct{}{}
		}
	}
	expired := len(requests)
	if expired > 0 {
		s.log.Info().Int("expired", expired).Msg("stale payment requests expired")
	}
	return expired, nil
}

// SummaryNow 汇总前一民用日的计数命令、当前会员数与待处理的购买请求
func (s *Service) SummaryNow(ctx context.Context) (*Summary, error) {
	now := s.clock.Now()
	loc := s.clock.Location()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	from := todayStart.AddDate(0, 0, -1)

	commands, err := s.commandLogRepo.CountBetween(ctx, from, todayStart)
	if err != nil {
		return nil, fmt.Errorf("count commands: %w", err)
	}
	accounts, err := s.accountRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	premium, err := s.accountRepo.CountActiveEntitlements(ctx, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("count entitlements: %w", err)
	}
	pending, err := s.paymentRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pending payments: %w", err)
	}

	summary := &Summary{
		Date:            from.Format(clock.DateLayout),
		Commands:        commands,
		Accounts:        accounts,
		ActivePremium:   premium,
		PendingPayments: pending,
	}
	s.log.Info().
		Str("date", summary.Date).
		Int64("commands", summary.Commands).
		Int64("accounts", summary.Accounts).
		Int64("active_premium", summary.ActivePremium).
		Int64("pending_payments", summary.PendingPayments).
		Msg("daily summary")
	return summary, nil
}
