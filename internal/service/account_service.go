package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/qs3c/quota_relay/config"
	"github.com/qs3c/quota_relay/internal/model"
	"github.com/qs3c/quota_relay/internal/pkg/clock"
	"github.com/qs3c/quota_relay/internal/repository"
)

type AccountService struct {
	accountRepo        *repository.AccountRepository
	commandLogRepo     *repository.CommandLogRepository
	entitlementService *EntitlementService
	clock              clock.Clock
	cfg                *config.Config
	log                zerolog.Logger
}

func NewAccountService(
	accountRepo *repository.AccountRepository,
	commandLogRepo *repository.CommandLogRepository,
	entitlementService *EntitlementService,
	clk clock.Clock,
	cfg *config.Config,
	log zerolog.Logger,
) *AccountService {
	return &AccountService{
		accountRepo:        accountRepo,
		commandLogRepo:     commandLogRepo,
		entitlementService: entitlementService,
		clock:              clk,
		cfg:                cfg,
		log:                log.With().Str("component", "account").Logger(),
	}
}

// newAccount 以时钟所在时区的当天作为注册日与计数日期
func newAccount(clk clock.Clock, userID int64, displayName string, isNewUser bool) *model.Account {
	now := clk.Now()
	today := clock.DateOf(clk, now)
	return &model.Account{
		UserID:             userID,
		DisplayName:        displayName,
		MessageCount:       0,
		LastResetDate:      today,
		IsNewUser:          isNewUser,
		RegistrationDate:   today,
		RegisteredAt:       now,
		EntitlementHistory: []model.Entitlement{},
	}
}

// IsAdmin 是否为配置的管理员
func (s *AccountService) IsAdmin(userID int64) bool {
	return s.cfg.Bot.AdminUserID != 0 && userID == s.cfg.Bot.AdminUserID
}

// Get 获取账户，不存在时返回 ErrNotFound
func (s *AccountService) Get(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, lookupError("account.get", err)
	}
	return account, nil
}

// EnsureAccount 首次出现的用户登记为新用户，已有账户只同步显示名
func (s *AccountService) EnsureAccount(ctx context.Context, userID int64, displayName string) (*model.Account, bool, error) {
	created, err := s.accountRepo.CreateIfAbsent(ctx, newAccount(s.clock, userID, displayName, true))
	if err != nil {
		return nil, false, storageError("account.create", err)
	}

	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, lookupError("account.get", err)
	}

	if created {
		s.log.Info().
			Int64("user_id", userID).
			Str("display_name", displayName).
			Str("registration_date", account.RegistrationDate).
			Msg("account registered")
		return account, true, nil
	}

	if displayName != "" && account.DisplayName != displayName {
		if err := s.accountRepo.UpdateFields(ctx, userID, map[string]interface{}{"display_name": displayName}); err != nil {
			s.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to update display name")
		} else {
			account.DisplayName = displayName
		}
	}

	return account, false, nil
}

// RecordCommand 记录计数命令的审计日志，失败只记日志不影响准入
func (s *AccountService) RecordCommand(ctx context.Context, account *model.Account, command string, chatID int64) {
	err := s.commandLogRepo.Create(ctx, &model.CommandLog{
		UserID:      account.UserID,
		DisplayName: account.DisplayName,
		Command:     command,
		ChatID:      chatID,
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", account.UserID).Str("command", command).Msg("failed to write command log")
	}

	if err := s.accountRepo.Increment(ctx, account.UserID, "total_commands", 1); err != nil {
		s.log.Warn().Err(err).Int64("user_id", account.UserID).Msg("failed to increment total commands")
		return
	}
	account.TotalCommands++
}

// GrantAdmin 管理员直接授予会员，天数必须为正
func (s *AccountService) GrantAdmin(ctx context.Context, userID int64, days int) (*model.Entitlement, error) {
	if userID <= 0 {
		return nil, invalidArgument("user id must be positive, got %d", userID)
	}
	if days <= 0 {
		return nil, invalidArgument("days must be positive, got %d", days)
	}

	return s.entitlementService.Grant(ctx, userID, PlanForDays(days), days, 0, model.SourceAdminGranted)
}

// RecentCommands 用户最近的计数命令
func (s *AccountService) RecentCommands(ctx context.Context, userID int64, limit int) ([]model.CommandLog, error) {
	logs, err := s.commandLogRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, storageError("account.commands", err)
	}
	return logs, nil
}
