package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/quota_relay/config"
	"github.com/qs3c/quota_relay/internal/model"
	"github.com/qs3c/quota_relay/internal/model/dto"
	"github.com/qs3c/quota_relay/internal/pkg/clock"
	"github.com/qs3c/quota_relay/internal/repository"
	"github.com/qs3c/quota_relay/internal/service"
	"github.com/qs3c/quota_relay/internal/testutil"
)

const (
	adminID   int64 = 1000
	groupChat int64 = -100200
)

var ist = time.FixedZone("IST", 5*3600+30*60)

// recordingNotifier 记录收到的通知，可注入投递失败
type recordingNotifier struct {
	mu      sync.Mutex
	notices []dto.Notice
	fail    bool
}

func (n *recordingNotifier) Notify(_ context.Context, notice *dto.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("gateway unavailable")
	}
	n.notices = append(n.notices, *notice)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type routerEnv struct {
	db       *gorm.DB
	clock    *clock.Fake
	cfg      *config.Config
	notifier *recordingNotifier
	router   *Router
	accounts *repository.AccountRepository
	payments *service.PaymentService
}

func setupRouter(t *testing.T) *routerEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	rdb, _ := testutil.SetupTestRedis(t)

	cfg := &config.Config{
		Bot:     config.BotConfig{AdminUserID: adminID, AdminUsername: "relay_admin"},
		Quota:   config.QuotaConfig{DailyLimit: 1, NewUserLimit: 5},
		Plans:   config.DefaultPlans(),
		Payment: config.PaymentConfig{RequestTTL: 72 * time.Hour},
	}
	clk := clock.NewFake(time.Date(2024, 1, 15, 10, 0, 0, 0, ist))
	log := zerolog.Nop()

	accountRepo := repository.NewAccountRepository(db)
	entitlements := service.NewEntitlementService(accountRepo, clk, log)
	quota := service.NewQuotaService(accountRepo, entitlements, clk, cfg, log)
	accounts := service.NewAccountService(accountRepo, repository.NewCommandLogRepository(db), entitlements, clk, cfg, log)
	payments := service.NewPaymentService(repository.NewPaymentRepository(rdb), entitlements, clk, cfg, log)

	notifier := &recordingNotifier{}
	return &routerEnv{
		db:       db,
		clock:    clk,
		cfg:      cfg,
		notifier: notifier,
		router:   NewRouter(accounts, quota, entitlements, payments, notifier, clk, cfg, log),
		accounts: accountRepo,
		payments: payments,
	}
}

func groupEvent(userID int64, text string) *dto.CommandEvent {
	return &dto.CommandEvent{
		UserID:      userID,
		DisplayName: "alice",
		ChatID:      groupChat,
		ChatType:    dto.ChatSupergroup,
		RawText:     text,
		MessageID:   77,
	}
}

func privateEvent(userID int64, text string) *dto.CommandEvent {
	return &dto.CommandEvent{
		UserID:      userID,
		DisplayName: "alice",
		ChatID:      userID,
		ChatType:    dto.ChatPrivate,
		RawText:     text,
		MessageID:   5,
	}
}

func TestRouter_IgnoresNonCommands(t *testing.T) {
	env := setupRouter(t)

	res, err := env.router.HandleCommand(context.Background(), groupEvent(1, "hello there"))
	require.NoError(t, err)
	assert.Equal(t, KindIgnored, res.Kind)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Empty(t, res.Notices)

	_, err = env.accounts.GetByUserID(context.Background(), 1)
	assert.Error(t, err)
}

func TestRouter_CountedCommandInPrivateIsIgnored(t *testing.T) {
	env := setupRouter(t)

	res, err := env.router.HandleCommand(context.Background(), privateEvent(1, "/ask something"))
	require.NoError(t, err)
	assert.Equal(t, KindCounted, res.Kind)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
}

func TestRouter_NewUserScenario(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()

	for _, want := range []int{4, 3, 2, 1, 0} {
		res, err := env.router.HandleCommand(ctx, groupEvent(1, "2/num 42"))
		require.NoError(t, err)
		require.Equal(t, OutcomeAllowed, res.Outcome)
		require.Len(t, res.Notices, 1)

		notice := res.Notices[0]
		assert.Equal(t, dto.NoticeAdmission, notice.Type)
		assert.Equal(t, groupChat, notice.ChatID)
		assert.EqualValues(t, 77, notice.ReplyTo)
		assert.Equal(t, want, notice.Admission.Remaining)
		assert.Equal(t, 5, notice.Admission.Limit)
		assert.True(t, notice.Admission.IsNewUser)
		if want == 0 {
			assert.True(t, notice.Admission.LastOne)
			assert.Contains(t, notice.Text, "last search")
		}
	}

	res, err := env.router.HandleCommand(ctx, groupEvent(1, "/num 42"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, res.Outcome)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, dto.NoticeBlocked, res.Notices[0].Type)
	assert.EqualValues(t, 77, res.Notices[0].DeleteMessageID)
	assert.Equal(t, 5, res.Notices[0].Block.Limit)
	assert.Contains(t, res.Notices[0].Text, "00:00 IST")

	// 次日上限为 1
	env.clock.Set(time.Date(2024, 1, 16, 8, 0, 0, 0, ist))
	res, err = env.router.HandleCommand(ctx, groupEvent(1, "/num 42"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllowed, res.Outcome)
	assert.Equal(t, 0, res.Notices[0].Admission.Remaining)
	assert.Equal(t, 1, res.Notices[0].Admission.Limit)

	res, err = env.router.HandleCommand(ctx, groupEvent(1, "/num 42"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, res.Outcome)

	account, err := env.accounts.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 8, account.TotalCommands)
	assert.Equal(t, 8, env.notifier.count())
}

func TestRouter_ManagementCommandsAreNotCounted(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()

	for _, text := range []string{"/start", "/status", "/premium", "/help", "/status@relay_bot"} {
		res, err := env.router.HandleCommand(ctx, groupEvent(1, text))
		require.NoError(t, err, text)
		assert.Equal(t, KindManagement, res.Kind, text)
		assert.Equal(t, OutcomeHandled, res.Outcome, text)
	}

	account, err := env.accounts.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, account.MessageCount)
	assert.EqualValues(t, 0, account.TotalCommands)
}

func TestRouter_StartAndStatus(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()

	res, err := env.router.HandleCommand(ctx, privateEvent(1, "/start"))
	require.NoError(t, err)
	require.Len(t, res.Notices, 1)
	welcome := res.Notices[0]
	assert.Equal(t, dto.NoticeWelcome, welcome.Type)
	assert.True(t, welcome.Status.IsNewUser)
	assert.Contains(t, welcome.Text, "Welcome Bonus: 5")
	assert.Len(t, welcome.Plans, 2)

	res, err = env.router.HandleCommand(ctx, privateEvent(1, "/status"))
	require.NoError(t, err)
	status := res.Notices[0]
	assert.Equal(t, dto.NoticeStatus, status.Type)
	assert.Equal(t, 5, status.Status.DailyLimit)
	assert.Contains(t, status.Text, "Used: 0/5")

	res, err = env.router.HandleCommand(ctx, privateEvent(1, "/premium"))
	require.NoError(t, err)
	assert.Equal(t, dto.NoticePlanMenu, res.Notices[0].Type)
	assert.Contains(t, res.Notices[0].Text, "₹300")

	res, err = env.router.HandleCommand(ctx, privateEvent(1, "/help"))
	require.NoError(t, err)
	assert.Equal(t, dto.NoticeHelp, res.Notices[0].Type)
	assert.Contains(t, res.Notices[0].Text, "@relay_admin")
}

func TestRouter_AdminIsExempt(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := env.router.HandleCommand(ctx, groupEvent(adminID, "/ask"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeExempt, res.Outcome)
		assert.Empty(t, res.Notices)
	}

	// 管理员未登记时不会被自动登记
	_, err := env.accounts.GetByUserID(ctx, adminID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// 登记后仍不计数，但写审计日志
	testutil.TestAccount(t, env.db, adminID, "2024-01-15")
	_, err = env.router.HandleCommand(ctx, groupEvent(adminID, "/ask"))
	require.NoError(t, err)

	account, err := env.accounts.GetByUserID(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, 0, account.MessageCount)
	assert.EqualValues(t, 1, account.TotalCommands)
}

func TestRouter_PremiumBypass(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()

	now := env.clock.Now()
	testutil.TestAccount(t, env.db, 1, "2024-01-15",
		testutil.WithMessageCount(1),
		testutil.WithEntitlement(&model.Entitlement{
			Plan:         model.PlanWeekly,
			GrantedAt:    now,
			ExpiresAt:    now.AddDate(0, 0, 7),
			DurationDays: 7,
		}),
	)

	res, err := env.router.HandleCommand(ctx, groupEvent(1, "/ask"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePremium, res.Outcome)
	assert.Equal(t, dto.NoticePremiumBypass, res.Notices[0].Type)
	assert.Contains(t, res.Notices[0].Text, "@alice")

	// 到期后回到免费额度
	env.clock.Set(now.AddDate(0, 0, 7))
	res, err = env.router.HandleCommand(ctx, groupEvent(1, "/ask"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllowed, res.Outcome)
}

func TestRouter_Approve(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()

	res, err := env.router.HandleCommand(ctx, privateEvent(adminID, "/approve 42 7"))
	require.NoError(t, err)
	require.Len(t, res.Notices, 2)
	assert.Equal(t, dto.NoticeAdminGranted, res.Notices[0].Type)
	assert.Equal(t, adminID, res.Notices[0].ChatID)
	assert.EqualValues(t, 42, res.Notices[1].ChatID)
	assert.Equal(t, 7, res.Notices[1].Grant.Days)

	account, err := env.accounts.GetByUserID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, account.Entitlement)
	assert.Equal(t, model.SourceAdminGranted, account.Entitlement.Source)
}

func TestRouter_Approve_Errors(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()

	res, err := env.router.HandleCommand(ctx, privateEvent(1, "/approve 42 7"))
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "⛔ Admin only", res.Notices[0].Text)

	for _, text := range []string{"/approve", "/approve 42", "/approve abc 7", "/approve 42 seven"} {
		res, err = env.router.HandleCommand(ctx, privateEvent(adminID, text))
		assert.ErrorIs(t, err, service.ErrInvalidArgument, text)
		assert.Equal(t, approveUsage, res.Notices[0].Text, text)
	}

	res, err = env.router.HandleCommand(ctx, privateEvent(adminID, "/approve 42 0"))
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
	assert.Equal(t, dto.NoticeError, res.Notices[0].Type)

	_, err = env.accounts.GetByUserID(ctx, 42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRouter_PurchaseFlow(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()

	_, err := env.router.HandleCommand(ctx, privateEvent(1, "/start"))
	require.NoError(t, err)

	res, err := env.router.HandleCallback(ctx, &dto.CallbackEvent{UserID: 1, DisplayName: "alice", ChatID: 1, Data: "buy_week"})
	require.NoError(t, err)
	require.Len(t, res.Notices, 2)

	adminNotice := res.Notices[0]
	assert.Equal(t, dto.NoticePaymentCreated, adminNotice.Type)
	assert.Equal(t, adminID, adminNotice.ChatID)
	assert.EqualValues(t, 300, adminNotice.PaymentCreated.Amount)
	assert.Equal(t, "Weekly", adminNotice.PaymentCreated.PlanName)
	requestID := adminNotice.PaymentCreated.RequestID

	userNotice := res.Notices[1]
	assert.Equal(t, dto.NoticePaymentPending, userNotice.Type)
	assert.Contains(t, userNotice.Text, "₹300")

	res, err = env.router.HandleCommand(ctx, privateEvent(adminID, "/pending"))
	require.NoError(t, err)
	require.Len(t, res.Notices[0].Pending, 1)
	assert.Equal(t, requestID, res.Notices[0].Pending[0].RequestID)

	// 非管理员点击确认
	_, err = env.router.HandleCallback(ctx, &dto.CallbackEvent{UserID: 1, ChatID: 1, Data: ConfirmCallback(requestID)})
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	env.clock.Advance(time.Hour)
	confirmedAt := env.clock.Now()
	res, err = env.router.HandleCallback(ctx, &dto.CallbackEvent{UserID: adminID, ChatID: adminID, MessageID: 9, Data: ConfirmCallback(requestID)})
	require.NoError(t, err)
	require.Len(t, res.Notices, 2)
	assert.Equal(t, adminID, res.Notices[0].ChatID)
	assert.True(t, strings.HasPrefix(res.Notices[0].Text, "✅ CONFIRMED"))
	userResolution := res.Notices[1]
	assert.EqualValues(t, 1, userResolution.ChatID)
	assert.Equal(t, model.OutcomeConfirmed, userResolution.Resolution.Outcome)
	require.NotNil(t, userResolution.Resolution.ExpiresAt)
	assert.True(t, confirmedAt.AddDate(0, 0, 7).Equal(*userResolution.Resolution.ExpiresAt))

	// 重复确认
	res, err = env.router.HandleCallback(ctx, &dto.CallbackEvent{UserID: adminID, ChatID: adminID, Data: ConfirmCallback(requestID)})
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Equal(t, dto.NoticeError, res.Notices[0].Type)

	res, err = env.router.HandleCommand(ctx, groupEvent(1, "/ask"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePremium, res.Outcome)
}

func TestRouter_RejectFlow(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()

	res, err := env.router.HandleCallback(ctx, &dto.CallbackEvent{UserID: 1, DisplayName: "alice", ChatID: 1, Data: "buy_month"})
	require.NoError(t, err)
	requestID := res.Notices[0].PaymentCreated.RequestID

	res, err = env.router.HandleCallback(ctx, &dto.CallbackEvent{UserID: adminID, ChatID: adminID, Data: RejectCallback(requestID)})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRejected, res.Notices[1].Resolution.Outcome)
	assert.Nil(t, res.Notices[1].Resolution.ExpiresAt)
	assert.Contains(t, res.Notices[1].Text, "Payment rejected")
}

func TestRouter_UnknownCallback(t *testing.T) {
	env := setupRouter(t)

	_, err := env.router.HandleCallback(context.Background(), &dto.CallbackEvent{UserID: 1, ChatID: 1, Data: "refund_all"})
	assert.ErrorIs(t, err, service.ErrInvalidArgument)

	_, err = env.router.HandleCallback(context.Background(), &dto.CallbackEvent{UserID: 1, ChatID: 1, Data: "buy_lifetime"})
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
}

func TestRouter_ExpireStalePayments(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()

	_, err := env.router.HandleCallback(ctx, &dto.CallbackEvent{UserID: 1, DisplayName: "alice", ChatID: 1, Data: "buy_week"})
	require.NoError(t, err)

	env.clock.Advance(73 * time.Hour)
	res, err := env.router.ExpireStalePayments(ctx)
	require.NoError(t, err)
	require.Len(t, res.Notices, 2)
	assert.EqualValues(t, 1, res.Notices[1].ChatID)
	assert.Equal(t, model.OutcomeExpired, res.Notices[1].Resolution.Outcome)

	pending, err := env.payments.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRouter_DeliveryFailureDoesNotRollBack(t *testing.T) {
	env := setupRouter(t)
	env.notifier.fail = true
	ctx := context.Background()

	res, err := env.router.HandleCommand(ctx, groupEvent(1, "/ask"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllowed, res.Outcome)

	account, err := env.accounts.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, account.MessageCount)
}

func TestRouter_StorageFailureTellsUserToRetry(t *testing.T) {
	env := setupRouter(t)
	testutil.CleanupTestDB(t, env.db)

	res, err := env.router.HandleCommand(context.Background(), groupEvent(1, "/ask"))
	assert.ErrorIs(t, err, service.ErrStorageFailure)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Len(t, res.Notices, 1)
	assert.Contains(t, res.Notices[0].Text, "try again later")
}

func TestRouter_Grant(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()

	res, err := env.router.Grant(ctx, 1, 42, 7)
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	// 非管理员只收到错误提示
	require.Equal(t, 1, env.notifier.count())
	assert.Equal(t, dto.NoticeError, env.notifier.notices[0].Type)
	assert.EqualValues(t, 1, env.notifier.notices[0].ChatID)

	res, err = env.router.Grant(ctx, adminID, 42, 30)
	require.NoError(t, err)
	assert.Equal(t, OutcomeHandled, res.Outcome)
	require.Len(t, res.Notices, 2)
	assert.Equal(t, adminID, res.Notices[0].ChatID)
	assert.EqualValues(t, 42, res.Notices[1].ChatID)
	assert.True(t, env.clock.Now().AddDate(0, 0, 30).Equal(res.Notices[1].Grant.ExpiresAt))
	assert.Equal(t, 3, env.notifier.count())
}

func TestRouter_Resolve(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()

	res, err := env.router.HandleCallback(ctx, &dto.CallbackEvent{UserID: 1, DisplayName: "alice", ChatID: 1, Data: "buy_week"})
	require.NoError(t, err)
	requestID := res.Notices[0].PaymentCreated.RequestID

	_, err = env.router.Resolve(ctx, 1, requestID, model.ActionConfirm)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	res, err = env.router.Resolve(ctx, adminID, requestID, model.ActionConfirm)
	require.NoError(t, err)
	assert.Equal(t, KindAdmin, res.Kind)
	require.Len(t, res.Notices, 2)
	assert.Equal(t, model.OutcomeConfirmed, res.Notices[1].Resolution.Outcome)

	_, err = env.router.Resolve(ctx, adminID, requestID, model.ActionReject)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestRouter_OperationContext(t *testing.T) {
	env := setupRouter(t)
	env.cfg.Database.QueryTimeout = 200 * time.Millisecond

	parent, cancel := context.WithCancel(context.Background())
	cancel()

	ctx, done := env.router.operationContext(parent)
	defer done()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(200*time.Millisecond), deadline, 100*time.Millisecond)
	assert.NoError(t, ctx.Err())

	env.cfg.Database.QueryTimeout = 0
	ctx, done = env.router.operationContext(context.Background())
	defer done()
	deadline, ok = ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(defaultOperationTimeout), deadline, time.Second)
}

func TestRouter_CanceledCallerStillCompletesAdmission(t *testing.T) {
	env := setupRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := env.router.HandleCommand(ctx, groupEvent(7, "/num 1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllowed, res.Outcome)
	assert.Equal(t, 1, env.notifier.count())

	account, err := env.accounts.GetByUserID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, account.MessageCount)
}
