package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/qs3c/quota_relay/config"
	"github.com/qs3c/quota_relay/internal/model"
	"github.com/qs3c/quota_relay/internal/model/dto"
	"github.com/qs3c/quota_relay/internal/pkg/clock"
	"github.com/qs3c/quota_relay/internal/pkg/metrics"
	"github.com/qs3c/quota_relay/internal/service"
)

// KindCallback 按钮回调不属于文本命令，只用于结果标记
const KindCallback CommandKind = "callback"

type Outcome string

const (
	OutcomeIgnored Outcome = "ignored"
	OutcomeHandled Outcome = "handled"
	OutcomeExempt  Outcome = "exempt"
	OutcomePremium Outcome = "premium"
	OutcomeAllowed Outcome = "allowed"
	OutcomeBlocked Outcome = "blocked"
	OutcomeFailed  Outcome = "failed"
)

// 未配置 database.query_timeout 时单次处理的上限
const defaultOperationTimeout = 3 * time.Second

var errApproveUsage = fmt.Errorf("%w: %s", service.ErrInvalidArgument, approveUsage)

// Notifier 把通知交给聊天网关，实现方负责投递
type Notifier interface {
	Notify(ctx context.Context, notice *dto.Notice) error
}

// NopNotifier 丢弃所有通知，同步 HTTP 调用方直接从返回值取通知
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, *dto.Notice) error {
	return nil
}

// Result 一次事件处理的结果与产生的通知
type Result struct {
	Kind    CommandKind  `json:"kind"`
	Command string       `json:"command,omitempty"`
	Outcome Outcome      `json:"outcome"`
	Notices []dto.Notice `json:"notices"`
}

func (r *Result) add(n dto.Notice) {
	r.Notices = append(r.Notices, n)
}

type Router struct {
	accounts     *service.AccountService
	quota        *service.QuotaService
	entitlements *service.EntitlementService
	payments     *service.PaymentService
	notifier     Notifier
	clock        clock.Clock
	cfg          *config.Config
	log          zerolog.Logger
}

func NewRouter(
	accounts *service.AccountService,
	quota *service.QuotaService,
	entitlements *service.EntitlementService,
	payments *service.PaymentService,
	notifier Notifier,
	clk clock.Clock,
	cfg *config.Config,
	log zerolog.Logger,
) *Router {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Router{
		accounts:     accounts,
		quota:        quota,
		entitlements: entitlements,
		payments:     payments,
		notifier:     notifier,
		clock:        clk,
		cfg:          cfg,
		log:          log.With().Str("component", "router").Logger(),
	}
}

// HandleCommand 处理一条文本消息。出错时结果里带有给用户的错误提示，同时返回错误
func (r *Router) HandleCommand(ctx context.Context, ev *dto.CommandEvent) (*Result, error) {
	ctx, cancel := r.operationContext(ctx)
	defer cancel()

	cmd, args := ParseCommand(NormalizeCommand(ev.RawText))
	kind := Classify(cmd)
	res := &Result{Kind: kind, Command: cmd, Outcome: OutcomeIgnored, Notices: []dto.Notice{}}

	var err error
	switch kind {
	case KindManagement:
		err = r.handleManagement(ctx, ev, cmd, res)
	case KindAdmin:
		err = r.handleAdmin(ctx, ev, cmd, args, res)
	case KindCounted:
		// 私聊里的计数命令不处理
		if ev.IsGroup() {
			err = r.handleCounted(ctx, ev, cmd, res)
		}
	}

	return r.finish(ctx, "command", res, ev.ChatID, ev.MessageID, err)
}

// HandleCallback 处理内联按钮回调：buy_<plan>、confirm_<id>、reject_<id>
func (r *Router) HandleCallback(ctx context.Context, cb *dto.CallbackEvent) (*Result, error) {
	ctx, cancel := r.operationContext(ctx)
	defer cancel()

	res := &Result{Kind: KindCallback, Command: cb.Data, Outcome: OutcomeIgnored, Notices: []dto.Notice{}}

	var err error
	switch {
	case strings.HasPrefix(cb.Data, callbackBuy):
		err = r.handleBuy(ctx, cb, strings.TrimPrefix(cb.Data, callbackBuy), res)
	case strings.HasPrefix(cb.Data, callbackConfirm):
		err = r.handleResolve(ctx, cb, strings.TrimPrefix(cb.Data, callbackConfirm), model.ActionConfirm, res)
	case strings.HasPrefix(cb.Data, callbackReject):
		err = r.handleResolve(ctx, cb, strings.TrimPrefix(cb.Data, callbackReject), model.ActionReject, res)
	default:
		err = fmt.Errorf("%w: unknown callback %q", service.ErrInvalidArgument, cb.Data)
	}

	return r.finish(ctx, "callback", res, cb.ChatID, 0, err)
}

// ExpireStalePayments 自动拒绝超时的购买请求并通知双方
func (r *Router) ExpireStalePayments(ctx context.Context) (*Result, error) {
	ctx, cancel := r.operationContext(ctx)
	defer cancel()

	res := &Result{Kind: KindCallback, Command: "expire", Outcome: OutcomeHandled, Notices: []dto.Notice{}}

	resolutions, err := r.payments.ExpireStale(ctx)
	for _, resolution := range resolutions {
		r.addResolutionNotices(res, resolution, r.cfg.Bot.AdminUserID, 0)
	}
	if err != nil {
		res.Outcome = OutcomeFailed
	}

	r.deliverAfter(ctx, res.Notices)
	return res, err
}

// Grant 管理端接口直接授予会员，通知与 /approve 相同
func (r *Router) Grant(ctx context.Context, adminID, userID int64, days int) (*Result, error) {
	ctx, cancel := r.operationContext(ctx)
	defer cancel()

	res := &Result{Kind: KindAdmin, Command: "/approve", Outcome: OutcomeIgnored, Notices: []dto.Notice{}}

	var err error
	if !r.accounts.IsAdmin(adminID) {
		err = service.ErrUnauthorized
	} else {
		res.Outcome = OutcomeHandled
		err = r.grant(ctx, adminID, 0, userID, days, res)
	}
	return r.finish(ctx, "admin", res, adminID, 0, err)
}

// Resolve 管理端接口处理购买请求，等同于点击确认 / 拒绝按钮
func (r *Router) Resolve(ctx context.Context, adminID int64, requestID string, action model.PaymentAction) (*Result, error) {
	ctx, cancel := r.operationContext(ctx)
	defer cancel()

	res := &Result{Kind: KindAdmin, Command: string(action), Outcome: OutcomeIgnored, Notices: []dto.Notice{}}
	cb := &dto.CallbackEvent{UserID: adminID, ChatID: adminID}
	err := r.handleResolve(ctx, cb, requestID, action, res)
	return r.finish(ctx, "admin", res, adminID, 0, err)
}

// operationContext 脱离调用方的取消，并以 database.query_timeout 为截止时间。
// 已开始的状态变更不会被关停信号打断，存储挂起也不会无限阻塞
func (r *Router) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := r.cfg.Database.QueryTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// deliverAfter 投递使用新的截止时间，处理耗尽的时限不影响通知
func (r *Router) deliverAfter(ctx context.Context, notices []dto.Notice) {
	ctx, cancel := r.operationContext(ctx)
	defer cancel()
	r.deliver(ctx, notices)
}

func (r *Router) finish(ctx context.Context, kind string, res *Result, chatID, replyTo int64, err error) (*Result, error) {
	if err != nil {
		res.Outcome = OutcomeFailed
		res.add(dto.Notice{
			Type:    dto.NoticeError,
			ChatID:  chatID,
			ReplyTo: replyTo,
			Text:    errorText(err),
		})

		event := r.log.Warn()
		if errors.Is(err, service.ErrStorageFailure) {
			event = r.log.Error()
		}
		event.Err(err).Str("kind", kind).Str("command", res.Command).Msg("event failed")
	}

	r.deliverAfter(ctx, res.Notices)
	metrics.EventsProcessed.WithLabelValues(kind, string(res.Outcome)).Inc()

	return res, err
}

// deliver 投递失败只记录，不影响已经完成的状态变更
func (r *Router) deliver(ctx context.Context, notices []dto.Notice) {
	for i := range notices {
		if err := r.notifier.Notify(ctx, &notices[i]); err != nil {
			metrics.NoticeDeliveryFailures.Inc()
			r.log.Warn().Err(err).
				Str("type", string(notices[i].Type)).
				Int64("chat_id", notices[i].ChatID).
				Msg("failed to deliver notice")
		}
	}
}

func (r *Router) handleCounted(ctx context.Context, ev *dto.CommandEvent, cmd string, res *Result) error {
	if r.accounts.IsAdmin(ev.UserID) {
		r.auditAdmin(ctx, ev, cmd)
		res.Outcome = OutcomeExempt
		return nil
	}

	account, _, err := r.accounts.EnsureAccount(ctx, ev.UserID, ev.DisplayName)
	if err != nil {
		return err
	}
	r.accounts.RecordCommand(ctx, account, cmd, ev.ChatID)

	who := mention(ev.DisplayName)

	active, err := r.entitlements.IsActive(ctx, account)
	if err != nil {
		return err
	}
	if active {
		res.Outcome = OutcomePremium
		res.add(dto.Notice{
			Type:    dto.NoticePremiumBypass,
			ChatID:  ev.ChatID,
			ReplyTo: ev.MessageID,
			Mention: who,
			Text:    premiumBypassText(who),
		})
		return nil
	}

	decision, err := r.quota.Admit(ctx, ev.UserID)
	if err != nil {
		return err
	}

	loc := r.clock.Location()
	if decision.Allowed() {
		res.Outcome = OutcomeAllowed
		admission := &dto.AdmissionNotice{
			Remaining: decision.Remaining,
			Limit:     decision.Limit,
			IsNewUser: decision.IsNewUser,
			LastOne:   decision.LastOne,
		}
		if decision.LastOne {
			resetAt := decision.ResetAt
			admission.ResetAt = &resetAt
		}
		res.add(dto.Notice{
			Type:      dto.NoticeAdmission,
			ChatID:    ev.ChatID,
			ReplyTo:   ev.MessageID,
			Mention:   who,
			Text:      admissionText(who, admission, loc),
			Admission: admission,
		})
		return nil
	}

	res.Outcome = OutcomeBlocked
	block := &dto.BlockNotice{Limit: decision.Limit, ResetAt: decision.ResetAt}
	res.add(dto.Notice{
		Type:            dto.NoticeBlocked,
		ChatID:          ev.ChatID,
		DeleteMessageID: ev.MessageID,
		Mention:         who,
		Text:            blockedText(who, block, loc),
		Block:           block,
	})
	return nil
}

// auditAdmin 管理员已登记时照常写审计日志与检查会员，不参与计数
func (r *Router) auditAdmin(ctx context.Context, ev *dto.CommandEvent, cmd string) {
	account, err := r.accounts.Get(ctx, ev.UserID)
	if err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			r.log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("failed to load admin account")
		}
		return
	}

	r.accounts.RecordCommand(ctx, account, cmd, ev.ChatID)
	if _, err := r.entitlements.IsActive(ctx, account); err != nil {
		r.log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("failed to check admin entitlement")
	}
}

func (r *Router) handleManagement(ctx context.Context, ev *dto.CommandEvent, cmd string, res *Result) error {
	res.Outcome = OutcomeHandled
	quotaCfg := r.cfg.Quota

	if cmd == "/help" {
		res.add(dto.Notice{
			Type:    dto.NoticeHelp,
			ChatID:  ev.ChatID,
			ReplyTo: ev.MessageID,
			Text:    helpText(quotaCfg.DailyLimit, quotaCfg.NewUserLimit, r.cfg.Bot.AdminUsername),
		})
		return nil
	}

	if _, _, err := r.accounts.EnsureAccount(ctx, ev.UserID, ev.DisplayName); err != nil {
		return err
	}
	info, err := r.quota.GetQuotaInfo(ctx, ev.UserID)
	if err != nil {
		return err
	}

	now := r.clock.Now()
	plans := r.payments.Plans()
	notice := dto.Notice{ChatID: ev.ChatID, ReplyTo: ev.MessageID, Status: info}

	switch cmd {
	case "/start":
		notice.Type = dto.NoticeWelcome
		notice.Plans = plans
		notice.Text = welcomeText(info, plans, quotaCfg.DailyLimit, quotaCfg.NewUserLimit)
	case "/status":
		notice.Type = dto.NoticeStatus
		notice.Text = statusText(info, r.entitlementPlanName(info.Entitlement), now, r.clock.Location())
	case "/premium":
		notice.Type = dto.NoticePlanMenu
		notice.Plans = plans
		notice.Text = planMenuText(info, plans, now)
	}

	res.add(notice)
	return nil
}

func (r *Router) handleAdmin(ctx context.Context, ev *dto.CommandEvent, cmd string, args []string, res *Result) error {
	if !r.accounts.IsAdmin(ev.UserID) {
		return service.ErrUnauthorized
	}
	res.Outcome = OutcomeHandled

	switch cmd {
	case "/approve":
		return r.handleApprove(ctx, ev, args, res)
	case "/pending":
		pending, err := r.payments.ListPending(ctx)
		if err != nil {
			return err
		}

		items := make([]dto.PaymentCreatedNotice, 0, len(pending))
		for _, req := range pending {
			items = append(items, *r.paymentCreated(req))
		}
		res.add(dto.Notice{
			Type:    dto.NoticePendingList,
			ChatID:  ev.ChatID,
			ReplyTo: ev.MessageID,
			Text:    pendingListText(items, r.clock.Location()),
			Pending: items,
		})
	}
	return nil
}

func (r *Router) handleApprove(ctx context.Context, ev *dto.CommandEvent, args []string, res *Result) error {
	if len(args) != 2 {
		return errApproveUsage
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errApproveUsage
	}
	days, err := strconv.Atoi(args[1])
	if err != nil {
		return errApproveUsage
	}

	return r.grant(ctx, ev.ChatID, ev.MessageID, userID, days, res)
}

func (r *Router) grant(ctx context.Context, adminChatID, replyTo, userID int64, days int, res *Result) error {
	ent, err := r.accounts.GrantAdmin(ctx, userID, days)
	if err != nil {
		return err
	}

	grant := &dto.GrantNotice{UserID: userID, Days: days, ExpiresAt: ent.ExpiresAt}
	res.add(dto.Notice{
		Type:    dto.NoticeAdminGranted,
		ChatID:  adminChatID,
		ReplyTo: replyTo,
		Text:    grantAdminText(userID, days),
		Grant:   grant,
	})
	res.add(dto.Notice{
		Type:   dto.NoticeAdminGranted,
		ChatID: userID,
		Text:   grantUserText(days),
		Grant:  grant,
	})
	return nil
}

func (r *Router) handleBuy(ctx context.Context, cb *dto.CallbackEvent, planKey string, res *Result) error {
	req, err := r.payments.CreateRequest(ctx, cb.UserID, cb.DisplayName, planKey)
	if err != nil {
		return err
	}
	res.Outcome = OutcomeHandled

	created := r.paymentCreated(req)
	res.add(dto.Notice{
		Type:           dto.NoticePaymentCreated,
		ChatID:         r.cfg.Bot.AdminUserID,
		Mention:        mention(r.cfg.Bot.AdminUsername),
		Text:           paymentCreatedText(created),
		PaymentCreated: created,
	})
	res.add(dto.Notice{
		Type:           dto.NoticePaymentPending,
		ChatID:         cb.ChatID,
		Text:           paymentPendingText(req.Amount, r.cfg.Bot.AdminUsername),
		PaymentCreated: created,
	})
	return nil
}

func (r *Router) handleResolve(ctx context.Context, cb *dto.CallbackEvent, requestID string, action model.PaymentAction, res *Result) error {
	resolution, err := r.payments.Resolve(ctx, requestID, action, cb.UserID)
	if err != nil {
		return err
	}
	res.Outcome = OutcomeHandled

	r.addResolutionNotices(res, resolution, cb.ChatID, cb.MessageID)
	return nil
}

func (r *Router) addResolutionNotices(res *Result, resolution *service.Resolution, adminChatID, replyTo int64) {
	req := resolution.Request
	plan, _ := r.payments.Plan(req.Plan)
	planName := plan.Name
	if planName == "" {
		planName = req.Plan
	}

	notice := &dto.ResolutionNotice{
		RequestID: req.ID,
		UserID:    req.UserID,
		Outcome:   resolution.Outcome,
		Plan:      req.Plan,
	}
	if resolution.Entitlement != nil {
		expiresAt := resolution.Entitlement.ExpiresAt
		notice.ExpiresAt = &expiresAt
	}

	res.add(dto.Notice{
		Type:       dto.NoticePaymentResolved,
		ChatID:     adminChatID,
		ReplyTo:    replyTo,
		Text:       resolutionAdminText(resolution.Outcome, req.RequesterName, planName, req.Amount),
		Resolution: notice,
	})
	res.add(dto.Notice{
		Type:       dto.NoticePaymentResolved,
		ChatID:     req.UserID,
		Text:       resolutionUserText(resolution.Outcome, planName, plan.DurationDays, r.cfg.Bot.AdminUsername),
		Resolution: notice,
	})
}

func (r *Router) paymentCreated(req *model.PaymentRequest) *dto.PaymentCreatedNotice {
	plan, _ := r.payments.Plan(req.Plan)
	planName := plan.Name
	if planName == "" {
		planName = req.Plan
	}
	return &dto.PaymentCreatedNotice{
		RequestID: req.ID,
		UserID:    req.UserID,
		Plan:      req.Plan,
		PlanName:  planName,
		Amount:    req.Amount,
		Requester: req.RequesterName,
		CreatedAt: req.CreatedAt,
	}
}

// entitlementPlanName 会员套餐的展示名
func (r *Router) entitlementPlanName(ent *model.Entitlement) string {
	if ent == nil {
		return ""
	}
	for _, p := range r.payments.Plans() {
		if p.DurationDays == ent.DurationDays {
			return p.Name
		}
	}
	return "Custom"
}
