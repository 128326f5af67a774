package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qs3c/quota_relay/internal/model"
	"github.com/qs3c/quota_relay/internal/model/dto"
	"github.com/qs3c/quota_relay/internal/service"
)

const (
	clockLayout    = "15:04 MST"
	dateTimeLayout = "2006-01-02 15:04 MST"
)

func mention(displayName string) string {
	if displayName == "" {
		return ""
	}
	return "@" + strings.TrimPrefix(displayName, "@")
}

func price(amount int64) string {
	return fmt.Sprintf("₹%d", amount)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "es"
}

func admissionText(who string, n *dto.AdmissionNotice, loc *time.Location) string {
	if n.LastOne {
		text := fmt.Sprintf("⚠️ %s: This was your last search for today!\n", who)
		if n.ResetAt != nil {
			text += fmt.Sprintf("Next command will be blocked until %s.\n", n.ResetAt.In(loc).Format(clockLayout))
		}
		return text + "💎 Upgrade to Premium: /premium"
	}

	text := fmt.Sprintf("📊 %s: %d/%d %s remaining today", who, n.Remaining, n.Limit, plural(n.Remaining, "search"))
	if n.IsNewUser {
		text += " 🎁"
	}
	return text
}

func blockedText(who string, n *dto.BlockNotice, loc *time.Location) string {
	return fmt.Sprintf("⛔ %s - BLOCKED UNTIL MIDNIGHT\n\n"+
		"You've used %d/%d searches today.\n"+
		"You cannot send ANY commands until midnight.\n\n"+
		"🕐 Resets at: %s\n\n"+
		"💎 Upgrade to Premium for unlimited searches!\n"+
		"Use /premium to upgrade now!",
		who, n.Limit, n.Limit, n.ResetAt.In(loc).Format(clockLayout))
}

func premiumBypassText(who string) string {
	return fmt.Sprintf("💎 %s: Premium Member - Unlimited searches!", who)
}

func planSummary(plans []dto.PlanInfo) string {
	parts := make([]string, 0, len(plans))
	for _, p := range plans {
		parts = append(parts, fmt.Sprintf("%s %s", p.Name, price(p.Price)))
	}
	return strings.Join(parts, " | ")
}

func welcomeText(info *dto.QuotaInfo, plans []dto.PlanInfo, dailyLimit, newUserLimit int) string {
	status := "🆓 Free"
	if info.IsPremium {
		status = "💎 Premium"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👋 Welcome!\n\nStatus: %s", status)
	if info.IsNewUser {
		fmt.Fprintf(&b, "\n🎁 Welcome Bonus: %d searches!", newUserLimit)
	}
	fmt.Fprintf(&b, "\n\n🔍 Only / commands counted\n\n")
	fmt.Fprintf(&b, "📊 Free: %d (new) / %d (regular)\n", newUserLimit, dailyLimit)
	fmt.Fprintf(&b, "💎 Premium: Unlimited\n\n")
	fmt.Fprintf(&b, "Plans: %s\n\n", planSummary(plans))
	b.WriteString("/status /premium /help")
	return b.String()
}

func daysLeft(expiresAt, now time.Time) int {
	d := int(expiresAt.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func statusText(info *dto.QuotaInfo, planName string, now time.Time, loc *time.Location) string {
	if info.IsPremium && info.Entitlement != nil {
		return fmt.Sprintf("💎 PREMIUM\n\n"+
			"Plan: %s\n"+
			"Expires: %s\n"+
			"Days: %d\n"+
			"Commands: %d\n\n"+
			"/premium to renew",
			planName, info.Entitlement.ExpiresAt.In(loc).Format(dateTimeLayout),
			daysLeft(info.Entitlement.ExpiresAt, now), info.TotalCommands)
	}

	userType := "Regular User"
	if info.IsNewUser {
		userType = "New User 🎁"
	}
	resetAt, err := time.Parse(time.RFC3339, info.ResetAt)
	resets := info.ResetAt
	if err == nil {
		resets = resetAt.In(loc).Format(clockLayout)
	}
	return fmt.Sprintf("🆓 %s\n\n"+
		"Used: %d/%d\n"+
		"Remaining: %d\n"+
		"Resets: %s\n"+
		"Commands: %d\n\n"+
		"/premium to upgrade",
		userType, info.DailyUsed, info.DailyLimit, info.DailyRemain, resets, info.TotalCommands)
}

func planMenuText(info *dto.QuotaInfo, plans []dto.PlanInfo, now time.Time) string {
	var b strings.Builder
	if info != nil && info.IsPremium && info.Entitlement != nil {
		fmt.Fprintf(&b, "✅ Premium! Expires in %d days\n\n", daysLeft(info.Entitlement.ExpiresAt, now))
	}
	for i, p := range plans {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "📅 %s: %s (%d days)", p.Name, price(p.Price), p.DurationDays)
	}
	return b.String()
}

func helpText(dailyLimit, newUserLimit int, adminUsername string) string {
	return fmt.Sprintf("📚 HELP\n\n"+
		"Only / commands counted\n"+
		"Free: %d (new) / %d (regular)\n"+
		"Resets: midnight\n"+
		"Blocked until midnight if exceeded\n\n"+
		"/start /status /premium /help\n\n"+
		"Contact: %s",
		newUserLimit, dailyLimit, mention(adminUsername))
}

func paymentCreatedText(p *dto.PaymentCreatedNotice) string {
	return fmt.Sprintf("💰 Payment Request\n\nUser: %s\nID: %d\nPlan: %s\nAmount: %s",
		mention(p.Requester), p.UserID, p.PlanName, price(p.Amount))
}

func paymentPendingText(amount int64, adminUsername string) string {
	return fmt.Sprintf("💳 Payment: %s\n\nSend to %s\nWait for confirmation", price(amount), mention(adminUsername))
}

func resolutionAdminText(outcome model.PaymentOutcome, requester, planName string, amount int64) string {
	switch outcome {
	case model.OutcomeConfirmed:
		return fmt.Sprintf("✅ CONFIRMED\n\nUser: %s\nPlan: %s\nAmount: %s", mention(requester), planName, price(amount))
	case model.OutcomeExpired:
		return fmt.Sprintf("⌛ EXPIRED\n\nUser: %s\nPlan: %s", mention(requester), planName)
	default:
		return fmt.Sprintf("❌ REJECTED\n\nUser: %s", mention(requester))
	}
}

func resolutionUserText(outcome model.PaymentOutcome, planName string, days int, adminUsername string) string {
	switch outcome {
	case model.OutcomeConfirmed:
		return fmt.Sprintf("🎉 PREMIUM ACTIVATED!\n\nPlan: %s\nDuration: %d days\n\n/status", planName, days)
	case model.OutcomeExpired:
		return fmt.Sprintf("⌛ Your payment request for %s expired without confirmation\n\nContact %s or use /premium again",
			planName, mention(adminUsername))
	default:
		return fmt.Sprintf("❌ Payment rejected\n\nContact %s", mention(adminUsername))
	}
}

func grantAdminText(userID int64, days int) string {
	return fmt.Sprintf("✅ APPROVED\n\nID: %d\nDays: %d", userID, days)
}

func grantUserText(days int) string {
	return fmt.Sprintf("🎉 PREMIUM by ADMIN!\n\nDays: %d\n\n/status", days)
}

func pendingListText(pending []dto.PaymentCreatedNotice, loc *time.Location) string {
	if len(pending) == 0 {
		return "📭 No pending payment requests"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🧾 Pending requests: %d\n", len(pending))
	for _, p := range pending {
		fmt.Fprintf(&b, "\n%s (%d) %s %s at %s",
			mention(p.Requester), p.UserID, p.PlanName, price(p.Amount), p.CreatedAt.In(loc).Format(dateTimeLayout))
	}
	return b.String()
}

const approveUsage = "Usage: /approve <user_id> <days>"

func errorText(err error) string {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return "⛔ Admin only"
	case errors.Is(err, service.ErrNotFound):
		return "⚠️ This request was already handled or no longer exists"
	case errors.Is(err, service.ErrInvalidArgument):
		if errors.Is(err, errApproveUsage) {
			return approveUsage
		}
		return "❌ Invalid input"
	default:
		return "⚠️ Something went wrong, please try again later"
	}
}
