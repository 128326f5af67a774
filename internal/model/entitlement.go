package model

import (
	"time"
)

type PlanTag string

const (
	PlanWeekly  PlanTag = "weekly"
	PlanMonthly PlanTag = "monthly"
	PlanCustom  PlanTag = "custom"
)

type EntitlementSource string

const (
	SourcePurchaseConfirmed EntitlementSource = "purchase_confirmed"
	SourceAdminGranted      EntitlementSource = "admin_granted"
)

// Entitlement 会员权益，内嵌在 Account 中，不单独成表
type Entitlement struct {
	Plan         PlanTag           `json:"plan"`
	GrantedAt    time.Time         `json:"granted_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	DurationDays int               `json:"duration_days"`
	AmountPaid   int64             `json:"amount_paid"`
	Source       EntitlementSource `json:"source"`
}

// ActiveAt 在给定时刻是否仍有效
func (e *Entitlement) ActiveAt(now time.Time) bool {
	return e != nil && e.ExpiresAt.After(now)
}
