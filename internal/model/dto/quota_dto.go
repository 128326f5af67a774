package dto

import "github.com/qs3c/quota_relay/internal/model"

// QuotaInfo 用户额度信息（/status 与 GET /accounts/:user_id/quota）
type QuotaInfo struct {
	UserID        int64              `json:"user_id"`
	IsPremium     bool               `json:"is_premium"`
	Entitlement   *model.Entitlement `json:"entitlement,omitempty"`
	DailyLimit    int                `json:"daily_limit"`
	DailyUsed     int                `json:"daily_used"`
	DailyRemain   int                `json:"daily_remain"`
	IsNewUser     bool               `json:"is_new_user"`
	ResetAt       string             `json:"reset_at"`
	TotalCommands int64              `json:"total_commands"`
}

// GrantRequest 管理员直接授予会员
type GrantRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	Days   int   `json:"days" binding:"required"`
}

// ResolvePaymentRequest 管理员处理购买请求
type ResolvePaymentRequest struct {
	Action string `json:"action" binding:"required,oneof=confirm reject"`
}

// DispatchResponse 同步分发事件的返回
type DispatchResponse struct {
	Notices []Notice `json:"notices"`
}
