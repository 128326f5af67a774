package dto

import (
	"time"

	"github.com/qs3c/quota_relay/internal/model"
)

type NoticeType string

const (
	NoticeAdmission       NoticeType = "admission"
	NoticeBlocked         NoticeType = "blocked"
	NoticePremiumBypass   NoticeType = "premium_bypass"
	NoticePaymentCreated  NoticeType = "payment_created"
	NoticePaymentPending  NoticeType = "payment_pending"
	NoticePaymentResolved NoticeType = "payment_resolved"
	NoticeAdminGranted    NoticeType = "admin_granted"
	NoticeStatus          NoticeType = "status"
	NoticeWelcome         NoticeType = "welcome"
	NoticeHelp            NoticeType = "help"
	NoticePlanMenu        NoticeType = "plan_menu"
	NoticePendingList     NoticeType = "pending_list"
	NoticeError           NoticeType = "error"
)

// Notice 交给聊天网关渲染发送的出站消息，只携带数据
type Notice struct {
	Type            NoticeType `json:"type"`
	ChatID          int64      `json:"chat_id"`
	ReplyTo         int64      `json:"reply_to,omitempty"`
	DeleteMessageID int64      `json:"delete_message_id,omitempty"` // 网关有权限时可删除被拦截的消息
	Mention         string     `json:"mention,omitempty"`
	Text            string     `json:"text,omitempty"`

	Admission      *AdmissionNotice       `json:"admission,omitempty"`
	Block          *BlockNotice           `json:"block,omitempty"`
	PaymentCreated *PaymentCreatedNotice  `json:"payment_created,omitempty"`
	Resolution     *ResolutionNotice      `json:"resolution,omitempty"`
	Grant          *GrantNotice           `json:"grant,omitempty"`
	Status         *QuotaInfo             `json:"status,omitempty"`
	Plans          []PlanInfo             `json:"plans,omitempty"`
	Pending        []PaymentCreatedNotice `json:"pending,omitempty"`
}

type AdmissionNotice struct {
	Remaining int        `json:"remaining"`
	Limit     int        `json:"limit"`
	IsNewUser bool       `json:"is_new_user"`
	LastOne   bool       `json:"last_one"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
}

type BlockNotice struct {
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

type PaymentCreatedNotice struct {
	RequestID string    `json:"request_id"`
	UserID    int64     `json:"user_id"`
	Plan      string    `json:"plan"`
	PlanName  string    `json:"plan_name"`
	Amount    int64     `json:"amount"`
	Requester string    `json:"requester"`
	CreatedAt time.Time `json:"created_at"`
}

type ResolutionNotice struct {
	RequestID string               `json:"request_id"`
	UserID    int64                `json:"user_id"`
	Outcome   model.PaymentOutcome `json:"outcome"`
	Plan      string               `json:"plan"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
}

type GrantNotice struct {
	UserID    int64     `json:"user_id"`
	Days      int       `json:"days"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PlanInfo struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	DurationDays int    `json:"duration_days"`
}
