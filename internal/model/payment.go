package model

import (
	"fmt"
	"time"
)

type PaymentState string

const (
	PaymentPending  PaymentState = "pending"
	PaymentResolved PaymentState = "resolved"
)

// PaymentRequest 用户发起的购买请求，存于 Redis，管理员确认或拒绝后删除
type PaymentRequest struct {
	ID            string       `json:"id"`
	UserID        int64        `json:"user_id"`
	RequesterName string       `json:"requester_name"`
	Plan          string       `json:"plan"` // 套餐 key：week / month
	Amount        int64        `json:"amount"`
	CreatedAt     time.Time    `json:"created_at"`
	State         PaymentState `json:"state"`
}

// PaymentRequestID 由用户、套餐和创建时刻组成
func PaymentRequestID(userID int64, plan string, createdAt time.Time) string {
	return fmt.Sprintf("%d_%s_%d", userID, plan, createdAt.UnixNano())
}

type PaymentAction string

const (
	ActionConfirm PaymentAction = "confirm"
	ActionReject  PaymentAction = "reject"
)

type PaymentOutcome string

const (
	OutcomeConfirmed PaymentOutcome = "confirmed"
	OutcomeRejected  PaymentOutcome = "rejected"
	OutcomeExpired   PaymentOutcome = "expired"
)
