package model

import (
	"time"
)

// Account 群聊用户的额度账户，按 Telegram 用户 ID 唯一
type Account struct {
	UserID               int64         `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	DisplayName          string        `gorm:"size:100" json:"display_name"`
	MessageCount         int           `gorm:"not null" json:"message_count"`
	LastResetDate        string        `gorm:"size:10;not null" json:"last_reset_date"`
	IsNewUser            bool          `gorm:"not null" json:"is_new_user"`
	RegistrationDate     string        `gorm:"size:10;not null" json:"registration_date"`
	RegisteredAt         time.Time     `json:"registered_at"`
	Entitlement          *Entitlement  `gorm:"type:text;serializer:json" json:"entitlement,omitempty"`
	EntitlementExpiresAt *int64        `gorm:"index" json:"-"` // unix 秒，用于条件清除
	EntitlementHistory   []Entitlement `gorm:"type:text;serializer:json" json:"entitlement_history"`
	TotalCommands        int64         `gorm:"not null" json:"total_commands"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
