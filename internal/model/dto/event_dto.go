package dto

import "time"

const (
	ChatPrivate    = "private"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
)

// CommandEvent 聊天网关转发的一条文本消息
type CommandEvent struct {
	UserID      int64     `json:"user_id" binding:"required"`
	DisplayName string    `json:"display_name"`
	ChatID      int64     `json:"chat_id" binding:"required"`
	ChatType    string    `json:"chat_type" binding:"required,oneof=private group supergroup"`
	RawText     string    `json:"raw_text"`
	MessageID   int64     `json:"message_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsGroup 只有群聊消息参与计数
func (e *CommandEvent) IsGroup() bool {
	return e.ChatType == ChatGroup || e.ChatType == ChatSupergroup
}

// CallbackEvent 内联按钮回调（购买 / 确认 / 拒绝）
type CallbackEvent struct {
	UserID      int64  `json:"user_id" binding:"required"`
	DisplayName string `json:"display_name"`
	ChatID      int64  `json:"chat_id"`
	MessageID   int64  `json:"message_id"`
	Data        string `json:"data" binding:"required"`
}
