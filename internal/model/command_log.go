package model

import (
	"time"
)

// CommandLog 计数命令的审计记录，只追加
type CommandLog struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      int64     `gorm:"not null;index:idx_command_logs_user_time,priority:1" json:"user_id"`
	DisplayName string    `gorm:"size:100" json:"display_name"`
	Command     string    `gorm:"size:100;not null" json:"command"`
	ChatID      int64     `gorm:"not null" json:"chat_id"`
	CreatedAt   time.Time `gorm:"index:idx_command_logs_user_time,priority:2" json:"created_at"`
}

func (CommandLog) TableName() string {
	return "command_logs"
}
