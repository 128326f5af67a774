package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/quota_relay/internal/model"
)

type CommandLogRepository struct {
	db *gorm.DB
}

func NewCommandLogRepository(db *gorm.DB) *CommandLogRepository {
	return &CommandLogRepository{db: db}
}

func (r *CommandLogRepository) Create(ctx context.Context, log *model.CommandLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	log.CreatedAt = log.CreatedAt.UTC()
	return r.db.WithContext(ctx).Create(log).Error
}

// ListByUser 按时间倒序返回用户最近的命令
func (r *CommandLogRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]model.CommandLog, error) {
	var logs []model.CommandLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// CountBetween 统计 [from, to) 内的命令数，写入时 CreatedAt 统一为 UTC
func (r *CommandLogRepository) CountBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CommandLog{}).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Count(&count).Error
	return count, err
}
