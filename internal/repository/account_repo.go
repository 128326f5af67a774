package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/quota_relay/internal/model"
)

// 允许做原子自增的计数列
var counterColumns = map[string]bool{
	"message_count":  true,
	"total_commands": true,
}

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// CreateIfAbsent 不存在时插入，已存在则不做任何修改，返回是否新建
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, account *model.Account) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(account)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *AccountRepository) UpdateFields(ctx context.Context, userID int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).Where("user_id = ?", userID).Updates(fields).Error
}

// Increment 原子自增计数列
func (r *AccountRepository) Increment(ctx context.Context, userID int64, column string, delta int) error {
	if !counterColumns[column] {
		return fmt.Errorf("column %q is not a counter", column)
	}
	return r.db.WithContext(ctx).Model(&model.Account{}).Where("user_id = ?", userID).
		Update(column, gorm.Expr(column+" + ?", delta)).Error
}

// ResetIfNewDay 上次重置日期不是 today 时清零计数；
// 注册日不是 today 的账户同时撤销新用户身份，之后不会再恢复
func (r *AccountRepository) ResetIfNewDay(ctx context.Context, userID int64, today string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("user_id = ? AND last_reset_date <> ?", userID, today).
		Updates(map[string]interface{}{
			"message_count":   0,
			"last_reset_date": today,
			"is_new_user":     gorm.Expr("CASE WHEN registration_date = ? THEN is_new_user ELSE ? END", today, false),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AdmitIfUnderLimit 仅当计数属于 today 且未达上限时加一，返回自增后的计数与是否放行。
// 自增与读取在同一事务里，UPDATE 持有的行锁保证读到的是本次的计数
func (r *AccountRepository) AdmitIfUnderLimit(ctx context.Context, userID int64, today string, limit int) (int, bool, error) {
	var (
		used     int
		admitted bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Account{}).
			Where("user_id = ? AND last_reset_date = ? AND message_count < ?", userID, today, limit).
			Update("message_count", gorm.Expr("message_count + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return nil
		}

		var counts []int
		if err := tx.Model(&model.Account{}).Where("user_id = ?", userID).
			Pluck("message_count", &counts).Error; err != nil {
			return err
		}
		if len(counts) != 1 {
			return gorm.ErrRecordNotFound
		}
		used, admitted = counts[0], true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return used, admitted, nil
}

// SetEntitlement 覆盖当前会员并追加历史，账户不存在时用 fallback 新建
func (r *AccountRepository) SetEntitlement(ctx context.Context, userID int64, ent *model.Entitlement, fallback *model.Account) (*model.Account, error) {
	var saved model.Account

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&saved).Error
		if errors.Is(err, gorm.ErrRecordNotFound) && fallback != nil {
			saved = *fallback
			applyEntitlement(&saved, ent)
			return tx.Create(&saved).Error
		}
		if err != nil {
			return err
		}

		applyEntitlement(&saved, ent)
		// 只写会员相关列，不覆盖并发写入的计数
		return tx.Model(&saved).
			Select("entitlement", "entitlement_expires_at", "entitlement_history").
			Updates(&saved).Error
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func applyEntitlement(account *model.Account, ent *model.Entitlement) {
	current := *ent
	expires := current.ExpiresAt.Unix()
	account.Entitlement = &current
	account.EntitlementExpiresAt = &expires
	account.EntitlementHistory = append(account.EntitlementHistory, current)
}

// ClearEntitlementIfExpired 仅当会员在 nowUnix 时已过期才清除，重复调用无副作用
func (r *AccountRepository) ClearEntitlementIfExpired(ctx context.Context, userID int64, nowUnix int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("user_id = ? AND entitlement_expires_at IS NOT NULL AND entitlement_expires_at <= ?", userID, nowUnix).
		Updates(map[string]interface{}{
			"entitlement":            gorm.Expr("NULL"),
			"entitlement_expires_at": gorm.Expr("NULL"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CountActiveEntitlements 统计 nowUnix 时仍有效的会员数
func (r *AccountRepository) CountActiveEntitlements(ctx context.Context, nowUnix int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("entitlement_expires_at > ?", nowUnix).Count(&count).Error
	return count, err
}

func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Account{}).Count(&count).Error
	return count, err
}
