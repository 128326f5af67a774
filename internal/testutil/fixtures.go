package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/quota_relay/internal/model"
)

// TestAccount 创建测试账户，默认是今天之前注册的老用户
func TestAccount(t *testing.T, db *gorm.DB, userID int64, today string, opts ...func(*model.Account)) *model.Account {
	t.Helper()

	account := &model.Account{
		UserID:             userID,
		DisplayName:        fmt.Sprintf("user_%d", userID),
		MessageCount:       0,
		LastResetDate:      today,
		IsNewUser:          false,
		RegistrationDate:   "2020-01-01",
		RegisteredAt:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EntitlementHistory: []model.Entitlement{},
	}

	for _, opt := range opts {
		opt(account)
	}

	if err := db.Create(account).Error; err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}

	return account
}

// WithMessageCount 设置今日已用次数
func WithMessageCount(count int) func(*model.Account) {
	return func(a *model.Account) {
		a.MessageCount = count
	}
}

// WithLastResetDate 设置上次重置日期
func WithLastResetDate(date string) func(*model.Account) {
	return func(a *model.Account) {
		a.LastResetDate = date
	}
}

// WithNewUser 设置为某天注册的新用户
func WithNewUser(registrationDate string) func(*model.Account) {
	return func(a *model.Account) {
		a.IsNewUser = true
		a.RegistrationDate = registrationDate
	}
}

// WithEntitlement 设置当前会员
func WithEntitlement(ent *model.Entitlement) func(*model.Account) {
	return func(a *model.Account) {
		a.Entitlement = ent
		expires := ent.ExpiresAt.Unix()
		a.EntitlementExpiresAt = &expires
		a.EntitlementHistory = append(a.EntitlementHistory, *ent)
	}
}
