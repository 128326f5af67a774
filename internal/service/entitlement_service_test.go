package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/quota_relay/internal/model"
	"github.com/qs3c/quota_relay/internal/testutil"
)

func TestPlanForDays(t *testing.T) {
	assert.Equal(t, model.PlanWeekly, PlanForDays(7))
	assert.Equal(t, model.PlanMonthly, PlanForDays(30))
	assert.Equal(t, model.PlanCustom, PlanForDays(3))
	assert.Equal(t, model.PlanCustom, PlanForDays(365))
}

func TestEntitlementService_GrantAndExpire(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	testutil.TestAccount(t, env.db, 1, "2024-01-15")

	grantedAt := env.clock.Now()
	ent, err := env.entitlements.Grant(ctx, 1, model.PlanWeekly, 7, 0, model.SourceAdminGranted)
	require.NoError(t, err)
	assert.True(t, grantedAt.Add(7*24*time.Hour).Equal(ent.ExpiresAt))

	// 到期前一直有效
	for _, offset := range []time.Duration{0, time.Hour, 6 * 24 * time.Hour, 7*24*time.Hour - time.Second} {
		env.clock.Set(grantedAt.Add(offset))
		account, err := env.accountRepo.GetByUserID(ctx, 1)
		require.NoError(t, err)

		active, err := env.entitlements.IsActive(ctx, account)
		require.NoError(t, err)
		assert.True(t, active, "offset %s", offset)
	}

	// 到期时刻即失效，并被清除
	env.clock.Set(grantedAt.Add(7 * 24 * time.Hour))
	account, err := env.accountRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)

	active, err := env.entitlements.IsActive(ctx, account)
	require.NoError(t, err)
	assert.False(t, active)
	assert.Nil(t, account.Entitlement)

	stored, err := env.accountRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, stored.Entitlement)
	assert.Len(t, stored.EntitlementHistory, 1)

	// 清除后保持失效
	env.clock.Set(grantedAt.Add(8 * 24 * time.Hour))
	active, err = env.entitlements.IsActive(ctx, stored)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestEntitlementService_GrantOverwrites(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	testutil.TestAccount(t, env.db, 1, "2024-01-15")

	_, err := env.entitlements.Grant(ctx, 1, model.PlanMonthly, 30, 500, model.SourcePurchaseConfirmed)
	require.NoError(t, err)

	env.clock.Advance(24 * time.Hour)
	second, err := env.entitlements.Grant(ctx, 1, model.PlanWeekly, 7, 300, model.SourcePurchaseConfirmed)
	require.NoError(t, err)

	account, err := env.accountRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, account.Entitlement)
	// 不叠加：到期时间只取决于最后一次授予
	assert.True(t, second.ExpiresAt.Equal(account.Entitlement.ExpiresAt))
	assert.Equal(t, model.PlanWeekly, account.Entitlement.Plan)
	assert.Len(t, account.EntitlementHistory, 2)
}

func TestEntitlementService_GrantRejectsNonPositiveDays(t *testing.T) {
	env := setupServices(t)

	_, err := env.entitlements.Grant(context.Background(), 1, model.PlanCustom, 0, 0, model.SourceAdminGranted)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEntitlementService_IsActive_NoEntitlement(t *testing.T) {
	env := setupServices(t)
	account := testutil.TestAccount(t, env.db, 1, "2024-01-15")

	active, err := env.entitlements.IsActive(context.Background(), account)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestEntitlementService_ConcurrentClearIsIdempotent(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	past := env.clock.Now().AddDate(0, 0, -10)
	testutil.TestAccount(t, env.db, 1, "2024-01-15", testutil.WithEntitlement(&model.Entitlement{
		Plan:         model.PlanWeekly,
		GrantedAt:    past,
		ExpiresAt:    past.AddDate(0, 0, 7),
		DurationDays: 7,
	}))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			account, err := env.accountRepo.GetByUserID(ctx, 1)
			if err != nil {
				errs <- err
				return
			}
			active, err := env.entitlements.IsActive(ctx, account)
			if err != nil {
				errs <- err
				return
			}
			if active {
				errs <- assert.AnError
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestEntitlementService_ExpiredClearDoesNotRemoveNewerGrant(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	past := env.clock.Now().AddDate(0, 0, -10)
	testutil.TestAccount(t, env.db, 1, "2024-01-15", testutil.WithEntitlement(&model.Entitlement{
		Plan:         model.PlanWeekly,
		GrantedAt:    past,
		ExpiresAt:    past.AddDate(0, 0, 7),
		DurationDays: 7,
	}))

	// 读到过期会员之后，另一个请求续费
	stale, err := env.accountRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	_, err = env.entitlements.Grant(ctx, 1, model.PlanMonthly, 30, 500, model.SourcePurchaseConfirmed)
	require.NoError(t, err)

	active, err := env.entitlements.IsActive(ctx, stale)
	require.NoError(t, err)
	assert.False(t, active)

	fresh, err := env.accountRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, fresh.Entitlement)
	assert.Equal(t, model.PlanMonthly, fresh.Entitlement.Plan)
}
