package service

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/qs3c/quota_relay/config"
	"github.com/qs3c/quota_relay/internal/pkg/clock"
	"github.com/qs3c/quota_relay/internal/repository"
	"github.com/qs3c/quota_relay/internal/testutil"
)

const testAdminID int64 = 1000

var ist = time.FixedZone("IST", 5*3600+30*60)

type testEnv struct {
	db           *gorm.DB
	clock        *clock.Fake
	cfg          *config.Config
	accountRepo  *repository.AccountRepository
	paymentRepo  *repository.PaymentRepository
	entitlements *EntitlementService
	quota        *QuotaService
	accounts     *AccountService
	payments     *PaymentService
}

func testConfig() *config.Config {
	return &config.Config{
		Bot: config.BotConfig{
			AdminUserID:   testAdminID,
			AdminUsername: "admin",
		},
		Quota: config.QuotaConfig{
			DailyLimit:   1,
			NewUserLimit: 5,
			Timezone:     "Asia/Kolkata",
		},
		Plans: config.DefaultPlans(),
		Payment: config.PaymentConfig{
			RequestTTL: 72 * time.Hour,
		},
	}
}

func setupServices(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	rdb, _ := testutil.SetupTestRedis(t)

	env := &testEnv{
		db:          db,
		clock:       clock.NewFake(time.Date(2024, 1, 15, 10, 0, 0, 0, ist)),
		cfg:         testConfig(),
		accountRepo: repository.NewAccountRepository(db),
		paymentRepo: repository.NewPaymentRepository(rdb),
	}
	log := zerolog.Nop()

	env.entitlements = NewEntitlementService(env.accountRepo, env.clock, log)
	env.quota = NewQuotaService(env.accountRepo, env.entitlements, env.clock, env.cfg, log)
	env.accounts = NewAccountService(env.accountRepo, repository.NewCommandLogRepository(db), env.entitlements, env.clock, env.cfg, log)
	env.payments = NewPaymentService(env.paymentRepo, env.entitlements, env.clock, env.cfg, log)

	return env
}
