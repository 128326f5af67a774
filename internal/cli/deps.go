package cli

import (
	"fmt"
	"io"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/qs3c/quota_relay/config"
	"github.com/qs3c/quota_relay/internal/bot"
	"github.com/qs3c/quota_relay/internal/database"
	"github.com/qs3c/quota_relay/internal/pkg/clock"
	"github.com/qs3c/quota_relay/internal/pkg/logger"
	"github.com/qs3c/quota_relay/internal/pkg/pubsub"
	"github.com/qs3c/quota_relay/internal/repository"
	"github.com/qs3c/quota_relay/internal/service"
)

type rootOptions struct {
	configPath string
	output     string
	cfg        *config.Config
	log        zerolog.Logger
}

func (o *rootOptions) loadConfig() error {
	if err := validOutput(o.output); err != nil {
		return err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	o.cfg = cfg
	o.log = logger.New(cfg.Log).With().Str("service", "cli").Logger()
	return nil
}

func (o *rootOptions) print(w io.Writer, data interface{}) error {
	return printOutput(w, o.output, data)
}

// deps 需要存储的子命令按需连接
type deps struct {
	db    *gorm.DB
	redis *redis.Client
	clock clock.Clock

	accountRepo    *repository.AccountRepository
	commandLogRepo *repository.CommandLogRepository
	paymentRepo    *repository.PaymentRepository
	quota          *service.QuotaService
	accounts       *service.AccountService
	payments       *service.PaymentService
	router         *bot.Router
}

func (o *rootOptions) connect() (*deps, error) {
	clk, err := clock.New(o.cfg.Quota.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid quota timezone: %w", err)
	}

	db, err := database.NewMySQL(&o.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	rdb, err := database.NewRedis(&o.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	d := &deps{
		db:             db,
		redis:          rdb,
		clock:          clk,
		accountRepo:    repository.NewAccountRepository(db),
		commandLogRepo: repository.NewCommandLogRepository(db),
		paymentRepo:    repository.NewPaymentRepository(rdb),
	}

	entitlements := service.NewEntitlementService(d.accountRepo, clk, o.log)
	d.quota = service.NewQuotaService(d.accountRepo, entitlements, clk, o.cfg, o.log)
	d.accounts = service.NewAccountService(d.accountRepo, d.commandLogRepo, entitlements, clk, o.cfg, o.log)
	d.payments = service.NewPaymentService(d.paymentRepo, entitlements, clk, o.cfg, o.log)

	// 管理操作产生的通知照常发给网关
	publisher := pubsub.NewPublisher(rdb, o.cfg.Queue.NoticeChannel)
	d.router = bot.NewRouter(d.accounts, d.quota, entitlements, d.payments, publisher, clk, o.cfg, o.log)

	return d, nil
}

func (d *deps) close() {
	if sqlDB, err := d.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = d.redis.Close()
}
