package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/qs3c/quota_relay/config"
	"github.com/qs3c/quota_relay/internal/bot"
	"github.com/qs3c/quota_relay/internal/database"
	"github.com/qs3c/quota_relay/internal/pkg/clock"
	"github.com/qs3c/quota_relay/internal/pkg/cron"
	"github.com/qs3c/quota_relay/internal/pkg/logger"
	"github.com/qs3c/quota_relay/internal/pkg/pubsub"
	"github.com/qs3c/quota_relay/internal/pkg/queue"
	"github.com/qs3c/quota_relay/internal/repository"
	"github.com/qs3c/quota_relay/internal/service"
	"github.com/qs3c/quota_relay/internal/worker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log).With().Str("service", "worker").Logger()

	clk, err := clock.New(cfg.Quota.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Quota.Timezone).Msg("invalid quota timezone")
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	log.Info().Msg("database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("redis connected")

	// 初始化 Queue 和 Pub/Sub
	eventQueue := queue.NewQueue(rdb, cfg.Queue.EventQueue)
	publisher := pubsub.NewPublisher(rdb, cfg.Queue.NoticeChannel)

	// 初始化 Repository
	accountRepo := repository.NewAccountRepository(db)
	commandLogRepo := repository.NewCommandLogRepository(db)
	paymentRepo := repository.NewPaymentRepository(rdb)

	// 初始化 Service
	entitlementService := service.NewEntitlementService(accountRepo, clk, log)
	quotaService := service.NewQuotaService(accountRepo, entitlementService, clk, cfg, log)
	accountService := service.NewAccountService(accountRepo, commandLogRepo, entitlementService, clk, cfg, log)
	paymentService := service.NewPaymentService(paymentRepo, entitlementService, clk, cfg, log)

	// 通知发布到 Redis 频道，由网关订阅发送
	eventRouter := bot.NewRouter(accountService, quotaService, entitlementService, paymentService,
		publisher, clk, cfg, log)

	// 定时任务：过期购买请求 + 每日汇总
	cronService, err := cron.NewService(eventRouter, accountRepo, commandLogRepo, paymentRepo, clk, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init cron service")
	}
	cronService.Start()
	defer cronService.Stop()

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	pool := worker.NewPool(eventQueue, worker.NewProcessor(eventRouter, cfg.Database.QueryTimeout, log), cfg.Queue.MaxWorkers, log)
	pool.Run(ctx)

	log.Info().Msg("worker shutdown complete")
}
