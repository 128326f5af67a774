package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/quota_relay/config"
	"github.com/qs3c/quota_relay/internal/api"
	"github.com/qs3c/quota_relay/internal/api/handler"
	"github.com/qs3c/quota_relay/internal/bot"
	"github.com/qs3c/quota_relay/internal/database"
	"github.com/qs3c/quota_relay/internal/pkg/clock"
	"github.com/qs3c/quota_relay/internal/pkg/logger"
	"github.com/qs3c/quota_relay/internal/repository"
	"github.com/qs3c/quota_relay/internal/service"
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
	log := logger.New(cfg.Log).With().Str("service", "server").Logger()

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

	// 初始化 Repository
	accountRepo := repository.NewAccountRepository(db)
	commandLogRepo := repository.NewCommandLogRepository(db)
	paymentRepo := repository.NewPaymentRepository(rdb)

	// 初始化 Service
	entitlementService := service.NewEntitlementService(accountRepo, clk, log)
	quotaService := service.NewQuotaService(accountRepo, entitlementService, clk, cfg, log)
	accountService := service.NewAccountService(accountRepo, commandLogRepo, entitlementService, clk, cfg, log)
	paymentService := service.NewPaymentService(paymentRepo, entitlementService, clk, cfg, log)

	// 同步接口直接在响应里返回通知
	eventRouter := bot.NewRouter(accountService, quotaService, entitlementService, paymentService,
		bot.NopNotifier{}, clk, cfg, log)

	// 初始化 Router
	router := api.NewRouter(
		handler.NewEventHandler(eventRouter),
		handler.NewQuotaHandler(quotaService, cfg.Bot.AdminUserID),
		handler.NewAdminHandler(eventRouter, paymentService, accountService),
		cfg,
		log,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close redis")
	}
	log.Info().Msg("server stopped")
}
