package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/config"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/consumer"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/evaluator"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/logger"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/publisher"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/repository"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/service"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/trustomer"
)

const serviceName = "polaris-bg-readings-api"

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 服务端时区
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal("Invalid server timezone",
			zap.String("timezone", cfg.Timezone),
			zap.Error(err),
		)
	}

	// 4. 数据库连接
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database", zap.Error(err))
	}

	// 5. Redis 连接
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// 6. 组装依赖
	readingsRepo := repository.NewPostgresReadingsRepository(db, log)
	patientsRepo := repository.NewPostgresPatientsRepository(db, log)
	alertsRepo := repository.NewPostgresPatientAlertsRepository(db, log)

	pub := publisher.NewRedisPublisher(redisClient, log)
	trustomerClient := trustomer.NewClient(
		cfg.Trustomer.BaseURL,
		cfg.Trustomer.CustomerCode,
		cfg.Trustomer.APIKey,
		time.Duration(cfg.Trustomer.CacheTTL)*time.Second,
		log,
	)

	records := evaluator.NewAlertRecordStore(alertsRepo, pub, log)
	snooze := evaluator.NewSnoozeManager(loc)
	counts := evaluator.NewCountsEngine(readingsRepo, patientsRepo, records, pub, loc, log)
	perc := evaluator.NewPercentagesEngine(patientsRepo, readingsRepo, records, snooze, loc, log)

	glucoseService := service.NewGlucoseService(
		readingsRepo, patientsRepo, counts, perc, snooze, trustomerClient, pub, log,
	)

	hostname, _ := os.Hostname()
	commandConsumer := consumer.NewCommandConsumer(redisClient, glucoseService, hostname, log)

	log.Info("Blood glucose readings service started",
		zap.String("timezone", cfg.Timezone),
		zap.String("customer_code", cfg.Trustomer.CustomerCode),
	)

	// 7. 启动消费者（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerErrChan := make(chan error, 1)
	go func() {
		if err := commandConsumer.Start(ctx); err != nil {
			consumerErrChan <- err
		}
	}()

	// 8. 等待信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel()
	case err := <-consumerErrChan:
		log.Fatal("Consumer error", zap.Error(err))
	}

	log.Info("Blood glucose readings service stopped")
}
