package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mallledger/internal/config"
	"mallledger/internal/handler"
	"mallledger/internal/infrastructure/cache"
	"mallledger/internal/infrastructure/database"
	"mallledger/internal/infrastructure/lock"
	"mallledger/internal/infrastructure/mq"
	"mallledger/internal/job"
	"mallledger/internal/service"
	"mallledger/pkg/idgen"
	"mallledger/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Log.Env, cfg.Log.Level)
	defer logger.Sync()

	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		logger.Fatal("初始化 ID 生成器失败", zap.Error(err))
	}

	rules, err := service.NewRules(cfg.Finance)
	if err != nil {
		logger.Fatal("资金规则配置错误", zap.Error(err))
	}

	db := database.InitMySQL(&cfg.MySQL, cfg.Log.Env)
	redisClient := cache.InitRedis(&cfg.Redis)
	defer redisClient.Close()

	// Kafka 不可用时消息留在 outbox，恢复后重新投递
	var publisher mq.Publisher
	kafkaPublisher, err := mq.NewKafkaPublisher(&cfg.Kafka)
	if err != nil {
		logger.Warn("连接 Kafka 失败，消息暂存 outbox", zap.Error(err))
		publisher = mq.NopPublisher{Err: err}
	} else {
		publisher = kafkaPublisher
	}
	defer publisher.Close()

	svc := service.NewServices(db, cfg, rules,
		lock.NewRedisLocker(redisClient),
		cache.NewIdempotencyStore(redisClient, cfg.Guard.IdempotencyTTL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Ledger.SeedPools(ctx); err != nil {
		logger.Fatal("初始化资金池失败", zap.Error(err))
	}

	scheduler := job.NewScheduler(db, lock.NewJobMutex(redisClient), cfg.Cron.LockTTL)
	if err := job.RegisterLedgerJobs(scheduler, cfg.Cron, svc); err != nil {
		logger.Fatal("注册定时任务失败", zap.Error(err))
	}
	scheduler.Start(ctx)

	outboxSender := job.NewOutboxSender(db, cfg, publisher)
	go outboxSender.Start(ctx)

	orderTimeoutJob := job.NewOrderTimeoutJob(svc.Orders)
	go orderTimeoutJob.Start(ctx)

	compensateJob := job.NewSettlementCompensateJob(db, svc.Settlement)
	go compensateJob.Start(ctx)

	router := handler.SetupRouter(db, svc, scheduler)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务...")

	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务关闭异常", zap.Error(err))
	}

	logger.Info("服务已关闭")
}
