package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"mallledger/internal/config"
	"mallledger/internal/infrastructure/cache"
	"mallledger/internal/infrastructure/database"
	"mallledger/internal/infrastructure/lock"
	"mallledger/internal/job"
	"mallledger/internal/repository"
	"mallledger/internal/service"
	"mallledger/pkg/idgen"
	"mallledger/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	cfgFile  string
	operator string
)

// rootCmd 账本运维工具，直接连库执行，和 HTTP 管理接口共用同一套服务
var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "商城资金账本运维命令行工具",
	Long: `ledgerctl 用于手动执行周补贴、月度分红等定时任务，
调整分配比例与人工干预值，清空资金池以及重新投递失败的 outbox 消息。`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&operator, "operator", os.Getenv("USER"), "操作人，记录在审计字段")
}

// app 命令执行时需要的依赖
type app struct {
	db         *gorm.DB
	redis      *redis.Client
	svc        *service.Services
	scheduler  *job.Scheduler
	outboxRepo *repository.OutboxRepository
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	logger.Init(cfg.Log.Env, cfg.Log.Level)

	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return nil, err
	}
	rules, err := service.NewRules(cfg.Finance)
	if err != nil {
		return nil, fmt.Errorf("资金规则配置错误: %w", err)
	}

	db := database.InitMySQL(&cfg.MySQL, cfg.Log.Env)
	client := cache.InitRedis(&cfg.Redis)
	svc := service.NewServices(db, cfg, rules,
		lock.NewRedisLocker(client),
		cache.NewIdempotencyStore(client, cfg.Guard.IdempotencyTTL))

	scheduler := job.NewScheduler(db, lock.NewJobMutex(client), cfg.Cron.LockTTL)
	// 命令行只做手动触发，不启动 cron
	manual := cfg.Cron
	manual.Enabled = false
	if err := job.RegisterLedgerJobs(scheduler, manual, svc); err != nil {
		return nil, err
	}

	return &app{
		db:         db,
		redis:      client,
		svc:        svc,
		scheduler:  scheduler,
		outboxRepo: repository.NewOutboxRepository(db),
	}, nil
}

func (a *app) Close() {
	_ = a.redis.Close()
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Sync()
}

// withApp 包装需要连库的子命令
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
