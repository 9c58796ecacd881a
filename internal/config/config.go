package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Finance  FinanceConfig  `mapstructure:"finance"`
	Guard    GuardConfig    `mapstructure:"guard"`
	Cron     CronConfig     `mapstructure:"cron"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	WorkerID int64  `mapstructure:"worker_id"`
	Mode     string `mapstructure:"mode"`
}

type LogConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Settlement string `mapstructure:"settlement"`
	Withdrawal string `mapstructure:"withdrawal"`
	Job        string `mapstructure:"job"`
}

type BusinessConfig struct {
	OrderTimeoutMinutes int `mapstructure:"order_timeout_minutes"`
	MaxRetryCount       int `mapstructure:"max_retry_count"`
}

// FinanceConfig 资金规则常量，金额类字段用字符串承载，由服务层转为 decimal
type FinanceConfig struct {
	MaxTeamLayer           int    `mapstructure:"max_team_layer"`
	MaxMemberLevel         int    `mapstructure:"max_member_level"`
	MaxPointsValue         string `mapstructure:"max_points_value"`
	UnilevelCap            string `mapstructure:"unilevel_cap"`
	RewardRate             string `mapstructure:"reward_rate"`
	CompanyPointsRate      string `mapstructure:"company_points_rate"`
	MerchantPointsRate     string `mapstructure:"merchant_points_rate"`
	TaxRate                string `mapstructure:"tax_rate"`
	ManualAuditThreshold   string `mapstructure:"manual_audit_threshold"`
	CouponValidDays        int    `mapstructure:"coupon_valid_days"`
	MaxMemberOrdersPerDay  int    `mapstructure:"max_member_orders_per_day"`
	PlatformMerchantID     int64  `mapstructure:"platform_merchant_id"`
	DirectorDirectRequired int    `mapstructure:"director_direct_required"`
	DirectorTeamRequired   int    `mapstructure:"director_team_required"`
}

// GuardConfig 下单防重配置
type GuardConfig struct {
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	RecentWindow   time.Duration `mapstructure:"recent_window"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type CronConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	WeeklySubsidy     string `mapstructure:"weekly_subsidy"`
	UnilevelDividend  string `mapstructure:"unilevel_dividend"`
	CouponExpiry      string `mapstructure:"coupon_expiry"`
	DirectorPromotion string `mapstructure:"director_promotion"`
	// LockTTL 任务分布式锁的过期时间，需大于单次任务最长执行时间
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.env", "development")
	v.SetDefault("log.level", "info")

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.database", "mall_ledger")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.settlement", "ledger.settlement")
	v.SetDefault("kafka.topic.withdrawal", "ledger.withdrawal")
	v.SetDefault("kafka.topic.job", "ledger.job")

	v.SetDefault("business.order_timeout_minutes", 30)
	v.SetDefault("business.max_retry_count", 5)

	v.SetDefault("finance.max_team_layer", 10)
	v.SetDefault("finance.max_member_level", 6)
	v.SetDefault("finance.max_points_value", "0.02")
	v.SetDefault("finance.unilevel_cap", "10000")
	v.SetDefault("finance.reward_rate", "0.5")
	v.SetDefault("finance.company_points_rate", "0.20")
	v.SetDefault("finance.merchant_points_rate", "0.20")
	v.SetDefault("finance.tax_rate", "0.06")
	v.SetDefault("finance.manual_audit_threshold", "5000")
	v.SetDefault("finance.coupon_valid_days", 30)
	v.SetDefault("finance.max_member_orders_per_day", 2)
	v.SetDefault("finance.platform_merchant_id", 0)
	v.SetDefault("finance.director_direct_required", 3)
	v.SetDefault("finance.director_team_required", 10)

	v.SetDefault("guard.lock_ttl", 5*time.Second)
	v.SetDefault("guard.recent_window", 60*time.Second)
	v.SetDefault("guard.idempotency_ttl", 24*time.Hour)

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.weekly_subsidy", "0 0 * * 6")
	v.SetDefault("cron.unilevel_dividend", "0 0 1 * *")
	v.SetDefault("cron.coupon_expiry", "0 3 * * *")
	v.SetDefault("cron.director_promotion", "30 3 * * *")
	v.SetDefault("cron.lock_ttl", 30*time.Minute)
}

// LoadConfig 加载配置文件，文件缺失时使用默认值和环境变量（LEDGER_ 前缀）
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 返回全部取默认值的配置，测试和命令行工具使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}
