package database

import (
	"fmt"
	"time"

	"mallledger/internal/config"
	"mallledger/internal/model"
	"mallledger/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Models 需要迁移的全部表
func Models() []interface{} {
	return []interface{}{
		&model.Pool{},
		&model.Flow{},
		&model.UserLedger{},
		&model.PointLog{},
		&model.ReferralEdge{},
		&model.Order{},
		&model.OrderItem{},
		&model.PendingReward{},
		&model.Coupon{},
		&model.Withdrawal{},
		&model.ManualOverride{},
		&model.SubsidyRecord{},
		&model.JobRun{},
		&model.OutboxMessage{},
	}
}

// InitMySQL 初始化 MySQL 连接并迁移表结构
func InitMySQL(cfg *config.MySQLConfig, logEnv string) *gorm.DB {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	logLevel := gormlogger.Info
	if logEnv == "production" {
		logLevel = gormlogger.Warn
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		logger.Fatal("连接 MySQL 失败", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 DB 失败", zap.Error(err))
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(Models()...); err != nil {
		logger.Fatal("自动迁移表结构失败", zap.Error(err))
	}

	logger.Info("MySQL 连接成功", zap.String("database", cfg.Database))
	return db
}
