// Package testutil 提供包测试共用的内存数据库与 Redis
package testutil

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"mallledger/internal/infrastructure/database"
	"mallledger/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq int64

// NewDB 每个测试一个独立的内存 SQLite，单连接保证事务内外看到同一个库
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := fmt.Sprintf("file:ledger_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.Models()...))
	return db
}

// NewRedis 启动一个 miniredis 并返回连接它的客户端
func NewRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// CreateUser 直接插入一个用户账本
func CreateUser(t *testing.T, db *gorm.DB, id int64, level int, opts ...func(*model.UserLedger)) *model.UserLedger {
	t.Helper()

	u := &model.UserLedger{ID: id, Name: fmt.Sprintf("user-%d", id), MemberLevel: level}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Link 建立 user -> referrer 推荐关系
func Link(t *testing.T, db *gorm.DB, userID, referrerID int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.ReferralEdge{UserID: userID, ReferrerID: referrerID}).Error)
}

// SetPool 直接设置资金池余额（不写流水，只用于准备数据）
func SetPool(t *testing.T, db *gorm.DB, kind model.PoolKind, balance string) {
	t.Helper()
	pool := model.Pool{PoolType: kind, Name: kind.Name(), Balance: decimal.RequireFromString(balance)}
	require.NoError(t, db.Where(model.Pool{PoolType: kind}).Assign(map[string]interface{}{"balance": pool.Balance}).FirstOrCreate(&pool).Error)
}

// PoolBalance 读取资金池余额
func PoolBalance(t *testing.T, db *gorm.DB, kind model.PoolKind) decimal.Decimal {
	t.Helper()
	var pool model.Pool
	err := db.Where("pool_type = ?", kind).First(&pool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero
	}
	require.NoError(t, err)
	return pool.Balance
}

// User 重新读取用户账本
func User(t *testing.T, db *gorm.DB, id int64) *model.UserLedger {
	t.Helper()
	var u model.UserLedger
	require.NoError(t, db.First(&u, id).Error)
	return &u
}

// Money 断言金额相等，比较前统一到 4 位小数
func Money(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	w := decimal.RequireFromString(want)
	require.Truef(t, w.Equal(got.Round(model.MoneyScale)), "金额不一致: want %s, got %s %v", w.String(), got.String(), msgAndArgs)
}

// StoredPoolBalance 读取资金池余额列的原始存储值，不做任何舍入
func StoredPoolBalance(t *testing.T, db *gorm.DB, kind model.PoolKind) string {
	t.Helper()
	var raw interface{}
	require.NoError(t, db.Raw("SELECT balance FROM finance_pool WHERE pool_type = ?", kind).Row().Scan(&raw))
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v).String()
	case int64:
		return decimal.NewFromInt(v).String()
	case []byte:
		return string(v)
	case string:
		return v
	default:
		t.Fatalf("未知的余额存储类型 %T", raw)
		return ""
	}
}

// ExactMoney 断言原始存储值与期望金额严格相等
func ExactMoney(t *testing.T, want, raw string, msgAndArgs ...interface{}) {
	t.Helper()
	got, err := decimal.NewFromString(raw)
	require.NoError(t, err, "金额无法解析: %s", raw)
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "存储金额不一致: want %s, got %s %v", want, raw, msgAndArgs)
}
