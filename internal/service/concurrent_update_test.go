package service

import (
	"sync/atomic"
	"testing"

	"mallledger/internal/model"
	"mallledger/internal/testutil"
	"mallledger/pkg/errno"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// raceNextUpdate 让下一条针对 table 的 UPDATE 执行前余额被别的事务抢先扣空，执行后再恢复，
// 条件更新因此命中 0 行，而重新读取时余额又是充足的
func raceNextUpdate(t *testing.T, db *gorm.DB, table, drainSQL, restoreSQL string, args ...interface{}) *atomic.Bool {
	t.Helper()
	var armed, fired atomic.Bool
	armed.Store(true)

	exec := func(tx *gorm.DB, sql string) {
		if _, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context, sql, args...); err != nil {
			_ = tx.AddError(err)
		}
	}
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:race_drain", func(tx *gorm.DB) {
		if tx.Statement.Table == table && armed.CompareAndSwap(true, false) {
			exec(tx, drainSQL)
			fired.Store(true)
		}
	}))
	require.NoError(t, db.Callback().Update().After("gorm:update").Register("test:race_restore", func(tx *gorm.DB) {
		if tx.Statement.Table == table && fired.CompareAndSwap(true, false) {
			exec(tx, restoreSQL)
		}
	}))
	return &armed
}

func TestLedgerAdjustConcurrentDebitFails(t *testing.T) {
	e := newEnv(t)
	testutil.SetPool(t, e.db, model.PoolSubsidy, "20")
	armed := raceNextUpdate(t, e.db, model.Pool{}.TableName(),
		"UPDATE finance_pool SET balance = 0 WHERE pool_type = ?",
		"UPDATE finance_pool SET balance = 20 WHERE pool_type = ?",
		model.PoolSubsidy)

	_, err := e.svc.Ledger.Adjust(e.ctx, nil, model.PoolSubsidy, d("-15"), "并发扣减", FlowRef{})
	require.ErrorIs(t, err, errno.ErrConcurrentUpdate)
	assert.False(t, armed.Load())

	var insufficient *errno.InsufficientBalanceError
	assert.NotErrorAs(t, err, &insufficient)
	testutil.Money(t, "20", testutil.PoolBalance(t, e.db, model.PoolSubsidy))
	assert.Zero(t, countFlows(t, e, "account_type = ?", model.PoolSubsidy))

	_, err = e.svc.Ledger.Adjust(e.ctx, nil, model.PoolSubsidy, d("-15"), "重试扣减", FlowRef{})
	require.NoError(t, err)
	testutil.Money(t, "5", testutil.PoolBalance(t, e.db, model.PoolSubsidy))
}

func TestPointSpendConcurrentDebitFails(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1, func(u *model.UserLedger) { u.GeneralBalance = d("20") })
	raceNextUpdate(t, e.db, model.UserLedger{}.TableName(),
		"UPDATE user_ledger SET general_balance = 0 WHERE id = ?",
		"UPDATE user_ledger SET general_balance = 20 WHERE id = ?",
		1)

	_, err := e.svc.Points.Spend(e.ctx, nil, 1, model.BucketGeneralBalance, d("15"), "并发提现", "")
	require.ErrorIs(t, err, errno.ErrConcurrentUpdate)

	testutil.Money(t, "20", testutil.User(t, e.db, 1).GeneralBalance)
	assert.Zero(t, countFlows(t, e, "related_user = ? AND account_type = ?", 1, model.BucketGeneralBalance))
	var logs int64
	require.NoError(t, e.db.Model(&model.PointLog{}).Where("user_id = ?", 1).Count(&logs).Error)
	assert.Zero(t, logs)
}
