package service

import (
	"testing"

	"mallledger/internal/model"
	"mallledger/internal/testutil"
	"mallledger/pkg/errno"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBalance(balance string) func(*model.UserLedger) {
	return func(u *model.UserLedger) { u.GeneralBalance = d(balance) }
}

func TestApplyWithdrawal(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1, withBalance("10000"))

	small, err := e.svc.Withdrawal.ApplyWithdrawal(e.ctx, 1, d("1000"), model.WithdrawalKindUser)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusPendingAuto, small.Status)
	testutil.Money(t, "60", small.TaxAmount)
	testutil.Money(t, "940", small.ActualAmount)

	large, err := e.svc.Withdrawal.ApplyWithdrawal(e.ctx, 1, d("6000"), model.WithdrawalKindUser)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusPendingManual, large.Status)

	testutil.Money(t, "3000", testutil.User(t, e.db, 1).GeneralBalance)
	testutil.Money(t, "420", testutil.PoolBalance(t, e.db, model.PoolCompanyBalance))
}

func TestApplyWithdrawalInsufficientBalance(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1, withBalance("100"))

	_, err := e.svc.Withdrawal.ApplyWithdrawal(e.ctx, 1, d("200"), model.WithdrawalKindUser)
	assert.True(t, errno.IsInsufficientBalance(err))
	testutil.Money(t, "100", testutil.User(t, e.db, 1).GeneralBalance)
	testutil.Money(t, "0", testutil.PoolBalance(t, e.db, model.PoolCompanyBalance))

	_, err = e.svc.Withdrawal.ApplyWithdrawal(e.ctx, 1, d("0"), model.WithdrawalKindUser)
	assert.True(t, errno.IsFinance(err))
	_, err = e.svc.Withdrawal.ApplyWithdrawal(e.ctx, 1, d("10"), "bank")
	assert.True(t, errno.IsFinance(err))
}

func TestMerchantWithdrawalUsesMerchantBalance(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 0, func(u *model.UserLedger) { u.MerchantBalance = d("500") })

	_, err := e.svc.Withdrawal.ApplyWithdrawal(e.ctx, 1, d("500"), model.WithdrawalKindMerchant)
	require.NoError(t, err)
	testutil.Money(t, "0", testutil.User(t, e.db, 1).MerchantBalance)
}

func TestAuditWithdrawal(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1, withBalance("2000"))

	rejected, err := e.svc.Withdrawal.ApplyWithdrawal(e.ctx, 1, d("1000"), model.WithdrawalKindUser)
	require.NoError(t, err)
	approved, err := e.svc.Withdrawal.ApplyWithdrawal(e.ctx, 1, d("500"), model.WithdrawalKindUser)
	require.NoError(t, err)

	ok, err := e.svc.Withdrawal.AuditWithdrawal(e.ctx, rejected.ID, false, "auditor")
	require.NoError(t, err)
	assert.True(t, ok)
	testutil.Money(t, "1500", testutil.User(t, e.db, 1).GeneralBalance)
	testutil.Money(t, "30", testutil.PoolBalance(t, e.db, model.PoolCompanyBalance))

	ok, err = e.svc.Withdrawal.AuditWithdrawal(e.ctx, approved.ID, true, "auditor")
	require.NoError(t, err)
	assert.True(t, ok)
	testutil.Money(t, "1500", testutil.User(t, e.db, 1).GeneralBalance)

	_, err = e.svc.Withdrawal.AuditWithdrawal(e.ctx, approved.ID, false, "auditor")
	assert.True(t, errno.IsFinance(err))
	_, err = e.svc.Withdrawal.AuditWithdrawal(e.ctx, 999, true, "auditor")
	assert.True(t, errno.IsFinance(err))

	var stored model.Withdrawal
	require.NoError(t, e.db.First(&stored, rejected.ID).Error)
	assert.Equal(t, model.WithdrawalStatusRejected, stored.Status)
	assert.Equal(t, "auditor", stored.Auditor)
	assert.NotNil(t, stored.ProcessedAt)
}
