package service

import (
	"testing"

	"mallledger/internal/model"
	"mallledger/internal/testutil"
	"mallledger/pkg/errno"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withPoints(points string) func(*model.UserLedger) {
	return func(u *model.UserLedger) { u.MemberPoints = d(points) }
}

func TestWeeklySubsidyWithOverride(t *testing.T) {
	e := newEnv(t)
	testutil.SetPool(t, e.db, model.PoolSubsidy, "1000")
	testutil.CreateUser(t, e.db, 1, 1, withPoints("300"))
	testutil.CreateUser(t, e.db, 2, 1, withPoints("700"))

	value := d("0.001")
	autoClear := true
	_, err := e.svc.Overrides.AdjustManualOverride(e.ctx, model.JobWeeklySubsidy, &value, &autoClear, "ops")
	require.NoError(t, err)

	report, err := e.svc.Subsidy.RunWeeklySubsidy(e.ctx)
	require.NoError(t, err)
	assert.True(t, report.Ran)
	assert.True(t, report.Overridden)
	assert.True(t, value.Equal(report.PointsValue))
	assert.Equal(t, 2, report.Users)
	testutil.Money(t, "1", report.TotalGranted)

	u1, u2 := testutil.User(t, e.db, 1), testutil.User(t, e.db, 2)
	testutil.Money(t, "0.3", u1.SubsidyPoints)
	testutil.Money(t, "0.7", u2.SubsidyPoints)
	testutil.Money(t, "0.3", u1.TrueTotalPoints)
	testutil.Money(t, "299.7", u1.MemberPoints)
	testutil.Money(t, "699.3", u2.MemberPoints)
	testutil.Money(t, "999", testutil.PoolBalance(t, e.db, model.PoolSubsidy))
	testutil.Money(t, "1", testutil.PoolBalance(t, e.db, model.PoolCompanyPoints))

	records, err := e.svc.Subsidy.jobRepo.ListSubsidyRecords(e.ctx, report.RunNo)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, _, active, err := e.svc.Overrides.Active(e.ctx, nil, model.JobWeeklySubsidy)
	require.NoError(t, err)
	assert.False(t, active, "autoClear 后干预值应被清除")
}

func TestWeeklySubsidyAutoValueIsCapped(t *testing.T) {
	e := newEnv(t)
	testutil.SetPool(t, e.db, model.PoolSubsidy, "1000")
	testutil.CreateUser(t, e.db, 1, 1, withPoints("300"))
	testutil.CreateUser(t, e.db, 2, 1, withPoints("700"))
	testutil.CreateUser(t, e.db, 3, 1)

	report, err := e.svc.Subsidy.RunWeeklySubsidy(e.ctx)
	require.NoError(t, err)
	assert.False(t, report.Overridden)
	assert.True(t, e.rules.MaxPointsValue.Equal(report.PointsValue))
	assert.Equal(t, 2, report.Users)

	testutil.Money(t, "6", testutil.User(t, e.db, 1).SubsidyPoints)
	testutil.Money(t, "14", testutil.User(t, e.db, 2).SubsidyPoints)
	testutil.Money(t, "686", testutil.User(t, e.db, 2).MemberPoints)
	testutil.Money(t, "980", testutil.PoolBalance(t, e.db, model.PoolSubsidy))
}

func TestWeeklySubsidyValueFollowsPool(t *testing.T) {
	e := newEnv(t)
	testutil.SetPool(t, e.db, model.PoolSubsidy, "10")
	testutil.CreateUser(t, e.db, 1, 1, withPoints("1000"))

	report, err := e.svc.Subsidy.RunWeeklySubsidy(e.ctx)
	require.NoError(t, err)
	assert.True(t, d("0.01").Equal(report.PointsValue))
	testutil.Money(t, "10", testutil.User(t, e.db, 1).SubsidyPoints)
	testutil.Money(t, "0", testutil.PoolBalance(t, e.db, model.PoolSubsidy))
}

func TestWeeklySubsidySkipsEmptyPool(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1, withPoints("100"))

	report, err := e.svc.Subsidy.RunWeeklySubsidy(e.ctx)
	require.NoError(t, err)
	assert.False(t, report.Ran)
	testutil.Money(t, "100", testutil.User(t, e.db, 1).MemberPoints)
}

func TestWeeklySubsidyOverrideKeptWithoutAutoClear(t *testing.T) {
	e := newEnv(t)
	testutil.SetPool(t, e.db, model.PoolSubsidy, "1000")
	testutil.CreateUser(t, e.db, 1, 1, withPoints("100"))

	value := d("0.005")
	_, err := e.svc.Overrides.AdjustManualOverride(e.ctx, model.JobWeeklySubsidy, &value, nil, "ops")
	require.NoError(t, err)
	_, err = e.svc.Subsidy.RunWeeklySubsidy(e.ctx)
	require.NoError(t, err)

	got, _, active, err := e.svc.Overrides.Active(e.ctx, nil, model.JobWeeklySubsidy)
	require.NoError(t, err)
	assert.True(t, active)
	assert.True(t, value.Equal(got))
}

func TestAdjustManualOverrideValidation(t *testing.T) {
	e := newEnv(t)

	zero := decimal.Zero
	_, err := e.svc.Overrides.AdjustManualOverride(e.ctx, model.JobWeeklySubsidy, &zero, nil, "ops")
	assert.True(t, errno.IsFinance(err))

	one := d("1")
	_, err = e.svc.Overrides.AdjustManualOverride(e.ctx, "unknown", &one, nil, "ops")
	assert.True(t, errno.IsFinance(err))

	autoClear := true
	o, err := e.svc.Overrides.AdjustManualOverride(e.ctx, model.JobUnilevelDividend, &one, &autoClear, "ops")
	require.NoError(t, err)
	assert.True(t, o.AutoClear)

	// 清除干预值时保留 autoClear
	o, err = e.svc.Overrides.AdjustManualOverride(e.ctx, model.JobUnilevelDividend, nil, nil, "ops")
	require.NoError(t, err)
	assert.False(t, o.Value.Valid)
	assert.True(t, o.AutoClear)
}
