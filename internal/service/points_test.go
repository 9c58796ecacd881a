package service

import (
	"errors"
	"testing"

	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/internal/testutil"
	"mallledger/pkg/errno"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEarnRewardBucketUpdatesTrueTotal(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)

	after, err := e.svc.Points.Earn(e.ctx, nil, 1, model.BucketTeamRewardPoints, d("12.34567"), "团队奖励", "ORD-1")
	require.NoError(t, err)
	testutil.Money(t, "12.3457", after)

	u := testutil.User(t, e.db, 1)
	testutil.Money(t, "12.3457", u.TeamRewardPoints)
	testutil.Money(t, "12.3457", u.TrueTotalPoints)

	var logs []model.PointLog
	require.NoError(t, e.db.Where("user_id = ?", 1).Order("id").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.Equal(t, string(model.BucketTeamRewardPoints), logs[0].Bucket)
	assert.Equal(t, string(model.BucketTrueTotalPoints), logs[1].Bucket)
	assert.Equal(t, int64(1), countFlows(t, e, "related_user = ? AND account_type = ?", 1, model.BucketTeamRewardPoints))
}

func TestEarnMemberPointsLeavesTrueTotal(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)

	_, err := e.svc.Points.Earn(e.ctx, nil, 1, model.BucketMemberPoints, d("40"), "购买", "")
	require.NoError(t, err)
	u := testutil.User(t, e.db, 1)
	testutil.Money(t, "40", u.MemberPoints)
	testutil.Money(t, "0", u.TrueTotalPoints)
}

func TestEarnUnknownUser(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Points.Earn(e.ctx, nil, 404, model.BucketMemberPoints, d("1"), "x", "")
	assert.True(t, errors.Is(err, repository.ErrUserNotFound))
}

func TestSpendInsufficient(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1, withPoints("10"), withBalance("10"))

	_, err := e.svc.Points.Spend(e.ctx, nil, 1, model.BucketMemberPoints, d("11"), "抵扣", "")
	assert.True(t, errno.IsOrder(err))

	_, err = e.svc.Points.Spend(e.ctx, nil, 1, model.BucketGeneralBalance, d("11"), "提现", "")
	var insufficient *errno.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "user:1:general_balance", insufficient.Scope)

	after, err := e.svc.Points.Spend(e.ctx, nil, 1, model.BucketMemberPoints, d("10"), "抵扣", "")
	require.NoError(t, err)
	testutil.Money(t, "0", after)
}

func TestSpendUpToClampsToBalance(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1, withPoints("25"))

	actual, err := e.svc.Points.SpendUpTo(e.ctx, nil, 1, model.BucketMemberPoints, d("40"), "回收", "")
	require.NoError(t, err)
	testutil.Money(t, "25", actual)

	actual, err = e.svc.Points.SpendUpTo(e.ctx, nil, 1, model.BucketMemberPoints, d("40"), "回收", "")
	require.NoError(t, err)
	assert.True(t, actual.IsZero())
}

func TestCreditCompanyPoints(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)

	require.NoError(t, e.svc.Points.CreditCompanyPoints(e.ctx, nil, 1, d("7.5"), "积分抵扣", "ORD-2"))
	testutil.Money(t, "7.5", testutil.PoolBalance(t, e.db, model.PoolCompanyPoints))

	var entry model.PointLog
	require.NoError(t, e.db.Where("kind = ?", model.PointKindCompany).First(&entry).Error)
	assert.Equal(t, int64(1), entry.UserID)
	assert.Equal(t, "ORD-2", entry.OrderNo)
}
