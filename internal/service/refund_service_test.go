package service

import (
	"testing"

	"mallledger/internal/model"
	"mallledger/internal/testutil"
	"mallledger/pkg/errno"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefundReversesSettlement(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 0)
	testutil.CreateUser(t, e.db, 2, 1)
	testutil.Link(t, e.db, 1, 2)
	order := placeOrder(t, e, 1, 0, tierItem("1000", 1))
	settle(t, e, order, "0", "0")
	testutil.Money(t, "500", testutil.User(t, e.db, 2).ReferralPoints)

	resp, err := e.svc.Refunds.RefundOrder(e.ctx, order.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusRefunded, resp.Status)
	testutil.Money(t, "800", resp.PoolsReversed[model.PoolPlatformRevenue])
	testutil.Money(t, "1000", resp.PointsReclaimed)
	testutil.Money(t, "500", resp.RewardsClawback[2])
	assert.Equal(t, 0, resp.LevelRestored)

	for _, kind := range model.AllPoolKinds {
		testutil.Money(t, "0", testutil.PoolBalance(t, e.db, kind), kind)
	}
	buyer := testutil.User(t, e.db, 1)
	assert.Equal(t, 0, buyer.MemberLevel)
	testutil.Money(t, "0", buyer.MemberPoints)
	referrer := testutil.User(t, e.db, 2)
	testutil.Money(t, "0", referrer.ReferralPoints)
	testutil.Money(t, "0", referrer.TrueTotalPoints)

	_, err = e.svc.Refunds.RefundOrder(e.ctx, order.OrderNo)
	assert.True(t, errno.IsOrder(err))
}

func TestRefundReturnsPointsDiscount(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1, withPoints("100"))
	order := placeOrder(t, e, 1, 0, normalItem("1000", 1))
	settle(t, e, order, "100", "0")
	testutil.Money(t, "900", testutil.User(t, e.db, 1).MemberPoints)
	testutil.Money(t, "280", testutil.PoolBalance(t, e.db, model.PoolCompanyPoints))

	resp, err := e.svc.Refunds.RefundOrder(e.ctx, order.OrderNo)
	require.NoError(t, err)
	testutil.Money(t, "100", resp.PointsReturned)
	testutil.Money(t, "100", testutil.User(t, e.db, 1).MemberPoints)
	testutil.Money(t, "0", testutil.PoolBalance(t, e.db, model.PoolCompanyPoints))
}

func TestRefundClawbackCappedByBalance(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)
	order := placeOrder(t, e, 1, 0, normalItem("100", 1))
	settle(t, e, order, "0", "0")

	// 买家已经用掉了部分积分
	require.NoError(t, e.db.Model(&model.UserLedger{}).Where("id = ?", 1).Update("member_points", d("30")).Error)

	resp, err := e.svc.Refunds.RefundOrder(e.ctx, order.OrderNo)
	require.NoError(t, err)
	testutil.Money(t, "30", resp.PointsReclaimed)
	testutil.Money(t, "0", testutil.User(t, e.db, 1).MemberPoints)
}

func TestRefundRejectsUnsettledOrder(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)
	order := placeOrder(t, e, 1, 0, normalItem("100", 1))

	_, err := e.svc.Refunds.RefundOrder(e.ctx, order.OrderNo)
	assert.True(t, errno.IsOrder(err))
	_, err = e.svc.Refunds.RefundOrder(e.ctx, "missing")
	assert.True(t, errno.IsOrder(err))
}
