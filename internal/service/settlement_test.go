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

func TestSettleNormalOrderConservesAmount(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)
	order := placeOrder(t, e, 1, 0, normalItem("500", 2))

	res := settle(t, e, order, "0", "0")
	assert.Equal(t, model.OrderStatusPendingShip, res.Status)
	testutil.Money(t, "1000", res.FinalAmount)

	net := poolNetByOrder(t, e, order.OrderNo)
	expected := map[model.PoolKind]string{
		model.PoolPlatformRevenue: "800",
		model.PoolPublicWelfare:   "10",
		model.PoolMaintenance:     "10",
		model.PoolSubsidy:         "120",
		model.PoolHonorDirector:   "20",
		model.PoolShop:            "10",
		model.PoolCity:            "10",
		model.PoolBranch:          "5",
		model.PoolFund:            "15",
		model.PoolCompanyPoints:   "200",
	}
	allocated := decimal.Zero
	for kind, want := range expected {
		testutil.Money(t, want, net[kind], kind)
		testutil.Money(t, want, testutil.PoolBalance(t, e.db, kind), kind)
		if kind != model.PoolCompanyPoints {
			allocated = allocated.Add(net[kind])
		}
	}
	testutil.Money(t, "1000", allocated)
	testutil.Money(t, "0", testutil.PoolBalance(t, e.db, model.PoolMerchantClearing))

	buyer := testutil.User(t, e.db, 1)
	testutil.Money(t, "1000", buyer.MemberPoints)
	assert.Equal(t, 1, buyer.MemberLevel)

	stored, err := e.svc.Orders.GetOrder(e.ctx, order.OrderNo)
	require.NoError(t, err)
	assert.NotNil(t, stored.SettledAt)
	assert.NotNil(t, stored.PaidAt)

	var outbox []model.OutboxMessage
	require.NoError(t, e.db.Find(&outbox).Error)
	require.Len(t, outbox, 1)
	assert.Equal(t, model.EventOrderSettled, outbox[0].EventType)
	assert.Equal(t, e.cfg.Kafka.Topic.Settlement, outbox[0].Topic)
}

func TestSettleLevelZeroBuyerEarnsNoPointsOnNormalItems(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 0)
	order := placeOrder(t, e, 1, 0, normalItem("100", 1))

	settle(t, e, order, "0", "0")
	testutil.Money(t, "0", testutil.User(t, e.db, 1).MemberPoints)
	testutil.Money(t, "100", sumPoolNet(poolNetByOrder(t, e, order.OrderNo)))
}

func sumPoolNet(net map[model.PoolKind]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for kind, v := range net {
		if kind != model.PoolCompanyPoints {
			total = total.Add(v)
		}
	}
	return total
}

func TestSettleThirdPartyMerchant(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)
	order := placeOrder(t, e, 1, 77, normalItem("1000", 1))

	settle(t, e, order, "0", "0")

	testutil.Money(t, "800", testutil.PoolBalance(t, e.db, model.PoolMerchantClearing))
	testutil.Money(t, "0", testutil.PoolBalance(t, e.db, model.PoolPlatformRevenue))
	testutil.Money(t, "1000", sumPoolNet(poolNetByOrder(t, e, order.OrderNo)))

	merchant := testutil.User(t, e.db, 77)
	testutil.Money(t, "200", merchant.MerchantPoints)
}

func TestSettleOddCentMerchantOrderBalancesExactly(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)
	order := placeOrder(t, e, 1, 77, normalItem("99.99", 1))

	settle(t, e, order, "0", "0")

	net := poolNetByOrder(t, e, order.OrderNo)
	testutil.Money(t, "0.5", net[model.PoolBranch])
	testutil.Money(t, "1.4999", net[model.PoolFund])
	testutil.Money(t, "79.9919", net[model.PoolMerchantClearing])
	testutil.Money(t, "99.99", sumPoolNet(net))

	testutil.ExactMoney(t, "0", testutil.StoredPoolBalance(t, e.db, model.PoolPlatformRevenue))
	testutil.ExactMoney(t, "79.9919", testutil.StoredPoolBalance(t, e.db, model.PoolMerchantClearing))
	testutil.ExactMoney(t, "1.4999", testutil.StoredPoolBalance(t, e.db, model.PoolFund))
}

func TestMerchantShare(t *testing.T) {
	full := Allocation{}
	for k, v := range model.DefaultAllocation {
		full[k] = v
	}
	partial := Allocation{}
	for k, v := range model.DefaultAllocation {
		partial[k] = v
	}
	partial[model.PoolMerchantClearing] = d("0.75")

	tests := []struct {
		name      string
		ratios    Allocation
		remaining string
		want      string
	}{
		{"比例合计为 1 时拿走全部剩余", full, "79.9919", "79.9919"},
		{"比例不足 1 时按比例取", partial, "79.9919", "74.9925"},
		{"按比例取不超过剩余", partial, "70", "70"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.Money(t, tt.want, merchantShare(d("99.99"), d(tt.remaining), tt.ratios))
		})
	}
}

func TestSettleWithPointsAndCoupon(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1, func(u *model.UserLedger) { u.MemberPoints = d("300") })
	order := placeOrder(t, e, 1, 0, normalItem("1000", 1))

	res := settle(t, e, order, "100", "50")
	testutil.Money(t, "850", res.FinalAmount)

	// 抵扣积分 100 + 公司积分 (1000-100)*0.2
	testutil.Money(t, "280", testutil.PoolBalance(t, e.db, model.PoolCompanyPoints))
	testutil.Money(t, "850", sumPoolNet(poolNetByOrder(t, e, order.OrderNo)))

	buyer := testutil.User(t, e.db, 1)
	testutil.Money(t, "1050", buyer.MemberPoints)
}

func TestSettleIsIdempotent(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)
	order := placeOrder(t, e, 1, 0, normalItem("200", 1))

	first := settle(t, e, order, "0", "0")
	assert.False(t, first.AlreadySettled)
	flows := countFlows(t, e, "order_no = ?", order.OrderNo)

	second := settle(t, e, order, "0", "0")
	assert.True(t, second.AlreadySettled)
	assert.Equal(t, flows, countFlows(t, e, "order_no = ?", order.OrderNo))
	testutil.Money(t, "160", testutil.PoolBalance(t, e.db, model.PoolPlatformRevenue))
}

func TestSettleRejectsOversizedDiscount(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1, func(u *model.UserLedger) { u.MemberPoints = d("1000") })
	order := placeOrder(t, e, 1, 0, normalItem("100", 1))

	_, err := e.svc.Settlement.SettleOrder(e.ctx, order.ID, d("80"), d("30"))
	assert.True(t, errno.IsOrder(err))
	assert.Zero(t, countFlows(t, e, "order_no = ?", order.OrderNo))
}

func TestSettleRollsBackWhenPointsShort(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 2, func(u *model.UserLedger) { u.MemberPoints = d("10") })
	order := placeOrder(t, e, 1, 0, tierItem("1000", 1))

	_, err := e.svc.Settlement.SettleOrder(e.ctx, order.ID, d("20"), d("0"))
	assert.True(t, errno.IsOrder(err))

	buyer := testutil.User(t, e.db, 1)
	assert.Equal(t, 2, buyer.MemberLevel)
	testutil.Money(t, "10", buyer.MemberPoints)
	testutil.Money(t, "0", testutil.PoolBalance(t, e.db, model.PoolPlatformRevenue))

	stored, err := e.svc.Orders.GetOrder(e.ctx, order.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPendingPay, stored.Status)
}

func TestSettleRejectsCancelledOrder(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)
	order := placeOrder(t, e, 1, 0, normalItem("100", 1))
	require.NoError(t, e.db.Model(order).Update("status", model.OrderStatusCancelled).Error)

	_, err := e.svc.Settlement.SettleOrder(e.ctx, order.ID, d("0"), d("0"))
	assert.True(t, errno.IsOrder(err))
}

func TestSettleLevelIsCapped(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 5)
	order := placeOrder(t, e, 1, 0, tierItem("100", 3))

	res := settle(t, e, order, "0", "0")
	assert.Equal(t, 5, res.LevelBefore)
	assert.Equal(t, 6, res.LevelAfter)
	assert.Equal(t, 6, testutil.User(t, e.db, 1).MemberLevel)
}

func TestConfirmPayment(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)
	order := placeOrder(t, e, 1, 0, normalItem("99.5", 2))

	_, err := e.svc.Settlement.ConfirmPayment(e.ctx, order.OrderNo, d("100"))
	assert.True(t, errno.IsOrder(err))

	res, err := e.svc.Settlement.ConfirmPayment(e.ctx, order.OrderNo, d("199"))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPendingShip, res.Status)

	again, err := e.svc.Settlement.ConfirmPayment(e.ctx, order.OrderNo, d("199"))
	require.NoError(t, err)
	assert.True(t, again.AlreadySettled)
}
