package service

import (
	"errors"
	"testing"
	"time"

	"mallledger/internal/infrastructure/lock"
	"mallledger/internal/model"
	"mallledger/internal/testutil"
	"mallledger/pkg/errno"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderRequest(key string, buyerID int64, items ...OrderItemInput) *CreateOrderRequest {
	return &CreateOrderRequest{IdempotencyKey: key, BuyerID: buyerID, Items: items}
}

func normalInput(price string, qty int) OrderItemInput {
	return OrderItemInput{ProductID: "sku-" + price, Quantity: qty, UnitPrice: d(price)}
}

func tierInput(price string) OrderItemInput {
	return OrderItemInput{ProductID: "tier-" + price, Quantity: 1, UnitPrice: d(price), IsTierProduct: true}
}

func TestCreateOrder(t *testing.T) {
	e := newEnv(t)

	resp, err := e.svc.Orders.CreateOrder(e.ctx, orderRequest("k-1", 1, normalInput("12.5", 2), tierInput("100")))
	require.NoError(t, err)
	assert.False(t, resp.Replayed)

	order := resp.Order
	assert.Equal(t, model.OrderStatusPendingPay, order.Status)
	assert.True(t, order.IsMemberOrder)
	testutil.Money(t, "125", order.OriginalAmount)
	testutil.Money(t, "125", order.FinalAmount)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), order.ExpiredAt, time.Minute)

	// 买家账本按需创建
	assert.Equal(t, 0, testutil.User(t, e.db, 1).MemberLevel)

	stored, err := e.svc.Orders.GetOrder(e.ctx, order.OrderNo)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
}

func TestCreateOrderReplaysIdempotencyKey(t *testing.T) {
	e := newEnv(t)

	first, err := e.svc.Orders.CreateOrder(e.ctx, orderRequest("k-1", 1, normalInput("10", 1)))
	require.NoError(t, err)

	second, err := e.svc.Orders.CreateOrder(e.ctx, orderRequest("k-1", 1, normalInput("10", 1)))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.OrderNo, second.Order.OrderNo)

	// 缓存丢失后从订单表回放
	e.mr.FlushAll()
	third, err := e.svc.Orders.CreateOrder(e.ctx, orderRequest("k-1", 1, normalInput("10", 1)))
	require.NoError(t, err)
	assert.True(t, third.Replayed)
	assert.Equal(t, first.Order.OrderNo, third.Order.OrderNo)

	var count int64
	require.NoError(t, e.db.Model(&model.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateOrderLockContended(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.mr.Set(lock.OrderLockKey(1), "other"))

	_, err := e.svc.Orders.CreateOrder(e.ctx, orderRequest("k-1", 1, normalInput("10", 1)))
	assert.True(t, errors.Is(err, errno.ErrRetryLater))

	_, err = e.svc.Orders.CreateOrder(e.ctx, orderRequest("k-2", 2, normalInput("10", 1)))
	assert.NoError(t, err)
}

func TestCreateOrderDegradesWhenRedisDown(t *testing.T) {
	e := newEnv(t)
	e.mr.Close()

	_, err := e.svc.Orders.CreateOrder(e.ctx, orderRequest("k-1", 1, normalInput("10", 1)))
	require.NoError(t, err)

	_, err = e.svc.Orders.CreateOrder(e.ctx, orderRequest("k-2", 1, normalInput("10", 1)))
	assert.True(t, errors.Is(err, errno.ErrRetryLater))

	_, err = e.svc.Orders.CreateOrder(e.ctx, orderRequest("k-3", 2, normalInput("10", 1)))
	assert.NoError(t, err)
}

func TestCreateOrderMemberLimit(t *testing.T) {
	e := newEnv(t)

	for i := 0; i < e.rules.MaxMemberOrdersPerDay; i++ {
		_, err := e.svc.Orders.CreateOrder(e.ctx, orderRequest("", 1, tierInput("100")))
		require.NoError(t, err)
	}
	_, err := e.svc.Orders.CreateOrder(e.ctx, orderRequest("", 1, tierInput("100")))
	assert.True(t, errno.IsOrder(err))

	// 普通商品不受限制
	_, err = e.svc.Orders.CreateOrder(e.ctx, orderRequest("", 1, normalInput("5", 1)))
	assert.NoError(t, err)
}

func TestCreateOrderValidatesPoints(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1, withPoints("50"))

	req := orderRequest("", 1, normalInput("100", 1))
	req.PointsToUse = d("60")
	_, err := e.svc.Orders.CreateOrder(e.ctx, req)
	assert.True(t, errno.IsOrder(err))

	req.PointsToUse = d("120")
	_, err = e.svc.Orders.CreateOrder(e.ctx, req)
	assert.True(t, errno.IsOrder(err))

	req.PointsToUse = d("40")
	resp, err := e.svc.Orders.CreateOrder(e.ctx, req)
	require.NoError(t, err)
	testutil.Money(t, "60", resp.Order.FinalAmount)

	_, err = e.svc.Orders.CreateOrder(e.ctx, orderRequest("", 1))
	assert.True(t, errno.IsOrder(err))
}

func TestCancelAndCompleteOrder(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)

	pending := placeOrder(t, e, 1, 0, normalItem("10", 1))
	require.NoError(t, e.svc.Orders.CancelOrder(e.ctx, pending.OrderNo))
	assert.True(t, errno.IsOrder(e.svc.Orders.CancelOrder(e.ctx, pending.OrderNo)))

	settled := placeOrder(t, e, 1, 0, normalItem("10", 1))
	settle(t, e, settled, "0", "0")
	assert.True(t, errno.IsOrder(e.svc.Orders.CancelOrder(e.ctx, settled.OrderNo)))
	require.NoError(t, e.svc.Orders.CompleteOrder(e.ctx, settled.OrderNo))
	assert.True(t, errno.IsOrder(e.svc.Orders.CompleteOrder(e.ctx, settled.OrderNo)))

	_, err := e.svc.Orders.GetOrder(e.ctx, "missing")
	assert.True(t, errors.Is(err, errno.ErrNotFound))
}

func TestCloseExpiredOrders(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)
	expired := placeOrder(t, e, 1, 0, normalItem("10", 1))
	require.NoError(t, e.db.Model(expired).Update("expired_at", time.Now().Add(-time.Minute)).Error)
	fresh := placeOrder(t, e, 1, 0, normalItem("10", 1))

	closed, err := e.svc.Orders.CloseExpiredOrders(e.ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	got, err := e.svc.Orders.GetOrder(e.ctx, expired.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, got.Status)
	got, err = e.svc.Orders.GetOrder(e.ctx, fresh.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPendingPay, got.Status)
}
