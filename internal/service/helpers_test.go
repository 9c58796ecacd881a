package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mallledger/internal/config"
	"mallledger/internal/infrastructure/cache"
	"mallledger/internal/infrastructure/lock"
	"mallledger/internal/model"
	"mallledger/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	ctx   context.Context
	db    *gorm.DB
	mr    *miniredis.Miniredis
	cfg   *config.Config
	rules *Rules
	svc   *Services
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	mr, client := testutil.NewRedis(t)
	cfg := config.Default()
	rules := DefaultRules()
	svc := NewServices(db, cfg, rules, lock.NewRedisLocker(client), cache.NewIdempotencyStore(client, cfg.Guard.IdempotencyTTL))

	ctx := context.Background()
	require.NoError(t, svc.Ledger.SeedPools(ctx))
	return &testEnv{ctx: ctx, db: db, mr: mr, cfg: cfg, rules: rules, svc: svc}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func tierItem(price string, qty int) model.OrderItem {
	return model.OrderItem{ProductID: "tier-" + price, Quantity: qty, UnitPrice: d(price), IsTierProduct: true}
}

func normalItem(price string, qty int) model.OrderItem {
	return model.OrderItem{ProductID: "sku-" + price, Quantity: qty, UnitPrice: d(price)}
}

var orderSeq int

// placeOrder 直接写入一张待支付订单，绕过下单防重
func placeOrder(t *testing.T, e *testEnv, buyerID, merchantID int64, items ...model.OrderItem) *model.Order {
	t.Helper()
	orderSeq++

	original := decimal.Zero
	member := false
	for _, it := range items {
		original = original.Add(it.Subtotal())
		member = member || it.IsTierProduct
	}
	order := &model.Order{
		OrderNo:        fmt.Sprintf("T%d-%d", time.Now().UnixNano(), orderSeq),
		BuyerID:        buyerID,
		MerchantID:     merchantID,
		Status:         model.OrderStatusPendingPay,
		IsMemberOrder:  member,
		OriginalAmount: original,
		PointsDiscount: decimal.Zero,
		CouponDiscount: decimal.Zero,
		FinalAmount:    original,
		ExpiredAt:      time.Now().Add(30 * time.Minute),
		Items:          items,
	}
	require.NoError(t, e.db.Create(order).Error)
	return order
}

func settle(t *testing.T, e *testEnv, order *model.Order, points, coupon string) *SettleResult {
	t.Helper()
	res, err := e.svc.Settlement.SettleOrder(e.ctx, order.ID, d(points), d(coupon))
	require.NoError(t, err)
	return res
}

func countFlows(t *testing.T, e *testEnv, where string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Flow{}).Where(where, args...).Count(&n).Error)
	return n
}

// poolNetByOrder 订单在各资金池上的净变动
func poolNetByOrder(t *testing.T, e *testEnv, orderNo string) map[model.PoolKind]decimal.Decimal {
	t.Helper()
	var flows []model.Flow
	require.NoError(t, e.db.Where("order_no = ?", orderNo).Find(&flows).Error)
	net := make(map[model.PoolKind]decimal.Decimal)
	for _, f := range flows {
		if kind := model.PoolKind(f.AccountType); kind.Valid() {
			net[kind] = net[kind].Add(f.Delta)
		}
	}
	return net
}
