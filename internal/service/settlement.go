package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mallledger/internal/metrics"
	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/errno"
	"mallledger/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SettleResult 结算结果，AlreadySettled 表示重复结算未产生任何写入
type SettleResult struct {
	OrderNo        string          `json:"order_no"`
	Status         string          `json:"status"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	LevelBefore    int             `json:"level_before"`
	LevelAfter     int             `json:"level_after"`
	Payouts        []Payout        `json:"payouts,omitempty"`
	AlreadySettled bool            `json:"already_settled"`
}

// orderBreakdown 订单明细按星级商品/普通商品拆分
type orderBreakdown struct {
	original      decimal.Decimal
	tierSubtotal  decimal.Decimal
	normSubtotal  decimal.Decimal
	tierQuantity  int
	tierUnitPrice decimal.Decimal
}

func breakdown(items []model.OrderItem) orderBreakdown {
	b := orderBreakdown{
		original:     decimal.Zero,
		tierSubtotal: decimal.Zero,
		normSubtotal: decimal.Zero,
	}
	for _, item := range items {
		subtotal := item.Subtotal()
		b.original = b.original.Add(subtotal)
		if item.IsTierProduct {
			if b.tierQuantity == 0 {
				b.tierUnitPrice = item.UnitPrice
			}
			b.tierSubtotal = b.tierSubtotal.Add(subtotal)
			b.tierQuantity += item.Quantity
		} else {
			b.normSubtotal = b.normSubtotal.Add(subtotal)
		}
	}
	return b
}

// share 按小计占原价的比例拆分实付金额
func share(final, subtotal, original decimal.Decimal) decimal.Decimal {
	if !original.IsPositive() {
		return decimal.Zero
	}
	return model.RoundMoney(final.Mul(subtotal).Div(original))
}

// SettlementService 订单结算：积分抵扣、升级、积分发放、资金分账、升级奖励，全部在一个事务内
type SettlementService struct {
	db        *gorm.DB
	rules     *Rules
	ledger    *LedgerService
	points    *PointService
	alloc     *AllocationService
	rewards   *RewardService
	events    *EventWriter
	orderRepo *repository.OrderRepository
	userRepo  *repository.UserRepository
	flowRepo  *repository.FlowRepository
	metrics   *metrics.Metrics
}

func NewSettlementService(db *gorm.DB, rules *Rules, ledger *LedgerService, points *PointService,
	alloc *AllocationService, rewards *RewardService, events *EventWriter) *SettlementService {
	return &SettlementService{
		db:        db,
		rules:     rules,
		ledger:    ledger,
		points:    points,
		alloc:     alloc,
		rewards:   rewards,
		events:    events,
		orderRepo: repository.NewOrderRepository(db),
		userRepo:  repository.NewUserRepository(db),
		flowRepo:  repository.NewFlowRepository(db),
		metrics:   metrics.GetMetrics(),
	}
}

// ConfirmPayment 支付确认：金额必须等于应付金额，记录支付时间后结算
//
// 支付时间单独提交，结算失败时由补偿任务重新结算
func (s *SettlementService) ConfirmPayment(ctx context.Context, orderNo string, amountConfirmed decimal.Decimal) (*SettleResult, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, nil, orderNo)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, errno.Order("订单不存在: %s", orderNo)
		}
		return nil, err
	}

	payable := model.RoundMoney(order.PayableAmount())
	if !model.RoundMoney(amountConfirmed).Equal(payable) {
		return nil, errno.Order("支付金额不一致: 应付 %s, 实付 %s", payable.String(), amountConfirmed.String())
	}

	switch {
	case model.IsSettled(order.Status):
		return s.SettleOrder(ctx, order.ID, order.PointsDiscount, order.CouponDiscount)
	case order.Status != model.OrderStatusPendingPay:
		return nil, errno.Order("订单状态不允许支付: %s", order.Status)
	}

	if order.PaidAt == nil {
		if _, err := s.orderRepo.MarkPaid(ctx, nil, orderNo, time.Now()); err != nil {
			return nil, fmt.Errorf("记录支付时间失败: %w", err)
		}
	}

	return s.SettleOrder(ctx, order.ID, order.PointsDiscount, order.CouponDiscount)
}

// SettleOrder 结算订单，同一订单重复调用直接返回成功且不产生写入
func (s *SettlementService) SettleOrder(ctx context.Context, orderID int64, pointsToUse, couponDiscount decimal.Decimal) (*SettleResult, error) {
	start := time.Now()
	var result *SettleResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.settle(ctx, tx, orderID, pointsToUse, couponDiscount)
		return err
	})

	s.metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		s.metrics.SettlementTotal.WithLabelValues("failed").Inc()
		logger.Error("[Settlement] 订单结算失败", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, err
	case result.AlreadySettled:
		s.metrics.SettlementTotal.WithLabelValues("duplicate").Inc()
	default:
		s.metrics.SettlementTotal.WithLabelValues("success").Inc()
		logger.Info("[Settlement] 订单结算成功",
			zap.String("order_no", result.OrderNo),
			zap.String("final_amount", result.FinalAmount.String()),
			zap.Int("level_before", result.LevelBefore),
			zap.Int("level_after", result.LevelAfter),
			zap.Int("payouts", len(result.Payouts)))
	}
	return result, nil
}

func (s *SettlementService) settle(ctx context.Context, tx *gorm.DB, orderID int64, pointsToUse, couponDiscount decimal.Decimal) (*SettleResult, error) {
	order, err := s.orderRepo.GetByID(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, errno.Order("订单不存在: %d", orderID)
		}
		return nil, err
	}

	settled, err := s.flowRepo.ExistsByOrderNo(ctx, tx, order.OrderNo)
	if err != nil {
		return nil, fmt.Errorf("查询订单流水失败: %w", err)
	}
	if settled || model.IsSettled(order.Status) {
		return &SettleResult{
			OrderNo:        order.OrderNo,
			Status:         order.Status,
			OriginalAmount: order.OriginalAmount,
			FinalAmount:    order.FinalAmount,
			LevelBefore:    order.LevelBefore,
			LevelAfter:     order.LevelAfter,
			AlreadySettled: true,
		}, nil
	}
	if order.Status != model.OrderStatusPendingPay {
		return nil, errno.Order("订单状态不允许结算: %s", order.Status)
	}

	pointsToUse = model.RoundMoney(pointsToUse)
	couponDiscount = model.RoundMoney(couponDiscount)
	if pointsToUse.IsNegative() || couponDiscount.IsNegative() {
		return nil, errno.Order("抵扣金额不能为负数")
	}
	if len(order.Items) == 0 {
		return nil, errno.Order("订单没有商品明细")
	}

	b := breakdown(order.Items)
	totalDiscount := pointsToUse.Add(couponDiscount)
	if totalDiscount.GreaterThan(b.original) {
		return nil, errno.Order("抵扣金额 %s 超过订单金额 %s", totalDiscount.String(), b.original.String())
	}
	finalAmount := model.RoundMoney(b.original.Sub(totalDiscount))

	buyer, err := s.userRepo.GetByID(ctx, tx, order.BuyerID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, errno.Order("用户不存在: %d", order.BuyerID)
		}
		return nil, err
	}
	orderNo := order.OrderNo

	// 积分抵扣，1:1 进入公司积分
	if pointsToUse.IsPositive() {
		if _, err := s.points.Spend(ctx, tx, buyer.ID, model.BucketMemberPoints, pointsToUse, "订单积分抵扣", orderNo); err != nil {
			return nil, err
		}
		if err := s.points.CreditCompanyPoints(ctx, tx, buyer.ID, pointsToUse, "订单积分抵扣转入", orderNo); err != nil {
			return nil, err
		}
	}

	// 星级商品：升级并发放会员积分
	oldLevel := buyer.MemberLevel
	newLevel := oldLevel
	if b.tierQuantity > 0 {
		newLevel = oldLevel + b.tierQuantity
		if newLevel > s.rules.MaxMemberLevel {
			newLevel = s.rules.MaxMemberLevel
		}
		if newLevel != oldLevel {
			ok, err := s.userRepo.UpdateLevel(ctx, tx, buyer.ID, oldLevel, newLevel)
			if err != nil {
				return nil, fmt.Errorf("更新会员星级失败: %w", err)
			}
			if !ok {
				return nil, errno.ErrConcurrentUpdate
			}
		}
		if finalAmount.IsPositive() {
			earned := share(finalAmount, b.tierSubtotal, b.original)
			if _, err := s.points.Earn(ctx, tx, buyer.ID, model.BucketMemberPoints, earned, "购买会员商品获得积分", orderNo); err != nil {
				return nil, err
			}
		}
	}

	// 普通商品：有星级的用户按比例获得积分
	if b.normSubtotal.IsPositive() && newLevel >= 1 && finalAmount.IsPositive() {
		earned := share(finalAmount, b.normSubtotal, b.original)
		if _, err := s.points.Earn(ctx, tx, buyer.ID, model.BucketMemberPoints, earned, "购买获得积分", orderNo); err != nil {
			return nil, err
		}
	}

	if err := s.allocate(ctx, tx, order, b, finalAmount); err != nil {
		return nil, err
	}

	companyBase := b.original.Sub(pointsToUse)
	if companyBase.IsNegative() {
		companyBase = decimal.Zero
	}
	companyPoints := model.RoundMoney(companyBase.Mul(s.rules.CompanyPointsRate))
	if companyPoints.IsPositive() {
		if err := s.points.CreditCompanyPoints(ctx, tx, buyer.ID, companyPoints, fmt.Sprintf("订单%s 公司积分分配", orderNo), orderNo); err != nil {
			return nil, err
		}
	}

	var payouts []Payout
	if newLevel > oldLevel {
		payouts, err = s.rewards.Distribute(ctx, tx, RewardInput{
			OrderNo:      orderNo,
			BuyerID:      buyer.ID,
			OldLevel:     oldLevel,
			NewLevel:     newLevel,
			UnitPrice:    b.tierUnitPrice,
			TierQuantity: b.tierQuantity,
		})
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	extra := map[string]interface{}{
		"original_amount": b.original,
		"points_discount": pointsToUse,
		"coupon_discount": couponDiscount,
		"final_amount":    finalAmount,
		"level_before":    oldLevel,
		"level_after":     newLevel,
		"settled_at":      now,
	}
	if order.PaidAt == nil {
		extra["paid_at"] = now
	}
	if err := s.orderRepo.UpdateStatus(ctx, tx, orderNo, model.OrderStatusPendingPay, model.OrderStatusPendingShip, extra); err != nil {
		if errors.Is(err, repository.ErrOrderStatusInvalid) {
			return nil, errno.ErrConcurrentUpdate
		}
		return nil, fmt.Errorf("更新订单状态失败: %w", err)
	}

	result := &SettleResult{
		OrderNo:        orderNo,
		Status:         model.OrderStatusPendingShip,
		OriginalAmount: b.original,
		FinalAmount:    finalAmount,
		LevelBefore:    oldLevel,
		LevelAfter:     newLevel,
		Payouts:        payouts,
	}
	if err := s.events.Write(ctx, tx, model.EventOrderSettled, orderNo, result); err != nil {
		return nil, err
	}
	return result, nil
}

// allocate 实付金额全部进入平台收入池，再按比例划转到各子池和商家结算池
func (s *SettlementService) allocate(ctx context.Context, tx *gorm.DB, order *model.Order, b orderBreakdown, finalAmount decimal.Decimal) error {
	if !finalAmount.IsPositive() {
		return nil
	}
	orderNo := order.OrderNo
	ref := ForUser(order.BuyerID, orderNo)

	if _, err := s.ledger.Adjust(ctx, tx, model.PoolPlatformRevenue, finalAmount, fmt.Sprintf("订单%s 平台收入", orderNo), ref); err != nil {
		return err
	}

	ratios, err := s.alloc.Effective(ctx, tx)
	if err != nil {
		return err
	}
	// 各份额单独四舍五入，累计不得超过本单入账金额
	remaining := finalAmount
	for _, kind := range model.SubPoolKinds {
		amount := decimal.Min(model.RoundMoney(finalAmount.Mul(ratios[kind])), remaining)
		if !amount.IsPositive() {
			continue
		}
		reason := fmt.Sprintf("订单%s 分配到%s", orderNo, kind.Name())
		if err := s.ledger.Transfer(ctx, tx, model.PoolPlatformRevenue, kind, amount, reason, ref); err != nil {
			return err
		}
		remaining = remaining.Sub(amount)
	}

	if order.MerchantID == s.rules.PlatformMerchantID {
		return nil
	}

	merchantRef := ForUser(order.MerchantID, orderNo)
	merchantAmount := merchantShare(finalAmount, remaining, ratios)
	if merchantAmount.IsPositive() {
		reason := fmt.Sprintf("订单%s 商家%d 结算", orderNo, order.MerchantID)
		if err := s.ledger.Transfer(ctx, tx, model.PoolPlatformRevenue, model.PoolMerchantClearing, merchantAmount, reason, merchantRef); err != nil {
			return err
		}
	}

	merchantPoints := model.RoundMoney(s.rules.MerchantPointsRate.Mul(share(finalAmount, b.normSubtotal, b.original)))
	if merchantPoints.IsPositive() {
		if err := s.userRepo.EnsureExists(ctx, tx, order.MerchantID, fmt.Sprintf("merchant-%d", order.MerchantID)); err != nil {
			return err
		}
		if _, err := s.points.Earn(ctx, tx, order.MerchantID, model.BucketMerchantPoints, merchantPoints, "销售获得积分", orderNo); err != nil {
			return err
		}
	}
	return nil
}

// merchantShare 比例合计为 1 时商家拿走全部剩余，否则按比例取且不超过剩余
func merchantShare(finalAmount, remaining decimal.Decimal, ratios Allocation) decimal.Decimal {
	if ratios.SubPoolSum().Add(ratios[model.PoolMerchantClearing]).GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return remaining
	}
	return decimal.Min(model.RoundMoney(finalAmount.Mul(ratios[model.PoolMerchantClearing])), remaining)
}
