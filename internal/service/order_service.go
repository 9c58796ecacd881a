package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mallledger/internal/config"
	"mallledger/internal/infrastructure/lock"
	"mallledger/internal/metrics"
	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/errno"
	"mallledger/pkg/idgen"
	"mallledger/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IdempotencyCache 幂等键到订单号的映射
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, orderNo string) error
}

type OrderItemInput struct {
	ProductID     string          `json:"product_id" binding:"required"`
	Quantity      int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	IsTierProduct bool            `json:"is_tier_product"`
}

type CreateOrderRequest struct {
	IdempotencyKey string           `json:"idempotency_key"`
	BuyerID        int64            `json:"buyer_id" binding:"required"`
	MerchantID     int64            `json:"merchant_id"`
	Items          []OrderItemInput `json:"items" binding:"required,min=1,dive"`
	PointsToUse    decimal.Decimal  `json:"points_to_use"`
	CouponID       *int64           `json:"coupon_id"`
}

type CreateOrderResponse struct {
	Order    *model.Order `json:"order"`
	Replayed bool         `json:"replayed"`
}

// OrderService 下单与订单生命周期，下单时做防重
type OrderService struct {
	db        *gorm.DB
	cfg       *config.Config
	rules     *Rules
	locker    lock.Locker
	idem      IdempotencyCache
	coupons   *CouponService
	orderRepo *repository.OrderRepository
	userRepo  *repository.UserRepository
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewOrderService(db *gorm.DB, cfg *config.Config, rules *Rules, locker lock.Locker, idem IdempotencyCache, coupons *CouponService) *OrderService {
	return &OrderService{
		db:        db,
		cfg:       cfg,
		rules:     rules,
		locker:    locker,
		idem:      idem,
		coupons:   coupons,
		orderRepo: repository.NewOrderRepository(db),
		userRepo:  repository.NewUserRepository(db),
		metrics:   metrics.GetMetrics(),
		now:       time.Now,
	}
}

func validateOrderRequest(req *CreateOrderRequest) error {
	if req.BuyerID <= 0 {
		return errno.Order("买家不能为空")
	}
	if len(req.Items) == 0 {
		return errno.Order("订单没有商品")
	}
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return errno.Order("商品数量必须大于 0")
		}
		if item.UnitPrice.IsNegative() {
			return errno.Order("商品单价不能为负数")
		}
	}
	if req.PointsToUse.IsNegative() {
		return errno.Order("抵扣积分不能为负数")
	}
	return nil
}

// replay 按幂等键查已创建的订单，Redis 不可用时退回到订单表
func (s *OrderService) replay(ctx context.Context, key string) (*model.Order, error) {
	if key == "" {
		return nil, nil
	}
	if s.idem != nil {
		orderNo, found, err := s.idem.Get(ctx, key)
		if err != nil {
			logger.Warn("[OrderGuard] 幂等缓存不可用，回退到数据库", zap.Error(err))
		} else if found {
			order, err := s.orderRepo.GetByOrderNo(ctx, nil, orderNo)
			if err == nil {
				return order, nil
			}
			if !errors.Is(err, repository.ErrOrderNotFound) {
				return nil, err
			}
		}
	}
	return s.orderRepo.GetByRequestID(ctx, key)
}

// guard 获取买家下单锁；锁服务不可用时用 60 秒内的订单做兜底判断
func (s *OrderService) guard(ctx context.Context, buyerID int64) (func(), error) {
	lease, result, err := s.locker.Acquire(ctx, lock.OrderLockKey(buyerID), s.cfg.Guard.LockTTL)
	s.metrics.LockAcquireTotal.WithLabelValues(result.String()).Inc()

	switch result {
	case lock.Acquired:
		return func() {
			if err := lease.Release(context.Background()); err != nil {
				logger.Warn("[OrderGuard] 释放下单锁失败", zap.Int64("buyer_id", buyerID), zap.Error(err))
			}
		}, nil
	case lock.Contended:
		return nil, errno.ErrRetryLater
	}

	logger.Warn("[OrderGuard] 锁服务不可用，使用最近订单检查", zap.Int64("buyer_id", buyerID), zap.Error(err))
	recent, err := s.orderRepo.ExistsRecent(ctx, buyerID, s.now().Add(-s.cfg.Guard.RecentWindow))
	if err != nil {
		return nil, fmt.Errorf("查询最近订单失败: %w", err)
	}
	if recent {
		return nil, errno.ErrRetryLater
	}
	return func() {}, nil
}

func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	if err := validateOrderRequest(req); err != nil {
		return nil, err
	}

	existing, err := s.replay(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if existing != nil {
		return &CreateOrderResponse{Order: existing, Replayed: true}, nil
	}

	release, err := s.guard(ctx, req.BuyerID)
	if err != nil {
		return nil, err
	}
	defer release()

	// 拿到锁后再查一次，防止并发请求已经落库
	existing, err = s.replay(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if existing != nil {
		return &CreateOrderResponse{Order: existing, Replayed: true}, nil
	}

	now := s.now()
	original := decimal.Zero
	isMember := false
	items := make([]model.OrderItem, 0, len(req.Items))
	for _, in := range req.Items {
		item := model.OrderItem{
			ProductID:     in.ProductID,
			Quantity:      in.Quantity,
			UnitPrice:     model.RoundMoney(in.UnitPrice),
			IsTierProduct: in.IsTierProduct,
		}
		original = original.Add(item.Subtotal())
		isMember = isMember || in.IsTierProduct
		items = append(items, item)
	}

	if isMember {
		count, err := s.orderRepo.CountMemberOrdersSince(ctx, req.BuyerID, now.Add(-24*time.Hour))
		if err != nil {
			return nil, fmt.Errorf("查询会员订单数失败: %w", err)
		}
		if count >= int64(s.rules.MaxMemberOrdersPerDay) {
			return nil, errno.Order("24小时内购买会员商品超过限制（最多%d单）", s.rules.MaxMemberOrdersPerDay)
		}
	}

	pointsToUse := model.RoundMoney(req.PointsToUse)
	if pointsToUse.GreaterThan(original) {
		return nil, errno.Order("抵扣积分超过订单金额")
	}

	order := &model.Order{
		OrderNo:        idgen.GenerateOrderNo(),
		BuyerID:        req.BuyerID,
		MerchantID:     req.MerchantID,
		Status:         model.OrderStatusPendingPay,
		IsMemberOrder:  isMember,
		OriginalAmount: original,
		PointsDiscount: pointsToUse,
		CouponDiscount: decimal.Zero,
		FinalAmount:    original.Sub(pointsToUse),
		ExpiredAt:      now.Add(time.Duration(s.cfg.Business.OrderTimeoutMinutes) * time.Minute),
		Items:          items,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.RequestID = &key
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.EnsureExists(ctx, tx, req.BuyerID, fmt.Sprintf("user-%d", req.BuyerID)); err != nil {
			return err
		}
		buyer, err := s.userRepo.GetByID(ctx, tx, req.BuyerID)
		if err != nil {
			return err
		}
		if buyer.MemberPoints.LessThan(pointsToUse) {
			return errno.Order("积分不足，当前 %s", buyer.MemberPoints.String())
		}
		if req.MerchantID != s.rules.PlatformMerchantID {
			if err := s.userRepo.EnsureExists(ctx, tx, req.MerchantID, fmt.Sprintf("merchant-%d", req.MerchantID)); err != nil {
				return err
			}
		}

		if req.CouponID != nil {
			coupon, err := s.coupons.UseCoupon(ctx, tx, *req.CouponID, req.BuyerID)
			if err != nil {
				return err
			}
			order.CouponDiscount = decimal.Min(coupon.Amount, original.Sub(pointsToUse))
			order.FinalAmount = original.Sub(pointsToUse).Sub(order.CouponDiscount)
		}

		return s.orderRepo.Create(ctx, tx, order)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateRequest) {
			if existing, rerr := s.replay(ctx, req.IdempotencyKey); rerr == nil && existing != nil {
				return &CreateOrderResponse{Order: existing, Replayed: true}, nil
			}
			return nil, errno.ErrRetryLater
		}
		return nil, err
	}

	if req.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.Put(ctx, req.IdempotencyKey, order.OrderNo); err != nil {
			logger.Warn("[OrderGuard] 写入幂等缓存失败", zap.String("order_no", order.OrderNo), zap.Error(err))
		}
	}

	logger.Info("[Order] 订单创建成功",
		zap.String("order_no", order.OrderNo),
		zap.Int64("buyer_id", order.BuyerID),
		zap.String("original_amount", original.String()))
	return &CreateOrderResponse{Order: order}, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, nil, orderNo)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, fmt.Errorf("%w: %s", errno.ErrNotFound, orderNo)
	}
	return order, err
}

// CancelOrder 只能取消未支付的订单
func (s *OrderService) CancelOrder(ctx context.Context, orderNo string) error {
	order, err := s.GetOrder(ctx, orderNo)
	if err != nil {
		return err
	}
	if order.Status != model.OrderStatusPendingPay || order.PaidAt != nil {
		return errno.Order("订单状态不允许取消: %s", order.Status)
	}

	if err := s.orderRepo.UpdateStatus(ctx, nil, orderNo, order.Status, model.OrderStatusCancelled, nil); err != nil {
		if errors.Is(err, repository.ErrOrderStatusInvalid) {
			return errno.ErrConcurrentUpdate
		}
		return err
	}
	return nil
}

// CompleteOrder 确认收货
func (s *OrderService) CompleteOrder(ctx context.Context, orderNo string) error {
	err := s.orderRepo.UpdateStatus(ctx, nil, orderNo, model.OrderStatusPendingShip, model.OrderStatusCompleted, nil)
	if errors.Is(err, repository.ErrOrderStatusInvalid) {
		return errno.Order("订单状态不允许完成")
	}
	return err
}

// CloseExpiredOrders 关闭超时未支付的订单
func (s *OrderService) CloseExpiredOrders(ctx context.Context, limit int) (int, error) {
	orders, err := s.orderRepo.GetExpiredOrders(ctx, limit)
	if err != nil {
		return 0, err
	}

	closedCount := 0
	for _, order := range orders {
		err := s.orderRepo.UpdateStatus(ctx, nil, order.OrderNo, model.OrderStatusPendingPay, model.OrderStatusCancelled, nil)
		if err == nil {
			closedCount++
		}
	}

	return closedCount, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, buyerID int64, page, pageSize int) ([]*model.Order, int64, error) {
	return s.orderRepo.ListByBuyer(ctx, buyerID, page, pageSize)
}
