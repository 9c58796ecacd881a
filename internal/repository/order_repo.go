package repository

import (
	"context"
	"errors"
	"time"

	"mallledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound      = errors.New("订单不存在")
	ErrOrderStatusInvalid = errors.New("订单状态不合法")
	ErrDuplicateRequest   = errors.New("重复请求")
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx)
}

// Create 连同明细一起写入，订单号或请求号重复时返回 ErrDuplicateRequest
func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	err := r.conn(ctx, tx).Create(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateRequest
	}
	return err
}

func (r *OrderRepository) first(query *gorm.DB) (*model.Order, error) {
	var order model.Order
	err := query.Preload("Items").First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Order, error) {
	return r.first(r.conn(ctx, tx).Where("id = ?", id))
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Order, error) {
	return r.first(r.conn(ctx, tx).Where("order_no = ?", orderNo))
}

// GetByRequestID 未找到时返回 nil, nil
func (r *OrderRepository) GetByRequestID(ctx context.Context, requestID string) (*model.Order, error) {
	order, err := r.first(r.db.WithContext(ctx).Where("request_id = ?", requestID))
	if errors.Is(err, ErrOrderNotFound) {
		return nil, nil
	}
	return order, err
}

// UpdateStatus 条件更新状态，extra 里的字段一并写入
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, orderNo string, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrOrderStatusInvalid
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := r.conn(ctx, tx).
		Model(&model.Order{}).
		Where("order_no = ? AND status = ?", orderNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOrderStatusInvalid
	}

	return nil
}

// MarkPaid 记录支付时间，只对未支付的待付款订单生效
func (r *OrderRepository) MarkPaid(ctx context.Context, tx *gorm.DB, orderNo string, paidAt time.Time) (bool, error) {
	result := r.conn(ctx, tx).
		Model(&model.Order{}).
		Where("order_no = ? AND status = ? AND paid_at IS NULL", orderNo, model.OrderStatusPendingPay).
		Update("paid_at", paidAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ExistsRecent 买家在 since 之后是否有未取消的订单
func (r *OrderRepository) ExistsRecent(ctx context.Context, buyerID int64, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("buyer_id = ? AND created_at >= ? AND status <> ?", buyerID, since, model.OrderStatusCancelled).
		Count(&count).Error
	return count > 0, err
}

// CountMemberOrdersSince 买家在 since 之后含星级商品的订单数，不含已取消
func (r *OrderRepository) CountMemberOrdersSince(ctx context.Context, buyerID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("buyer_id = ? AND is_member_order = ? AND created_at >= ? AND status <> ?",
			buyerID, true, since, model.OrderStatusCancelled).
		Count(&count).Error
	return count, err
}

// GetExpiredOrders 超时未支付的订单
func (r *OrderRepository) GetExpiredOrders(ctx context.Context, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND paid_at IS NULL AND expired_at < ?", model.OrderStatusPendingPay, time.Now()).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// GetPaidUnsettled 已支付但迟迟未结算的订单
func (r *OrderRepository) GetPaidUnsettled(ctx context.Context, paidBefore time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND paid_at IS NOT NULL AND paid_at < ?", model.OrderStatusPendingPay, paidBefore).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// BuyersSettledBetween 区间内有已结算订单的买家
func (r *OrderRepository) BuyersSettledBetween(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]int64, error) {
	var ids []int64
	err := r.conn(ctx, tx).
		Model(&model.Order{}).
		Where("settled_at >= ? AND settled_at < ? AND status IN ?", start, end,
			[]string{model.OrderStatusPendingShip, model.OrderStatusCompleted}).
		Distinct().
		Pluck("buyer_id", &ids).Error
	return ids, err
}

func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID int64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("buyer_id = ?", buyerID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
