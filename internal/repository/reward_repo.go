package repository

import (
	"context"
	"errors"
	"time"

	"mallledger/internal/model"

	"gorm.io/gorm"
)

var ErrCouponNotFound = errors.New("优惠券不存在")

type RewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

func (r *RewardRepository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx)
}

func (r *RewardRepository) CreatePending(ctx context.Context, tx *gorm.DB, reward *model.PendingReward) error {
	return r.conn(ctx, tx).Create(reward).Error
}

// ListPendingByIDs 只返回仍处于待审核状态的申请
func (r *RewardRepository) ListPendingByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*model.PendingReward, error) {
	var rewards []*model.PendingReward
	err := r.conn(ctx, tx).
		Where("id IN ? AND status = ?", ids, model.RewardStatusPending).
		Order("id ASC").
		Find(&rewards).Error
	return rewards, err
}

// FinishPending 条件更新审核结果，已被处理时返回 false
func (r *RewardRepository) FinishPending(ctx context.Context, tx *gorm.DB, id int64, status, auditor string, couponID *int64) (bool, error) {
	updates := map[string]interface{}{
		"status":  status,
		"auditor": auditor,
	}
	if couponID != nil {
		updates["coupon_id"] = *couponID
	}
	result := r.conn(ctx, tx).
		Model(&model.PendingReward{}).
		Where("id = ? AND status = ?", id, model.RewardStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *RewardRepository) CreateCoupon(ctx context.Context, tx *gorm.DB, coupon *model.Coupon) error {
	return r.conn(ctx, tx).Create(coupon).Error
}

func (r *RewardRepository) GetCoupon(ctx context.Context, tx *gorm.DB, id int64) (*model.Coupon, error) {
	var coupon model.Coupon
	err := r.conn(ctx, tx).Where("id = ?", id).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// MarkCouponUsed 条件核销，只有未使用的券会命中
func (r *RewardRepository) MarkCouponUsed(ctx context.Context, tx *gorm.DB, id int64, usedAt time.Time) (bool, error) {
	result := r.conn(ctx, tx).
		Model(&model.Coupon{}).
		Where("id = ? AND status = ?", id, model.CouponStatusUnused).
		Updates(map[string]interface{}{
			"status":  model.CouponStatusUsed,
			"used_at": usedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ExpireCoupons 把过期未使用的券标记为 expired，返回处理数量
func (r *RewardRepository) ExpireCoupons(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Coupon{}).
		Where("status = ? AND valid_to < ?", model.CouponStatusUnused, now).
		Update("status", model.CouponStatusExpired)
	return result.RowsAffected, result.Error
}

func (r *RewardRepository) ListCouponsByUser(ctx context.Context, userID int64) ([]*model.Coupon, error) {
	var coupons []*model.Coupon
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&coupons).Error
	return coupons, err
}
