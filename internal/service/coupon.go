package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/errno"
	"mallledger/pkg/idgen"
	"mallledger/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CouponService 积分兑换优惠券：申请、审核发券、核销、过期
type CouponService struct {
	db         *gorm.DB
	rules      *Rules
	points     *PointService
	rewardRepo *repository.RewardRepository
	userRepo   *repository.UserRepository
	now        func() time.Time
}

func NewCouponService(db *gorm.DB, rules *Rules, points *PointService) *CouponService {
	return &CouponService{
		db:         db,
		rules:      rules,
		points:     points,
		rewardRepo: repository.NewRewardRepository(db),
		userRepo:   repository.NewUserRepository(db),
		now:        time.Now,
	}
}

// RequestCoupon 提交兑换申请，审核通过时才扣减 true_total_points
func (s *CouponService) RequestCoupon(ctx context.Context, userID int64, amount decimal.Decimal) (*model.PendingReward, error) {
	amount = model.RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, errno.Finance("兑换金额必须大于 0")
	}
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, errno.Finance("用户不存在: %d", userID)
		}
		return nil, err
	}
	if user.TrueTotalPoints.LessThan(amount) {
		return nil, errno.Order("积分不足: 可兑换 %s", user.TrueTotalPoints.String())
	}

	reward := &model.PendingReward{UserID: userID, Amount: amount, Status: model.RewardStatusPending}
	if err := s.rewardRepo.CreatePending(ctx, nil, reward); err != nil {
		return nil, fmt.Errorf("创建兑换申请失败: %w", err)
	}
	return reward, nil
}

// AuditPendingRewards 批量审核，通过的申请扣减积分并发放优惠券，返回处理数量
func (s *CouponService) AuditPendingRewards(ctx context.Context, ids []int64, approve bool, auditor string) (int, error) {
	if len(ids) == 0 {
		return 0, errno.Finance("审核列表不能为空")
	}

	processed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rewards, err := s.rewardRepo.ListPendingByIDs(ctx, tx, ids)
		if err != nil {
			return err
		}
		if len(rewards) == 0 {
			return errno.Finance("没有待审核的兑换申请")
		}

		for _, reward := range rewards {
			if !approve {
				ok, err := s.rewardRepo.FinishPending(ctx, tx, reward.ID, model.RewardStatusRejected, auditor, nil)
				if err != nil {
					return err
				}
				if ok {
					processed++
				}
				continue
			}

			if _, err := s.points.RedeemForCoupon(ctx, tx, reward.UserID, reward.Amount); err != nil {
				return fmt.Errorf("用户 %d 兑换失败: %w", reward.UserID, err)
			}
			now := s.now()
			rewardID := reward.ID
			coupon := &model.Coupon{
				CouponNo:  idgen.GenerateCouponNo(),
				UserID:    reward.UserID,
				Amount:    reward.Amount,
				Status:    model.CouponStatusUnused,
				ValidFrom: now,
				ValidTo:   now.AddDate(0, 0, s.rules.CouponValidDays),
				RewardID:  &rewardID,
			}
			if err := s.rewardRepo.CreateCoupon(ctx, tx, coupon); err != nil {
				return fmt.Errorf("发放优惠券失败: %w", err)
			}
			ok, err := s.rewardRepo.FinishPending(ctx, tx, reward.ID, model.RewardStatusApproved, auditor, &coupon.ID)
			if err != nil {
				return err
			}
			if !ok {
				return errno.ErrConcurrentUpdate
			}
			processed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("[Coupon] 兑换申请审核完成",
		zap.Int("processed", processed), zap.Bool("approve", approve), zap.String("auditor", auditor))
	return processed, nil
}

// UseCoupon 核销优惠券，校验归属、状态和有效期
func (s *CouponService) UseCoupon(ctx context.Context, tx *gorm.DB, couponID, userID int64) (*model.Coupon, error) {
	coupon, err := s.rewardRepo.GetCoupon(ctx, tx, couponID)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			return nil, errno.Order("优惠券不存在: %d", couponID)
		}
		return nil, err
	}
	if coupon.UserID != userID {
		return nil, errno.Order("优惠券不属于该用户")
	}
	if coupon.Status != model.CouponStatusUnused {
		return nil, errno.Order("优惠券不可用: %s", coupon.Status)
	}
	now := s.now()
	if now.Before(coupon.ValidFrom) || now.After(coupon.ValidTo) {
		return nil, errno.Order("优惠券不在有效期内")
	}

	ok, err := s.rewardRepo.MarkCouponUsed(ctx, tx, couponID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errno.ErrConcurrentUpdate
	}
	coupon.Status = model.CouponStatusUsed
	coupon.UsedAt = &now
	return coupon, nil
}

// ExpireCoupons 过期未使用的优惠券
func (s *CouponService) ExpireCoupons(ctx context.Context) (int64, error) {
	n, err := s.rewardRepo.ExpireCoupons(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("[Coupon] 优惠券过期处理", zap.Int64("expired", n))
	}
	return n, nil
}

func (s *CouponService) ListCoupons(ctx context.Context, userID int64) ([]*model.Coupon, error) {
	return s.rewardRepo.ListCouponsByUser(ctx, userID)
}
