package service

import (
	"context"
	"errors"
	"fmt"

	"mallledger/internal/metrics"
	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/errno"
	"mallledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PointService 用户余额/积分桶，用户桶只能通过这里修改
type PointService struct {
	db       *gorm.DB
	ledger   *LedgerService
	userRepo *repository.UserRepository
	logRepo  *repository.PointLogRepository
	flowRepo *repository.FlowRepository
	metrics  *metrics.Metrics
}

func NewPointService(db *gorm.DB, ledger *LedgerService) *PointService {
	return &PointService{
		db:       db,
		ledger:   ledger,
		userRepo: repository.NewUserRepository(db),
		logRepo:  repository.NewPointLogRepository(db),
		flowRepo: repository.NewFlowRepository(db),
		metrics:  metrics.GetMetrics(),
	}
}

func (s *PointService) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// record 写积分日志和对应的用户流水
func (s *PointService) record(ctx context.Context, tx *gorm.DB, userID int64, bucket model.Bucket, kind string, delta, after decimal.Decimal, reason, orderNo string) error {
	entry := &model.PointLog{
		UserID:       userID,
		Bucket:       string(bucket),
		Kind:         kind,
		Delta:        delta,
		BalanceAfter: after,
		Reason:       reason,
		OrderNo:      orderNo,
	}
	if err := s.logRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("记录积分日志失败: %w", err)
	}

	uid := userID
	flow := &model.Flow{
		FlowNo:       idgen.GenerateFlowNo(),
		AccountType:  string(bucket),
		RelatedUser:  &uid,
		OrderNo:      orderNo,
		Delta:        delta,
		BalanceAfter: after,
		Direction:    model.DirectionOf(delta),
		Remark:       reason,
	}
	if err := s.flowRepo.Create(ctx, tx, flow); err != nil {
		return fmt.Errorf("记录用户流水失败: %w", err)
	}
	return nil
}

func (s *PointService) increase(ctx context.Context, tx *gorm.DB, userID int64, bucket model.Bucket, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := s.userRepo.Increase(ctx, tx, userID, bucket, amount); err != nil {
		return decimal.Zero, fmt.Errorf("用户 %d %s 入账失败: %w", userID, bucket, err)
	}
	user, err := s.userRepo.GetByID(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.BucketBalance(bucket), nil
}

// Earn 增加用户桶余额，奖励类积分同时计入 true_total_points，返回桶的新余额
func (s *PointService) Earn(ctx context.Context, tx *gorm.DB, userID int64, bucket model.Bucket, amount decimal.Decimal, reason, orderNo string) (decimal.Decimal, error) {
	if !bucket.Valid() {
		return decimal.Zero, errno.Finance("无效的余额类型: %s", bucket)
	}
	amount = model.RoundMoney(amount)
	if amount.IsNegative() {
		return decimal.Zero, errno.Finance("入账金额不能为负数: %s", amount)
	}

	var after decimal.Decimal
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		if amount.IsZero() {
			user, err := s.userRepo.GetByID(ctx, tx, userID)
			if err != nil {
				return err
			}
			after = user.BucketBalance(bucket)
			return nil
		}

		var err error
		after, err = s.increase(ctx, tx, userID, bucket, amount)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, userID, bucket, bucket.PointKind(), amount, after, reason, orderNo); err != nil {
			return err
		}

		if bucket.IsReward() {
			total, err := s.increase(ctx, tx, userID, model.BucketTrueTotalPoints, amount)
			if err != nil {
				return err
			}
			entry := &model.PointLog{
				UserID:       userID,
				Bucket:       string(model.BucketTrueTotalPoints),
				Kind:         model.PointKindMember,
				Delta:        amount,
				BalanceAfter: total,
				Reason:       reason,
				OrderNo:      orderNo,
			}
			if err := s.logRepo.Create(ctx, tx, entry); err != nil {
				return fmt.Errorf("记录积分日志失败: %w", err)
			}
		}
		return nil
	})
	return after, err
}

// Spend 条件扣减用户桶：余额不足时积分桶返回 OrderError，现金桶返回 InsufficientBalanceError；
// 余额充足但未命中视为并发冲突
func (s *PointService) Spend(ctx context.Context, tx *gorm.DB, userID int64, bucket model.Bucket, amount decimal.Decimal, reason, orderNo string) (decimal.Decimal, error) {
	if !bucket.Valid() {
		return decimal.Zero, errno.Finance("无效的余额类型: %s", bucket)
	}
	amount = model.RoundMoney(amount)
	if amount.IsNegative() {
		return decimal.Zero, errno.Finance("扣减金额不能为负数: %s", amount)
	}

	var after decimal.Decimal
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		available := user.BucketBalance(bucket)
		if amount.IsZero() {
			after = available
			return nil
		}
		if available.LessThan(amount) {
			return s.insufficient(userID, bucket, amount, available)
		}

		ok, err := s.userRepo.Decrease(ctx, tx, userID, bucket, amount)
		if err != nil {
			return fmt.Errorf("用户 %d %s 扣减失败: %w", userID, bucket, err)
		}
		if !ok {
			current, err := s.userRepo.GetByID(ctx, tx, userID)
			if err != nil {
				return err
			}
			if current.BucketBalance(bucket).LessThan(amount) {
				return s.insufficient(userID, bucket, amount, current.BucketBalance(bucket))
			}
			return errno.ErrConcurrentUpdate
		}

		after = available.Sub(amount)
		current, err := s.userRepo.GetByID(ctx, tx, userID)
		if err == nil {
			after = current.BucketBalance(bucket)
		}
		return s.record(ctx, tx, userID, bucket, bucket.PointKind(), amount.Neg(), after, reason, orderNo)
	})
	return after, err
}

func (s *PointService) insufficient(userID int64, bucket model.Bucket, required, available decimal.Decimal) error {
	s.metrics.InsufficientBalance.WithLabelValues(string(bucket)).Inc()
	if bucket.IsCash() {
		return errno.InsufficientBalance(fmt.Sprintf("user:%d:%s", userID, bucket), required, available)
	}
	return errno.Order("积分不足: %s 需要 %s, 可用 %s", bucket, required.String(), available.String())
}

// SpendUpTo 扣减不超过当前余额的部分，返回实际扣减金额，退款回收时使用
func (s *PointService) SpendUpTo(ctx context.Context, tx *gorm.DB, userID int64, bucket model.Bucket, amount decimal.Decimal, reason, orderNo string) (decimal.Decimal, error) {
	user, err := s.userRepo.GetByID(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	actual := decimal.Min(model.RoundMoney(amount), user.BucketBalance(bucket))
	if !actual.IsPositive() {
		return decimal.Zero, nil
	}
	if _, err := s.Spend(ctx, tx, userID, bucket, actual, reason, orderNo); err != nil {
		return decimal.Zero, err
	}
	return actual, nil
}

// RedeemForCoupon 兑换优惠券，扣减 true_total_points
func (s *PointService) RedeemForCoupon(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.Spend(ctx, tx, userID, model.BucketTrueTotalPoints, amount, "兑换优惠券", "")
}

// CreditCompanyPoints 公司积分入账并记录一条 company 类型的积分日志
func (s *PointService) CreditCompanyPoints(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal, reason, orderNo string) error {
	return s.inTx(ctx, tx, func(tx *gorm.DB) error {
		after, err := s.ledger.Adjust(ctx, tx, model.PoolCompanyPoints, amount, reason, ForUser(userID, orderNo))
		if err != nil {
			return err
		}
		if model.RoundMoney(amount).IsZero() {
			return nil
		}
		entry := &model.PointLog{
			UserID:       userID,
			Bucket:       string(model.PoolCompanyPoints),
			Kind:         model.PointKindCompany,
			Delta:        model.RoundMoney(amount),
			BalanceAfter: after,
			Reason:       reason,
			OrderNo:      orderNo,
		}
		return s.logRepo.Create(ctx, tx, entry)
	})
}

// GetUser 查询用户账本各桶余额
func (s *PointService) GetUser(ctx context.Context, userID int64) (*model.UserLedger, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: 用户 %d", errno.ErrNotFound, userID)
		}
		return nil, err
	}
	return user, nil
}

func (s *PointService) ListLogs(ctx context.Context, userID int64, page, pageSize int) ([]*model.PointLog, int64, error) {
	return s.logRepo.ListByUser(ctx, userID, page, pageSize)
}
