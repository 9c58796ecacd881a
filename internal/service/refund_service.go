package service

import (
	"context"
	"errors"
	"fmt"

	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/errno"
	"mallledger/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RefundResponse struct {
	OrderNo         string                             `json:"order_no"`
	Status          string                             `json:"status"`
	PoolsReversed   map[model.PoolKind]decimal.Decimal `json:"pools_reversed"`
	PointsReturned  decimal.Decimal                    `json:"points_returned"`
	PointsReclaimed decimal.Decimal                    `json:"points_reclaimed"`
	RewardsClawback map[int64]decimal.Decimal          `json:"rewards_clawback"`
	LevelRestored   int                                `json:"level_restored"`
}

// RefundService 订单退款：按流水冲回资金池、积分、奖励和星级
type RefundService struct {
	db        *gorm.DB
	ledger    *LedgerService
	points    *PointService
	events    *EventWriter
	orderRepo *repository.OrderRepository
	flowRepo  *repository.FlowRepository
	userRepo  *repository.UserRepository
}

func NewRefundService(db *gorm.DB, ledger *LedgerService, points *PointService, events *EventWriter) *RefundService {
	return &RefundService{
		db:        db,
		ledger:    ledger,
		points:    points,
		events:    events,
		orderRepo: repository.NewOrderRepository(db),
		flowRepo:  repository.NewFlowRepository(db),
		userRepo:  repository.NewUserRepository(db),
	}
}

type userBucket struct {
	userID int64
	bucket model.Bucket
}

func (s *RefundService) RefundOrder(ctx context.Context, orderNo string) (*RefundResponse, error) {
	var resp *RefundResponse

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.GetByOrderNo(ctx, tx, orderNo)
		if err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				return errno.Order("订单不存在: %s", orderNo)
			}
			return err
		}
		if !model.CanTransitionTo(order.Status, model.OrderStatusRefunded) {
			return errno.Order("订单状态不允许退款: %s", order.Status)
		}

		flows, err := s.flowRepo.ListByOrderNo(ctx, tx, orderNo)
		if err != nil {
			return fmt.Errorf("查询订单流水失败: %w", err)
		}

		resp = &RefundResponse{
			OrderNo:         orderNo,
			PoolsReversed:   make(map[model.PoolKind]decimal.Decimal),
			PointsReturned:  decimal.Zero,
			PointsReclaimed: decimal.Zero,
			RewardsClawback: make(map[int64]decimal.Decimal),
		}

		// 资金池：按净入账金额冲回
		poolNet := make(map[model.PoolKind]decimal.Decimal)
		earned := make(map[userBucket]decimal.Decimal)
		var earnedOrder []userBucket
		for _, f := range flows {
			if kind := model.PoolKind(f.AccountType); kind.Valid() {
				poolNet[kind] = poolNet[kind].Add(f.Delta)
				continue
			}
			if f.RelatedUser == nil || !f.Delta.IsPositive() {
				continue
			}
			key := userBucket{userID: *f.RelatedUser, bucket: model.Bucket(f.AccountType)}
			if _, seen := earned[key]; !seen {
				earnedOrder = append(earnedOrder, key)
			}
			earned[key] = earned[key].Add(f.Delta)
		}

		reason := fmt.Sprintf("订单%s 退款冲回", orderNo)
		for _, kind := range model.AllPoolKinds {
			net := poolNet[kind]
			if !net.IsPositive() {
				continue
			}
			if _, err := s.ledger.Adjust(ctx, tx, kind, net.Neg(), reason, ForUser(order.BuyerID, orderNo)); err != nil {
				return err
			}
			resp.PoolsReversed[kind] = net
		}

		// 用户侧：发放的积分和奖励按当前余额封顶回收
		for _, key := range earnedOrder {
			amount := earned[key]
			actual, err := s.points.SpendUpTo(ctx, tx, key.userID, key.bucket, amount, reason, orderNo)
			if err != nil {
				return err
			}
			if key.bucket.IsReward() && actual.IsPositive() {
				if _, err := s.points.SpendUpTo(ctx, tx, key.userID, model.BucketTrueTotalPoints, actual, reason, orderNo); err != nil {
					return err
				}
				resp.RewardsClawback[key.userID] = resp.RewardsClawback[key.userID].Add(actual)
			}
			if key.bucket == model.BucketMemberPoints && key.userID == order.BuyerID {
				resp.PointsReclaimed = resp.PointsReclaimed.Add(actual)
			}
			if actual.LessThan(amount) {
				logger.Warn("[Refund] 积分余额不足，按实际余额回收",
					zap.String("order_no", orderNo),
					zap.Int64("user_id", key.userID),
					zap.String("bucket", string(key.bucket)),
					zap.String("expected", amount.String()),
					zap.String("actual", actual.String()))
			}
		}

		// 抵扣的积分退回给买家，来源于公司积分（上面已冲回）
		if order.PointsDiscount.IsPositive() {
			if _, err := s.points.Earn(ctx, tx, order.BuyerID, model.BucketMemberPoints, order.PointsDiscount, "退款返还抵扣积分", orderNo); err != nil {
				return err
			}
			resp.PointsReturned = order.PointsDiscount
		}

		if gain := order.LevelAfter - order.LevelBefore; gain > 0 {
			buyer, err := s.userRepo.GetByID(ctx, tx, order.BuyerID)
			if err != nil {
				return err
			}
			restored := buyer.MemberLevel - gain
			if restored < 0 {
				restored = 0
			}
			if restored != buyer.MemberLevel {
				ok, err := s.userRepo.UpdateLevel(ctx, tx, buyer.ID, buyer.MemberLevel, restored)
				if err != nil {
					return err
				}
				if !ok {
					return errno.ErrConcurrentUpdate
				}
			}
			resp.LevelRestored = restored
		}

		if err := s.orderRepo.UpdateStatus(ctx, tx, orderNo, order.Status, model.OrderStatusRefunded, nil); err != nil {
			if errors.Is(err, repository.ErrOrderStatusInvalid) {
				return errno.ErrConcurrentUpdate
			}
			return err
		}
		resp.Status = model.OrderStatusRefunded

		return s.events.Write(ctx, tx, model.EventOrderRefunded, orderNo, resp)
	})
	if err != nil {
		logger.Error("[Refund] 退款失败", zap.String("order_no", orderNo), zap.Error(err))
		return nil, err
	}

	logger.Info("[Refund] 退款成功", zap.String("order_no", orderNo))
	return resp, nil
}
