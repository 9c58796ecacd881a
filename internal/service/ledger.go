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

// FlowRef 流水的关联信息
type FlowRef struct {
	RelatedUser *int64
	OrderNo     string
}

// ForUser 关联到用户的流水
func ForUser(userID int64, orderNo string) FlowRef {
	return FlowRef{RelatedUser: &userID, OrderNo: orderNo}
}

// LedgerService 资金池账本，资金池余额只能通过 Adjust 修改
type LedgerService struct {
	db       *gorm.DB
	poolRepo *repository.PoolRepository
	flowRepo *repository.FlowRepository
	metrics  *metrics.Metrics
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{
		db:       db,
		poolRepo: repository.NewPoolRepository(db),
		flowRepo: repository.NewFlowRepository(db),
		metrics:  metrics.GetMetrics(),
	}
}

// SeedPools 启动时初始化全部资金池
func (s *LedgerService) SeedPools(ctx context.Context) error {
	return s.poolRepo.Seed(ctx)
}

// GetBalance 资金池不存在时返回 0
func (s *LedgerService) GetBalance(ctx context.Context, tx *gorm.DB, kind model.PoolKind) (decimal.Decimal, error) {
	pool, err := s.poolRepo.Get(ctx, tx, kind)
	if err != nil {
		if errors.Is(err, repository.ErrPoolNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return pool.Balance, nil
}

func (s *LedgerService) ListPools(ctx context.Context) ([]*model.Pool, error) {
	return s.poolRepo.List(ctx, nil)
}

// Adjust 变动资金池余额并追加一条流水，返回变动后的余额
//
// 扣减走条件更新 balance >= |delta|，余额不足返回 InsufficientBalanceError；
// tx 为空时自行开启事务
func (s *LedgerService) Adjust(ctx context.Context, tx *gorm.DB, kind model.PoolKind, delta decimal.Decimal, reason string, ref FlowRef) (decimal.Decimal, error) {
	if !kind.Valid() {
		return decimal.Zero, errno.Finance("无效的资金池类型: %s", kind)
	}

	if tx == nil {
		var after decimal.Decimal
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			after, err = s.Adjust(ctx, tx, kind, delta, reason, ref)
			return err
		})
		return after, err
	}

	delta = model.RoundMoney(delta)
	if delta.IsZero() {
		return s.GetBalance(ctx, tx, kind)
	}

	if delta.IsPositive() {
		if err := s.poolRepo.Increase(ctx, tx, kind, delta); err != nil {
			return decimal.Zero, fmt.Errorf("资金池 %s 入账失败: %w", kind, err)
		}
	} else {
		required := delta.Abs()
		ok, err := s.poolRepo.Decrease(ctx, tx, kind, required)
		if err != nil {
			return decimal.Zero, fmt.Errorf("资金池 %s 扣减失败: %w", kind, err)
		}
		if !ok {
			available, err := s.GetBalance(ctx, tx, kind)
			if err != nil {
				return decimal.Zero, err
			}
			if available.LessThan(required) {
				s.metrics.InsufficientBalance.WithLabelValues(string(kind)).Inc()
				return decimal.Zero, errno.InsufficientBalance(string(kind), required, available)
			}
			return decimal.Zero, errno.ErrConcurrentUpdate
		}
	}

	after, err := s.GetBalance(ctx, tx, kind)
	if err != nil {
		return decimal.Zero, err
	}

	flow := &model.Flow{
		FlowNo:       idgen.GenerateFlowNo(),
		AccountType:  string(kind),
		RelatedUser:  ref.RelatedUser,
		OrderNo:      ref.OrderNo,
		Delta:        delta,
		BalanceAfter: after,
		Direction:    model.DirectionOf(delta),
		Remark:       reason,
	}
	if err := s.flowRepo.Create(ctx, tx, flow); err != nil {
		return decimal.Zero, fmt.Errorf("记录资金流水失败: %w", err)
	}

	s.metrics.PoolAdjustTotal.WithLabelValues(string(kind), flow.Direction).Inc()
	return after, nil
}

// Transfer 从一个资金池划转到另一个资金池，成对记录流水
func (s *LedgerService) Transfer(ctx context.Context, tx *gorm.DB, from, to model.PoolKind, amount decimal.Decimal, reason string, ref FlowRef) error {
	if tx == nil {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.Transfer(ctx, tx, from, to, amount, reason, ref)
		})
	}
	if _, err := s.Adjust(ctx, tx, from, amount.Neg(), reason, ref); err != nil {
		return err
	}
	_, err := s.Adjust(ctx, tx, to, amount, reason, ref)
	return err
}

// ListFlows 按账户分页查询流水，账户为资金池类型或用户桶名
func (s *LedgerService) ListFlows(ctx context.Context, accountType string, page, pageSize int) ([]*model.Flow, int64, error) {
	return s.flowRepo.ListByAccount(ctx, accountType, page, pageSize)
}
