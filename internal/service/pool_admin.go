package service

import (
	"context"
	"fmt"

	"mallledger/internal/model"
	"mallledger/pkg/errno"
	"mallledger/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ClearedPool struct {
	PoolType      model.PoolKind  `json:"pool_type"`
	Name          string          `json:"name"`
	AmountCleared decimal.Decimal `json:"amount_cleared"`
}

type ClearPoolsResult struct {
	ClearedPools []ClearedPool   `json:"cleared_pools"`
	TotalCleared decimal.Decimal `json:"total_cleared"`
}

// PoolAdminService 资金池运维操作
type PoolAdminService struct {
	db     *gorm.DB
	ledger *LedgerService
	events *EventWriter
}

func NewPoolAdminService(db *gorm.DB, ledger *LedgerService, events *EventWriter) *PoolAdminService {
	return &PoolAdminService{db: db, ledger: ledger, events: events}
}

// ClearPools 清空指定资金池，余额为 0 的跳过，每个池子记一条流水
func (s *PoolAdminService) ClearPools(ctx context.Context, kinds []model.PoolKind, operator string) (*ClearPoolsResult, error) {
	if len(kinds) == 0 {
		return nil, errno.Finance("必须指定要清空的资金池类型")
	}
	for _, kind := range kinds {
		if !kind.Valid() {
			return nil, errno.Finance("无效的资金池类型: %s", kind)
		}
	}

	result := &ClearPoolsResult{ClearedPools: []ClearedPool{}, TotalCleared: decimal.Zero}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen := make(map[model.PoolKind]bool, len(kinds))
		for _, kind := range kinds {
			if seen[kind] {
				continue
			}
			seen[kind] = true

			balance, err := s.ledger.GetBalance(ctx, tx, kind)
			if err != nil {
				return err
			}
			if !balance.IsPositive() {
				continue
			}
			reason := fmt.Sprintf("手动清空资金池 操作人:%s", operator)
			if _, err := s.ledger.Adjust(ctx, tx, kind, balance.Neg(), reason, FlowRef{}); err != nil {
				return err
			}
			result.ClearedPools = append(result.ClearedPools, ClearedPool{PoolType: kind, Name: kind.Name(), AmountCleared: balance})
			result.TotalCleared = result.TotalCleared.Add(balance)
		}
		if len(result.ClearedPools) == 0 {
			return nil
		}
		return s.events.Write(ctx, tx, model.EventPoolsCleared, operator, result)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("[PoolAdmin] 资金池清空完成",
		zap.Int("pools", len(result.ClearedPools)), zap.String("total", result.TotalCleared.String()))
	return result, nil
}

func (s *PoolAdminService) ListPools(ctx context.Context) ([]*model.Pool, error) {
	return s.ledger.ListPools(ctx)
}
