package service

import (
	"context"
	"fmt"
	"time"

	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/errno"
	"mallledger/pkg/logger"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const allocationCacheKey = "allocation:effective"

// Allocation 生效的分配比例
type Allocation map[model.PoolKind]decimal.Decimal

// SubPoolSum 子池比例之和，不含商家部分
func (a Allocation) SubPoolSum() decimal.Decimal {
	sum := decimal.Zero
	for _, kind := range model.SubPoolKinds {
		sum = sum.Add(a[kind])
	}
	return sum
}

func (a Allocation) clone() Allocation {
	out := make(Allocation, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// AllocationService 订单分账比例，读多写少，进程内缓存一份
type AllocationService struct {
	db       *gorm.DB
	poolRepo *repository.PoolRepository
	cache    *cache.Cache
}

func NewAllocationService(db *gorm.DB) *AllocationService {
	return &AllocationService{
		db:       db,
		poolRepo: repository.NewPoolRepository(db),
		cache:    cache.New(time.Minute, 5*time.Minute),
	}
}

// Effective 默认比例与已持久化比例合并后的结果
func (s *AllocationService) Effective(ctx context.Context, tx *gorm.DB) (Allocation, error) {
	if cached, ok := s.cache.Get(allocationCacheKey); ok {
		return cached.(Allocation).clone(), nil
	}

	stored, err := s.poolRepo.LoadAllocation(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("读取分配比例失败: %w", err)
	}

	effective := make(Allocation, len(model.DefaultAllocation))
	for k, v := range model.DefaultAllocation {
		effective[k] = v
	}
	for k, v := range stored {
		if _, known := model.DefaultAllocation[k]; known {
			effective[k] = v
		}
	}

	s.cache.SetDefault(allocationCacheKey, effective)
	return effective.clone(), nil
}

// SetAllocation 校验并持久化分配比例，返回合并后的生效比例
//
// 只接受子池和商家结算池，单项在 [0,1]，合并后子池之和不超过 0.20
func (s *AllocationService) SetAllocation(ctx context.Context, ratios map[model.PoolKind]decimal.Decimal) (Allocation, error) {
	if len(ratios) == 0 {
		return nil, errno.Finance("分配比例不能为空")
	}
	for kind, ratio := range ratios {
		if !kind.IsSubPool() && kind != model.PoolMerchantClearing {
			return nil, errno.Finance("无效的分配项: %s", kind)
		}
		if ratio.IsNegative() || ratio.GreaterThan(decimal.NewFromInt(1)) {
			return nil, errno.Finance("分配比例 %s 超出范围: %s", kind, ratio.String())
		}
	}

	var effective Allocation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s.cache.Delete(allocationCacheKey)
		current, err := s.Effective(ctx, tx)
		if err != nil {
			return err
		}
		for kind, ratio := range ratios {
			current[kind] = ratio
		}
		if sum := current.SubPoolSum(); sum.GreaterThan(model.MaxSubPoolRatio) {
			return errno.Finance("子池分配比例之和 %s 超过上限 %s", sum.String(), model.MaxSubPoolRatio.String())
		}
		if err := s.poolRepo.SaveAllocation(ctx, tx, ratios); err != nil {
			return fmt.Errorf("保存分配比例失败: %w", err)
		}
		effective = current
		return nil
	})
	s.cache.Delete(allocationCacheKey)
	if err != nil {
		return nil, err
	}

	logger.Info("[Allocation] 分配比例已更新", zap.String("sub_pool_sum", effective.SubPoolSum().String()))
	return effective, nil
}
