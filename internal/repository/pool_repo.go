package repository

import (
	"context"
	"errors"
	"fmt"

	"mallledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrPoolNotFound = errors.New("资金池不存在")

type PoolRepository struct {
	db *gorm.DB
}

func NewPoolRepository(db *gorm.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

func (r *PoolRepository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx)
}

// Seed 确保每种资金池都有一行，已存在的不动
func (r *PoolRepository) Seed(ctx context.Context) error {
	for _, kind := range model.AllPoolKinds {
		if err := r.ensure(ctx, nil, kind); err != nil {
			return err
		}
	}
	return nil
}

func (r *PoolRepository) ensure(ctx context.Context, tx *gorm.DB, kind model.PoolKind) error {
	pool := &model.Pool{PoolType: kind, Name: kind.Name(), Balance: decimal.Zero}
	return r.conn(ctx, tx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pool_type"}},
			DoNothing: true,
		}).
		Create(pool).Error
}

func (r *PoolRepository) Get(ctx context.Context, tx *gorm.DB, kind model.PoolKind) (*model.Pool, error) {
	var pool model.Pool
	err := r.conn(ctx, tx).Where("pool_type = ?", kind).First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}
	return &pool, nil
}

func (r *PoolRepository) List(ctx context.Context, tx *gorm.DB) ([]*model.Pool, error) {
	var pools []*model.Pool
	err := r.conn(ctx, tx).Order("id ASC").Find(&pools).Error
	return pools, err
}

// Increase 入账，行不存在时先补建
func (r *PoolRepository) Increase(ctx context.Context, tx *gorm.DB, kind model.PoolKind, amount decimal.Decimal) error {
	update := func() (int64, error) {
		result := r.conn(ctx, tx).
			Model(&model.Pool{}).
			Where("pool_type = ?", kind).
			Update("balance", gorm.Expr(moneyExpr("balance", "+"), amount))
		return result.RowsAffected, result.Error
	}

	affected, err := update()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	if err := r.ensure(ctx, tx, kind); err != nil {
		return fmt.Errorf("初始化资金池失败: %w", err)
	}
	affected, err = update()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPoolNotFound
	}
	return nil
}

// Decrease 条件扣减：只有余额充足时才会命中，返回值表示是否扣减成功
func (r *PoolRepository) Decrease(ctx context.Context, tx *gorm.DB, kind model.PoolKind, amount decimal.Decimal) (bool, error) {
	result := r.conn(ctx, tx).
		Model(&model.Pool{}).
		Where("pool_type = ? AND balance >= ?", kind, amount).
		Update("balance", gorm.Expr(moneyExpr("balance", "-"), amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SaveAllocation 持久化分配比例，每个池子一行
func (r *PoolRepository) SaveAllocation(ctx context.Context, tx *gorm.DB, ratios map[model.PoolKind]decimal.Decimal) error {
	for kind, ratio := range ratios {
		if err := r.ensure(ctx, tx, kind); err != nil {
			return err
		}
		err := r.conn(ctx, tx).
			Model(&model.Pool{}).
			Where("pool_type = ?", kind).
			Update("allocation_ratio", decimal.NewNullDecimal(ratio)).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadAllocation 读取已持久化的比例，未设置的池子不返回
func (r *PoolRepository) LoadAllocation(ctx context.Context, tx *gorm.DB) (map[model.PoolKind]decimal.Decimal, error) {
	var pools []*model.Pool
	if err := r.conn(ctx, tx).Where("allocation_ratio IS NOT NULL").Find(&pools).Error; err != nil {
		return nil, err
	}
	ratios := make(map[model.PoolKind]decimal.Decimal, len(pools))
	for _, p := range pools {
		if p.AllocationRatio.Valid {
			ratios[p.PoolType] = p.AllocationRatio.Decimal
		}
	}
	return ratios, nil
}

// moneyExpr 金额列增减后统一舍入到 4 位小数
func moneyExpr(col, op string) string {
	return fmt.Sprintf("ROUND(%s %s ?, %d)", col, op, model.MoneyScale)
}
