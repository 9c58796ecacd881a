package repository

import (
	"context"

	"mallledger/internal/model"

	"gorm.io/gorm"
)

type FlowRepository struct {
	db *gorm.DB
}

func NewFlowRepository(db *gorm.DB) *FlowRepository {
	return &FlowRepository{db: db}
}

func (r *FlowRepository) Create(ctx context.Context, tx *gorm.DB, flow *model.Flow) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(flow).Error
}

// ExistsByOrderNo 订单是否已有流水，accountTypes 为空时不限账户类型
func (r *FlowRepository) ExistsByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string, accountTypes ...string) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	query := tx.WithContext(ctx).Model(&model.Flow{}).Where("order_no = ?", orderNo)
	if len(accountTypes) > 0 {
		query = query.Where("account_type IN ?", accountTypes)
	}

	var count int64
	if err := query.Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *FlowRepository) ListByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) ([]*model.Flow, error) {
	if tx == nil {
		tx = r.db
	}
	var flows []*model.Flow
	err := tx.WithContext(ctx).Where("order_no = ?", orderNo).Order("id ASC").Find(&flows).Error
	return flows, err
}

func (r *FlowRepository) ListByAccount(ctx context.Context, accountType string, page, pageSize int) ([]*model.Flow, int64, error) {
	var flows []*model.Flow
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Flow{}).Where("account_type = ?", accountType)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&flows).Error
	return flows, total, err
}
