package repository

import (
	"context"

	"mallledger/internal/model"

	"gorm.io/gorm"
)

type PointLogRepository struct {
	db *gorm.DB
}

func NewPointLogRepository(db *gorm.DB) *PointLogRepository {
	return &PointLogRepository{db: db}
}

func (r *PointLogRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.PointLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *PointLogRepository) ListByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) ([]*model.PointLog, error) {
	if tx == nil {
		tx = r.db
	}
	var logs []*model.PointLog
	err := tx.WithContext(ctx).Where("order_no = ?", orderNo).Order("id ASC").Find(&logs).Error
	return logs, err
}

func (r *PointLogRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*model.PointLog, int64, error) {
	var logs []*model.PointLog
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PointLog{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error
	return logs, total, err
}
