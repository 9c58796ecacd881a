package repository

import (
	"context"
	"errors"

	"mallledger/internal/model"

	"gorm.io/gorm"
)

var ErrWithdrawalNotFound = errors.New("提现记录不存在")

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, w *model.Withdrawal) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(w).Error
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Withdrawal, error) {
	if tx == nil {
		tx = r.db
	}
	var w model.Withdrawal
	err := tx.WithContext(ctx).Where("id = ?", id).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &w, nil
}

// FinishAudit 条件更新：只有仍在 fromStatus 的记录会被改写
func (r *WithdrawalRepository) FinishAudit(ctx context.Context, tx *gorm.DB, id int64, fromStatus string, updates map[string]interface{}) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Withdrawal{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*model.Withdrawal, error) {
	var list []*model.Withdrawal
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Limit(limit).Find(&list).Error
	return list, err
}
