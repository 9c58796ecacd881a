package repository

import (
	"context"
	"errors"

	"mallledger/internal/model"

	"gorm.io/gorm"
)

var ErrReferrerExists = errors.New("已绑定推荐人")

type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

func (r *ReferralRepository) Create(ctx context.Context, tx *gorm.DB, userID, referrerID int64) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(&model.ReferralEdge{UserID: userID, ReferrerID: referrerID}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrReferrerExists
	}
	return err
}

// GetReferrer 返回直接推荐人，found=false 表示没有推荐人
func (r *ReferralRepository) GetReferrer(ctx context.Context, tx *gorm.DB, userID int64) (int64, bool, error) {
	if tx == nil {
		tx = r.db
	}
	var edge model.ReferralEdge
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return edge.ReferrerID, true, nil
}

// ListDirect 一批用户的直推下级
func (r *ReferralRepository) ListDirect(ctx context.Context, tx *gorm.DB, referrerIDs []int64) ([]int64, error) {
	if tx == nil {
		tx = r.db
	}
	var ids []int64
	if len(referrerIDs) == 0 {
		return ids, nil
	}
	err := tx.WithContext(ctx).
		Model(&model.ReferralEdge{}).
		Where("referrer_id IN ?", referrerIDs).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
