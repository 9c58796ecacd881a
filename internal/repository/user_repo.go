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

var (
	ErrUserNotFound  = errors.New("用户不存在")
	ErrInvalidBucket = errors.New("非法的余额桶")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx)
}

func (r *UserRepository) GetByID(ctx context.Context, tx *gorm.DB, userID int64) (*model.UserLedger, error) {
	var user model.UserLedger
	err := r.conn(ctx, tx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// EnsureExists 用户账本不存在时创建空账本
func (r *UserRepository) EnsureExists(ctx context.Context, tx *gorm.DB, userID int64, name string) error {
	user := &model.UserLedger{ID: userID, Name: name}
	return r.conn(ctx, tx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(user).Error
}

// Increase 桶入账
func (r *UserRepository) Increase(ctx context.Context, tx *gorm.DB, userID int64, bucket model.Bucket, amount decimal.Decimal) error {
	if !bucket.Valid() {
		return ErrInvalidBucket
	}
	col := string(bucket)
	result := r.conn(ctx, tx).
		Model(&model.UserLedger{}).
		Where("id = ?", userID).
		Update(col, gorm.Expr(moneyExpr(col, "+"), amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Decrease 条件扣减：WHERE bucket >= amount，返回值表示是否命中
func (r *UserRepository) Decrease(ctx context.Context, tx *gorm.DB, userID int64, bucket model.Bucket, amount decimal.Decimal) (bool, error) {
	if !bucket.Valid() {
		return false, ErrInvalidBucket
	}
	col := string(bucket)
	result := r.conn(ctx, tx).
		Model(&model.UserLedger{}).
		Where(fmt.Sprintf("id = ? AND %s >= ?", col), userID, amount).
		Update(col, gorm.Expr(moneyExpr(col, "-"), amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateLevel 乐观更新星级，当前星级不是 fromLevel 时返回 false
func (r *UserRepository) UpdateLevel(ctx context.Context, tx *gorm.DB, userID int64, fromLevel, toLevel int) (bool, error) {
	result := r.conn(ctx, tx).
		Model(&model.UserLedger{}).
		Where("id = ? AND member_level = ?", userID, fromLevel).
		Update("member_level", toLevel)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *UserRepository) SetHonorDirector(ctx context.Context, tx *gorm.DB, userID int64) (bool, error) {
	result := r.conn(ctx, tx).
		Model(&model.UserLedger{}).
		Where("id = ? AND is_honor_director = ?", userID, false).
		Update("is_honor_director", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListPositive 指定桶大于 0 的用户，按 id 升序
func (r *UserRepository) ListPositive(ctx context.Context, tx *gorm.DB, bucket model.Bucket) ([]*model.UserLedger, error) {
	if !bucket.Valid() {
		return nil, ErrInvalidBucket
	}
	var users []*model.UserLedger
	err := r.conn(ctx, tx).
		Where(fmt.Sprintf("%s > ?", bucket), decimal.Zero).
		Order("id ASC").
		Find(&users).Error
	return users, err
}

// SumBucket 汇总所有用户某个桶的余额
func (r *UserRepository) SumBucket(ctx context.Context, tx *gorm.DB, bucket model.Bucket) (decimal.Decimal, error) {
	if !bucket.Valid() {
		return decimal.Zero, ErrInvalidBucket
	}
	var users []*model.UserLedger
	err := r.conn(ctx, tx).
		Select("id", string(bucket)).
		Where(fmt.Sprintf("%s > ?", bucket), decimal.Zero).
		Find(&users).Error
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, u := range users {
		sum = sum.Add(u.BucketBalance(bucket))
	}
	return sum, nil
}

// ListByUnilevel 指定 unilevel 等级的用户
func (r *UserRepository) ListByUnilevel(ctx context.Context, tx *gorm.DB, userIDs []int64, levels []int) ([]*model.UserLedger, error) {
	var users []*model.UserLedger
	if len(userIDs) == 0 {
		return users, nil
	}
	err := r.conn(ctx, tx).
		Where("id IN ? AND unilevel_level IN ?", userIDs, levels).
		Order("id ASC").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) ListByMemberLevel(ctx context.Context, tx *gorm.DB, level int) ([]*model.UserLedger, error) {
	var users []*model.UserLedger
	err := r.conn(ctx, tx).Where("member_level = ?", level).Order("id ASC").Find(&users).Error
	return users, err
}

// CountByLevel 给定用户中星级不低于 level 的人数
func (r *UserRepository) CountByLevel(ctx context.Context, tx *gorm.DB, userIDs []int64, level int) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := r.conn(ctx, tx).
		Model(&model.UserLedger{}).
		Where("id IN ? AND member_level >= ?", userIDs, level).
		Count(&count).Error
	return count, err
}
