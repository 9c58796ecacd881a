package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RewardStatusPending  = "pending"
	RewardStatusApproved = "approved"
	RewardStatusRejected = "rejected"
)

const (
	CouponStatusUnused  = "unused"
	CouponStatusUsed    = "used"
	CouponStatusExpired = "expired"
)

// PendingReward 待审核的优惠券兑换申请，审核通过时才扣减 true_total_points
type PendingReward struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64           `gorm:"index;not null" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Status    string          `gorm:"type:varchar(16);index;not null" json:"status"`
	Auditor   string          `gorm:"type:varchar(64)" json:"auditor"`
	CouponID  *int64          `json:"coupon_id,omitempty"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PendingReward) TableName() string {
	return "pending_reward"
}

type Coupon struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CouponNo  string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"coupon_no"`
	UserID    int64           `gorm:"index;not null" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Status    string          `gorm:"type:varchar(16);index;not null" json:"status"`
	ValidFrom time.Time       `gorm:"not null" json:"valid_from"`
	ValidTo   time.Time       `gorm:"index;not null" json:"valid_to"`
	UsedAt    *time.Time      `json:"used_at"`
	RewardID  *int64          `json:"reward_id,omitempty"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Coupon) TableName() string {
	return "coupon"
}
