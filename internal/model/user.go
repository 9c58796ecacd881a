package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bucket 用户余额/积分桶，取值同时是 user_ledger 表的列名
type Bucket string

const (
	BucketGeneralBalance   Bucket = "general_balance"
	BucketMerchantBalance  Bucket = "merchant_balance"
	BucketMemberPoints     Bucket = "member_points"
	BucketMerchantPoints   Bucket = "merchant_points"
	BucketReferralPoints   Bucket = "referral_points"
	BucketTeamRewardPoints Bucket = "team_reward_points"
	BucketSubsidyPoints    Bucket = "subsidy_points"
	BucketUnilevelPoints   Bucket = "unilevel_points"
	BucketTrueTotalPoints  Bucket = "true_total_points"
)

const (
	PointKindMember   = "member"
	PointKindMerchant = "merchant"
	PointKindCompany  = "company"
)

// Valid 只有白名单内的桶才能拼进 SQL
func (b Bucket) Valid() bool {
	switch b {
	case BucketGeneralBalance, BucketMerchantBalance, BucketMemberPoints, BucketMerchantPoints,
		BucketReferralPoints, BucketTeamRewardPoints, BucketSubsidyPoints, BucketUnilevelPoints,
		BucketTrueTotalPoints:
		return true
	}
	return false
}

// IsReward 奖励类积分同步计入 true_total_points
func (b Bucket) IsReward() bool {
	switch b {
	case BucketReferralPoints, BucketTeamRewardPoints, BucketSubsidyPoints, BucketUnilevelPoints:
		return true
	}
	return false
}

// IsCash 现金余额桶，余额不足按 InsufficientBalance 处理
func (b Bucket) IsCash() bool {
	return b == BucketGeneralBalance || b == BucketMerchantBalance
}

func (b Bucket) PointKind() string {
	if b == BucketMerchantPoints || b == BucketMerchantBalance {
		return PointKindMerchant
	}
	return PointKindMember
}

// UserLedger 用户账本，一行对应一个用户
type UserLedger struct {
	ID               int64           `gorm:"primaryKey" json:"id"`
	Name             string          `gorm:"type:varchar(64)" json:"name"`
	MemberLevel      int             `gorm:"not null;default:0;index" json:"member_level"`
	UnilevelLevel    int             `gorm:"not null;default:0;index" json:"unilevel_level"`
	IsHonorDirector  bool            `gorm:"not null;default:false" json:"is_honor_director"`
	GeneralBalance   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"general_balance"`
	MerchantBalance  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"merchant_balance"`
	MemberPoints     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"member_points"`
	MerchantPoints   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"merchant_points"`
	ReferralPoints   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"referral_points"`
	TeamRewardPoints decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"team_reward_points"`
	SubsidyPoints    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"subsidy_points"`
	UnilevelPoints   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"unilevel_points"`
	TrueTotalPoints  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"true_total_points"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserLedger) TableName() string {
	return "user_ledger"
}

// BucketBalance 读取指定桶的当前值
func (u *UserLedger) BucketBalance(b Bucket) decimal.Decimal {
	switch b {
	case BucketGeneralBalance:
		return u.GeneralBalance
	case BucketMerchantBalance:
		return u.MerchantBalance
	case BucketMemberPoints:
		return u.MemberPoints
	case BucketMerchantPoints:
		return u.MerchantPoints
	case BucketReferralPoints:
		return u.ReferralPoints
	case BucketTeamRewardPoints:
		return u.TeamRewardPoints
	case BucketSubsidyPoints:
		return u.SubsidyPoints
	case BucketUnilevelPoints:
		return u.UnilevelPoints
	case BucketTrueTotalPoints:
		return u.TrueTotalPoints
	}
	return decimal.Zero
}

// PointLog 用户积分流水，只追加
type PointLog struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64           `gorm:"index;not null" json:"user_id"`
	Bucket       string          `gorm:"type:varchar(32);not null" json:"bucket"`
	Kind         string          `gorm:"type:varchar(16);index;not null" json:"kind"`
	Delta        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"delta"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_after"`
	Reason       string          `gorm:"type:varchar(255)" json:"reason"`
	OrderNo      string          `gorm:"type:varchar(64);index;not null;default:''" json:"order_no"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointLog) TableName() string {
	return "points_log"
}

// ReferralEdge 推荐关系，每个用户至多一个推荐人，建立后不再修改
type ReferralEdge struct {
	UserID     int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	ReferrerID int64     `gorm:"index;not null" json:"referrer_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ReferralEdge) TableName() string {
	return "user_referral"
}
