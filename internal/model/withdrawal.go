package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	WithdrawalKindUser     = "user"
	WithdrawalKindMerchant = "merchant"
)

const (
	WithdrawalStatusPendingAuto   = "pending_auto"
	WithdrawalStatusPendingManual = "pending_manual"
	WithdrawalStatusApproved      = "approved"
	WithdrawalStatusRejected      = "rejected"
)

type Withdrawal struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	WithdrawalNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"withdrawal_no"`
	UserID       int64           `gorm:"index;not null" json:"user_id"`
	Kind         string          `gorm:"type:varchar(16);not null" json:"kind"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	TaxAmount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"tax_amount"`
	ActualAmount decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"actual_amount"`
	Status       string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Auditor      string          `gorm:"type:varchar(64)" json:"auditor"`
	AuditRemark  string          `gorm:"type:varchar(255)" json:"audit_remark"`
	ProcessedAt  *time.Time      `json:"processed_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Withdrawal) TableName() string {
	return "withdrawal"
}

func IsWithdrawalPending(status string) bool {
	return status == WithdrawalStatusPendingAuto || status == WithdrawalStatusPendingManual
}

// BalanceBucket 提现扣减的余额桶
func (w *Withdrawal) BalanceBucket() Bucket {
	if w.Kind == WithdrawalKindMerchant {
		return BucketMerchantBalance
	}
	return BucketGeneralBalance
}
