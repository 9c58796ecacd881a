package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FlowDirectionIncome  = "income"
	FlowDirectionExpense = "expense"
)

// Flow 资金流水，只追加，不修改，不删除
//
// AccountType 既可以是资金池类型，也可以是用户余额/积分桶；
// OrderNo 非空时用于结算与奖励的幂等判断
type Flow struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	FlowNo       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"flow_no"`
	AccountType  string          `gorm:"type:varchar(32);index;not null" json:"account_type"`
	RelatedUser  *int64          `gorm:"index" json:"related_user,omitempty"`
	OrderNo      string          `gorm:"type:varchar(64);index;not null;default:''" json:"order_no"`
	Delta        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"delta"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_after"`
	Direction    string          `gorm:"type:varchar(16);not null" json:"direction"`
	Remark       string          `gorm:"type:varchar(255)" json:"remark"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Flow) TableName() string {
	return "account_flow"
}

func DirectionOf(delta decimal.Decimal) string {
	if delta.IsNegative() {
		return FlowDirectionExpense
	}
	return FlowDirectionIncome
}
