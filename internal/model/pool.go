package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PoolKind 平台资金池类型
type PoolKind string

const (
	PoolPlatformRevenue  PoolKind = "platform_revenue_pool"
	PoolPublicWelfare    PoolKind = "public_welfare"
	PoolMaintenance      PoolKind = "maintenance"
	PoolSubsidy          PoolKind = "subsidy_pool"
	PoolHonorDirector    PoolKind = "honor_director"
	PoolCompanyPoints    PoolKind = "company_points"
	PoolCompanyBalance   PoolKind = "company_balance"
	PoolShop             PoolKind = "shop"
	PoolCity             PoolKind = "city"
	PoolBranch           PoolKind = "branch"
	PoolFund             PoolKind = "fund"
	PoolMerchantClearing PoolKind = "merchant_clearing"
)

var poolNames = map[PoolKind]string{
	PoolPlatformRevenue:  "平台收入池",
	PoolPublicWelfare:    "公益基金",
	PoolMaintenance:      "平台维护",
	PoolSubsidy:          "周补贴池",
	PoolHonorDirector:    "荣誉董事分红池",
	PoolCompanyPoints:    "公司积分",
	PoolCompanyBalance:   "公司余额",
	PoolShop:             "社区店",
	PoolCity:             "城市运营中心",
	PoolBranch:           "大区分公司",
	PoolFund:             "事业发展基金",
	PoolMerchantClearing: "商家结算池",
}

// AllPoolKinds 启动时需要初始化的全部资金池
var AllPoolKinds = []PoolKind{
	PoolPlatformRevenue,
	PoolPublicWelfare,
	PoolMaintenance,
	PoolSubsidy,
	PoolHonorDirector,
	PoolCompanyPoints,
	PoolCompanyBalance,
	PoolShop,
	PoolCity,
	PoolBranch,
	PoolFund,
	PoolMerchantClearing,
}

// SubPoolKinds 参与订单分账的子池，顺序即分账顺序
var SubPoolKinds = []PoolKind{
	PoolPublicWelfare,
	PoolMaintenance,
	PoolSubsidy,
	PoolHonorDirector,
	PoolShop,
	PoolCity,
	PoolBranch,
	PoolFund,
}

// DefaultAllocation 默认分配比例，商家部分挂在商家结算池上
var DefaultAllocation = map[PoolKind]decimal.Decimal{
	PoolMerchantClearing: decimal.RequireFromString("0.80"),
	PoolPublicWelfare:    decimal.RequireFromString("0.01"),
	PoolMaintenance:      decimal.RequireFromString("0.01"),
	PoolSubsidy:          decimal.RequireFromString("0.12"),
	PoolHonorDirector:    decimal.RequireFromString("0.02"),
	PoolShop:             decimal.RequireFromString("0.01"),
	PoolCity:             decimal.RequireFromString("0.01"),
	PoolBranch:           decimal.RequireFromString("0.005"),
	PoolFund:             decimal.RequireFromString("0.015"),
}

// MaxSubPoolRatio 子池比例之和上限
var MaxSubPoolRatio = decimal.RequireFromString("0.20")

func (k PoolKind) Name() string {
	if name, ok := poolNames[k]; ok {
		return name
	}
	return string(k)
}

func (k PoolKind) Valid() bool {
	_, ok := poolNames[k]
	return ok
}

// IsSubPool 是否为分账子池
func (k PoolKind) IsSubPool() bool {
	for _, p := range SubPoolKinds {
		if p == k {
			return true
		}
	}
	return false
}

// Pool 平台资金池，每种类型一行
type Pool struct {
	ID              int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	PoolType        PoolKind            `gorm:"type:varchar(32);uniqueIndex;not null" json:"pool_type"`
	Name            string              `gorm:"type:varchar(64);not null" json:"name"`
	Balance         decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	AllocationRatio decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"allocation_ratio"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Pool) TableName() string {
	return "finance_pool"
}
