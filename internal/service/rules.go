package service

import (
	"fmt"

	"mallledger/internal/config"

	"github.com/shopspring/decimal"
)

// Rules 资金规则，从配置解析一次后注入各服务
type Rules struct {
	MaxTeamLayer           int
	MaxMemberLevel         int
	MaxPointsValue         decimal.Decimal
	UnilevelCap            decimal.Decimal
	RewardRate             decimal.Decimal
	CompanyPointsRate      decimal.Decimal
	MerchantPointsRate     decimal.Decimal
	TaxRate                decimal.Decimal
	ManualAuditThreshold   decimal.Decimal
	CouponValidDays        int
	MaxMemberOrdersPerDay  int
	PlatformMerchantID     int64
	DirectorDirectRequired int
	DirectorTeamRequired   int
}

func NewRules(cfg config.FinanceConfig) (*Rules, error) {
	parse := func(name, value string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("配置 finance.%s 非法: %w", name, err)
		}
		if d.IsNegative() {
			return decimal.Zero, fmt.Errorf("配置 finance.%s 不能为负数", name)
		}
		return d, nil
	}

	r := &Rules{
		MaxTeamLayer:           cfg.MaxTeamLayer,
		MaxMemberLevel:         cfg.MaxMemberLevel,
		CouponValidDays:        cfg.CouponValidDays,
		MaxMemberOrdersPerDay:  cfg.MaxMemberOrdersPerDay,
		PlatformMerchantID:     cfg.PlatformMerchantID,
		DirectorDirectRequired: cfg.DirectorDirectRequired,
		DirectorTeamRequired:   cfg.DirectorTeamRequired,
	}

	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"max_points_value", cfg.MaxPointsValue, &r.MaxPointsValue},
		{"unilevel_cap", cfg.UnilevelCap, &r.UnilevelCap},
		{"reward_rate", cfg.RewardRate, &r.RewardRate},
		{"company_points_rate", cfg.CompanyPointsRate, &r.CompanyPointsRate},
		{"merchant_points_rate", cfg.MerchantPointsRate, &r.MerchantPointsRate},
		{"tax_rate", cfg.TaxRate, &r.TaxRate},
		{"manual_audit_threshold", cfg.ManualAuditThreshold, &r.ManualAuditThreshold},
	}
	for _, f := range fields {
		d, err := parse(f.name, f.value)
		if err != nil {
			return nil, err
		}
		*f.dst = d
	}

	if r.MaxTeamLayer <= 0 || r.MaxMemberLevel <= 0 {
		return nil, fmt.Errorf("配置 finance.max_team_layer/max_member_level 必须大于 0")
	}
	return r, nil
}

// DefaultRules 默认配置对应的规则
func DefaultRules() *Rules {
	r, err := NewRules(config.Default().Finance)
	if err != nil {
		panic(err)
	}
	return r
}
