package model

import "github.com/shopspring/decimal"

// MoneyScale 金额与积分统一保留 4 位小数，与 decimal(20,4) 列一致
const MoneyScale = 4

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}
