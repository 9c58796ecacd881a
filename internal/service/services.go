package service

import (
	"mallledger/internal/config"
	"mallledger/internal/infrastructure/lock"

	"gorm.io/gorm"
)

// Services 组装好的全部服务，server 和 ledgerctl 共用
type Services struct {
	Ledger     *LedgerService
	Points     *PointService
	Allocation *AllocationService
	Rewards    *RewardService
	Settlement *SettlementService
	Overrides  *OverrideService
	Subsidy    *SubsidyService
	Dividend   *DividendService
	Orders     *OrderService
	Refunds    *RefundService
	Withdrawal *WithdrawalService
	Pools      *PoolAdminService
	Referrals  *ReferralService
	Coupons    *CouponService
	Directors  *DirectorService
}

func NewServices(db *gorm.DB, cfg *config.Config, rules *Rules, locker lock.Locker, idem IdempotencyCache) *Services {
	events := NewEventWriter(db, cfg.Kafka.Topic)
	ledger := NewLedgerService(db)
	points := NewPointService(db, ledger)
	alloc := NewAllocationService(db)
	rewards := NewRewardService(db, rules, points)
	overrides := NewOverrideService(db)
	coupons := NewCouponService(db, rules, points)
	referrals := NewReferralService(db, rules)

	return &Services{
		Ledger:     ledger,
		Points:     points,
		Allocation: alloc,
		Rewards:    rewards,
		Settlement: NewSettlementService(db, rules, ledger, points, alloc, rewards, events),
		Overrides:  overrides,
		Subsidy:    NewSubsidyService(db, rules, ledger, points, overrides, events),
		Dividend:   NewDividendService(db, rules, ledger, points, overrides, events),
		Orders:     NewOrderService(db, cfg, rules, locker, idem, coupons),
		Refunds:    NewRefundService(db, ledger, points, events),
		Withdrawal: NewWithdrawalService(db, rules, ledger, points, events),
		Pools:      NewPoolAdminService(db, ledger, events),
		Referrals:  referrals,
		Coupons:    coupons,
		Directors:  NewDirectorService(db, rules, referrals),
	}
}
