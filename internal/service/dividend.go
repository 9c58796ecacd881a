package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/errno"
	"mallledger/pkg/idgen"
	"mallledger/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// amountPerWeightScale 每份权重金额保留两位小数
const amountPerWeightScale = 2

var unilevelWeights = []int{1, 2, 3}

type CappedUser struct {
	UserID      int64           `json:"user_id"`
	Theoretical decimal.Decimal `json:"theoretical"`
	Actual      decimal.Decimal `json:"actual"`
}

type DividendGrant struct {
	UserID int64           `json:"user_id"`
	Weight int             `json:"weight"`
	Amount decimal.Decimal `json:"amount"`
}

type DividendReport struct {
	Ran             bool            `json:"ran"`
	RunNo           string          `json:"run_no,omitempty"`
	AmountPerWeight decimal.Decimal `json:"amount_per_weight"`
	Overridden      bool            `json:"overridden"`
	TotalWeight     int             `json:"total_weight"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	Grants          []DividendGrant `json:"grants"`
	CappedUsers     []CappedUser    `json:"capped_users"`
	ClampedUsers    []int64         `json:"clamped_users,omitempty"`
}

// DividendService 月度 unilevel 分红，从荣誉董事分红池按权重发放
type DividendService struct {
	db        *gorm.DB
	rules     *Rules
	ledger    *LedgerService
	points    *PointService
	overrides *OverrideService
	events    *EventWriter
	userRepo  *repository.UserRepository
	orderRepo *repository.OrderRepository
	now       func() time.Time
}

func NewDividendService(db *gorm.DB, rules *Rules, ledger *LedgerService, points *PointService,
	overrides *OverrideService, events *EventWriter) *DividendService {
	return &DividendService{
		db:        db,
		rules:     rules,
		ledger:    ledger,
		points:    points,
		overrides: overrides,
		events:    events,
		userRepo:  repository.NewUserRepository(db),
		orderRepo: repository.NewOrderRepository(db),
		now:       time.Now,
	}
}

func monthRange(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// RunUnilevelDividend 没有符合条件的用户或池子为空时返回 Ran=false
func (s *DividendService) RunUnilevelDividend(ctx context.Context) (*DividendReport, error) {
	report := &DividendReport{TotalPaid: decimal.Zero}
	runNo := idgen.GenerateRunNo()

	var autoClear bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		start, end := monthRange(s.now())
		buyerIDs, err := s.orderRepo.BuyersSettledBetween(ctx, tx, start, end)
		if err != nil {
			return fmt.Errorf("查询本月交易用户失败: %w", err)
		}
		users, err := s.userRepo.ListByUnilevel(ctx, tx, buyerIDs, unilevelWeights)
		if err != nil {
			return fmt.Errorf("查询 unilevel 用户失败: %w", err)
		}

		totalWeight := 0
		for _, u := range users {
			totalWeight += u.UnilevelLevel
		}
		poolBalance, err := s.ledger.GetBalance(ctx, tx, model.PoolHonorDirector)
		if err != nil {
			return err
		}
		if totalWeight == 0 || !poolBalance.IsPositive() {
			logger.Info("[UnilevelDividend] 无可分配对象或分红池为空，跳过",
				zap.Int("users", len(users)), zap.String("pool", poolBalance.String()))
			return nil
		}

		value, shouldClear, overridden, err := s.overrides.Active(ctx, tx, model.JobUnilevelDividend)
		if err != nil {
			return fmt.Errorf("读取干预配置失败: %w", err)
		}
		weights := decimal.NewFromInt(int64(totalWeight))
		apw := value
		if overridden {
			if need := apw.Mul(weights); need.GreaterThan(poolBalance) {
				return errno.InsufficientBalance(string(model.PoolHonorDirector), need, poolBalance)
			}
		} else {
			apw = poolBalance.DivRound(weights, amountPerWeightScale)
		}
		autoClear = shouldClear
		report.AmountPerWeight = apw
		report.Overridden = overridden
		report.TotalWeight = totalWeight

		plan := planDividend(users, apw, s.rules.UnilevelCap, poolBalance)
		report.CappedUsers = plan.capped
		report.ClampedUsers = plan.clamped
		for _, g := range plan.grants {
			reason := fmt.Sprintf("unilevel 分红 %s 权重%d", runNo, g.Weight)
			if _, err := s.ledger.Adjust(ctx, tx, model.PoolHonorDirector, g.Amount.Neg(), reason, ForUser(g.UserID, "")); err != nil {
				return err
			}
			if _, err := s.points.Earn(ctx, tx, g.UserID, model.BucketUnilevelPoints, g.Amount, reason, ""); err != nil {
				return err
			}
			report.TotalPaid = report.TotalPaid.Add(g.Amount)
			report.Grants = append(report.Grants, g)
		}

		report.Ran = true
		report.RunNo = runNo
		return s.events.Write(ctx, tx, model.EventDividendDistributed, runNo, report)
	})
	if err != nil {
		logger.Error("[UnilevelDividend] 分红失败", zap.Error(err))
		return nil, err
	}

	if report.Ran {
		if report.Overridden {
			s.overrides.clearAfterRun(ctx, model.JobUnilevelDividend, autoClear)
		}
		logger.Info("[UnilevelDividend] 分红完成",
			zap.String("run_no", runNo),
			zap.String("amount_per_weight", report.AmountPerWeight.String()),
			zap.String("total_paid", report.TotalPaid.String()),
			zap.Int("capped", len(report.CappedUsers)))
	}
	return report, nil
}

type dividendPlan struct {
	grants  []DividendGrant
	capped  []CappedUser
	clamped []int64
}

// planDividend 计算每个用户的实发金额
//
// 权重大的先发，同权重按用户 ID；池子不够时由最后发放的用户按剩余金额（向下取整）领取
func planDividend(users []*model.UserLedger, apw, limit, pool decimal.Decimal) dividendPlan {
	sorted := make([]*model.UserLedger, len(users))
	copy(sorted, users)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].UnilevelLevel != sorted[j].UnilevelLevel {
			return sorted[i].UnilevelLevel > sorted[j].UnilevelLevel
		}
		return sorted[i].ID < sorted[j].ID
	})

	var plan dividendPlan
	remaining := pool
	for _, u := range sorted {
		theoretical := apw.Mul(decimal.NewFromInt(int64(u.UnilevelLevel)))
		actual := decimal.Min(theoretical, limit)
		if !actual.Equal(theoretical) {
			plan.capped = append(plan.capped, CappedUser{UserID: u.ID, Theoretical: theoretical, Actual: actual})
		}
		actual = model.RoundMoney(actual)
		if actual.GreaterThan(remaining) {
			logger.Warn("[UnilevelDividend] 分红池余额不足，按剩余金额发放",
				zap.Int64("user_id", u.ID),
				zap.String("actual", actual.String()),
				zap.String("remaining", remaining.String()))
			plan.clamped = append(plan.clamped, u.ID)
			actual = remaining.Truncate(model.MoneyScale)
		}
		if !actual.IsPositive() {
			continue
		}
		remaining = remaining.Sub(actual)
		plan.grants = append(plan.grants, DividendGrant{UserID: u.ID, Weight: u.UnilevelLevel, Amount: actual})
	}
	return plan
}
