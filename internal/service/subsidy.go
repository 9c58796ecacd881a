package service

import (
	"context"
	"fmt"

	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/idgen"
	"mallledger/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// pointsValueScale 积分价值保留的小数位
const pointsValueScale = 8

type SubsidyReport struct {
	Ran           bool            `json:"ran"`
	RunNo         string          `json:"run_no,omitempty"`
	PointsValue   decimal.Decimal `json:"points_value"`
	Overridden    bool            `json:"overridden"`
	Users         int             `json:"users"`
	TotalGranted  decimal.Decimal `json:"total_granted"`
	TotalDeducted decimal.Decimal `json:"total_deducted"`
	FailedUsers   []int64         `json:"failed_users,omitempty"`
}

// SubsidyService 周补贴：按积分价值把周补贴池发放为补贴积分，同时扣减等额会员积分
type SubsidyService struct {
	db        *gorm.DB
	rules     *Rules
	ledger    *LedgerService
	points    *PointService
	overrides *OverrideService
	events    *EventWriter
	userRepo  *repository.UserRepository
	jobRepo   *repository.JobRepository
}

func NewSubsidyService(db *gorm.DB, rules *Rules, ledger *LedgerService, points *PointService,
	overrides *OverrideService, events *EventWriter) *SubsidyService {
	return &SubsidyService{
		db:        db,
		rules:     rules,
		ledger:    ledger,
		points:    points,
		overrides: overrides,
		events:    events,
		userRepo:  repository.NewUserRepository(db),
		jobRepo:   repository.NewJobRepository(db),
	}
}

// RunWeeklySubsidy 池子或积分总量为 0 时不执行，返回 Ran=false
func (s *SubsidyService) RunWeeklySubsidy(ctx context.Context) (*SubsidyReport, error) {
	report := &SubsidyReport{TotalGranted: decimal.Zero, TotalDeducted: decimal.Zero}

	poolBalance, err := s.ledger.GetBalance(ctx, nil, model.PoolSubsidy)
	if err != nil {
		return nil, err
	}
	totalPoints, err := s.userRepo.SumBucket(ctx, nil, model.BucketMemberPoints)
	if err != nil {
		return nil, fmt.Errorf("汇总会员积分失败: %w", err)
	}
	if !poolBalance.IsPositive() || !totalPoints.IsPositive() {
		logger.Info("[WeeklySubsidy] 补贴池或会员积分为 0，跳过",
			zap.String("pool", poolBalance.String()), zap.String("points", totalPoints.String()))
		return report, nil
	}

	value, autoClear, overridden, err := s.overrides.Active(ctx, nil, model.JobWeeklySubsidy)
	if err != nil {
		return nil, fmt.Errorf("读取干预配置失败: %w", err)
	}
	if !overridden {
		value = decimal.Min(poolBalance.DivRound(totalPoints, pointsValueScale+4).Truncate(pointsValueScale), s.rules.MaxPointsValue)
	}
	report.PointsValue = value
	report.Overridden = overridden
	report.RunNo = idgen.GenerateRunNo()

	users, err := s.userRepo.ListPositive(ctx, nil, model.BucketMemberPoints)
	if err != nil {
		return nil, err
	}

	for _, user := range users {
		granted, deducted, err := s.grant(ctx, report.RunNo, user, value)
		if err != nil {
			report.FailedUsers = append(report.FailedUsers, user.ID)
			logger.Error("[WeeklySubsidy] 用户补贴发放失败，跳过",
				zap.Int64("user_id", user.ID), zap.Error(err))
			continue
		}
		if granted.IsPositive() {
			report.Users++
			report.TotalGranted = report.TotalGranted.Add(granted)
			report.TotalDeducted = report.TotalDeducted.Add(deducted)
		}
	}

	report.Ran = true
	if err := s.events.Write(ctx, nil, model.EventSubsidyDistributed, report.RunNo, report); err != nil {
		logger.Warn("[WeeklySubsidy] 写入完成事件失败", zap.Error(err))
	}
	if overridden {
		s.overrides.clearAfterRun(ctx, model.JobWeeklySubsidy, autoClear)
	}

	logger.Info("[WeeklySubsidy] 周补贴发放完成",
		zap.String("run_no", report.RunNo),
		zap.String("points_value", value.String()),
		zap.Int("users", report.Users),
		zap.String("granted", report.TotalGranted.String()),
		zap.Int("failed", len(report.FailedUsers)))
	return report, nil
}

// grant 单个用户一个事务，失败只影响该用户
func (s *SubsidyService) grant(ctx context.Context, runNo string, user *model.UserLedger, value decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	var granted, deducted decimal.Decimal

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.userRepo.GetByID(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		pts := current.MemberPoints
		granted = pts.Mul(value).Truncate(model.MoneyScale)
		if !granted.IsPositive() {
			return nil
		}
		deducted = decimal.Min(granted, pts)

		reason := fmt.Sprintf("周补贴 %s", runNo)
		ref := ForUser(user.ID, "")
		if _, err := s.ledger.Adjust(ctx, tx, model.PoolSubsidy, granted.Neg(), reason, ref); err != nil {
			return err
		}
		if _, err := s.points.Earn(ctx, tx, user.ID, model.BucketSubsidyPoints, granted, reason, ""); err != nil {
			return err
		}
		if _, err := s.points.Spend(ctx, tx, user.ID, model.BucketMemberPoints, deducted, reason+" 扣减会员积分", ""); err != nil {
			return err
		}
		if err := s.points.CreditCompanyPoints(ctx, tx, user.ID, deducted, reason+" 会员积分回收", ""); err != nil {
			return err
		}

		return s.jobRepo.CreateSubsidyRecord(ctx, tx, &model.SubsidyRecord{
			RunNo:        runNo,
			UserID:       user.ID,
			PointsBefore: pts,
			PointsValue:  value,
			Granted:      granted,
			Deducted:     deducted,
		})
	})
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return granted, deducted, nil
}
