package service

import (
	"context"
	"fmt"

	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/errno"
	"mallledger/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OverrideService 定时发放任务的人工干预值
type OverrideService struct {
	jobRepo *repository.JobRepository
}

func NewOverrideService(db *gorm.DB) *OverrideService {
	return &OverrideService{jobRepo: repository.NewJobRepository(db)}
}

func validJob(job string) bool {
	return job == model.JobWeeklySubsidy || job == model.JobUnilevelDividend
}

// AdjustManualOverride 设置或清除干预值；value 为空表示恢复自动计算，autoClear 为空时保持原值
func (s *OverrideService) AdjustManualOverride(ctx context.Context, job string, value *decimal.Decimal, autoClear *bool, operator string) (*model.ManualOverride, error) {
	if !validJob(job) {
		return nil, errno.Finance("无效的任务类型: %s", job)
	}
	if value != nil && !value.IsPositive() {
		return nil, errno.Finance("干预值必须大于 0: %s", value.String())
	}

	current, err := s.jobRepo.GetOverride(ctx, nil, job)
	if err != nil {
		return nil, fmt.Errorf("读取干预配置失败: %w", err)
	}

	o := &model.ManualOverride{Job: job, UpdatedBy: operator}
	if current != nil {
		o.AutoClear = current.AutoClear
	}
	if value != nil {
		o.Value = decimal.NewNullDecimal(*value)
	}
	if autoClear != nil {
		o.AutoClear = *autoClear
	}

	if err := s.jobRepo.UpsertOverride(ctx, nil, o); err != nil {
		return nil, fmt.Errorf("保存干预配置失败: %w", err)
	}
	logger.Info("[Override] 干预配置已更新",
		zap.String("job", job),
		zap.Bool("has_value", o.Value.Valid),
		zap.Bool("auto_clear", o.AutoClear),
		zap.String("operator", operator))
	return s.jobRepo.GetOverride(ctx, nil, job)
}

// Active 返回生效的干预值，未设置时 ok 为 false
func (s *OverrideService) Active(ctx context.Context, tx *gorm.DB, job string) (value decimal.Decimal, autoClear bool, ok bool, err error) {
	o, err := s.jobRepo.GetOverride(ctx, tx, job)
	if err != nil || o == nil || !o.Value.Valid {
		return decimal.Zero, false, false, err
	}
	return o.Value.Decimal, o.AutoClear, true, nil
}

// clearAfterRun 任务成功后按 autoClear 清除干预值
func (s *OverrideService) clearAfterRun(ctx context.Context, job string, autoClear bool) {
	if !autoClear {
		return
	}
	if err := s.jobRepo.ClearOverride(ctx, nil, job); err != nil {
		logger.Error("[Override] 自动清除干预值失败", zap.String("job", job), zap.Error(err))
		return
	}
	logger.Info("[Override] 干预值已自动清除", zap.String("job", job))
}
