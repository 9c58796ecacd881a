package repository

import (
	"context"
	"errors"
	"time"

	"mallledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrJobPeriodDone 同一周期已经执行过
var ErrJobPeriodDone = errors.New("本周期任务已执行")

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx)
}

// GetOverride 没有配置时返回 nil, nil
func (r *JobRepository) GetOverride(ctx context.Context, tx *gorm.DB, job string) (*model.ManualOverride, error) {
	var o model.ManualOverride
	err := r.conn(ctx, tx).Where("job = ?", job).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *JobRepository) UpsertOverride(ctx context.Context, tx *gorm.DB, o *model.ManualOverride) error {
	return r.conn(ctx, tx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "auto_clear", "updated_by", "updated_at"}),
		}).
		Create(o).Error
}

// ClearOverride 清空干预值并关闭自动清除
func (r *JobRepository) ClearOverride(ctx context.Context, tx *gorm.DB, job string) error {
	return r.conn(ctx, tx).
		Model(&model.ManualOverride{}).
		Where("job = ?", job).
		Updates(map[string]interface{}{
			"value":      decimal.NullDecimal{},
			"auto_clear": false,
		}).Error
}

func (r *JobRepository) CreateSubsidyRecord(ctx context.Context, tx *gorm.DB, rec *model.SubsidyRecord) error {
	return r.conn(ctx, tx).Create(rec).Error
}

func (r *JobRepository) ListSubsidyRecords(ctx context.Context, runNo string) ([]*model.SubsidyRecord, error) {
	var list []*model.SubsidyRecord
	err := r.db.WithContext(ctx).Where("run_no = ?", runNo).Order("id ASC").Find(&list).Error
	return list, err
}

// StartRun 占用 (job, period)，已存在时返回 ErrJobPeriodDone
func (r *JobRepository) StartRun(ctx context.Context, job, period string) (*model.JobRun, error) {
	run := &model.JobRun{
		Job:       job,
		Period:    period,
		Status:    model.JobRunStatusRunning,
		StartedAt: time.Now(),
	}
	err := r.db.WithContext(ctx).Create(run).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrJobPeriodDone
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *JobRepository) FinishRun(ctx context.Context, id int64, status, detail string) error {
	if len(detail) > 500 {
		detail = detail[:500]
	}
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"detail":      detail,
			"finished_at": &now,
		}).Error
}

// ReleaseRun 执行失败时删除占位，允许本周期重试
func (r *JobRepository) ReleaseRun(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.JobRun{}, id).Error
}
