package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	JobWeeklySubsidy    = "subsidy"
	JobUnilevelDividend = "unilevel"
)

const (
	JobRunStatusRunning  = "running"
	JobRunStatusFinished = "finished"
)

// ManualOverride 定时发放任务的人工干预值，Value 为空表示自动计算
type ManualOverride struct {
	ID        int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	Job       string              `gorm:"type:varchar(32);uniqueIndex;not null" json:"job"`
	Value     decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"value"`
	AutoClear bool                `gorm:"not null;default:false" json:"auto_clear"`
	UpdatedBy string              `gorm:"type:varchar(64)" json:"updated_by"`
	CreatedAt time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ManualOverride) TableName() string {
	return "manual_override"
}

// SubsidyRecord 周补贴发放明细
type SubsidyRecord struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RunNo        string          `gorm:"type:varchar(64);index;not null" json:"run_no"`
	UserID       int64           `gorm:"index;not null" json:"user_id"`
	PointsBefore decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"points_before"`
	PointsValue  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"points_value"`
	Granted      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"granted"`
	Deducted     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"deducted"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (SubsidyRecord) TableName() string {
	return "weekly_subsidy_record"
}

// JobRun 定时任务执行记录，(job, period) 唯一保证同一周期只执行一次
type JobRun struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Job        string     `gorm:"type:varchar(32);uniqueIndex:uk_job_period;not null" json:"job"`
	Period     string     `gorm:"type:varchar(32);uniqueIndex:uk_job_period;not null" json:"period"`
	Status     string     `gorm:"type:varchar(16);not null" json:"status"`
	Detail     string     `gorm:"type:varchar(512)" json:"detail"`
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

func (JobRun) TableName() string {
	return "job_run"
}
