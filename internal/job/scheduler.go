package job

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"mallledger/internal/config"
	"mallledger/internal/infrastructure/lock"
	"mallledger/internal/metrics"
	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/internal/service"
	"mallledger/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobCouponExpiry      = "coupon_expiry"
	JobDirectorPromotion = "director"
)

var (
	ErrUnknownJob = errors.New("未知的任务")
	// ErrJobBusy 同一任务正在本实例或其他实例执行
	ErrJobBusy = errors.New("任务正在执行")
)

// Result 一次任务执行的结果，Ran 为 false 表示没有可处理的数据
type Result struct {
	Ran    bool   `json:"ran"`
	Detail string `json:"detail"`
}

type JobFunc func(ctx context.Context) (Result, error)

// PeriodFunc 返回任务所属周期，同一周期只执行一次；为 nil 的任务不做周期限制
type PeriodFunc func(t time.Time) string

func WeeklyPeriod(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func MonthlyPeriod(t time.Time) string {
	return t.Format("2006-01")
}

type registeredJob struct {
	name   string
	spec   string
	period PeriodFunc
	run    JobFunc
}

// Scheduler 定时任务调度，保证同一任务单飞：
// 本实例内用 running 标记，跨实例用 redsync 锁，周期内只执行一次由 job_runs 唯一键保证
type Scheduler struct {
	cron    *cron.Cron
	mutex   *lock.JobMutex
	jobRepo *repository.JobRepository
	metrics *metrics.Metrics
	lockTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	jobs    map[string]registeredJob
	running map[string]bool
	baseCtx context.Context
}

func NewScheduler(db *gorm.DB, mutex *lock.JobMutex, lockTTL time.Duration) *Scheduler {
	cl := cronLogger{}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl)), cron.WithLogger(cl)),
		mutex:   mutex,
		jobRepo: repository.NewJobRepository(db),
		metrics: metrics.GetMetrics(),
		lockTTL: lockTTL,
		now:     time.Now,
		jobs:    make(map[string]registeredJob),
		running: make(map[string]bool),
		baseCtx: context.Background(),
	}
}

// Register 注册任务，spec 为空时只能手动触发
func (s *Scheduler) Register(name, spec string, period PeriodFunc, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("任务 %s 重复注册", name)
	}
	job := registeredJob{name: name, spec: spec, period: period, run: fn}
	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.fire(name) }); err != nil {
			return fmt.Errorf("任务 %s 的 cron 表达式非法: %w", name, err)
		}
	}
	s.jobs[name] = job
	return nil
}

func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	logger.Info("[Scheduler] 定时任务启动", zap.Strings("jobs", s.Jobs()))
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("[Scheduler] 定时任务已停止")
}

func (s *Scheduler) fire(name string) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	if _, err := s.Trigger(ctx, name, false); err != nil && !errors.Is(err, ErrJobBusy) && !errors.Is(err, repository.ErrJobPeriodDone) {
		logger.Error("[Scheduler] 定时任务执行失败", zap.String("job", name), zap.Error(err))
	}
}

// Trigger 立即执行任务；force 为 true 时跳过周期限制，但仍然单飞
func (s *Scheduler) Trigger(ctx context.Context, name string, force bool) (Result, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if s.running[name] {
		s.mu.Unlock()
		s.metrics.JobRunTotal.WithLabelValues(name, "busy").Inc()
		return Result{}, ErrJobBusy
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	if s.mutex != nil {
		unlock, result, err := s.mutex.TryLock(ctx, name, s.lockTTL)
		switch result {
		case lock.Acquired:
			defer unlock()
		case lock.Contended:
			s.metrics.JobRunTotal.WithLabelValues(name, "busy").Inc()
			if err != nil {
				logger.Warn("[Scheduler] 获取任务锁失败", zap.String("job", name), zap.Error(err))
			}
			return Result{}, ErrJobBusy
		default:
			logger.Warn("[Scheduler] 锁服务不可用，依赖周期记录防重", zap.String("job", name), zap.Error(err))
		}
	}

	var run *model.JobRun
	if job.period != nil && !force {
		period := job.period(s.now())
		var err error
		run, err = s.jobRepo.StartRun(ctx, name, period)
		if errors.Is(err, repository.ErrJobPeriodDone) {
			s.metrics.JobRunTotal.WithLabelValues(name, "skipped").Inc()
			logger.Info("[Scheduler] 本周期已执行，跳过", zap.String("job", name), zap.String("period", period))
			return Result{}, err
		}
		if err != nil {
			s.metrics.JobRunTotal.WithLabelValues(name, "failed").Inc()
			return Result{}, fmt.Errorf("记录任务执行失败: %w", err)
		}
	}

	start := time.Now()
	res, err := job.run(ctx)
	if err != nil {
		s.metrics.JobRunTotal.WithLabelValues(name, "failed").Inc()
		if run != nil {
			// 失败时释放周期占位，允许重试
			if rerr := s.jobRepo.ReleaseRun(ctx, run.ID); rerr != nil {
				logger.Error("[Scheduler] 释放周期记录失败", zap.String("job", name), zap.Error(rerr))
			}
		}
		return Result{}, err
	}

	if res.Ran {
		s.metrics.JobRunTotal.WithLabelValues(name, "success").Inc()
		if run != nil {
			if err := s.jobRepo.FinishRun(ctx, run.ID, model.JobRunStatusFinished, res.Detail); err != nil {
				logger.Error("[Scheduler] 更新任务记录失败", zap.String("job", name), zap.Error(err))
			}
		}
	} else {
		// 没有实际发放时不占用周期，池子补足后本周期还能再跑
		s.metrics.JobRunTotal.WithLabelValues(name, "skipped").Inc()
		if run != nil {
			if err := s.jobRepo.ReleaseRun(ctx, run.ID); err != nil {
				logger.Error("[Scheduler] 释放周期记录失败", zap.String("job", name), zap.Error(err))
			}
		}
	}

	logger.Info("[Scheduler] 任务执行完成",
		zap.String("job", name),
		zap.Bool("ran", res.Ran),
		zap.String("detail", res.Detail),
		zap.Duration("cost", time.Since(start)))
	return res, nil
}

// RegisterLedgerJobs 注册账本的四个周期任务；cron 关闭时仍可手动触发
func RegisterLedgerJobs(s *Scheduler, cfg config.CronConfig, svc *service.Services) error {
	spec := func(v string) string {
		if !cfg.Enabled {
			return ""
		}
		return v
	}

	jobs := []struct {
		name   string
		spec   string
		period PeriodFunc
		run    JobFunc
	}{
		{model.JobWeeklySubsidy, spec(cfg.WeeklySubsidy), WeeklyPeriod, func(ctx context.Context) (Result, error) {
			report, err := svc.Subsidy.RunWeeklySubsidy(ctx)
			if err != nil {
				return Result{}, err
			}
			return Result{
				Ran: report.Ran,
				Detail: fmt.Sprintf("run_no=%s value=%s users=%d granted=%s failed=%d",
					report.RunNo, report.PointsValue, report.Users, report.TotalGranted, len(report.FailedUsers)),
			}, nil
		}},
		{model.JobUnilevelDividend, spec(cfg.UnilevelDividend), MonthlyPeriod, func(ctx context.Context) (Result, error) {
			report, err := svc.Dividend.RunUnilevelDividend(ctx)
			if err != nil {
				return Result{}, err
			}
			return Result{
				Ran: report.Ran,
				Detail: fmt.Sprintf("run_no=%s apw=%s paid=%s capped=%d",
					report.RunNo, report.AmountPerWeight, report.TotalPaid, len(report.CappedUsers)),
			}, nil
		}},
		{JobCouponExpiry, spec(cfg.CouponExpiry), nil, func(ctx context.Context) (Result, error) {
			n, err := svc.Coupons.ExpireCoupons(ctx)
			return Result{Ran: n > 0, Detail: fmt.Sprintf("expired=%d", n)}, err
		}},
		{JobDirectorPromotion, spec(cfg.DirectorPromotion), nil, func(ctx context.Context) (Result, error) {
			n, err := svc.Directors.CheckPromotion(ctx)
			return Result{Ran: n > 0, Detail: fmt.Sprintf("promoted=%d", n)}, err
		}},
	}

	for _, j := range jobs {
		if err := s.Register(j.name, j.spec, j.period, j.run); err != nil {
			return err
		}
	}
	return nil
}

// cronLogger 把 cron 内部日志转到 zap
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("[Cron] "+msg, zap.Any("kv", keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("[Cron] "+msg, zap.Error(err), zap.Any("kv", keysAndValues))
}
