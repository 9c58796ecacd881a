package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 账本相关指标
type Metrics struct {
	SettlementTotal     *prometheus.CounterVec
	SettlementDuration  prometheus.Histogram
	PoolAdjustTotal     *prometheus.CounterVec
	RewardPaidTotal     *prometheus.CounterVec
	LockAcquireTotal    *prometheus.CounterVec
	JobRunTotal         *prometheus.CounterVec
	OutboxPublishTotal  *prometheus.CounterVec
	InsufficientBalance *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// GetMetrics 返回全局唯一的指标集合
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			SettlementTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "settlement_total",
				Help:      "订单结算次数",
			}, []string{"result"}),
			SettlementDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: "ledger",
				Name:      "settlement_duration_seconds",
				Help:      "订单结算耗时",
				Buckets:   prometheus.DefBuckets,
			}),
			PoolAdjustTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "pool_adjust_total",
				Help:      "资金池变动次数",
			}, []string{"pool", "direction"}),
			RewardPaidTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "reward_paid_total",
				Help:      "推荐/团队奖励发放次数",
			}, []string{"kind"}),
			LockAcquireTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "lock_acquire_total",
				Help:      "下单锁获取结果",
			}, []string{"result"}),
			JobRunTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "job_run_total",
				Help:      "定时任务执行结果",
			}, []string{"job", "result"}),
			OutboxPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "outbox_publish_total",
				Help:      "outbox 消息投递结果",
			}, []string{"result"}),
			InsufficientBalance: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "insufficient_balance_total",
				Help:      "余额不足被拒绝的扣减",
			}, []string{"scope"}),
		}
	})
	return instance
}
