package job

import (
	"context"
	"time"

	"mallledger/internal/repository"
	"mallledger/internal/service"
	"mallledger/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderTimeoutJob 关闭超时未支付的订单
type OrderTimeoutJob struct {
	orders    *service.OrderService
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewOrderTimeoutJob(orders *service.OrderService) *OrderTimeoutJob {
	return &OrderTimeoutJob{
		orders:    orders,
		stopCh:    make(chan struct{}),
		interval:  10 * time.Second,
		batchSize: 100,
	}
}

func (j *OrderTimeoutJob) Start(ctx context.Context) {
	logger.Info("[OrderTimeoutJob] 订单超时任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[OrderTimeoutJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			logger.Info("[OrderTimeoutJob] 任务停止")
			return
		case <-ticker.C:
			j.closeExpiredOrders(ctx)
		}
	}
}

func (j *OrderTimeoutJob) Stop() {
	close(j.stopCh)
}

func (j *OrderTimeoutJob) closeExpiredOrders(ctx context.Context) int {
	closed, err := j.orders.CloseExpiredOrders(ctx, j.batchSize)
	if err != nil {
		logger.Error("[OrderTimeoutJob] 查询超时订单失败", zap.Error(err))
		return 0
	}
	if closed > 0 {
		logger.Info("[OrderTimeoutJob] 本次关闭超时订单", zap.Int("closed", closed))
	}
	return closed
}

// SettlementCompensateJob 已支付但未结算的订单重新结算，结算本身幂等
type SettlementCompensateJob struct {
	orderRepo  *repository.OrderRepository
	settlement *service.SettlementService
	stopCh     chan struct{}
	interval   time.Duration
	delay      time.Duration
	batchSize  int
}

func NewSettlementCompensateJob(db *gorm.DB, settlement *service.SettlementService) *SettlementCompensateJob {
	return &SettlementCompensateJob{
		orderRepo:  repository.NewOrderRepository(db),
		settlement: settlement,
		stopCh:     make(chan struct{}),
		interval:   30 * time.Second,
		delay:      5 * time.Minute,
		batchSize:  50,
	}
}

func (j *SettlementCompensateJob) Start(ctx context.Context) {
	logger.Info("[SettlementCompensateJob] 补偿任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[SettlementCompensateJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			logger.Info("[SettlementCompensateJob] 任务停止")
			return
		case <-ticker.C:
			j.compensate(ctx)
		}
	}
}

func (j *SettlementCompensateJob) Stop() {
	close(j.stopCh)
}

func (j *SettlementCompensateJob) compensate(ctx context.Context) int {
	orders, err := j.orderRepo.GetPaidUnsettled(ctx, time.Now().Add(-j.delay), j.batchSize)
	if err != nil {
		logger.Error("[SettlementCompensateJob] 查询订单失败", zap.Error(err))
		return 0
	}
	if len(orders) == 0 {
		return 0
	}

	logger.Warn("[SettlementCompensateJob] 发现已支付未结算的订单", zap.Int("count", len(orders)))

	settled := 0
	for _, order := range orders {
		res, err := j.settlement.SettleOrder(ctx, order.ID, order.PointsDiscount, order.CouponDiscount)
		if err != nil {
			logger.Error("[SettlementCompensateJob] 补偿结算失败", zap.String("order_no", order.OrderNo), zap.Error(err))
			continue
		}
		settled++
		logger.Info("[SettlementCompensateJob] 补偿结算成功",
			zap.String("order_no", order.OrderNo), zap.Bool("already_settled", res.AlreadySettled))
	}
	return settled
}
