package job

import (
	"context"
	"time"

	"mallledger/internal/config"
	"mallledger/internal/infrastructure/mq"
	"mallledger/internal/metrics"
	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxSender 轮询发件箱并投递到 Kafka，投递失败不影响已提交的账本
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	cfg        *config.Config
	metrics    *metrics.Metrics
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, cfg *config.Config, publisher mq.Publisher) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		cfg:        cfg,
		metrics:    metrics.GetMetrics(),
		stopCh:     make(chan struct{}),
		interval:   500 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	logger.Info("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			logger.Info("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// processPendingMessages 返回本轮投递成功的条数
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		logger.Error("[OutboxSender] 查询消息失败", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		s.metrics.OutboxPublishTotal.WithLabelValues("sent").Inc()
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			logger.Error("[OutboxSender] 更新消息状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
			return false
		}
		logger.Debug("[OutboxSender] 消息发送成功",
			zap.Int64("id", msg.ID), zap.String("topic", msg.Topic), zap.String("key", msg.MessageKey))
		return true
	}

	logger.Warn("[OutboxSender] 消息发送失败",
		zap.Int64("id", msg.ID), zap.String("event", msg.EventType), zap.Int("retry", msg.RetryCount), zap.Error(err))

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		s.metrics.OutboxPublishTotal.WithLabelValues("failed").Inc()
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			logger.Error("[OutboxSender] 标记消息失败状态失败", zap.Int64("id", msg.ID), zap.Error(err))
		} else {
			logger.Error("[OutboxSender] 消息超过最大重试次数，标记为失败", zap.Int64("id", msg.ID))
		}
		return false
	}

	s.metrics.OutboxPublishTotal.WithLabelValues("retry").Inc()
	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		logger.Error("[OutboxSender] 增加重试次数失败", zap.Int64("id", msg.ID), zap.Error(err))
	}
	return false
}
