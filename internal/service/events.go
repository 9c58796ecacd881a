package service

import (
	"context"
	"encoding/json"
	"fmt"

	"mallledger/internal/config"
	"mallledger/internal/model"
	"mallledger/internal/repository"

	"gorm.io/gorm"
)

// EventWriter 在业务事务内写 outbox，由 OutboxSender 异步投递
type EventWriter struct {
	outboxRepo *repository.OutboxRepository
	topics     config.KafkaTopicConfig
}

func NewEventWriter(db *gorm.DB, topics config.KafkaTopicConfig) *EventWriter {
	return &EventWriter{
		outboxRepo: repository.NewOutboxRepository(db),
		topics:     topics,
	}
}

func (w *EventWriter) topicOf(eventType string) string {
	switch eventType {
	case model.EventOrderSettled, model.EventOrderRefunded:
		return w.topics.Settlement
	case model.EventWithdrawalApplied, model.EventWithdrawalAudited:
		return w.topics.Withdrawal
	default:
		return w.topics.Job
	}
}

func (w *EventWriter) Write(ctx context.Context, tx *gorm.DB, eventType, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	msg := &model.OutboxMessage{
		MessageKey: key,
		EventType:  eventType,
		Topic:      w.topicOf(eventType),
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
	}
	if err := w.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
