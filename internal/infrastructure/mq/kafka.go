package mq

import (
	"mallledger/internal/config"

	"github.com/IBM/sarama"
)

// Publisher 消息投递接口，outbox 发送任务依赖它
type Publisher interface {
	SendMessage(topic, key, value string) error
	Close() error
}

// KafkaPublisher 基于 sarama SyncProducer
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

// NewKafkaPublisher 创建 Kafka 生产者
func NewKafkaPublisher(cfg *config.KafkaConfig) (*KafkaPublisher, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{producer: producer}, nil
}

// NewKafkaPublisherWithProducer 注入已有的 producer，测试使用 sarama/mocks
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// SendMessage 发送消息到 Kafka
func (p *KafkaPublisher) SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// NopPublisher Kafka 不可用时使用，消息留在 outbox 等待下次投递
type NopPublisher struct {
	Err error
}

func (p NopPublisher) SendMessage(topic, key, value string) error {
	return p.Err
}

func (p NopPublisher) Close() error {
	return nil
}
