// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"docchat-go/internal/config"
	"docchat-go/pkg/events"
	"docchat-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// EventHandler 处理从主题中读到的一条事件。
type EventHandler func(ctx context.Context, event events.DocumentEvent) error

// Producer 把语料变更事件写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokerList(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Infof("[Kafka] 生产者初始化成功, topic: %s", cfg.Topic)
	return &Producer{writer: w}
}

func brokerList(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Publish 发送一个事件，以 owner_id 作为 key 保证同一用户的事件有序。
func (p *Producer) Publish(ctx context.Context, event events.DocumentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OwnerID),
		Value: body,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consume 在 ctx 取消之前持续读取事件并交给 handler。
// 处理成功或消息无法解析时提交 offset；处理失败时不提交，由消费组重新投递。
func Consume(ctx context.Context, cfg config.KafkaConfig, groupID string, handler EventHandler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokerList(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("[Kafka] 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			log.Error("从 Kafka 读取消息失败", err)
			return err
		}

		var event events.DocumentEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		if err := handler(ctx, event); err != nil {
			log.Errorf("处理事件失败: type=%s, owner=%s, error: %v", event.Type, event.OwnerID, err)
			continue
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
