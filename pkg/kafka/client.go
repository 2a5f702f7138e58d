// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"lawchat-go/internal/config"
	"lawchat-go/pkg/events"
	"lawchat-go/pkg/log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter 是 kafka.Writer 中用到的部分，便于测试替换。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer 将聊天事件写入 Kafka 主题。
type Producer struct {
	writer messageWriter
}

// NewProducer 初始化 Kafka 生产者。写入为异步模式，发送失败只记录日志。
func NewProducer(cfg config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Errorf("发送聊天事件到 Kafka 失败: %d 条, %v", len(messages), err)
			}
		},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: writer}
}

// PublishChatEvent 发送一条聊天事件，以 subject 作为分区键保证同一 subject 的事件有序。
func (p *Producer) PublishChatEvent(ctx context.Context, event events.ChatEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal chat event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SubjectID),
		Value: value,
	})
}

// Close 刷新缓冲区并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}
