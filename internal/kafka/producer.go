// Package kafka отправляет события сервиса в топики Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TopicNotifications = "notifications"
	TopicPrintJobs     = "print-jobs"
)

// Producer отправляет сообщения в топики.
type Producer interface {
	SendMessage(ctx context.Context, topic string, key []byte, value []byte) error
	Close() error
}

// WriterProducer пишет сообщения в Kafka через kafka.Writer.
type WriterProducer struct {
	writer *kafka.Writer
}

// NewWriterProducer создаёт продюсер для указанных брокеров. Топик задаётся в каждом сообщении.
func NewWriterProducer(brokers []string) *WriterProducer {
	return &WriterProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// SendMessage отправляет сообщение в топик.
func (p *WriterProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("write message to %s: %w", topic, err)
	}
	return nil
}

// Close закрывает writer.
func (p *WriterProducer) Close() error {
	return p.writer.Close()
}

// LogProducer пишет сообщения в лог; используется, когда брокеры не настроены.
type LogProducer struct {
	logger *zap.Logger
}

// NewLogProducer создаёт продюсер, пишущий в лог.
func NewLogProducer(logger *zap.Logger) *LogProducer {
	return &LogProducer{logger: logger}
}

// SendMessage пишет сообщение в лог.
func (p *LogProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.Info("kafka message",
		zap.String("topic", topic), zap.ByteString("key", key), zap.ByteString("value", value))
	return nil
}

// Close ничего не делает.
func (p *LogProducer) Close() error { return nil }

// New возвращает продюсер Kafka или, если брокеры не заданы, продюсер в лог.
func New(brokers []string, logger *zap.Logger) Producer {
	if len(brokers) == 0 {
		logger.Info("kafka brokers not configured, messages go to the log")
		return NewLogProducer(logger)
	}
	return NewWriterProducer(brokers)
}

// SendJSON сериализует value в JSON и отправляет его.
func SendJSON(ctx context.Context, p Producer, topic, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}
	return p.SendMessage(ctx, topic, []byte(key), body)
}

// ParseBrokers разбивает строку брокеров "host1:9092,host2:9092" на слайс.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
