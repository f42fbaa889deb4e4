// Package notify доставляет уведомления пользователям через Kafka.
package notify

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/printpoints/internal/kafka"
	"github.com/mmeshcher/printpoints/internal/metrics"
	"github.com/mmeshcher/printpoints/internal/model"
)

// Sink отправляет уведомления в топик notifications. Ошибки доставки
// логируются и считаются, но вызывающему не возвращаются.
type Sink struct {
	producer kafka.Producer
	logger   *zap.Logger
}

// NewSink создаёт Sink поверх продюсера.
func NewSink(producer kafka.Producer, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{producer: producer, logger: logger}
}

// Notify отправляет уведомление.
func (s *Sink) Notify(ctx context.Context, n model.Notification) {
	if n.UserID == 0 {
		return
	}
	key := strconv.FormatInt(n.UserID, 10)
	if err := kafka.SendJSON(ctx, s.producer, kafka.TopicNotifications, key, n); err != nil {
		metrics.NotificationFailuresTotal.Inc()
		s.logger.Warn("notification not delivered",
			zap.Int64("user_id", n.UserID), zap.String("title", n.Title), zap.Error(err))
	}
}
