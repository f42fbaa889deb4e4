package printsession

import (
	"context"

	"github.com/mmeshcher/printpoints/internal/kafka"
)

// QueuePrinter отправляет задания на печать в топик print-jobs, откуда их забирает агент точки.
type QueuePrinter struct {
	producer kafka.Producer
}

// NewQueuePrinter создаёт QueuePrinter.
func NewQueuePrinter(p kafka.Producer) *QueuePrinter {
	return &QueuePrinter{producer: p}
}

// Print публикует задание с ключом заказа, чтобы задания одного заказа шли по порядку.
func (p *QueuePrinter) Print(ctx context.Context, job Job) error {
	return kafka.SendJSON(ctx, p.producer, kafka.TopicPrintJobs, job.OrderID.String(), job)
}
