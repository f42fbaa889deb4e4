package builder

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/metrics"
	"github.com/mmeshcher/printpoints/internal/model"
)

// UploadAttempts задаёт число попыток загрузки одного файла.
const UploadAttempts = 3

// Store описывает хранилище, в котором создаются заказы.
type Store interface {
	GetPrices(ctx context.Context) (model.PriceTable, error)
	// CreateOrder сохраняет заказ и заполняет Number и CreatedAt.
	CreateOrder(ctx context.Context, o *model.Order) error
}

// ObjectStore описывает хранилище файлов заказа.
type ObjectStore interface {
	Put(ctx context.Context, path string, content []byte, contentType string) error
	Delete(ctx context.Context, path string) error
}

// Publisher получает созданные заказы для рассылки подписчикам.
type Publisher interface {
	OrderChanged(ctx context.Context, o *model.Order)
}

// Builder оформляет заказы из черновиков.
type Builder struct {
	store      Store
	objects    ObjectStore
	events     Publisher
	logger     *zap.Logger
	retryDelay time.Duration
}

// New создаёт Builder. events и logger могут быть nil.
func New(store Store, objects ObjectStore, events Publisher, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		store:      store,
		objects:    objects,
		events:     events,
		logger:     logger,
		retryDelay: 200 * time.Millisecond,
	}
}

// StoragePath возвращает путь файла заказа: orders/<клиент>/<заказ>/<NN>-<имя>.<расширение>.
func StoragePath(customerID int64, orderID uuid.UUID, index int, f File) string {
	ext := f.Extension
	if ext == "" {
		ext = strings.ToLower(path.Ext(f.Name))
	}
	base := slug.Make(strings.TrimSuffix(f.Name, path.Ext(f.Name)))
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("orders/%d/%s/%02d-%s%s", customerID, orderID, index+1, base, ext)
}

// Submit проверяет черновик, загружает файлы и создаёт заказ в статусе pending.
// Если какой-либо файл не загрузился, уже загруженные удаляются, заказ не создаётся
// и возвращается errs.UploadError.
func (b *Builder) Submit(ctx context.Context, a model.Actor, d *Draft) (*model.Order, error) {
	if a.Role != model.RoleCustomer {
		return nil, fmt.Errorf("%w: only customers place orders", errs.ErrForbidden)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	table, err := b.store.GetPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}
	quote := d.Quote(table)
	if quote.Missing {
		b.logger.Warn("price missing, order priced at zero",
			zap.String("key", quote.Key), zap.Int64("location", d.location.ID))
	}

	o := &model.Order{
		ID:           uuid.New(),
		CustomerID:   a.ID,
		LocationID:   d.location.ID,
		Spec:         d.spec,
		Notes:        d.notes,
		TotalAmount:  quote.Total,
		PointsEarned: quote.Points,
		Status:       model.OrderStatusPending,
	}

	uploaded := make([]string, 0, len(d.files))
	for i, f := range d.files {
		p := StoragePath(a.ID, o.ID, i, f)
		if err := b.upload(ctx, p, f); err != nil {
			b.cleanup(uploaded)
			metrics.UploadFailuresTotal.Inc()
			b.logger.Error("upload failed, order aborted",
				zap.String("file", f.Name), zap.Int64("customer", a.ID), zap.Error(err))
			return nil, &errs.UploadError{File: f.Name, Err: err}
		}
		uploaded = append(uploaded, p)
	}
	o.Files = uploaded

	if err := b.store.CreateOrder(ctx, o); err != nil {
		b.cleanup(uploaded)
		return nil, fmt.Errorf("create order: %w", err)
	}

	metrics.OrdersCreatedTotal.Inc()
	b.logger.Info("order created",
		zap.String("order", o.ID.String()),
		zap.Int64("number", o.Number),
		zap.Int64("customer", a.ID),
		zap.Int64("location", o.LocationID),
		zap.String("total", o.TotalAmount.String()),
	)
	if b.events != nil {
		b.events.OrderChanged(ctx, o)
	}
	return o, nil
}

func (b *Builder) upload(ctx context.Context, p string, f File) error {
	var err error
	for attempt := 1; attempt <= UploadAttempts; attempt++ {
		if err = b.objects.Put(ctx, p, f.Content, f.ContentType); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Warn("upload attempt failed",
			zap.String("path", p), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < UploadAttempts && b.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.retryDelay):
			}
		}
	}
	return err
}

// cleanup удаляет загруженные файлы; ошибки только логируются.
func (b *Builder) cleanup(paths []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, p := range paths {
		if err := b.objects.Delete(ctx, p); err != nil {
			b.logger.Warn("failed to delete uploaded file", zap.String("path", p), zap.Error(err))
		}
	}
}
