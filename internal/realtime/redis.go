package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroker доставляет сообщения через Redis pub/sub, так что подписчики
// получают изменения, сделанные любым экземпляром сервиса.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker подключается к Redis и проверяет соединение.
func NewRedisBroker(ctx context.Context, addr, password string) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBroker{client: client}, nil
}

// Publish публикует сообщение в канал.
func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe подписывается на каналы и дожидается подтверждения подписки.
func (b *RedisBroker) Subscribe(ctx context.Context, channels ...string) (Feed, error) {
	ps := b.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	f := &redisFeed{ps: ps, ch: make(chan Message, feedBuffer), done: make(chan struct{})}
	go f.pump()
	return f, nil
}

// Close закрывает клиент Redis.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisFeed struct {
	ps   *redis.PubSub
	ch   chan Message
	done chan struct{}
	once sync.Once
}

func (f *redisFeed) pump() {
	defer close(f.ch)
	for msg := range f.ps.Channel() {
		select {
		case f.ch <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
		case <-f.done:
			return
		}
	}
}

func (f *redisFeed) Messages() <-chan Message { return f.ch }

func (f *redisFeed) Close() error {
	f.once.Do(func() { close(f.done) })
	return f.ps.Close()
}
