// Package realtime рассылает изменения заказов и обращений подписчикам по каналам
// точки, клиента и обращения.
package realtime

import (
	"context"
	"sync"
)

// Message описывает сообщение, полученное из канала брокера.
type Message struct {
	Channel string
	Payload []byte
}

// Feed представляет подписку на каналы брокера.
type Feed interface {
	Messages() <-chan Message
	Close() error
}

// Broker доставляет сообщения между экземплярами сервиса.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (Feed, error)
}

const feedBuffer = 64

// LocalBroker доставляет сообщения внутри процесса.
type LocalBroker struct {
	mu    sync.RWMutex
	feeds map[string]map[*localFeed]struct{}
}

// NewLocalBroker создаёт брокер в памяти.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{feeds: make(map[string]map[*localFeed]struct{})}
}

// Publish доставляет сообщение всем подписчикам канала. Подписчик с заполненным
// буфером сообщение пропускает.
func (b *LocalBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for f := range b.feeds[channel] {
		f.deliver(Message{Channel: channel, Payload: payload})
	}
	return nil
}

// Subscribe подписывается на каналы.
func (b *LocalBroker) Subscribe(ctx context.Context, channels ...string) (Feed, error) {
	f := &localFeed{
		broker:   b,
		channels: channels,
		ch:       make(chan Message, feedBuffer),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range channels {
		if b.feeds[c] == nil {
			b.feeds[c] = make(map[*localFeed]struct{})
		}
		b.feeds[c][f] = struct{}{}
	}
	return f, nil
}

func (b *LocalBroker) remove(f *localFeed) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range f.channels {
		delete(b.feeds[c], f)
		if len(b.feeds[c]) == 0 {
			delete(b.feeds, c)
		}
	}
}

// subscribers возвращает число подписок на канал.
func (b *LocalBroker) subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.feeds[channel])
}

type localFeed struct {
	broker   *LocalBroker
	channels []string
	mu       sync.Mutex
	ch       chan Message
	closed   bool
}

func (f *localFeed) deliver(m Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- m:
	default:
	}
}

func (f *localFeed) Messages() <-chan Message { return f.ch }

func (f *localFeed) Close() error {
	f.broker.remove(f)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	return nil
}
