package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureProducer struct {
	topic string
	key   string
	value string
}

func (c *captureProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	c.topic, c.key, c.value = topic, string(key), string(value)
	return nil
}

func (c *captureProducer) Close() error { return nil }

func TestParseBrokers(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"localhost:9092", []string{"localhost:9092"}},
		{" a:9092 , ,b:9092 ", []string{"a:9092", "b:9092"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseBrokers(tt.in))
		})
	}
}

func TestSendJSON(t *testing.T) {
	p := &captureProducer{}
	err := SendJSON(context.Background(), p, TopicPrintJobs, "order-1", map[string]int{"copies": 2})
	require.NoError(t, err)
	assert.Equal(t, TopicPrintJobs, p.topic)
	assert.Equal(t, "order-1", p.key)
	assert.JSONEq(t, `{"copies":2}`, p.value)
}

func TestNew_WithoutBrokersLogs(t *testing.T) {
	p := New(nil, zap.NewNop())
	_, ok := p.(*LogProducer)
	require.True(t, ok)
	assert.NoError(t, p.SendMessage(context.Background(), TopicNotifications, nil, []byte("{}")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.SendMessage(ctx, TopicNotifications, nil, []byte("{}")))
}
