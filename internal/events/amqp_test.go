package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	publishErr error
	closeErr   error
	published  []string
	closed     int
}

func (c *fakeChannel) PublishWithContext(_ context.Context,
	_, key string, _, _ bool, _ amqp091.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, key)
	return nil
}

func (c *fakeChannel) ExchangeDeclare(string, string, bool, bool, bool, bool, amqp091.Table) error {
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed++
	return c.closeErr
}

func TestAMQPPublisher_Publish_reopen(t *testing.T) {
	tests := []struct {
		name        string
		brokenClose error
		reopenErr   error
		wantErr     bool
	}{
		{name: "closes broken channel", brokenClose: nil},
		{name: "already closed by broker", brokenClose: amqp091.ErrClosed},
		{name: "close error is ignored", brokenClose: errors.New("io")},
		{name: "reopen fails", reopenErr: errors.New("conn gone"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := &fakeChannel{publishErr: amqp091.ErrClosed, closeErr: tt.brokenClose}
			fresh := &fakeChannel{}
			opened := 0
			p := &AMQPPublisher{
				channel: broken,
				open: func() (amqpChannel, error) {
					opened++
					if tt.reopenErr != nil {
						return nil, tt.reopenErr
					}
					return fresh, nil
				},
				log:      slog.Default(),
				exchange: DefaultExchange,
			}

			err := p.Publish(context.Background(), Event{Type: TypePointsEarned, AccountID: "a"})
			assert.Equal(t, 1, broken.closed)
			assert.Equal(t, 1, opened)
			if tt.wantErr {
				require.Error(t, err)
				assert.Same(t, broken, p.channel)
				return
			}
			require.NoError(t, err)
			assert.Same(t, fresh, p.channel)
			assert.Equal(t, []string{RoutingKey(TypePointsEarned)}, fresh.published)
			assert.Zero(t, fresh.closed)
		})
	}
}

func TestAMQPPublisher_Publish_healthyChannel(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{
		channel: ch,
		open: func() (amqpChannel, error) {
			t.Fatal("channel must not be reopened")
			return nil, nil
		},
		log:      slog.Default(),
		exchange: DefaultExchange,
	}

	require.NoError(t, p.Publish(context.Background(), Event{Type: TypeTierChanged}))
	assert.Equal(t, []string{RoutingKey(TypeTierChanged)}, ch.published)
	assert.Zero(t, ch.closed)
}
