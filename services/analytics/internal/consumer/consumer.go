// Package consumer runs the JetStream pull consumers that feed the dispatcher.
package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/comms-ninja/services/analytics/internal/handler"
)

const durableName = "analytics_sink"

// Consumer reads every subject of one stream with a durable pull subscription.
type Consumer struct {
	Stream     string
	Dispatcher *handler.Dispatcher
	BatchSize  int
	MaxWait    time.Duration
	Log        *zap.Logger
}

// Run processes messages until ctx is done. Every message is acked, including
// ones the dispatcher drops, so bad events are never replayed.
func (c *Consumer) Run(ctx context.Context, js nats.JetStreamContext) error {
	sub, err := js.PullSubscribe("", durableName, nats.BindStream(c.Stream))
	if err != nil {
		return err
	}

	batch := c.BatchSize
	if batch <= 0 {
		batch = 200
	}
	wait := c.MaxWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	log := c.Log.With(zap.String("stream", c.Stream))

	for {
		if ctx.Err() != nil {
			return nil
		}
		msgs, err := sub.Fetch(batch, nats.MaxWait(wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			log.Error("analytics consumer: fetch", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			c.Dispatcher.Dispatch(m.Subject, m.Data)
			if err := m.Ack(); err != nil {
				log.Warn("analytics consumer: ack", zap.Error(err))
			}
		}
	}
}
