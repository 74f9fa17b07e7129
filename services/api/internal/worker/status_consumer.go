// Package worker applies analysis status reports from the backend.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/comms-ninja/internal/analysis"
	"github.com/example/comms-ninja/internal/platform/metrics"
	"github.com/example/comms-ninja/services/api/internal/queue"
	"github.com/example/comms-ninja/services/api/internal/store"
)

const durableName = "api_analysis_status"

// Outcome tells the consumer what to do with the message.
type Outcome int

const (
	Ack   Outcome = iota // applied, or permanently unusable
	Retry                // transient failure, redeliver
)

// StatusConsumer pulls analysis.status messages and applies them to the store.
type StatusConsumer struct {
	Store     store.AnalysisStore
	Log       *zap.Logger
	BatchSize int
	MaxWait   time.Duration
}

// Apply decodes one status message and writes it. Malformed messages and
// updates to unknown or already-terminal analyses are dropped.
func (c *StatusConsumer) Apply(ctx context.Context, data []byte) Outcome {
	var ev queue.StatusEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.AnalysisID == "" {
		c.Log.Warn("status_consumer: invalid message", zap.Error(err))
		metrics.AnalysisStatusUpdates.WithLabelValues("invalid", "dropped").Inc()
		return Ack
	}
	status, err := analysis.Parse(ev.Status)
	if err != nil {
		c.Log.Warn("status_consumer: unknown status", zap.String("analysis_id", ev.AnalysisID), zap.String("status", ev.Status))
		metrics.AnalysisStatusUpdates.WithLabelValues("unknown", "dropped").Inc()
		return Ack
	}

	_, err = c.Store.UpdateStatus(ctx, ev.AnalysisID, store.StatusUpdate{
		Status:        status,
		ResultPayload: ev.ResultPayload,
		ErrorMessage:  ev.ErrorMessage,
	})
	switch {
	case err == nil:
		metrics.AnalysisStatusUpdates.WithLabelValues(string(status), "applied").Inc()
		c.Log.Info("analysis status applied", zap.String("analysis_id", ev.AnalysisID), zap.String("status", string(status)))
		return Ack
	case errors.Is(err, analysis.ErrTerminal), errors.Is(err, store.ErrNotFound):
		metrics.AnalysisStatusUpdates.WithLabelValues(string(status), "dropped").Inc()
		c.Log.Warn("status_consumer: update dropped", zap.String("analysis_id", ev.AnalysisID), zap.Error(err))
		return Ack
	default:
		metrics.AnalysisStatusUpdates.WithLabelValues(string(status), "retry").Inc()
		c.Log.Error("status_consumer: update failed", zap.String("analysis_id", ev.AnalysisID), zap.Error(err))
		return Retry
	}
}

// Run pulls batches until ctx is done.
func (c *StatusConsumer) Run(ctx context.Context, js nats.JetStreamContext) error {
	sub, err := js.PullSubscribe(queue.SubjectStatus, durableName)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	batch := c.BatchSize
	if batch <= 0 {
		batch = 50
	}
	wait := c.MaxWait
	if wait <= 0 {
		wait = 2 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		msgs, err := sub.Fetch(batch, nats.MaxWait(wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.Log.Warn("status_consumer: fetch error", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			var ackErr error
			if c.Apply(ctx, m.Data) == Retry {
				ackErr = m.Nak()
			} else {
				ackErr = m.Ack()
			}
			if ackErr != nil {
				c.Log.Warn("status_consumer: ack error", zap.Error(ackErr))
			}
		}
	}
}
