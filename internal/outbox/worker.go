package outbox

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

// Source yields unpublished events. Implementations mark a batch published
// only when publish returns nil, so delivery is at least once.
type Source interface {
	PublishPending(ctx context.Context, limit int, publish func(context.Context, []Event) error) (int, error)
}

// Publisher delivers a batch of events downstream.
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}

// Worker polls a Source and forwards batches to a Publisher.
type Worker struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
}

type WorkerOption func(*Worker)

func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

func WithMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func NewWorker(source Source, publisher Publisher, opts ...WorkerOption) *Worker {
	w := &Worker{
		source:    source,
		publisher: publisher,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the source every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "outbox worker started",
		"interval", w.interval.String(),
		"batch_size", w.batchSize,
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.logger.WarnContext(ctx, "outbox publish failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.logger.InfoContext(context.WithoutCancel(ctx), "outbox worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Drain publishes batches until the source is empty or an error occurs.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := w.source.PublishPending(ctx, w.batchSize, w.publisher.Publish)
		if err != nil {
			if w.metrics != nil {
				w.metrics.IncFailures()
			}
			return total, err
		}
		if w.metrics != nil {
			w.metrics.AddPublished(n)
		}
		total += n
		if n < w.batchSize {
			return total, nil
		}
	}
}

// LogPublisher writes events to the log. It stands in for Kafka when no
// brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, events []Event) error {
	for _, e := range events {
		p.logger.InfoContext(ctx, "outbox event",
			"event_id", e.ID.String(),
			"event_type", e.EventType,
			"aggregate_type", e.AggregateType,
			"aggregate_id", e.AggregateID,
		)
	}
	return nil
}
