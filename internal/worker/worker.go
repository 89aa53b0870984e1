package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cycleride/payout-be/internal/withdrawal"
)

// ErrConsumerClosed reports that the broker closed the delivery stream while
// the worker was still supposed to be running. Start returns it so the process
// exits instead of lingering with a dead consumer.
var ErrConsumerClosed = errors.New("rabbitmq delivery channel closed")

// DeliverySource is the queue surface the worker consumes from.
// Satisfied by *rabbitmq.Client.
type DeliverySource interface {
	Consume(consumerTag string, prefetchCount int) (<-chan amqp.Delivery, error)
	NotifyClose() <-chan *amqp.Error
}

// JobExecutor runs a single withdrawal to a tagged outcome
type JobExecutor interface {
	Execute(ctx context.Context, withdrawalID string) (withdrawal.Outcome, error)
}

// JobSweeper reconciles stuck withdrawals in one pass
type JobSweeper interface {
	Sweep(ctx context.Context) (withdrawal.SweepSummary, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	QueueClient   DeliverySource
	Executor      JobExecutor
	Sweeper       JobSweeper
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
}

// Worker consumes withdrawal jobs from the queue and runs them on a
// goroutine pool. Each delivery is acked or nacked individually; a failing
// job never takes the process down with it.
type Worker struct {
	logger        *slog.Logger
	queueClient   DeliverySource
	executor      JobExecutor
	sweeper       JobSweeper
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration
	workerID      string
	jobsChan      chan amqp.Delivery
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// New creates a new Worker instance
func New(cfg *Config) *Worker {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	return &Worker{
		logger:        cfg.Logger,
		queueClient:   cfg.QueueClient,
		executor:      cfg.Executor,
		sweeper:       cfg.Sweeper,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		jobTimeout:    cfg.JobTimeout,
		workerID:      fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		jobsChan:      make(chan amqp.Delivery),
		stopChan:      make(chan struct{}),
	}
}

// Start consumes until ctx is cancelled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.queueClient.Consume(w.workerID, w.prefetchCount)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	w.spawnPool(ctx)

	return w.dispatchDeliveries(ctx, deliveries)
}

// Stop waits for in-flight jobs to finish
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker",
		slog.String("worker_id", w.workerID),
	)

	close(w.stopChan)
	w.wg.Wait()

	w.logger.Info("Worker stopped",
		slog.String("worker_id", w.workerID),
	)
}

// dispatchDeliveries feeds queue deliveries into the pool until ctx is
// cancelled. A delivery channel that closes while ctx is still live means the
// broker connection died; that surfaces as ErrConsumerClosed.
func (w *Worker) dispatchDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	closed := w.queueClient.NotifyClose()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Delivery dispatch stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}

				w.logger.Error("RabbitMQ delivery channel closed unexpectedly")

				select {
				case amqpErr := <-closed:
					if amqpErr != nil {
						return fmt.Errorf("%w: %v", ErrConsumerClosed, amqpErr)
					}
				default:
				}

				return ErrConsumerClosed
			}

			select {
			case w.jobsChan <- delivery:
			case <-ctx.Done():
				// requeue so another worker picks it up
				if err := delivery.Nack(false, true); err != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", err.Error()),
					)
				}
				return nil
			}
		}
	}
}
