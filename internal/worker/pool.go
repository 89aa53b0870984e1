package worker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// spawnPool starts the configured number of processing goroutines
func (w *Worker) spawnPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.poolLoop(ctx, i)
	}
}

// poolLoop processes deliveries until shutdown
func (w *Worker) poolLoop(ctx context.Context, poolNum int) {
	defer w.wg.Done()

	name := fmt.Sprintf("%s-%d", w.workerID, poolNum)

	for {
		select {
		case <-w.stopChan:
			return

		case <-ctx.Done():
			return

		case delivery, ok := <-w.jobsChan:
			if !ok {
				return
			}

			verdict := w.process(ctx, delivery)
			w.settle(name, delivery, verdict)
		}
	}
}

// settle acks or nacks one delivery according to the processing verdict
func (w *Worker) settle(name string, delivery amqp.Delivery, v verdict) {
	if v.ack {
		if err := delivery.Ack(false); err != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("pool_worker", name),
				slog.Uint64("delivery_tag", delivery.DeliveryTag),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if err := delivery.Nack(false, v.requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("pool_worker", name),
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.String("error", err.Error()),
		)
		return
	}

	w.logger.Info("Message NACKed",
		slog.String("pool_worker", name),
		slog.Uint64("delivery_tag", delivery.DeliveryTag),
		slog.Bool("requeue", v.requeue),
	)
}
