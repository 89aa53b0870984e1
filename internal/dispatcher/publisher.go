package dispatcher

import (
	"context"
	"log/slog"

	"github.com/cycleride/payout-be/internal/outbox"
	"github.com/cycleride/payout-be/shared/rabbitmq"
)

// QueuePublisher publishes outbox jobs to RabbitMQ as JSON envelopes
type QueuePublisher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewQueuePublisher creates a new QueuePublisher instance
func NewQueuePublisher(client *rabbitmq.Client, logger *slog.Logger) *QueuePublisher {
	return &QueuePublisher{
		client: client,
		logger: logger,
	}
}

// Publish sends the job envelope as a persistent message. The job id rides
// along as the message id so duplicate deliveries stay traceable downstream.
func (p *QueuePublisher) Publish(ctx context.Context, job *outbox.Job) error {
	body, err := outbox.MarshalEnvelope(job)
	if err != nil {
		return err
	}

	if err := p.client.PublishWithRetry(ctx, body, "application/json", job.ID, job.Type); err != nil {
		return err
	}

	p.logger.Debug("Job published to queue",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
	)

	return nil
}
