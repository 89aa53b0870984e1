package worker

import (
	"context"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cycleride/payout-be/internal/outbox"
	"github.com/cycleride/payout-be/internal/withdrawal"
)

// verdict is the settle decision for one delivery
type verdict struct {
	ack     bool
	requeue bool
}

var (
	ackDone        = verdict{ack: true}
	nackRequeue    = verdict{requeue: true}
	nackDeadLetter = verdict{} // malformed or unroutable, broker DLQ policy applies
)

// process runs one delivery through the matching use case. The verdict maps
// the tagged outcome onto the queue contract: terminal results ack, an
// ambiguous result nacks with requeue so the broker redelivers, and garbage
// nacks without requeue.
func (w *Worker) process(ctx context.Context, delivery amqp.Delivery) verdict {
	runCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	env, err := outbox.ParseEnvelope(delivery.Body)
	if err != nil {
		w.logger.Error("Malformed job envelope",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		return nackDeadLetter
	}

	w.logger.Info("Processing job",
		slog.String("job_id", env.JobID),
		slog.String("job_type", env.JobType),
		slog.String("worker_id", w.workerID),
	)

	switch env.JobType {
	case outbox.JobTypeWithdrawalExecute:
		return w.runExecute(runCtx, env)
	case outbox.JobTypeWithdrawalSweep:
		return w.runSweep(runCtx, env)
	default:
		w.logger.Error("Unknown job type",
			slog.String("job_id", env.JobID),
			slog.String("job_type", env.JobType),
		)
		return nackDeadLetter
	}
}

func (w *Worker) runExecute(ctx context.Context, env *outbox.Envelope) verdict {
	withdrawalID, err := withdrawal.ParseExecutePayload(string(env.Payload))
	if err != nil {
		w.logger.Error("Invalid execute payload",
			slog.String("job_id", env.JobID),
			slog.String("error", err.Error()),
		)
		return nackDeadLetter
	}

	outcome, err := w.executor.Execute(ctx, withdrawalID)
	if err != nil {
		if errors.Is(err, withdrawal.ErrNotFound) || errors.Is(err, withdrawal.ErrInvalidState) {
			// redelivery cannot fix these; park them for inspection
			w.logger.Error("Withdrawal job is unprocessable",
				slog.String("job_id", env.JobID),
				slog.String("withdrawal_id", withdrawalID),
				slog.String("error", err.Error()),
			)
			return nackDeadLetter
		}

		w.logger.Error("Withdrawal execution hit infrastructure error",
			slog.String("job_id", env.JobID),
			slog.String("withdrawal_id", withdrawalID),
			slog.String("error", err.Error()),
		)
		return nackRequeue
	}

	w.logger.Info("Withdrawal execution finished",
		slog.String("job_id", env.JobID),
		slog.String("withdrawal_id", withdrawalID),
		slog.String("outcome", outcome.String()),
	)

	switch outcome {
	case withdrawal.OutcomeAmbiguous:
		// the broker redelivers; replays are safe and the sweep backstops
		return nackRequeue
	default:
		return ackDone
	}
}

func (w *Worker) runSweep(ctx context.Context, env *outbox.Envelope) verdict {
	summary, err := w.sweeper.Sweep(ctx)
	if err != nil {
		w.logger.Error("Sweep pass failed",
			slog.String("job_id", env.JobID),
			slog.String("error", err.Error()),
		)
		return nackRequeue
	}

	w.logger.Info("Sweep job finished",
		slog.String("job_id", env.JobID),
		slog.Int("scanned", summary.Scanned),
	)

	return ackDone
}
