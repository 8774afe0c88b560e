package queue

import (
	"context"
	"time"

	"leadchat_backend/internal/leads/repository"
	"leadchat_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// DLQStore is the slice of the repository the router needs.
type DLQStore interface {
	CreateDeadLetter(ctx context.Context, params repository.CreateDeadLetterParams) error
}

// DLQRouter parks exhausted jobs in Postgres so an operator can inspect
// and requeue them. Routing is best-effort: a failed write is logged and
// swallowed so it never masks the original job failure.
type DLQRouter struct {
	store DLQStore
	log   *logger.Logger
}

func NewDLQRouter(store DLQStore, log *logger.Logger) *DLQRouter {
	return &DLQRouter{store: store, log: log}
}

// MoveToDLQ records the job's verbatim payload together with the failure
// that exhausted it.
func (r *DLQRouter) MoveToDLQ(ctx context.Context, jobID, sourceQueue, taskType string, data []byte, attemptsMade int, jobErr error) {
	errMsg := ""
	if jobErr != nil {
		errMsg = jobErr.Error()
	}

	err := r.store.CreateDeadLetter(ctx, repository.CreateDeadLetterParams{
		OriginalJobID: jobID,
		SourceQueue:   sourceQueue,
		TaskType:      taskType,
		Data:          data,
		FailedAt:      time.Now().UTC(),
		Error:         errMsg,
		AttemptsMade:  attemptsMade,
	})
	if err != nil {
		r.log.Error("failed to write dead letter", "error", err,
			"jobId", jobID, "sourceQueue", sourceQueue)
		return
	}

	if jobErr != nil {
		r.log.QueueError(sourceQueue, taskType, attemptsMade, jobErr)
	}
	r.log.Info("job moved to dead letter queue",
		"jobId", jobID, "sourceQueue", sourceQueue, "attempts", attemptsMade)
}

// HandleExhausted is installed as the asynq error handler. asynq invokes
// it on every handler failure; only jobs on their final attempt are
// routed to the dead-letter table, earlier failures are left to the
// queue's own retry backoff.
func (r *DLQRouter) HandleExhausted(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried < maxRetry {
		return
	}

	jobID, _ := asynq.GetTaskID(ctx)
	queueName, _ := asynq.GetQueueName(ctx)
	r.MoveToDLQ(ctx, jobID, queueName, task.Type(), task.Payload(), retried+1, err)
}
