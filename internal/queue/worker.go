package queue

import (
	"context"
	"time"

	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"
	"leadchat_backend/platform/resilience"

	"github.com/hibiken/asynq"
)

// MessageProcessor handles one inbound lead message end to end.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, payload ProcessMessagePayload) error
}

// NotificationDispatcher alerts a human agent about a handoff.
type NotificationDispatcher interface {
	DispatchNotification(ctx context.Context, payload NotificationPayload) error
}

// HandoffTimeoutHandler releases conversations no human picked up in time.
type HandoffTimeoutHandler interface {
	HandleHandoffTimeout(ctx context.Context, payload HandoffTimeoutPayload) error
}

// Worker consumes the three queues. The messages queue gets the bulk of
// the weight; notifications and scheduled sweeps ride along at lower
// priority so a message backlog cannot starve them completely.
type Worker struct {
	server        *asynq.Server
	mux           *asynq.ServeMux
	processor     MessageProcessor
	notifications NotificationDispatcher
	timeouts      HandoffTimeoutHandler
	log           *logger.Logger
}

func NewWorker(
	cfg config.QueueConfig,
	processor MessageProcessor,
	notifications NotificationDispatcher,
	timeouts HandoffTimeoutHandler,
	dlq *DLQRouter,
	log *logger.Logger,
) (*Worker, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetMessageConcurrency()
	if concurrency < 1 {
		concurrency = 5
	}

	maxRetry := cfg.GetJobMaxRetry()
	if maxRetry < 0 {
		maxRetry = 0
	}

	backoff := resilience.RetryConfig{
		BaseDelay: 5 * time.Second,
		MaxDelay:  5 * time.Minute,
		Jitter:    true,
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueMessages:      6,
			QueueNotifications: 3,
			QueueScheduled:     1,
		},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return resilience.Backoff(n, backoff)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(dlq.HandleExhausted),
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:        server,
		mux:           mux,
		processor:     processor,
		notifications: notifications,
		timeouts:      timeouts,
		log:           log,
	}

	mux.HandleFunc(TaskProcessMessage, w.handleProcessMessage)
	mux.HandleFunc(TaskDispatchNotification, w.handleDispatchNotification)
	mux.HandleFunc(TaskHandoffTimeout, w.handleHandoffTimeout)

	return w, nil
}

func (w *Worker) handleProcessMessage(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProcessMessagePayload(task)
	if err != nil {
		w.log.Error("malformed message payload", "error", err)
		return nil // unparseable payloads would fail every retry
	}
	return w.processor.ProcessMessage(ctx, payload)
}

func (w *Worker) handleDispatchNotification(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseNotificationPayload(task)
	if err != nil {
		w.log.Error("malformed notification payload", "error", err)
		return nil
	}
	return w.notifications.DispatchNotification(ctx, payload)
}

func (w *Worker) handleHandoffTimeout(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseHandoffTimeoutPayload(task)
	if err != nil {
		w.log.Error("malformed handoff timeout payload", "error", err)
		return nil
	}
	return w.timeouts.HandleHandoffTimeout(ctx, payload)
}

// Run blocks until ctx is canceled, then drains in-flight jobs.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("queue worker stopped", "error", err)
	}
}
