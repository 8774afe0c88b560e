package queue

import (
	"context"
	"crypto/tls"
	"fmt"

	"leadchat_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	EnqueueProcessMessage(ctx context.Context, payload ProcessMessagePayload) error
	EnqueueNotification(ctx context.Context, payload NotificationPayload) error
	EnqueueHandoffTimeout(ctx context.Context, payload HandoffTimeoutPayload) error
}

type Client struct {
	client   *asynq.Client
	maxRetry int
}

func NewClient(cfg config.QueueConfig) (*Client, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	maxRetry := cfg.GetJobMaxRetry()
	if maxRetry < 0 {
		maxRetry = 0
	}

	return &Client{client: asynq.NewClient(opt), maxRetry: maxRetry}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) EnqueueProcessMessage(ctx context.Context, payload ProcessMessagePayload) error {
	task, err := NewProcessMessageTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueMessages), asynq.MaxRetry(c.maxRetry))
	return err
}

func (c *Client) EnqueueNotification(ctx context.Context, payload NotificationPayload) error {
	task, err := NewDispatchNotificationTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueNotifications), asynq.MaxRetry(c.maxRetry))
	return err
}

func (c *Client) EnqueueHandoffTimeout(ctx context.Context, payload HandoffTimeoutPayload) error {
	task, err := NewHandoffTimeoutTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueScheduled), asynq.MaxRetry(c.maxRetry))
	return err
}

// EnqueueRaw re-enqueues a verbatim task payload on the named queue. Used
// by the ops requeue endpoint to push dead letters back through the
// pipeline.
func (c *Client) EnqueueRaw(ctx context.Context, taskType, queueName string, data []byte) error {
	_, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), asynq.Queue(queueName), asynq.MaxRetry(c.maxRetry))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	if redisURL == "" {
		return asynq.RedisClientOpt{}, fmt.Errorf("redis url not configured")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
