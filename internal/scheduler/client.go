package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"offerboard_backend/platform/config"
)

// Client enqueues refresh tasks.
type Client struct {
	client *asynq.Client
	queue  string
}

// RefreshEnqueuer is the narrow interface handed to the HTTP layer.
type RefreshEnqueuer interface {
	EnqueueFullRefresh(ctx context.Context) error
	EnqueueOfferRefresh(ctx context.Context, payload RefreshOfferPayload) error
}

// NewClient creates an asynq client on the configured queue.
func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueFullRefresh queues a full-catalog pipeline run.
func (c *Client) EnqueueFullRefresh(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	_, err := c.client.EnqueueContext(ctx, NewRefreshFullTask(), asynq.Queue(c.queue))
	return err
}

// EnqueueOfferRefresh queues a scoped pipeline run.
func (c *Client) EnqueueOfferRefresh(ctx context.Context, payload RefreshOfferPayload) error {
	if c == nil || c.client == nil {
		return nil
	}
	task, err := NewRefreshOfferTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
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
