package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"crou/internal/config"
	"crou/internal/tasks/rate"
	"crou/internal/utils/logger"
)

// TaskClient handles task enqueuing. Batch processing enqueues are rate
// limited per tenant so one office cannot saturate the workers.
type TaskClient struct {
	client      *asynq.Client
	logger      *logger.Logger
	redisClient *redis.Client
	limiter     *rate.QueueRateLimiter
}

func (c *TaskClient) GetClient() *asynq.Client {
	return c.client
}

// NewTaskClient creates a new TaskClient with the given Redis configuration
func NewTaskClient(cfg config.RedisConfig) *TaskClient {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	limiter := rate.NewQueueRateLimiter(redisClient, rate.QueueConfig{
		Name: "batch_processing",
		RateLimit: rate.RateLimit{
			Window:  time.Minute,
			MaxJobs: 5,
		},
	})

	return &TaskClient{
		client:      asynq.NewClient(redisOpt),
		redisClient: redisClient,
		limiter:     limiter,
		logger:      logger.New("TASKS"),
	}
}

// EnqueueProcessBatch queues an assignment pass for a batch that just moved
// to PROCESSING.
func (c *TaskClient) EnqueueProcessBatch(ctx context.Context, batchID, tenantID, actor string) error {
	allowed, err := c.limiter.Allow(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("rate limiter check: %w", err)
	}
	if !allowed {
		return fmt.Errorf("tenant %s exceeded the batch processing rate", tenantID)
	}

	payload, err := json.Marshal(ProcessBatchPayload{
		BatchID:  batchID,
		TenantID: tenantID,
		Actor:    actor,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeProcessBatch, payload,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(RetryDefault),
		asynq.Timeout(TimeoutLong),
		// One in-flight pass per batch
		asynq.TaskID(fmt.Sprintf("%s:%s", TaskTypeProcessBatch, batchID)),
	)
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue process batch: %w", err)
	}

	c.logger.Info("enqueued %s for batch %s (task %s)", TaskTypeProcessBatch, batchID, info.ID)
	return nil
}

// Close closes the underlying asynq client
func (c *TaskClient) Close() error {
	if err := c.client.Close(); err != nil {
		return err
	}
	return c.redisClient.Close()
}
