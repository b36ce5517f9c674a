package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"wayfinder/models"
	"wayfinder/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TaskHandler is the part of the delivery coordinator the worker drives.
type TaskHandler interface {
	HandleReminder(ctx context.Context, payload models.ReminderPayload) error
	RetryDelivery(ctx context.Context, payload models.PushRetryPayload) error
}

// Worker consumes reminder and push retry tasks.
type Worker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger

	// ping reports whether the queue's Redis is reachable; start launches
	// the asynq server. Both are fields so startup can be driven in tests.
	ping       func(ctx context.Context) error
	start      func() error
	retryDelay func(attempt int) time.Duration
	closePing  func() error

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWorker builds the asynq server and registers the task handlers.
func NewWorker(redisOpts asynq.RedisClientOpt, handler TaskHandler, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			Logger: logger.Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSendReminder, handleReminderTask(handler, logger))
	mux.HandleFunc(tasks.TypePushRetry, handlePushRetryTask(handler, logger))

	pinger := redis.NewClient(&redis.Options{
		Addr:     redisOpts.Addr,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	})

	return &Worker{
		srv:        srv,
		mux:        mux,
		logger:     logger,
		ping:       func(ctx context.Context) error { return pinger.Ping(ctx).Err() },
		start:      func() error { return srv.Start(mux) },
		retryDelay: func(attempt int) time.Duration { return time.Duration(attempt*2) * time.Second },
		closePing:  pinger.Close,
		stop:       make(chan struct{}),
	}
}

// Start runs the worker in the background once the queue's Redis answers.
func (w *Worker) Start() {
	go w.run()
}

const maxStartAttempts = 5

// run waits for Redis with backoff, then starts the asynq server once. A
// start error after a successful ping is a server state problem and is not
// retried. It reports whether the server is running.
func (w *Worker) run() bool {
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := w.ping(ctx)
		cancel()
		if err == nil {
			break
		}
		w.logger.Warn("task queue redis unreachable",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxStartAttempts),
			zap.Error(err),
		)
		if attempt == maxStartAttempts {
			w.logger.Error("task worker gave up starting; reminders and push retries are paused")
			return false
		}
		select {
		case <-w.stop:
			return false
		case <-time.After(w.retryDelay(attempt)):
		}
	}

	select {
	case <-w.stop:
		return false
	default:
	}
	if err := w.start(); err != nil {
		w.logger.Error("task worker failed to start", zap.Error(err))
		return false
	}
	w.logger.Info("task worker started")
	return true
}

// Shutdown waits for in-flight tasks and stops the worker.
func (w *Worker) Shutdown() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.srv.Shutdown()
	if w.closePing != nil {
		_ = w.closePing()
	}
}

func handleReminderTask(handler TaskHandler, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p models.ReminderPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("invalid reminder payload", zap.Error(err))
			return fmt.Errorf("decode reminder: %v: %w", err, asynq.SkipRetry)
		}

		logger.Info("reminder due",
			zap.String("reminderId", p.ReminderID),
			zap.String("recipientId", p.RecipientID),
		)
		if err := handler.HandleReminder(ctx, p); err != nil {
			if models.IsValidationError(err) {
				return fmt.Errorf("reminder rejected: %v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	}
}

func handlePushRetryTask(handler TaskHandler, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p models.PushRetryPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("invalid push retry payload", zap.Error(err))
			return fmt.Errorf("decode push retry: %v: %w", err, asynq.SkipRetry)
		}
		return handler.RetryDelivery(ctx, p)
	}
}
