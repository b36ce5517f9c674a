package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wayfinder/models"

	"github.com/hibiken/asynq"
)

const (
	TypeSendReminder = "reminder:send"
	TypePushRetry    = "push:retry"
)

func NewReminderTask(payload models.ReminderPayload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeSendReminder, b)
	opts := []asynq.Option{asynq.ProcessAt(payload.FireAt), asynq.TaskID(payload.ReminderID)}

	return task, opts, nil
}

// NewPushRetryTask schedules another dispatch to the endpoints that failed
// transiently. The attempt count lives in the payload; asynq's own retry is
// reserved for handler errors such as a store outage.
func NewPushRetryTask(payload models.PushRetryPayload, delay time.Duration) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypePushRetry, b)
	opts := []asynq.Option{asynq.ProcessIn(delay), asynq.MaxRetry(2)}

	return task, opts, nil
}

// Scheduler enqueues delivery tasks on the asynq queue.
type Scheduler struct {
	client *asynq.Client
}

func NewScheduler(client *asynq.Client) *Scheduler {
	return &Scheduler{client: client}
}

func (s *Scheduler) SchedulePushRetry(ctx context.Context, payload models.PushRetryPayload, delay time.Duration) error {
	task, opts, err := NewPushRetryTask(payload, delay)
	if err != nil {
		return fmt.Errorf("SchedulePushRetry: %w", err)
	}
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("SchedulePushRetry: %w", err)
	}
	return nil
}

func (s *Scheduler) ScheduleReminder(ctx context.Context, payload models.ReminderPayload) (string, error) {
	task, opts, err := NewReminderTask(payload)
	if err != nil {
		return "", fmt.Errorf("ScheduleReminder: %w", err)
	}
	info, err := s.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("ScheduleReminder: %w", err)
	}
	return info.ID, nil
}

func (s *Scheduler) Close() error {
	return s.client.Close()
}
