package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

const (
	// NotificationTask is scheduled each time a report status change has to
	// reach its reporter.
	NotificationTask = "notification:send"
)

// Enqueuer is the part of *asynq.Client the sender uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewNotificationTask serializes n into a task payload.
func NewNotificationTask(n *model.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(NotificationTask, data), nil
}

// DecodeNotification reverses NewNotificationTask.
func DecodeNotification(task *asynq.Task) (*model.Notification, error) {
	var n model.Notification
	if err := json.Unmarshal(task.Payload(), &n); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if n.ID == "" || n.UserID == "" {
		return nil, fmt.Errorf("decode payload: missing id or user")
	}
	return &n, nil
}

// Sender enqueues notifications for the worker. The notification id doubles
// as the task id, so a retried status change does not enqueue twice.
type Sender struct {
	client Enqueuer
	queue  string
}

// NewSender constructs a Sender. An empty queue name means "default".
func NewSender(client Enqueuer, queue string) *Sender {
	if queue == "" {
		queue = "default"
	}
	return &Sender{client: client, queue: queue}
}

// Send enqueues n.
func (s *Sender) Send(ctx context.Context, n *model.Notification) error {
	task, err := NewNotificationTask(n)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.TaskID(n.ID),
		asynq.Queue(s.queue),
		asynq.MaxRetry(5))
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue notification task: %w", err)
	}
	return nil
}
