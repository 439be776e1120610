package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/notify"
	"github.com/dharsanguruparan/straymandu/internal/queue"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	store  notify.Store
	logger *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(store notify.Store, logger *zap.Logger) *Processor {
	return &Processor{store: store, logger: logger}
}

// Handler registers the notification job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.NotificationTask, p.handleNotification)
	return mux
}

func (p *Processor) handleNotification(ctx context.Context, task *asynq.Task) error {
	n, err := queue.DecodeNotification(task)
	if err != nil {
		p.logger.Error("dropping malformed notification task", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	created, err := p.store.CreateNotification(ctx, n)
	if err != nil {
		p.logger.Warn("notification write failed",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err))
		return err
	}
	if !created {
		p.logger.Debug("notification already delivered", zap.String("notification_id", n.ID))
		return nil
	}
	p.logger.Info("notification delivered",
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("report_id", n.ReportID))
	return nil
}
