package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

// ErrQueueFull is returned by Pool.Send when the buffer is saturated.
var ErrQueueFull = errors.New("notification queue full")

// Pool writes notifications from a small set of goroutines so the request
// that changed the status does not wait on the write.
type Pool struct {
	store   Store
	queue   chan *model.Notification
	workers int
	timeout time.Duration
	log     *zap.Logger
}

// NewPool builds a Pool with queue capacity tied to worker count.
func NewPool(store Store, workers int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		store:   store,
		queue:   make(chan *model.Notification, workers*16),
		workers: workers,
		timeout: 10 * time.Second,
		log:     log,
	}
}

// Start launches the worker goroutines; they exit when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx)
	}
}

// Send queues n without blocking.
func (p *Pool) Send(_ context.Context, n *model.Notification) error {
	select {
	case p.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-p.queue:
			p.write(ctx, n)
		}
	}
}

func (p *Pool) write(ctx context.Context, n *model.Notification) {
	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	created, err := p.store.CreateNotification(wctx, n)
	if err != nil {
		p.log.Error("notification write failed",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err))
		return
	}
	if !created {
		p.log.Debug("notification already stored", zap.String("notification_id", n.ID))
	}
}
