// Package server assembles the API process from configuration: it picks the
// store, the notification sender, the live feed and media storage, then
// hands them to the HTTP layer.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/api"
	"github.com/dharsanguruparan/straymandu/internal/auth"
	"github.com/dharsanguruparan/straymandu/internal/config"
	"github.com/dharsanguruparan/straymandu/internal/database"
	"github.com/dharsanguruparan/straymandu/internal/directory"
	"github.com/dharsanguruparan/straymandu/internal/feed"
	"github.com/dharsanguruparan/straymandu/internal/notify"
	"github.com/dharsanguruparan/straymandu/internal/queue"
	"github.com/dharsanguruparan/straymandu/internal/repository"
	"github.com/dharsanguruparan/straymandu/internal/s3storage"
	"github.com/dharsanguruparan/straymandu/internal/storage"
	"github.com/dharsanguruparan/straymandu/internal/workflow"
)

// Server owns every long-lived dependency of the API process.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	api    *api.Server
	pool   *notify.Pool
	once   sync.Once

	closers []func() error
}

// stores groups the persistence backends chosen by StoreMode.
type stores struct {
	reports       workflow.Store
	notifications notify.Store
	teams         api.TeamStore
	directory     interface {
		api.Directory
		workflow.Profiles
	}
}

// New builds the API process. Anything opened before a failure is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}
	if err := s.build(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context) error {
	st, err := s.openStores(ctx)
	if err != nil {
		return err
	}
	sender, err := s.openSender(st.notifications)
	if err != nil {
		return err
	}
	broker, err := s.openBroker(ctx)
	if err != nil {
		return err
	}
	var media api.MediaStore
	if s.cfg.MediaEnabled() {
		m, err := s3storage.New(s.cfg)
		if err != nil {
			return err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure media bucket: %w", err)
		}
		media = m
	} else {
		s.logger.Warn("media storage disabled; POST /media will answer 503")
	}

	svc := workflow.New(st.reports, sender, broker, st.directory, s.logger.Named("workflow"))
	s.api = api.New(s.cfg, api.Deps{
		Workflow:      svc,
		Notifications: st.notifications,
		Teams:         st.teams,
		Directory:     st.directory,
		Broker:        broker,
		Media:         media,
		Issuer:        auth.NewIssuer(s.cfg.TokenSecret, s.cfg.TokenIssuer, s.cfg.TokenTTL),
	}, s.logger.Named("api"))
	return nil
}

func (s *Server) openStores(ctx context.Context) (*stores, error) {
	if s.cfg.StoreMode == config.StoreMemory {
		s.logger.Info("using in-memory store")
		mem := storage.NewMemoryStore()
		return &stores{reports: mem, notifications: mem, teams: mem, directory: mem}, nil
	}
	pool, err := OpenDatabase(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { pool.Close(); return nil })
	dir := directory.FromPool(pool, s.logger.Named("directory"))
	s.closers = append(s.closers, dir.Close)
	return &stores{
		reports:       repository.NewReportRepository(pool),
		notifications: repository.NewNotificationRepository(pool),
		teams:         repository.NewTeamRepository(pool),
		directory:     dir,
	}, nil
}

func (s *Server) openSender(store notify.Store) (notify.Sender, error) {
	switch s.cfg.NotifyMode {
	case config.NotifyPool:
		s.pool = notify.NewPool(store, s.cfg.WorkerConcurrency, s.logger.Named("notify"))
		return s.pool, nil
	case config.NotifyQueue:
		if s.cfg.StoreMode == config.StoreMemory {
			return nil, errors.New("notification mode queue needs the postgres store; the worker cannot see an in-memory store")
		}
		client := asynq.NewClient(RedisOpt(s.cfg))
		s.closers = append(s.closers, client.Close)
		return queue.NewSender(client, ""), nil
	}
	return notify.NewDirect(store), nil
}

func (s *Server) openBroker(ctx context.Context) (feed.Broker, error) {
	if s.cfg.FeedMode != config.FeedRedis {
		return feed.NewMemoryBroker(s.logger.Named("feed")), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
	})
	s.closers = append(s.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return feed.NewRedisBroker(rdb, feed.DefaultChannel, s.logger.Named("feed")), nil
}

// Serve starts background workers and blocks in the HTTP server until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.once.Do(func() {
		if s.pool != nil {
			s.pool.Start(ctx)
		}
	})
	return s.api.Run(ctx)
}

// Close releases connections in reverse order of opening.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// OpenDatabase connects and makes sure the schema exists.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return pool, nil
}

// RedisOpt is the asynq connection shared by the API and the worker.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
