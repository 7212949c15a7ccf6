package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lifecart/orderflow-backend/internal/fulfillment"
	"github.com/lifecart/orderflow-backend/pkg/config"
	"github.com/lifecart/orderflow-backend/pkg/db"
	"github.com/lifecart/orderflow-backend/pkg/logger"
	"github.com/lifecart/orderflow-backend/pkg/queue"
	"github.com/lifecart/orderflow-backend/pkg/redis"
)

type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	Queue    queue.Queue
	Stages   fulfillment.Stages
	Metrics  *queue.Metrics
	Registry *prometheus.Registry
}

// Service runs the fulfillment worker pool plus a metrics endpoint.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       *db.Client
	redis    *redis.Client
	queue    queue.Queue
	stages   fulfillment.Stages
	metrics  *queue.Metrics
	registry *prometheus.Registry
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if params.Stages.Payment == nil || params.Stages.Inventory == nil || params.Stages.Notification == nil {
		return nil, errors.New("all fulfillment stages are required")
	}

	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		db:       params.DB,
		redis:    params.Redis,
		queue:    params.Queue,
		stages:   params.Stages,
		metrics:  params.Metrics,
		registry: params.Registry,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if s.redis != nil {
		if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	worker, err := s.buildWorker()
	if err != nil {
		return err
	}

	metricsServer := s.metricsServer()
	errCh := make(chan error, 2)
	go func() {
		errCh <- worker.Run(ctx)
	}()
	if metricsServer != nil {
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	defer func() {
		if metricsServer == nil {
			return
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Worker.DrainGrace)
		defer cancel()
		if err := metricsServer.Shutdown(drainCtx); err != nil {
			s.logg.Error(ctx, "error draining metrics server", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, queue.ErrClosed) {
				s.logg.Error(ctx, "worker stopped unexpectedly", err)
				return err
			}
			return err
		}
	}
}

func (s *Service) buildWorker() (*queue.Worker, error) {
	worker, err := queue.NewWorker(queue.WorkerOptions{
		Queue:       s.queue,
		Concurrency: s.cfg.Worker.Concurrency,
		Logger:      s.logg,
		Metrics:     s.metrics,
	})
	if err != nil {
		return nil, err
	}
	if err := s.stages.Register(worker); err != nil {
		return nil, err
	}
	return worker, nil
}

func (s *Service) metricsServer() *http.Server {
	if s.registry == nil || s.cfg.Worker.MetricsPort == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              ":" + s.cfg.Worker.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
