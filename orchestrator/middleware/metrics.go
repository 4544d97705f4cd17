package middleware

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/fedlens/runwatch/orchestrator"
	"github.com/fedlens/runwatch/run"
)

var _ orchestrator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     orchestrator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc orchestrator.Service) orchestrator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Subscribe(sub orchestrator.Subscriber) {
	mm.svc.Subscribe(sub)
}

func (mm *metricsMiddleware) StartTraining(ctx context.Context, cfg run.TrainConfig) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "start-training").Add(1)
		mm.latency.With("method", "start-training").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.StartTraining(ctx, cfg)
}

func (mm *metricsMiddleware) Retry(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "retry").Add(1)
		mm.latency.With("method", "retry").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Retry(ctx)
}

func (mm *metricsMiddleware) ForceReady(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "force-ready").Add(1)
		mm.latency.With("method", "force-ready").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ForceReady(ctx)
}

func (mm *metricsMiddleware) Reset(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "reset").Add(1)
		mm.latency.With("method", "reset").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Reset(ctx)
}

func (mm *metricsMiddleware) Session(ctx context.Context) (run.Session, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "session").Add(1)
		mm.latency.With("method", "session").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Session(ctx)
}

func (mm *metricsMiddleware) Shutdown(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "shutdown").Add(1)
		mm.latency.With("method", "shutdown").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Shutdown(ctx)
}
