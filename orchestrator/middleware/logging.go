package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/fedlens/runwatch/orchestrator"
	"github.com/fedlens/runwatch/run"
)

var _ orchestrator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    orchestrator.Service
}

func Logging(logger *slog.Logger, svc orchestrator.Service) orchestrator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Subscribe(sub orchestrator.Subscriber) {
	lm.svc.Subscribe(sub)
}

func (lm *loggingMiddleware) StartTraining(ctx context.Context, cfg run.TrainConfig) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("config",
				slog.Int("num_clients", cfg.NumClients),
				slog.Int("num_rounds", cfg.NumRounds),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Start training failed", args...)

			return
		}
		lm.logger.Info("Start training completed successfully", args...)
	}(time.Now())

	return lm.svc.StartTraining(ctx, cfg)
}

func (lm *loggingMiddleware) Retry(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Retry readiness poll failed", args...)

			return
		}
		lm.logger.Info("Retry readiness poll completed successfully", args...)
	}(time.Now())

	return lm.svc.Retry(ctx)
}

func (lm *loggingMiddleware) ForceReady(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Force ready failed", args...)

			return
		}
		lm.logger.Warn("Force ready applied", args...)
	}(time.Now())

	return lm.svc.ForceReady(ctx)
}

func (lm *loggingMiddleware) Reset(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Reset session failed", args...)

			return
		}
		lm.logger.Info("Reset session completed successfully", args...)
	}(time.Now())

	return lm.svc.Reset(ctx)
}

func (lm *loggingMiddleware) Session(ctx context.Context) (sess run.Session, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("session",
				slog.String("id", sess.ID),
				slog.String("run_id", sess.RunID),
				slog.String("status", sess.Status.String()),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get session failed", args...)

			return
		}
		lm.logger.Debug("Get session completed successfully", args...)
	}(time.Now())

	return lm.svc.Session(ctx)
}

func (lm *loggingMiddleware) Shutdown(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Shutdown failed", args...)

			return
		}
		lm.logger.Info("Shutdown completed successfully", args...)
	}(time.Now())

	return lm.svc.Shutdown(ctx)
}
