package graceful

import (
	"context"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"GuestReportBot/internal/utils/logger/sl"
)

type Operation func(ctx context.Context) error

// Stage is a set of clean up operations that may run concurrently. Stages run
// one after another, so later stages can release what earlier ones still use.
type Stage map[string]Operation

// GracefulShutdown waits for a termination signal, or for ctx to be done, and
// then runs stages in order. Each stage gets its own timeout.
func GracefulShutdown(ctx context.Context, timeout time.Duration, stages []Stage, logger *slog.Logger) <-chan struct{} {
	op := "GracefulShutdown()"
	log := logger.With(slog.String("op", op))

	notify, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	wait := make(chan struct{})
	go func() {
		defer close(wait)
		<-notify.Done()
		stop()

		log.Info("shutting down")
		base := context.WithoutCancel(ctx)
		for i, stage := range stages {
			runStage(base, timeout, stage, log.With(slog.Int("stage", i+1)))
		}
		log.Info("graceful shutdown completed")
	}()

	return wait
}

func runStage(ctx context.Context, timeout time.Duration, stage Stage, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var wg sync.WaitGroup
	for name, op := range stage {
		wg.Add(1)
		go func() {
			defer wg.Done()

			log.Info("cleaning up", slog.String("process", name))
			if err := op(ctx); err != nil {
				log.Error("error clean up", slog.String("process", name), sl.Err(err))
				return
			}
			log.Info("shutdown gracefully", slog.String("process", name))
		}()
	}
	wg.Wait()
}
