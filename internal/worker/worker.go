package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veriscope/veriscope/internal/application/pipeline"
	"github.com/veriscope/veriscope/internal/domain/jobs"
)

// Pool consumes the job queue with a fixed number of workers, one job per
// worker at a time.
type Pool struct {
	Queue      jobs.Queue
	Orch       *pipeline.Orchestrator
	Logger     *slog.Logger
	Workers    int
	JobTimeout time.Duration
}

// Run blocks until ctx ends. Receive errors are logged and retried after a
// short pause rather than tearing the pool down.
func (p *Pool) Run(ctx context.Context) error {
	workers := p.Workers
	if workers <= 0 {
		workers = 2
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			logger := p.Logger.With("worker", w)
			for {
				if err := gctx.Err(); err != nil {
					return nil
				}
				msg, err := p.Queue.Receive(gctx)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					logger.Warn("queue receive failed", "err", err)
					select {
					case <-gctx.Done():
						return nil
					case <-time.After(5 * time.Second):
					}
					continue
				}
				if msg == nil {
					continue
				}
				p.process(gctx, logger, msg)
			}
		})
	}
	return g.Wait()
}

// process runs one delivery under the job deadline. The message is
// acknowledged on any terminal outcome (including a duplicate-delivery
// no-op); it stays on the queue only when infrastructure failed and
// redelivery may succeed.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, msg *jobs.Message) {
	timeout := p.JobTimeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	jctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, err := p.Orch.Execute(jctx, msg.JobID)
	if err != nil {
		logger.Error("job execution failed, leaving message for redelivery", "job", msg.JobID, "err", err)
		return
	}
	logger.Info("job processed", "job", msg.JobID, "status", status)

	if err := p.Queue.Delete(ctx, msg); err != nil {
		// Redelivery is safe: the status guard makes the retry a no-op.
		logger.Warn("queue ack failed", "job", msg.JobID, "err", err)
	}
}
