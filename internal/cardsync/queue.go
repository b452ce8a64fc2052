package cardsync

import (
	"context"
	"log/slog"
)

// pushRunner is the subset of Coordinator the queue drives. Extracted
// for testability.
type pushRunner interface {
	PushToServer(ctx context.Context) (Report, error)
}

// PushQueue runs post-edit pushes in the background. Submit never blocks
// and requests that arrive while one is pending are coalesced into it.
// Failures are logged by Run, never returned to the submitter.
type PushQueue struct {
	runner pushRunner
	logger *slog.Logger
	jobs   chan struct{}
}

// NewPushQueue creates a queue driving runner.
func NewPushQueue(runner pushRunner, logger *slog.Logger) *PushQueue {
	return &PushQueue{
		runner: runner,
		logger: logger,
		jobs:   make(chan struct{}, 1),
	}
}

// Submit asks for a push.
func (q *PushQueue) Submit() {
	select {
	case q.jobs <- struct{}{}:
	default:
	}
}

// Run processes submitted pushes until ctx is cancelled.
func (q *PushQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.jobs:
			rep, err := q.runner.PushToServer(ctx)
			if err != nil {
				q.logger.Warn("background push failed", slog.String("error", err.Error()))
				continue
			}

			if rep.Pushed > 0 || rep.Failed > 0 {
				q.logger.Info("background push finished",
					slog.Int("pushed", rep.Pushed),
					slog.Int("failed", rep.Failed),
				)
			}
		}
	}
}
