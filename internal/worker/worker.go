package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Worker interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

type Runner struct {
	workers []Worker
	logger  *zap.Logger
}

func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{workers: []Worker{}, logger: logger.Named("worker")}
}

func (r *Runner) Register(w Worker) {
	r.workers = append(r.workers, w)
}

// Start runs every registered worker immediately and then on its interval
// until ctx is cancelled. It blocks until all workers have stopped.
func (r *Runner) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range r.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			ticker := time.NewTicker(w.Interval())
			defer ticker.Stop()

			for {
				if err := w.Run(ctx); err != nil {
					r.logger.Error("worker run failed", zap.String("worker", w.Name()), zap.Error(err))
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}(w)
	}
	wg.Wait()
}
