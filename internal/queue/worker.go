package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redmonkez12/go-shortener-api/internal/logging"
)

// DefaultPollTimeout bounds each blocking pop so shutdown is noticed
const DefaultPollTimeout = 5 * time.Second

// Handler processes one job
type Handler func(ctx context.Context, job *Job) error

// Worker pops jobs and dispatches them by type
type Worker struct {
	queue       *Queue
	handlers    map[string]Handler
	logger      *logging.Logger
	pollTimeout time.Duration
}

func NewWorker(q *Queue, logger *logging.Logger, pollTimeout time.Duration) *Worker {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Worker{
		queue:       q,
		handlers:    make(map[string]Handler),
		logger:      logger,
		pollTimeout: pollTimeout,
	}
}

// Handle registers h for jobs of jobType
func (w *Worker) Handle(jobType string, h Handler) {
	w.handlers[jobType] = h
}

// Run processes jobs until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "queue", w.queue.Key())

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped", "queue", w.queue.Key())
			return nil
		}

		if _, err := w.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("failed to process job", "error", err)
			// Back off so a dead Redis does not spin the loop
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessOne waits for a single job and handles it. It reports whether a
// job was taken off the queue.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx, w.pollTimeout)
	if err != nil {
		if errors.Is(err, ErrEmpty) {
			return false, nil
		}
		return false, err
	}

	logger := w.logger.WithFields(map[string]any{
		"job_id":   job.ID,
		"job_type": job.Type,
		"attempt":  job.Attempts + 1,
	})

	h, ok := w.handlers[job.Type]
	if !ok {
		logger.Error("no handler for job type, dropping")
		return true, nil
	}

	if err := h(logging.WithLogger(ctx, logger), job); err != nil {
		dead, pushErr := w.queue.retry(ctx, job)
		if pushErr != nil {
			return true, fmt.Errorf("failed to requeue job after %v: %w", err, pushErr)
		}
		if dead {
			logger.Error("job failed permanently", "error", err)
		} else {
			logger.Warn("job failed, will retry", "error", err)
		}
		return true, nil
	}

	logger.Debug("job done")
	return true, nil
}
