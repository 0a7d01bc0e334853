// Package email renders and delivers token emails. The API process only
// enqueues messages; the worker process renders and sends them.
package email

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redmonkez12/go-shortener-api/internal/logging"
	"github.com/redmonkez12/go-shortener-api/internal/onetime"
	"github.com/redmonkez12/go-shortener-api/internal/queue"
)

// JobType tags email jobs on the queue
const JobType = "email.send"

// Enqueuer is the producing side of a job queue
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any) error
}

// QueueNotifier hands messages to the worker through the job queue
type QueueNotifier struct {
	queue Enqueuer
}

func NewQueueNotifier(q Enqueuer) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

func (n *QueueNotifier) Notify(ctx context.Context, msg onetime.Message) error {
	if err := n.queue.Enqueue(ctx, JobType, msg); err != nil {
		return fmt.Errorf("failed to enqueue %s email: %w", msg.Purpose, err)
	}
	return nil
}

// NewJobHandler renders and sends queued messages
func NewJobHandler(renderer *Renderer, sender Sender) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		logger := logging.GetLoggerFromContext(ctx)

		var msg onetime.Message
		if err := json.Unmarshal(job.Payload, &msg); err != nil {
			// A malformed payload will never succeed, so it is not retried
			logger.Error("dropping undecodable email job", "error", err)
			return nil
		}

		body, err := renderer.Render(msg)
		if err != nil {
			logger.Error("failed to render email template", "purpose", string(msg.Purpose), "error", err)
			return nil
		}

		if err := sender.Send(ctx, msg.To, msg.Subject, body); err != nil {
			logger.Error("failed to send email", "email", msg.To, "purpose", string(msg.Purpose), "error", err)
			return err
		}

		logger.Info("email sent", "email", msg.To, "purpose", string(msg.Purpose))
		return nil
	}
}
