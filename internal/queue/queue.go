// Package queue is a small job queue on a Redis list.
//
// Producers LPUSH JSON-encoded jobs and workers BRPOP them, so jobs are
// handled in submission order. A job whose handler fails is pushed back
// until it has been attempted MaxAttempts times, then parked on the
// dead-letter list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MaxAttempts is how often a job is tried before it is dead-lettered
const MaxAttempts = 3

// ErrEmpty is returned by Dequeue when no job arrived within the timeout
var ErrEmpty = errors.New("queue is empty")

// Job is the envelope stored on the list
type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Queue is a named Redis list of jobs
type Queue struct {
	client redis.UniversalClient
	key    string
}

func NewQueue(client redis.UniversalClient, key string) *Queue {
	return &Queue{client: client, key: key}
}

// Key is the Redis list holding pending jobs
func (q *Queue) Key() string {
	return q.key
}

// DeadLetterKey is the Redis list holding jobs that ran out of attempts
func (q *Queue) DeadLetterKey() string {
	return q.key + ":dead"
}

// Enqueue submits a job of jobType carrying payload encoded as JSON
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}
	return q.push(ctx, q.key, &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	})
}

// Dequeue blocks for up to timeout waiting for the oldest job
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}

	// BRPOP replies with [key, value]
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// Len reports the number of pending jobs
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// retry pushes job back for another attempt or dead-letters it. It reports
// whether the job was dead-lettered.
func (q *Queue) retry(ctx context.Context, job *Job) (bool, error) {
	job.Attempts++
	if job.Attempts >= MaxAttempts {
		return true, q.push(ctx, q.DeadLetterKey(), job)
	}
	return false, q.push(ctx, q.key, job)
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.client.LPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}
	return nil
}
