package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-shortener-api/internal/logging"
)

type greeting struct {
	Name string `json:"name"`
}

func newTestQueue(t *testing.T) (*miniredis.Miniredis, *Queue) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewQueue(client, "queue:test")
}

func TestEnqueueDequeueInOrder(t *testing.T) {
	ctx := context.Background()
	_, q := newTestQueue(t)

	require.NoError(t, q.Enqueue(ctx, "greet", greeting{Name: "first"}))
	require.NoError(t, q.Enqueue(ctx, "greet", greeting{Name: "second"}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, want := range []string{"first", "second"} {
		job, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "greet", job.Type)
		assert.NotEmpty(t, job.ID)

		var g greeting
		require.NoError(t, json.Unmarshal(job.Payload, &g))
		assert.Equal(t, want, g.Name)
	}
}

func TestDequeueTimesOutWhenEmpty(t *testing.T) {
	_, q := newTestQueue(t)
	_, err := q.Dequeue(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestWorkerDispatchesByType(t *testing.T) {
	ctx := context.Background()
	_, q := newTestQueue(t)
	w := NewWorker(q, logging.NewNopLogger(), time.Second)

	var got string
	w.Handle("greet", func(ctx context.Context, job *Job) error {
		var g greeting
		if err := json.Unmarshal(job.Payload, &g); err != nil {
			return err
		}
		got = g.Name
		return nil
	})

	require.NoError(t, q.Enqueue(ctx, "greet", greeting{Name: "ada"}))
	took, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, took)
	assert.Equal(t, "ada", got)

	took, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.False(t, took)
}

func TestWorkerRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	mr, q := newTestQueue(t)
	w := NewWorker(q, logging.NewNopLogger(), time.Second)

	var calls int
	w.Handle("greet", func(context.Context, *Job) error {
		calls++
		return errors.New("smtp down")
	})

	require.NoError(t, q.Enqueue(ctx, "greet", greeting{Name: "ada"}))
	for i := 0; i < MaxAttempts; i++ {
		took, err := w.ProcessOne(ctx)
		require.NoError(t, err)
		require.True(t, took)
	}

	assert.Equal(t, MaxAttempts, calls)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	dead, err := mr.List(q.DeadLetterKey())
	require.NoError(t, err)
	require.Len(t, dead, 1)

	var job Job
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &job))
	assert.Equal(t, MaxAttempts, job.Attempts)
}

func TestWorkerDropsUnknownTypes(t *testing.T) {
	ctx := context.Background()
	_, q := newTestQueue(t)
	w := NewWorker(q, logging.NewNopLogger(), time.Second)

	require.NoError(t, q.Enqueue(ctx, "mystery", greeting{}))
	took, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, took)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunStopsOnCancel(t *testing.T) {
	_, q := newTestQueue(t)
	w := NewWorker(q, logging.NewNopLogger(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	var handled atomic.Int32
	w.Handle("greet", func(context.Context, *Job) error {
		handled.Add(1)
		cancel()
		return nil
	})
	require.NoError(t, q.Enqueue(context.Background(), "greet", greeting{Name: "ada"}))

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.EqualValues(t, 1, handled.Load())
}
