package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	handler := func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.ID)
		return nil
	}

	q := NewQueue("test", handler, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Job{ID: fmt.Sprintf("job-%d", i), Type: "noop"}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "early"}))
}

func TestQueueRetriesFailedJob(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	handler := func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return fmt.Errorf("transient failure")
		}
		return nil
	}

	q := NewQueue("test", handler, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "flaky", Type: "noop"}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 2
	}, 5*time.Second, 20*time.Millisecond)
}
