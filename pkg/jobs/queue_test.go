package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := make([]string, 0)
	done := make(chan struct{}, 3)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Job{ID: id, Type: "test"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"a", "b", "c"}, seen)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})

	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "r1"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueStopDrainsBufferedJobs(t *testing.T) {
	var processed int32
	release := make(chan struct{})

	q := NewQueue("drain", func(ctx context.Context, job Job) error {
		<-release
		atomic.AddInt32(&processed, 1)
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8})
	q.Start(context.Background())

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "d"}))
	}
	close(release)
	q.Stop()

	require.Equal(t, int32(4), atomic.LoadInt32(&processed))
	require.ErrorIs(t, q.Enqueue(Job{ID: "late"}), ErrQueueClosed)
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "x"}))
	q.Stop()
}

func TestQueueStopReleasesBlockedProducers(t *testing.T) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})

	q := NewQueue("full", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-release
		return errors.New("smtp timeout")
	}, QueueConfig{Workers: 1, BufferSize: 1, MaxRetries: 1, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "in-flight"}))
	<-started
	require.NoError(t, q.Enqueue(Job{ID: "buffered"}))

	blocked := make(chan error, 1)
	go func() { blocked <- q.Enqueue(Job{ID: "blocked"}) }()
	time.Sleep(20 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	require.Eventually(t, func() bool { return q.ctx.Err() != nil }, 2*time.Second, time.Millisecond)

	// the failing in-flight job now reaches the retry path while Stop is running
	close(release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
	select {
	case err := <-blocked:
		if err != nil {
			require.ErrorIs(t, err, ErrQueueClosed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked")
	}
}
