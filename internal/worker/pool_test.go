package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

type recordingReporter struct {
	mu    sync.Mutex
	calls int
	size  int
}

func (r *recordingReporter) UpdateWorkerPoolStats(size, active, queueSize int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.size = size
}

func TestPool_SubmitAndWait(t *testing.T) {
	var handled atomic.Int32
	pool := NewPool(2, 4, func(ctx context.Context, job *Job) error {
		handled.Add(1)
		if job.ID == "bad" {
			return errors.New("analysis failed")
		}
		return nil
	}, quietLogger())
	reporter := &recordingReporter{}
	pool.SetStatsReporter(reporter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	require.NoError(t, pool.SubmitAndWait(ctx, &Job{ID: "ok", Paths: []string{"/data/a.apk"}}))
	assert.EqualError(t, pool.SubmitAndWait(ctx, &Job{ID: "bad"}), "analysis failed")
	assert.EqualValues(t, 2, handled.Load())

	reporter.mu.Lock()
	assert.Positive(t, reporter.calls)
	assert.Equal(t, 2, reporter.size)
	reporter.mu.Unlock()
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool := NewPool(1, 1, func(ctx context.Context, job *Job) error {
		started <- struct{}{}
		<-release
		return nil
	}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.NoError(t, pool.Submit(&Job{ID: "1"}))
	<-started
	assert.Equal(t, 1, pool.ActiveCount())

	require.NoError(t, pool.Submit(&Job{ID: "2"}))
	assert.ErrorIs(t, pool.Submit(&Job{ID: "3"}), ErrQueueFull)
	assert.Equal(t, 1, pool.GetQueueSize())

	close(release)
	pool.Stop()
	assert.ErrorIs(t, pool.Submit(&Job{ID: "4"}), ErrPoolStopped)
	assert.Equal(t, 0, pool.ActiveCount())
}

func TestPool_PanicIsContained(t *testing.T) {
	pool := NewPool(1, 1, func(ctx context.Context, job *Job) error {
		panic("boom")
	}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	err := pool.SubmitAndWait(ctx, &Job{ID: "p"})
	assert.EqualError(t, err, "job panicked")
}

func TestPool_SubmitAndWaitCancelled(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(ctx context.Context, job *Job) error {
		<-release
		return nil
	}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer waitCancel()
	err := pool.SubmitAndWait(waitCtx, &Job{ID: "slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	pool.Stop()
}
