package retry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Interval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Backoff: BackoffExponential}
}

// TestDo_SucceedsAfterFailures 测试失败后重试成功
func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), testLog(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("adb: device offline")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// TestDo_GivesUp 测试次数耗尽
func TestDo_GivesUp(t *testing.T) {
	sentinel := errors.New("boom")
	calls := 0
	err := Do(context.Background(), fastPolicy(2), testLog(), func(ctx context.Context) error {
		calls++
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 2, calls)
}

// TestDo_Permanent 测试不可重试错误立即返回
func TestDo_Permanent(t *testing.T) {
	sentinel := errors.New("package not installed")
	calls := 0
	err := Do(context.Background(), fastPolicy(5), nil, func(ctx context.Context) error {
		calls++
		return Permanent(sentinel)
	})

	assert.ErrorIs(t, err, sentinel)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

// TestDo_Canceled 测试上下文取消
func TestDo_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastPolicy(3), testLog(), func(ctx context.Context) error {
		t.Fatal("should not be called")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

// TestDoValue 测试带返回值的重试
func TestDoValue(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), fastPolicy(3), testLog(), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "arm64-v8a", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "arm64-v8a", v)
}

// TestPolicyDelay 测试退避间隔
func TestPolicyDelay(t *testing.T) {
	exp := Policy{Interval: 100 * time.Millisecond, MaxInterval: time.Second, Backoff: BackoffExponential}
	assert.Equal(t, 100*time.Millisecond, exp.delay(1))
	assert.Equal(t, 400*time.Millisecond, exp.delay(3))
	assert.Equal(t, time.Second, exp.delay(6))

	lin := Policy{Interval: 100 * time.Millisecond, Backoff: BackoffLinear}
	assert.Equal(t, 300*time.Millisecond, lin.delay(3))

	fixed := Policy{Interval: 50 * time.Millisecond, Backoff: BackoffFixed}
	assert.Equal(t, 50*time.Millisecond, fixed.delay(4))
}
