package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Backoff 退避方式
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// Policy 重试策略
type Policy struct {
	Attempts    int
	Interval    time.Duration
	MaxInterval time.Duration
	Backoff     Backoff
}

// ADBPolicy 设备命令：失败多为 adb daemon 短暂不可用
func ADBPolicy() Policy {
	return Policy{
		Attempts:    3,
		Interval:    500 * time.Millisecond,
		MaxInterval: 3 * time.Second,
		Backoff:     BackoffExponential,
	}
}

// PublishPolicy 消息投递：等待连接恢复
func PublishPolicy() Policy {
	return Policy{
		Attempts:    5,
		Interval:    time.Second,
		MaxInterval: 10 * time.Second,
		Backoff:     BackoffLinear,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记为不可重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 是否不可重试（包括调用方取消）
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Do 按策略执行 fn，直到成功、遇到不可重试错误或次数耗尽
func Do(ctx context.Context, p Policy, log *logrus.Entry, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry canceled: %w", err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 && log != nil {
				log.WithField("attempt", attempt).Debug("Operation succeeded after retry")
			}
			return nil
		}

		if IsPermanent(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		wait := p.delay(attempt)
		if log != nil {
			log.WithError(lastErr).WithFields(logrus.Fields{
				"attempt": attempt,
				"max":     attempts,
				"wait":    wait.String(),
			}).Warn("Operation failed, retrying")
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

// DoValue Do 的带返回值版本
func DoValue[T any](ctx context.Context, p Policy, log *logrus.Entry, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, log, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// delay 第 attempt 次失败后的等待时间
func (p Policy) delay(attempt int) time.Duration {
	var d time.Duration
	switch p.Backoff {
	case BackoffLinear:
		d = p.Interval * time.Duration(attempt)
	case BackoffExponential:
		d = p.Interval * time.Duration(1<<(attempt-1))
	default:
		d = p.Interval
	}
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}
