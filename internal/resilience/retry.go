// Package resilience retries store operations that fail for transient
// reasons, such as a database that is still starting or briefly locked.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy is an exponential backoff schedule. Zero fields take the defaults
// of ConnectPolicy.
type Policy struct {
	Attempts int // total tries, including the first
	Base     time.Duration
	Cap      time.Duration
	Factor   float64
	Jitter   float64 // fraction of each delay, applied ±

	// Retryable decides which errors are retried. Defaults to IsTransient.
	Retryable func(err error) bool
	// OnRetry runs before each sleep with the attempt that just failed.
	OnRetry func(attempt int, err error)
}

// ConnectPolicy gives a database that is still coming up several seconds
// to accept connections.
func ConnectPolicy() Policy {
	return Policy{
		Attempts: 4,
		Base:     time.Second,
		Cap:      8 * time.Second,
		Factor:   2,
		Jitter:   0.1,
	}
}

func (p Policy) normalized() Policy {
	def := ConnectPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.Cap <= 0 {
		p.Cap = def.Cap
	}
	if p.Factor <= 0 {
		p.Factor = def.Factor
	}
	p.Jitter = math.Max(p.Jitter, 0)
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// delay returns the wait after the given zero-based failed attempt.
func (p Policy) delay(attempt int) time.Duration {
	d := math.Min(float64(p.Base)*math.Pow(p.Factor, float64(attempt)), float64(p.Cap))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// Do runs fn until it succeeds, fails permanently, exhausts the policy, or
// ctx ends. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for operations that produce a value, such as opening a pool.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt+1 >= p.Attempts || ctx.Err() != nil || !p.Retryable(err) {
			return zero, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}
		t := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}

// LogRetry returns an OnRetry hook that logs through the global logger.
func LogRetry(component, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("component", component),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
