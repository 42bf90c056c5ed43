package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/sells-group/earnings-cli/internal/model"
)

// fetchGuard stops a batch from hammering the source once fetches keep
// failing. After the cooldown a single trial fetch is let through.
type fetchGuard struct {
	cb *gobreaker.CircuitBreaker[map[model.Variant]string]
}

func newFetchGuard(failures int, cooldown time.Duration) *fetchGuard {
	if failures <= 0 {
		failures = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	threshold := uint32(failures)

	return &fetchGuard{cb: gobreaker.NewCircuitBreaker[map[model.Variant]string](gobreaker.Settings{
		Name:        "source-fetch",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("pipeline: circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})}
}

func (g *fetchGuard) execute(fn func() (map[model.Variant]string, error)) (map[model.Variant]string, error) {
	return g.cb.Execute(fn)
}
