package nl2sql

import (
	"context"
	"time"
)

// Provider is one text-generation backend. Complete sends a single prompt
// and returns the raw completion text, prose and markdown included;
// extraction happens elsewhere. Implementations own their transport retry
// policy, so a retried transient failure is invisible to callers.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// ModelConfig carries the provider-independent generation knobs.
type ModelConfig struct {
	Model               string
	Temperature         float64
	MaxOutputTokens     int
	Timeout             time.Duration
	MaxTransientRetries int
}

// transientDelay is the backoff before transient retry n (1-based): 1s, 2s, 4s...
func transientDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt-1)) * time.Second
}

// sleepContext waits out a backoff delay unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
