package orchestrator

import (
	"context"
	"fmt"
	"time"
)

type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffFixed       BackoffKind = "fixed"
)

func ParseBackoffKind(s string) (BackoffKind, error) {
	switch BackoffKind(s) {
	case BackoffExponential, BackoffFixed:
		return BackoffKind(s), nil
	case "":
		return BackoffExponential, nil
	default:
		return "", fmt.Errorf("unknown backoff %q (want exponential or fixed)", s)
	}
}

type Backoff struct {
	Kind BackoffKind
	Base time.Duration
	Max  time.Duration
}

// Delay returns the extra wait before retry number n (n >= 1).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 || b.Base <= 0 {
		return 0
	}
	d := b.Base
	if b.Kind != BackoffFixed {
		for i := 1; i < n; i++ {
			d *= 2
			if b.Max > 0 && d >= b.Max {
				break
			}
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
