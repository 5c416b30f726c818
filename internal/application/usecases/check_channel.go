package usecases

import (
	"context"
	"fmt"
)

// Pinger is implemented by channels that can report their readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type CheckChannel struct {
	Channel Pinger
}

func (u CheckChannel) Execute(ctx context.Context) error {
	if u.Channel == nil {
		return fmt.Errorf("channel is nil")
	}
	return u.Channel.Ping(ctx)
}
