// Package interrupt turns the platform's termination requests into context cancellation.
package interrupt

import (
	"context"
	"os/signal"
)

// Notify returns a context that is cancelled on the first termination request
// or when stop is called. Later requests fall back to the default behaviour.
func Notify(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, signals...)
}
