//go:build !windows

package interrupt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestNotifyCancelsOnSignal(t *testing.T) {
	ctx, stop := Notify(context.Background())
	defer stop()

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGHUP))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled by SIGHUP")
	}
}

func TestNotifyStopCancels(t *testing.T) {
	ctx, stop := Notify(context.Background())
	stop()
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}
