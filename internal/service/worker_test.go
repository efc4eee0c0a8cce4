package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingCompleter struct {
	calls atomic.Int32
}

func (c *countingCompleter) CompletePast(ctx context.Context, now time.Time) int {
	c.calls.Add(1)
	return 1
}

func TestAppointmentSweeper_RunsUntilCancelled(t *testing.T) {
	completer := &countingCompleter{}
	sweeper := NewAppointmentSweeper(completer, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for completer.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
	if completer.calls.Load() < 2 {
		t.Errorf("sweeper ran %d times, want at least 2", completer.calls.Load())
	}
}
