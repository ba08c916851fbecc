package supervisor

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSpawnChild_CapturesExit(t *testing.T) {
	c, err := spawnChild("sh", []string{"-c", "exit 0"}, zap.NewNop())
	if err != nil {
		t.Fatalf("spawnChild() error = %v", err)
	}

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for child to exit")
	}

	if c.exitError() != nil {
		t.Errorf("exitError() = %v, expected nil for a clean exit", c.exitError())
	}
	if c.wasStopped() {
		t.Error("expected wasStopped() to be false for an unprompted exit")
	}
}

func TestSpawnChild_StopTerminatesLongRunningProcess(t *testing.T) {
	c, err := spawnChild("sh", []string{"-c", "trap '' TERM; sleep 30"}, zap.NewNop())
	if err != nil {
		t.Fatalf("spawnChild() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = c.stop(ctx, 200*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatal("stop() did not escalate to a forced kill in time")
	}

	if !c.wasStopped() {
		t.Error("expected wasStopped() to be true after stop()")
	}
}

func TestSpawnChild_PID(t *testing.T) {
	c, err := spawnChild("sh", []string{"-c", "exit 0"}, zap.NewNop())
	if err != nil {
		t.Fatalf("spawnChild() error = %v", err)
	}
	<-c.done

	if c.pid() == 0 {
		t.Error("expected a non-zero pid for a started process")
	}
}
