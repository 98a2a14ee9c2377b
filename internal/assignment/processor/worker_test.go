package processor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type countingProcessor struct {
	calls atomic.Int32
}

func (c *countingProcessor) ProcessPending(ctx context.Context, batchSize int) (int, []error) {
	c.calls.Add(1)
	return 0, nil
}

func TestWorkerRunsUntilCancelled(t *testing.T) {
	proc := &countingProcessor{}
	worker := NewWorker(proc, 10*time.Millisecond, 5, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancellation")
	}

	assert.GreaterOrEqual(t, proc.calls.Load(), int32(2), "worker should sweep on start and on ticks")
}
