package announce

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shurlinet/radnode/internal/nodeid"
)

func TestRunStopsOnOutcome(t *testing.T) {
	n := ids(5)
	local := nodeid.NodeId{}
	a, err := New(local, Reach(2), nil, nil, n)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var attempts int32
	dial := func(ctx context.Context, node nodeid.NodeId) (time.Duration, error) {
		atomic.AddInt32(&attempts, 1)
		return time.Millisecond, nil
	}

	outcome, err := Run(context.Background(), a, dial)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := outcome.(MinReplicationFactor); !ok {
		t.Fatalf("got %#v, want MinReplicationFactor", outcome)
	}
	if got := atomic.LoadInt32(&attempts); got < 2 {
		t.Errorf("expected at least 2 dial attempts, got %d", got)
	}
}

func TestRunExhaustsBacklogWithoutSuccess(t *testing.T) {
	n := ids(3)
	local := nodeid.NodeId{}
	a, err := New(local, Reach(10), nil, nil, n)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dial := func(ctx context.Context, node nodeid.NodeId) (time.Duration, error) {
		return time.Millisecond, nil
	}

	_, err = Run(context.Background(), a, dial)
	if err != ErrNoNodes {
		t.Fatalf("got %v, want ErrNoNodes", err)
	}
}

func TestRunSkipsFailedDials(t *testing.T) {
	n := ids(2)
	local := nodeid.NodeId{}
	a, err := New(local, Reach(1), nil, nil, n)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	failing := n[0]
	dial := func(ctx context.Context, node nodeid.NodeId) (time.Duration, error) {
		if node == failing {
			return 0, context.DeadlineExceeded
		}
		return time.Millisecond, nil
	}

	outcome, err := Run(context.Background(), a, dial)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := outcome.(MinReplicationFactor); !ok {
		t.Fatalf("got %#v, want MinReplicationFactor", outcome)
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	n := ids(4)
	local := nodeid.NodeId{}
	a, err := New(local, Reach(10), nil, nil, n)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	dial := func(ctx context.Context, node nodeid.NodeId) (time.Duration, error) {
		<-block
		<-ctx.Done()
		return 0, ctx.Err()
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
		close(block)
	}()

	_, err = Run(ctx, a, dial)
	if err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
