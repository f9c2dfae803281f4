package workerpool

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/time/rate"

	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
)

// commitOnto writes one commit with an empty tree directly into repo's
// storer and points refname at it, standing in for a real commit history
// without pulling in a worktree.
func commitOnto(t *testing.T, a *gitstore.Adapter, refname, message string) gitstore.Oid {
	t.Helper()
	repo := a.Repository()
	emptyTree := &object.Tree{}
	treeObj := repo.Storer.NewEncodedObject()
	if err := emptyTree.Encode(treeObj); err != nil {
		t.Fatalf("encode tree: %v", err)
	}
	treeHash, err := repo.Storer.SetEncodedObject(treeObj)
	if err != nil {
		t.Fatalf("store tree: %v", err)
	}

	sig := object.Signature{Name: "test"}
	commit := &object.Commit{Author: sig, Committer: sig, Message: message, TreeHash: treeHash}
	commitObj := repo.Storer.NewEncodedObject()
	if err := commit.Encode(commitObj); err != nil {
		t.Fatalf("encode commit: %v", err)
	}
	hash, err := repo.Storer.SetEncodedObject(commitObj)
	if err != nil {
		t.Fatalf("store commit: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.ReferenceName(refname), hash)); err != nil {
		t.Fatalf("set ref: %v", err)
	}
	return gitstore.FromPlumbing(hash)
}

// captureSink is a ResultSink test double recording every delivered
// TaskResult.
type captureSink struct {
	mu      sync.Mutex
	results []TaskResult
	notify  chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{notify: make(chan struct{}, 16)}
}

func (s *captureSink) Deliver(cmd any) {
	res, ok := cmd.(TaskResult)
	if !ok {
		return
	}
	s.mu.Lock()
	s.results = append(s.results, res)
	s.mu.Unlock()
	s.notify <- struct{}{}
}

func (s *captureSink) waitN(t *testing.T, n int) []TaskResult {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.notify:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for result %d/%d", i+1, n)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskResult, len(s.results))
	copy(out, s.results)
	return out
}

func TestPool_InitiatorResponderFetch(t *testing.T) {
	remoteStore := gitstore.NewStore(t.TempDir())
	localStore := gitstore.NewStore(t.TempDir())

	var rid gitstore.Oid
	rid[0] = 0x42

	remote, err := remoteStore.Init(rid)
	if err != nil {
		t.Fatalf("remoteStore.Init() error = %v", err)
	}
	want := commitOnto(t, remote, "refs/heads/main", "hello")

	local, err := localStore.Init(rid)
	if err != nil {
		t.Fatalf("localStore.Init() error = %v", err)
	}
	if _, err := local.Head("refs/heads/main"); err == nil {
		t.Fatal("local repo should start without refs/heads/main")
	}

	remoteSink := newCaptureSink()
	localSink := newCaptureSink()
	remotePool := New(remoteStore, remoteSink, 2, 4)
	localPool := New(localStore, localSink, 2, 4)
	defer remotePool.Shutdown()
	defer localPool.Shutdown()

	// initiator->responder and responder->initiator, each buffered so
	// Submit never blocks the test goroutine.
	toResponder := make(chan ChannelEvent, 8)
	toInitiator := make(chan ChannelEvent, 8)

	remoteNode, _ := nodeid.Parse(make([]byte, 32))
	localNode, _ := nodeid.Parse(make([]byte, 32))

	localPool.Submit(Task{
		Request: Initiator{
			Rid:    rid,
			Remote: remoteNode,
			RefsAt: map[string]gitstore.Oid{"refs/heads/main": want},
		},
		Stream:   1,
		Channels: Channels{Send: toResponder, Recv: toInitiator},
	})
	remotePool.Submit(Task{
		Request: Responder{Remote: localNode, Rid: rid},
		Stream:  1,
		Channels: Channels{Send: toInitiator, Recv: toResponder},
	})

	localResults := localSink.waitN(t, 1)
	remoteResults := remoteSink.waitN(t, 1)

	if localResults[0].Kind != ResultInitiator || localResults[0].Fetch.Err != nil {
		t.Fatalf("initiator result = %+v", localResults[0])
	}
	if got := localResults[0].Fetch.Updated["refs/heads/main"]; got != want {
		t.Fatalf("Fetch.Updated[main] = %v, want %v", got, want)
	}
	if remoteResults[0].Kind != ResultResponder || remoteResults[0].Err != nil {
		t.Fatalf("responder result = %+v", remoteResults[0])
	}

	got, err := local.Head("refs/heads/main")
	if err != nil {
		t.Fatalf("local.Head() after fetch error = %v", err)
	}
	if got != want {
		t.Fatalf("local.Head() = %v, want %v", got, want)
	}
}

func TestPool_ResponderEmitsProgress(t *testing.T) {
	remoteStore := gitstore.NewStore(t.TempDir())
	var rid gitstore.Oid
	rid[0] = 0x7

	remote, err := remoteStore.Init(rid)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	want := commitOnto(t, remote, "refs/heads/main", "c0")

	sink := newCaptureSink()
	pool := New(remoteStore, sink, 1, 1)
	defer pool.Shutdown()

	recv := make(chan ChannelEvent, 8)
	send := make(chan ChannelEvent, 8)
	req := fetchRequest{Refs: []wantHave{{Refname: "refs/heads/main", Want: want}}}
	recv <- ChannelEvent{Kind: EventData, Data: encodeFetchRequest(req)}

	var lines []string
	var mu sync.Mutex
	pool.Submit(Task{
		Request: Responder{
			Remote: nodeid.NodeId{},
			Rid:    rid,
			Emitter: func(line string) {
				mu.Lock()
				lines = append(lines, line)
				mu.Unlock()
			},
		},
		Stream:   2,
		Channels: Channels{Send: send, Recv: recv},
	})

	sink.waitN(t, 1)
	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 1 || lines[0] != fmt.Sprintf("served %d ref(s)", 1) {
		t.Fatalf("Emitter lines = %v", lines)
	}
}

// TestPool_RateLimiterThrottlesExecution checks that SetRateLimiter actually
// paces task execution rather than just being stored and ignored: three
// tasks against a burst-1 limiter refilling every 50ms must take at least
// two refill intervals to drain.
func TestPool_RateLimiterThrottlesExecution(t *testing.T) {
	store := gitstore.NewStore(t.TempDir())
	sink := newCaptureSink()
	pool := New(store, sink, 1, 4)
	defer pool.Shutdown()
	pool.SetRateLimiter(rate.NewLimiter(rate.Every(50*time.Millisecond), 1))

	submitClosedResponder := func() {
		recv := make(chan ChannelEvent)
		close(recv)
		pool.Submit(Task{
			Request:  Responder{Remote: nodeid.NodeId{}, Rid: gitstore.Oid{}},
			Stream:   1,
			Channels: Channels{Send: make(chan ChannelEvent, 1), Recv: recv},
		})
	}

	start := time.Now()
	submitClosedResponder()
	submitClosedResponder()
	submitClosedResponder()
	sink.waitN(t, 3)
	elapsed := time.Since(start)

	if elapsed < 80*time.Millisecond {
		t.Fatalf("elapsed = %v, want at least ~80ms with a 50ms-refill, burst-1 limiter armed", elapsed)
	}
}

// TestPool_NoRateLimiterRunsImmediately checks the nil-limiter default
// leaves the pool unthrottled.
func TestPool_NoRateLimiterRunsImmediately(t *testing.T) {
	store := gitstore.NewStore(t.TempDir())
	sink := newCaptureSink()
	pool := New(store, sink, 1, 4)
	defer pool.Shutdown()

	recv := make(chan ChannelEvent)
	close(recv)
	start := time.Now()
	pool.Submit(Task{
		Request:  Responder{Remote: nodeid.NodeId{}, Rid: gitstore.Oid{}},
		Stream:   1,
		Channels: Channels{Send: make(chan ChannelEvent, 1), Recv: recv},
	})
	sink.waitN(t, 1)
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("elapsed = %v, want well under 50ms with no limiter set", elapsed)
	}
}
