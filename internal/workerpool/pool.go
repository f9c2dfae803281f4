package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/shurlinet/radnode/internal/gitstore"
)

// ResultSink receives completed TaskResults, decoupling the pool from how
// results reach the wire handler (normally a reactor.Controller).
type ResultSink interface {
	Deliver(cmd any)
}

// Pool is the bounded worker pool: a fixed number of goroutines
// drain a task queue, each outcome reported to sink as a TaskResult. The
// queue itself bounds how many fetches can be in flight; Submit blocks
// once it's full, which is the pool's half of flow control (the other
// half is the per-stream Channels capacity).
type Pool struct {
	store *gitstore.Store
	sink  ResultSink

	tasks   chan Task
	wg      sync.WaitGroup
	limiter atomic.Pointer[rate.Limiter]
}

// New starts size worker goroutines pulling from a queue of depth
// queueDepth.
func New(store *gitstore.Store, sink ResultSink, size, queueDepth int) *Pool {
	p := &Pool{store: store, sink: sink, tasks: make(chan Task, queueDepth)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// SetRateLimiter bounds how often a worker goroutine may start a new task,
// independent of how many workers are running. It is meant for operators
// throttling outbound fetch/push traffic against a slow disk or a bandwidth
// cap; a nil limiter (the default) leaves the pool unthrottled. Changing it
// is safe at any time, including while tasks are in flight.
func (p *Pool) SetRateLimiter(l *rate.Limiter) {
	p.limiter.Store(l)
}

func (p *Pool) run() {
	defer p.wg.Done()
	for t := range p.tasks {
		if l := p.limiter.Load(); l != nil {
			l.Wait(context.Background())
		}
		p.execute(t)
	}
}

// Submit enqueues a task; it blocks if the queue is full.
func (p *Pool) Submit(t Task) { p.tasks <- t }

// Shutdown stops accepting new tasks and waits for in-flight ones to
// drain.
func (p *Pool) Shutdown() {
	close(p.tasks)
	p.wg.Wait()
}

func (p *Pool) execute(t Task) {
	switch req := t.Request.(type) {
	case Initiator:
		p.executeInitiator(t, req)
	case Responder:
		p.executeResponder(t, req)
	default:
		slog.Error("workerpool: unknown request type", "type", fmt.Sprintf("%T", req))
	}
}

// executeInitiator drives an outbound fetch: send one want/have
// negotiation covering every ref in req.RefsAt, then decode the single
// packfile the remote's Responder sends back directly into the local
// repository.
func (p *Pool) executeInitiator(t Task, req Initiator) {
	adapter, err := p.store.Open(req.Rid)
	if err != nil {
		p.sink.Deliver(TaskResult{Remote: req.Remote, Stream: t.Stream, Kind: ResultInitiator, Rid: req.Rid, Fetch: FetchResult{Err: err}})
		return
	}

	fetchReq := fetchRequest{Refs: make([]wantHave, 0, len(req.RefsAt))}
	for refname, want := range req.RefsAt {
		wh := wantHave{Refname: refname, Want: want}
		if have, err := adapter.Head(refname); err == nil {
			wh.Have, wh.HasHave = have, true
		}
		fetchReq.Refs = append(fetchReq.Refs, wh)
	}
	t.Channels.Send <- ChannelEvent{Kind: EventData, Data: encodeFetchRequest(fetchReq)}
	close(t.Channels.Send)

	var fetch FetchResult
	if err := receivePackOnChannel(adapter, t.Channels.Recv); err != nil {
		fetch.Err = fmt.Errorf("workerpool: fetch: %w", err)
	} else {
		fetch.Updated = req.RefsAt
	}

	p.sink.Deliver(TaskResult{
		Remote: req.Remote,
		Stream: t.Stream,
		Kind:   ResultInitiator,
		Rid:    req.Rid,
		Fetch:  fetch,
	})
}

// executeResponder serves an inbound fetch: decode the requester's
// want/have negotiation, then stream back a bounding packfile.
func (p *Pool) executeResponder(t Task, req Responder) {
	reqBytes, err := readOneMessage(t.Channels.Recv)
	if err != nil {
		p.reportResponder(t, req, fmt.Errorf("workerpool: read request: %w", err))
		return
	}
	fetchReq, err := decodeFetchRequest(reqBytes)
	if err != nil {
		p.reportResponder(t, req, fmt.Errorf("workerpool: decode request: %w", err))
		return
	}

	adapter, err := p.store.Open(req.Rid)
	if err != nil {
		p.reportResponder(t, req, err)
		return
	}

	w := &channelWriter{ch: t.Channels.Send}
	err = servePackFor(adapter, fetchReq, w)
	close(t.Channels.Send)
	if req.Emitter != nil {
		if err != nil {
			req.Emitter(fmt.Sprintf("fetch of %d ref(s) failed: %v", len(fetchReq.Refs), err))
		} else {
			req.Emitter(fmt.Sprintf("served %d ref(s)", len(fetchReq.Refs)))
		}
	}
	p.reportResponder(t, req, err)
}

func (p *Pool) reportResponder(t Task, req Responder, err error) {
	p.sink.Deliver(TaskResult{Remote: req.Remote, Stream: t.Stream, Kind: ResultResponder, Err: err})
}

// readOneMessage pulls the next Data event off ch. A closed channel or an
// Eof/Close event in its place is reported as an error.
func readOneMessage(ch <-chan ChannelEvent) ([]byte, error) {
	ev, ok := <-ch
	if !ok {
		return nil, fmt.Errorf("workerpool: channel closed before a message arrived")
	}
	if ev.Kind != EventData {
		return nil, fmt.Errorf("workerpool: expected data, got control event")
	}
	return ev.Data, nil
}
