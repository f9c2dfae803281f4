package announce

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shurlinet/radnode/internal/nodeid"
)

// maxConcurrentAnnounceDials bounds simultaneous sync attempts the way
// pkg/p2pnet's PeerManager bounds simultaneous reconnection dials: a node
// publishing to a large seed list shouldn't open every connection at
// once.
const maxConcurrentAnnounceDials = 3

// Dialer attempts to sync the local repository with node and reports how
// long it took. A non-nil error leaves node in the announcer's backlog
// for a future attempt.
type Dialer func(ctx context.Context, node nodeid.NodeId) (time.Duration, error)

type dialResult struct {
	node nodeid.NodeId
	dur  time.Duration
	err  error
}

// Run fans out dial against every node currently in a's backlog, bounded
// by maxConcurrentAnnounceDials via errgroup.Group.SetLimit, and feeds
// each completion back into a.SyncedWith one at a time on the calling
// goroutine -- a is not safe for concurrent use, so only this loop ever
// mutates it, mirroring the single-owner discipline the reactor and
// worker pool already use elsewhere in this codebase. Run returns as
// soon as an Outcome is achieved, the context is done, or the backlog is
// exhausted without success (ErrNoNodes).
func Run(ctx context.Context, a *Announcer, dial Dialer) (Outcome, error) {
	pending := a.Pending()
	if len(pending) == 0 {
		return nil, ErrNoNodes
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentAnnounceDials)

	// Buffered so every dial can report its result without blocking on a
	// consumer, even while g.Go itself blocks queuing later nodes behind
	// the concurrency limit.
	results := make(chan dialResult, len(pending))
	go func() {
		for _, node := range pending {
			g.Go(func() error {
				dur, err := dial(gctx, node)
				results <- dialResult{node: node, dur: dur, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	for {
		select {
		case r, ok := <-results:
			if !ok {
				return nil, ErrNoNodes
			}
			if r.err != nil {
				continue
			}
			if outcome := a.SyncedWith(r.node, r.dur); outcome != nil {
				return outcome, nil
			}
			if err := a.CanContinue(); err != nil {
				return nil, err
			}
		case <-ctx.Done():
			_ = g.Wait()
			return nil, ctx.Err()
		}
	}
}
