// Package announce implements the announcer (C10): a "publish this repo
// to peers" workflow that tracks which nodes a repository has been
// synced with against a numeric replication target.
package announce

import (
	"errors"
	"time"

	"github.com/shurlinet/radnode/internal/nodeid"
)

var (
	// ErrNoSeeds is returned by New when both the synced and unsynced sets
	// are empty: there is nothing to announce to.
	ErrNoSeeds = errors.New("announce: no seeds to announce to")

	// ErrAlreadySynced is returned by New when the initial sync state
	// already satisfies the replication target.
	ErrAlreadySynced = errors.New("announce: already synced")

	// ErrNoNodes is returned by CanContinue once the unsynced backlog is
	// empty.
	ErrNoNodes = errors.New("announce: no nodes left to sync")
)

// ReplicationKind distinguishes the two shapes a ReplicationFactor can
// take.
type ReplicationKind uint8

const (
	MustReach ReplicationKind = iota
	ReplicationRange
)

// ReplicationFactor is either "must reach N" (Min set, Max unused) or a
// range [Min,Max].
type ReplicationFactor struct {
	Kind     ReplicationKind
	Min, Max int
}

// Reach builds a "must reach N" factor.
func Reach(n int) ReplicationFactor { return ReplicationFactor{Kind: MustReach, Min: n} }

// Range builds a [min,max] factor.
func Range(min, max int) ReplicationFactor {
	return ReplicationFactor{Kind: ReplicationRange, Min: min, Max: max}
}

// Outcome is one of the announcer's three success shapes.
type Outcome interface{ isOutcome() }

// PreferredNodes reports that every preferred seed is synced, regardless
// of the replication factor.
type PreferredNodes struct{ Preferred, TotalSynced int }

// MinReplicationFactor reports that at least the factor's minimum is
// synced.
type MinReplicationFactor struct{ Preferred, Synced int }

// MaxReplicationFactor reports that the factor's maximum was reached;
// the caller should stop announcing.
type MaxReplicationFactor struct{ Preferred, Synced int }

func (PreferredNodes) isOutcome()       {}
func (MinReplicationFactor) isOutcome() {}
func (MaxReplicationFactor) isOutcome() {}

// Termination is the result of checking a deadline: either the target was
// already met, or it wasn't and the backlog is reported.
type Termination interface{ isTermination() }

// Success wraps the outcome that was already satisfied.
type Success struct{ Outcome Outcome }

// TimedOut reports the nodes synced and the nodes still outstanding when
// a deadline expired without the target being met.
type TimedOut struct{ Synced, Remaining []nodeid.NodeId }

func (Success) isTermination()  {}
func (TimedOut) isTermination() {}

// Announcer tracks progress of one repository's announcement against a
// ReplicationFactor. It is not safe for concurrent use; Run
// (run.go) is the concurrency-aware driver built on top of it.
type Announcer struct {
	local     nodeid.NodeId
	factor    ReplicationFactor
	preferred map[nodeid.NodeId]struct{}
	synced    map[nodeid.NodeId]time.Duration
	toSync    map[nodeid.NodeId]struct{}
}

// New constructs an Announcer. local is removed from every input set.
// It refuses to start (ErrNoSeeds) if the union of synced and unsynced is
// empty, or (ErrAlreadySynced) if the initial synced set already
// satisfies factor or preferred.
func New(local nodeid.NodeId, factor ReplicationFactor, preferred, synced, unsynced []nodeid.NodeId) (*Announcer, error) {
	a := &Announcer{
		local:     local,
		factor:    factor,
		preferred: toSet(preferred, local),
		synced:    make(map[nodeid.NodeId]time.Duration),
		toSync:    make(map[nodeid.NodeId]struct{}),
	}
	for n := range toSet(synced, local) {
		a.synced[n] = 0
	}
	for n := range toSet(unsynced, local) {
		if _, already := a.synced[n]; already {
			continue
		}
		a.toSync[n] = struct{}{}
	}

	if len(a.synced) == 0 && len(a.toSync) == 0 {
		return nil, ErrNoSeeds
	}
	if a.checkSuccess() != nil {
		return nil, ErrAlreadySynced
	}
	return a, nil
}

func toSet(nodes []nodeid.NodeId, exclude nodeid.NodeId) map[nodeid.NodeId]struct{} {
	set := make(map[nodeid.NodeId]struct{}, len(nodes))
	for _, n := range nodes {
		if n == exclude {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// SyncedWith records that node has synced in duration d, then checks for
// success. It returns the achieved Outcome, or nil if the target isn't
// met yet.
func (a *Announcer) SyncedWith(node nodeid.NodeId, d time.Duration) Outcome {
	a.synced[node] = d
	delete(a.toSync, node)
	return a.checkSuccess()
}

// CanContinue reports ErrNoNodes once the unsynced backlog is empty.
func (a *Announcer) CanContinue() error {
	if len(a.toSync) == 0 {
		return ErrNoNodes
	}
	return nil
}

// TimedOut reports Success if the target is already met, else TimedOut
// with the current synced/remaining node lists.
func (a *Announcer) TimedOut() Termination {
	if outcome := a.checkSuccess(); outcome != nil {
		return Success{Outcome: outcome}
	}
	return TimedOut{Synced: a.syncedList(), Remaining: a.toSyncList()}
}

// Pending returns the current unsynced backlog, in unspecified order.
func (a *Announcer) Pending() []nodeid.NodeId { return a.toSyncList() }

func (a *Announcer) checkSuccess() Outcome {
	if len(a.preferred) > 0 && a.allPreferredSynced() {
		return PreferredNodes{Preferred: len(a.preferred), TotalSynced: len(a.synced)}
	}
	switch a.factor.Kind {
	case MustReach:
		if len(a.synced) >= a.factor.Min {
			return MinReplicationFactor{Preferred: len(a.preferred), Synced: len(a.synced)}
		}
	case ReplicationRange:
		if len(a.synced) >= a.factor.Max {
			return MaxReplicationFactor{Preferred: len(a.preferred), Synced: len(a.synced)}
		}
		if len(a.synced) >= a.factor.Min {
			return MinReplicationFactor{Preferred: len(a.preferred), Synced: len(a.synced)}
		}
	}
	return nil
}

func (a *Announcer) allPreferredSynced() bool {
	for p := range a.preferred {
		if _, ok := a.synced[p]; !ok {
			return false
		}
	}
	return true
}

func (a *Announcer) syncedList() []nodeid.NodeId {
	out := make([]nodeid.NodeId, 0, len(a.synced))
	for n := range a.synced {
		out = append(out, n)
	}
	return out
}

func (a *Announcer) toSyncList() []nodeid.NodeId {
	out := make([]nodeid.NodeId, 0, len(a.toSync))
	for n := range a.toSync {
		out = append(out, n)
	}
	return out
}
