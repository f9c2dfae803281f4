package workerpool

import (
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/packfile"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/shurlinet/radnode/internal/codec"
	"github.com/shurlinet/radnode/internal/gitstore"
)

// wantHave is one ref's negotiation state: what the requester wants and
// what it already has for that ref (possibly nothing, on a first fetch).
type wantHave struct {
	Refname string
	Want    gitstore.Oid
	Have    gitstore.Oid
	HasHave bool
}

// fetchRequest is the want/have negotiation an Initiator sends before
// the Responder replies with a single packfile bounding all of refs_at
// in one round trip.
type fetchRequest struct {
	Refs []wantHave
}

const maxFetchRefs = 1 << 12

func encodeFetchRequest(r fetchRequest) []byte {
	w := codec.NewWriter()
	_ = codec.WriteVector(w, r.Refs, func(w *codec.Writer, wh wantHave) {
		_ = w.WriteString(wh.Refname)
		gitstore.WriteOid(w, wh.Want)
		w.WriteUint8(boolByte(wh.HasHave))
		gitstore.WriteOid(w, wh.Have)
	})
	return w.Bytes()
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func decodeFetchRequest(b []byte) (fetchRequest, error) {
	r := codec.NewReader(b)
	refs, err := codec.BoundedVector(r, maxFetchRefs, func(r *codec.Reader) (wantHave, error) {
		refname, err := r.ReadString()
		if err != nil {
			return wantHave{}, err
		}
		want, err := gitstore.ReadOid(r)
		if err != nil {
			return wantHave{}, err
		}
		hasHave, err := r.ReadUint8()
		if err != nil {
			return wantHave{}, err
		}
		have, err := gitstore.ReadOid(r)
		if err != nil {
			return wantHave{}, err
		}
		return wantHave{Refname: refname, Want: want, Have: have, HasHave: hasHave != 0}, nil
	})
	if err != nil {
		return fetchRequest{}, err
	}
	return fetchRequest{Refs: refs}, nil
}

// channelReader/channelWriter adapt a worker's Channels into an
// io.ReadWriter so the pack protocol code can be written against
// ordinary streaming interfaces rather than channel operations directly.
type channelReader struct {
	ch  <-chan ChannelEvent
	buf []byte
}

func (r *channelReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		ev, ok := <-r.ch
		if !ok {
			return 0, io.EOF
		}
		switch ev.Kind {
		case EventData:
			r.buf = ev.Data
		case EventEof, EventClose:
			return 0, io.EOF
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

type channelWriter struct {
	ch chan<- ChannelEvent
}

func (w *channelWriter) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	w.ch <- ChannelEvent{Kind: EventData, Data: cp}
	return len(p), nil
}

// reachableObjects collects every commit, tree, and blob hash reachable
// from tip into seen/hashes, stopping commit traversal at any hash
// already present in haves (the remote's last-known refs, a "have"
// boundary that bounds the packfile to only what changed).
func reachableObjects(repo *git.Repository, tip plumbing.Hash, haves []plumbing.Hash, seen map[plumbing.Hash]bool, hashes *[]plumbing.Hash) error {
	commit, err := repo.CommitObject(tip)
	if err != nil {
		return fmt.Errorf("workerpool: %w", err)
	}

	iter := object.NewCommitPreorderIter(commit, nil, haves)
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		if seen[c.Hash] {
			return nil
		}
		seen[c.Hash] = true
		*hashes = append(*hashes, c.Hash)

		tree, err := c.Tree()
		if err != nil {
			return err
		}
		if !seen[tree.Hash] {
			seen[tree.Hash] = true
			*hashes = append(*hashes, tree.Hash)
		}
		walker := object.NewTreeWalker(tree, true, nil)
		defer walker.Close()
		for {
			_, entry, err := walker.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if !seen[entry.Hash] {
				seen[entry.Hash] = true
				*hashes = append(*hashes, entry.Hash)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("workerpool: walk history: %w", err)
	}
	return nil
}

// servePack encodes a packfile containing every object reachable from
// any want in req that the requester (per its claimed haves) doesn't
// already have, and writes it to out in one round trip.
func servePack(repo *git.Repository, req fetchRequest, out io.Writer) error {
	seen := make(map[plumbing.Hash]bool)
	var hashes []plumbing.Hash
	for _, wh := range req.Refs {
		var haves []plumbing.Hash
		if wh.HasHave {
			haves = []plumbing.Hash{wh.Have.Plumbing()}
		}
		if err := reachableObjects(repo, wh.Want.Plumbing(), haves, seen, &hashes); err != nil {
			return err
		}
	}
	if len(hashes) == 0 {
		return nil
	}
	enc := packfile.NewEncoder(out, repo.Storer, false)
	if _, err := enc.Encode(hashes, 10); err != nil {
		return fmt.Errorf("workerpool: encode pack: %w", err)
	}
	return nil
}

// receivePack decodes an inbound packfile from in directly into repo's
// object store.
func receivePack(repo *git.Repository, in io.Reader) error {
	scanner := packfile.NewScanner(in)
	d, err := packfile.NewDecoder(scanner, repo.Storer)
	if err != nil {
		return fmt.Errorf("workerpool: new decoder: %w", err)
	}
	if _, err := d.Decode(); err != nil {
		return fmt.Errorf("workerpool: decode pack: %w", err)
	}
	return nil
}

// adapterRepo exposes just enough of gitstore.Adapter for the pack
// protocol helpers, kept narrow so gitproto.go doesn't need to know
// about Adapter's signed-refs bookkeeping.
type adapterRepo interface {
	Repository() *git.Repository
}

// receivePackOnChannel drains ch for Data events and decodes the
// concatenated bytes as one packfile into adapter's repository, stopping
// at the first Eof/Close.
func receivePackOnChannel(adapter adapterRepo, ch <-chan ChannelEvent) error {
	r := &channelReader{ch: ch}
	return receivePack(adapter.Repository(), r)
}

// servePackFor encodes and streams the packfile satisfying req onto w.
func servePackFor(adapter adapterRepo, req fetchRequest, w io.Writer) error {
	return servePack(adapter.Repository(), req, w)
}
