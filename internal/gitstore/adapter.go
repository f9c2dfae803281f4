package gitstore

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/shurlinet/radnode/internal/nodeid"
)

// bundlePath is the tree entry name under which a signed-refs commit
// stores its encoded payload.
const bundlePath = "bundle"

// IdentityRef is the reserved branch carrying the identity document
// history (spec glossary: "Identity document").
const IdentityRef = "refs/rad/id"

// IdentityBlobPath is the reserved tree path, at the tip of IdentityRef,
// holding the identity document blob.
const IdentityBlobPath = "identity"

// Adapter is the storage boundary C7 and C9 consume: one Adapter
// wraps a single on-disk repository holding every delegate's signed refs
// and the project's shared object store. Editing identity documents and
// raw object transfer (packfile fetch/push) are out of scope; Adapter
// only exposes a narrow read/write/query surface.
type Adapter struct {
	repo *git.Repository

	mu             sync.Mutex
	mergeBaseCache map[MergeBaseKey]Oid
	noMergeBase    map[MergeBaseKey]struct{}
}

// OpenAdapter wraps an already-opened repository.
func OpenAdapter(repo *git.Repository) *Adapter {
	return &Adapter{
		repo:           repo,
		mergeBaseCache: make(map[MergeBaseKey]Oid),
		noMergeBase:    make(map[MergeBaseKey]struct{}),
	}
}

// Repository exposes the underlying go-git repository for components
// that must speak the pack protocol directly (the worker pool's Git
// stream exchange lives outside this package's scope).
func (a *Adapter) Repository() *git.Repository { return a.repo }

// Head resolves refname's current object id.
func (a *Adapter) Head(refname string) (Oid, error) {
	ref, err := a.repo.Reference(plumbing.ReferenceName(refname), true)
	if err != nil {
		return Oid{}, fmt.Errorf("%w: %s", ErrRefNotFound, refname)
	}
	return FromPlumbing(ref.Hash()), nil
}

// MergeBase satisfies canonical.MergeBaser, caching results under a
// commutative key since merge_base(a,b) == merge_base(b,a).
func (a *Adapter) MergeBase(x, y Oid) (Oid, bool, error) {
	key := NewMergeBaseKey(x, y)

	a.mu.Lock()
	if cached, ok := a.mergeBaseCache[key]; ok {
		a.mu.Unlock()
		return cached, true, nil
	}
	if _, ok := a.noMergeBase[key]; ok {
		a.mu.Unlock()
		return Oid{}, false, nil
	}
	a.mu.Unlock()

	cx, err := a.repo.CommitObject(x.Plumbing())
	if err != nil {
		return Oid{}, false, fmt.Errorf("gitstore: merge_base: %w", err)
	}
	cy, err := a.repo.CommitObject(y.Plumbing())
	if err != nil {
		return Oid{}, false, fmt.Errorf("gitstore: merge_base: %w", err)
	}
	bases, err := cx.MergeBase(cy)
	if err != nil {
		return Oid{}, false, fmt.Errorf("gitstore: merge_base: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(bases) == 0 {
		a.noMergeBase[key] = struct{}{}
		return Oid{}, false, nil
	}
	// Criss-cross merges can yield more than one best common ancestor;
	// pick the lowest Oid for a deterministic, cacheable result.
	best := FromPlumbing(bases[0].Hash)
	for _, b := range bases[1:] {
		if o := FromPlumbing(b.Hash); o.Less(best) {
			best = o
		}
	}
	a.mergeBaseCache[key] = best
	return best, true, nil
}

// GraphAheadBehind counts commits reachable from x but not y, and vice
// versa, relative to their merge base.
func (a *Adapter) GraphAheadBehind(x, y Oid) (ahead, behind int, err error) {
	base, found, err := a.MergeBase(x, y)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, ErrNoMergeBase
	}
	ahead, err = a.countSince(x, base)
	if err != nil {
		return 0, 0, err
	}
	behind, err = a.countSince(y, base)
	if err != nil {
		return 0, 0, err
	}
	return ahead, behind, nil
}

func (a *Adapter) countSince(tip, base Oid) (int, error) {
	if tip == base {
		return 0, nil
	}
	c, err := a.repo.CommitObject(tip.Plumbing())
	if err != nil {
		return 0, fmt.Errorf("gitstore: graph_ahead_behind: %w", err)
	}
	iter := object.NewCommitIterBSF(c, nil, nil)
	defer iter.Close()
	n := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if FromPlumbing(c.Hash) == base {
			return storer.ErrStop
		}
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("gitstore: graph_ahead_behind: %w", err)
	}
	return n, nil
}

// resolveObject classifies oid as a commit or tag, or reports it missing.
func (a *Adapter) resolveObject(oid Oid) (Object, bool) {
	if _, err := a.repo.CommitObject(oid.Plumbing()); err == nil {
		return CommitObject(oid), true
	}
	if _, err := a.repo.TagObject(oid.Plumbing()); err == nil {
		return TagObject(oid), true
	}
	return Object{}, false
}

// namespacedRef is the display form reported in FoundObjects.MissingRefs:
// the refname as it would appear mirrored under the peer's namespace.
func namespacedRef(id nodeid.NodeId, refname string) string {
	return "refs/remotes/" + id.String() + "/" + strings.TrimPrefix(refname, "refs/")
}

// FindObjects implements canonical.Finder: for each allowed
// NodeId, look up refname in that peer's signed-refs bundle and classify
// the referenced object.
func (a *Adapter) FindObjects(refname string, allow []nodeid.NodeId) (FoundObjects, error) {
	out := FoundObjects{
		Objects:        make(map[nodeid.NodeId]Object),
		MissingObjects: make(map[nodeid.NodeId]Oid),
	}
	for _, id := range allow {
		bundle, ok, err := a.readBundle(id)
		if err != nil {
			return FoundObjects{}, fmt.Errorf("gitstore: find_objects: %w", err)
		}
		if !ok {
			out.MissingRefs = append(out.MissingRefs, namespacedRef(id, refname))
			continue
		}
		oid, ok := bundle.Refs[refname]
		if !ok {
			out.MissingRefs = append(out.MissingRefs, namespacedRef(id, refname))
			continue
		}
		obj, ok := a.resolveObject(oid)
		if !ok {
			out.MissingObjects[id] = oid
			continue
		}
		out.Objects[id] = obj
	}
	return out, nil
}

// SetCanonicalRef implements canonical.CanonicalSetter: forces a
// top-level ref to point at obj. Idempotent: a no-op if the ref already
// matches. go-git's filesystem storer does not expose custom reflog
// messages, so reason is recorded via the caller's structured log instead
// of a real git reflog entry.
func (a *Adapter) SetCanonicalRef(refname string, obj Object, reason string) error {
	current, err := a.repo.Reference(plumbing.ReferenceName(refname), true)
	if err == nil && FromPlumbing(current.Hash()) == obj.Oid {
		return nil
	}
	ref := plumbing.NewHashReference(plumbing.ReferenceName(refname), obj.Oid.Plumbing())
	if err := a.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("gitstore: set_canonical_ref(%s, %s): %w", refname, reason, err)
	}
	return nil
}

// readBundle loads and verifies the signed-refs bundle at the tip of
// id's reserved branch. ok is false when the branch does not exist yet.
func (a *Adapter) readBundle(id nodeid.NodeId) (SignedRefs, bool, error) {
	ref, err := a.repo.Reference(plumbing.ReferenceName(SignedRefsBranch(id)), true)
	if err != nil {
		return SignedRefs{}, false, nil
	}
	raw, err := a.readBundleBlob(ref.Hash())
	if err != nil {
		return SignedRefs{}, false, fmt.Errorf("%w: %v", ErrPartialBundle, err)
	}
	bundle, err := DecodeSignedRefs(id, raw)
	if err != nil {
		return SignedRefs{}, false, err
	}
	return bundle, true, nil
}

func (a *Adapter) readBundleBlob(commitHash plumbing.Hash) ([]byte, error) {
	commit, err := a.repo.CommitObject(commitHash)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	f, err := tree.File(bundlePath)
	if err != nil {
		return nil, err
	}
	rc, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// maxSeqInHistory walks the signed-refs branch's commit parent chain and
// returns the highest sequence number any commit in it ever recorded.
// A tip whose own Seq is lower than this indicates the branch was reset
// to an earlier commit (restored backup, clock rollback).
func (a *Adapter) maxSeqInHistory(id nodeid.NodeId, tip plumbing.Hash) (uint64, error) {
	commit, err := a.repo.CommitObject(tip)
	if err != nil {
		return 0, err
	}
	iter := object.NewCommitPreorderIter(commit, nil, nil)
	defer iter.Close()
	var max uint64
	err = iter.ForEach(func(c *object.Commit) error {
		raw, err := a.readBundleBlob(c.Hash)
		if err != nil {
			return nil // tolerate unrelated history sharing the branch name
		}
		bundle, err := DecodeSignedRefs(id, raw)
		if err != nil {
			return nil
		}
		if bundle.Seq > max {
			max = bundle.Seq
		}
		return nil
	})
	return max, err
}

// SignRefs implements sign_refs(signer): atomically replaces
// signer's bundle with one for refs at a sequence strictly greater than
// any previously observed, refusing (ErrForkedHistory) if the branch tip
// was rolled back to an earlier sequence than history contains.
func (a *Adapter) SignRefs(signer nodeid.Signer, refs map[string]Oid) error {
	id := signer.NodeId()
	branch := SignedRefsBranch(id)
	ref, err := a.repo.Reference(plumbing.ReferenceName(branch), true)

	var parents []plumbing.Hash
	var seq uint64
	if err == nil {
		parents = []plumbing.Hash{ref.Hash()}
		tipBundle, _, derr := a.readBundle(id)
		if derr != nil {
			return fmt.Errorf("gitstore: sign_refs: %w", derr)
		}
		maxSeq, herr := a.maxSeqInHistory(id, ref.Hash())
		if herr != nil {
			return fmt.Errorf("gitstore: sign_refs: %w", herr)
		}
		if tipBundle.Seq < maxSeq {
			return ErrForkedHistory
		}
		seq = tipBundle.Seq + 1
	}

	bundle := SignRefsPayload(signer, refs, seq)
	payload := EncodeSignedRefs(bundle)

	blobHash, err := a.writeBlob(payload)
	if err != nil {
		return fmt.Errorf("gitstore: sign_refs: %w", err)
	}
	treeHash, err := a.writeTree(bundlePath, blobHash)
	if err != nil {
		return fmt.Errorf("gitstore: sign_refs: %w", err)
	}
	commitHash, err := a.writeCommit(treeHash, parents, fmt.Sprintf("sign refs seq=%d", seq), id)
	if err != nil {
		return fmt.Errorf("gitstore: sign_refs: %w", err)
	}
	if err := a.repo.Storer.SetReference(plumbing.NewHashReference(plumbing.ReferenceName(branch), commitHash)); err != nil {
		return fmt.Errorf("gitstore: sign_refs: %w", err)
	}
	return nil
}

func (a *Adapter) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := a.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return a.repo.Storer.SetEncodedObject(obj)
}

func (a *Adapter) writeTree(entryName string, blobHash plumbing.Hash) (plumbing.Hash, error) {
	tree := &object.Tree{Entries: []object.TreeEntry{
		{Name: entryName, Mode: filemode.Regular, Hash: blobHash},
	}}
	obj := a.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return a.repo.Storer.SetEncodedObject(obj)
}

func (a *Adapter) writeCommit(treeHash plumbing.Hash, parents []plumbing.Hash, message string, id nodeid.NodeId) (plumbing.Hash, error) {
	sig := object.Signature{Name: id.String(), Email: id.String() + "@radnode", When: time.Now()}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	obj := a.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return a.repo.Storer.SetEncodedObject(obj)
}

// RemoteEntry is one row of remotes(rid): a peer and its current
// signed-refs bundle.
type RemoteEntry struct {
	NodeId nodeid.NodeId
	Refs   SignedRefs
}

// Remotes implements remotes(rid): every peer with a signed-refs branch
// in this repository, sorted by NodeId for deterministic iteration.
func (a *Adapter) Remotes() ([]RemoteEntry, error) {
	const prefix = "refs/rad/sigrefs/"
	refs, err := a.repo.References()
	if err != nil {
		return nil, fmt.Errorf("gitstore: remotes: %w", err)
	}
	defer refs.Close()

	var out []RemoteEntry
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		id, err := nodeid.ParseHex(strings.TrimPrefix(name, prefix))
		if err != nil {
			return nil // not one of ours; ignore foreign refs sharing the namespace
		}
		bundle, ok, err := a.readBundle(id)
		if err != nil || !ok {
			return err
		}
		out = append(out, RemoteEntry{NodeId: id, Refs: bundle})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gitstore: remotes: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeId.Less(out[j].NodeId) })
	return out, nil
}

// IdentityDoc implements identity_doc(rid): decodes the document blob at
// the tip of IdentityRef. Document *editing* (delegate-set/threshold
// changes under quorum) is out of scope; this is read-only.
func (a *Adapter) IdentityDoc() (IdentityDocument, error) {
	ref, err := a.repo.Reference(plumbing.ReferenceName(IdentityRef), true)
	if err != nil {
		return IdentityDocument{}, fmt.Errorf("%w: %s", ErrRefNotFound, IdentityRef)
	}
	commit, err := a.repo.CommitObject(ref.Hash())
	if err != nil {
		return IdentityDocument{}, fmt.Errorf("gitstore: identity_doc: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return IdentityDocument{}, fmt.Errorf("gitstore: identity_doc: %w", err)
	}
	f, err := tree.File(IdentityBlobPath)
	if err != nil {
		return IdentityDocument{}, fmt.Errorf("gitstore: identity_doc: %w", err)
	}
	rc, err := f.Reader()
	if err != nil {
		return IdentityDocument{}, fmt.Errorf("gitstore: identity_doc: %w", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return IdentityDocument{}, fmt.Errorf("gitstore: identity_doc: %w", err)
	}
	return DecodeIdentityDocument(raw)
}
