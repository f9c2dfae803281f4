package gitstore

import "errors"

// ErrRefNotFound is returned by Head when refname has no canonical entry.
var ErrRefNotFound = errors.New("gitstore: ref not found")

// ErrNoMergeBase is returned by GraphAheadBehind when two commits share no
// common ancestor; MergeBase reports that case as found=false instead.
var ErrNoMergeBase = errors.New("gitstore: no common ancestor")

// ErrPartialBundle guards sign_refs's atomicity invariant: readers must
// never observe a signed-refs commit whose payload fails to decode.
var ErrPartialBundle = errors.New("gitstore: signed refs bundle is corrupt")

// ErrForkedHistory is returned by SignRefs when the new bundle's sequence
// number does not exceed the previous one, which would indicate the
// signer's monotonic counter regressed (clock rollback, restored backup,
// or a compromised key reused out of order).
var ErrForkedHistory = errors.New("gitstore: signed refs sequence did not advance")
