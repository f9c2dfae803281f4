package gitstore

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/go-git/go-git/v5"
)

// Store maps a RepoId to the Adapter wrapping its on-disk repository,
// opening repositories lazily on first use and caching the result.
// RepoId is gitstore.Oid: the hash of the project's root identity
// document.
type Store struct {
	root string

	mu       sync.Mutex
	adapters map[Oid]*Adapter
}

// NewStore roots repositories at dir/<rid hex>.
func NewStore(dir string) *Store {
	return &Store{root: dir, adapters: make(map[Oid]*Adapter)}
}

// Open returns the Adapter for rid, opening (but not creating) its
// repository on first use.
func (s *Store) Open(rid Oid) (*Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.adapters[rid]; ok {
		return a, nil
	}
	repo, err := git.PlainOpen(s.path(rid))
	if err != nil {
		return nil, fmt.Errorf("gitstore: open %s: %w", rid, err)
	}
	a := OpenAdapter(repo)
	s.adapters[rid] = a
	return a, nil
}

// Init creates a new bare repository for rid, for use when a node first
// learns of a repo it must replicate.
func (s *Store) Init(rid Oid) (*Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.adapters[rid]; ok {
		return a, nil
	}
	repo, err := git.PlainInit(s.path(rid), true)
	if err != nil {
		return nil, fmt.Errorf("gitstore: init %s: %w", rid, err)
	}
	a := OpenAdapter(repo)
	s.adapters[rid] = a
	return a, nil
}

func (s *Store) path(rid Oid) string {
	return filepath.Join(s.root, rid.String())
}
