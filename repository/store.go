// Package repository implements the Repository Store & Observers of spec
// §3/§4.3/§5: an append-and-query store keyed by (businessActivity, name)
// where name ends in "-repository", serialized by its own lock so reads
// and writes never tear.
package repository

import (
	"sync"

	"github.com/arolang/runtime"
)

// store is one named repository's entity sequence, guarded by its own
// mutex (spec §5: "each repository instance is serialised by its own
// lock; reads and writes never tear").
type store struct {
	mu       sync.Mutex
	entities []aro.Value
}

var _ aro.Repository = (*store)(nil)

func (s *store) Append(entity aro.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = append(s.entities, entity.Clone())
	return nil
}

func (s *store) All() []aro.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]aro.Value, len(s.entities))
	copy(out, s.entities)
	return out
}

func (s *store) Where(predicate func(aro.Value) bool) []aro.Value {
	s.mu.Lock()
	snapshot := make([]aro.Value, len(s.entities))
	copy(snapshot, s.entities)
	s.mu.Unlock()

	var out []aro.Value
	for _, e := range snapshot {
		if predicate(e) {
			out = append(out, e)
		}
	}
	if out == nil {
		out = []aro.Value{}
	}
	return out
}

func (s *store) DeleteWhere(predicate func(aro.Value) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entities[:0]
	removed := 0
	for _, e := range s.entities {
		if predicate(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entities = kept
	return removed, nil
}

func (s *store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities)
}

// key identifies a repository by (businessActivity, name) per spec §3.
type key struct {
	businessActivity string
	name             string
}

// Manager implements aro.RepositoryManager: it creates a repository on
// first reference and hands back the same instance on every subsequent
// call for the same key, publishing RepositoryChanged events through the
// bound event bus on every mutation (the mutation-event emission itself
// lives in aro's actions_export.go / actions_request.go, which call
// Repository methods directly — Manager only owns identity and storage).
type Manager struct {
	mu      sync.Mutex
	repos   map[key]*store
	durable map[key]aro.Repository
	// Backend, when set, is consulted for every new repository name so a
	// feature set can opt a specific repository into durable storage
	// (for example a PostgresBackend) instead of the in-memory default. It
	// returns (nil, false) for names that should stay in-memory.
	Backend func(businessActivity, name string) (aro.Repository, bool)
}

func NewManager() *Manager {
	return &Manager{repos: make(map[key]*store), durable: make(map[key]aro.Repository)}
}

var _ aro.RepositoryManager = (*Manager)(nil)

func (m *Manager) Repository(businessActivity, name string) aro.Repository {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{businessActivity: businessActivity, name: name}

	if existing, ok := m.durable[k]; ok {
		return existing
	}
	if m.Backend != nil {
		if backed, ok := m.Backend(businessActivity, name); ok {
			m.durable[k] = backed
			return backed
		}
	}
	if existing, ok := m.repos[k]; ok {
		return existing
	}
	s := &store{}
	m.repos[k] = s
	return s
}
