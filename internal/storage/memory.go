// Package storage contains persistence abstractions and in-memory
// implementations for DID registry records used by the service.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RegistryAccord/registryaccord-did-go/internal/model"
)

// Memory is a concurrency-safe in-memory implementation of Registry.
// Useful for tests, demos, or as a default ephemeral backend. The
// check-and-insert in Register holds the write lock for the whole section,
// so registration is atomic under real parallelism.
type Memory struct {
	mu   sync.RWMutex
	data map[string]Record
	seq  map[string]int // insertion order tiebreaker for equal timestamps
	next int
	now  func() string
}

// NewMemory returns an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]Record),
		seq:  make(map[string]int),
		now:  model.Now,
	}
}

// Register stores a new record keyed by did. Fails with ErrAlreadyRegistered
// when the DID is already present.
func (m *Memory) Register(ctx context.Context, did string, doc model.DIDDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[did]; ok {
		return fmt.Errorf("register %s: %w", did, ErrAlreadyRegistered)
	}
	now := m.now()
	stored := doc.Clone()
	stored.ID = did // id is immutable and always equals the registry key
	stored.Created = now
	stored.Updated = now
	m.data[did] = Record{
		DID:       did,
		Document:  stored,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.seq[did] = m.next
	m.next++
	return nil
}

// Resolve returns the resolution result for did. Never returns an error for
// this backend; negative outcomes are encoded in the result.
func (m *Memory) Resolve(ctx context.Context, did string) (*model.DIDResolutionResult, error) {
	m.mu.RLock()
	rec, ok := m.data[did]
	m.mu.RUnlock()
	if !ok {
		return notFoundResult(did), nil
	}
	return resolutionFromRecord(rec), nil
}

// Update shallow-merges partial over the stored document and bumps updated.
func (m *Memory) Update(ctx context.Context, did string, partial model.DIDDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[did]
	if !ok {
		return fmt.Errorf("update %s: %w", did, ErrNotFound)
	}
	if rec.Deactivated {
		return fmt.Errorf("update %s: %w", did, ErrDeactivated)
	}
	now := m.now()
	merged := rec.Document.Merge(partial)
	merged.ID = did // an update may not change the document id
	merged.Updated = now
	rec.Document = merged
	rec.UpdatedAt = now
	m.data[did] = rec
	return nil
}

// Deactivate flips the deactivated flag. A second call still succeeds and
// re-stamps updated.
func (m *Memory) Deactivate(ctx context.Context, did string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[did]
	if !ok {
		return fmt.Errorf("deactivate %s: %w", did, ErrNotFound)
	}
	rec.Deactivated = true
	rec.UpdatedAt = m.now()
	m.data[did] = rec
	return nil
}

// List returns active DIDs ordered by ascending creation time.
func (m *Memory) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dids := make([]string, 0, len(m.data))
	for did, rec := range m.data {
		if !rec.Deactivated {
			dids = append(dids, did)
		}
	}
	sort.Slice(dids, func(i, j int) bool {
		a, b := m.data[dids[i]], m.data[dids[j]]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return m.seq[dids[i]] < m.seq[dids[j]]
	})
	return dids, nil
}

// Reset drops all records. Test-only escape hatch on the concrete type;
// production code holds the Registry interface and cannot reach it.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]Record)
	m.seq = make(map[string]int)
	m.next = 0
}
