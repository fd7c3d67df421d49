package entity

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Compile-time contract assertions.
var (
	_ Store  = (*MemoryStore)(nil)
	_ Writer = (*MemoryStore)(nil)
)

// MemoryStore is an in-process Store used for fixtures, local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[int64]*Entity
}

// NewMemoryStore returns a store holding copies of the given entities.
func NewMemoryStore(entities ...*Entity) *MemoryStore {
	s := &MemoryStore{entities: make(map[int64]*Entity, len(entities))}
	s.Put(entities...)
	return s
}

// Put inserts or replaces entities.
func (s *MemoryStore) Put(entities ...*Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		if e == nil {
			continue
		}
		s.entities[e.ID] = e.Clone()
	}
}

// Save stores entities like Put.
func (s *MemoryStore) Save(ctx context.Context, entities ...*Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Put(entities...)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id int64) (*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("load %d: %w", id, ErrNotFound)
	}
	return e.Clone(), nil
}

func (s *MemoryStore) LoadMultiple(ctx context.Context, ids []int64) ([]*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entities[id]; ok {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Query(ctx context.Context, q Query) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for id, e := range s.entities {
		if q.Accepts(e) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) LoadTree(ctx context.Context, vocabulary string) ([]*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var terms []*Entity
	for _, e := range s.entities {
		if e.Kind == KindTerm && e.Type == vocabulary {
			terms = append(terms, e.Clone())
		}
	}
	s.mu.RUnlock()
	return SortTree(terms), nil
}
