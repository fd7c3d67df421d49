package entity

import (
	"context"
	"errors"
	"sort"
)

// ErrNotFound is returned by Store.Load when no entity has the requested id.
var ErrNotFound = errors.New("entity not found")

// Condition restricts a query to entities whose field holds Value.
// References compare by target id.
type Condition struct {
	Field string
	Value string
}

// Query selects entity ids by kind, type and field conditions.
type Query struct {
	Kind       Kind
	Type       string
	Conditions []Condition

	// AccessCheck hides unpublished entities, matching what an anonymous
	// visitor of the host would be allowed to see.
	AccessCheck bool
}

// Store is the read-only contract the resolver and driver use to reach
// content owned by the host.
type Store interface {
	// Load returns the entity with id, or ErrNotFound.
	Load(ctx context.Context, id int64) (*Entity, error)

	// LoadMultiple loads ids in the given order, skipping ids that do not exist.
	LoadMultiple(ctx context.Context, ids []int64) ([]*Entity, error)

	// Query returns matching ids in ascending order.
	Query(ctx context.Context, q Query) ([]int64, error)

	// LoadTree returns every term of a vocabulary in tree order.
	LoadTree(ctx context.Context, vocabulary string) ([]*Entity, error)
}

// Writer persists entity snapshots. Seeding and tests use it; the
// resolver never writes.
type Writer interface {
	// Save inserts or replaces entities with all of their fields.
	Save(ctx context.Context, entities ...*Entity) error
}

// Accepts reports whether e satisfies q.
func (q Query) Accepts(e *Entity) bool {
	if e == nil {
		return false
	}
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	if q.Type != "" && e.Type != q.Type {
		return false
	}
	if q.AccessCheck && !e.Published {
		return false
	}
	for _, c := range q.Conditions {
		if !e.Matches(c.Field, c.Value) {
			return false
		}
	}
	return true
}

// SortTree orders terms depth-first from the roots, siblings by weight then
// name. Terms whose parent is not in the set are treated as roots.
func SortTree(terms []*Entity) []*Entity {
	byID := make(map[int64]bool, len(terms))
	for _, t := range terms {
		byID[t.ID] = true
	}

	children := make(map[int64][]*Entity)
	for _, t := range terms {
		parent := t.Parent
		if parent != 0 && !byID[parent] {
			parent = 0
		}
		children[parent] = append(children[parent], t)
	}
	for _, list := range children {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Weight != list[j].Weight {
				return list[i].Weight < list[j].Weight
			}
			if list[i].Title != list[j].Title {
				return list[i].Title < list[j].Title
			}
			return list[i].ID < list[j].ID
		})
	}

	out := make([]*Entity, 0, len(terms))
	seen := make(map[int64]bool, len(terms))
	var walk func(parent int64)
	walk = func(parent int64) {
		for _, t := range children[parent] {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			out = append(out, t)
			walk(t.ID)
		}
	}
	walk(0)
	return out
}
