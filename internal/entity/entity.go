// Package entity models the content graph that reports are flattened from.
//
// Entities are owned by the content-management system. This package only
// describes their shape and the narrow [Store] contract used to read them;
// nothing here creates or mutates content on behalf of the host.
package entity

import "strconv"

// Kind distinguishes content nodes from taxonomy terms.
type Kind string

const (
	KindNode Kind = "node"
	KindTerm Kind = "taxonomy_term"
)

// TitleField is the pseudo-field that maps to an entity's display title.
// It is not stored as a regular field on nodes.
const TitleField = "title"

// NameField is the base field exposing a term's name.
const NameField = "name"

// Item is a single stored value of a field: either a scalar or a reference.
type Item struct {
	Value    string `yaml:"value,omitempty" json:"value,omitempty"`
	TargetID int64  `yaml:"target_id,omitempty" json:"target_id,omitempty"`
}

// IsReference reports whether the item points at another entity.
func (i Item) IsReference() bool {
	return i.TargetID != 0
}

// Entity is one loaded content item.
type Entity struct {
	ID        int64
	Kind      Kind
	Type      string // content type for nodes, vocabulary for terms
	Title     string
	Published bool

	// Term hierarchy. Zero Parent means a root term.
	Parent int64
	Weight int

	// Fields maps field name to its stored items in delta order.
	// A present key with no items is an empty field; an absent key is a
	// field the entity does not have.
	Fields map[string][]Item
}

// HasField reports whether the entity carries the named field.
func (e *Entity) HasField(name string) bool {
	if e == nil {
		return false
	}
	if e.Kind == KindTerm && name == NameField {
		return true
	}
	_, ok := e.Fields[name]
	return ok
}

// Get returns the stored items of a field.
// Terms expose their title through the "name" base field. The "title"
// pseudo-field is never returned here; callers special-case it.
func (e *Entity) Get(name string) []Item {
	if e == nil {
		return nil
	}
	if e.Kind == KindTerm && name == NameField {
		if items, ok := e.Fields[NameField]; ok && len(items) > 0 {
			return items
		}
		return []Item{{Value: e.Title}}
	}
	return e.Fields[name]
}

// First returns the first stored item of a field, if any.
func (e *Entity) First(name string) (Item, bool) {
	items := e.Get(name)
	if len(items) == 0 {
		return Item{}, false
	}
	return items[0], true
}

// TargetIDs returns every referenced id of a field in stored order.
func (e *Entity) TargetIDs(name string) []int64 {
	items := e.Get(name)
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if it.IsReference() {
			ids = append(ids, it.TargetID)
		}
	}
	return ids
}

// Matches reports whether any stored item of field equals value.
// Reference items compare by their target id; "title" compares the title.
func (e *Entity) Matches(field, value string) bool {
	if e == nil {
		return false
	}
	if field == TitleField {
		return e.Title == value
	}
	for _, it := range e.Get(field) {
		if it.IsReference() {
			if strconv.FormatInt(it.TargetID, 10) == value {
				return true
			}
			continue
		}
		if it.Value == value {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores can hand out entities without sharing
// their internal maps.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	if e.Fields != nil {
		c.Fields = make(map[string][]Item, len(e.Fields))
		for k, v := range e.Fields {
			items := make([]Item, len(v))
			copy(items, v)
			c.Fields[k] = items
		}
	}
	return &c
}
