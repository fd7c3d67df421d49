package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/simplestruct/internal/entity"
	"github.com/jackc/pgx/v5/pgtype"
)

// Term is one entry of a vocabulary listing.
type Term struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Node loads a content node by id. A missing node is logged at warning
// level and returned as nil.
func (r *Resolver) Node(ctx context.Context, id int64) *entity.Entity {
	e, err := r.store.Load(ctx, id)
	if err != nil || e.Kind != entity.KindNode {
		if err != nil && !errors.Is(err, entity.ErrNotFound) {
			r.logLoadError(ctx, err, id)
			return nil
		}
		r.logger.Log(ctx, slog.LevelWarn, "No node found with the ID @nid.", map[string]any{"@nid": id})
		return nil
	}
	return e
}

// NodeIDByTitleAndType returns the lowest id of a visible node of
// contentType titled title, or false when there is none.
func (r *Resolver) NodeIDByTitleAndType(ctx context.Context, title, contentType string) (int64, bool, error) {
	ids, err := r.store.Query(ctx, entity.Query{
		Kind:        entity.KindNode,
		Type:        contentType,
		Conditions:  []entity.Condition{{Field: entity.TitleField, Value: title}},
		AccessCheck: true,
	})
	if err != nil {
		return 0, false, fmt.Errorf("query %s by title: %w", contentType, err)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// FieldByID loads a node and reads one scalar from it, with the same title
// special case as ScalarField. Null when the node does not exist.
func (r *Resolver) FieldByID(ctx context.Context, id int64, field string) pgtype.Text {
	e, err := r.store.Load(ctx, id)
	if err != nil {
		r.logLoadError(ctx, err, id)
		return pgtype.Text{}
	}
	return r.ScalarField(e, field)
}

// TitlesByTypeField maps id to title for every node of contentType whose
// field references (or equals) fieldID. Store failures are logged at error
// level and yield an empty map.
func (r *Resolver) TitlesByTypeField(ctx context.Context, contentType, field string, fieldID int64) map[int64]string {
	titles := make(map[int64]string)

	ids, err := r.store.Query(ctx, entity.Query{
		Kind:       entity.KindNode,
		Type:       contentType,
		Conditions: []entity.Condition{{Field: field, Value: fmt.Sprint(fieldID)}},
	})
	if err != nil {
		r.logger.Log(ctx, slog.LevelError, "Failed to load nodes: @message", map[string]any{"@message": err.Error()})
		return map[int64]string{}
	}
	nodes, err := r.store.LoadMultiple(ctx, ids)
	if err != nil {
		r.logger.Log(ctx, slog.LevelError, "Failed to load nodes: @message", map[string]any{"@message": err.Error()})
		return map[int64]string{}
	}
	for _, n := range nodes {
		titles[n.ID] = n.Title
	}
	return titles
}

// NodesByType returns every visible node of contentType in id order.
// Store errors are returned to the caller.
func (r *Resolver) NodesByType(ctx context.Context, contentType string) ([]*entity.Entity, error) {
	ids, err := r.store.Query(ctx, entity.Query{
		Kind:        entity.KindNode,
		Type:        contentType,
		AccessCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s nodes: %w", contentType, err)
	}
	nodes, err := r.store.LoadMultiple(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load %s nodes: %w", contentType, err)
	}
	return nodes, nil
}

// TermName returns the name of a taxonomy term. A missing term is logged at
// warning level and returns null.
func (r *Resolver) TermName(ctx context.Context, id int64) pgtype.Text {
	e, err := r.store.Load(ctx, id)
	if err != nil || e.Kind != entity.KindTerm {
		if err != nil && !errors.Is(err, entity.ErrNotFound) {
			r.logLoadError(ctx, err, id)
			return pgtype.Text{}
		}
		r.logger.Log(ctx, slog.LevelWarn, "Taxonomy term with ID @termId not found.", map[string]any{"@termId": id})
		return pgtype.Text{}
	}
	return r.ScalarField(e, entity.NameField)
}

// TaxonomyList returns the terms of a vocabulary in tree order. Store
// failures are logged at error level and yield an empty list.
func (r *Resolver) TaxonomyList(ctx context.Context, vocabulary string) []Term {
	terms, err := r.store.LoadTree(ctx, vocabulary)
	if err != nil {
		r.logger.Log(ctx, slog.LevelError, "Error loading taxonomy terms for vocabulary @vocabulary: @message",
			map[string]any{"@vocabulary": vocabulary, "@message": err.Error()})
		return []Term{}
	}

	list := make([]Term, 0, len(terms))
	for _, t := range terms {
		if t.Kind != entity.KindTerm {
			continue
		}
		name := r.ScalarField(t, entity.NameField)
		list = append(list, Term{ID: t.ID, Name: name.String})
	}
	return list
}
