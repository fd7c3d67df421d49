// Package resolver dereferences entity reference fields and reads scalar
// values across them.
//
// A missing reference, a deleted target or an empty field is a normal
// outcome here: every operation returns null (an invalid pgtype.Text) or an
// empty slice instead of an error, and a chain of lookups short-circuits at
// the first failed hop. Only store failures that the host would surface as
// exceptions are logged at error level.
package resolver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/JonMunkholm/simplestruct/internal/entity"
	"github.com/JonMunkholm/simplestruct/internal/logging"
	"github.com/jackc/pgx/v5/pgtype"
)

// Logger receives templated observability events.
// Satisfied by *logging.Channel.
type Logger interface {
	Log(ctx context.Context, level slog.Level, template string, subs map[string]any)
}

// Resolver is a stateless service over an entity store.
type Resolver struct {
	store  entity.Store
	logger Logger
}

// New returns a Resolver reading from store. A nil logger discards events.
func New(store entity.Store, logger Logger) *Resolver {
	if logger == nil {
		logger = discard{}
	}
	return &Resolver{store: store, logger: logger}
}

// SingleReference returns the entity referenced by the first item of field,
// or nil when the field is empty or the target cannot be loaded.
func (r *Resolver) SingleReference(ctx context.Context, e *entity.Entity, field string) *entity.Entity {
	item, ok := e.First(field)
	if !ok || !item.IsReference() {
		return nil
	}
	target, err := r.store.Load(ctx, item.TargetID)
	if err != nil {
		r.logLoadError(ctx, err, item.TargetID)
		return nil
	}
	return target
}

// AllReferences returns every loadable entity referenced by field, in stored
// order. Targets that no longer exist are skipped, as the host does.
func (r *Resolver) AllReferences(ctx context.Context, e *entity.Entity, field string) []*entity.Entity {
	if !e.HasField(field) {
		r.logger.Log(ctx, slog.LevelWarn, "Invalid node or reference field: @reference",
			map[string]any{"@reference": field})
		return []*entity.Entity{}
	}

	refs, err := r.store.LoadMultiple(ctx, e.TargetIDs(field))
	if err != nil {
		r.logger.Log(ctx, slog.LevelError, "Failed to load references of @reference on node ID @nid: @message",
			map[string]any{"@reference": field, "@nid": e.ID, "@message": err.Error()})
		return []*entity.Entity{}
	}

	if len(refs) == 0 {
		r.logger.Log(ctx, logging.LevelNotice, "No referenced entities found for field: @reference on node ID: @nid",
			map[string]any{"@reference": field, "@nid": e.ID})
	}
	return refs
}

// ScalarField returns a single scalar of e.
//
// "title" always returns the display title, whether or not a stored field
// of that name exists. Any other name returns the first stored scalar value,
// or null when the field is empty, absent, or holds a reference.
func (r *Resolver) ScalarField(e *entity.Entity, field string) pgtype.Text {
	if e == nil {
		return pgtype.Text{}
	}
	if field == entity.TitleField {
		return pgtype.Text{String: e.Title, Valid: true}
	}
	item, ok := e.First(field)
	if !ok || item.IsReference() {
		return pgtype.Text{}
	}
	return pgtype.Text{String: item.Value, Valid: true}
}

// ReferencedScalar reads target from the entity referenced by ref.
// Null when either hop fails.
func (r *Resolver) ReferencedScalar(ctx context.Context, e *entity.Entity, ref, target string) pgtype.Text {
	return r.ScalarField(r.SingleReference(ctx, e, ref), target)
}

// AllReferencedScalars reads target from every entity referenced by ref.
// The result has one slot per entity returned by AllReferences, null where
// the target field is missing.
func (r *Resolver) AllReferencedScalars(ctx context.Context, e *entity.Entity, ref, target string) []pgtype.Text {
	refs := r.AllReferences(ctx, e, ref)
	values := make([]pgtype.Text, len(refs))
	for i, re := range refs {
		values[i] = r.ScalarField(re, target)
	}
	return values
}

func (r *Resolver) logLoadError(ctx context.Context, err error, id int64) {
	if errors.Is(err, entity.ErrNotFound) {
		return
	}
	r.logger.Log(ctx, slog.LevelError, "Failed to load entity @id: @message",
		map[string]any{"@id": id, "@message": err.Error()})
}

type discard struct{}

func (discard) Log(context.Context, slog.Level, string, map[string]any) {}
