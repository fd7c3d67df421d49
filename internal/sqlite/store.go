package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/JonMunkholm/simplestruct/internal/entity"
)

// Compile-time contract assertions.
var (
	_ entity.Store  = (*Store)(nil)
	_ entity.Writer = (*Store)(nil)
)

// maxVars keeps IN lists well below SQLite's host parameter limit.
const maxVars = 500

// Store reads the content graph from SQLite.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store over db, which must come from Open.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Load(ctx context.Context, id int64) (*entity.Entity, error) {
	found, err := s.LoadMultiple(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("load %d: %w", id, entity.ErrNotFound)
	}
	return found[0], nil
}

func (s *Store) LoadMultiple(ctx context.Context, ids []int64) ([]*entity.Entity, error) {
	a := entity.NewAssembler()
	for start := 0; start < len(ids); start += maxVars {
		end := min(start+maxVars, len(ids))
		if err := s.loadChunk(ctx, a, ids[start:end]); err != nil {
			return nil, err
		}
	}
	return a.Ordered(ids), nil
}

func (s *Store) loadChunk(ctx context.Context, a *entity.Assembler, ids []int64) error {
	in, args := inList(ids)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, type, title, published, parent, weight FROM cms_entity WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}
	err = scanEach(rows, func() error {
		var e entity.Entity
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Type, &e.Title, &e.Published, &e.Parent, &e.Weight); err != nil {
			return err
		}
		e.Kind = entity.Kind(kind)
		a.AddEntity(e)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT entity_id, name FROM cms_entity_field WHERE entity_id IN (`+in+`)`, args...)
	if err != nil {
		return fmt.Errorf("load fields: %w", err)
	}
	err = scanEach(rows, func() error {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		a.AddField(id, name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load fields: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT entity_id, name, value, target_id FROM cms_field
		 WHERE entity_id IN (`+in+`) ORDER BY entity_id, name, delta`, args...)
	if err != nil {
		return fmt.Errorf("load field items: %w", err)
	}
	err = scanEach(rows, func() error {
		var (
			id     int64
			name   string
			value  sql.NullString
			target sql.NullInt64
		)
		if err := rows.Scan(&id, &name, &value, &target); err != nil {
			return err
		}
		a.AddItem(id, name, entity.Item{Value: value.String, TargetID: target.Int64})
		return nil
	})
	if err != nil {
		return fmt.Errorf("load field items: %w", err)
	}
	return nil
}

// Query selects candidates by kind, type and publication in SQL and checks
// field conditions against the loaded entities.
func (s *Store) Query(ctx context.Context, q entity.Query) ([]int64, error) {
	query := `SELECT id FROM cms_entity WHERE (?1 = '' OR kind = ?1) AND (?2 = '' OR type = ?2)`
	if q.AccessCheck {
		query += ` AND published = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, string(q.Kind), q.Type)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	var ids []int64
	err = scanEach(rows, func() error {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	if len(q.Conditions) == 0 {
		return ids, nil
	}

	candidates, err := s.LoadMultiple(ctx, ids)
	if err != nil {
		return nil, err
	}
	matched := make([]int64, 0, len(candidates))
	for _, e := range candidates {
		if q.Accepts(e) {
			matched = append(matched, e.ID)
		}
	}
	return matched, nil
}

func (s *Store) LoadTree(ctx context.Context, vocabulary string) ([]*entity.Entity, error) {
	ids, err := s.Query(ctx, entity.Query{Kind: entity.KindTerm, Type: vocabulary})
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", vocabulary, err)
	}
	terms, err := s.LoadMultiple(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", vocabulary, err)
	}
	return entity.SortTree(terms), nil
}

// Save writes entities in one transaction, replacing any stored version.
func (s *Store) Save(ctx context.Context, entities ...*entity.Entity) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, e := range entities {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cms_entity (id, kind, type, title, published, parent, weight)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				kind = excluded.kind, type = excluded.type, title = excluded.title,
				published = excluded.published, parent = excluded.parent, weight = excluded.weight`,
			e.ID, string(e.Kind), e.Type, e.Title, e.Published, e.Parent, e.Weight); err != nil {
			return fmt.Errorf("save entity %d: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cms_entity_field WHERE entity_id = ?`, e.ID); err != nil {
			return fmt.Errorf("save entity %d: %w", e.ID, err)
		}
		for name, items := range e.Fields {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO cms_entity_field (entity_id, name) VALUES (?, ?)`, e.ID, name); err != nil {
				return fmt.Errorf("save entity %d field %s: %w", e.ID, name, err)
			}
			for delta, it := range items {
				value := sql.NullString{String: it.Value, Valid: !it.IsReference()}
				target := sql.NullInt64{Int64: it.TargetID, Valid: it.IsReference()}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO cms_field (entity_id, name, delta, value, target_id) VALUES (?, ?, ?, ?, ?)`,
					e.ID, name, delta, value, target); err != nil {
					return fmt.Errorf("save entity %d field %s: %w", e.ID, name, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func inList(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}

// scanEach calls fn for every row and closes rows.
func scanEach(rows *sql.Rows, fn func() error) error {
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := fn(); err != nil {
			return err
		}
	}
	return rows.Err()
}
