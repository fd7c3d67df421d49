package postgres

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/simplestruct/internal/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time contract assertions.
var (
	_ entity.Store  = (*Store)(nil)
	_ entity.Writer = (*Store)(nil)
)

// Store reads the content graph from PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store over pool. Call Migrate first on a fresh database.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
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
	if len(ids) == 0 {
		return []*entity.Entity{}, nil
	}

	a := entity.NewAssembler()

	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, type, title, published, parent, weight
		FROM cms_entity WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	for rows.Next() {
		var e entity.Entity
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Type, &e.Title, &e.Published, &e.Parent, &e.Weight); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Kind = entity.Kind(kind)
		a.AddEntity(e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT entity_id, name FROM cms_entity_field WHERE entity_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan field: %w", err)
		}
		a.AddField(id, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT entity_id, name, value, target_id
		FROM cms_field WHERE entity_id = ANY($1)
		ORDER BY entity_id, name, delta`, ids)
	if err != nil {
		return nil, fmt.Errorf("load field items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id     int64
			name   string
			value  pgtype.Text
			target pgtype.Int8
		)
		if err := rows.Scan(&id, &name, &value, &target); err != nil {
			return nil, fmt.Errorf("scan field item: %w", err)
		}
		a.AddItem(id, name, entity.Item{Value: value.String, TargetID: target.Int64})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load field items: %w", err)
	}

	return a.Ordered(ids), nil
}

// Query selects candidates by kind, type and publication in SQL. Field
// conditions are checked against the loaded entities so they follow the
// same matching rules as every other store.
func (s *Store) Query(ctx context.Context, q entity.Query) ([]int64, error) {
	sql := `SELECT id FROM cms_entity WHERE ($1 = '' OR kind = $1) AND ($2 = '' OR type = $2)`
	if q.AccessCheck {
		sql += ` AND published`
	}
	sql += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, sql, string(q.Kind), q.Type)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
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
// Used for seeding; the report path never writes content.
func (s *Store) Save(ctx context.Context, entities ...*entity.Entity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entities {
		batch := &pgx.Batch{}
		batch.Queue(`
			INSERT INTO cms_entity (id, kind, type, title, published, parent, weight)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				kind = EXCLUDED.kind, type = EXCLUDED.type, title = EXCLUDED.title,
				published = EXCLUDED.published, parent = EXCLUDED.parent, weight = EXCLUDED.weight`,
			e.ID, string(e.Kind), e.Type, e.Title, e.Published, e.Parent, e.Weight)
		batch.Queue(`DELETE FROM cms_entity_field WHERE entity_id = $1`, e.ID)
		for name, items := range e.Fields {
			batch.Queue(`INSERT INTO cms_entity_field (entity_id, name) VALUES ($1, $2)`, e.ID, name)
			for delta, it := range items {
				value := pgtype.Text{String: it.Value, Valid: !it.IsReference()}
				target := pgtype.Int8{Int64: it.TargetID, Valid: it.IsReference()}
				batch.Queue(`INSERT INTO cms_field (entity_id, name, delta, value, target_id)
					VALUES ($1, $2, $3, $4, $5)`, e.ID, name, delta, value, target)
			}
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save entity %d: %w", e.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
