package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/port/crud"
	"go.llib.dev/frameless/port/crud/extid"
)

// Repository stores one JSONB document per entity in Table.
// The row key is the entity's `ext:"id"` field.
type Repository[ENT, ID any] struct {
	Connection *Connection
	Table      string
}

const ErrMissingID errorkit.Error = "ErrMissingID"

const pgUniqueViolation = "23505"

func (r Repository[ENT, ID]) Create(ctx context.Context, ptr *ENT) error {
	key, doc, err := r.encode(ptr)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)`, r.tableRef())
	if _, err := r.Connection.Exec(ctx, query, key, doc); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return crud.ErrAlreadyExists.F(`%T already exists with id: %s`, *ptr, key)
		}
		return err
	}
	return nil
}

func (r Repository[ENT, ID]) Save(ctx context.Context, ptr *ENT) error {
	key, doc, err := r.encode(ptr)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`, r.tableRef())
	_, err = r.Connection.Exec(ctx, query, key, doc)
	return err
}

func (r Repository[ENT, ID]) FindByID(ctx context.Context, id ID) (ENT, bool, error) {
	var (
		ent ENT
		raw []byte
	)
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, r.tableRef())
	err := r.Connection.QueryRow(ctx, query, r.key(id)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ent, false, nil
	}
	if err != nil {
		return ent, false, err
	}
	if err := json.Unmarshal(raw, &ent); err != nil {
		return ent, false, err
	}
	return ent, true, nil
}

func (r Repository[ENT, ID]) FindAll(ctx context.Context) iter.Seq2[ENT, error] {
	return r.QueryMany(ctx, func(ENT) bool { return true })
}

func (r Repository[ENT, ID]) QueryOne(ctx context.Context, filter func(v ENT) bool) (ENT, bool, error) {
	var zero ENT
	for v, err := range r.QueryMany(ctx, filter) {
		if err != nil {
			return zero, false, err
		}
		return v, true, nil
	}
	return zero, false, nil
}

// QueryMany streams the table in insertion order and yields the documents accepted by filter.
func (r Repository[ENT, ID]) QueryMany(ctx context.Context, filter func(v ENT) bool) iter.Seq2[ENT, error] {
	return func(yield func(ENT, error) bool) {
		var zero ENT
		query := fmt.Sprintf(`SELECT doc FROM %s ORDER BY seq`, r.tableRef())
		rows, err := r.Connection.Query(ctx, query)
		if err != nil {
			yield(zero, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			var raw []byte
			if err := rows.Scan(&raw); err != nil {
				yield(zero, err)
				return
			}
			var ent ENT
			if err := json.Unmarshal(raw, &ent); err != nil {
				yield(zero, err)
				return
			}
			if !filter(ent) {
				continue
			}
			if !yield(ent, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, err)
		}
	}
}

func (r Repository[ENT, ID]) Update(ctx context.Context, ptr *ENT) error {
	key, doc, err := r.encode(ptr)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET doc = $2, updated_at = NOW() WHERE id = $1`, r.tableRef())
	tag, err := r.Connection.Exec(ctx, query, key, doc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return crud.ErrNotFound.F(`%T entity not found by id: %s`, *ptr, key)
	}
	return nil
}

func (r Repository[ENT, ID]) DeleteByID(ctx context.Context, id ID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tableRef())
	tag, err := r.Connection.Exec(ctx, query, r.key(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return crud.ErrNotFound.F(`%T entity not found by id: %v`, *new(ENT), id)
	}
	return nil
}

func (r Repository[ENT, ID]) DeleteAll(ctx context.Context) error {
	_, err := r.Connection.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, r.tableRef()))
	return err
}

func (r Repository[ENT, ID]) encode(ptr *ENT) (string, []byte, error) {
	id, ok := extid.Lookup[ID](*ptr)
	if !ok {
		return "", nil, ErrMissingID
	}
	doc, err := json.Marshal(ptr)
	if err != nil {
		return "", nil, err
	}
	return r.key(id), doc, nil
}

func (r Repository[ENT, ID]) key(id ID) string {
	return fmt.Sprint(id)
}

func (r Repository[ENT, ID]) tableRef() string {
	return quoteIdent(r.Table)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
