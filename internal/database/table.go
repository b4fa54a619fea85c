package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bookstore/internal/paging"
)

// Table describes a plain CRUD table keyed by a BIGSERIAL id.
type Table struct {
	Name    string
	Columns []string
	// Search lists the columns matched by the q list parameter.
	Search []string
}

func (t Table) selectSQL() string {
	return "SELECT " + strings.Join(t.Columns, ", ") + " FROM " + t.Name
}

// List returns one page of rows ordered newest first, filtered by p.Query.
func List[T any](ctx context.Context, q sqlx.QueryerContext, t Table, p paging.Params) (paging.Page[T], error) {
	var (
		where string
		args  []any
	)
	if p.Query != "" && len(t.Search) > 0 {
		args = append(args, paging.LikePattern(p.Query))
		where = " WHERE " + paging.SearchClause(t.Search, 1)
	}

	var total int
	if err := sqlx.GetContext(ctx, q, &total, "SELECT COUNT(*) FROM "+t.Name+where, args...); err != nil {
		return paging.Page[T]{}, fmt.Errorf("count %s: %w", t.Name, err)
	}

	args = append(args, p.PerPage, p.Offset())
	query := t.selectSQL() + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows := []T{}
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return paging.Page[T]{}, fmt.Errorf("list %s: %w", t.Name, err)
	}
	return paging.NewPage(rows, paging.NewMeta(total, p)), nil
}

// Get loads one row. A missing row surfaces as sql.ErrNoRows.
func Get[T any](ctx context.Context, q sqlx.QueryerContext, t Table, id int64, forUpdate bool) (*T, error) {
	query := t.selectSQL() + " WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	var row T
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// Delete removes the rows with the given ids and reports how many went.
func Delete(ctx context.Context, q sqlx.ExecerContext, t Table, ids []int64) (int64, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM "+t.Name+" WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Insert writes the given columns and scans the full row back into dest.
func Insert(ctx context.Context, q sqlx.QueryerContext, t Table, cols []string, args []any, dest any) error {
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		t.Name, strings.Join(cols, ", "), strings.Join(marks, ", "), strings.Join(t.Columns, ", "))
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

// Update applies a to row id and scans the updated row into dest. It returns
// sql.ErrNoRows when the row does not exist.
func Update(ctx context.Context, q sqlx.QueryerContext, t Table, id int64, a *Assignments, dest any) error {
	if a.Len() == 0 {
		return sqlx.GetContext(ctx, q, dest, t.selectSQL()+" WHERE id = $1", id)
	}
	query, args := a.Build(t.Name, id)
	return sqlx.GetContext(ctx, q, dest, query+" RETURNING "+strings.Join(t.Columns, ", "), args...)
}
