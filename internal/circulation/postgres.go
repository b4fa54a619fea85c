package circulation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bookstore/internal/database"
	"bookstore/internal/eventstore"
	"bookstore/internal/paging"
)

const aggregateType = "rental"

// PostgresStore keeps rentals in Postgres and their audit trail in
// rental_events.
type PostgresStore struct {
	*pgRepo
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	events := eventstore.New("rental_events")
	return &PostgresStore{
		pgRepo: &pgRepo{q: db, events: events},
		db:     db,
	}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Repository) error) error {
	return database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(&pgRepo{q: tx, events: s.events})
	})
}

// pgRepo runs against either the pool or a transaction.
type pgRepo struct {
	q      sqlx.ExtContext
	events *eventstore.EventStore
}

const rentalSelect = `
	SELECT r.id, r.user_id, r.rental_date, r.due_date, r.return_date, r.status, r.notes,
	       r.deleted_at, r.created_at, r.updated_at,
	       COALESCE(u.name, '') AS user_name, COALESCE(u.email, '') AS user_email
	FROM book_rentals r
	LEFT JOIN users u ON u.id = r.user_id`

const itemSelect = `
	SELECT ri.id, ri.rental_id, ri.book_id, ri.user_id, ri.start_date, ri.end_date, ri.quantity,
	       ri.status, ri.notes, ri.created_at,
	       COALESCE(b.title, '') AS book_title, COALESCE(b.isbn, '') AS book_isbn,
	       COALESCE(b.author, '') AS book_author
	FROM rental_items ri
	LEFT JOIN books b ON b.id = ri.book_id`

func (r *pgRepo) UserExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := sqlx.GetContext(ctx, r.q, &ok, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id)
	return ok, err
}

func (r *pgRepo) LockBooks(ctx context.Context, ids []int64) (map[int64]Book, error) {
	var books []Book
	err := sqlx.SelectContext(ctx, r.q, &books, `
		SELECT id, title, stock, is_rental
		FROM books
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Book, len(books))
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

func (r *pgRepo) AdjustStock(ctx context.Context, bookID int64, delta int) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE books
		SET stock = stock + $1, updated_at = NOW()
		WHERE id = $2 AND stock + $1 >= 0`, delta, bookID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *pgRepo) InsertRental(ctx context.Context, rental *Rental) error {
	return r.q.QueryRowxContext(ctx, `
		INSERT INTO book_rentals (user_id, rental_date, due_date, status, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		rental.UserID, rental.RentalDate, rental.DueDate, rental.Status, rental.Notes,
	).Scan(&rental.ID, &rental.CreatedAt, &rental.UpdatedAt)
}

func (r *pgRepo) InsertItem(ctx context.Context, it *Item) error {
	return r.q.QueryRowxContext(ctx, `
		INSERT INTO rental_items (rental_id, book_id, user_id, start_date, end_date, quantity, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		it.RentalID, it.BookID, it.UserID, it.StartDate, it.EndDate, it.Quantity, it.Status, it.Notes,
	).Scan(&it.ID, &it.CreatedAt)
}

func (r *pgRepo) GetRental(ctx context.Context, id int64, forUpdate bool) (*Rental, error) {
	query := rentalSelect + ` WHERE r.id = $1 AND r.deleted_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE OF r`
	}
	var rental Rental
	if err := sqlx.GetContext(ctx, r.q, &rental, query, id); err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNoRecord
		}
		return nil, err
	}
	return &rental, nil
}

func (r *pgRepo) GetItem(ctx context.Context, id int64, forUpdate bool) (*Item, error) {
	query := itemSelect + ` WHERE ri.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF ri`
	}
	var it Item
	if err := sqlx.GetContext(ctx, r.q, &it, query, id); err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNoRecord
		}
		return nil, err
	}
	return &it, nil
}

func (r *pgRepo) ListItems(ctx context.Context, rentalIDs []int64) ([]Item, error) {
	items := []Item{}
	err := sqlx.SelectContext(ctx, r.q, &items,
		itemSelect+` WHERE ri.rental_id = ANY($1) ORDER BY ri.id`, pq.Array(rentalIDs))
	return items, err
}

func (r *pgRepo) LockItems(ctx context.Context, rentalID int64) ([]Item, error) {
	items := []Item{}
	err := sqlx.SelectContext(ctx, r.q, &items,
		itemSelect+` WHERE ri.rental_id = $1 ORDER BY ri.id FOR UPDATE OF ri`, rentalID)
	return items, err
}

func (r *pgRepo) ListRentals(ctx context.Context, f ListFilter) ([]Rental, int, error) {
	where := []string{"r.deleted_at IS NULL"}
	var args []any

	if f.Query != "" {
		args = append(args, paging.LikePattern(f.Query))
		where = append(where, paging.SearchClause([]string{"u.name", "u.email", "r.notes"}, len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if f.UserID > 0 {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("r.user_id = $%d", len(args)))
	}
	if f.BookID > 0 {
		args = append(args, f.BookID)
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM rental_items f WHERE f.rental_id = r.id AND f.book_id = $%d)", len(args)))
	}
	whereSQL := " WHERE " + strings.Join(where, " AND ")

	var total int
	countSQL := `SELECT COUNT(*) FROM book_rentals r LEFT JOIN users u ON u.id = r.user_id` + whereSQL
	if err := sqlx.GetContext(ctx, r.q, &total, countSQL, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, f.PerPage, f.Offset())
	listSQL := rentalSelect + whereSQL +
		fmt.Sprintf(" ORDER BY r.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rentals := []Rental{}
	if err := sqlx.SelectContext(ctx, r.q, &rentals, listSQL, args...); err != nil {
		return nil, 0, err
	}
	return rentals, total, nil
}

func (r *pgRepo) UpdateRental(ctx context.Context, id int64, p RentalPatch) error {
	if p.Empty() {
		return nil
	}
	var a database.Assignments
	if p.UserID != nil {
		a.Set("user_id", *p.UserID)
	}
	if p.Notes.Set {
		a.Set("notes", p.Notes.Value)
	}
	if p.DueDate.Set {
		a.Set("due_date", p.DueDate.Value)
	}
	if p.ReturnDate.Set {
		a.Set("return_date", p.ReturnDate.Value)
	}
	if p.Status != nil {
		a.Set("status", *p.Status)
	}
	a.Set("updated_at", time.Now())

	query, args := a.Build("book_rentals", id)
	_, err := r.q.ExecContext(ctx, query, args...)
	return err
}

func (r *pgRepo) CloseItem(ctx context.Context, id int64, endDate time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE rental_items
		SET status = 'returned', end_date = $1
		WHERE id = $2 AND status IN ('active', 'overdue')`, endDate, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *pgRepo) ReactivateOverdueItems(ctx context.Context, rentalID int64, end time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE rental_items
		SET status = 'active', end_date = $1
		WHERE rental_id = $2 AND status = 'overdue'`, end, rentalID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *pgRepo) DeleteItem(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM rental_items WHERE id = $1`, id)
	return err
}

func (r *pgRepo) SoftDeleteRentals(ctx context.Context, ids []int64, at time.Time) ([]int64, error) {
	deleted := []int64{}
	err := sqlx.SelectContext(ctx, r.q, &deleted, `
		UPDATE book_rentals
		SET deleted_at = $1, updated_at = $1
		WHERE id = ANY($2) AND deleted_at IS NULL
		RETURNING id`, at, pq.Array(ids))
	return deleted, err
}

func (r *pgRepo) PromoteOverdue(ctx context.Context, now time.Time) (PromotionResult, error) {
	var res PromotionResult

	headers, err := r.q.ExecContext(ctx, `
		UPDATE book_rentals
		SET status = 'overdue', updated_at = $1
		WHERE id IN (
			SELECT id FROM book_rentals
			WHERE status = 'active'
			  AND due_date IS NOT NULL
			  AND due_date < $1
			  AND deleted_at IS NULL
			ORDER BY id
			FOR UPDATE)`, now)
	if err != nil {
		return res, fmt.Errorf("promote rentals: %w", err)
	}
	if res.Rentals, err = headers.RowsAffected(); err != nil {
		return res, err
	}

	items, err := r.q.ExecContext(ctx, `
		UPDATE rental_items
		SET status = 'overdue'
		WHERE id IN (
			SELECT ri.id FROM rental_items ri
			JOIN book_rentals r ON r.id = ri.rental_id
			WHERE r.deleted_at IS NULL
			  AND ri.status = 'active'
			  AND ri.end_date IS NOT NULL
			  AND ri.end_date < $1
			ORDER BY ri.id
			FOR UPDATE OF ri)`, now)
	if err != nil {
		return res, fmt.Errorf("promote items: %w", err)
	}
	if res.Items, err = items.RowsAffected(); err != nil {
		return res, err
	}
	return res, nil
}

func (r *pgRepo) AppendEvent(ctx context.Context, rentalID int64, eventType string, data any) error {
	event, err := eventstore.NewEvent(eventType, data, map[string]any{"rental_id": rentalID})
	if err != nil {
		return err
	}
	return r.events.Append(ctx, r.q, eventstore.AggregateID(aggregateType, rentalID), aggregateType, []eventstore.Event{event})
}

func (r *pgRepo) LoadEvents(ctx context.Context, rentalID int64) ([]eventstore.Event, error) {
	return r.events.Load(ctx, r.q, eventstore.AggregateID(aggregateType, rentalID))
}

var _ Store = (*PostgresStore)(nil)
