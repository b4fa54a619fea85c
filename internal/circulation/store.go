package circulation

import (
	"context"
	"errors"
	"time"

	"bookstore/internal/eventstore"
)

var (
	// ErrNoRecord is returned by lookups that match no live row.
	ErrNoRecord = errors.New("circulation: no matching record")
	// ErrInsufficientStock is returned when a decrement would take stock
	// below zero.
	ErrInsufficientStock = errors.New("circulation: insufficient stock")
)

// Repository is the persistence the rental engine needs. Lookups of rentals
// never return soft-deleted headers.
//
// Writers lock a rental header first, then its items, then books in
// ascending id order.
type Repository interface {
	UserExists(ctx context.Context, id int64) (bool, error)
	// LockBooks loads the given books and holds them until the transaction
	// ends. Unknown ids are absent from the map.
	LockBooks(ctx context.Context, ids []int64) (map[int64]Book, error)
	// AdjustStock adds delta to a book's stock, failing with
	// ErrInsufficientStock instead of going negative.
	AdjustStock(ctx context.Context, bookID int64, delta int) error

	InsertRental(ctx context.Context, r *Rental) error
	InsertItem(ctx context.Context, it *Item) error
	GetRental(ctx context.Context, id int64, forUpdate bool) (*Rental, error)
	GetItem(ctx context.Context, id int64, forUpdate bool) (*Item, error)
	ListItems(ctx context.Context, rentalIDs []int64) ([]Item, error)
	// LockItems loads a rental's items in id order and holds them until the
	// transaction ends.
	LockItems(ctx context.Context, rentalID int64) ([]Item, error)
	ListRentals(ctx context.Context, filter ListFilter) ([]Rental, int, error)

	UpdateRental(ctx context.Context, id int64, patch RentalPatch) error
	// CloseItem marks an active or overdue item returned at endDate. It
	// reports false when the item was already closed or is gone.
	CloseItem(ctx context.Context, id int64, endDate time.Time) (bool, error)
	// ReactivateOverdueItems flips a rental's overdue items to active with
	// end as their new end date.
	ReactivateOverdueItems(ctx context.Context, rentalID int64, end time.Time) (int64, error)
	DeleteItem(ctx context.Context, id int64) error
	// SoftDeleteRentals marks live rentals deleted and returns their ids.
	SoftDeleteRentals(ctx context.Context, ids []int64, at time.Time) ([]int64, error)
	PromoteOverdue(ctx context.Context, now time.Time) (PromotionResult, error)

	AppendEvent(ctx context.Context, rentalID int64, eventType string, data any) error
	LoadEvents(ctx context.Context, rentalID int64) ([]eventstore.Event, error)
}

// Store is a Repository that can run a group of calls atomically.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(Repository) error) error
}
