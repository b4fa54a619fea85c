// internal/circulation/domain.go
package circulation

import (
	"strings"
	"time"

	"bookstore/internal/jsonx"
	"bookstore/internal/paging"
)

// Rental and item statuses.
const (
	StatusActive   = "active"
	StatusOverdue  = "overdue"
	StatusReturned = "returned"
)

// ValidStatus reports whether s is a rental or item status.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusOverdue, StatusReturned:
		return true
	}
	return false
}

// open reports whether an item still holds stock.
func open(status string) bool {
	return status == StatusActive || status == StatusOverdue
}

// Rental is a rental header: one checkout for one user.
type Rental struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	RentalDate time.Time  `json:"rental_date" db:"rental_date"`
	DueDate    *time.Time `json:"due_date" db:"due_date"`
	ReturnDate *time.Time `json:"return_date" db:"return_date"`
	Status     string     `json:"status" db:"status"`
	Notes      *string    `json:"notes" db:"notes"`
	DeletedAt  *time.Time `json:"-" db:"deleted_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`

	UserName   string `json:"user_name" db:"user_name"`
	UserEmail  string `json:"user_email" db:"user_email"`
	BookTitles string `json:"book_titles" db:"-"`
	Items      []Item `json:"items" db:"-"`
}

// Item is one book and quantity inside a rental.
type Item struct {
	ID        int64      `json:"id" db:"id"`
	RentalID  int64      `json:"rental_id" db:"rental_id"`
	BookID    int64      `json:"book_id" db:"book_id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	StartDate *time.Time `json:"start_date" db:"start_date"`
	EndDate   *time.Time `json:"end_date" db:"end_date"`
	Quantity  int        `json:"quantity" db:"quantity"`
	Status    string     `json:"status" db:"status"`
	Notes     *string    `json:"notes" db:"notes"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`

	BookTitle  string `json:"book_title" db:"book_title"`
	BookISBN   string `json:"book_isbn" db:"book_isbn"`
	BookAuthor string `json:"book_author" db:"book_author"`
}

// Book is the part of a catalog book the rental engine reads.
type Book struct {
	ID       int64  `db:"id"`
	Title    string `db:"title"`
	Stock    int    `db:"stock"`
	IsRental bool   `db:"is_rental"`
}

// attach sets items and the comma-joined title list on r.
func (r *Rental) attach(items []Item) {
	r.Items = items
	if r.Items == nil {
		r.Items = []Item{}
	}
	titles := make([]string, 0, len(items))
	for _, it := range items {
		titles = append(titles, it.BookTitle)
	}
	r.BookTitles = strings.Join(titles, ", ")
}

// ItemInput is one requested line of a new rental.
type ItemInput struct {
	BookID    int64       `json:"book_id"`
	Quantity  int         `json:"quantity"`
	StartDate *jsonx.Time `json:"start_date"`
	EndDate   *jsonx.Time `json:"end_date"`
	Notes     *string     `json:"notes"`
}

// quantity applies the default of 1 and floors at 1.
func (in ItemInput) quantity() int {
	if in.Quantity < 1 {
		return 1
	}
	return in.Quantity
}

type CreateRentalRequest struct {
	UserID     int64       `json:"user_id"`
	Items      []ItemInput `json:"items"`
	RentalDate *jsonx.Time `json:"rental_date"`
	DueDate    *jsonx.Time `json:"due_date"`
	Notes      *string     `json:"notes"`
}

type AddItemRequest struct {
	RentalID int64 `json:"rental_id"`
	ItemInput
}

// UpdateRentalRequest carries only the fields present in the body.
type UpdateRentalRequest struct {
	ID         int64                      `json:"id"`
	UserID     jsonx.Optional[int64]      `json:"user_id"`
	Notes      jsonx.Optional[string]     `json:"notes"`
	DueDate    jsonx.Optional[jsonx.Time] `json:"due_date"`
	Status     jsonx.Optional[string]     `json:"status"`
	ReturnDate jsonx.Optional[jsonx.Time] `json:"return_date"`
	ReturnAll  bool                       `json:"return_all"`
}

type ReturnItemRequest struct {
	ItemID     int64       `json:"item_id"`
	ReturnDate *jsonx.Time `json:"return_date"`
}

// ListFilter narrows a rental listing.
type ListFilter struct {
	paging.Params
	Status string
	UserID int64
	BookID int64
}

// PromotionResult counts the rows an overdue sweep changed.
type PromotionResult struct {
	Rentals int64 `json:"rentals"`
	Items   int64 `json:"items"`
}

// RentalPatch lists the header columns an update writes.
type RentalPatch struct {
	UserID     *int64
	Notes      jsonx.Optional[string]
	DueDate    jsonx.Optional[time.Time]
	ReturnDate jsonx.Optional[time.Time]
	Status     *string
}

func (p RentalPatch) Empty() bool {
	return p.UserID == nil && !p.Notes.Set && !p.DueDate.Set && !p.ReturnDate.Set && p.Status == nil
}

// Audit event types recorded per rental.
const (
	EventRentalCreated      = "RentalCreated"
	EventRentalItemAdded    = "RentalItemAdded"
	EventRentalUpdated      = "RentalUpdated"
	EventRentalReactivated  = "RentalReactivated"
	EventRentalReturned     = "RentalReturned"
	EventRentalItemReturned = "RentalItemReturned"
	EventRentalItemDeleted  = "RentalItemDeleted"
	EventRentalDeleted      = "RentalDeleted"
)

type itemLine struct {
	ItemID   int64 `json:"item_id"`
	BookID   int64 `json:"book_id"`
	Quantity int   `json:"quantity"`
}

// RentalCreatedEvent is recorded when a rental is opened.
type RentalCreatedEvent struct {
	UserID  int64      `json:"user_id"`
	DueDate *time.Time `json:"due_date"`
	Items   []itemLine `json:"items"`
}

// RentalReactivatedEvent is recorded when an overdue rental becomes active.
type RentalReactivatedEvent struct {
	DueDate       time.Time `json:"due_date"`
	ItemsRevived  int64     `json:"items_revived"`
	PreviousState string    `json:"previous_status"`
}

// RentalReturnedEvent is recorded when the whole rental is closed.
type RentalReturnedEvent struct {
	ReturnDate time.Time  `json:"return_date"`
	Items      []itemLine `json:"items"`
}

// RentalItemEvent is recorded for single item changes.
type RentalItemEvent struct {
	itemLine
	StockRestored bool       `json:"stock_restored"`
	ReturnDate    *time.Time `json:"return_date,omitempty"`
	RentalClosed  bool       `json:"rental_closed,omitempty"`
}
