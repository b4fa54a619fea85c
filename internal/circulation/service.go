// internal/circulation/service.go
package circulation

import (
	"context"

	"bookstore/internal/eventstore"
	"bookstore/internal/paging"
)

// Service defines the rental lifecycle operations.
type Service interface {
	CreateRental(ctx context.Context, req CreateRentalRequest) (*Rental, error)
	AddItem(ctx context.Context, req AddItemRequest) (*Item, error)
	GetRental(ctx context.Context, id int64) (*Rental, error)
	ListRentals(ctx context.Context, filter ListFilter) (paging.Page[Rental], error)
	UpdateRental(ctx context.Context, req UpdateRentalRequest) (*Rental, error)
	ReturnItem(ctx context.Context, req ReturnItemRequest) (*Rental, error)
	DeleteItem(ctx context.Context, itemID int64) error
	DeleteRental(ctx context.Context, id int64) error
	DeleteRentals(ctx context.Context, ids []int64) (int64, error)
	PromoteOverdue(ctx context.Context) (PromotionResult, error)
	History(ctx context.Context, rentalID int64) ([]eventstore.Event, error)
}
