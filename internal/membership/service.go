// internal/membership/service.go
package membership

import (
	"context"

	"bookstore/internal/paging"
)

// Service defines the interface for the membership service.
type Service interface {
	ListUsers(ctx context.Context, p paging.Params) (paging.Page[User], error)
	GetUser(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, in UserInput) (*User, error)
	UpdateUser(ctx context.Context, id int64, p UserPatch) (*User, error)
	// DeleteUsers returns the number of users removed. Users who still own
	// rentals cannot be deleted.
	DeleteUsers(ctx context.Context, ids []int64, single bool) (int64, error)
}
