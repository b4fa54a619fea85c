// internal/membership/domain.go
package membership

import (
	"strings"
	"time"

	"bookstore/internal/jsonx"
)

// User is a customer who can hold rentals.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	Age       *int      `json:"age" db:"age"`
	Location  *string   `json:"location" db:"location"`
	Bio       *string   `json:"bio" db:"bio"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type UserInput struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Username string  `json:"username" validate:"required,max=64"`
	Email    string  `json:"email" validate:"required,email"`
	Age      *int    `json:"age" validate:"omitempty,min=0,max=150"`
	Location *string `json:"location" validate:"omitempty,max=255"`
	Bio      *string `json:"bio"`
}

func (in *UserInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Location = blankToNil(in.Location)
}

// UserPatch changes only the fields present in the body.
type UserPatch struct {
	Name     jsonx.Optional[string] `json:"name"`
	Username jsonx.Optional[string] `json:"username"`
	Email    jsonx.Optional[string] `json:"email"`
	Age      jsonx.Optional[int]    `json:"age"`
	Location jsonx.Optional[string] `json:"location"`
	Bio      jsonx.Optional[string] `json:"bio"`
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
