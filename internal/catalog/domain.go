// internal/catalog/domain.go
package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bookstore/internal/jsonx"
)

const (
	BookPublished  = "published"
	BookOutOfPrint = "out_of_print"
)

// Book is a catalog title. Author, Publisher and Genre hold names, not keys.
type Book struct {
	ID            int64           `json:"id" db:"id"`
	ISBN          string          `json:"isbn" db:"isbn"`
	Title         string          `json:"title" db:"title"`
	Author        *string         `json:"author" db:"author"`
	Publisher     *string         `json:"publisher" db:"publisher"`
	Year          *int            `json:"year" db:"year"`
	Genre         *string         `json:"genre" db:"genre"`
	Price         decimal.Decimal `json:"price" db:"price"`
	Stock         int             `json:"stock" db:"stock"`
	Status        string          `json:"status" db:"status"`
	IsRental      bool            `json:"is_rental" db:"is_rental"`
	ShelfLocation *string         `json:"shelf_location" db:"shelf_location"`
	CoverImage    *string         `json:"cover_image" db:"cover_image"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// BookInput is the full body of a book create or update.
type BookInput struct {
	ISBN          string           `json:"isbn" validate:"required,max=32"`
	Title         string           `json:"title" validate:"required,max=255"`
	Author        *string          `json:"author" validate:"omitempty,max=255"`
	Publisher     *string          `json:"publisher" validate:"omitempty,max=255"`
	Year          *int             `json:"year" validate:"omitempty,min=0,max=9999"`
	Genre         *string          `json:"genre" validate:"omitempty,max=255"`
	Price         *decimal.Decimal `json:"price" validate:"required"`
	Stock         *int             `json:"stock" validate:"required,min=0"`
	Status        string           `json:"status" validate:"required,oneof=published out_of_print"`
	IsRental      bool             `json:"is_rental"`
	ShelfLocation *string          `json:"shelf_location" validate:"omitempty,max=64"`
	CoverImage    *string          `json:"cover_image" validate:"omitempty,max=512"`
}

func (in *BookInput) normalize() {
	in.ISBN = strings.TrimSpace(in.ISBN)
	in.Title = strings.TrimSpace(in.Title)
	in.Status = strings.TrimSpace(in.Status)
	for _, p := range []**string{&in.Author, &in.Publisher, &in.Genre, &in.ShelfLocation, &in.CoverImage} {
		*p = blankToNil(*p)
	}
}

type Author struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Email       *string   `json:"email" db:"email"`
	Nationality *string   `json:"nationality" db:"nationality"`
	BirthYear   *int      `json:"birth_year" db:"birth_year"`
	Bio         *string   `json:"bio" db:"bio"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type AuthorInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Nationality *string `json:"nationality" validate:"omitempty,max=100"`
	BirthYear   *int    `json:"birth_year" validate:"omitempty,min=0,max=9999"`
	Bio         *string `json:"bio"`
}

// AuthorPatch changes only the fields present in the body.
type AuthorPatch struct {
	Name        jsonx.Optional[string] `json:"name"`
	Email       jsonx.Optional[string] `json:"email"`
	Nationality jsonx.Optional[string] `json:"nationality"`
	BirthYear   jsonx.Optional[int]    `json:"birth_year"`
	Bio         jsonx.Optional[string] `json:"bio"`
}

type Genre struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type GenreInput struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description"`
}

type GenrePatch struct {
	Name        jsonx.Optional[string] `json:"name"`
	Description jsonx.Optional[string] `json:"description"`
}

type Publisher struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Country     *string   `json:"country" db:"country"`
	FoundedYear *int      `json:"founded_year" db:"founded_year"`
	Website     *string   `json:"website" db:"website"`
	Note        *string   `json:"note" db:"note"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type PublisherInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Country     *string `json:"country" validate:"omitempty,max=100"`
	FoundedYear *int    `json:"founded_year" validate:"omitempty,min=0,max=9999"`
	Website     *string `json:"website" validate:"omitempty,max=255"`
	Note        *string `json:"note"`
}

type PublisherPatch struct {
	Name        jsonx.Optional[string] `json:"name"`
	Country     jsonx.Optional[string] `json:"country"`
	FoundedYear jsonx.Optional[int]    `json:"founded_year"`
	Website     jsonx.Optional[string] `json:"website"`
	Note        jsonx.Optional[string] `json:"note"`
}

// DeleteRequest addresses one row (Single) or a batch. HiddenBookIDs are
// books the caller has already hidden; they do not count as references.
type DeleteRequest struct {
	IDs           []int64
	Single        bool
	HiddenBookIDs []int64
}

// DeleteResult lists what a delete removed and the names it had to keep
// because books still use them.
type DeleteResult struct {
	Deleted int64
	Blocked []string
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
