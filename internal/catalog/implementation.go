// internal/catalog/implementation.go
package catalog

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"bookstore/internal/apperr"
	"bookstore/internal/database"
	"bookstore/internal/paging"
	"bookstore/internal/validation"
)

// service implements the Service interface.
type service struct {
	db       *sqlx.DB
	log      logrus.FieldLogger
	validate *validation.Validator
}

// NewService creates a new catalog service instance.
func NewService(db *sqlx.DB, log logrus.FieldLogger) Service {
	return &service{
		db:       db,
		log:      log.WithField("component", "catalog"),
		validate: validation.New(),
	}
}

var booksTable = database.Table{
	Name: "books",
	Columns: []string{
		"id", "isbn", "title", "author", "publisher", "year", "genre", "price", "stock",
		"status", "is_rental", "shelf_location", "cover_image", "created_at", "updated_at",
	},
	Search: []string{"isbn", "title", "author"},
}

var bookColumns = []string{
	"isbn", "title", "author", "publisher", "year", "genre", "price", "stock",
	"status", "is_rental", "shelf_location", "cover_image",
}

func bookValues(in BookInput) []any {
	return []any{
		in.ISBN, in.Title, in.Author, in.Publisher, in.Year, in.Genre, *in.Price, *in.Stock,
		in.Status, in.IsRental, in.ShelfLocation, in.CoverImage,
	}
}

func (s *service) ListBooks(ctx context.Context, p paging.Params) (paging.Page[Book], error) {
	page, err := database.List[Book](ctx, s.db, booksTable, p)
	if err != nil {
		return page, apperr.Store(err, "failed to list books")
	}
	return page, nil
}

func (s *service) GetBook(ctx context.Context, id int64) (*Book, error) {
	if id <= 0 {
		return nil, apperr.Validation("id is required")
	}
	b, err := database.Get[Book](ctx, s.db, booksTable, id, false)
	if err != nil {
		return nil, lookupErr(err, "book", id)
	}
	return b, nil
}

func (s *service) checkBook(in *BookInput) error {
	in.normalize()
	if err := s.validate.Struct(in); err != nil {
		return err
	}
	if in.Price.IsNegative() {
		return apperr.Validation("price must be at least 0").WithDetails("price", "price must be at least 0")
	}
	return nil
}

// CreateBook adds a title to the catalog.
func (s *service) CreateBook(ctx context.Context, in BookInput) (*Book, error) {
	if err := s.checkBook(&in); err != nil {
		return nil, err
	}
	var b Book
	if err := database.Insert(ctx, s.db, booksTable, bookColumns, bookValues(in), &b); err != nil {
		return nil, duplicateISBN(err, in.ISBN)
	}
	s.log.WithFields(logrus.Fields{"book_id": b.ID, "isbn": b.ISBN}).Info("book created")
	return &b, nil
}

// UpdateBook replaces every editable field of a book.
func (s *service) UpdateBook(ctx context.Context, id int64, in BookInput) (*Book, error) {
	if id <= 0 {
		return nil, apperr.Validation("id is required")
	}
	if err := s.checkBook(&in); err != nil {
		return nil, err
	}

	var a database.Assignments
	for i, v := range bookValues(in) {
		a.Set(bookColumns[i], v)
	}
	a.Set("updated_at", time.Now())

	var b Book
	if err := database.Update(ctx, s.db, booksTable, id, &a, &b); err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("book %d not found", id)
		}
		return nil, duplicateISBN(err, in.ISBN)
	}
	return &b, nil
}

// DeleteBooks removes books that no rental item points at.
func (s *service) DeleteBooks(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	if len(req.IDs) == 0 {
		return DeleteResult{}, apperr.Validation("id or ids required")
	}
	n, err := database.Delete(ctx, s.db, booksTable, req.IDs)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return DeleteResult{}, apperr.Conflict("book is referenced by rentals and cannot be deleted")
		}
		return DeleteResult{}, apperr.Store(err, "failed to delete books")
	}
	if req.Single && n == 0 {
		return DeleteResult{}, apperr.NotFound("book %d not found", req.IDs[0])
	}
	s.log.WithFields(logrus.Fields{"requested": len(req.IDs), "deleted": n}).Info("books deleted")
	return DeleteResult{Deleted: n}, nil
}

func duplicateISBN(err error, isbn string) error {
	if database.IsUniqueViolation(err) {
		return apperr.Validation("a book with ISBN %q already exists", isbn).WithDetails("isbn", "isbn is already taken")
	}
	return apperr.Store(err, "failed to save book")
}

func lookupErr(err error, noun string, id int64) error {
	if database.IsNoRows(err) {
		return apperr.NotFound("%s %d not found", noun, id)
	}
	return apperr.Store(err, "failed to load %s", noun)
}
