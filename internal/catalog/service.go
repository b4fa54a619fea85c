// internal/catalog/service.go
package catalog

import (
	"context"

	"bookstore/internal/paging"
)

type BookService interface {
	ListBooks(ctx context.Context, p paging.Params) (paging.Page[Book], error)
	GetBook(ctx context.Context, id int64) (*Book, error)
	CreateBook(ctx context.Context, in BookInput) (*Book, error)
	UpdateBook(ctx context.Context, id int64, in BookInput) (*Book, error)
	DeleteBooks(ctx context.Context, req DeleteRequest) (DeleteResult, error)
}

type AuthorService interface {
	ListAuthors(ctx context.Context, p paging.Params) (paging.Page[Author], error)
	GetAuthor(ctx context.Context, id int64) (*Author, error)
	CreateAuthor(ctx context.Context, in AuthorInput) (*Author, error)
	UpdateAuthor(ctx context.Context, id int64, p AuthorPatch) (*Author, error)
	DeleteAuthors(ctx context.Context, req DeleteRequest) (DeleteResult, error)
}

type GenreService interface {
	ListGenres(ctx context.Context, p paging.Params) (paging.Page[Genre], error)
	GetGenre(ctx context.Context, id int64) (*Genre, error)
	CreateGenre(ctx context.Context, in GenreInput) (*Genre, error)
	UpdateGenre(ctx context.Context, id int64, p GenrePatch) (*Genre, error)
	DeleteGenres(ctx context.Context, req DeleteRequest) (DeleteResult, error)
}

type PublisherService interface {
	ListPublishers(ctx context.Context, p paging.Params) (paging.Page[Publisher], error)
	GetPublisher(ctx context.Context, id int64) (*Publisher, error)
	CreatePublisher(ctx context.Context, in PublisherInput) (*Publisher, error)
	UpdatePublisher(ctx context.Context, id int64, p PublisherPatch) (*Publisher, error)
	DeletePublishers(ctx context.Context, req DeleteRequest) (DeleteResult, error)
}

// Service defines the interface for the catalog service.
type Service interface {
	BookService
	AuthorService
	GenreService
	PublisherService
}
