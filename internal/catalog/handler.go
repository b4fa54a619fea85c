// internal/catalog/handler.go
package catalog

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"bookstore/internal/httpx"
)

type Handler struct {
	books      http.Handler
	authors    http.Handler
	genres     http.Handler
	publishers http.Handler
}

func NewHandler(service Service, log logrus.FieldLogger) *Handler {
	return &Handler{
		books: httpx.Resource[Book, BookInput, BookInput]{
			Log:    log,
			List:   service.ListBooks,
			Get:    service.GetBook,
			Create: service.CreateBook,
			Update: service.UpdateBook,
			Delete: deleter(service.DeleteBooks),
		},
		authors: httpx.Resource[Author, AuthorInput, AuthorPatch]{
			Log:    log,
			List:   service.ListAuthors,
			Get:    service.GetAuthor,
			Create: service.CreateAuthor,
			Update: service.UpdateAuthor,
			Delete: deleter(service.DeleteAuthors),
		},
		genres: httpx.Resource[Genre, GenreInput, GenrePatch]{
			Log:    log,
			List:   service.ListGenres,
			Get:    service.GetGenre,
			Create: service.CreateGenre,
			Update: service.UpdateGenre,
			Delete: deleter(service.DeleteGenres),
		},
		publishers: httpx.Resource[Publisher, PublisherInput, PublisherPatch]{
			Log:    log,
			List:   service.ListPublishers,
			Get:    service.GetPublisher,
			Create: service.CreatePublisher,
			Update: service.UpdatePublisher,
			Delete: deleter(service.DeletePublishers),
		},
	}
}

func (h *Handler) HandleBooks(w http.ResponseWriter, r *http.Request) { h.books.ServeHTTP(w, r) }

func (h *Handler) HandleAuthors(w http.ResponseWriter, r *http.Request) { h.authors.ServeHTTP(w, r) }

func (h *Handler) HandleGenres(w http.ResponseWriter, r *http.Request) { h.genres.ServeHTTP(w, r) }

func (h *Handler) HandlePublishers(w http.ResponseWriter, r *http.Request) {
	h.publishers.ServeHTTP(w, r)
}

// deleter adapts a service delete to the shared delete body.
func deleter(del func(context.Context, DeleteRequest) (DeleteResult, error)) func(context.Context, httpx.IDSelector) (httpx.DeleteResponse, error) {
	return func(ctx context.Context, sel httpx.IDSelector) (httpx.DeleteResponse, error) {
		res, err := del(ctx, DeleteRequest{
			IDs:           sel.Targets(),
			Single:        sel.ID != nil,
			HiddenBookIDs: sel.HiddenBookIDs,
		})
		if err != nil {
			return httpx.DeleteResponse{}, err
		}
		return httpx.DeleteResponse{Deleted: res.Deleted, Blocked: res.Blocked}, nil
	}
}
