// Package server wires the HTTP handlers of every component into one router.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"bookstore/internal/apperr"
	"bookstore/internal/catalog"
	"bookstore/internal/circulation"
	"bookstore/internal/httpx"
	"bookstore/internal/membership"
)

type Handlers struct {
	Rentals *circulation.Handler
	Catalog *catalog.Handler
	Users   *membership.Handler
}

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	// Ping reports database health for /healthz. Nil always reports ok.
	Ping func(ctx context.Context) error
}

// NewRouter builds the API router.
func NewRouter(h Handlers, log logrus.FieldLogger, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(Trace)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, log, apperr.NotFound("no route for %s", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, log, apperr.MethodNotAllowed())
	})

	r.Get("/healthz", health(opts.Ping))

	r.Route("/api", func(r chi.Router) {
		r.Use(LimitWrites(opts.RateLimitRPS, opts.RateLimitBurst))

		r.HandleFunc("/rentals", h.Rentals.HandleRentals)
		r.HandleFunc("/rentals/history", h.Rentals.HandleHistory)
		r.HandleFunc("/books", h.Catalog.HandleBooks)
		r.HandleFunc("/authors", h.Catalog.HandleAuthors)
		r.HandleFunc("/genres", h.Catalog.HandleGenres)
		r.HandleFunc("/publishers", h.Catalog.HandlePublishers)
		r.HandleFunc("/users", h.Users.HandleUsers)
	})
	return r
}

func health(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "database": err.Error()})
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}
