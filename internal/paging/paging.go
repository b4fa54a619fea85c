// Package paging parses list parameters and builds the list envelope shared
// by every collection endpoint.
package paging

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
	// MaxPage keeps Offset within a Postgres integer for any per_page.
	MaxPage = math.MaxInt32 / MaxPerPage
)

// Params are the list parameters of a collection request.
type Params struct {
	Page    int
	PerPage int
	Query   string
}

// FromRequest reads page, per_page (or its older alias limit) and q.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	perPage := q.Get("per_page")
	if perPage == "" {
		perPage = q.Get("limit")
	}
	return New(atoi(q.Get("page")), atoi(perPage), q.Get("q"))
}

// New clamps page to [1, MaxPage] and per_page to [1, MaxPerPage].
func New(page, perPage int, query string) Params {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage, Query: strings.TrimSpace(query)}
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Meta describes the page that was returned.
type Meta struct {
	Total       int `json:"total"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
}

func NewMeta(total int, p Params) Meta {
	last := 0
	if p.PerPage > 0 {
		last = (total + p.PerPage - 1) / p.PerPage
	}
	return Meta{Total: total, PerPage: p.PerPage, CurrentPage: p.Page, LastPage: last}
}

// Page is the list response body.
type Page[T any] struct {
	Data []T `json:"data"`
	Meta Meta `json:"meta"`
}

func NewPage[T any](data []T, meta Meta) Page[T] {
	if data == nil {
		data = []T{}
	}
	return Page[T]{Data: data, Meta: meta}
}

// SearchClause returns "(a ILIKE $n OR b ILIKE $n)" bound to one placeholder.
func SearchClause(columns []string, placeholder int) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", c, placeholder)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePattern wraps q for a substring match, escaping LIKE wildcards.
func LikePattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
