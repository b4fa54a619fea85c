package httpx

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"bookstore/internal/apperr"
	"bookstore/internal/paging"
)

// Resource serves the GET/POST/PUT/DELETE contract shared by the plain
// catalog endpoints:
//
//	GET    ?id=          detail, otherwise a page filtered by q
//	POST   body C        create, 201 with the row
//	PUT    {id, ...U}    update, 200 with the row
//	DELETE {id}|{ids}    delete
type Resource[T, C, U any] struct {
	Log    logrus.FieldLogger
	List   func(ctx context.Context, p paging.Params) (paging.Page[T], error)
	Get    func(ctx context.Context, id int64) (*T, error)
	Create func(ctx context.Context, in C) (*T, error)
	Update func(ctx context.Context, id int64, in U) (*T, error)
	Delete func(ctx context.Context, sel IDSelector) (DeleteResponse, error)
}

func (res Resource[T, C, U]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		res.get(w, r)
	case http.MethodPost:
		res.create(w, r)
	case http.MethodPut:
		res.update(w, r)
	case http.MethodDelete:
		res.delete(w, r)
	default:
		WriteError(w, res.Log, apperr.MethodNotAllowed())
	}
}

func (res Resource[T, C, U]) get(w http.ResponseWriter, r *http.Request) {
	if id := QueryInt64(r, "id"); id > 0 {
		row, err := res.Get(r.Context(), id)
		if err != nil {
			WriteError(w, res.Log, err)
			return
		}
		WriteJSON(w, http.StatusOK, DetailResponse{Success: true, Data: row})
		return
	}
	page, err := res.List(r.Context(), paging.FromRequest(r))
	if err != nil {
		WriteError(w, res.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

func (res Resource[T, C, U]) create(w http.ResponseWriter, r *http.Request) {
	var in C
	if err := Decode(r, &in); err != nil {
		WriteError(w, res.Log, err)
		return
	}
	row, err := res.Create(r.Context(), in)
	if err != nil {
		WriteError(w, res.Log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, row)
}

func (res Resource[T, C, U]) update(w http.ResponseWriter, r *http.Request) {
	raw, _, err := ReadBody(r)
	if err != nil {
		WriteError(w, res.Log, err)
		return
	}
	var target struct {
		ID int64 `json:"id"`
	}
	if err := Bind(raw, &target); err != nil {
		WriteError(w, res.Log, err)
		return
	}
	if target.ID <= 0 {
		target.ID = QueryInt64(r, "id")
	}
	if target.ID <= 0 {
		WriteError(w, res.Log, apperr.Validation("id is required"))
		return
	}

	var in U
	if err := Bind(raw, &in); err != nil {
		WriteError(w, res.Log, err)
		return
	}
	row, err := res.Update(r.Context(), target.ID, in)
	if err != nil {
		WriteError(w, res.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, row)
}

func (res Resource[T, C, U]) delete(w http.ResponseWriter, r *http.Request) {
	var sel IDSelector
	if err := Decode(r, &sel); err != nil {
		WriteError(w, res.Log, err)
		return
	}
	if sel.ID == nil && len(sel.Targets()) == 0 {
		if id := QueryInt64(r, "id"); id > 0 {
			sel.ID = &id
		}
	}
	if len(sel.Targets()) == 0 {
		WriteError(w, res.Log, apperr.Validation("id or ids required"))
		return
	}
	resp, err := res.Delete(r.Context(), sel)
	if err != nil {
		WriteError(w, res.Log, err)
		return
	}
	resp.Success = true
	WriteJSON(w, http.StatusOK, resp)
}
