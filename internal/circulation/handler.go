// internal/circulation/handler.go
package circulation

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"bookstore/internal/apperr"
	"bookstore/internal/httpx"
	"bookstore/internal/paging"
)

const (
	actionAddItem    = "add_item"
	actionReturnItem = "return_item"
	actionDeleteItem = "delete_item"
)

type Handler struct {
	service Service
	log     logrus.FieldLogger
}

func NewHandler(service Service, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, log: log}
}

// HandleRentals serves /api/rentals. POST, PUT and DELETE pick a sub-operation
// from the "action" body field.
func (h *Handler) HandleRentals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodPut:
		h.handlePut(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		httpx.WriteError(w, h.log, apperr.MethodNotAllowed())
	}
}

// HandleHistory serves /api/rentals/history?id=.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.log, apperr.MethodNotAllowed())
		return
	}
	events, err := h.service.History(r.Context(), httpx.QueryInt64(r, "id"))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.DetailResponse{Success: true, Data: events})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if id := httpx.QueryInt64(r, "id"); id > 0 {
		rental, err := h.service.GetRental(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, h.log, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, httpx.DetailResponse{Success: true, Data: rental})
		return
	}

	filter := ListFilter{
		Params: paging.FromRequest(r),
		Status: r.URL.Query().Get("status"),
		UserID: httpx.QueryInt64(r, "user_id"),
		BookID: httpx.QueryInt64(r, "book_id"),
	}
	page, err := h.service.ListRentals(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	raw, action, err := httpx.ReadBody(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	if action == actionAddItem {
		var req AddItemRequest
		if err := httpx.Bind(raw, &req); err != nil {
			httpx.WriteError(w, h.log, err)
			return
		}
		item, err := h.service.AddItem(r.Context(), req)
		if err != nil {
			httpx.WriteError(w, h.log, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, httpx.DetailResponse{Success: true, Data: item})
		return
	}

	var req CreateRentalRequest
	if err := httpx.Bind(raw, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	rental, err := h.service.CreateRental(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rental)
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	raw, action, err := httpx.ReadBody(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	var rental *Rental
	if action == actionReturnItem {
		var req ReturnItemRequest
		if err = httpx.Bind(raw, &req); err == nil {
			rental, err = h.service.ReturnItem(r.Context(), req)
		}
	} else {
		var req UpdateRentalRequest
		if err = httpx.Bind(raw, &req); err == nil {
			rental, err = h.service.UpdateRental(r.Context(), req)
		}
	}
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rental)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		httpx.IDSelector
		Action string `json:"action"`
		ItemID int64  `json:"item_id"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	switch {
	case req.Action == actionDeleteItem:
		if err := h.service.DeleteItem(r.Context(), req.ItemID); err != nil {
			httpx.WriteError(w, h.log, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, httpx.DeleteResponse{Success: true, Deleted: 1})

	case req.ID != nil:
		if err := h.service.DeleteRental(r.Context(), *req.ID); err != nil {
			httpx.WriteError(w, h.log, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, httpx.DeleteResponse{Success: true, Deleted: 1})

	default:
		n, err := h.service.DeleteRentals(r.Context(), req.Targets())
		if err != nil {
			httpx.WriteError(w, h.log, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, httpx.DeleteResponse{Success: true, Deleted: n})
	}
}
