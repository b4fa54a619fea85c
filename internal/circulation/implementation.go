// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"bookstore/internal/apperr"
	"bookstore/internal/eventstore"
	"bookstore/internal/jsonx"
	"bookstore/internal/paging"
)

// reactivationGrace is how far the due date moves when an overdue rental is
// reactivated without an explicit future date.
const reactivationGrace = 24 * time.Hour

// service implements the Service interface.
type service struct {
	store     Store
	log       logrus.FieldLogger
	now       func() time.Time
	freshness time.Duration
	tracer    trace.Tracer

	rentalsCreated  metric.Int64Counter
	itemsReturned   metric.Int64Counter
	overduePromoted metric.Int64Counter

	mu        sync.Mutex
	lastSweep time.Time
}

// Option configures the service.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithReadFreshness lets reads skip overdue promotion when the last sweep is
// younger than d. Zero promotes on every read.
func WithReadFreshness(d time.Duration) Option {
	return func(s *service) { s.freshness = d }
}

// NewService creates a new circulation service instance.
func NewService(store Store, log logrus.FieldLogger, opts ...Option) Service {
	s := &service{
		store:  store,
		log:    log.WithField("component", "circulation"),
		now:    time.Now,
		tracer: otel.Tracer("bookstore/circulation"),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter("bookstore/circulation")
	s.rentalsCreated = s.counter(meter, "circulation.rentals.created", "Rentals opened")
	s.itemsReturned = s.counter(meter, "circulation.items.returned", "Rental items returned")
	s.overduePromoted = s.counter(meter, "circulation.overdue.promoted", "Rentals and items promoted to overdue")
	return s
}

func (s *service) counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		s.log.WithError(err).WithField("instrument", name).Warn("metric disabled")
		return noop.Int64Counter{}
	}
	return c
}

func (s *service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "circulation."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateRental opens a rental with one item per input line.
func (s *service) CreateRental(ctx context.Context, req CreateRentalRequest) (rental *Rental, err error) {
	ctx, span := s.start(ctx, "create_rental",
		attribute.Int64("user.id", req.UserID),
		attribute.Int("items.count", len(req.Items)))
	defer func() { finish(span, err) }()

	if req.UserID <= 0 {
		return nil, apperr.Validation("user_id is required")
	}
	if len(req.Items) == 0 {
		return nil, apperr.Validation("at least one item is required")
	}
	needed := make(map[int64]int)
	for i, in := range req.Items {
		if in.BookID <= 0 {
			return nil, apperr.Validation("items[%d].book_id is required", i)
		}
		needed[in.BookID] += in.quantity()
	}

	now := s.now()
	rentalDate := now
	if t := req.RentalDate.Ptr(); t != nil {
		rentalDate = *t
	}
	dueDate := req.DueDate.Ptr()

	err = s.store.InTx(ctx, func(repo Repository) error {
		ok, err := repo.UserExists(ctx, req.UserID)
		if err != nil {
			return apperr.Store(err, "failed to look up user")
		}
		if !ok {
			return apperr.Validation("user %d does not exist", req.UserID)
		}

		books, err := s.reserve(ctx, repo, needed)
		if err != nil {
			return err
		}

		r := &Rental{
			UserID:     req.UserID,
			RentalDate: rentalDate,
			DueDate:    dueDate,
			Status:     StatusActive,
			Notes:      req.Notes,
		}
		if err := repo.InsertRental(ctx, r); err != nil {
			return apperr.Store(err, "failed to create rental")
		}

		lines := make([]itemLine, 0, len(req.Items))
		for _, in := range req.Items {
			it := &Item{
				RentalID:  r.ID,
				BookID:    in.BookID,
				UserID:    req.UserID,
				StartDate: in.StartDate.Ptr(),
				EndDate:   in.EndDate.Ptr(),
				Quantity:  in.quantity(),
				Status:    StatusActive,
				Notes:     in.Notes,
			}
			if it.StartDate == nil {
				it.StartDate = &rentalDate
			}
			if it.EndDate == nil {
				it.EndDate = dueDate
			}
			if err := s.checkout(ctx, repo, it, books[in.BookID]); err != nil {
				return err
			}
			lines = append(lines, itemLine{ItemID: it.ID, BookID: it.BookID, Quantity: it.Quantity})
		}

		if err := s.record(ctx, repo, r.ID, EventRentalCreated, RentalCreatedEvent{
			UserID:  r.UserID,
			DueDate: r.DueDate,
			Items:   lines,
		}); err != nil {
			return err
		}

		rental, err = s.load(ctx, repo, r.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.rentalsCreated.Add(ctx, 1)
	s.log.WithFields(logrus.Fields{"rental_id": rental.ID, "user_id": rental.UserID, "items": len(rental.Items)}).
		Info("rental created")
	return rental, nil
}

// reserve locks the needed books and checks that each can cover its total.
func (s *service) reserve(ctx context.Context, repo Repository, needed map[int64]int) (map[int64]Book, error) {
	ids := make([]int64, 0, len(needed))
	for id := range needed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	books, err := repo.LockBooks(ctx, ids)
	if err != nil {
		return nil, apperr.Store(err, "failed to load books")
	}
	for _, id := range ids {
		book, ok := books[id]
		if !ok {
			return nil, apperr.NotFound("book %d not found", id)
		}
		if !book.IsRental {
			return nil, apperr.Validation("book %q is not available for rental", book.Title).
				WithDetails("book_id", id)
		}
		if book.Stock < needed[id] {
			return nil, apperr.Validation("not enough stock for %q: requested %d, available %d", book.Title, needed[id], book.Stock).
				WithDetails("book_id", id).
				WithDetails("requested", needed[id]).
				WithDetails("available", book.Stock)
		}
	}
	return books, nil
}

// checkout inserts it and takes its quantity from stock.
func (s *service) checkout(ctx context.Context, repo Repository, it *Item, book Book) error {
	if err := repo.InsertItem(ctx, it); err != nil {
		return apperr.Store(err, "failed to create rental item")
	}
	if err := repo.AdjustStock(ctx, it.BookID, -it.Quantity); err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			return apperr.Validation("not enough stock for %q", book.Title).WithDetails("book_id", it.BookID)
		}
		return apperr.Store(err, "failed to update stock")
	}
	it.BookTitle = book.Title
	return nil
}

// AddItem appends one item to an existing rental.
func (s *service) AddItem(ctx context.Context, req AddItemRequest) (item *Item, err error) {
	ctx, span := s.start(ctx, "add_item",
		attribute.Int64("rental.id", req.RentalID),
		attribute.Int64("book.id", req.BookID))
	defer func() { finish(span, err) }()

	if req.RentalID <= 0 {
		return nil, apperr.Validation("rental_id is required")
	}
	if req.BookID <= 0 {
		return nil, apperr.Validation("book_id is required")
	}

	err = s.store.InTx(ctx, func(repo Repository) error {
		rental, err := s.lockRental(ctx, repo, req.RentalID)
		if err != nil {
			return err
		}
		if rental.Status == StatusReturned {
			return apperr.Validation("rental %d is already returned", rental.ID)
		}

		books, err := s.reserve(ctx, repo, map[int64]int{req.BookID: req.quantity()})
		if err != nil {
			return err
		}

		now := s.now()
		it := &Item{
			RentalID:  rental.ID,
			BookID:    req.BookID,
			UserID:    rental.UserID,
			StartDate: req.StartDate.Ptr(),
			EndDate:   req.EndDate.Ptr(),
			Quantity:  req.quantity(),
			Status:    StatusActive,
			Notes:     req.Notes,
		}
		if it.StartDate == nil {
			it.StartDate = &now
		}
		if it.EndDate == nil {
			it.EndDate = rental.DueDate
		}
		if err := s.checkout(ctx, repo, it, books[req.BookID]); err != nil {
			return err
		}
		if err := s.record(ctx, repo, rental.ID, EventRentalItemAdded, RentalItemEvent{
			itemLine: itemLine{ItemID: it.ID, BookID: it.BookID, Quantity: it.Quantity},
		}); err != nil {
			return err
		}

		item, err = repo.GetItem(ctx, it.ID, false)
		if err != nil {
			return apperr.Store(err, "failed to reload rental item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetRental returns a rental with its items.
func (s *service) GetRental(ctx context.Context, id int64) (rental *Rental, err error) {
	ctx, span := s.start(ctx, "get_rental", attribute.Int64("rental.id", id))
	defer func() { finish(span, err) }()

	if id <= 0 {
		return nil, apperr.Validation("id is required")
	}
	s.ensureFresh(ctx)
	return s.load(ctx, s.store, id)
}

// ListRentals returns one page of rentals, newest first.
func (s *service) ListRentals(ctx context.Context, filter ListFilter) (page paging.Page[Rental], err error) {
	ctx, span := s.start(ctx, "list_rentals",
		attribute.Int("page", filter.Page),
		attribute.String("status", filter.Status))
	defer func() { finish(span, err) }()

	if filter.Status != "" && !ValidStatus(filter.Status) {
		return page, apperr.Validation("unknown status %q", filter.Status)
	}
	s.ensureFresh(ctx)

	rentals, total, err := s.store.ListRentals(ctx, filter)
	if err != nil {
		return page, apperr.Store(err, "failed to list rentals")
	}

	ids := make([]int64, len(rentals))
	for i, r := range rentals {
		ids[i] = r.ID
	}
	byRental := make(map[int64][]Item, len(rentals))
	if len(ids) > 0 {
		items, err := s.store.ListItems(ctx, ids)
		if err != nil {
			return page, apperr.Store(err, "failed to list rental items")
		}
		for _, it := range items {
			byRental[it.RentalID] = append(byRental[it.RentalID], it)
		}
	}
	for i := range rentals {
		rentals[i].attach(byRental[rentals[i].ID])
	}
	return paging.NewPage(rentals, paging.NewMeta(total, filter.Params)), nil
}

// UpdateRental applies field edits and status transitions to a rental.
func (s *service) UpdateRental(ctx context.Context, req UpdateRentalRequest) (rental *Rental, err error) {
	ctx, span := s.start(ctx, "update_rental", attribute.Int64("rental.id", req.ID))
	defer func() { finish(span, err) }()

	if req.ID <= 0 {
		return nil, apperr.Validation("id is required")
	}
	newStatus := ""
	if req.Status.Present() {
		newStatus = *req.Status.Value
		if !ValidStatus(newStatus) {
			return nil, apperr.Validation("unknown status %q", newStatus)
		}
	}
	returning := req.ReturnAll || newStatus == StatusReturned

	var returned int
	err = s.store.InTx(ctx, func(repo Repository) error {
		current, err := s.lockRental(ctx, repo, req.ID)
		if err != nil {
			return err
		}
		if current.Status == StatusActive && newStatus == StatusOverdue {
			return apperr.Validation("cannot change status from active to overdue; overdue is set automatically once the due date passes")
		}
		if current.Status == StatusReturned && (newStatus == StatusActive || newStatus == StatusOverdue) {
			return apperr.Validation("rental %d is already returned", current.ID)
		}

		now := s.now()
		var patch RentalPatch
		changes := map[string]any{}

		if req.UserID.Set {
			if !req.UserID.Present() {
				return apperr.Validation("user_id cannot be null")
			}
			ok, err := repo.UserExists(ctx, *req.UserID.Value)
			if err != nil {
				return apperr.Store(err, "failed to look up user")
			}
			if !ok {
				return apperr.NotFound("user %d not found", *req.UserID.Value)
			}
			patch.UserID = req.UserID.Value
			changes["user_id"] = *req.UserID.Value
		}
		if req.Notes.Set {
			patch.Notes = req.Notes
			changes["notes"] = req.Notes.Value
		}

		due, dueGiven := jsonx.OptionalTime(req.DueDate)
		reactivate := !returning && current.Status == StatusOverdue &&
			(newStatus == StatusActive ||
				(dueGiven && due.After(now) && (newStatus == "" || newStatus == StatusOverdue)))

		switch {
		case reactivate:
			if !dueGiven || !due.After(now) {
				due = now.Add(reactivationGrace)
			}
			n, err := repo.ReactivateOverdueItems(ctx, current.ID, due)
			if err != nil {
				return apperr.Store(err, "failed to reactivate rental items")
			}
			active := StatusActive
			patch.Status = &active
			patch.DueDate = jsonx.Some(due)
			if err := s.record(ctx, repo, current.ID, EventRentalReactivated, RentalReactivatedEvent{
				DueDate:       due,
				ItemsRevived:  n,
				PreviousState: current.Status,
			}); err != nil {
				return err
			}
		case dueGiven:
			patch.DueDate = jsonx.Some(due)
			changes["due_date"] = due
		}

		if returning {
			returnDate, ok := jsonx.OptionalTime(req.ReturnDate)
			if !ok {
				returnDate = now
			}
			lines, err := s.returnOpenItems(ctx, repo, current.ID, returnDate)
			if err != nil {
				return err
			}
			returned = len(lines)
			status := StatusReturned
			patch.Status = &status
			patch.ReturnDate = jsonx.Some(returnDate)
			if err := s.record(ctx, repo, current.ID, EventRentalReturned, RentalReturnedEvent{
				ReturnDate: returnDate,
				Items:      lines,
			}); err != nil {
				return err
			}
		} else if newStatus != "" && patch.Status == nil && newStatus != current.Status {
			patch.Status = &newStatus
			changes["status"] = newStatus
		}

		if req.ReturnDate.Set && !patch.ReturnDate.Set {
			if t, ok := jsonx.OptionalTime(req.ReturnDate); ok {
				patch.ReturnDate = jsonx.Some(t)
				changes["return_date"] = t
			} else {
				patch.ReturnDate = jsonx.Null[time.Time]()
				changes["return_date"] = nil
			}
		}

		if !patch.Empty() {
			if err := repo.UpdateRental(ctx, current.ID, patch); err != nil {
				return apperr.Store(err, "failed to update rental")
			}
		}
		if len(changes) > 0 {
			if err := s.record(ctx, repo, current.ID, EventRentalUpdated, changes); err != nil {
				return err
			}
		}

		rental, err = s.load(ctx, repo, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if returned > 0 {
		s.itemsReturned.Add(ctx, int64(returned))
	}
	return rental, nil
}

// returnOpenItems closes every active or overdue item of a locked rental and
// puts its quantity back in stock.
func (s *service) returnOpenItems(ctx context.Context, repo Repository, rentalID int64, at time.Time) ([]itemLine, error) {
	items, err := repo.LockItems(ctx, rentalID)
	if err != nil {
		return nil, apperr.Store(err, "failed to load rental items")
	}
	lines := []itemLine{}
	for _, it := range items {
		if !open(it.Status) {
			continue
		}
		closed, err := repo.CloseItem(ctx, it.ID, at)
		if err != nil {
			return nil, apperr.Store(err, "failed to update rental item")
		}
		if closed {
			lines = append(lines, itemLine{ItemID: it.ID, BookID: it.BookID, Quantity: it.Quantity})
		}
	}
	if err := s.restock(ctx, repo, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// restock gives the quantity of each line back to its book. Books are
// updated in ascending id order, the same order reserve locks them in.
func (s *service) restock(ctx context.Context, repo Repository, lines []itemLine) error {
	byBook := append([]itemLine(nil), lines...)
	sort.SliceStable(byBook, func(i, j int) bool { return byBook[i].BookID < byBook[j].BookID })
	for _, l := range byBook {
		if err := repo.AdjustStock(ctx, l.BookID, l.Quantity); err != nil {
			return apperr.Store(err, "failed to restore stock")
		}
	}
	return nil
}

// ReturnItem returns a single item. The rental closes once no item is left
// open.
func (s *service) ReturnItem(ctx context.Context, req ReturnItemRequest) (rental *Rental, err error) {
	ctx, span := s.start(ctx, "return_item", attribute.Int64("item.id", req.ItemID))
	defer func() { finish(span, err) }()

	if req.ItemID <= 0 {
		return nil, apperr.Validation("item_id is required")
	}

	err = s.store.InTx(ctx, func(repo Repository) error {
		current, it, err := s.lockItem(ctx, repo, req.ItemID)
		if err != nil {
			return err
		}
		if !open(it.Status) {
			return apperr.Validation("item %d is already returned", it.ID)
		}

		at := s.now()
		if t := req.ReturnDate.Ptr(); t != nil {
			at = *t
		}
		closed, err := repo.CloseItem(ctx, it.ID, at)
		if err != nil {
			return apperr.Store(err, "failed to update rental item")
		}
		if !closed {
			return apperr.Validation("item %d is already returned", it.ID)
		}
		line := itemLine{ItemID: it.ID, BookID: it.BookID, Quantity: it.Quantity}
		if err := s.restock(ctx, repo, []itemLine{line}); err != nil {
			return err
		}

		items, err := repo.ListItems(ctx, []int64{current.ID})
		if err != nil {
			return apperr.Store(err, "failed to load rental items")
		}
		rentalClosed := true
		for _, other := range items {
			if open(other.Status) {
				rentalClosed = false
				break
			}
		}
		if rentalClosed && current.Status != StatusReturned {
			status := StatusReturned
			if err := repo.UpdateRental(ctx, current.ID, RentalPatch{
				Status:     &status,
				ReturnDate: jsonx.Some(at),
			}); err != nil {
				return apperr.Store(err, "failed to close rental")
			}
		}

		if err := s.record(ctx, repo, current.ID, EventRentalItemReturned, RentalItemEvent{
			itemLine:      line,
			StockRestored: true,
			ReturnDate:    &at,
			RentalClosed:  rentalClosed,
		}); err != nil {
			return err
		}

		rental, err = s.load(ctx, repo, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.itemsReturned.Add(ctx, 1)
	return rental, nil
}

// DeleteItem removes an item, giving back its stock if it was still out.
func (s *service) DeleteItem(ctx context.Context, itemID int64) (err error) {
	ctx, span := s.start(ctx, "delete_item", attribute.Int64("item.id", itemID))
	defer func() { finish(span, err) }()

	if itemID <= 0 {
		return apperr.Validation("item_id is required")
	}

	return s.store.InTx(ctx, func(repo Repository) error {
		current, it, err := s.lockItem(ctx, repo, itemID)
		if err != nil {
			return err
		}

		if err := repo.DeleteItem(ctx, it.ID); err != nil {
			return apperr.Store(err, "failed to delete rental item")
		}
		line := itemLine{ItemID: it.ID, BookID: it.BookID, Quantity: it.Quantity}
		restored := open(it.Status)
		if restored {
			if err := s.restock(ctx, repo, []itemLine{line}); err != nil {
				return err
			}
		}
		return s.record(ctx, repo, current.ID, EventRentalItemDeleted, RentalItemEvent{
			itemLine:      line,
			StockRestored: restored,
		})
	})
}

// DeleteRental soft-deletes one rental.
func (s *service) DeleteRental(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperr.Validation("id is required")
	}
	n, err := s.DeleteRentals(ctx, []int64{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("rental %d not found", id)
	}
	return nil
}

// DeleteRentals soft-deletes rentals. Items and stock are left as they are.
func (s *service) DeleteRentals(ctx context.Context, ids []int64) (deleted int64, err error) {
	ctx, span := s.start(ctx, "delete_rentals", attribute.Int("rentals.count", len(ids)))
	defer func() { finish(span, err) }()

	if len(ids) == 0 {
		return 0, apperr.Validation("id or ids required")
	}

	err = s.store.InTx(ctx, func(repo Repository) error {
		now := s.now()
		done, err := repo.SoftDeleteRentals(ctx, ids, now)
		if err != nil {
			return apperr.Store(err, "failed to delete rentals")
		}
		for _, id := range done {
			if err := s.record(ctx, repo, id, EventRentalDeleted, map[string]any{"deleted_at": now}); err != nil {
				return err
			}
		}
		deleted = int64(len(done))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// PromoteOverdue moves active rentals and items past their due or end date
// to overdue.
func (s *service) PromoteOverdue(ctx context.Context) (res PromotionResult, err error) {
	ctx, span := s.start(ctx, "promote_overdue")
	defer func() { finish(span, err) }()

	now := s.now()
	err = s.store.InTx(ctx, func(repo Repository) error {
		res, err = repo.PromoteOverdue(ctx, now)
		return err
	})
	if err != nil {
		return PromotionResult{}, apperr.Store(err, "failed to promote overdue rentals")
	}

	s.mu.Lock()
	s.lastSweep = now
	s.mu.Unlock()

	span.SetAttributes(attribute.Int64("rentals.promoted", res.Rentals), attribute.Int64("items.promoted", res.Items))
	if total := res.Rentals + res.Items; total > 0 {
		s.overduePromoted.Add(ctx, total)
		s.log.WithFields(logrus.Fields{"rentals": res.Rentals, "items": res.Items}).Info("promoted overdue rentals")
	}
	return res, nil
}

// ensureFresh runs promotion ahead of a read unless a recent sweep covers
// it. Failures never block the read.
func (s *service) ensureFresh(ctx context.Context) {
	s.mu.Lock()
	fresh := s.freshness > 0 && !s.lastSweep.IsZero() && s.now().Sub(s.lastSweep) < s.freshness
	s.mu.Unlock()
	if fresh {
		return
	}
	if _, err := s.PromoteOverdue(ctx); err != nil {
		s.log.WithError(err).Warn("overdue promotion failed")
	}
}

// History returns the audit events of a rental, oldest first.
func (s *service) History(ctx context.Context, rentalID int64) (events []eventstore.Event, err error) {
	ctx, span := s.start(ctx, "history", attribute.Int64("rental.id", rentalID))
	defer func() { finish(span, err) }()

	if rentalID <= 0 {
		return nil, apperr.Validation("id is required")
	}
	events, err = s.store.LoadEvents(ctx, rentalID)
	if err != nil {
		return nil, apperr.Store(err, "failed to load rental history")
	}
	if len(events) == 0 {
		return nil, apperr.NotFound("no history for rental %d", rentalID)
	}
	return events, nil
}

func (s *service) lockRental(ctx context.Context, repo Repository, id int64) (*Rental, error) {
	r, err := repo.GetRental(ctx, id, true)
	if errors.Is(err, ErrNoRecord) {
		return nil, apperr.NotFound("rental %d not found", id)
	}
	if err != nil {
		return nil, apperr.Store(err, "failed to load rental")
	}
	return r, nil
}

// lockItem locks an item's rental and then the item. Items of soft-deleted
// rentals are not found.
func (s *service) lockItem(ctx context.Context, repo Repository, id int64) (*Rental, *Item, error) {
	it, err := s.getItem(ctx, repo, id, false)
	if err != nil {
		return nil, nil, err
	}
	rental, err := s.lockRental(ctx, repo, it.RentalID)
	if err != nil {
		return nil, nil, err
	}
	if it, err = s.getItem(ctx, repo, id, true); err != nil {
		return nil, nil, err
	}
	return rental, it, nil
}

func (s *service) getItem(ctx context.Context, repo Repository, id int64, forUpdate bool) (*Item, error) {
	it, err := repo.GetItem(ctx, id, forUpdate)
	if errors.Is(err, ErrNoRecord) {
		return nil, apperr.NotFound("rental item %d not found", id)
	}
	if err != nil {
		return nil, apperr.Store(err, "failed to load rental item")
	}
	return it, nil
}

// load reads a rental with its items.
func (s *service) load(ctx context.Context, repo Repository, id int64) (*Rental, error) {
	r, err := repo.GetRental(ctx, id, false)
	if errors.Is(err, ErrNoRecord) {
		return nil, apperr.NotFound("rental %d not found", id)
	}
	if err != nil {
		return nil, apperr.Store(err, "failed to load rental")
	}
	items, err := repo.ListItems(ctx, []int64{id})
	if err != nil {
		return nil, apperr.Store(err, "failed to load rental items")
	}
	r.attach(items)
	return r, nil
}

func (s *service) record(ctx context.Context, repo Repository, rentalID int64, eventType string, data any) error {
	if err := repo.AppendEvent(ctx, rentalID, eventType, data); err != nil {
		return apperr.Store(err, "failed to record %s", eventType)
	}
	return nil
}
