package circulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bookstore/internal/eventstore"
)

var errInjected = errors.New("injected store failure")

type memUser struct {
	Name, Email string
}

type memState struct {
	users      map[int64]memUser
	books      map[int64]Book
	rentals    map[int64]Rental
	items      map[int64]Item
	events     map[int64][]eventstore.Event
	nextRental int64
	nextItem   int64
}

func (s *memState) clone() *memState {
	c := &memState{
		users:      make(map[int64]memUser, len(s.users)),
		books:      make(map[int64]Book, len(s.books)),
		rentals:    make(map[int64]Rental, len(s.rentals)),
		items:      make(map[int64]Item, len(s.items)),
		events:     make(map[int64][]eventstore.Event, len(s.events)),
		nextRental: s.nextRental,
		nextItem:   s.nextItem,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.rentals {
		c.rentals[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.events {
		c.events[k] = append([]eventstore.Event(nil), v...)
	}
	return c
}

// memStore is an in-memory Store. InTx restores a snapshot when fn fails.
type memStore struct {
	st *memState

	// failOn names a method that returns errInjected once it has been
	// called failAfter times.
	failOn    string
	failAfter int
	calls     map[string]int

	// locks records row locks and stock writes in the order they happen.
	locks []string
}

func newMemStore() *memStore {
	return &memStore{
		st: &memState{
			users:   map[int64]memUser{},
			books:   map[int64]Book{},
			rentals: map[int64]Rental{},
			items:   map[int64]Item{},
			events:  map[int64][]eventstore.Event{},
		},
		calls: map[string]int{},
	}
}

func (m *memStore) addUser(id int64, name, email string) {
	m.st.users[id] = memUser{Name: name, Email: email}
}

func (m *memStore) addBook(id int64, title string, stock int, rentable bool) {
	m.st.books[id] = Book{ID: id, Title: title, Stock: stock, IsRental: rentable}
}

func (m *memStore) stock(id int64) int { return m.st.books[id].Stock }

// outstanding sums the quantity of open items for a book.
func (m *memStore) outstanding(bookID int64) int {
	n := 0
	for _, it := range m.st.items {
		if it.BookID == bookID && open(it.Status) {
			n += it.Quantity
		}
	}
	return n
}

func (m *memStore) failAt(method string, after int) {
	m.failOn = method
	m.failAfter = after
}

func (m *memStore) check(method string) error {
	m.calls[method]++
	if m.failOn == method && m.calls[method] > m.failAfter {
		return errInjected
	}
	return nil
}

func (m *memStore) InTx(ctx context.Context, fn func(Repository) error) error {
	snapshot := m.st.clone()
	if err := fn(m); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *memStore) UserExists(ctx context.Context, id int64) (bool, error) {
	if err := m.check("UserExists"); err != nil {
		return false, err
	}
	_, ok := m.st.users[id]
	return ok, nil
}

func (m *memStore) LockBooks(ctx context.Context, ids []int64) (map[int64]Book, error) {
	if err := m.check("LockBooks"); err != nil {
		return nil, err
	}
	out := make(map[int64]Book)
	for _, id := range ids {
		if b, ok := m.st.books[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func (m *memStore) AdjustStock(ctx context.Context, bookID int64, delta int) error {
	if err := m.check("AdjustStock"); err != nil {
		return err
	}
	m.locks = append(m.locks, fmt.Sprintf("book %d", bookID))
	b, ok := m.st.books[bookID]
	if !ok || b.Stock+delta < 0 {
		return ErrInsufficientStock
	}
	b.Stock += delta
	m.st.books[bookID] = b
	return nil
}

func (m *memStore) InsertRental(ctx context.Context, r *Rental) error {
	if err := m.check("InsertRental"); err != nil {
		return err
	}
	m.st.nextRental++
	r.ID = m.st.nextRental
	r.CreatedAt = r.RentalDate
	r.UpdatedAt = r.RentalDate
	m.st.rentals[r.ID] = *r
	return nil
}

func (m *memStore) InsertItem(ctx context.Context, it *Item) error {
	if err := m.check("InsertItem"); err != nil {
		return err
	}
	m.st.nextItem++
	it.ID = m.st.nextItem
	m.st.items[it.ID] = *it
	return nil
}

func (m *memStore) GetRental(ctx context.Context, id int64, forUpdate bool) (*Rental, error) {
	if err := m.check("GetRental"); err != nil {
		return nil, err
	}
	r, ok := m.st.rentals[id]
	if !ok || r.DeletedAt != nil {
		return nil, ErrNoRecord
	}
	if forUpdate {
		m.locks = append(m.locks, fmt.Sprintf("rental %d", id))
	}
	u := m.st.users[r.UserID]
	r.UserName, r.UserEmail = u.Name, u.Email
	return &r, nil
}

func (m *memStore) withBook(it Item) Item {
	it.BookTitle = m.st.books[it.BookID].Title
	return it
}

func (m *memStore) GetItem(ctx context.Context, id int64, forUpdate bool) (*Item, error) {
	if err := m.check("GetItem"); err != nil {
		return nil, err
	}
	it, ok := m.st.items[id]
	if !ok {
		return nil, ErrNoRecord
	}
	if forUpdate {
		m.locks = append(m.locks, fmt.Sprintf("item %d", id))
	}
	it = m.withBook(it)
	return &it, nil
}

func (m *memStore) ListItems(ctx context.Context, rentalIDs []int64) ([]Item, error) {
	if err := m.check("ListItems"); err != nil {
		return nil, err
	}
	want := make(map[int64]bool, len(rentalIDs))
	for _, id := range rentalIDs {
		want[id] = true
	}
	items := []Item{}
	for _, it := range m.st.items {
		if want[it.RentalID] {
			items = append(items, m.withBook(it))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *memStore) LockItems(ctx context.Context, rentalID int64) ([]Item, error) {
	if err := m.check("LockItems"); err != nil {
		return nil, err
	}
	items := []Item{}
	for _, it := range m.st.items {
		if it.RentalID == rentalID {
			items = append(items, m.withBook(it))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	for _, it := range items {
		m.locks = append(m.locks, fmt.Sprintf("item %d", it.ID))
	}
	return items, nil
}

func (m *memStore) ListRentals(ctx context.Context, f ListFilter) ([]Rental, int, error) {
	if err := m.check("ListRentals"); err != nil {
		return nil, 0, err
	}
	q := strings.ToLower(f.Query)
	var matched []Rental
	for _, r := range m.st.rentals {
		if r.DeletedAt != nil {
			continue
		}
		u := m.st.users[r.UserID]
		r.UserName, r.UserEmail = u.Name, u.Email
		if q != "" {
			notes := ""
			if r.Notes != nil {
				notes = *r.Notes
			}
			hay := strings.ToLower(u.Name + "\x00" + u.Email + "\x00" + notes)
			if !strings.Contains(hay, q) {
				continue
			}
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.UserID > 0 && r.UserID != f.UserID {
			continue
		}
		if f.BookID > 0 && !m.hasBook(r.ID, f.BookID) {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.PerPage
	if end > total {
		end = total
	}
	return append([]Rental{}, matched[start:end]...), total, nil
}

func (m *memStore) hasBook(rentalID, bookID int64) bool {
	for _, it := range m.st.items {
		if it.RentalID == rentalID && it.BookID == bookID {
			return true
		}
	}
	return false
}

func (m *memStore) UpdateRental(ctx context.Context, id int64, p RentalPatch) error {
	if err := m.check("UpdateRental"); err != nil {
		return err
	}
	r, ok := m.st.rentals[id]
	if !ok {
		return ErrNoRecord
	}
	if p.UserID != nil {
		r.UserID = *p.UserID
	}
	if p.Notes.Set {
		r.Notes = p.Notes.Value
	}
	if p.DueDate.Set {
		r.DueDate = p.DueDate.Value
	}
	if p.ReturnDate.Set {
		r.ReturnDate = p.ReturnDate.Value
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	m.st.rentals[id] = r
	return nil
}

func (m *memStore) CloseItem(ctx context.Context, id int64, endDate time.Time) (bool, error) {
	if err := m.check("CloseItem"); err != nil {
		return false, err
	}
	it, ok := m.st.items[id]
	if !ok || !open(it.Status) {
		return false, nil
	}
	it.Status = StatusReturned
	it.EndDate = &endDate
	m.st.items[id] = it
	return true, nil
}

func (m *memStore) ReactivateOverdueItems(ctx context.Context, rentalID int64, end time.Time) (int64, error) {
	if err := m.check("ReactivateOverdueItems"); err != nil {
		return 0, err
	}
	var n int64
	for id, it := range m.st.items {
		if it.RentalID == rentalID && it.Status == StatusOverdue {
			e := end
			it.Status = StatusActive
			it.EndDate = &e
			m.st.items[id] = it
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteItem(ctx context.Context, id int64) error {
	if err := m.check("DeleteItem"); err != nil {
		return err
	}
	delete(m.st.items, id)
	return nil
}

func (m *memStore) SoftDeleteRentals(ctx context.Context, ids []int64, at time.Time) ([]int64, error) {
	if err := m.check("SoftDeleteRentals"); err != nil {
		return nil, err
	}
	deleted := []int64{}
	for _, id := range ids {
		r, ok := m.st.rentals[id]
		if !ok || r.DeletedAt != nil {
			continue
		}
		t := at
		r.DeletedAt = &t
		m.st.rentals[id] = r
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (m *memStore) PromoteOverdue(ctx context.Context, now time.Time) (PromotionResult, error) {
	var res PromotionResult
	if err := m.check("PromoteOverdue"); err != nil {
		return res, err
	}
	for id, r := range m.st.rentals {
		if r.Status == StatusActive && r.DueDate != nil && r.DueDate.Before(now) && r.DeletedAt == nil {
			r.Status = StatusOverdue
			m.st.rentals[id] = r
			res.Rentals++
		}
	}
	for id, it := range m.st.items {
		if m.st.rentals[it.RentalID].DeletedAt != nil {
			continue
		}
		if it.Status == StatusActive && it.EndDate != nil && it.EndDate.Before(now) {
			it.Status = StatusOverdue
			m.st.items[id] = it
			res.Items++
		}
	}
	return res, nil
}

func (m *memStore) AppendEvent(ctx context.Context, rentalID int64, eventType string, data any) error {
	if err := m.check("AppendEvent"); err != nil {
		return err
	}
	event, err := eventstore.NewEvent(eventType, data, nil)
	if err != nil {
		return err
	}
	event.AggregateID = eventstore.AggregateID(aggregateType, rentalID)
	event.AggregateType = aggregateType
	event.Version = len(m.st.events[rentalID]) + 1
	m.st.events[rentalID] = append(m.st.events[rentalID], event)
	return nil
}

func (m *memStore) LoadEvents(ctx context.Context, rentalID int64) ([]eventstore.Event, error) {
	if err := m.check("LoadEvents"); err != nil {
		return nil, err
	}
	return append([]eventstore.Event{}, m.st.events[rentalID]...), nil
}

var _ Store = (*memStore)(nil)
