package circulation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore/internal/apperr"
	"bookstore/internal/jsonx"
	"bookstore/internal/paging"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	svc   Service
	store *memStore
	clock *testClock
	hook  *test.Hook
}

const (
	bookDune    int64 = 1
	bookEmma    int64 = 2
	bookAtlas   int64 = 3 // reference only, not rentable
	userAlice   int64 = 10
	userBob     int64 = 11
	unknownUser int64 = 99
)

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := newMemStore()
	store.addUser(userAlice, "Alice Nguyen", "alice@example.com")
	store.addUser(userBob, "Bob Tran", "bob@example.com")
	store.addBook(bookDune, "Dune", 5, true)
	store.addBook(bookEmma, "Emma", 3, true)
	store.addBook(bookAtlas, "World Atlas", 4, false)

	clock := &testClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return &fixture{
		svc:   NewService(store, logger, opts...),
		store: store,
		clock: clock,
		hook:  hook,
	}
}

func jt(t time.Time) *jsonx.Time { return &jsonx.Time{Time: t} }

func (f *fixture) rent(t *testing.T, due time.Time, lines ...ItemInput) *Rental {
	t.Helper()
	r, err := f.svc.CreateRental(context.Background(), CreateRentalRequest{
		UserID:  userAlice,
		Items:   lines,
		DueDate: jt(due),
	})
	require.NoError(t, err)
	return r
}

func statuses(r *Rental) []string {
	out := make([]string, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Status
	}
	return out
}

func TestCreateRentalDecrementsStock(t *testing.T) {
	f := newFixture(t)
	due := f.clock.t.Add(7 * 24 * time.Hour)
	notes := "front desk"

	r, err := f.svc.CreateRental(context.Background(), CreateRentalRequest{
		UserID: userAlice,
		Items: []ItemInput{
			{BookID: bookDune, Quantity: 2},
			{BookID: bookEmma, Quantity: 1},
			{BookID: bookDune},
		},
		DueDate: jt(due),
		Notes:   &notes,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusActive, r.Status)
	assert.Equal(t, "Alice Nguyen", r.UserName)
	assert.Equal(t, "Dune, Emma, Dune", r.BookTitles)
	require.Len(t, r.Items, 3, "duplicate book lines stay separate rows")
	assert.Equal(t, 1, r.Items[2].Quantity, "quantity defaults to 1")
	for _, it := range r.Items {
		assert.Equal(t, userAlice, it.UserID)
		require.NotNil(t, it.StartDate)
		assert.True(t, it.StartDate.Equal(f.clock.t), "start defaults to the rental date")
		require.NotNil(t, it.EndDate)
		assert.True(t, it.EndDate.Equal(due), "end defaults to the due date")
	}

	assert.Equal(t, 2, f.store.stock(bookDune))
	assert.Equal(t, 2, f.store.stock(bookEmma))
}

func TestCreateRentalRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		req  CreateRentalRequest
		kind apperr.Kind
	}{
		{"missing user", CreateRentalRequest{Items: []ItemInput{{BookID: bookDune}}}, apperr.KindValidation},
		{"unknown user", CreateRentalRequest{UserID: unknownUser, Items: []ItemInput{{BookID: bookDune}}}, apperr.KindValidation},
		{"no items", CreateRentalRequest{UserID: userAlice}, apperr.KindValidation},
		{"missing book id", CreateRentalRequest{UserID: userAlice, Items: []ItemInput{{BookID: bookDune}, {Quantity: 1}}}, apperr.KindValidation},
		{"unknown book", CreateRentalRequest{UserID: userAlice, Items: []ItemInput{{BookID: 404}}}, apperr.KindNotFound},
		{"not rentable", CreateRentalRequest{UserID: userAlice, Items: []ItemInput{{BookID: bookAtlas}}}, apperr.KindValidation},
		{"over stock", CreateRentalRequest{UserID: userAlice, Items: []ItemInput{{BookID: bookEmma, Quantity: 4}}}, apperr.KindValidation},
		{"over stock once summed", CreateRentalRequest{UserID: userAlice, Items: []ItemInput{
			{BookID: bookEmma, Quantity: 2},
			{BookID: bookDune, Quantity: 1},
			{BookID: bookEmma, Quantity: 2},
		}}, apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateRental(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))

			assert.Empty(t, f.store.st.rentals, "no header inserted")
			assert.Empty(t, f.store.st.items, "no items inserted")
			assert.Equal(t, 5, f.store.stock(bookDune))
			assert.Equal(t, 3, f.store.stock(bookEmma))
		})
	}
}

func TestCreateRentalRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.failAt("InsertItem", 1)

	_, err := f.svc.CreateRental(context.Background(), CreateRentalRequest{
		UserID: userAlice,
		Items:  []ItemInput{{BookID: bookDune, Quantity: 2}, {BookID: bookEmma, Quantity: 1}},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.ErrorIs(t, err, errInjected)

	assert.Empty(t, f.store.st.rentals)
	assert.Empty(t, f.store.st.items)
	assert.Empty(t, f.store.st.events)
	assert.Equal(t, 5, f.store.stock(bookDune))
	assert.Equal(t, 3, f.store.stock(bookEmma))
}

func TestAddItem(t *testing.T) {
	f := newFixture(t)
	due := f.clock.t.Add(48 * time.Hour)
	r := f.rent(t, due, ItemInput{BookID: bookDune})

	item, err := f.svc.AddItem(context.Background(), AddItemRequest{
		RentalID:  r.ID,
		ItemInput: ItemInput{BookID: bookEmma, Quantity: -3},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, item.Quantity, "quantity is floored at 1")
	assert.Equal(t, userAlice, item.UserID, "item inherits the rental's user")
	assert.Equal(t, "Emma", item.BookTitle)
	assert.Equal(t, StatusActive, item.Status)
	require.NotNil(t, item.EndDate)
	assert.True(t, item.EndDate.Equal(due))
	assert.Equal(t, 2, f.store.stock(bookEmma))

	_, err = f.svc.AddItem(context.Background(), AddItemRequest{RentalID: 999, ItemInput: ItemInput{BookID: bookEmma}})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.AddItem(context.Background(), AddItemRequest{RentalID: r.ID, ItemInput: ItemInput{BookID: 404}})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.AddItem(context.Background(), AddItemRequest{RentalID: r.ID, ItemInput: ItemInput{BookID: bookAtlas}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.AddItem(context.Background(), AddItemRequest{RentalID: r.ID, ItemInput: ItemInput{BookID: bookEmma, Quantity: 3}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, 2, f.store.stock(bookEmma), "failed add leaves stock alone")

	_, err = f.svc.AddItem(context.Background(), AddItemRequest{ItemInput: ItemInput{BookID: bookEmma}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestAddItemRejectsClosedRentals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	returned := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})
	_, err := f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: returned.ID, ReturnAll: true})
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, AddItemRequest{RentalID: returned.ID, ItemInput: ItemInput{BookID: bookEmma}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	deleted := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})
	require.NoError(t, f.svc.DeleteRental(ctx, deleted.ID))
	_, err = f.svc.AddItem(ctx, AddItemRequest{RentalID: deleted.ID, ItemInput: ItemInput{BookID: bookEmma}})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestPromoteOverdueIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	late := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune}, ItemInput{BookID: bookEmma})
	onTime := f.rent(t, f.clock.t.Add(72*time.Hour), ItemInput{BookID: bookDune})

	f.clock.Advance(2 * time.Hour)
	res, err := f.svc.PromoteOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, PromotionResult{Rentals: 1, Items: 2}, res)

	again, err := f.svc.PromoteOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, PromotionResult{}, again)

	got, err := f.svc.GetRental(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)
	assert.Equal(t, []string{StatusOverdue, StatusOverdue}, statuses(got))

	got, err = f.svc.GetRental(ctx, onTime.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}

func TestReadsPromoteOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})
	f.clock.Advance(2 * time.Hour)

	got, err := f.svc.GetRental(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)

	page, err := f.svc.ListRentals(ctx, ListFilter{Params: paging.New(1, 10, ""), Status: StatusOverdue})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Meta.Total)
}

func TestReadFreshnessSkipsRecentSweep(t *testing.T) {
	f := newFixture(t, WithReadFreshness(time.Minute))
	ctx := context.Background()

	_, err := f.svc.PromoteOverdue(ctx)
	require.NoError(t, err)

	r := f.rent(t, f.clock.t.Add(10*time.Second), ItemInput{BookID: bookDune})
	f.clock.Advance(20 * time.Second)

	got, err := f.svc.GetRental(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status, "sweep is still fresh")

	f.clock.Advance(time.Minute)
	got, err = f.svc.GetRental(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)
}

func TestPromotionFailureDoesNotBlockReads(t *testing.T) {
	f := newFixture(t)
	r := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})
	f.clock.Advance(2 * time.Hour)
	f.store.failAt("PromoteOverdue", 0)

	got, err := f.svc.GetRental(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)

	require.NotNil(t, f.hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, f.hook.LastEntry().Level)
	assert.Equal(t, "overdue promotion failed", f.hook.LastEntry().Message)
}

func TestUpdateRejectsManualOverdue(t *testing.T) {
	f := newFixture(t)
	r := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})

	_, err := f.svc.UpdateRental(context.Background(), UpdateRentalRequest{
		ID:     r.ID,
		Status: jsonx.Some(StatusOverdue),
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, StatusActive, f.store.st.rentals[r.ID].Status)
}

func TestReactivateExtendsDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune}, ItemInput{BookID: bookEmma})
	f.clock.Advance(3 * time.Hour)
	_, err := f.svc.PromoteOverdue(ctx)
	require.NoError(t, err)

	got, err := f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, Status: jsonx.Some(StatusActive)})
	require.NoError(t, err)

	want := f.clock.t.Add(24 * time.Hour)
	assert.Equal(t, StatusActive, got.Status)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(want))
	for _, it := range got.Items {
		assert.Equal(t, StatusActive, it.Status)
		assert.True(t, it.EndDate.Equal(want))
	}
	assert.Equal(t, 4, f.store.stock(bookDune), "reactivation does not touch stock")
}

func TestReactivateWithExplicitFutureDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})
	f.clock.Advance(3 * time.Hour)
	_, err := f.svc.PromoteOverdue(ctx)
	require.NoError(t, err)

	due := f.clock.t.Add(5 * 24 * time.Hour)
	got, err := f.svc.UpdateRental(ctx, UpdateRentalRequest{
		ID:      r.ID,
		Status:  jsonx.Some(StatusActive),
		DueDate: jsonx.Some(jsonx.Time{Time: due}),
	})
	require.NoError(t, err)
	assert.True(t, got.DueDate.Equal(due))
	assert.True(t, got.Items[0].EndDate.Equal(due))
}

func TestFutureDueDateRevertsOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})
	f.clock.Advance(3 * time.Hour)
	_, err := f.svc.PromoteOverdue(ctx)
	require.NoError(t, err)

	past := f.clock.t.Add(-time.Hour)
	got, err := f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, DueDate: jsonx.Some(jsonx.Time{Time: past})})
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status, "a past due date keeps the rental overdue")

	future := f.clock.t.Add(48 * time.Hour)
	got, err = f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, DueDate: jsonx.Some(jsonx.Time{Time: future})})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, []string{StatusActive}, statuses(got))
	assert.True(t, got.Items[0].EndDate.Equal(future))
}

func TestReturnAllRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(24*time.Hour),
		ItemInput{BookID: bookDune, Quantity: 2},
		ItemInput{BookID: bookEmma, Quantity: 1})
	assert.Equal(t, 3, f.store.stock(bookDune))
	assert.Equal(t, 2, f.store.stock(bookEmma))

	f.clock.Advance(time.Hour)
	got, err := f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, ReturnAll: true})
	require.NoError(t, err)

	assert.Equal(t, 5, f.store.stock(bookDune))
	assert.Equal(t, 3, f.store.stock(bookEmma))
	assert.Equal(t, StatusReturned, got.Status)
	require.NotNil(t, got.ReturnDate)
	assert.True(t, got.ReturnDate.Equal(f.clock.t))
	assert.Equal(t, []string{StatusReturned, StatusReturned}, statuses(got))
	for _, it := range got.Items {
		assert.True(t, it.EndDate.Equal(f.clock.t))
	}

	_, err = f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, ReturnAll: true})
	require.NoError(t, err)
	assert.Equal(t, 5, f.store.stock(bookDune), "returning twice restores nothing more")
}

func TestStatusReturnedUsesGivenReturnDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})
	f.clock.Advance(2 * time.Hour)
	_, err := f.svc.PromoteOverdue(ctx)
	require.NoError(t, err)

	at := f.clock.t.Add(-30 * time.Minute)
	got, err := f.svc.UpdateRental(ctx, UpdateRentalRequest{
		ID:         r.ID,
		Status:     jsonx.Some(StatusReturned),
		ReturnDate: jsonx.Some(jsonx.Time{Time: at}),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, got.Status)
	assert.True(t, got.ReturnDate.Equal(at))
	assert.True(t, got.Items[0].EndDate.Equal(at))
	assert.Equal(t, 5, f.store.stock(bookDune))
}

func TestReturnedRentalCannotReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})
	_, err := f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, ReturnAll: true})
	require.NoError(t, err)

	_, err = f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, Status: jsonx.Some(StatusActive)})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestUpdateFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})

	got, err := f.svc.UpdateRental(ctx, UpdateRentalRequest{
		ID:     r.ID,
		UserID: jsonx.Some(userBob),
		Notes:  jsonx.Some("call before pickup"),
	})
	require.NoError(t, err)
	assert.Equal(t, userBob, got.UserID)
	assert.Equal(t, "Bob Tran", got.UserName)
	require.NotNil(t, got.Notes)
	assert.Equal(t, "call before pickup", *got.Notes)

	got, err = f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, Notes: jsonx.Null[string]()})
	require.NoError(t, err)
	assert.Nil(t, got.Notes, "explicit null clears the field")

	at := f.clock.t.Add(-time.Hour)
	got, err = f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, ReturnDate: jsonx.Some(jsonx.Time{Time: at})})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status, "return_date alone does not return the rental")
	assert.True(t, got.ReturnDate.Equal(at))

	_, err = f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, UserID: jsonx.Some(unknownUser)})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, Status: jsonx.Some("lost")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: 999, Notes: jsonx.Some("x")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.UpdateRental(ctx, UpdateRentalRequest{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestUpdateRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour),
		ItemInput{BookID: bookDune, Quantity: 2},
		ItemInput{BookID: bookEmma, Quantity: 1})
	f.store.failAt("CloseItem", 1)

	_, err := f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, ReturnAll: true})
	require.Error(t, err)
	assert.Equal(t, 3, f.store.stock(bookDune))
	assert.Equal(t, 2, f.store.stock(bookEmma))
	assert.Equal(t, StatusActive, f.store.st.rentals[r.ID].Status)
}

func TestReturnItemClosesRentalWhenLastItemReturns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour),
		ItemInput{BookID: bookDune, Quantity: 2},
		ItemInput{BookID: bookEmma, Quantity: 1})
	first, second := r.Items[0].ID, r.Items[1].ID

	got, err := f.svc.ReturnItem(ctx, ReturnItemRequest{ItemID: first})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.Nil(t, got.ReturnDate)
	assert.Equal(t, 5, f.store.stock(bookDune))
	assert.Equal(t, 2, f.store.stock(bookEmma))

	_, err = f.svc.ReturnItem(ctx, ReturnItemRequest{ItemID: first})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "an item returns once")

	at := f.clock.t.Add(time.Minute)
	got, err = f.svc.ReturnItem(ctx, ReturnItemRequest{ItemID: second, ReturnDate: jt(at)})
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, got.Status)
	assert.True(t, got.ReturnDate.Equal(at))
	assert.Equal(t, 3, f.store.stock(bookEmma))

	_, err = f.svc.ReturnItem(ctx, ReturnItemRequest{ItemID: 999})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteItemRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour),
		ItemInput{BookID: bookDune, Quantity: 2},
		ItemInput{BookID: bookEmma, Quantity: 1})

	require.NoError(t, f.svc.DeleteItem(ctx, r.Items[0].ID))
	assert.Equal(t, 5, f.store.stock(bookDune))
	assert.NotContains(t, f.store.st.items, r.Items[0].ID)

	_, err := f.svc.ReturnItem(ctx, ReturnItemRequest{ItemID: r.Items[1].ID})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteItem(ctx, r.Items[1].ID))
	assert.Equal(t, 3, f.store.stock(bookEmma), "a returned item already gave its stock back")

	err = f.svc.DeleteItem(ctx, r.Items[0].ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

// staleItems serves LockItems from an earlier read, the view a return sees
// when another transaction removed an item after the list was taken.
type staleItems struct {
	*memStore
	items []Item
}

func (s *staleItems) InTx(ctx context.Context, fn func(Repository) error) error {
	return s.memStore.InTx(ctx, func(Repository) error { return fn(s) })
}

func (s *staleItems) LockItems(ctx context.Context, rentalID int64) ([]Item, error) {
	return s.items, nil
}

func TestReturnAllRestocksOnlyItemsItCloses(t *testing.T) {
	store := newMemStore()
	store.addUser(userAlice, "Alice Nguyen", "alice@example.com")
	store.addBook(bookDune, "Dune", 5, true)
	store.addBook(bookEmma, "Emma", 3, true)
	stale := &staleItems{memStore: store}
	logger, _ := test.NewNullLogger()
	svc := NewService(stale, logger)
	ctx := context.Background()

	r, err := svc.CreateRental(ctx, CreateRentalRequest{
		UserID: userAlice,
		Items:  []ItemInput{{BookID: bookDune, Quantity: 2}, {BookID: bookEmma}},
	})
	require.NoError(t, err)
	stale.items = r.Items

	require.NoError(t, svc.DeleteItem(ctx, r.Items[0].ID))
	assert.Equal(t, 5, store.stock(bookDune))

	got, err := svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, ReturnAll: true})
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, got.Status)
	assert.Equal(t, 5, store.stock(bookDune), "a deleted item gives its stock back once")
	assert.Equal(t, 3, store.stock(bookEmma))
}

func TestWritersLockRentalThenItemsThenBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour),
		ItemInput{BookID: bookEmma},
		ItemInput{BookID: bookEmma},
		ItemInput{BookID: bookDune, Quantity: 2})
	rentalLock := fmt.Sprintf("rental %d", r.ID)
	item := func(i int) string { return fmt.Sprintf("item %d", r.Items[i].ID) }
	book := func(id int64) string { return fmt.Sprintf("book %d", id) }

	f.store.locks = nil
	_, err := f.svc.ReturnItem(ctx, ReturnItemRequest{ItemID: r.Items[0].ID})
	require.NoError(t, err)
	assert.Equal(t, []string{rentalLock, item(0), book(bookEmma)}, f.store.locks)

	f.store.locks = nil
	_, err = f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, ReturnAll: true})
	require.NoError(t, err)
	assert.Equal(t, []string{rentalLock, item(0), item(1), item(2), book(bookDune), book(bookEmma)}, f.store.locks,
		"books are restocked in id order whatever the item order")

	other := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})
	f.store.locks = nil
	require.NoError(t, f.svc.DeleteItem(ctx, other.Items[0].ID))
	assert.Equal(t, []string{
		fmt.Sprintf("rental %d", other.ID),
		fmt.Sprintf("item %d", other.Items[0].ID),
		book(bookDune),
	}, f.store.locks)
}

func TestDeleteItemOfDeletedRentalIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})
	require.NoError(t, f.svc.DeleteRental(ctx, r.ID))

	err := f.svc.DeleteItem(ctx, r.Items[0].ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, 4, f.store.stock(bookDune))
}

func TestDeleteRentalsIsSoft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune, Quantity: 2})
	b := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookEmma})
	c := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookEmma})

	require.NoError(t, f.svc.DeleteRental(ctx, a.ID))
	assert.Equal(t, 3, f.store.stock(bookDune), "soft delete leaves stock untouched")
	assert.Len(t, f.store.st.items, 3, "soft delete leaves items in place")

	_, err := f.svc.GetRental(ctx, a.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(f.svc.DeleteRental(ctx, a.ID), apperr.KindNotFound))

	n, err := f.svc.DeleteRentals(ctx, []int64{a.ID, b.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	page, err := f.svc.ListRentals(ctx, ListFilter{Params: paging.New(1, 10, "")})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, c.ID, page.Data[0].ID)

	f.clock.Advance(2 * time.Hour)
	res, err := f.svc.PromoteOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, PromotionResult{Rentals: 1, Items: 1}, res, "deleted rentals are not promoted")

	_, err = f.svc.DeleteRentals(ctx, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestHistoryRecordsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.rent(t, f.clock.t.Add(time.Hour), ItemInput{BookID: bookDune})
	_, err := f.svc.AddItem(ctx, AddItemRequest{RentalID: r.ID, ItemInput: ItemInput{BookID: bookEmma}})
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.PromoteOverdue(ctx)
	require.NoError(t, err)
	_, err = f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, Status: jsonx.Some(StatusActive), Notes: jsonx.Some("extended")})
	require.NoError(t, err)
	_, err = f.svc.UpdateRental(ctx, UpdateRentalRequest{ID: r.ID, ReturnAll: true})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteRental(ctx, r.ID))

	events, err := f.svc.History(ctx, r.ID)
	require.NoError(t, err)
	var types []string
	for i, e := range events {
		assert.Equal(t, i+1, e.Version)
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{
		EventRentalCreated,
		EventRentalItemAdded,
		EventRentalReactivated,
		EventRentalUpdated,
		EventRentalReturned,
		EventRentalDeleted,
	}, types)

	_, err = f.svc.History(ctx, 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListRentalsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := f.clock.t.Add(time.Hour)
	f.rent(t, due, ItemInput{BookID: bookDune})
	emma := f.rent(t, due, ItemInput{BookID: bookEmma})
	bob, err := f.svc.CreateRental(ctx, CreateRentalRequest{UserID: userBob, Items: []ItemInput{{BookID: bookDune}}})
	require.NoError(t, err)

	page, err := f.svc.ListRentals(ctx, ListFilter{Params: paging.New(1, 2, "")})
	require.NoError(t, err)
	assert.Equal(t, paging.Meta{Total: 3, PerPage: 2, CurrentPage: 1, LastPage: 2}, page.Meta)
	require.Len(t, page.Data, 2)
	assert.Equal(t, bob.ID, page.Data[0].ID, "newest first")
	assert.Equal(t, "Dune", page.Data[0].BookTitles)

	page, err = f.svc.ListRentals(ctx, ListFilter{Params: paging.New(1, 10, "BOB@")})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, bob.ID, page.Data[0].ID)

	page, err = f.svc.ListRentals(ctx, ListFilter{Params: paging.New(1, 10, ""), BookID: bookEmma})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, emma.ID, page.Data[0].ID)

	page, err = f.svc.ListRentals(ctx, ListFilter{Params: paging.New(1, 10, ""), UserID: userAlice})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Meta.Total)

	_, err = f.svc.ListRentals(ctx, ListFilter{Params: paging.New(1, 10, ""), Status: "missing"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
