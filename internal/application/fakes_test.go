package application

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/transaction"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/user"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
)

// === In-memory fakes ===
// トランザクションは取り消し操作の記録で表現し、Rollback で逆順に適用する

type fakeTx struct {
	mu         sync.Mutex
	undo       []func()
	committed  bool
	rolledBack bool
	commitErr  error
}

func (tx *fakeTx) record(fn func()) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.undo = append(tx.undo, fn)
}

func (tx *fakeTx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.commitErr != nil {
		return tx.commitErr
	}
	tx.committed = true
	tx.undo = nil
	return nil
}

func (tx *fakeTx) Rollback() error {
	tx.mu.Lock()
	undo := tx.undo
	tx.undo = nil
	done := tx.committed || tx.rolledBack
	tx.rolledBack = true
	tx.mu.Unlock()

	if done {
		return nil
	}
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	return nil
}

type fakeTxManager struct {
	mu        sync.Mutex
	beginErr  error
	commitErr error
	txs       []*fakeTx
}

func (m *fakeTxManager) Begin(_ context.Context) (transaction.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	tx := &fakeTx{commitErr: m.commitErr}
	m.txs = append(m.txs, tx)
	return tx, nil
}

type fakeInventory struct {
	mu       sync.Mutex
	sections []string
	bookedBy map[venue.SeatRef]*int64

	listErr    error
	bookErr    error
	releaseErr error

	// TryBook が呼ばれた順
	bookOrder []venue.SeatRef
}

// newFakeInventory は 区画 → 列番号 → 座席数 の配置から在庫を作る
func newFakeInventory(layout map[string]map[int]int) *fakeInventory {
	inv := &fakeInventory{bookedBy: make(map[venue.SeatRef]*int64)}
	for section, rows := range layout {
		inv.sections = append(inv.sections, section)
		for row, count := range rows {
			for seat := 1; seat <= count; seat++ {
				inv.bookedBy[venue.SeatRef{Section: section, Row: row, Seat: seat}] = nil
			}
		}
	}
	sort.Strings(inv.sections)
	return inv
}

func (f *fakeInventory) ListSections(_ context.Context) ([]venue.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]venue.Section, len(f.sections))
	for i, name := range f.sections {
		out[i] = venue.Section{ID: int64(i + 1), Name: name}
	}
	return out, nil
}

func (f *fakeInventory) ListRows(_ context.Context, section string) ([]venue.RowAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	byRow := make(map[int]*venue.RowAvailability)
	for ref, owner := range f.bookedBy {
		if ref.Section != section {
			continue
		}
		r, ok := byRow[ref.Row]
		if !ok {
			r = &venue.RowAvailability{Number: ref.Row}
			byRow[ref.Row] = r
		}
		r.TotalSeats++
		if owner == nil {
			r.FreeSeats++
		}
	}
	out := make([]venue.RowAvailability, 0, len(byRow))
	for _, r := range byRow {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (f *fakeInventory) ListSeats(_ context.Context, section string, row int) ([]venue.Seat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []venue.Seat
	for ref, owner := range f.bookedBy {
		if ref.InRow(section, row) {
			out = append(out, venue.Seat{Number: ref.Seat, BookedBy: owner})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (f *fakeInventory) TryBook(_ context.Context, tx transaction.Tx, ref venue.SeatRef, userID int64) error {
	ftx, ok := tx.(*fakeTx)
	if !ok {
		return errors.New("fake: unexpected tx")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bookErr != nil {
		return f.bookErr
	}
	f.bookOrder = append(f.bookOrder, ref)
	owner, exists := f.bookedBy[ref]
	if !exists {
		return venue.ErrSeatNotFound
	}
	if owner != nil {
		return venue.ErrSeatAlreadyBooked
	}
	id := userID
	f.bookedBy[ref] = &id
	ftx.record(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.bookedBy[ref] = nil
	})
	return nil
}

func (f *fakeInventory) TryRelease(_ context.Context, ref venue.SeatRef, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return f.releaseErr
	}
	owner := f.bookedBy[ref]
	if owner == nil || *owner != userID {
		return venue.ErrSeatNotOwned
	}
	f.bookedBy[ref] = nil
	return nil
}

func (f *fakeInventory) ListOwnedSeats(_ context.Context, userID int64) ([]venue.SeatRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []venue.SeatRef
	for ref, owner := range f.bookedBy {
		if owner != nil && *owner == userID {
			out = append(out, ref)
		}
	}
	slices.SortFunc(out, venue.CompareSeatRefs)
	return out, nil
}

// book はテスト準備用に座席を直接予約する
func (f *fakeInventory) book(ref venue.SeatRef, userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := userID
	f.bookedBy[ref] = &id
}

// remove はテスト準備用に座席を在庫から消す
func (f *fakeInventory) remove(ref venue.SeatRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bookedBy, ref)
}

// release はテスト準備用に座席を直接解放する
func (f *fakeInventory) release(ref venue.SeatRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookedBy[ref] = nil
}

func (f *fakeInventory) owner(ref venue.SeatRef) *int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookedBy[ref]
}

type fakeUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*user.User // external_id → user
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{nextID: 1, users: make(map[int64]*user.User)}
}

func (r *fakeUserRepository) Upsert(_ context.Context, tx transaction.Tx, u *user.User) error {
	ftx, ok := tx.(*fakeTx)
	if !ok {
		return errors.New("fake: unexpected tx")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for ext, other := range r.users {
		if ext != u.ExternalID && other.PhoneNumber == u.PhoneNumber {
			return user.ErrPhoneNumberTaken
		}
	}

	if existing, ok := r.users[u.ExternalID]; ok {
		prev := *existing
		existing.FullName = u.FullName
		existing.PhoneNumber = u.PhoneNumber
		u.ID = existing.ID
		ftx.record(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			*r.users[prev.ExternalID] = prev
		})
		return nil
	}

	stored := *u
	stored.ID = r.nextID
	r.nextID++
	r.users[u.ExternalID] = &stored
	u.ID = stored.ID
	ftx.record(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.users, stored.ExternalID)
	})
	return nil
}

func (r *fakeUserRepository) FindByExternalID(_ context.Context, externalID int64) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[externalID]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// seed はテスト準備用にユーザーを直接登録し users.id を返す
func (r *fakeUserRepository) seed(externalID int64, fullName, phone string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &user.User{ID: r.nextID, ExternalID: externalID, FullName: fullName, PhoneNumber: phone}
	r.nextID++
	r.users[externalID] = u
	return u.ID
}

// === Mock implementations ===

// MockEventPublisher implements venue.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, ev venue.BookingEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// MockTurnLocker implements TurnLocker
type MockTurnLocker struct {
	mock.Mock
	unlocked int
}

func (m *MockTurnLocker) Lock(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func() { m.unlocked++ }, nil
}
