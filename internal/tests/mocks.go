package tests

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tms/internal/domain"
	"tms/internal/redis"
	"tms/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK STORE
// ──────────────────────────────────────────────

// MockStore is an in-memory repository.Transactor. Transactions are
// serialized and run against a copy of the data that replaces the committed
// state only when the callback succeeds.
type MockStore struct {
	mu   sync.Mutex
	data *memData

	// Counters for verification
	TxCount       int32
	RollbackCount int32

	// Error injection
	CommitError error
}

type memData struct {
	dispatches map[string]*domain.Dispatch
	drivers    map[string]*domain.Driver
	bookings   map[string]*domain.Booking
}

func newMemData() *memData {
	return &memData{
		dispatches: make(map[string]*domain.Dispatch),
		drivers:    make(map[string]*domain.Driver),
		bookings:   make(map[string]*domain.Booking),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for id, v := range d.dispatches {
		cp := *v
		c.dispatches[id] = &cp
	}
	for id, v := range d.drivers {
		cp := *v
		c.drivers[id] = &cp
	}
	for id, v := range d.bookings {
		cp := *v
		c.bookings[id] = &cp
	}
	return c
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{data: newMemData()}
}

// WithinTx runs fn against a private copy of the committed data.
func (m *MockStore) WithinTx(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	atomic.AddInt32(&m.TxCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.data.clone()
	if err := fn(ctx, &memTxStore{data: work}); err != nil {
		atomic.AddInt32(&m.RollbackCount, 1)
		return err
	}
	if m.CommitError != nil {
		atomic.AddInt32(&m.RollbackCount, 1)
		return m.CommitError
	}
	m.data = work
	return nil
}

// Dispatches returns a repository reading and writing committed state.
func (m *MockStore) Dispatches() repository.DispatchRepository {
	return &memDispatchRepo{mu: &m.mu, data: func() *memData { return m.data }}
}

// Drivers returns a repository reading and writing committed state.
func (m *MockStore) Drivers() repository.DriverRepository {
	return &memDriverRepo{mu: &m.mu, data: func() *memData { return m.data }}
}

// Bookings returns a repository reading committed state.
func (m *MockStore) Bookings() repository.BookingRepository {
	return &memBookingRepo{mu: &m.mu, data: func() *memData { return m.data }}
}

// AddBooking seeds a booking.
func (m *MockStore) AddBooking(b *domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.data.bookings[b.ID] = &cp
}

// AddDriver seeds a driver.
func (m *MockStore) AddDriver(d *domain.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.data.drivers[d.ID] = &cp
}

// AddDispatch seeds a dispatch, bypassing uniqueness checks.
func (m *MockStore) AddDispatch(d *domain.Dispatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.data.dispatches[d.ID] = &cp
}

// GetDispatch returns a copy of a committed dispatch (for test assertions).
func (m *MockStore) GetDispatch(id string) *domain.Dispatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data.dispatches[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

// GetDriver returns a copy of a committed driver (for test assertions).
func (m *MockStore) GetDriver(id string) *domain.Driver {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data.drivers[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

// AllDispatches returns copies of every committed dispatch.
func (m *MockStore) AllDispatches() []*domain.Dispatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Dispatch, 0, len(m.data.dispatches))
	for _, d := range m.data.dispatches {
		cp := *d
		out = append(out, &cp)
	}
	return out
}

// CountDispatches returns the number of committed dispatches.
func (m *MockStore) CountDispatches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.dispatches)
}

type memTxStore struct {
	data *memData
}

func (s *memTxStore) Dispatches() repository.DispatchRepository {
	return &memDispatchRepo{data: func() *memData { return s.data }}
}

func (s *memTxStore) Drivers() repository.DriverRepository {
	return &memDriverRepo{data: func() *memData { return s.data }}
}

func (s *memTxStore) Bookings() repository.BookingRepository {
	return &memBookingRepo{data: func() *memData { return s.data }}
}

// lockFor takes mu when the repository is used outside a transaction.
func lockFor(mu *sync.Mutex) func() {
	if mu == nil {
		return func() {}
	}
	mu.Lock()
	return mu.Unlock
}

// ──────────────────────────────────────────────
// MOCK DISPATCH REPOSITORY
// ──────────────────────────────────────────────

type memDispatchRepo struct {
	mu   *sync.Mutex
	data func() *memData
}

func (r *memDispatchRepo) Create(ctx context.Context, d *domain.Dispatch) error {
	defer lockFor(r.mu)()
	data := r.data()
	for _, existing := range data.dispatches {
		if existing.BookingID == d.BookingID && existing.Status != domain.DispatchStatusCancelled {
			return repository.ErrBookingHasDispatch
		}
	}
	cp := *d
	data.dispatches[d.ID] = &cp
	return nil
}

func (r *memDispatchRepo) GetByID(ctx context.Context, id string) (*domain.Dispatch, error) {
	defer lockFor(r.mu)()
	d, ok := r.data().dispatches[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDispatchRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Dispatch, error) {
	return r.GetByID(ctx, id)
}

func (r *memDispatchRepo) GetCurrentByBookingID(ctx context.Context, bookingID string) (*domain.Dispatch, error) {
	defer lockFor(r.mu)()
	for _, d := range r.data().dispatches {
		if d.BookingID == bookingID && d.Status != domain.DispatchStatusCancelled {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memDispatchRepo) List(ctx context.Context, filter repository.DispatchFilter, page repository.Page) ([]*domain.Dispatch, error) {
	defer lockFor(r.mu)()
	var matched []*domain.Dispatch
	for _, d := range r.data().dispatches {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.BookingID != "" && d.BookingID != filter.BookingID {
			continue
		}
		if filter.AssignedDriverID != "" && d.AssignedDriverID != filter.AssignedDriverID {
			continue
		}
		cp := *d
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	page = page.Normalize()
	if page.Skip >= len(matched) {
		return []*domain.Dispatch{}, nil
	}
	end := page.Skip + page.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[page.Skip:end], nil
}

func (r *memDispatchRepo) Update(ctx context.Context, d *domain.Dispatch) error {
	defer lockFor(r.mu)()
	data := r.data()
	if _, ok := data.dispatches[d.ID]; !ok {
		return repository.ErrNotFound
	}
	if d.AssignedDriverID != "" && !d.Status.IsTerminal() {
		for _, other := range data.dispatches {
			if other.ID != d.ID && other.AssignedDriverID == d.AssignedDriverID && !other.Status.IsTerminal() {
				return repository.ErrDriverCommitted
			}
		}
	}
	cp := *d
	data.dispatches[d.ID] = &cp
	return nil
}

func (r *memDispatchRepo) Delete(ctx context.Context, id string) error {
	defer lockFor(r.mu)()
	data := r.data()
	if _, ok := data.dispatches[id]; !ok {
		return repository.ErrNotFound
	}
	delete(data.dispatches, id)
	return nil
}

func (r *memDispatchRepo) CountOpenByDriverID(ctx context.Context, driverID, excludeID string) (int, error) {
	defer lockFor(r.mu)()
	n := 0
	for _, d := range r.data().dispatches {
		if d.ID != excludeID && d.AssignedDriverID == driverID && !d.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (r *memDispatchRepo) ListCommittedDriverIDs(ctx context.Context) ([]string, error) {
	defer lockFor(r.mu)()
	seen := make(map[string]struct{})
	var ids []string
	for _, d := range r.data().dispatches {
		if d.AssignedDriverID == "" || d.Status.IsTerminal() {
			continue
		}
		if _, ok := seen[d.AssignedDriverID]; ok {
			continue
		}
		seen[d.AssignedDriverID] = struct{}{}
		ids = append(ids, d.AssignedDriverID)
	}
	return ids, nil
}

// ──────────────────────────────────────────────
// MOCK DRIVER REPOSITORY
// ──────────────────────────────────────────────

type memDriverRepo struct {
	mu   *sync.Mutex
	data func() *memData
}

func (r *memDriverRepo) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	defer lockFor(r.mu)()
	d, ok := r.data().drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDriverRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Driver, error) {
	return r.GetByID(ctx, id)
}

func (r *memDriverRepo) ListActive(ctx context.Context) ([]*domain.Driver, error) {
	defer lockFor(r.mu)()
	var out []*domain.Driver
	for _, d := range r.data().drivers {
		if d.Status == domain.DriverStatusActive && d.IsAvailable {
			cp := *d
			out = append(out, &cp)
		}
	}
	// Map order is random; the service must impose its own ordering.
	return out, nil
}

func (r *memDriverRepo) IncrementTotalTrips(ctx context.Context, id string) error {
	defer lockFor(r.mu)()
	d, ok := r.data().drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.TotalTrips++
	return nil
}

// ──────────────────────────────────────────────
// MOCK BOOKING REPOSITORY
// ──────────────────────────────────────────────

type memBookingRepo struct {
	mu   *sync.Mutex
	data func() *memData
}

func (r *memBookingRepo) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	defer lockFor(r.mu)()
	b, ok := r.data().bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStore.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]mockLock
	seq   int

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

type mockLock struct {
	token  string
	expiry time.Time
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]mockLock),
	}
}

func (m *MockLockStore) AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (string, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", m.AcquireError
	}
	if m.ForceAcquireFailure {
		return "", nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := "lock:driver:" + driverID
	if l, exists := m.locks[key]; exists && time.Now().Before(l.expiry) {
		return "", nil // Lock still held.
	}

	m.seq++
	token := fmt.Sprintf("token-%d", m.seq)
	m.locks[key] = mockLock{token: token, expiry: time.Now().Add(ttl)}
	return token, nil
}

func (m *MockLockStore) ReleaseDriverLock(ctx context.Context, driverID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := "lock:driver:" + driverID
	if l, ok := m.locks[key]; ok && l.token == token {
		delete(m.locks, key)
	}
	return nil
}

// Expire ends a held lock as if its TTL had passed (for test setup).
func (m *MockLockStore) Expire(driverID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, "lock:driver:"+driverID)
}

// IsLocked checks if a driver is locked (for test assertions).
func (m *MockLockStore) IsLocked(driverID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, exists := m.locks["lock:driver:"+driverID]
	return exists && time.Now().Before(l.expiry)
}

// ──────────────────────────────────────────────
// MOCK DISPATCH CACHE
// ──────────────────────────────────────────────

// MockDispatchCache is an in-memory DispatchCacheInterface with the same
// write ordering rules as the redis store.
type MockDispatchCache struct {
	mu      sync.Mutex
	entries map[string]redis.CachedDispatch

	// Counters
	HitCount        int32
	MissCount       int32
	InvalidateCount int32

	// Error injection
	GetError error
}

// NewMockDispatchCache creates a new mock dispatch cache.
func NewMockDispatchCache() *MockDispatchCache {
	return &MockDispatchCache{entries: make(map[string]redis.CachedDispatch)}
}

func (m *MockDispatchCache) GetDispatch(ctx context.Context, dispatchID string) (*redis.CachedDispatch, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.entries[dispatchID]
	if !ok || d.Deleted {
		atomic.AddInt32(&m.MissCount, 1)
		return nil, nil
	}
	atomic.AddInt32(&m.HitCount, 1)
	return &d, nil
}

func (m *MockDispatchCache) SetDispatch(ctx context.Context, d *redis.CachedDispatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := *d
	next.Version = d.UpdatedAt.UnixMicro()
	if cur, ok := m.entries[d.ID]; ok && cur.Version > next.Version {
		return nil
	}
	m.entries[d.ID] = next
	return nil
}

func (m *MockDispatchCache) FillDispatch(ctx context.Context, d *redis.CachedDispatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[d.ID]; ok {
		return nil
	}
	next := *d
	next.Version = d.UpdatedAt.UnixMicro()
	m.entries[d.ID] = next
	return nil
}

func (m *MockDispatchCache) InvalidateDispatch(ctx context.Context, dispatchID string) error {
	atomic.AddInt32(&m.InvalidateCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[dispatchID] = redis.CachedDispatch{ID: dispatchID, Deleted: true}
	return nil
}

// Has reports whether a live dispatch is cached (for test assertions).
func (m *MockDispatchCache) Has(dispatchID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.entries[dispatchID]
	return ok && !d.Deleted
}

// Evict drops an entry as if its TTL had passed (for test setup).
func (m *MockDispatchCache) Evict(dispatchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, dispatchID)
}

// Cached returns the live cached copy of a dispatch, or nil.
func (m *MockDispatchCache) Cached(dispatchID string) *redis.CachedDispatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.entries[dispatchID]
	if !ok || d.Deleted {
		return nil
	}
	return &d
}

// ──────────────────────────────────────────────
// MOCK EVENT PUBLISHER
// ──────────────────────────────────────────────

// MockPublisher records published dispatch events.
type MockPublisher struct {
	mu     sync.Mutex
	events []domain.DispatchEvent

	// Error injection
	PublishError error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, event domain.DispatchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.PublishError
}

// Events returns a copy of the recorded events.
func (m *MockPublisher) Events() []domain.DispatchEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DispatchEvent(nil), m.events...)
}

// Types returns the recorded event types in order.
func (m *MockPublisher) Types() []domain.DispatchEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DispatchEventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// ──────────────────────────────────────────────
// MOCK METRICS
// ──────────────────────────────────────────────

// MockMetrics records service measurements.
type MockMetrics struct {
	mu          sync.Mutex
	outcomes    map[string][]string
	transitions []string
	available   int
}

// NewMockMetrics creates a new mock metrics recorder.
func NewMockMetrics() *MockMetrics {
	return &MockMetrics{outcomes: make(map[string][]string), available: -1}
}

func (m *MockMetrics) ObserveOperation(op, outcome string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[op] = append(m.outcomes[op], outcome)
}

func (m *MockMetrics) IncTransition(from, to domain.DispatchStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, string(from)+"->"+string(to))
}

func (m *MockMetrics) SetAvailableDrivers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = n
}

// Outcomes returns the outcomes recorded for op.
func (m *MockMetrics) Outcomes(op string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outcomes[op]...)
}

// Transitions returns the recorded transitions as "from->to".
func (m *MockMetrics) Transitions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.transitions...)
}

// Available returns the last available-driver gauge value, -1 if unset.
func (m *MockMetrics) Available() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// ──────────────────────────────────────────────
// FIXTURES
// ──────────────────────────────────────────────

// FixedClock returns a clock frozen at t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// BaseTime is a fixed Wednesday noon used as "now" across fixtures.
var BaseTime = time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)

// ActiveDriver returns a driver that passes every assignability check at BaseTime.
func ActiveDriver(id string) *domain.Driver {
	return &domain.Driver{
		ID:            id,
		Name:          "Driver " + id,
		LicenseExpiry: BaseTime.AddDate(1, 0, 0),
		Status:        domain.DriverStatusActive,
		IsAvailable:   true,
		Rating:        4.5,
	}
}

// Booking returns a minimal booking fixture.
func Booking(id string) *domain.Booking {
	return &domain.Booking{
		ID:          id,
		Source:      "Warehouse A",
		Destination: "Depot B",
		ServiceType: "ftl",
		Price:       1200,
		Status:      "confirmed",
		CreatedAt:   BaseTime.Add(-time.Hour),
		UpdatedAt:   BaseTime.Add(-time.Hour),
	}
}
