package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/metrics"
	"restaurant-orders/internal/models"
)

// memRepository keeps cloned aggregates so callers never share state with the store
type memRepository struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]*models.Order
	history     map[uuid.UUID][]models.StatusLogEntry
	completions []models.CompletionEvent

	// staleUpdates makes the next n UpdateStatus calls fail with a version conflict
	staleUpdates int
	// takenNumbers simulates numbers already persisted by another writer
	takenNumbers map[string]bool
	// blockWrites makes item updates and deletes wait for the caller's deadline
	blockWrites bool
}

func (r *memRepository) waitIfBlocked(ctx context.Context) error {
	if !r.blockWrites {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func newMemRepository() *memRepository {
	return &memRepository{
		orders:       map[uuid.UUID]*models.Order{},
		history:      map[uuid.UUID][]models.StatusLogEntry{},
		takenNumbers: map[string]bool{},
	}
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	return &c
}

func (r *memRepository) Create(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := o.RestaurantID.String() + "/" + o.OrderNumber
	if r.takenNumbers[key] {
		return fmt.Errorf("order number %s already taken: %w", o.OrderNumber, models.ErrConflict)
	}
	r.takenNumbers[key] = true
	r.orders[o.ID] = cloneOrder(o)
	r.history[o.ID] = append(r.history[o.ID], models.StatusLogEntry{
		ID: int64(len(r.history[o.ID]) + 1), OrderID: o.ID, Status: o.Status, ChangedBy: changedBy, ChangedAt: o.CreatedAt,
	})
	return nil
}

func (r *memRepository) Get(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, models.NotFoundError("order", id.String())
	}
	return cloneOrder(o), nil
}

func (r *memRepository) GetByItemID(_ context.Context, itemID uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if _, ok := o.Item(itemID); ok {
			return cloneOrder(o), nil
		}
	}
	return nil, models.NotFoundError("order item", itemID.String())
}

func (r *memRepository) List(_ context.Context, restaurantID uuid.UUID, status models.OrderStatus) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.orders {
		if o.RestaurantID == restaurantID && (status == "" || o.Status == status) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepository) UpdateStatus(_ context.Context, o *models.Order, change StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[o.ID]
	if !ok {
		return models.NotFoundError("order", o.ID.String())
	}
	if r.staleUpdates > 0 {
		r.staleUpdates--
		stored.Version++
	}
	if stored.Version != change.ExpectedVersion {
		return fmt.Errorf("order %s changed since version %d: %w", o.ID, change.ExpectedVersion, models.ErrConflict)
	}

	o.Version = change.ExpectedVersion + 1
	r.orders[o.ID] = cloneOrder(o)
	r.history[o.ID] = append(r.history[o.ID], models.StatusLogEntry{
		ID: int64(len(r.history[o.ID]) + 1), OrderID: o.ID, Status: o.Status,
		ChangedBy: change.ChangedBy, Notes: change.Notes, ChangedAt: o.UpdatedAt,
	})
	if change.Completion != nil {
		r.completions = append(r.completions, *change.Completion)
	}
	return nil
}

func (r *memRepository) UpdateItemStatus(ctx context.Context, o *models.Order, item *models.OrderItem, from models.ItemStatus) error {
	if err := r.waitIfBlocked(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[o.ID]
	if !ok {
		return models.NotFoundError("order", o.ID.String())
	}
	current, ok := stored.Item(item.ID)
	if !ok {
		return models.NotFoundError("order item", item.ID.String())
	}
	if current.Status != from {
		return fmt.Errorf("order item %s is no longer %s: %w", item.ID, from, models.ErrConflict)
	}
	*current = *item
	stored.UpdatedAt = o.UpdatedAt
	return nil
}

func (r *memRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.waitIfBlocked(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[id]; !ok {
		return models.NotFoundError("order", id.String())
	}
	delete(r.orders, id)
	delete(r.history, id)
	return nil
}

func (r *memRepository) History(_ context.Context, orderID uuid.UUID) ([]models.StatusLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.StatusLogEntry(nil), r.history[orderID]...), nil
}

func (r *memRepository) completionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completions)
}

type memCatalog struct {
	restaurants map[uuid.UUID]models.Restaurant
	tables      map[uuid.UUID]models.Table
	menu        map[uuid.UUID]models.MenuItem
}

func (c *memCatalog) GetRestaurant(_ context.Context, id uuid.UUID) (*models.Restaurant, error) {
	r, ok := c.restaurants[id]
	if !ok {
		return nil, models.NotFoundError("restaurant", id.String())
	}
	return &r, nil
}

func (c *memCatalog) GetTable(_ context.Context, id uuid.UUID) (*models.Table, error) {
	t, ok := c.tables[id]
	if !ok {
		return nil, models.NotFoundError("table", id.String())
	}
	return &t, nil
}

func (c *memCatalog) GetMenuItems(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error) {
	out := make(map[uuid.UUID]models.MenuItem, len(ids))
	for _, id := range ids {
		if item, ok := c.menu[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

// memSequencer is an atomic counter per restaurant and day
type memSequencer struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemSequencer() *memSequencer {
	return &memSequencer{counts: map[string]int64{}}
}

func (s *memSequencer) Next(_ context.Context, restaurantID uuid.UUID, day time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sequenceKey(restaurantID, day)
	s.counts[key]++
	return s.counts[key], nil
}

type notification struct {
	event   string
	orderID uuid.UUID
	old     string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) record(event string, id uuid.UUID, old string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{event: event, orderID: id, old: old})
}

func (n *recordingNotifier) OrderCreated(_ context.Context, o *models.Order, _ string) {
	n.record(models.EventOrderCreated, o.ID, "")
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, o *models.Order, old models.OrderStatus, _ string) {
	n.record(models.EventOrderStatusChange, o.ID, string(old))
}

func (n *recordingNotifier) ItemStatusChanged(_ context.Context, o *models.Order, _ *models.OrderItem, old models.ItemStatus, _ string) {
	n.record(models.EventItemStatusChange, o.ID, string(old))
}

func (n *recordingNotifier) OrderDeleted(_ context.Context, o *models.Order, _ string) {
	n.record(models.EventOrderDeleted, o.ID, "")
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	var c int
	for _, e := range n.events {
		if e.event == event {
			c++
		}
	}
	return c
}

// fixture is a restaurant with a table and two menu items priced 50000 and 30000
type fixture struct {
	svc        *Service
	repo       *memRepository
	catalog    *memCatalog
	notifier   *recordingNotifier
	sequencer  *memSequencer
	restaurant uuid.UUID
	table      uuid.UUID
	itemA      uuid.UUID
	itemB      uuid.UUID
	now        time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:       newMemRepository(),
		notifier:   &recordingNotifier{},
		sequencer:  newMemSequencer(),
		restaurant: uuid.New(),
		table:      uuid.New(),
		itemA:      uuid.New(),
		itemB:      uuid.New(),
		now:        time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	f.catalog = &memCatalog{
		restaurants: map[uuid.UUID]models.Restaurant{
			f.restaurant: {ID: f.restaurant, Name: "Pho 24", IsActive: true},
		},
		tables: map[uuid.UUID]models.Table{
			f.table: {ID: f.table, RestaurantID: f.restaurant, Number: 7},
		},
		menu: map[uuid.UUID]models.MenuItem{
			f.itemA: {ID: f.itemA, RestaurantID: f.restaurant, Name: "Pho Bo", Price: decimal.NewFromInt(50000), IsAvailable: true},
			f.itemB: {ID: f.itemB, RestaurantID: f.restaurant, Name: "Tra Da", Price: decimal.NewFromInt(30000), IsAvailable: true},
		},
	}

	numbers := NewNumberGenerator(f.sequencer, time.UTC)
	numbers.now = func() time.Time { return f.now }

	f.svc = NewService(f.repo, f.catalog, numbers, f.notifier, metrics.NewNop(), logger.Discard(), Options{})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) request() *models.CreateOrderRequest {
	table := f.table
	return &models.CreateOrderRequest{
		TableID:      &table,
		CustomerName: "  Lan  ",
		Items: []models.CreateOrderItemRequest{
			{MenuItemID: f.itemA, Quantity: 2},
			{MenuItemID: f.itemB, Quantity: 1, SpecialInstructions: "less ice"},
		},
	}
}
