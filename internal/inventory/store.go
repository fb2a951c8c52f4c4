package inventory

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	logx "stockwatch/pkg/logx"
)

type sale struct {
	at  time.Time
	qty int
}

// Store owns the product table and the activity log.
//
// It is safe for concurrent use. Mutations are totally ordered by the write
// lock; readers share the read lock and never observe a half-applied change.
type Store struct {
	path string
	log  logx.Logger
	now  func() time.Time

	mu         sync.RWMutex
	products   map[string]Product
	activities []ActivityRecord
	sales      map[string][]sale
	closed     bool

	// persistMu orders snapshot writes so an older snapshot never lands after a newer one.
	persistMu sync.Mutex
}

type Option func(*Store)

func WithLogger(log logx.Logger) Option { return func(s *Store) { s.log = log } }

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New returns an empty store persisted at path. Call Load to read existing state.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:     path,
		log:      logx.Nop(),
		now:      func() time.Time { return time.Now().UTC().Round(0) },
		products: map[string]Product{},
		sales:    map[string][]sale{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Store) Path() string { return s.path }

// AddProduct inserts a new product. It fails if id already exists.
func (s *Store) AddProduct(id, name string, quantity int, price float64, category string) error {
	const op = "add product"
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if err := validateFields(id, name, quantity, price); err != nil {
		return invalid(op, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.products[id]; ok {
		return invalid(op, id, ErrDuplicateProduct)
	}
	now := s.now()
	s.products[id] = Product{
		ID:          id,
		Name:        name,
		Category:    strings.TrimSpace(category),
		Quantity:    quantity,
		Price:       price,
		LastUpdated: now,
	}
	s.appendLocked(now, AgentExternal, ActionAddProduct,
		fmt.Sprintf("Added %s (ID: %s) with %d units at $%.2f", name, id, quantity, price))
	return nil
}

// SellProduct decrements stock by qty. It fails when the product is unknown,
// qty is not positive, or fewer than qty units are on hand.
func (s *Store) SellProduct(id string, qty int) error {
	const op = "sell product"
	if qty <= 0 {
		return invalid(op, id, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	p, ok := s.products[id]
	if !ok {
		return invalid(op, id, ErrUnknownProduct)
	}
	if p.Quantity < qty {
		return invalid(op, id, fmt.Errorf("%w: have %d, want %d", ErrInsufficientStock, p.Quantity, qty))
	}
	now := s.now()
	p.Quantity -= qty
	p.LastUpdated = now
	s.products[id] = p
	s.sales[id] = append(s.sales[id], sale{at: now, qty: qty})
	s.appendLocked(now, AgentExternal, ActionSellProduct, sellDetails(p.Name, id, qty, p.Quantity))
	return nil
}

// UpdateQuantity applies delta to the stock level. It fails when the product
// is unknown or the result would be negative.
func (s *Store) UpdateQuantity(id string, delta int) error {
	const op = "update quantity"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	p, ok := s.products[id]
	if !ok {
		return invalid(op, id, ErrUnknownProduct)
	}
	next := p.Quantity + delta
	if next < 0 {
		return invalid(op, id, fmt.Errorf("%w: %d%+d would be negative", ErrInvalidQuantity, p.Quantity, delta))
	}
	now := s.now()
	p.Quantity = next
	p.LastUpdated = now
	s.products[id] = p
	s.appendLocked(now, AgentExternal, ActionUpdateQuantity,
		fmt.Sprintf("Adjusted %s (ID: %s) by %+d to %d units", p.Name, id, delta, next))
	return nil
}

// UpsertProduct overwrites name, category, quantity and price of an existing
// product, or adds it when the id is new.
func (s *Store) UpsertProduct(p Product) error {
	const op = "save product"
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	if err := validateFields(p.ID, p.Name, p.Quantity, p.Price); err != nil {
		return invalid(op, p.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	now := s.now()
	p.LastUpdated = now
	_, exists := s.products[p.ID]
	s.products[p.ID] = p
	if exists {
		s.appendLocked(now, AgentExternal, ActionUpdateProduct, fmt.Sprintf("Updated %s (ID: %s)", p.Name, p.ID))
	} else {
		s.appendLocked(now, AgentExternal, ActionAddProduct,
			fmt.Sprintf("Added %s (ID: %s) with %d units at $%.2f", p.Name, p.ID, p.Quantity, p.Price))
	}
	return nil
}

// DeleteProduct removes a product and its sales history.
func (s *Store) DeleteProduct(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	p, ok := s.products[id]
	if !ok {
		return invalid("delete product", id, ErrUnknownProduct)
	}
	delete(s.products, id)
	delete(s.sales, id)
	s.appendLocked(s.now(), AgentExternal, ActionDeleteProduct, fmt.Sprintf("Deleted %s (ID: %s)", p.Name, id))
	return nil
}

// Append records an activity on behalf of agent.
func (s *Store) Append(agent Agent, action Action, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.appendLocked(s.now(), agent, action, details)
	return nil
}

func (s *Store) appendLocked(at time.Time, agent Agent, action Action, details string) {
	s.activities = append(s.activities, ActivityRecord{Timestamp: at, Agent: agent, Action: action, Details: details})
}

// Product returns a copy of one product.
func (s *Store) Product(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

// Products returns a consistent copy of every product, sorted by ID.
func (s *Store) Products() ([]Product, error) {
	s.mu.RLock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for _, p := range out {
		if p.Quantity < 0 {
			return nil, fmt.Errorf("%w: product %q has quantity %d", ErrInvariant, p.ID, p.Quantity)
		}
	}
	return out, nil
}

// Snapshot computes aggregate counts and value from the current table.
func (s *Store) Snapshot(threshold int) Snapshot {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	s.mu.RLock()
	ids := make([]string, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snap := Snapshot{TotalProducts: len(ids), Threshold: threshold, TakenAt: s.now()}
	for _, id := range ids {
		p := s.products[id]
		switch Classify(p.Quantity, threshold) {
		case ConditionOut:
			snap.OutOfStock++
		case ConditionLow:
			snap.LowStock++
		}
		snap.TotalValue += p.Value()
	}
	s.mu.RUnlock()
	return snap
}

// RecentActivities returns the last n records, most recent first.
func (s *Store) RecentActivities(n int) []ActivityRecord {
	if n <= 0 {
		return []ActivityRecord{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.activities) {
		n = len(s.activities)
	}
	out := make([]ActivityRecord, 0, n)
	for i := len(s.activities) - 1; i >= len(s.activities)-n; i-- {
		out = append(out, s.activities[i])
	}
	return out
}

// Len returns the number of products and activity records.
func (s *Store) Len() (products, activities int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), len(s.activities)
}

// Close rejects further mutations. Reads keep working.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func validateFields(id, name string, quantity int, price float64) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty id", ErrInvalidProduct)
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidProduct)
	case quantity < 0:
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	case price < 0 || math.IsNaN(price) || math.IsInf(price, 0):
		return fmt.Errorf("%w: price %v", ErrInvalidProduct, price)
	}
	return nil
}

func sellDetails(name, id string, qty, remaining int) string {
	return fmt.Sprintf("Sold %d units of %s (ID: %s), %d remaining", qty, name, id, remaining)
}
