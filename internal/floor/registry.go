// Package floor tracks item stacks lying on world tiles, their stacking on a
// tile and their timed expiry.
package floor

import (
	"container/heap"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gravitas-games/economy/pkg/models"
)

const (
	// DefaultExpiry is how long an untouched floor item lives.
	DefaultExpiry = 5 * time.Minute
	// DefaultPickupRange is the maximum Manhattan distance for a pickup.
	DefaultPickupRange = 2
)

var (
	ErrNotFound     = fmt.Errorf("%w: floor item", models.ErrNotFound)
	ErrOutOfRange   = fmt.Errorf("%w: floor item out of reach", models.ErrValidation)
	ErrInvalidStack = fmt.Errorf("%w: floor stack must have an id and a positive quantity", models.ErrValidation)
)

// Receiver accepts a picked-up stack; an inventory satisfies it.
type Receiver interface {
	Add(stack models.ItemStack) error
}

// Tile identifies a map tile.
type Tile struct {
	X int
	Y int
}

type pickupRecord struct {
	actor string
	at    time.Time
}

// Registry holds the floor items of one world. It is not safe for concurrent
// use; the owning loop serializes access.
type Registry struct {
	items  map[string]*models.FloorItem
	byTile map[Tile]map[string]*models.FloorItem
	expiry *expiryHeap

	// recent pickups, kept for one expiry period to name who got there first
	taken map[string]pickupRecord

	ttl         time.Duration
	pickupRange int
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
}

// Option configures a registry.
type Option func(*Registry)

// WithExpiry sets the floor item lifetime.
func WithExpiry(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithPickupRange sets the maximum pickup distance.
func WithPickupRange(n int) Option {
	return func(r *Registry) {
		if n >= 0 {
			r.pickupRange = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator replaces the uuid id generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty floor.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		items:       make(map[string]*models.FloorItem),
		byTile:      make(map[Tile]map[string]*models.FloorItem),
		expiry:      newExpiryHeap(),
		taken:       make(map[string]pickupRecord),
		ttl:         DefaultExpiry,
		pickupRange: DefaultPickupRange,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Create places a stack on a tile. Only a noted stack merges with an entry
// already on that tile sharing its id, noted flag and base item; every other
// stack, plain stackables included, becomes a new entry. The returned item is
// a copy of the created or updated entry.
func (r *Registry) Create(stack models.ItemStack, x, y int, droppedBy string) (models.FloorItem, error) {
	if stack.ID == "" || stack.Quantity <= 0 {
		return models.FloorItem{}, ErrInvalidStack
	}
	now := r.now()
	tile := Tile{X: x, Y: y}
	if stack.Noted {
		for _, existing := range r.byTile[tile] {
			if existing.Item.Noted && existing.Item.SameIdentity(stack) {
				existing.Item.Quantity += stack.Quantity
				existing.SpawnTime = now.UnixMilli()
				r.schedule(existing.ID, now)
				return *existing, nil
			}
		}
	}
	item := &models.FloorItem{
		ID:        r.newID(),
		Item:      stack.Clone(),
		X:         x,
		Y:         y,
		SpawnTime: now.UnixMilli(),
		DroppedBy: droppedBy,
	}
	r.insert(item)
	r.schedule(item.ID, now)
	return *item, nil
}

// Pickup hands the entry's stack to the receiver and removes the entry. The
// requester must be within range of the tile. If the receiver rejects the
// stack the entry is left untouched.
func (r *Registry) Pickup(id string, requester models.Position, actor string, recv Receiver) (models.FloorItem, error) {
	item, ok := r.items[id]
	if !ok {
		return models.FloorItem{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	tile := models.Position{X: item.X, Y: item.Y}
	if d := requester.Manhattan(tile); d > r.pickupRange {
		return models.FloorItem{}, fmt.Errorf("%w: distance %d > %d", ErrOutOfRange, d, r.pickupRange)
	}
	if err := recv.Add(item.Item.Clone()); err != nil {
		return models.FloorItem{}, err
	}
	out := *item
	r.remove(id)
	r.taken[id] = pickupRecord{actor: actor, at: r.now()}
	return out, nil
}

// TakenBy returns who most recently picked id up, if remembered.
func (r *Registry) TakenBy(id string) (string, bool) {
	rec, ok := r.taken[id]
	return rec.actor, ok
}

// Upsert creates or updates an entry by id, as received from the authority.
// A known id is updated in place and never duplicated.
func (r *Registry) Upsert(item models.FloorItem) {
	if existing, ok := r.items[item.ID]; ok {
		if existing.X != item.X || existing.Y != item.Y {
			r.detach(existing)
			existing.X, existing.Y = item.X, item.Y
			r.attach(existing)
		}
		existing.Item = item.Item.Clone()
		existing.SpawnTime = item.SpawnTime
		existing.DroppedBy = item.DroppedBy
		r.schedule(existing.ID, time.UnixMilli(existing.SpawnTime))
		return
	}
	c := item
	c.Item = item.Item.Clone()
	r.insert(&c)
	r.schedule(c.ID, time.UnixMilli(c.SpawnTime))
}

// Remove deletes an entry. It reports whether the id was known.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.items[id]; !ok {
		return false
	}
	r.remove(id)
	return true
}

// Get returns a copy of an entry.
func (r *Registry) Get(id string) (models.FloorItem, bool) {
	item, ok := r.items[id]
	if !ok {
		return models.FloorItem{}, false
	}
	return *item, true
}

// At returns the entries on a tile ordered by spawn time.
func (r *Registry) At(x, y int) []models.FloorItem {
	out := make([]models.FloorItem, 0, len(r.byTile[Tile{X: x, Y: y}]))
	for _, item := range r.byTile[Tile{X: x, Y: y}] {
		out = append(out, *item)
	}
	sortItems(out)
	return out
}

// All returns every entry ordered by spawn time then id.
func (r *Registry) All() []models.FloorItem {
	out := make([]models.FloorItem, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, *item)
	}
	sortItems(out)
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.items) }

// Replace discards all entries and loads the given set.
func (r *Registry) Replace(all []models.FloorItem) {
	r.items = make(map[string]*models.FloorItem, len(all))
	r.byTile = make(map[Tile]map[string]*models.FloorItem)
	r.expiry = newExpiryHeap()
	for _, item := range all {
		r.Upsert(item)
	}
}

// Expire removes every entry whose lifetime has elapsed by now and returns
// them.
func (r *Registry) Expire(now time.Time) []models.FloorItem {
	var expired []models.FloorItem
	for _, e := range r.expiry.popDue(now) {
		item, ok := r.items[e.id]
		if !ok {
			continue
		}
		if !r.expiresAt(item).Equal(e.expiry) {
			continue
		}
		expired = append(expired, *item)
		r.remove(e.id)
	}
	for id, rec := range r.taken {
		if now.Sub(rec.at) > r.ttl {
			delete(r.taken, id)
		}
	}
	if len(expired) > 0 {
		r.logger.Debug("floor items expired", "count", len(expired))
	}
	return expired
}

func (r *Registry) expiresAt(item *models.FloorItem) time.Time {
	return time.UnixMilli(item.SpawnTime).Add(r.ttl)
}

func (r *Registry) schedule(id string, spawned time.Time) {
	spawnedMs := time.UnixMilli(spawned.UnixMilli())
	heap.Push(r.expiry, expiryEntry{id: id, expiry: spawnedMs.Add(r.ttl)})
}

func (r *Registry) insert(item *models.FloorItem) {
	r.items[item.ID] = item
	r.attach(item)
}

func (r *Registry) remove(id string) {
	item, ok := r.items[id]
	if !ok {
		return
	}
	r.detach(item)
	delete(r.items, id)
}

func (r *Registry) attach(item *models.FloorItem) {
	tile := Tile{X: item.X, Y: item.Y}
	m := r.byTile[tile]
	if m == nil {
		m = make(map[string]*models.FloorItem)
		r.byTile[tile] = m
	}
	m[item.ID] = item
}

func (r *Registry) detach(item *models.FloorItem) {
	tile := Tile{X: item.X, Y: item.Y}
	if m := r.byTile[tile]; m != nil {
		delete(m, item.ID)
		if len(m) == 0 {
			delete(r.byTile, tile)
		}
	}
}

func sortItems(items []models.FloorItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].SpawnTime != items[j].SpawnTime {
			return items[i].SpawnTime < items[j].SpawnTime
		}
		return items[i].ID < items[j].ID
	})
}
