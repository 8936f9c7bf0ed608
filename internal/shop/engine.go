package shop

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gravitas-games/economy/internal/catalog"
	"github.com/gravitas-games/economy/pkg/models"
)

const (
	// DefaultRestockInterval is how often restock and destock run.
	DefaultRestockInterval = 60 * time.Second
	// DefaultPlayerSoldTTL is how long a player-sold line is left alone
	// after its last sale before it starts to decay.
	DefaultPlayerSoldTTL = 3 * time.Minute
	// DefaultBaseCeiling is the smallest cap given to a line created by a
	// player sale.
	DefaultBaseCeiling = 5
	// MaxTradeQuantity bounds the units priced in one trade or quote.
	MaxTradeQuantity = 1 << 20
)

var (
	ErrUnknownShop       = fmt.Errorf("%w: shop", models.ErrNotFound)
	ErrUnknownItem       = fmt.Errorf("%w: item definition", models.ErrNotFound)
	ErrNotSold           = fmt.Errorf("%w: shop does not sell this item", models.ErrValidation)
	ErrNotAccepted       = fmt.Errorf("%w: shop does not buy this item", models.ErrValidation)
	ErrNotedItem         = fmt.Errorf("%w: noted items must be exchanged at a bank first", models.ErrValidation)
	ErrInsufficientStock = fmt.Errorf("%w: shop is out of stock", models.ErrValidation)
	ErrInsufficientFunds = fmt.Errorf("%w: not enough currency", models.ErrValidation)
	ErrInsufficientItems = fmt.Errorf("%w: not enough items to sell", models.ErrValidation)
	ErrInvalidQuantity   = fmt.Errorf("%w: quantity must be positive", models.ErrValidation)
	ErrTooMany           = fmt.Errorf("%w: too many units in one trade", models.ErrValidation)
)

// Catalog resolves item base values.
type Catalog interface {
	Definition(id string) (catalog.ItemDefinition, bool)
}

// Engine owns the state of every shop. It is not safe for concurrent use;
// the session or world loop serializes calls.
type Engine struct {
	shops   map[string]*State
	catalog Catalog
	logger  *slog.Logger
	now     func() time.Time

	restockEvery  time.Duration
	playerSoldTTL time.Duration
	baseCeiling   int
	lastRestock   time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source used to stamp sales.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRestockInterval sets the restock/destock cadence.
func WithRestockInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.restockEvery = d
		}
	}
}

// WithPlayerSoldTTL sets the idle period before player-sold stock decays.
func WithPlayerSoldTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.playerSoldTTL = d
		}
	}
}

// WithBaseCeiling sets the minimum cap of a line created by a player sale.
func WithBaseCeiling(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.baseCeiling = n
		}
	}
}

// NewEngine builds the live state of every shop from its definition.
func NewEngine(cat Catalog, defs []Definition, opts ...Option) (*Engine, error) {
	e := &Engine{
		shops:         make(map[string]*State, len(defs)),
		catalog:       cat,
		logger:        slog.Default(),
		now:           time.Now,
		restockEvery:  DefaultRestockInterval,
		playerSoldTTL: DefaultPlayerSoldTTL,
		baseCeiling:   DefaultBaseCeiling,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("shop definition missing id")
		}
		if _, dup := e.shops[def.ID]; dup {
			return nil, fmt.Errorf("shop %s: duplicate id", def.ID)
		}
		if !def.Type.Valid() {
			return nil, fmt.Errorf("shop %s: unknown type %q", def.ID, def.Type)
		}
		pricing, problems := def.Pricing()
		for _, p := range problems {
			e.logger.Warn("shop pricing fallback", "shop", def.ID, "problem", p)
		}
		e.shops[def.ID] = newState(def, pricing)
	}
	return e, nil
}

// Shops returns the shop ids in a stable order.
func (e *Engine) Shops() []string {
	out := make([]string, 0, len(e.shops))
	for id := range e.shops {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Shop returns a copy of one shop's state.
func (e *Engine) Shop(id string) (State, bool) {
	st, ok := e.shops[id]
	if !ok {
		return State{}, false
	}
	return *st.clone(), true
}

// BuyPrice is what a player pays for qty units of itemID.
func (e *Engine) BuyPrice(shopID, itemID string, qty int) (int, error) {
	st, base, err := e.priced(shopID, itemID, qty)
	if err != nil {
		return 0, err
	}
	return total(st.buyUnits(itemID, base, qty)), nil
}

// SellPrice is what a player receives for qty units of itemID.
func (e *Engine) SellPrice(shopID, itemID string, qty int) (int, error) {
	st, base, err := e.priced(shopID, itemID, qty)
	if err != nil {
		return 0, err
	}
	return total(st.sellUnits(itemID, base, qty)), nil
}

func (e *Engine) priced(shopID, itemID string, qty int) (*State, int, error) {
	st, ok := e.shops[shopID]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownShop, shopID)
	}
	if qty <= 0 {
		return nil, 0, ErrInvalidQuantity
	}
	if qty > MaxTradeQuantity {
		return nil, 0, fmt.Errorf("%w: %d exceeds %d per trade", ErrTooMany, qty, MaxTradeQuantity)
	}
	def, ok := e.catalog.Definition(itemID)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	return st, def.Value, nil
}

// Snapshot returns the stock of every shop, currency counters included.
func (e *Engine) Snapshot() map[string]models.ShopStock {
	out := make(map[string]models.ShopStock, len(e.shops))
	for id, st := range e.shops {
		out[id] = st.Stock.Clone()
	}
	return out
}

// Replace overwrites the stock of every shop present in all. Shops the
// engine does not know are ignored.
func (e *Engine) Replace(all map[string]models.ShopStock) {
	for id, stock := range all {
		if err := e.ReplaceShop(id, stock); err != nil {
			e.logger.Warn("shop replace skipped", "shop", id, "error", err)
		}
	}
}

// ReplaceShop overwrites one shop's stock wholesale.
func (e *Engine) ReplaceShop(id string, stock models.ShopStock) error {
	st, ok := e.shops[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownShop, id)
	}
	next := make(models.ShopStock, len(stock))
	for item, entry := range stock {
		if entry.Quantity < 0 {
			entry.Quantity = 0
		}
		next[item] = entry
	}
	st.Stock = next
	return nil
}
