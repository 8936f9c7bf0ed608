// Package inventory implements the per-session item stores: a fixed 40-slot
// inventory with strict stacking rules and a multi-tab bank in which every
// item stacks.
package inventory

import (
	"fmt"
	"log/slog"

	"github.com/gravitas-games/economy/internal/catalog"
	"github.com/gravitas-games/economy/pkg/models"
)

// Size is the number of inventory slots.
const Size = 40

// Catalog resolves item definitions.
type Catalog interface {
	Definition(id string) (catalog.ItemDefinition, bool)
}

var (
	ErrNoSpace         = fmt.Errorf("%w: not enough inventory space", models.ErrValidation)
	ErrInvalidSlot     = fmt.Errorf("%w: invalid slot", models.ErrValidation)
	ErrEmptySlot       = fmt.Errorf("%w: slot is empty", models.ErrValidation)
	ErrInsufficient    = fmt.Errorf("%w: not enough items", models.ErrValidation)
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", models.ErrValidation)
	ErrNotEquippable   = fmt.Errorf("%w: item cannot be equipped", models.ErrValidation)
	ErrUnknownItem     = fmt.Errorf("%w: unknown item", models.ErrNotFound)
)

// Inventory is a fixed array of slots owned by one session. A nil slot is
// empty. Inventory is not safe for concurrent use; the owning session loop
// serializes access.
type Inventory struct {
	ID    string
	Owner string

	slots     []*models.ItemStack
	equipment map[string]models.ItemStack

	catalog Catalog
	logger  *slog.Logger
}

// Option configures inventory construction.
type Option func(*Inventory)

// WithCatalog attaches the item catalog used to resolve stackability.
func WithCatalog(c Catalog) Option {
	return func(inv *Inventory) {
		inv.catalog = c
	}
}

// WithLogger sets the logger used for integrity reports.
func WithLogger(l *slog.Logger) Option {
	return func(inv *Inventory) {
		if l != nil {
			inv.logger = l
		}
	}
}

// WithSize overrides the slot count.
func WithSize(n int) Option {
	return func(inv *Inventory) {
		if n > 0 {
			inv.slots = make([]*models.ItemStack, n)
		}
	}
}

// New creates an empty inventory for an owner.
func New(id, owner string, opts ...Option) *Inventory {
	inv := &Inventory{
		ID:        id,
		Owner:     owner,
		slots:     make([]*models.ItemStack, Size),
		equipment: make(map[string]models.ItemStack),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(inv)
		}
	}
	return inv
}

// Catalog returns the attached catalog.
func (inv *Inventory) Catalog() Catalog { return inv.catalog }

// Definition looks up an item in the attached catalog.
func (inv *Inventory) Definition(id string) (catalog.ItemDefinition, bool) {
	if inv.catalog == nil {
		return catalog.ItemDefinition{}, false
	}
	return inv.catalog.Definition(id)
}

// Stackable reports whether s merges with same-identity stacks. Noted stacks
// always stack.
func (inv *Inventory) Stackable(s models.ItemStack) (bool, error) {
	if s.Noted {
		return true, nil
	}
	def, ok := inv.Definition(s.ID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownItem, s.ID)
	}
	return def.Stackable, nil
}
