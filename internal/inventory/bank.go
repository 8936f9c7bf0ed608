package inventory

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gravitas-games/economy/pkg/models"
)

const (
	// DefaultBankCapacity is the slot count of every bank storage.
	DefaultBankCapacity = 400
	// DefaultMaxTabs bounds the number of named tabs.
	DefaultMaxTabs = 9

	// MainStorage is the index of the "all items" storage.
	MainStorage = 0
	// AnyStorage lets Deposit pick the storage already holding the item,
	// falling back to the main storage.
	AnyStorage = -1
)

var (
	ErrBankFull         = fmt.Errorf("%w: bank storage is full", models.ErrValidation)
	ErrInvalidStorage   = fmt.Errorf("%w: invalid bank storage", models.ErrValidation)
	ErrTooManyTabs      = fmt.Errorf("%w: no more bank tabs available", models.ErrValidation)
	ErrSplitAcrossTabs  = fmt.Errorf("%w: a bank item lives in exactly one storage; move the whole stack", models.ErrValidation)
	errSameStorageMoved = errors.New("source and target storage are the same")
)

// Storage is one bank storage: the main storage or a named tab.
type Storage struct {
	Name  string              `json:"name"`
	Slots []*models.ItemStack `json:"slots"`
}

// Bank holds a session's banked items. Every item is treated as stackable
// and a given item id lives in exactly one storage.
type Bank struct {
	storages []*Storage
	capacity int
	maxTabs  int
	logger   *slog.Logger
}

// BankOption configures a bank.
type BankOption func(*Bank)

// WithBankCapacity sets the per-storage slot count.
func WithBankCapacity(n int) BankOption {
	return func(b *Bank) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithMaxTabs sets the tab limit.
func WithMaxTabs(n int) BankOption {
	return func(b *Bank) {
		if n >= 0 {
			b.maxTabs = n
		}
	}
}

// WithBankLogger sets the logger.
func WithBankLogger(l *slog.Logger) BankOption {
	return func(b *Bank) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBank creates an empty bank with only the main storage.
func NewBank(opts ...BankOption) *Bank {
	b := &Bank{
		capacity: DefaultBankCapacity,
		maxTabs:  DefaultMaxTabs,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.storages = []*Storage{b.newStorage("all")}
	return b
}

func (b *Bank) newStorage(name string) *Storage {
	return &Storage{Name: name, Slots: make([]*models.ItemStack, b.capacity)}
}

// AddTab appends a named tab and returns its storage index.
func (b *Bank) AddTab(name string) (int, error) {
	if len(b.storages)-1 >= b.maxTabs {
		return 0, ErrTooManyTabs
	}
	b.storages = append(b.storages, b.newStorage(name))
	return len(b.storages) - 1, nil
}

// RemoveTab deletes a tab, folding its contents into the main storage. The
// tab is left in place if the main storage cannot take everything.
func (b *Bank) RemoveTab(i int) error {
	if i == MainStorage || !b.validStorage(i) {
		return ErrInvalidStorage
	}
	main := b.storages[MainStorage]
	needed := 0
	for _, st := range b.storages[i].Slots {
		if st != nil && findID(main, st.ID) < 0 {
			needed++
		}
	}
	if needed > countEmpty(main) {
		return ErrBankFull
	}
	for _, st := range b.storages[i].Slots {
		if st != nil {
			putStack(main, *st)
		}
	}
	b.storages = append(b.storages[:i], b.storages[i+1:]...)
	return nil
}

// Storages returns copies of all storages; index 0 is the main storage.
func (b *Bank) Storages() []Storage {
	out := make([]Storage, len(b.storages))
	for i, s := range b.storages {
		out[i] = Storage{Name: s.Name, Slots: cloneSlots(s.Slots)}
	}
	return out
}

// Slot returns the stack at (storage, slot).
func (b *Bank) Slot(storage, slot int) (models.ItemStack, bool) {
	if !b.validStorage(storage) || slot < 0 || slot >= len(b.storages[storage].Slots) {
		return models.ItemStack{}, false
	}
	st := b.storages[storage].Slots[slot]
	if st == nil {
		return models.ItemStack{}, false
	}
	return st.Clone(), true
}

// Count returns the banked quantity of itemID.
func (b *Bank) Count(itemID string) int {
	if s, i := b.locate(itemID); i >= 0 {
		return b.storages[s].Slots[i].Quantity
	}
	return 0
}

// Locate returns the storage and slot holding itemID.
func (b *Bank) Locate(itemID string) (storage, slot int, ok bool) {
	s, i := b.locate(itemID)
	return s, i, i >= 0
}

// Deposit moves up to qty units with the identity of the stack at slot from
// the inventory into the bank, gathering from other slots if needed. Noted
// stacks are banked as their base item. It returns the number of units
// moved.
func (b *Bank) Deposit(inv *Inventory, slot, qty, tab int) (int, error) {
	st, err := inv.occupied(slot)
	if err != nil {
		return 0, err
	}
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	proto := st.Clone()
	available := inv.countIdentity(proto)
	if qty > available {
		qty = available
	}
	baseID := proto.Base()

	target, idx := b.locate(baseID)
	if idx < 0 {
		target = MainStorage
		if tab != AnyStorage {
			if !b.validStorage(tab) {
				return 0, ErrInvalidStorage
			}
			target = tab
		}
		if countEmpty(b.storages[target]) == 0 {
			return 0, ErrBankFull
		}
	}
	if err := inv.RemoveMatching(proto, qty, slot); err != nil {
		return 0, err
	}
	banked := models.ItemStack{ID: baseID, Quantity: qty, Properties: proto.Properties}
	putStack(b.storages[target], banked)
	return qty, nil
}

// Withdraw moves up to qty units from a bank slot into the inventory. Plain
// withdrawals of non-stackable items arrive as single units; asNote
// withdraws them as one noted stack. The bank is untouched if the inventory
// lacks space.
func (b *Bank) Withdraw(inv *Inventory, storage, slot, qty int, asNote bool) (int, error) {
	if !b.validStorage(storage) || slot < 0 || slot >= len(b.storages[storage].Slots) {
		return 0, ErrInvalidStorage
	}
	st := b.storages[storage].Slots[slot]
	if st == nil {
		return 0, ErrEmptySlot
	}
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	if qty > st.Quantity {
		qty = st.Quantity
	}
	out := models.ItemStack{ID: st.ID, Quantity: qty, Properties: st.Properties}
	if asNote {
		stackable, err := inv.Stackable(out)
		if err != nil {
			return 0, err
		}
		if !stackable {
			out = models.NewNoted(st.ID, qty)
		}
	}
	if err := inv.Add(out); err != nil {
		return 0, err
	}
	st.Quantity -= qty
	if st.Quantity == 0 {
		b.storages[storage].Slots[slot] = nil
	}
	return qty, nil
}

// MoveToTab moves the stack at (from, fromSlot) into target, merging with a
// same-id stack there or taking an empty slot. count must cover the whole
// stack. When the target is full nothing moves.
func (b *Bank) MoveToTab(from, fromSlot, count, target int) error {
	if !b.validStorage(from) || !b.validStorage(target) {
		return ErrInvalidStorage
	}
	if from == target {
		return fmt.Errorf("%w: %v", ErrInvalidStorage, errSameStorageMoved)
	}
	src := b.storages[from]
	if fromSlot < 0 || fromSlot >= len(src.Slots) || src.Slots[fromSlot] == nil {
		return ErrEmptySlot
	}
	st := src.Slots[fromSlot]
	if count <= 0 {
		return ErrInvalidQuantity
	}
	if count < st.Quantity {
		return ErrSplitAcrossTabs
	}
	dst := b.storages[target]
	if findID(dst, st.ID) < 0 && countEmpty(dst) == 0 {
		return ErrBankFull
	}
	putStack(dst, *st)
	src.Slots[fromSlot] = nil
	return nil
}

// BankSnapshot is the serialized form of a bank.
type BankSnapshot struct {
	Storages []Storage `json:"storages"`
}

// Snapshot captures the bank.
func (b *Bank) Snapshot() BankSnapshot {
	return BankSnapshot{Storages: b.Storages()}
}

// Replace swaps in a bank snapshot wholesale. Duplicate ids across storages
// are merged into their first occurrence.
func (b *Bank) Replace(s BankSnapshot) {
	storages := make([]*Storage, 0, len(s.Storages)+1)
	for _, in := range s.Storages {
		storages = append(storages, &Storage{Name: in.Name, Slots: make([]*models.ItemStack, b.capacity)})
	}
	if len(storages) == 0 {
		storages = append(storages, b.newStorage("all"))
	}
	b.storages = storages
	for si, in := range s.Storages {
		for i, st := range in.Slots {
			if st == nil || st.Quantity <= 0 {
				continue
			}
			if ps, pi := b.locate(st.ID); pi >= 0 {
				b.storages[ps].Slots[pi].Quantity += st.Quantity
				b.logger.Warn("bank replace merged duplicate item", "item", st.ID, "storage", si)
				continue
			}
			if i < b.capacity && b.storages[si].Slots[i] == nil {
				c := st.Clone()
				b.storages[si].Slots[i] = &c
				continue
			}
			if countEmpty(b.storages[si]) == 0 {
				b.logger.Warn("bank replace dropped overflow item", "item", st.ID, "storage", si)
				continue
			}
			putStack(b.storages[si], *st)
		}
	}
}

func (b *Bank) validStorage(i int) bool {
	return i >= 0 && i < len(b.storages)
}

func (b *Bank) locate(id string) (int, int) {
	for s, storage := range b.storages {
		if i := findID(storage, id); i >= 0 {
			return s, i
		}
	}
	return -1, -1
}

func findID(s *Storage, id string) int {
	for i, st := range s.Slots {
		if st != nil && st.ID == id {
			return i
		}
	}
	return -1
}

func countEmpty(s *Storage) int {
	n := 0
	for _, st := range s.Slots {
		if st == nil {
			n++
		}
	}
	return n
}

// putStack merges into a same-id stack or takes the first empty slot. The
// caller has verified capacity.
func putStack(s *Storage, st models.ItemStack) {
	if i := findID(s, st.ID); i >= 0 {
		s.Slots[i].Quantity += st.Quantity
		return
	}
	for i, cur := range s.Slots {
		if cur == nil {
			c := st.Clone()
			c.Noted = false
			c.BaseItemID = ""
			s.Slots[i] = &c
			return
		}
	}
}
