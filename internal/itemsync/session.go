// Package itemsync is the per-session context that runs every item
// operation. When a session is connected to an authority, mutating
// operations are sent as requests and applied only on confirmation; when it
// is not, the same rules run immediately against the local stores.
package itemsync

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gravitas-games/economy/internal/catalog"
	"github.com/gravitas-games/economy/internal/floor"
	"github.com/gravitas-games/economy/internal/inventory"
	"github.com/gravitas-games/economy/internal/network"
	"github.com/gravitas-games/economy/internal/shop"
	"github.com/gravitas-games/economy/pkg/models"
)

// Result tells the caller whether an operation took effect.
type Result int

const (
	// Applied means the local stores already reflect the operation.
	Applied Result = iota
	// Pending means a request is in flight; nothing has changed yet.
	Pending
)

func (r Result) String() string {
	if r == Pending {
		return "pending"
	}
	return "applied"
}

// Authority is the link to the authoritative peer.
type Authority interface {
	Connected() bool
	Send(msgType string, payload any) error
}

type pendingRequest struct {
	op   string
	sent time.Time
}

// Session owns one player's stores and handles to the shared floor registry
// and shop engine. It is not safe for concurrent use; run it inside a Loop.
type Session struct {
	PlayerID string
	Position models.Position

	Inventory *inventory.Inventory
	Bank      *inventory.Bank
	Floor     *floor.Registry
	Shops     *shop.Engine

	combos    *catalog.Combinations
	presenter Presenter
	authority Authority
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	pending map[string]pendingRequest
}

// Option configures a Session.
type Option func(*Session)

// WithPresenter sets the presentation collaborator.
func WithPresenter(p Presenter) Option {
	return func(s *Session) {
		if p != nil {
			s.presenter = p
		}
	}
}

// WithAuthority attaches the authoritative peer link.
func WithAuthority(a Authority) Option {
	return func(s *Session) { s.authority = a }
}

// WithCombinations sets the combination rules used by Combine.
func WithCombinations(c *catalog.Combinations) Option {
	return func(s *Session) { s.combos = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRequestIDs overrides request id generation.
func WithRequestIDs(fn func() string) Option {
	return func(s *Session) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New builds a session around its stores.
func New(playerID string, inv *inventory.Inventory, bank *inventory.Bank, fl *floor.Registry, shops *shop.Engine, opts ...Option) *Session {
	s := &Session{
		PlayerID:  playerID,
		Inventory: inv,
		Bank:      bank,
		Floor:     fl,
		Shops:     shops,
		presenter: nopPresenter{},
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
		pending:   make(map[string]pendingRequest),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("player", playerID)
	return s
}

// Connected reports whether operations go through the authority.
func (s *Session) Connected() bool {
	return s.authority != nil && s.authority.Connected()
}

// PendingRequests returns the number of unresolved requests.
func (s *Session) PendingRequests() int { return len(s.pending) }

// Move updates the player's tile and mirrors it to the authority.
func (s *Session) Move(x, y int) {
	s.Position = models.Position{X: x, Y: y}
	if s.Connected() {
		if err := s.authority.Send(network.MsgTypeMove, network.MovePayload{X: x, Y: y}); err != nil {
			s.logger.Warn("move not sent", "error", err)
		}
	}
}

// request sends a request to the authority and remembers it.
func (s *Session) request(op, msgType string, build func(id string) any) (Result, error) {
	id := s.newID()
	if err := s.authority.Send(msgType, build(id)); err != nil {
		return Pending, s.fail(op, err)
	}
	s.pending[id] = pendingRequest{op: op, sent: s.now()}
	s.logger.Debug("request sent", "op", op, "request_id", id)
	return Pending, nil
}

// resolve forgets a request. It reports false for ids never sent by this
// session, such as a duplicate confirmation.
func (s *Session) resolve(id string) bool {
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

// fail logs and reports a failed operation. Missing definitions and ids
// are logged as warnings; validation failures only reach the presenter.
func (s *Session) fail(op string, err error) error {
	switch {
	case errors.Is(err, ErrCancelled):
		return err
	case errors.Is(err, models.ErrNotFound):
		s.logger.Warn("operation aborted", "op", op, "error", err)
	case errors.Is(err, models.ErrValidation), errors.Is(err, ErrDenied):
		s.logger.Debug("operation rejected", "op", op, "error", err)
	default:
		s.logger.Error("operation failed", "op", op, "error", err)
	}
	s.presenter.Notify(err.Error(), SeverityWarning)
	return err
}

func (s *Session) notify(msg string) {
	s.presenter.Notify(msg, SeverityInfo)
}

// quantity resolves a requested amount, prompting when qty is not positive.
func (s *Session) quantity(qty, max int) (int, error) {
	if qty > 0 {
		return qty, nil
	}
	if max <= 0 {
		return 0, ErrInvalidArgs
	}
	n, ok := s.presenter.PromptQuantity(max)
	if !ok {
		return 0, ErrCancelled
	}
	if n <= 0 || n > max {
		return 0, ErrInvalidArgs
	}
	return n, nil
}

func (s *Session) renderInventory() {
	for i, st := range s.Inventory.Slots() {
		s.presenter.RenderSlot(ContainerInventory, i, st)
	}
}

func (s *Session) renderBank() {
	if s.Bank == nil {
		return
	}
	for si, storage := range s.Bank.Storages() {
		c := BankContainer(si)
		for i, st := range storage.Slots {
			s.presenter.RenderSlot(c, i, st)
		}
	}
}
