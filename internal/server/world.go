package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gravitas-games/economy/internal/catalog"
	"github.com/gravitas-games/economy/internal/config"
	"github.com/gravitas-games/economy/internal/floor"
	"github.com/gravitas-games/economy/internal/inventory"
	"github.com/gravitas-games/economy/internal/itemsync"
	"github.com/gravitas-games/economy/internal/ledger"
	"github.com/gravitas-games/economy/internal/network"
	"github.com/gravitas-games/economy/internal/shop"
	"github.com/gravitas-games/economy/internal/snapshot"
	"github.com/gravitas-games/economy/pkg/models"
)

var (
	ErrWorldFull  = errors.New("world is full")
	ErrNotJoined  = errors.New("player has not joined")
	ErrDuplicated = errors.New("player already joined")
)

// Outbound delivers messages to one connected player.
type Outbound interface {
	Send(msgType string, payload any)
}

// SnapshotStore persists world and player state between runs.
type SnapshotStore interface {
	SaveWorld(ctx context.Context, w snapshot.World) error
	LoadWorld(ctx context.Context) (snapshot.World, bool, error)
	SavePlayer(ctx context.Context, playerID string, p snapshot.Player) error
	LoadPlayer(ctx context.Context, playerID string) (snapshot.Player, bool, error)
}

// Recorder receives confirmed transactions.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) (int64, error)
}

type worldPlayer struct {
	info    *models.Player
	session *itemsync.Session
	out     Outbound
}

// World is the authoritative item state: the shared floor and shops plus
// one itemsync session per joined player. All of it is owned by the Run
// goroutine; other goroutines submit work through do.
type World struct {
	ID string

	cfg     *config.Config
	catalog *catalog.Registry
	combos  *catalog.Combinations
	floor   *floor.Registry
	shops   *shop.Engine

	players map[string]*worldPlayer
	work    chan func()

	floorIDs func() string
	store    SnapshotStore
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// WorldOption configures a World.
type WorldOption func(*World)

// WithSnapshotStore enables restoring and saving state.
func WithSnapshotStore(s SnapshotStore) WorldOption {
	return func(w *World) { w.store = s }
}

// WithRecorder enables the transaction ledger.
func WithRecorder(r Recorder) WorldOption {
	return func(w *World) { w.recorder = r }
}

// WithWorldLogger sets the logger.
func WithWorldLogger(l *slog.Logger) WorldOption {
	return func(w *World) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithWorldClock overrides the time source.
func WithWorldClock(now func() time.Time) WorldOption {
	return func(w *World) {
		if now != nil {
			w.now = now
		}
	}
}

// WithFloorIDs overrides floor item id generation.
func WithFloorIDs(fn func() string) WorldOption {
	return func(w *World) { w.floorIDs = fn }
}

// NewWorld builds a world from loaded game data.
func NewWorld(cfg *config.Config, cat *catalog.Registry, combos *catalog.Combinations, shops []shop.Definition, opts ...WorldOption) (*World, error) {
	w := &World{
		ID:      "main",
		cfg:     cfg,
		catalog: cat,
		combos:  combos,
		players: make(map[string]*worldPlayer),
		work:    make(chan func(), 256),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.floor = floor.NewRegistry(
		floor.WithExpiry(cfg.Floor.Expiry),
		floor.WithPickupRange(cfg.Floor.PickupRange),
		floor.WithClock(w.now),
		floor.WithIDGenerator(w.floorIDs),
		floor.WithLogger(w.logger),
	)
	engine, err := shop.NewEngine(cat, shops,
		shop.WithLogger(w.logger),
		shop.WithClock(w.now),
		shop.WithRestockInterval(cfg.Shop.RestockInterval),
		shop.WithPlayerSoldTTL(cfg.Shop.PlayerSoldTTL),
		shop.WithBaseCeiling(cfg.Shop.BaseCeiling),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build shops: %w", err)
	}
	w.shops = engine
	return w, nil
}

// Restore loads the saved floor and shop stock, if any. Call before Run.
func (w *World) Restore(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	snap, ok, err := w.store.LoadWorld(ctx)
	if err != nil {
		return fmt.Errorf("failed to load world snapshot: %w", err)
	}
	if !ok {
		w.logger.Info("no world snapshot, starting fresh")
		return nil
	}
	w.shops.Replace(snap.Shops)
	w.floor.Replace(snap.Floor)
	w.logger.Info("world restored", "shops", len(snap.Shops), "floor_items", len(snap.Floor))
	return nil
}

// Run processes submitted work and ticks until ctx is done, then saves.
func (w *World) Run(ctx context.Context) error {
	tick := time.NewTicker(w.cfg.Server.TickInterval)
	defer tick.Stop()
	save := time.NewTicker(w.cfg.Snapshot.Interval)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			w.saveAll(context.Background())
			return ctx.Err()
		case fn := <-w.work:
			fn()
		case <-tick.C:
			w.tick(w.now())
		case <-save.C:
			w.saveAll(ctx)
		}
	}
}

// do runs fn on the world goroutine and waits for its result.
func (w *World) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	select {
	case w.work <- func() { done <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join adds a player, restoring their saved items, and sends them the full
// state.
func (w *World) Join(ctx context.Context, p *models.Player, out Outbound) error {
	return w.do(ctx, func() error {
		if _, ok := w.players[p.ID]; ok {
			return ErrDuplicated
		}
		if len(w.players) >= w.cfg.Server.MaxPlayers {
			return ErrWorldFull
		}
		sess := w.newSession(ctx, p)
		p.Connected = true
		p.ConnectedAt = w.now()
		p.SessionID = w.ID
		p.Position = sess.Position
		wp := &worldPlayer{info: p, session: sess, out: out}
		w.players[p.ID] = wp

		out.Send(network.MsgTypeWelcome, network.WelcomePayload{PlayerID: p.ID, Username: p.Username, SessionID: w.ID})
		w.sendState(wp)
		w.broadcastExcept(p.ID, network.MsgTypePlayerJoined, network.PlayerJoinedPayload{PlayerID: p.ID, Username: p.Username})

		w.logger.Info("player joined", "player", p.ID, "username", p.Username, "players", len(w.players))
		return nil
	})
}

func (w *World) newSession(ctx context.Context, p *models.Player) *itemsync.Session {
	logger := w.logger.With("session_id", w.ID)
	inv := inventory.New("inv-"+p.ID, p.ID, inventory.WithCatalog(w.catalog), inventory.WithLogger(logger))
	bank := inventory.NewBank(
		inventory.WithBankCapacity(w.cfg.Inventory.BankCapacity),
		inventory.WithMaxTabs(w.cfg.Inventory.MaxTabs),
		inventory.WithBankLogger(logger),
	)
	sess := itemsync.New(p.ID, inv, bank, w.floor, w.shops,
		itemsync.WithCombinations(w.combos),
		itemsync.WithLogger(logger),
		itemsync.WithClock(w.now),
	)

	restored := false
	if w.store != nil {
		snap, ok, err := w.store.LoadPlayer(ctx, p.ID)
		switch {
		case err != nil:
			w.logger.Warn("failed to load player snapshot", "player", p.ID, "error", err)
		case ok:
			inv.Restore(snap.Inventory)
			bank.Replace(snap.Bank)
			sess.Move(snap.Position.X, snap.Position.Y)
			restored = true
		}
	}
	if !restored {
		if err := inv.Grant(w.cfg.Inventory.Starter); err != nil {
			w.logger.Warn("starter kit incomplete", "player", p.ID, "error", err)
		}
	}
	return sess
}

// Leave saves and removes a player.
func (w *World) Leave(ctx context.Context, playerID string) error {
	return w.do(ctx, func() error {
		wp, ok := w.players[playerID]
		if !ok {
			return ErrNotJoined
		}
		w.savePlayer(ctx, wp)
		delete(w.players, playerID)
		w.broadcast(network.MsgTypePlayerLeft, network.PlayerLeftPayload{PlayerID: playerID, Username: wp.info.Username})
		w.logger.Info("player left", "player", playerID, "players", len(w.players))
		return nil
	})
}

// Dispatch handles one message from a joined player.
func (w *World) Dispatch(ctx context.Context, playerID string, env network.Envelope) error {
	return w.do(ctx, func() error {
		wp, ok := w.players[playerID]
		if !ok {
			return ErrNotJoined
		}
		w.handle(ctx, wp, env)
		return nil
	})
}

// PlayerCount returns the number of joined players.
func (w *World) PlayerCount(ctx context.Context) (int, error) {
	var n int
	err := w.do(ctx, func() error {
		n = len(w.players)
		return nil
	})
	return n, err
}

// Inspect runs fn against a player's session on the world goroutine.
func (w *World) Inspect(ctx context.Context, playerID string, fn func(*itemsync.Session)) error {
	return w.do(ctx, func() error {
		wp, ok := w.players[playerID]
		if !ok {
			return ErrNotJoined
		}
		fn(wp.session)
		return nil
	})
}

func (w *World) sendState(wp *worldPlayer) {
	s := wp.session
	wp.out.Send(network.MsgTypeInventoryState, network.InventoryState{Slots: s.Inventory.Slots(), Equipment: s.Inventory.Equipment()})
	wp.out.Send(network.MsgTypeBankState, network.BankState{Bank: s.Bank.Snapshot()})
	wp.out.Send(network.MsgTypeShopState, network.ShopState{Shops: w.shops.Snapshot()})
	wp.out.Send(network.MsgTypeFloorState, network.FloorState{Items: w.floor.All()})
}

// tick runs the shared lifecycle and pushes what changed.
func (w *World) tick(now time.Time) {
	for _, wp := range w.players {
		if n := wp.session.Inventory.EnsureIntegrity(); n > 0 {
			w.sendState(wp)
		}
	}
	changed := w.shops.Tick(now)
	if len(changed) > 0 {
		stock := w.shops.Snapshot()
		for _, id := range changed {
			w.broadcast(network.MsgTypeShopUpdate, network.ShopUpdate{ShopID: id, Stock: stock[id]})
		}
	}
	for _, item := range w.floor.Expire(now) {
		w.broadcast(network.MsgTypeFloorRemoved, network.FloorRemoved{ID: item.ID})
	}
}

func (w *World) saveAll(ctx context.Context) {
	if w.store == nil {
		return
	}
	err := w.store.SaveWorld(ctx, snapshot.World{Shops: w.shops.Snapshot(), Floor: w.floor.All()})
	if err != nil {
		w.logger.Error("failed to save world snapshot", "error", err)
	}
	for _, wp := range w.players {
		w.savePlayer(ctx, wp)
	}
}

func (w *World) savePlayer(ctx context.Context, wp *worldPlayer) {
	if w.store == nil {
		return
	}
	s := wp.session
	err := w.store.SavePlayer(ctx, s.PlayerID, snapshot.Player{
		Position:  s.Position,
		Inventory: s.Inventory.Snapshot(),
		Bank:      s.Bank.Snapshot(),
	})
	if err != nil {
		w.logger.Error("failed to save player snapshot", "player", s.PlayerID, "error", err)
	}
}

func (w *World) broadcast(msgType string, payload any) {
	w.broadcastExcept("", msgType, payload)
}

func (w *World) broadcastExcept(playerID, msgType string, payload any) {
	for id, wp := range w.players {
		if id != playerID {
			wp.out.Send(msgType, payload)
		}
	}
}

func (w *World) record(ctx context.Context, e ledger.Entry) {
	if w.recorder == nil {
		return
	}
	e.At = w.now()
	if _, err := w.recorder.Record(ctx, e); err != nil {
		w.logger.Error("failed to record transaction", "op", e.Op, "player", e.Player, "error", err)
	}
}
