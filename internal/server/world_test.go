package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"github.com/gravitas-games/economy/internal/catalog"
	"github.com/gravitas-games/economy/internal/config"
	"github.com/gravitas-games/economy/internal/itemsync"
	"github.com/gravitas-games/economy/internal/ledger"
	"github.com/gravitas-games/economy/internal/network"
	"github.com/gravitas-games/economy/internal/shop"
	"github.com/gravitas-games/economy/internal/snapshot"
	"github.com/gravitas-games/economy/pkg/models"
)

const testItems = `
items:
  - id: coins
    stackable: true
    value: 1
  - id: apple
    stackable: true
    value: 10
    useAction: eat
  - id: logs
    value: 4
  - id: knife
    value: 6
  - id: arrow_shaft
    stackable: true
    value: 1
combinations:
  - first: knife
    second: logs
    result: arrow_shaft
    resultQuantity: 15
    consumeSecond: true
`

const testShops = `
shops:
  - id: general
    type: general
    funds: 500
    priceChangeRate: 0.1
    stock:
      apple: {quantity: 5, maxQuantity: 10, restockRate: 1}
`

var t0 = time.UnixMilli(1_700_000_000_000)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// fakeOut records everything sent to one player.
type fakeOut struct {
	mu   sync.Mutex
	msgs []network.Envelope
}

func (f *fakeOut) Send(msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, network.Envelope{Type: msgType, Payload: raw})
}

func (f *fakeOut) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.Type
	}
	return out
}

// last decodes the most recent message of msgType into v.
func (f *fakeOut) last(msgType string, v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].Type == msgType {
			return f.msgs[i].Into(v) == nil
		}
	}
	return false
}

func (f *fakeOut) count(msgType string) int {
	n := 0
	for _, t := range f.types() {
		if t == msgType {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (r *fakeRecorder) Record(_ context.Context, e ledger.Entry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return int64(len(r.entries)), nil
}

func (r *fakeRecorder) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Op
	}
	return out
}

type worldFixture struct {
	world    *World
	clock    *testClock
	recorder *fakeRecorder
	ctx      context.Context
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.MaxPlayers = 3
	cfg.Server.TickInterval = time.Hour
	cfg.Snapshot.Interval = time.Hour
	cfg.Inventory.Starter = map[string]int{"coins": 100, "logs": 2, "knife": 1}
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorld(t *testing.T, opts ...WorldOption) *worldFixture {
	t.Helper()
	cat, combos, err := catalog.Parse([]byte(testItems))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	defs, err := shop.Parse([]byte(testShops))
	if err != nil {
		t.Fatalf("parse shops: %v", err)
	}
	clock := &testClock{now: t0}
	rec := &fakeRecorder{}
	n := 0
	base := []WorldOption{
		WithWorldClock(clock.Now),
		WithWorldLogger(quietLogger()),
		WithRecorder(rec),
		WithFloorIDs(func() string { n++; return fmt.Sprintf("f%d", n) }),
	}
	w, err := NewWorld(testConfig(), cat, combos, defs, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &worldFixture{world: w, clock: clock, recorder: rec, ctx: ctx}
}

func (f *worldFixture) join(t *testing.T, id string) *fakeOut {
	t.Helper()
	out := &fakeOut{}
	if err := f.world.Join(f.ctx, &models.Player{ID: id, Username: "user-" + id}, out); err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	return out
}

func (f *worldFixture) send(t *testing.T, playerID, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := f.world.Dispatch(f.ctx, playerID, network.Envelope{Type: msgType, Payload: raw}); err != nil {
		t.Fatalf("dispatch %s: %v", msgType, err)
	}
}

func (f *worldFixture) inspect(t *testing.T, playerID string, fn func(*itemsync.Session)) {
	t.Helper()
	if err := f.world.Inspect(f.ctx, playerID, fn); err != nil {
		t.Fatalf("inspect %s: %v", playerID, err)
	}
}

func (f *worldFixture) tick(t *testing.T, now time.Time) {
	t.Helper()
	err := f.world.do(f.ctx, func() error {
		f.world.tick(now)
		return nil
	})
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
}

func TestJoinSendsFullStateAndStarterKit(t *testing.T) {
	f := newTestWorld(t)
	p1 := f.join(t, "p1")
	p2 := f.join(t, "p2")

	assert.Equal(t, []string{
		network.MsgTypeWelcome,
		network.MsgTypeInventoryState,
		network.MsgTypeBankState,
		network.MsgTypeShopState,
		network.MsgTypeFloorState,
		network.MsgTypePlayerJoined,
	}, p1.types())
	assert.Equal(t, 0, p2.count(network.MsgTypePlayerJoined), "joiner is not told about itself")

	var inv network.InventoryState
	assert.True(t, p1.last(network.MsgTypeInventoryState, &inv))
	if assert.NotNil(t, inv.Slots[0]) {
		assert.Equal(t, models.NewStack("coins", 100), *inv.Slots[0])
	}
	assert.Equal(t, "knife", inv.Slots[1].ID)
	assert.Equal(t, "logs", inv.Slots[2].ID)
	assert.Equal(t, "logs", inv.Slots[3].ID)

	var shops network.ShopState
	assert.True(t, p1.last(network.MsgTypeShopState, &shops))
	assert.Equal(t, 5, shops.Shops["general"]["apple"].Quantity)

	err := f.world.Join(f.ctx, &models.Player{ID: "p1"}, &fakeOut{})
	assert.ErrorIs(t, err, ErrDuplicated)
	f.join(t, "p3")
	err = f.world.Join(f.ctx, &models.Player{ID: "p4"}, &fakeOut{})
	assert.ErrorIs(t, err, ErrWorldFull)
}

func TestDropBroadcastAndPickupConflict(t *testing.T) {
	f := newTestWorld(t)
	p1 := f.join(t, "p1")
	p2 := f.join(t, "p2")

	f.send(t, "p1", network.MsgTypeDropRequest, network.DropRequest{RequestID: "r1", Slot: 2, Quantity: 1})

	var dropped network.DropConfirmed
	assert.True(t, p1.last(network.MsgTypeDropConfirmed, &dropped))
	assert.Equal(t, "r1", dropped.RequestID)
	assert.Equal(t, "f1", dropped.Item.ID)
	assert.Equal(t, "p1", dropped.Item.DroppedBy)

	var upsert network.FloorUpsert
	assert.True(t, p2.last(network.MsgTypeFloorUpsert, &upsert))
	assert.Equal(t, dropped.Item, upsert.Item)
	assert.Equal(t, 0, p1.count(network.MsgTypeFloorUpsert), "dropper applies its own confirmation")

	f.send(t, "p2", network.MsgTypePickupRequest, network.PickupRequest{RequestID: "q1", FloorItemID: "f1"})
	var picked network.PickupConfirmed
	assert.True(t, p2.last(network.MsgTypePickupConfirmed, &picked))
	assert.Equal(t, "logs", picked.Item.Item.ID)

	var removed network.FloorRemoved
	assert.True(t, p1.last(network.MsgTypeFloorRemoved, &removed))
	assert.Equal(t, "f1", removed.ID)

	f.send(t, "p1", network.MsgTypePickupRequest, network.PickupRequest{RequestID: "r2", FloorItemID: "f1"})
	var denied network.Denied
	assert.True(t, p1.last(network.MsgTypeDenied, &denied))
	assert.Equal(t, network.Denied{
		RequestID: "r2",
		Op:        "pickup",
		Code:      network.CodeTaken,
		Reason:    denied.Reason,
		Actor:     "p2",
	}, denied)

	f.inspect(t, "p2", func(s *itemsync.Session) {
		assert.Equal(t, 3, s.Inventory.Count("logs", false))
	})
	assert.Equal(t, []string{"drop", "pickup"}, f.recorder.ops())
}

func TestPickupOutOfRangeIsDenied(t *testing.T) {
	f := newTestWorld(t)
	f.join(t, "p1")
	p2 := f.join(t, "p2")

	f.send(t, "p1", network.MsgTypeDropRequest, network.DropRequest{RequestID: "r1", Slot: 2, Quantity: 1})
	f.send(t, "p2", network.MsgTypeMove, network.MovePayload{X: 10, Y: 0})
	f.send(t, "p2", network.MsgTypePickupRequest, network.PickupRequest{RequestID: "q1", FloorItemID: "f1"})

	var denied network.Denied
	assert.True(t, p2.last(network.MsgTypeDenied, &denied))
	assert.Equal(t, network.CodeOutOfRange, denied.Code)
	assert.Empty(t, denied.Actor)
}

func TestTradeConfirmationAndShopUpdate(t *testing.T) {
	f := newTestWorld(t)
	p1 := f.join(t, "p1")
	p2 := f.join(t, "p2")

	f.send(t, "p1", network.MsgTypeBuyRequest, network.BuyRequest{RequestID: "b1", ShopID: "general", ItemID: "apple", Quantity: 2})

	var bought network.TradeConfirmed
	assert.True(t, p1.last(network.MsgTypeBuyConfirmed, &bought))
	assert.Equal(t, "b1", bought.RequestID)
	assert.Equal(t, 2, bought.Quantity)
	assert.Positive(t, bought.Price)

	var update network.ShopUpdate
	assert.True(t, p2.last(network.MsgTypeShopUpdate, &update))
	assert.Equal(t, "general", update.ShopID)
	assert.Equal(t, 3, update.Stock["apple"].Quantity)

	f.inspect(t, "p1", func(s *itemsync.Session) {
		assert.Equal(t, 2, s.Inventory.Count("apple", false))
		assert.Equal(t, 100-bought.Price, s.Inventory.Count("coins", false))
	})

	f.send(t, "p2", network.MsgTypeBuyRequest, network.BuyRequest{RequestID: "b2", ShopID: "general", ItemID: "apple", Quantity: 4})
	var denied network.Denied
	assert.True(t, p2.last(network.MsgTypeDenied, &denied))
	assert.Equal(t, network.CodeInsufficientStock, denied.Code)

	f.send(t, "p2", network.MsgTypeSellRequest, network.SellRequest{RequestID: "s1", ShopID: "general", ItemID: "logs", Quantity: 2})
	var sold network.TradeConfirmed
	assert.True(t, p2.last(network.MsgTypeSellConfirmed, &sold))
	assert.Equal(t, "s1", sold.RequestID)
	assert.True(t, p1.last(network.MsgTypeShopUpdate, &update))
	assert.True(t, update.Stock["logs"].IsPlayerSold)

	f.send(t, "p2", network.MsgTypeSellRequest, network.SellRequest{RequestID: "s2", ShopID: "general", ItemID: "apple", Quantity: 1})
	assert.True(t, p2.last(network.MsgTypeDenied, &denied))
	assert.Equal(t, "s2", denied.RequestID)
	assert.Equal(t, network.CodeInsufficientItems, denied.Code)

	assert.Equal(t, []string{"buy", "sell"}, f.recorder.ops())
}

func TestHugeTradeQuantitiesAreDenied(t *testing.T) {
	f := newTestWorld(t)
	p1 := f.join(t, "p1")

	f.send(t, "p1", network.MsgTypeSellRequest, network.SellRequest{RequestID: "s1", ShopID: "general", ItemID: "logs", Quantity: math.MaxInt})
	var denied network.Denied
	assert.True(t, p1.last(network.MsgTypeDenied, &denied))
	assert.Equal(t, "s1", denied.RequestID)
	assert.Equal(t, network.CodeInvalid, denied.Code)

	f.send(t, "p1", network.MsgTypeBuyRequest, network.BuyRequest{RequestID: "b1", ShopID: "general", ItemID: "apple", Quantity: math.MaxInt})
	assert.True(t, p1.last(network.MsgTypeDenied, &denied))
	assert.Equal(t, "b1", denied.RequestID)

	// The world keeps serving requests.
	f.send(t, "p1", network.MsgTypeSellRequest, network.SellRequest{RequestID: "s2", ShopID: "general", ItemID: "logs", Quantity: 1})
	var sold network.TradeConfirmed
	assert.True(t, p1.last(network.MsgTypeSellConfirmed, &sold))
	assert.Equal(t, "s2", sold.RequestID)
	assert.Equal(t, t0.UnixMilli(), sold.SoldAt)
	f.inspect(t, "p1", func(s *itemsync.Session) {
		assert.Equal(t, 1, s.Inventory.Count("logs", false))
	})
	assert.Equal(t, []string{"sell"}, f.recorder.ops())
}

func TestBankRequests(t *testing.T) {
	f := newTestWorld(t)
	p1 := f.join(t, "p1")

	f.send(t, "p1", network.MsgTypeDepositRequest, network.DepositRequest{RequestID: "d1", Slot: 2, Quantity: 5, Tab: -1})
	var dep network.DepositConfirmed
	assert.True(t, p1.last(network.MsgTypeDepositConfirmed, &dep))
	assert.Equal(t, 2, dep.Moved, "capped at what the inventory holds")

	f.send(t, "p1", network.MsgTypeWithdrawRequest, network.WithdrawRequest{RequestID: "w1", Storage: 0, Slot: 0, Quantity: 2, AsNote: true})
	var wd network.WithdrawConfirmed
	assert.True(t, p1.last(network.MsgTypeWithdrawConfirmed, &wd))
	assert.Equal(t, 2, wd.Moved)

	f.inspect(t, "p1", func(s *itemsync.Session) {
		assert.Equal(t, 2, s.Inventory.Count("logs", true))
		assert.Equal(t, 0, s.Bank.Count("logs"))
	})

	f.send(t, "p1", network.MsgTypeWithdrawRequest, network.WithdrawRequest{RequestID: "w2", Storage: 0, Slot: 0, Quantity: 1})
	var denied network.Denied
	assert.True(t, p1.last(network.MsgTypeDenied, &denied))
	assert.Equal(t, "w2", denied.RequestID)
	assert.Equal(t, network.CodeInvalid, denied.Code)
}

func TestMirroredChangesAndResync(t *testing.T) {
	f := newTestWorld(t)
	p1 := f.join(t, "p1")
	states := p1.count(network.MsgTypeInventoryState)

	f.send(t, "p1", network.MsgTypeSwap, network.SwapPayload{A: 0, B: 5})
	f.send(t, "p1", network.MsgTypeCombine, network.CombinePayload{First: 1, Second: 2})
	f.inspect(t, "p1", func(s *itemsync.Session) {
		st, ok := s.Inventory.Slot(5)
		assert.True(t, ok)
		assert.Equal(t, "coins", st.ID)
		assert.Equal(t, 15, s.Inventory.Count("arrow_shaft", false))
		assert.Equal(t, 1, s.Inventory.Count("logs", false))
	})
	assert.Equal(t, states, p1.count(network.MsgTypeInventoryState), "applied mirrors need no resync")

	f.send(t, "p1", network.MsgTypeUse, network.UsePayload{Slot: 30})
	assert.Equal(t, states+1, p1.count(network.MsgTypeInventoryState), "a diverged mirror resyncs the inventory")

	f.send(t, "p1", network.MsgTypeResync, struct{}{})
	assert.Equal(t, states+2, p1.count(network.MsgTypeInventoryState))
	assert.Equal(t, 2, p1.count(network.MsgTypeFloorState))

	f.send(t, "p1", "dance", struct{}{})
	var e network.ErrorPayload
	assert.True(t, p1.last(network.MsgTypeError, &e))
	assert.Equal(t, network.CodeUnknownType, e.Code)
}

func TestTickBroadcastsExpiryAndRestock(t *testing.T) {
	f := newTestWorld(t)
	p1 := f.join(t, "p1")
	p2 := f.join(t, "p2")

	f.tick(t, t0) // anchors the restock clock
	f.send(t, "p1", network.MsgTypeDropRequest, network.DropRequest{RequestID: "r1", Slot: 2, Quantity: 1})
	f.send(t, "p1", network.MsgTypeBuyRequest, network.BuyRequest{RequestID: "b1", ShopID: "general", ItemID: "apple", Quantity: 2})

	now := f.clock.Advance(61 * time.Second)
	f.tick(t, now)
	var update network.ShopUpdate
	assert.True(t, p1.last(network.MsgTypeShopUpdate, &update))
	assert.Equal(t, 4, update.Stock["apple"].Quantity)

	now = f.clock.Advance(5 * time.Minute)
	f.tick(t, now)
	var removed network.FloorRemoved
	assert.True(t, p1.last(network.MsgTypeFloorRemoved, &removed))
	assert.Equal(t, "f1", removed.ID)
	assert.True(t, p2.last(network.MsgTypeFloorRemoved, &removed))
}

func TestLeaveSavesAndRejoinRestores(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store, err := snapshot.New(rdb, "test:", 0)
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}
	t.Cleanup(store.Close)

	f := newTestWorld(t, WithSnapshotStore(store))
	f.join(t, "p1")
	p2 := f.join(t, "p2")
	f.send(t, "p1", network.MsgTypeMove, network.MovePayload{X: 3, Y: 4})
	f.send(t, "p1", network.MsgTypeDepositRequest, network.DepositRequest{RequestID: "d1", Slot: 0, Quantity: 40, Tab: -1})

	assert.NoError(t, f.world.Leave(f.ctx, "p1"))
	var left network.PlayerLeftPayload
	assert.True(t, p2.last(network.MsgTypePlayerLeft, &left))
	assert.Equal(t, "p1", left.PlayerID)
	assert.ErrorIs(t, f.world.Leave(f.ctx, "p1"), ErrNotJoined)

	saved, ok, err := store.LoadPlayer(context.Background(), "p1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.Position{X: 3, Y: 4}, saved.Position)

	p1 := f.join(t, "p1")
	var inv network.InventoryState
	assert.True(t, p1.last(network.MsgTypeInventoryState, &inv))
	assert.Equal(t, 60, inv.Slots[0].Quantity, "restored, not re-granted")
	f.inspect(t, "p1", func(s *itemsync.Session) {
		assert.Equal(t, 40, s.Bank.Count("coins"))
		assert.Equal(t, models.Position{X: 3, Y: 4}, s.Position)
	})
}

func TestRestoreLoadsWorldSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store, err := snapshot.New(rdb, "test:", 0)
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}
	t.Cleanup(store.Close)

	err = store.SaveWorld(context.Background(), snapshot.World{
		Shops: map[string]models.ShopStock{"general": {"apple": {Quantity: 9, MaxQuantity: 10, RestockRate: 1}}},
		Floor: []models.FloorItem{{ID: "old", Item: models.NewStack("coins", 7), SpawnTime: t0.UnixMilli()}},
	})
	assert.NoError(t, err)

	cat, combos, _ := catalog.Parse([]byte(testItems))
	defs, _ := shop.Parse([]byte(testShops))
	w, err := NewWorld(testConfig(), cat, combos, defs, WithSnapshotStore(store), WithWorldLogger(quietLogger()))
	assert.NoError(t, err)
	assert.NoError(t, w.Restore(context.Background()))

	state, ok := w.shops.Shop("general")
	assert.True(t, ok)
	assert.Equal(t, 9, state.Stock["apple"].Quantity)
	_, ok = w.floor.Get("old")
	assert.True(t, ok)
}

func TestDispatchRequiresJoin(t *testing.T) {
	f := newTestWorld(t)
	err := f.world.Dispatch(f.ctx, "ghost", network.Envelope{Type: network.MsgTypePing})
	assert.ErrorIs(t, err, ErrNotJoined)
}
