package shop

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gravitas-games/economy/internal/catalog"
	"github.com/gravitas-games/economy/internal/inventory"
	"github.com/gravitas-games/economy/pkg/models"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func ptr(v float64) *float64 { return &v }

func testCatalog() *catalog.Registry {
	return catalog.NewRegistry(
		catalog.ItemDefinition{ID: "coins", Stackable: true, Value: 1},
		catalog.ItemDefinition{ID: "apple", Stackable: true, Value: 10, UseAction: "eat"},
		catalog.ItemDefinition{ID: "fish", Stackable: true, Value: 10},
		catalog.ItemDefinition{ID: "bronze_sword", Value: 26, EquipmentSlot: "weapon"},
		catalog.ItemDefinition{ID: "pickaxe", Value: 40, UseAction: "dig"},
	)
}

func testDefinitions() []Definition {
	return []Definition{
		{
			ID: "general", Type: General, Funds: 500,
			BuyMultiplier: ptr(1.0), SellMultiplier: ptr(0.6), PriceChangeRate: ptr(0.1),
			Stock: models.ShopStock{
				"apple": {Quantity: 5, MaxQuantity: 10, RestockRate: 1},
			},
		},
		{
			ID: "smithy", Type: Specialty, Funds: 1000,
			PriceChangeRate: ptr(0.02),
			Stock: models.ShopStock{
				"bronze_sword": {Quantity: 5, MaxQuantity: 5, RestockRate: 1},
			},
		},
		{
			ID: "fishmonger", Type: ZeroStock,
			Stock: models.ShopStock{
				"fish": {Quantity: 20, MaxQuantity: 20},
			},
		},
		{
			ID: "market", Type: Unlimited,
			BuyMultiplier: ptr(1.0), SellMultiplier: ptr(0.4),
			Stock: models.ShopStock{
				"apple": {Quantity: 1, MaxQuantity: 1},
			},
		},
	}
}

type fixture struct {
	engine *Engine
	inv    *inventory.Inventory
	clock  time.Time
}

func newFixture(t *testing.T, opts ...inventory.Option) *fixture {
	t.Helper()
	cat := testCatalog()
	f := &fixture{clock: t0}
	engine, err := NewEngine(cat, testDefinitions(), WithClock(func() time.Time { return f.clock }))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	f.engine = engine
	f.inv = inventory.New("inv", "p1", append([]inventory.Option{inventory.WithCatalog(cat)}, opts...)...)
	return f
}

func (f *fixture) stock(shopID, itemID string) (models.StockEntry, bool) {
	st, _ := f.engine.Shop(shopID)
	e, ok := st.Stock[itemID]
	return e, ok
}

func TestUnlimitedFlatPricing(t *testing.T) {
	f := newFixture(t)

	buy, err := f.engine.BuyPrice("market", "apple", 1)
	assert.NoError(t, err)
	assert.Equal(t, 10, buy)

	sell, err := f.engine.SellPrice("market", "apple", 1)
	assert.NoError(t, err)
	assert.Equal(t, 4, sell)

	bulk, _ := f.engine.BuyPrice("market", "apple", 7)
	assert.Equal(t, 70, bulk)
}

func TestSellNeverExceedsBuyWithDefaults(t *testing.T) {
	for value := 1; value <= 250; value++ {
		cat := catalog.NewRegistry(catalog.ItemDefinition{ID: "thing", Stackable: true, Value: value})
		engine, err := NewEngine(cat, []Definition{
			{ID: "flat", Type: Unlimited, Stock: models.ShopStock{"thing": {}}},
			{ID: "metered", Type: General, Stock: models.ShopStock{"thing": {Quantity: 3, MaxQuantity: 3}}},
		})
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}
		for _, shop := range []string{"flat", "metered"} {
			buy, _ := engine.BuyPrice(shop, "thing", 1)
			sell, _ := engine.SellPrice(shop, "thing", 1)
			if sell > buy {
				t.Fatalf("value %d at %s: sell %d exceeds buy %d", value, shop, sell, buy)
			}
		}
	}
}

func TestMeteredBulkSellIsNonIncreasing(t *testing.T) {
	f := newFixture(t)
	if err := f.inv.AddStack("fish", 20, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tr, err := f.engine.QuoteSell("general", models.NewStack("fish", 20), f.inv)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	assert.Len(t, tr.Units, 20)
	for i := 1; i < len(tr.Units); i++ {
		assert.LessOrEqual(t, tr.Units[i], tr.Units[i-1], "unit %d", i)
	}
	// Multiplier bottoms out at 0.1 of base value.
	assert.Equal(t, 1, tr.Units[19])
}

func TestMeteredBulkBuyIsNonDecreasing(t *testing.T) {
	f := newFixture(t)
	_ = f.engine.ReplaceShop("general", models.ShopStock{
		"apple": {Quantity: 10, MaxQuantity: 10, RestockRate: 1},
		"coins": {Quantity: 500},
	})
	if err := f.inv.AddStack("coins", 10_000, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tr, err := f.engine.QuoteBuy("general", "apple", 10, f.inv)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	for i := 1; i < len(tr.Units); i++ {
		assert.GreaterOrEqual(t, tr.Units[i], tr.Units[i-1], "unit %d", i)
	}
	assert.Equal(t, 10, tr.Units[0])
	assert.Greater(t, tr.Units[9], tr.Units[0])
}

func TestSpecialtySellPricesAgainstDefault(t *testing.T) {
	f := newFixture(t)
	// smithy holds 5 of a default max of 5: surplus starts at zero.
	price, err := f.engine.SellPrice("smithy", "bronze_sword", 1)
	assert.NoError(t, err)
	assert.Equal(t, int(math.Floor(26*0.6)), price)
}

func TestRestockReachesCapAndStops(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.engine.Restock()
	}
	apple, _ := f.stock("general", "apple")
	assert.Equal(t, 10, apple.Quantity)

	f.engine.Restock()
	f.engine.Restock()
	apple, _ = f.stock("general", "apple")
	assert.Equal(t, 10, apple.Quantity)

	coins, _ := f.stock("general", "coins")
	assert.Equal(t, 500, coins.Quantity, "currency counter is never restocked")
}

func TestTickRestocksOncePerInterval(t *testing.T) {
	f := newFixture(t)
	f.engine.Tick(t0)
	for i := 1; i <= 12; i++ {
		f.engine.Tick(t0.Add(time.Duration(i) * 5 * time.Second))
	}
	apple, _ := f.stock("general", "apple")
	assert.Equal(t, 6, apple.Quantity)

	changed := f.engine.Tick(t0.Add(5 * time.Minute))
	apple, _ = f.stock("general", "apple")
	assert.Equal(t, 10, apple.Quantity, "missed intervals catch up")
	assert.Contains(t, changed, "general")
}

func TestDestockDrainsTowardCap(t *testing.T) {
	f := newFixture(t)
	if err := f.inv.AddStack("apple", 8, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := f.engine.Sell("general", models.NewStack("apple", 8), f.inv); err != nil {
		t.Fatalf("sell: %v", err)
	}
	apple, _ := f.stock("general", "apple")
	assert.Equal(t, 13, apple.Quantity)
	assert.False(t, apple.IsPlayerSold, "restocking lines are not player-sold")

	f.engine.Destock()
	apple, _ = f.stock("general", "apple")
	assert.Equal(t, 12, apple.Quantity)
}

func TestPlayerSoldStockDecaysAndIsDeleted(t *testing.T) {
	f := newFixture(t)
	_ = f.engine.ReplaceShop("general", models.ShopStock{
		"coins": {Quantity: 500},
		"fish":  {Quantity: 5, MaxQuantity: 7, IsPlayerSold: true, LastSoldTime: t0.UnixMilli()},
	})

	f.engine.Tick(t0.Add(3*time.Minute - time.Second))
	fish, _ := f.stock("general", "fish")
	assert.Equal(t, 5, fish.Quantity, "no decay before the idle period ends")

	ticks := 0
	now := t0
	for {
		now = now.Add(5 * time.Second)
		ticks++
		f.engine.Tick(now)
		if _, ok := f.stock("general", "fish"); !ok {
			break
		}
		if ticks > 1000 {
			t.Fatalf("entry never cleared")
		}
	}
	// 3 minutes idle plus 5 units at one per minute.
	assert.Equal(t, t0.Add(8*time.Minute), now)
}

func TestDecayCatchesUpInOneCall(t *testing.T) {
	f := newFixture(t)
	_ = f.engine.ReplaceShop("general", models.ShopStock{
		"fish":  {Quantity: 5, MaxQuantity: 7, IsPlayerSold: true, LastSoldTime: t0.UnixMilli()},
		"bulk":  {Quantity: 120, MaxQuantity: 120, IsPlayerSold: true, LastSoldTime: t0.UnixMilli()},
		"coins": {Quantity: 0},
	})
	f.engine.Expire(t0.Add(3*time.Minute + 2*time.Minute + 30*time.Second))
	fish, ok := f.stock("general", "fish")
	assert.True(t, ok)
	assert.Equal(t, 3, fish.Quantity)

	// 120 units decay one per 5s down to 100, then one per 15s.
	bulk, _ := f.stock("general", "bulk")
	assert.Equal(t, 120-20-(150-100)/15, bulk.Quantity)

	f.engine.Expire(t0.Add(10 * time.Minute))
	_, ok = f.stock("general", "fish")
	assert.False(t, ok)
}

func TestSellUnlistedItemCreatesPlayerSoldLine(t *testing.T) {
	f := newFixture(t)
	if err := f.inv.AddStack("bronze_sword", 3, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	expected, _ := f.engine.SellPrice("general", "bronze_sword", 3)

	tr, err := f.engine.Sell("general", models.NewStack("bronze_sword", 3), f.inv)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	assert.Equal(t, expected, tr.Price)

	line, ok := f.stock("general", "bronze_sword")
	assert.True(t, ok)
	assert.Equal(t, models.StockEntry{
		Quantity:     3,
		MaxQuantity:  5,
		IsPlayerSold: true,
		LastSoldTime: t0.UnixMilli(),
	}, line)

	assert.Equal(t, 0, f.inv.Count("bronze_sword", false))
	assert.Equal(t, expected, f.inv.Count("coins", false))
	coins, _ := f.stock("general", "coins")
	assert.Equal(t, 500-expected, coins.Quantity)
}

func TestLargeSaleRaisesCeiling(t *testing.T) {
	f := newFixture(t)
	_ = f.inv.AddStack("fish", 9, false)
	if _, err := f.engine.Sell("general", models.NewStack("fish", 9), f.inv); err != nil {
		t.Fatalf("sell: %v", err)
	}
	line, _ := f.stock("general", "fish")
	assert.Equal(t, 11, line.MaxQuantity)
}

func TestSellRejections(t *testing.T) {
	f := newFixture(t)
	_ = f.inv.AddStack("apple", 3, false)
	_ = f.inv.AddStack("bronze_sword", 2, true)

	_, err := f.engine.Sell("general", models.NewNoted("bronze_sword", 2), f.inv)
	assert.ErrorIs(t, err, ErrNotedItem)

	_, err = f.engine.Sell("smithy", models.NewStack("apple", 1), f.inv)
	assert.ErrorIs(t, err, ErrNotAccepted)

	_, err = f.engine.Sell("market", models.NewStack("bronze_sword", 1), f.inv)
	assert.ErrorIs(t, err, ErrNotAccepted)

	_, err = f.engine.Sell("general", models.NewStack("apple", 4), f.inv)
	assert.ErrorIs(t, err, ErrInsufficientItems)
	assert.True(t, errors.Is(err, models.ErrValidation))

	assert.Equal(t, 3, f.inv.Count("apple", false))
}

func TestBuyNonStackablesLandInSeparateSlots(t *testing.T) {
	f := newFixture(t)
	_ = f.inv.AddStack("coins", 1000, false)
	price, _ := f.engine.BuyPrice("smithy", "bronze_sword", 3)

	if _, err := f.engine.Buy("smithy", "bronze_sword", 3, f.inv); err != nil {
		t.Fatalf("buy: %v", err)
	}
	for i, st := range f.inv.Slots() {
		if st != nil && st.ID == "bronze_sword" && st.Quantity != 1 {
			t.Fatalf("slot %d holds %d swords", i, st.Quantity)
		}
	}
	assert.Equal(t, 3, f.inv.Count("bronze_sword", false))
	assert.Equal(t, 1000-price, f.inv.Count("coins", false))

	sword, _ := f.stock("smithy", "bronze_sword")
	assert.Equal(t, 2, sword.Quantity)
	coins, _ := f.stock("smithy", "coins")
	assert.Equal(t, 1000+price, coins.Quantity)
}

func TestBuyValidationMutatesNothing(t *testing.T) {
	f := newFixture(t, inventory.WithSize(2))
	_ = f.inv.AddStack("coins", 5, false)

	_, err := f.engine.Buy("smithy", "bronze_sword", 1, f.inv)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_ = f.inv.AddStack("coins", 995, false)
	_, err = f.engine.Buy("smithy", "bronze_sword", 2, f.inv)
	assert.ErrorIs(t, err, inventory.ErrNoSpace)

	_, err = f.engine.Buy("smithy", "bronze_sword", 6, f.inv)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = f.engine.Buy("smithy", "apple", 1, f.inv)
	assert.ErrorIs(t, err, ErrNotSold)

	_, err = f.engine.Buy("nowhere", "apple", 1, f.inv)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, 1000, f.inv.Count("coins", false))
	sword, _ := f.stock("smithy", "bronze_sword")
	assert.Equal(t, 5, sword.Quantity)
}

func TestBuyingUpAllCoinsFreesTheSlot(t *testing.T) {
	f := newFixture(t, inventory.WithSize(1))
	price, _ := f.engine.BuyPrice("smithy", "bronze_sword", 1)
	_ = f.inv.AddStack("coins", price, false)

	_, err := f.engine.Buy("smithy", "bronze_sword", 1, f.inv)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.inv.Count("bronze_sword", false))
}

func TestZeroStockShopStartsEmpty(t *testing.T) {
	f := newFixture(t)
	fish, _ := f.stock("fishmonger", "fish")
	assert.Equal(t, 0, fish.Quantity)

	_ = f.inv.AddStack("coins", 100, false)
	_, err := f.engine.Buy("fishmonger", "fish", 1, f.inv)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_ = f.inv.AddStack("fish", 4, false)
	_, err = f.engine.Sell("fishmonger", models.NewStack("fish", 4), f.inv)
	assert.NoError(t, err)

	fish, _ = f.stock("fishmonger", "fish")
	assert.Equal(t, 4, fish.Quantity)
	assert.True(t, fish.IsPlayerSold)
	assert.Equal(t, 20, fish.MaxQuantity)
}

func TestPlayerSoldLineBoughtOutIsDeleted(t *testing.T) {
	f := newFixture(t)
	_ = f.inv.AddStack("coins", 100, false)
	_ = f.inv.AddStack("fish", 2, false)
	if _, err := f.engine.Sell("general", models.NewStack("fish", 2), f.inv); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if _, err := f.engine.Buy("general", "fish", 2, f.inv); err != nil {
		t.Fatalf("buy back: %v", err)
	}
	_, ok := f.stock("general", "fish")
	assert.False(t, ok)
}

func TestUnlimitedShopNeverMovesStock(t *testing.T) {
	f := newFixture(t)
	_ = f.inv.AddStack("coins", 100, false)
	before, _ := f.engine.Shop("market")

	_, err := f.engine.Buy("market", "apple", 5, f.inv)
	assert.NoError(t, err)
	_, err = f.engine.Sell("market", models.NewStack("apple", 5), f.inv)
	assert.NoError(t, err)
	f.engine.Tick(t0.Add(time.Hour))

	after, _ := f.engine.Shop("market")
	assert.Equal(t, before.Stock, after.Stock)
	assert.Equal(t, 100-50+20, f.inv.Count("coins", false))
}

func TestCommitHonoursGivenPrice(t *testing.T) {
	f := newFixture(t)
	_ = f.inv.AddStack("coins", 100, false)
	err := f.engine.Commit(Trade{Side: SideBuy, ShopID: "general", ItemID: "apple", Quantity: 1, Price: 7}, f.inv)
	assert.NoError(t, err)
	assert.Equal(t, 93, f.inv.Count("coins", false))

	err = f.engine.Commit(Trade{Side: SideBuy, ShopID: "general", ItemID: "apple", Quantity: 50, Price: 1}, f.inv)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestInvalidMultipliersFallBack(t *testing.T) {
	defs, err := Parse([]byte(`
shops:
  - id: broken
    type: general
    buyMultiplier: .nan
    sellMultiplier: .inf
    priceChangeRate: -2
    stock:
      apple: {quantity: 1, maxQuantity: 1, restockRate: 0}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, problems := defs[0].Pricing()
	assert.Equal(t, Pricing{Buy: 1.0, Sell: 0.6, Rate: 0}, p)
	assert.Len(t, problems, 3)

	engine, err := NewEngine(testCatalog(), defs)
	assert.NoError(t, err)
	price, _ := engine.BuyPrice("broken", "apple", 1)
	assert.Equal(t, 10, price)
}

func TestParseRejectsBadDefinitions(t *testing.T) {
	_, err := Parse([]byte("shops:\n  - id: a\n    type: bazaar\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("shops:\n  - id: a\n    type: general\n  - id: a\n    type: general\n"))
	assert.Error(t, err)
}

func TestSnapshotAndReplace(t *testing.T) {
	f := newFixture(t)
	snap := f.engine.Snapshot()
	assert.Equal(t, 500, snap["general"]["coins"].Quantity)

	snap["general"]["apple"] = models.StockEntry{Quantity: 9, MaxQuantity: 10, RestockRate: 1}
	apple, _ := f.stock("general", "apple")
	assert.Equal(t, 5, apple.Quantity, "snapshot is a copy")

	f.engine.Replace(map[string]models.ShopStock{
		"general": snap["general"],
		"ghost":   {},
	})
	apple, _ = f.stock("general", "apple")
	assert.Equal(t, 9, apple.Quantity)
}

func TestHugeQuantitiesAreRejectedBeforePricing(t *testing.T) {
	f := newFixture(t)
	_ = f.inv.AddStack("apple", 3, false)
	_ = f.inv.AddStack("coins", 100, false)

	_, err := f.engine.QuoteSell("general", models.NewStack("apple", math.MaxInt), f.inv)
	assert.ErrorIs(t, err, ErrTooMany)

	_, err = f.engine.QuoteSell("general", models.NewStack("apple", MaxTradeQuantity), f.inv)
	assert.ErrorIs(t, err, ErrInsufficientItems)

	_, err = f.engine.BuyPrice("market", "apple", math.MaxInt)
	assert.ErrorIs(t, err, ErrTooMany)
	_, err = f.engine.SellPrice("general", "apple", math.MaxInt)
	assert.ErrorIs(t, err, ErrTooMany)

	_, err = f.engine.Buy("market", "apple", math.MaxInt, f.inv)
	assert.ErrorIs(t, err, ErrTooMany)
	_, err = f.engine.Buy("general", "apple", MaxTradeQuantity, f.inv)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 3, f.inv.Count("apple", false))
	assert.Equal(t, 100, f.inv.Count("coins", false))
}

func TestAnchorSkipsIntervalsCoveredElsewhere(t *testing.T) {
	f := newFixture(t)
	f.engine.Tick(t0)
	_ = f.engine.ReplaceShop("general", models.ShopStock{
		"coins": {Quantity: 500},
		"apple": {Quantity: 30, MaxQuantity: 10, RestockRate: 1},
	})

	f.engine.Anchor(t0.Add(time.Hour))
	f.engine.Tick(t0.Add(time.Hour + 5*time.Second))
	apple, _ := f.stock("general", "apple")
	assert.Equal(t, 30, apple.Quantity, "no catch-up for anchored intervals")

	f.engine.Tick(t0.Add(time.Hour + time.Minute))
	apple, _ = f.stock("general", "apple")
	assert.Equal(t, 29, apple.Quantity)
}

func TestSaleKeepsGivenSoldAt(t *testing.T) {
	f := newFixture(t)
	_ = f.inv.AddStack("fish", 3, false)
	soldAt := t0.Add(-time.Minute).UnixMilli()

	err := f.engine.Commit(Trade{Side: SideSell, ShopID: "general", ItemID: "fish", Quantity: 3, Price: 12, SoldAt: soldAt}, f.inv)
	assert.NoError(t, err)
	fish, ok := f.stock("general", "fish")
	assert.True(t, ok)
	assert.Equal(t, soldAt, fish.LastSoldTime)

	_ = f.inv.AddStack("fish", 1, false)
	tr, err := f.engine.Sell("general", models.NewStack("fish", 1), f.inv)
	assert.NoError(t, err)
	assert.Equal(t, t0.UnixMilli(), tr.SoldAt)
	fish, _ = f.stock("general", "fish")
	assert.Equal(t, t0.UnixMilli(), fish.LastSoldTime)
}

func TestShopOutOfFundsStillPaysInFull(t *testing.T) {
	f := newFixture(t)
	_ = f.engine.ReplaceShop("general", models.ShopStock{
		"coins": {Quantity: 2},
		"apple": {Quantity: 0, MaxQuantity: 10, RestockRate: 1},
	})
	_ = f.inv.AddStack("apple", 1, false)

	tr, err := f.engine.Sell("general", models.NewStack("apple", 1), f.inv)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	assert.Greater(t, tr.Price, 2)
	assert.Equal(t, tr.Price, f.inv.Count("coins", false))
	coins, _ := f.stock("general", "coins")
	assert.Equal(t, 0, coins.Quantity)
}
