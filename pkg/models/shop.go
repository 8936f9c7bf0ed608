package models

// StockEntry is one line of a shop's stock map.
type StockEntry struct {
	Quantity     int   `json:"quantity" yaml:"quantity"`
	MaxQuantity  int   `json:"maxQuantity" yaml:"maxQuantity"`
	RestockRate  int   `json:"restockRate" yaml:"restockRate"`
	IsPlayerSold bool  `json:"isPlayerSold,omitempty" yaml:"isPlayerSold,omitempty"`
	LastSoldTime int64 `json:"lastSoldTime,omitempty" yaml:"lastSoldTime,omitempty"` // epoch ms

	// LastCleanupTime anchors tiered decay so a resync does not restart it.
	LastCleanupTime int64 `json:"lastCleanupTime,omitempty" yaml:"-"`
}

// ShopStock is the ShopStockWire shape: itemId -> entry.
type ShopStock map[string]StockEntry

// Clone returns an independent copy.
func (s ShopStock) Clone() ShopStock {
	out := make(ShopStock, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
