package shop

import (
	"sort"
	"time"
)

// decayInterval is the time between single-unit removals of expired
// player-sold stock, by current quantity.
func decayInterval(qty int) time.Duration {
	switch {
	case qty >= 101:
		return 5 * time.Second
	case qty >= 51:
		return 15 * time.Second
	case qty >= 11:
		return 30 * time.Second
	default:
		return 60 * time.Second
	}
}

// Tick advances the stock lifecycle to now. Player-sold expiry runs on
// every call; restock and destock run once per elapsed restock interval,
// catching up if calls were missed. It returns the ids of shops whose
// stock changed.
func (e *Engine) Tick(now time.Time) []string {
	changed := make(map[string]bool)
	for id, st := range e.shops {
		if e.expire(st, now) {
			changed[id] = true
		}
	}
	if e.lastRestock.IsZero() {
		e.lastRestock = now
	}
	for !now.Before(e.lastRestock.Add(e.restockEvery)) {
		e.lastRestock = e.lastRestock.Add(e.restockEvery)
		for id, st := range e.shops {
			r := restock(st)
			d := destock(st)
			if r || d {
				changed[id] = true
			}
		}
	}
	return sortedKeys(changed)
}

// Anchor restarts the restock clock at now without running a pass. Stock
// received from an authority already covers the intervals before now.
func (e *Engine) Anchor(now time.Time) {
	e.lastRestock = now
}

// Restock runs one restock pass over every shop.
func (e *Engine) Restock() []string {
	changed := make(map[string]bool)
	for id, st := range e.shops {
		if restock(st) {
			changed[id] = true
		}
	}
	return sortedKeys(changed)
}

// Destock runs one destock pass over every shop.
func (e *Engine) Destock() []string {
	changed := make(map[string]bool)
	for id, st := range e.shops {
		if destock(st) {
			changed[id] = true
		}
	}
	return sortedKeys(changed)
}

// Expire decays player-sold stock that has been idle past its lifetime.
func (e *Engine) Expire(now time.Time) []string {
	changed := make(map[string]bool)
	for id, st := range e.shops {
		if e.expire(st, now) {
			changed[id] = true
		}
	}
	return sortedKeys(changed)
}

func restock(st *State) bool {
	if !st.Definition.Type.Metered() {
		return false
	}
	currency := st.Definition.CurrencyID()
	changed := false
	for id, entry := range st.Stock {
		if id == currency || entry.RestockRate <= 0 || entry.Quantity >= entry.MaxQuantity {
			continue
		}
		entry.Quantity += min(entry.RestockRate, entry.MaxQuantity-entry.Quantity)
		st.Stock[id] = entry
		changed = true
	}
	return changed
}

func destock(st *State) bool {
	if !st.Definition.Type.Metered() {
		return false
	}
	currency := st.Definition.CurrencyID()
	changed := false
	for id, entry := range st.Stock {
		if id == currency || entry.Quantity <= entry.MaxQuantity {
			continue
		}
		entry.Quantity--
		st.Stock[id] = entry
		changed = true
	}
	return changed
}

// expire removes one unit at a time from every player-sold line whose last
// sale is older than the TTL. The decay anchor is persisted in
// LastCleanupTime so repeated or late calls remove exactly the units due.
func (e *Engine) expire(st *State, now time.Time) bool {
	if !st.Definition.Type.Metered() {
		return false
	}
	nowMs := now.UnixMilli()
	ttl := e.playerSoldTTL.Milliseconds()
	currency := st.Definition.CurrencyID()
	changed := false
	for id, entry := range st.Stock {
		if id == currency || !entry.IsPlayerSold || entry.LastSoldTime == 0 {
			continue
		}
		expiresAt := entry.LastSoldTime + ttl
		if nowMs < expiresAt {
			continue
		}
		anchor := max(entry.LastCleanupTime, expiresAt)
		for entry.Quantity > 0 {
			step := decayInterval(entry.Quantity).Milliseconds()
			if anchor+step > nowMs {
				break
			}
			anchor += step
			entry.Quantity--
			changed = true
		}
		if entry.Quantity <= 0 {
			st.removeLine(id)
			e.logger.Debug("player-sold stock cleared", "shop", st.Definition.ID, "item", id)
			changed = true
			continue
		}
		entry.LastCleanupTime = anchor
		st.Stock[id] = entry
	}
	return changed
}

// removeLine deletes a stock line and a zero-restock default mirror of it.
func (s *State) removeLine(itemID string) {
	delete(s.Stock, itemID)
	if d, ok := s.Defaults[itemID]; ok && d.RestockRate == 0 {
		delete(s.Defaults, itemID)
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
