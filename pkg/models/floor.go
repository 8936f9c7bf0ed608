package models

// FloorItem is an item stack lying on a world tile.
type FloorItem struct {
	ID        string    `json:"id"`
	Item      ItemStack `json:"item"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	SpawnTime int64     `json:"spawnTime"` // epoch ms
	DroppedBy string    `json:"droppedBy,omitempty"`
}

// Position is a tile coordinate.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Manhattan returns |dx|+|dy| between two tiles.
func (p Position) Manhattan(o Position) int {
	return abs(p.X-o.X) + abs(p.Y-o.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
