package inventory

import (
	"encoding/json"

	"github.com/gravitas-games/economy/pkg/models"
)

// Snapshot is the serialized form of an inventory.
type Snapshot struct {
	ID        string                      `json:"id"`
	Owner     string                      `json:"owner,omitempty"`
	Slots     []*models.ItemStack         `json:"slots"`
	Equipment map[string]models.ItemStack `json:"equipment,omitempty"`
}

// Snapshot captures the current state.
func (inv *Inventory) Snapshot() Snapshot {
	return Snapshot{
		ID:        inv.ID,
		Owner:     inv.Owner,
		Slots:     inv.Slots(),
		Equipment: inv.Equipment(),
	}
}

// Restore replaces the inventory with a snapshot.
func (inv *Inventory) Restore(s Snapshot) {
	if s.ID != "" {
		inv.ID = s.ID
	}
	if s.Owner != "" {
		inv.Owner = s.Owner
	}
	inv.Replace(s.Slots)
	inv.equipment = make(map[string]models.ItemStack, len(s.Equipment))
	for k, v := range s.Equipment {
		inv.equipment[k] = v.Clone()
	}
}

// Serialize encodes the inventory to JSON.
func (inv *Inventory) Serialize() ([]byte, error) {
	return json.Marshal(inv.Snapshot())
}

// Deserialize replaces the inventory with data from JSON.
func (inv *Inventory) Deserialize(b []byte) error {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	inv.Restore(s)
	return nil
}
