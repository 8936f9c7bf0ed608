package models

import (
	"encoding/json"
	"fmt"
)

// ItemStack is a quantity of one item held in a slot, on the floor or in a
// bank storage.
type ItemStack struct {
	ID         string
	Quantity   int
	Noted      bool
	BaseItemID string

	// Properties carries item-specific extras (charges, dye, inscription).
	// They travel flattened next to the fixed fields on the wire.
	Properties map[string]any
}

var reservedStackKeys = map[string]bool{
	"id": true, "quantity": true, "noted": true, "baseItemId": true,
}

// NewStack returns a plain stack of qty units of id.
func NewStack(id string, qty int) ItemStack {
	return ItemStack{ID: id, Quantity: qty}
}

// NewNoted returns a noted claim-check for qty units of baseID.
func NewNoted(baseID string, qty int) ItemStack {
	return ItemStack{ID: baseID, Quantity: qty, Noted: true, BaseItemID: baseID}
}

// SameIdentity reports whether two stacks may merge: same id, same noted
// flag and same base item.
func (s ItemStack) SameIdentity(o ItemStack) bool {
	return s.ID == o.ID && s.Noted == o.Noted && s.BaseItemID == o.BaseItemID
}

// Base returns the id of the underlying item, resolving notes.
func (s ItemStack) Base() string {
	if s.Noted && s.BaseItemID != "" {
		return s.BaseItemID
	}
	return s.ID
}

// Clone returns a deep copy.
func (s ItemStack) Clone() ItemStack {
	out := s
	if s.Properties != nil {
		out.Properties = make(map[string]any, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

// WithQuantity returns a copy with a different quantity.
func (s ItemStack) WithQuantity(qty int) ItemStack {
	out := s.Clone()
	out.Quantity = qty
	return out
}

func (s ItemStack) String() string {
	if s.Noted {
		return fmt.Sprintf("%dx %s (noted)", s.Quantity, s.Base())
	}
	return fmt.Sprintf("%dx %s", s.Quantity, s.ID)
}

// MarshalJSON writes the ItemStackWire shape: fixed fields plus custom
// properties at the same level.
func (s ItemStack) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Properties)+4)
	for k, v := range s.Properties {
		if reservedStackKeys[k] {
			continue
		}
		out[k] = v
	}
	out["id"] = s.ID
	out["quantity"] = s.Quantity
	if s.Noted {
		out["noted"] = true
	}
	if s.BaseItemID != "" {
		out["baseItemId"] = s.BaseItemID
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the ItemStackWire shape.
func (s *ItemStack) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var out ItemStack
	for k, v := range raw {
		var err error
		switch k {
		case "id":
			err = json.Unmarshal(v, &out.ID)
		case "quantity":
			err = json.Unmarshal(v, &out.Quantity)
		case "noted":
			err = json.Unmarshal(v, &out.Noted)
		case "baseItemId":
			err = json.Unmarshal(v, &out.BaseItemID)
		default:
			var prop any
			err = json.Unmarshal(v, &prop)
			if err == nil {
				if out.Properties == nil {
					out.Properties = make(map[string]any)
				}
				out.Properties[k] = prop
			}
		}
		if err != nil {
			return fmt.Errorf("item stack field %q: %w", k, err)
		}
	}
	if out.ID == "" {
		return fmt.Errorf("item stack missing id")
	}
	*s = out
	return nil
}
