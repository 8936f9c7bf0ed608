// Package catalog holds the static item definitions every store consults:
// stackability, base value, equipment slot and use action. Definitions are
// loaded once and never mutated afterwards.
package catalog

import (
	"fmt"
	"strings"
)

// ItemDefinition describes an item type.
type ItemDefinition struct {
	ID            string  `yaml:"id" json:"id"`
	NumericID     int64   `yaml:"numericId,omitempty" json:"numericId,omitempty"`
	Name          string  `yaml:"name,omitempty" json:"name,omitempty"`
	Stackable     bool    `yaml:"stackable" json:"stackable"`
	Value         int     `yaml:"value" json:"value"`
	EquipmentSlot string  `yaml:"equipmentSlot,omitempty" json:"equipmentSlot,omitempty"`
	UseAction     string  `yaml:"useAction,omitempty" json:"useAction,omitempty"`
	Rarity        float64 `yaml:"rarity,omitempty" json:"rarity,omitempty"`
	ColorTint     string  `yaml:"colorTint,omitempty" json:"colorTint,omitempty"`

	// Use is UseAction resolved at registration.
	Use UseKind `yaml:"-" json:"-"`
}

// DisplayName returns Name or the id.
func (d ItemDefinition) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// UseKind is the resolved use action of an item.
type UseKind int

const (
	UseNone UseKind = iota
	UseEat
	UseDrink
	UseWield
	UseWear
	UseDig
	UseRead
)

var useKindNames = map[string]UseKind{
	"":      UseNone,
	"eat":   UseEat,
	"drink": UseDrink,
	"wield": UseWield,
	"wear":  UseWear,
	"dig":   UseDig,
	"read":  UseRead,
}

// ParseUseKind resolves a use-action tag.
func ParseUseKind(tag string) (UseKind, error) {
	k, ok := useKindNames[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return UseNone, fmt.Errorf("unknown use action %q", tag)
	}
	return k, nil
}

// String returns the tag for k.
func (k UseKind) String() string {
	for name, v := range useKindNames {
		if v == k && name != "" {
			return name
		}
	}
	return "none"
}

// Consumes reports whether using the item uses up one unit.
func (k UseKind) Consumes() bool {
	return k == UseEat || k == UseDrink
}

// Equips reports whether using the item moves it to an equipment slot.
func (k UseKind) Equips() bool {
	return k == UseWield || k == UseWear
}

// Verb is the past-tense message fragment for k.
func (k UseKind) Verb() string {
	switch k {
	case UseEat:
		return "eat"
	case UseDrink:
		return "drink"
	case UseWield:
		return "wield"
	case UseWear:
		return "wear"
	case UseDig:
		return "dig with"
	case UseRead:
		return "read"
	default:
		return "use"
	}
}
