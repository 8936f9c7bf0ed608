package catalog

import (
	"errors"
	"fmt"

	"github.com/gravitas-games/economy/pkg/models"
)

// CombinationRule describes what happens when item A is used on item B.
type CombinationRule struct {
	First         string            `yaml:"first"`
	Second        string            `yaml:"second"`
	Result        *models.ItemStack `yaml:"-"`
	ResultID      string            `yaml:"result,omitempty"`
	ResultQty     int               `yaml:"resultQuantity,omitempty"`
	ConsumeFirst  bool              `yaml:"consumeFirst"`
	ConsumeSecond bool              `yaml:"consumeSecond"`
	Message       string            `yaml:"message,omitempty"`
}

type pairKey struct{ a, b string }

// Combinations indexes rules by ordered item pair.
type Combinations struct {
	rules map[pairKey]CombinationRule
}

// NewCombinations builds the index. A rule whose result stack is only given
// by id gets a one-unit result.
func NewCombinations(rules ...CombinationRule) (*Combinations, error) {
	c := &Combinations{rules: make(map[pairKey]CombinationRule, len(rules))}
	for i, r := range rules {
		if r.First == "" || r.Second == "" {
			return nil, fmt.Errorf("combination %d: both items are required", i)
		}
		if r.Result == nil && r.ResultID != "" {
			qty := r.ResultQty
			if qty <= 0 {
				qty = 1
			}
			st := models.NewStack(r.ResultID, qty)
			r.Result = &st
		}
		k := pairKey{r.First, r.Second}
		if _, dup := c.rules[k]; dup {
			return nil, errors.New("combination " + r.First + "+" + r.Second + " defined twice")
		}
		c.rules[k] = r
	}
	return c, nil
}

// Lookup finds the rule for using a on b. Both orderings are tried; when the
// reversed ordering matches, the consume flags are swapped so ConsumeFirst
// always refers to a.
func (c *Combinations) Lookup(a, b string) (CombinationRule, bool) {
	if c == nil {
		return CombinationRule{}, false
	}
	if r, ok := c.rules[pairKey{a, b}]; ok {
		return r, true
	}
	r, ok := c.rules[pairKey{b, a}]
	if !ok {
		return CombinationRule{}, false
	}
	r.First, r.Second = a, b
	r.ConsumeFirst, r.ConsumeSecond = r.ConsumeSecond, r.ConsumeFirst
	return r, true
}
