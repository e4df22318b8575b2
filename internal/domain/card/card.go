// Package card defines the mining card catalog: idle income sources that the
// player levels up with points.
// This package is PURE and must NOT import any infrastructure packages.
package card

import (
	"errors"
	"fmt"
)

// ErrDuplicateCard is returned when a catalog lists the same id twice.
var ErrDuplicateCard = errors.New("duplicate card id")

// Card is the immutable definition of a mining card.
type Card struct {
	ID                string `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	BaseCost          int64  `json:"base_cost" yaml:"base_cost"`
	BaseProfitPerHour int64  `json:"base_profit_per_hour" yaml:"base_profit_per_hour"`
}

// Catalog is the ordered, id-unique list of cards fixed at process start.
type Catalog struct {
	cards []Card
	index map[string]int
}

// NewCatalog validates and freezes a card list.
func NewCatalog(cards []Card) (*Catalog, error) {
	c := &Catalog{
		cards: make([]Card, 0, len(cards)),
		index: make(map[string]int, len(cards)),
	}
	for _, def := range cards {
		if def.ID == "" {
			return nil, fmt.Errorf("card %q: empty id", def.Name)
		}
		if def.BaseCost < 0 || def.BaseProfitPerHour < 0 {
			return nil, fmt.Errorf("card %s: negative cost or profit", def.ID)
		}
		if _, dup := c.index[def.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCard, def.ID)
		}
		c.index[def.ID] = len(c.cards)
		c.cards = append(c.cards, def)
	}
	return c, nil
}

// MustCatalog is NewCatalog for static definitions.
func MustCatalog(cards []Card) *Catalog {
	c, err := NewCatalog(cards)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the card definition by id.
func (c *Catalog) Lookup(id string) (Card, bool) {
	i, ok := c.index[id]
	if !ok {
		return Card{}, false
	}
	return c.cards[i], true
}

// Position returns the catalog index of id, or -1.
func (c *Catalog) Position(id string) int {
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

// Cards returns a copy of the catalog in order.
func (c *Catalog) Cards() []Card {
	out := make([]Card, len(c.cards))
	copy(out, c.cards)
	return out
}

// Len returns the number of cards.
func (c *Catalog) Len() int {
	return len(c.cards)
}

// DefaultCards is the built-in mining rig lineup.
var DefaultCards = []Card{
	{ID: "cpu_miner", Name: "CPU Miner", BaseCost: 500, BaseProfitPerHour: 100},
	{ID: "gpu_rig", Name: "GPU Rig", BaseCost: 2000, BaseProfitPerHour: 450},
	{ID: "asic_farm", Name: "ASIC Farm", BaseCost: 10000, BaseProfitPerHour: 2500},
	{ID: "base_node", Name: "Base Node", BaseCost: 50000, BaseProfitPerHour: 14000},
	{ID: "frame_validator", Name: "Frame Validator", BaseCost: 250000, BaseProfitPerHour: 80000},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return MustCatalog(DefaultCards)
}
