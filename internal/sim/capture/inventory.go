package capture

import (
	"errors"
	"fmt"
)

var ErrInventoryFull = errors.New("inventory full")

type Slot struct {
	Slug string  `json:"slug"`
	Seed float64 `json:"seed"`
}

// Inventory is the ordered, capacity-bounded list of collected items of one session.
type Inventory struct {
	capacity int
	slots    []Slot
}

func NewInventory(capacity int) *Inventory {
	if capacity <= 0 {
		capacity = 3
	}
	return &Inventory{capacity: capacity, slots: make([]Slot, 0, capacity)}
}

// Add appends s, or returns ErrInventoryFull and leaves the inventory untouched.
func (inv *Inventory) Add(s Slot) error {
	if inv.Full() {
		return fmt.Errorf("%w (%d)", ErrInventoryFull, inv.capacity)
	}
	inv.slots = append(inv.slots, s)
	return nil
}

func (inv *Inventory) Len() int      { return len(inv.slots) }
func (inv *Inventory) Cap() int      { return inv.capacity }
func (inv *Inventory) Full() bool    { return len(inv.slots) >= inv.capacity }
func (inv *Inventory) Reset()        { inv.slots = inv.slots[:0] }
func (inv *Inventory) Slots() []Slot { return append([]Slot(nil), inv.slots...) }

func (inv *Inventory) Slugs() []string {
	out := make([]string, len(inv.slots))
	for i, s := range inv.slots {
		out[i] = s.Slug
	}
	return out
}

func (inv *Inventory) Seeds() []float64 {
	out := make([]float64, len(inv.slots))
	for i, s := range inv.slots {
		out[i] = s.Seed
	}
	return out
}
