// Package capture runs the AR collection state machine: bubbles are popped by
// aim and trigger, their payload falls, and the player picks it up by walking
// close. The machine is driven by explicit ticks and reports what happened as
// events; it never calls back into the caller.
package capture

import (
	"errors"
	"fmt"

	"somnarium.ai/internal/random"
	"somnarium.ai/internal/sim/tuning"
)

var ErrUnknownUnit = errors.New("unknown capture unit")

type Config struct {
	InventorySize    int
	PickupRadius     float64
	Grounding        bool
	GroundSnapOffset float64
	PopImpulse       float64
	Gravity          float64

	// DebugItems are collected by CollectDebug(index) without a unit.
	DebugItems []string
}

func ConfigFromTuning(c tuning.Capture) Config {
	return Config{
		InventorySize:    c.InventorySize,
		PickupRadius:     c.PickupRadius,
		Grounding:        c.Grounding,
		GroundSnapOffset: c.GroundSnapOffset,
		PopImpulse:       c.PopImpulse,
		Gravity:          c.Gravity,
		DebugItems:       []string{"gravity-anomaly", "humming-relic", "chromatic-shifter"},
	}
}

type EventKind uint8

const (
	EventPopped EventKind = iota + 1
	EventPendingPickup
	EventGrounded
	EventCollected
	EventRejected
)

func (k EventKind) String() string {
	switch k {
	case EventPopped:
		return "POPPED"
	case EventPendingPickup:
		return "PENDING_PICKUP"
	case EventGrounded:
		return "GROUNDED"
	case EventCollected:
		return "COLLECTED"
	case EventRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

type Event struct {
	Kind   EventKind
	Tick   uint64
	UnitID string
	Slug   string
	Seed   float64
	Slot   int    // inventory index for EventCollected
	Reason string // for EventRejected
}

// Input is what the session observed since the previous tick.
type Input struct {
	Player    Vec3
	Target    string // unit under the reticle, empty for none
	Trigger   bool
	Ground    float64
	HasGround bool
}

type Collector struct {
	cfg   Config
	seeds random.SeedSource
	inv   *Inventory

	units  map[string]*Unit
	order  []string
	nextID uint64
	tick   uint64
}

func NewCollector(cfg Config, seeds random.SeedSource) *Collector {
	if seeds == nil {
		seeds = random.NewSeed
	}
	return &Collector{
		cfg:   cfg,
		seeds: seeds,
		inv:   NewInventory(cfg.InventorySize),
		units: map[string]*Unit{},
	}
}

func (c *Collector) Inventory() *Inventory { return c.inv }
func (c *Collector) CurrentTick() uint64   { return c.tick }

// Spawn places a bubble carrying slug and seed at pos.
func (c *Collector) Spawn(slug string, seed float64, pos Vec3) string {
	c.nextID++
	id := fmt.Sprintf("U%d", c.nextID)
	c.units[id] = newUnit(id, slug, seed, pos)
	c.order = append(c.order, id)
	return id
}

// SpawnRandom spawns with a fresh seed from the collector's seed source.
func (c *Collector) SpawnRandom(slug string, pos Vec3) (string, error) {
	seed, err := c.seeds()
	if err != nil {
		return "", err
	}
	return c.Spawn(slug, seed, pos), nil
}

// Unit returns a copy of the unit's current state.
func (c *Collector) Unit(id string) (Unit, bool) {
	u, ok := c.units[id]
	if !ok {
		return Unit{}, false
	}
	return *u, true
}

func (c *Collector) Units() []Unit {
	out := make([]Unit, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.units[id])
	}
	return out
}

// Tick advances every unit by dt seconds. Each unit changes state at most
// once per tick; a unit popped in this tick is released on the next one.
func (c *Collector) Tick(dt float64, in Input) []Event {
	c.tick++
	var events []Event
	moved := map[string]bool{}

	for _, id := range c.order {
		u := c.units[id]
		if u.release(c.cfg.PopImpulse) {
			moved[id] = true
			events = append(events, c.event(EventPendingPickup, u))
		}
	}

	for _, id := range c.order {
		c.units[id].setHighlighted(id == in.Target)
	}

	radiusSq := c.cfg.PickupRadius * c.cfg.PickupRadius
	for _, id := range c.order {
		u := c.units[id]
		if moved[id] || !u.ReadyForPickup() {
			continue
		}
		if u.Payload.DistSq(in.Player) > radiusSq {
			continue
		}
		ev, err := c.collect(u)
		if err != nil {
			ev = c.event(EventRejected, u)
			ev.Reason = err.Error()
		} else {
			moved[id] = true
		}
		events = append(events, ev)
	}

	if in.Trigger && in.Target != "" {
		if u, ok := c.units[in.Target]; ok && !moved[u.ID] {
			if u.pop(in.Ground, in.HasGround, c.cfg.Grounding) {
				moved[u.ID] = true
				events = append(events, c.event(EventPopped, u))
			}
		}
	}

	for _, id := range c.order {
		u := c.units[id]
		if u.step(dt, c.cfg.Gravity, c.cfg.GroundSnapOffset) {
			events = append(events, c.event(EventGrounded, u))
		}
	}
	return events
}

// Collect is the explicit pickup path: it pops the unit first if needed.
// Collecting an already collected unit is a no-op and returns no event.
func (c *Collector) Collect(id string) (*Event, error) {
	u, ok := c.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	if u.State == StateCollected {
		return nil, nil
	}
	ev, err := c.collect(u)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *Collector) collect(u *Unit) (Event, error) {
	if c.inv.Full() {
		return Event{}, fmt.Errorf("%w (%d)", ErrInventoryFull, c.inv.Cap())
	}
	if u.State == StateSpawned {
		u.pop(0, false, false)
	}
	u.markCollected()
	if err := c.inv.Add(Slot{Slug: u.Slug, Seed: u.Seed}); err != nil {
		return Event{}, err
	}
	ev := c.event(EventCollected, u)
	ev.Slot = c.inv.Len() - 1
	return ev, nil
}

// CollectDebug adds the index-th debug item straight to the inventory.
func (c *Collector) CollectDebug(index int) (Slot, error) {
	if index < 0 || index >= len(c.cfg.DebugItems) {
		return Slot{}, fmt.Errorf("debug item %d out of range", index)
	}
	if c.inv.Full() {
		return Slot{}, fmt.Errorf("%w (%d)", ErrInventoryFull, c.inv.Cap())
	}
	seed, err := c.seeds()
	if err != nil {
		return Slot{}, err
	}
	s := Slot{Slug: c.cfg.DebugItems[index], Seed: seed}
	if err := c.inv.Add(s); err != nil {
		return Slot{}, err
	}
	return s, nil
}

func (c *Collector) event(kind EventKind, u *Unit) Event {
	return Event{Kind: kind, Tick: c.tick, UnitID: u.ID, Slug: u.Slug, Seed: u.Seed}
}
