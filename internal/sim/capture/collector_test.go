package capture

import (
	"errors"
	"testing"

	"somnarium.ai/internal/random"
	"somnarium.ai/internal/sim/tuning"
)

func newTestCollector() *Collector {
	return NewCollector(ConfigFromTuning(tuning.Defaults().Capture), random.Fixed(0.25, 0.5, 0.75))
}

func countKind(evs []Event, k EventKind) int {
	n := 0
	for _, e := range evs {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func TestTick_PopReleaseCollect(t *testing.T) {
	c := newTestCollector()
	id := c.Spawn("humming-relic", 0.3, Vec3{Y: 1})
	far := Vec3{X: 10}

	evs := c.Tick(0.02, Input{Player: far, Target: id, Trigger: true, Ground: 0, HasGround: true})
	if countKind(evs, EventPopped) != 1 {
		t.Fatalf("expected pop, got %+v", evs)
	}
	u, _ := c.Unit(id)
	if u.State != StatePopped || u.ShellVisible || !u.Kinematic || u.Highlighted {
		t.Fatalf("after pop: %+v", u)
	}

	evs = c.Tick(0.02, Input{Player: far})
	if countKind(evs, EventPendingPickup) != 1 {
		t.Fatalf("expected release, got %+v", evs)
	}
	u, _ = c.Unit(id)
	if u.State != StatePendingPickup || u.Kinematic || u.Velocity.Y >= 0 {
		t.Fatalf("after release: %+v", u)
	}

	evs = c.Tick(0.02, Input{Player: u.Payload})
	if countKind(evs, EventCollected) != 1 {
		t.Fatalf("expected collect, got %+v", evs)
	}
	slots := c.Inventory().Slots()
	if len(slots) != 1 || slots[0].Slug != "humming-relic" || slots[0].Seed != 0.3 {
		t.Fatalf("slots=%+v", slots)
	}
}

func TestTick_OneTransitionPerTick(t *testing.T) {
	c := newTestCollector()
	id := c.Spawn("humming-relic", 0.3, Vec3{})
	// Player stands on the bubble and triggers: only the pop may happen this tick.
	evs := c.Tick(0.02, Input{Player: Vec3{}, Target: id, Trigger: true})
	if len(evs) != 1 || evs[0].Kind != EventPopped {
		t.Fatalf("evs=%+v", evs)
	}
	evs = c.Tick(0.02, Input{Player: Vec3{}})
	if countKind(evs, EventCollected) != 0 || countKind(evs, EventPendingPickup) != 1 {
		t.Fatalf("evs=%+v", evs)
	}
	evs = c.Tick(0.02, Input{Player: Vec3{}})
	if countKind(evs, EventCollected) != 1 {
		t.Fatalf("evs=%+v", evs)
	}
}

func TestTick_Highlight(t *testing.T) {
	c := newTestCollector()
	a := c.Spawn("a", 0.1, Vec3{X: 5})
	b := c.Spawn("b", 0.2, Vec3{X: -5})

	c.Tick(0.02, Input{Target: a})
	ua, _ := c.Unit(a)
	ub, _ := c.Unit(b)
	if !ua.Highlighted || ub.Highlighted {
		t.Fatalf("highlight a: a=%v b=%v", ua.Highlighted, ub.Highlighted)
	}

	c.Tick(0.02, Input{Target: b})
	ua, _ = c.Unit(a)
	ub, _ = c.Unit(b)
	if ua.Highlighted || !ub.Highlighted {
		t.Fatalf("highlight b: a=%v b=%v", ua.Highlighted, ub.Highlighted)
	}

	c.Tick(0.02, Input{Target: b, Trigger: true})
	c.Tick(0.02, Input{Target: b})
	ub, _ = c.Unit(b)
	if ub.Highlighted {
		t.Fatalf("popped unit must not be highlighted")
	}
}

func TestTick_Grounding(t *testing.T) {
	c := newTestCollector()
	id := c.Spawn("gravity-anomaly", 0.5, Vec3{Y: 0.5})
	far := Vec3{X: 10}
	c.Tick(0.02, Input{Player: far, Target: id, Trigger: true, Ground: 0, HasGround: true})

	grounded := false
	for i := 0; i < 200 && !grounded; i++ {
		grounded = countKind(c.Tick(0.02, Input{Player: far}), EventGrounded) == 1
	}
	if !grounded {
		t.Fatalf("payload never grounded")
	}
	u, _ := c.Unit(id)
	if u.Payload.Y != 0.02 || u.Velocity != (Vec3{}) || u.Gravity {
		t.Fatalf("grounded unit: %+v", u)
	}
	for i := 0; i < 10; i++ {
		c.Tick(0.02, Input{Player: far})
	}
	u2, _ := c.Unit(id)
	if u2.Payload != u.Payload || u2.State != StatePendingPickup {
		t.Fatalf("grounded payload moved: %+v", u2)
	}
}

func TestTick_InventoryFullRejects(t *testing.T) {
	c := newTestCollector()
	for i := 0; i < 3; i++ {
		if _, err := c.CollectDebug(i); err != nil {
			t.Fatalf("CollectDebug(%d): %v", i, err)
		}
	}
	id := c.Spawn("particle-emitter", 0.9, Vec3{})
	c.Tick(0.02, Input{Player: Vec3{X: 9}, Target: id, Trigger: true})
	c.Tick(0.02, Input{Player: Vec3{X: 9}})

	u, _ := c.Unit(id)
	evs := c.Tick(0.02, Input{Player: u.Payload})
	if countKind(evs, EventRejected) != 1 || countKind(evs, EventCollected) != 0 {
		t.Fatalf("evs=%+v", evs)
	}
	after, _ := c.Unit(id)
	if after.State != StatePendingPickup {
		t.Fatalf("rejected unit changed state: %v", after.State)
	}
	if c.Inventory().Len() != 3 {
		t.Fatalf("inventory len=%d", c.Inventory().Len())
	}

	c.Inventory().Reset()
	evs = c.Tick(0.02, Input{Player: after.Payload})
	if countKind(evs, EventCollected) != 1 {
		t.Fatalf("retry after reset: %+v", evs)
	}
}

func TestCollect_ExplicitAndIdempotent(t *testing.T) {
	c := newTestCollector()
	id := c.Spawn("chromatic-shifter", 0.4, Vec3{})
	ev, err := c.Collect(id)
	if err != nil || ev == nil || ev.Kind != EventCollected {
		t.Fatalf("Collect: %+v %v", ev, err)
	}
	ev, err = c.Collect(id)
	if err != nil || ev != nil {
		t.Fatalf("second Collect: %+v %v", ev, err)
	}
	if c.Inventory().Len() != 1 {
		t.Fatalf("len=%d", c.Inventory().Len())
	}
	if _, err := c.Collect("nope"); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("unknown unit err=%v", err)
	}
}

func TestCollect_FullHasNoSideEffects(t *testing.T) {
	c := newTestCollector()
	for i := 0; i < 3; i++ {
		c.Spawn("x", 0.1, Vec3{})
	}
	for _, u := range c.Units() {
		if _, err := c.Collect(u.ID); err != nil {
			t.Fatal(err)
		}
	}
	id := c.Spawn("y", 0.2, Vec3{})
	if _, err := c.Collect(id); !errors.Is(err, ErrInventoryFull) {
		t.Fatalf("err=%v", err)
	}
	u, _ := c.Unit(id)
	if u.State != StateSpawned || !u.ShellVisible {
		t.Fatalf("unit mutated: %+v", u)
	}
	if _, err := c.CollectDebug(0); !errors.Is(err, ErrInventoryFull) {
		t.Fatalf("debug err=%v", err)
	}
}

func TestSpawnRandom_UsesSeedSource(t *testing.T) {
	c := newTestCollector()
	id, err := c.SpawnRandom("x", Vec3{})
	if err != nil {
		t.Fatal(err)
	}
	u, _ := c.Unit(id)
	if u.Seed != 0.25 {
		t.Fatalf("seed=%v", u.Seed)
	}
}
