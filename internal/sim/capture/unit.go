package capture

type State uint8

const (
	StateSpawned State = iota
	StatePopped
	StatePendingPickup
	StateCollected
)

func (s State) String() string {
	switch s {
	case StateSpawned:
		return "SPAWNED"
	case StatePopped:
		return "POPPED"
	case StatePendingPickup:
		return "PENDING_PICKUP"
	case StateCollected:
		return "COLLECTED"
	default:
		return "UNKNOWN"
	}
}

// Unit is one capture bubble: an outer shell wrapping a seeded payload.
type Unit struct {
	ID   string
	Slug string
	Seed float64

	State       State
	Highlighted bool

	Shell    Vec3
	Payload  Vec3
	Velocity Vec3

	ShellVisible bool
	Kinematic    bool
	Gravity      bool
	Grounded     bool

	hasGround    bool
	groundHeight float64
}

func newUnit(id, slug string, seed float64, pos Vec3) *Unit {
	return &Unit{
		ID:           id,
		Slug:         slug,
		Seed:         seed,
		State:        StateSpawned,
		Shell:        pos,
		Payload:      pos,
		ShellVisible: true,
		Kinematic:    true,
	}
}

// ReadyForPickup reports whether proximity can collect the unit.
func (u *Unit) ReadyForPickup() bool { return u.State == StatePendingPickup }

func (u *Unit) setHighlighted(v bool) {
	u.Highlighted = v && u.State == StateSpawned
}

// pop moves Spawned -> Popped. The payload stays kinematic until the next tick.
func (u *Unit) pop(ground float64, hasGround, grounding bool) bool {
	if u.State != StateSpawned {
		return false
	}
	u.State = StatePopped
	u.ShellVisible = false
	u.Kinematic = true
	u.Gravity = false
	u.Highlighted = false
	if grounding && hasGround {
		u.hasGround = true
		u.groundHeight = ground
	}
	return true
}

// release moves Popped -> PendingPickup and applies the downward pop impulse.
func (u *Unit) release(impulse float64) bool {
	if u.State != StatePopped {
		return false
	}
	u.State = StatePendingPickup
	u.Kinematic = false
	u.Gravity = true
	u.Velocity.Y -= impulse
	return true
}

func (u *Unit) markCollected() bool {
	if u.State == StateCollected {
		return false
	}
	u.State = StateCollected
	u.Highlighted = false
	u.Kinematic = true
	u.Gravity = false
	u.Velocity = Vec3{}
	return true
}

// step integrates the payload. It returns true when the payload lands this step.
func (u *Unit) step(dt, gravity, snapOffset float64) bool {
	if u.State != StatePendingPickup || u.Kinematic {
		return false
	}
	if u.Gravity {
		u.Velocity.Y += gravity * dt
	}
	u.Payload = u.Payload.Add(u.Velocity.Scale(dt))

	if !u.hasGround || u.Grounded {
		return false
	}
	floor := u.groundHeight + snapOffset
	if u.Payload.Y > floor {
		return false
	}
	u.Payload.Y = floor
	u.Velocity = Vec3{}
	u.Gravity = false
	u.Grounded = true
	return true
}
