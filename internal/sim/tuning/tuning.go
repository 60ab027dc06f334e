package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Allocator Allocator `yaml:"allocator"`
	Listing   Listing   `yaml:"listing"`
	Capture   Capture   `yaml:"capture"`
	Feed      Feed      `yaml:"feed"`
	Client    Client    `yaml:"client"`
}

type Allocator struct {
	MaxAttempts int `yaml:"max_attempts"`
}

type Listing struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

type Capture struct {
	InventorySize     int     `yaml:"inventory_size"`
	RequiredForUpload int     `yaml:"required_for_upload"`
	PickupRadius      float64 `yaml:"pickup_radius"`
	Grounding         bool    `yaml:"grounding"`
	GroundSnapOffset  float64 `yaml:"ground_snap_offset"`
	PopImpulse        float64 `yaml:"pop_impulse"`
	Gravity           float64 `yaml:"gravity"`
}

type Feed struct {
	Backlog  int `yaml:"backlog"`
	MaxQueue int `yaml:"max_queue"`
}

type Client struct {
	TimeoutMs int `yaml:"timeout_ms"`
}

func Defaults() Tuning {
	return Tuning{
		Allocator: Allocator{MaxAttempts: 10},
		Listing:   Listing{DefaultLimit: 50, MaxLimit: 200},
		Capture: Capture{
			InventorySize:     3,
			RequiredForUpload: 3,
			PickupRadius:      0.6,
			Grounding:         true,
			GroundSnapOffset:  0.02,
			PopImpulse:        0.8,
			Gravity:           -9.81,
		},
		Feed:   Feed{Backlog: 10, MaxQueue: 64},
		Client: Client{TimeoutMs: 5000},
	}
}

// Load reads path over Defaults, so keys absent from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.Allocator.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("allocator.max_attempts must be > 0"))
	}
	if t.Listing.DefaultLimit <= 0 || t.Listing.MaxLimit < t.Listing.DefaultLimit {
		errs = append(errs, fmt.Errorf("listing: need 0 < default_limit <= max_limit"))
	}
	c := t.Capture
	if c.InventorySize <= 0 {
		errs = append(errs, fmt.Errorf("capture.inventory_size must be > 0"))
	}
	if c.RequiredForUpload <= 0 || c.RequiredForUpload > c.InventorySize {
		errs = append(errs, fmt.Errorf("capture.required_for_upload must be in [1,inventory_size]"))
	}
	if c.PickupRadius <= 0 {
		errs = append(errs, fmt.Errorf("capture.pickup_radius must be > 0"))
	}
	if c.GroundSnapOffset < 0 {
		errs = append(errs, fmt.Errorf("capture.ground_snap_offset must be >= 0"))
	}
	if c.Gravity > 0 {
		errs = append(errs, fmt.Errorf("capture.gravity must point down (<= 0)"))
	}
	if t.Feed.Backlog < 0 || t.Feed.MaxQueue <= 0 {
		errs = append(errs, fmt.Errorf("feed: backlog must be >= 0 and max_queue > 0"))
	}
	if t.Client.TimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("client.timeout_ms must be > 0"))
	}
	return errors.Join(errs...)
}

// ClampLimit maps a requested listing size onto [1, MaxLimit]; n <= 0 means default.
func (l Listing) ClampLimit(n int) int {
	if n <= 0 {
		return l.DefaultLimit
	}
	if n > l.MaxLimit {
		return l.MaxLimit
	}
	return n
}
