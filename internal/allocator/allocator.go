// Package allocator turns a list of collected item slugs into a stored
// concoction under a fresh, unique short code.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/persistence/store"
	"somnarium.ai/internal/random"
)

const DefaultMaxAttempts = 10

type Options struct {
	MaxAttempts int
	Codes       CodeGenerator
	Seeds       random.SeedSource
	Now         func() time.Time
}

type Allocator struct {
	store       store.Store
	maxAttempts int
	codes       CodeGenerator
	seeds       random.SeedSource
	now         func() time.Time

	allocated  atomic.Uint64
	collisions atomic.Uint64
	exhausted  atomic.Uint64
	failures   atomic.Uint64
}

type Stats struct {
	Allocated  uint64
	Collisions uint64
	Exhausted  uint64
	Failures   uint64
}

func New(s store.Store, opts Options) *Allocator {
	a := &Allocator{
		store:       s,
		maxAttempts: opts.MaxAttempts,
		codes:       opts.Codes,
		seeds:       opts.Seeds,
		now:         opts.Now,
	}
	if a.maxAttempts <= 0 {
		a.maxAttempts = DefaultMaxAttempts
	}
	if a.codes == nil {
		a.codes = RandomCode
	}
	if a.seeds == nil {
		a.seeds = random.NewSeed
	}
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}
	return a
}

func (a *Allocator) Stats() Stats {
	return Stats{
		Allocated:  a.allocated.Load(),
		Collisions: a.collisions.Load(),
		Exhausted:  a.exhausted.Load(),
		Failures:   a.failures.Load(),
	}
}

// Allocate stores slugs under a new code with freshly drawn seeds.
func (a *Allocator) Allocate(ctx context.Context, slugs []string) (concoction.Concoction, error) {
	return a.AllocateWithSeeds(ctx, slugs, nil)
}

// AllocateWithSeeds is Allocate with caller-chosen seeds, one per raw slug.
// A nil seeds slice draws fresh seeds. Seeds of blank slugs are dropped with them.
func (a *Allocator) AllocateWithSeeds(ctx context.Context, slugs []string, seeds []float64) (concoction.Concoction, error) {
	items, err := a.items(slugs, seeds)
	if err != nil {
		return concoction.Concoction{}, err
	}

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		code, err := a.codes()
		if err != nil {
			a.failures.Add(1)
			return concoction.Concoction{}, err
		}
		// Fast path only; Put below is what actually guarantees uniqueness.
		exists, err := a.store.Exists(ctx, code)
		if err != nil {
			a.failures.Add(1)
			return concoction.Concoction{}, fmt.Errorf("check code: %w", err)
		}
		if exists {
			a.collisions.Add(1)
			continue
		}

		c := concoction.Concoction{Code: code, Items: items, CreatedAt: a.now()}
		err = a.store.Put(ctx, c)
		if errors.Is(err, concoction.ErrDuplicateCode) {
			a.collisions.Add(1)
			continue
		}
		if err != nil {
			a.failures.Add(1)
			return concoction.Concoction{}, fmt.Errorf("store concoction: %w", err)
		}
		a.allocated.Add(1)
		return c, nil
	}
	a.exhausted.Add(1)
	return concoction.Concoction{}, fmt.Errorf("%w after %d attempts", concoction.ErrAllocationExhausted, a.maxAttempts)
}

func (a *Allocator) items(slugs []string, seeds []float64) ([]concoction.Item, error) {
	if seeds != nil && len(seeds) != len(slugs) {
		return nil, fmt.Errorf("%w: %d seeds for %d items", concoction.ErrInvalidItems, len(seeds), len(slugs))
	}
	// Count and blank checks happen on the raw list.
	if _, err := concoction.NormalizeSlugs(slugs); err != nil {
		return nil, err
	}

	items := make([]concoction.Item, 0, len(slugs))
	for i, raw := range slugs {
		slug := strings.TrimSpace(raw)
		if slug == "" {
			continue
		}
		var seed float64
		var err error
		if seeds != nil {
			seed = seeds[i]
			if !concoction.ValidSeed(seed) {
				return nil, fmt.Errorf("%w: item %d seed %v", concoction.ErrInvalidItems, i, seed)
			}
		} else if seed, err = a.seeds(); err != nil {
			return nil, err
		}
		items = append(items, concoction.Item{Slug: slug, Seed: seed})
	}
	return items, nil
}
