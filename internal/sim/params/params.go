// Package params derives the visual/behavioral parameters of an item from its
// type and seed. Derivation is pure: the same (type, seed) pair yields the same
// ParameterSet on every host, which is what lets a concoction be rebuilt from
// its stored seeds alone.
package params

import (
	"errors"
	"fmt"
	"sort"

	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/sim/catalogs"
)

const Version = "params/v1"

var ErrInvalidSeed = errors.New("seed must be a finite value in [0,1)")

type Param struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type ParameterSet struct {
	TypeID  string  `json:"type_id"`
	Kind    string  `json:"kind"`
	Seed    float64 `json:"seed"`
	Version string  `json:"version"`
	Params  []Param `json:"params"`
}

func (p ParameterSet) Get(name string) (float64, bool) {
	for _, kv := range p.Params {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return 0, false
}

// Derive computes the parameter set for def and seed.
func Derive(def catalogs.ItemDef, seed float64) (ParameterSet, error) {
	k, ok := kinds[def.Kind]
	if !ok {
		return ParameterSet{}, fmt.Errorf("%w: %s has kind %q", concoction.ErrUnknownItemType, def.Slug, def.Kind)
	}
	if !concoction.ValidSeed(seed) {
		return ParameterSet{}, fmt.Errorf("%w: %v", ErrInvalidSeed, seed)
	}

	s := NewStream(seed)
	vals := make([]float64, len(k.draws))
	for i, d := range k.draws {
		r := d.rng
		if o, ok := def.Ranges[d.name]; ok && !d.fixed {
			r = o
		}
		vals[i] = lerp(r.Min, r.Max, s.Float64())
	}

	var out []Param
	if k.finish != nil {
		out = k.finish(vals)
	} else {
		out = make([]Param, len(vals))
		for i, d := range k.draws {
			out[i] = Param{Name: d.name, Value: vals[i]}
		}
	}

	names := make([]string, 0, len(def.Constants))
	for n := range def.Constants {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		out = append(out, Param{Name: n, Value: def.Constants[n]})
	}

	return ParameterSet{
		TypeID:  def.Slug,
		Kind:    def.Kind,
		Seed:    seed,
		Version: Version,
		Params:  out,
	}, nil
}

// Generator resolves item types through a catalog before deriving.
type Generator struct {
	items *catalogs.ItemCatalog
}

// NewGenerator checks every catalog entry against the known kinds, so that a
// bad catalog fails at startup instead of at reconstruction time.
func NewGenerator(items *catalogs.ItemCatalog) (*Generator, error) {
	if items == nil {
		return nil, fmt.Errorf("params: nil catalog")
	}
	for _, slug := range items.Palette {
		def := items.Defs[slug]
		k, ok := kinds[def.Kind]
		if !ok {
			return nil, fmt.Errorf("items.json: %s: unknown kind %q", slug, def.Kind)
		}
		for name := range def.Ranges {
			if !overridable(k, name) {
				return nil, fmt.Errorf("items.json: %s: kind %s has no overridable parameter %q", slug, def.Kind, name)
			}
		}
	}
	return &Generator{items: items}, nil
}

func overridable(k kind, name string) bool {
	for _, d := range k.draws {
		if d.name == name {
			return !d.fixed
		}
	}
	return false
}

func (g *Generator) Items() *catalogs.ItemCatalog { return g.items }

func (g *Generator) Derive(typeID string, seed float64) (ParameterSet, error) {
	def, ok := g.items.Resolve(typeID)
	if !ok {
		return ParameterSet{}, fmt.Errorf("%w: %q", concoction.ErrUnknownItemType, typeID)
	}
	return Derive(def, seed)
}
