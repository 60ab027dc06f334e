// Package reconstruct rebuilds the item parameters of a stored concoction
// from its code, on a host that never saw the original capture.
package reconstruct

import (
	"context"
	"errors"
	"log"
	"time"

	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/sim/params"
)

// Source fetches a stored concoction by normalized code.
type Source interface {
	Get(ctx context.Context, code string) (concoction.Concoction, error)
}

type Item struct {
	Index  int                 `json:"index"`
	Slug   string              `json:"slug"`
	TypeID string              `json:"type_id"`
	Seed   float64             `json:"seed"`
	Params params.ParameterSet `json:"params"`
}

type Skip struct {
	Index  int    `json:"index"`
	Slug   string `json:"slug"`
	Reason string `json:"reason"`
}

type Reconstruction struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	Items     []Item    `json:"items"`
	Skipped   []Skip    `json:"skipped,omitempty"`
}

type Reconstructor struct {
	src Source
	gen *params.Generator
	log *log.Logger
}

func New(src Source, gen *params.Generator, logger *log.Logger) *Reconstructor {
	return &Reconstructor{src: src, gen: gen, log: logger}
}

// Reconstruct fails only on a malformed code or a failed lookup. Items whose
// type cannot be resolved are reported in Skipped and do not abort the rest.
func (r *Reconstructor) Reconstruct(ctx context.Context, raw string) (Reconstruction, error) {
	code, err := concoction.ValidateCode(raw)
	if err != nil {
		return Reconstruction{}, err
	}
	c, err := r.src.Get(ctx, code)
	if err != nil {
		return Reconstruction{}, err
	}

	out := Reconstruction{Code: c.Code, CreatedAt: c.CreatedAt}
	for i, it := range c.Items {
		ps, err := r.gen.Derive(it.Slug, it.Seed)
		if err != nil {
			reason := err.Error()
			if errors.Is(err, concoction.ErrUnknownItemType) {
				reason = "unknown item type"
			}
			out.Skipped = append(out.Skipped, Skip{Index: i, Slug: it.Slug, Reason: reason})
			if r.log != nil {
				r.log.Printf("reconstruct %s: skip item %d slug=%q: %v", code, i, it.Slug, err)
			}
			continue
		}
		out.Items = append(out.Items, Item{Index: i, Slug: it.Slug, TypeID: ps.TypeID, Seed: it.Seed, Params: ps})
	}
	return out, nil
}
