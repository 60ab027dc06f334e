package params

import (
	"math"

	"somnarium.ai/internal/sim/catalogs"
)

const (
	KindGravity    = "gravity"
	KindHum        = "hum"
	KindChromatic  = "chromatic"
	KindDistortion = "distortion"
	KindEmitter    = "emitter"
)

type draw struct {
	name  string
	rng   catalogs.Range
	fixed bool // not overridable from the catalog
}

type kind struct {
	draws []draw
	// finish maps the raw draws (in draw order) onto the exposed parameters.
	finish func(vals []float64) []Param
}

// Draw order is part of the output contract: appending a draw to a kind is a
// compatible change only at the end, and reordering requires a new Version.
var kinds = map[string]kind{
	KindGravity: {
		draws: []draw{
			{name: "force", rng: catalogs.Range{Min: -2.0, Max: -0.5}},
			{name: "dir_z", rng: catalogs.Range{Min: -1, Max: 1}, fixed: true},
			{name: "dir_phi", rng: catalogs.Range{Min: 0, Max: 2 * math.Pi}, fixed: true},
		},
		finish: func(v []float64) []Param {
			z, phi := v[1], v[2]
			r := math.Sqrt(math.Max(0, 1-z*z))
			return []Param{
				{Name: "force", Value: v[0]},
				{Name: "dir_x", Value: r * math.Cos(phi)},
				{Name: "dir_y", Value: r * math.Sin(phi)},
				{Name: "dir_z", Value: z},
			}
		},
	},
	KindHum: {
		draws: []draw{
			{name: "volume", rng: catalogs.Range{Min: 0.1, Max: 0.4}},
			{name: "pitch", rng: catalogs.Range{Min: 0.7, Max: 1.3}},
		},
	},
	KindChromatic: {
		draws: []draw{
			{name: "cycle_speed", rng: catalogs.Range{Min: 0.2, Max: 1.2}},
			{name: "phase", rng: catalogs.Range{Min: 0, Max: 1}},
		},
	},
	KindDistortion: {
		draws: []draw{
			{name: "strength", rng: catalogs.Range{Min: 0.2, Max: 0.6}},
		},
	},
	KindEmitter: {
		draws: []draw{
			{name: "emission_rate", rng: catalogs.Range{Min: 5, Max: 25}},
			{name: "particle_size", rng: catalogs.Range{Min: 0.05, Max: 0.2}},
		},
	},
}

// KnownKind reports whether a generator exists for k.
func KnownKind(k string) bool {
	_, ok := kinds[k]
	return ok
}
