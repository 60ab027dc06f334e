package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

type Catalogs struct {
	Items ItemCatalog
}

type ItemCatalog struct {
	Palette       []string
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
	// Raw is the JSON the catalog was built from.
	Raw []byte

	folded map[string]string
}

// ItemDef describes one collectible item type. Kind selects the parameter
// generator; Ranges narrows or widens the kind's default draw ranges.
type ItemDef struct {
	Slug        string             `json:"slug"`
	DisplayName string             `json:"display_name"`
	Kind        string             `json:"kind"`
	HintColor   string             `json:"hint_color,omitempty"`
	Ranges      map[string]Range   `json:"ranges,omitempty"`
	Constants   map[string]float64 `json:"constants,omitempty"`
}

type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	return &c, nil
}

// NewItemCatalog builds a catalog from in-memory definitions (tests, tools).
func NewItemCatalog(defs []ItemDef) (*ItemCatalog, error) {
	raw, err := json.Marshal(defs)
	if err != nil {
		return nil, err
	}
	var out ItemCatalog
	if err := buildItems(raw, defs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	return buildItems(raw, defs, out)
}

func buildItems(raw []byte, defs []ItemDef, out *ItemCatalog) error {
	out.DefsDigest = sha256Hex(raw)
	out.Raw = raw
	out.Defs = map[string]ItemDef{}
	out.folded = map[string]string{}
	fold := cases.Fold()
	for _, d := range defs {
		d.Slug = strings.TrimSpace(d.Slug)
		if d.Slug == "" {
			return fmt.Errorf("items.json: empty slug")
		}
		if strings.TrimSpace(d.Kind) == "" {
			return fmt.Errorf("items.json: %s: empty kind", d.Slug)
		}
		key := fold.String(d.Slug)
		if prev, ok := out.folded[key]; ok {
			return fmt.Errorf("items.json: duplicate slug %q (collides with %q)", d.Slug, prev)
		}
		for name, r := range d.Ranges {
			if r.Min > r.Max {
				return fmt.Errorf("items.json: %s: range %s has min > max", d.Slug, name)
			}
		}
		out.Defs[d.Slug] = d
		out.folded[key] = d.Slug
	}

	slugs := make([]string, 0, len(out.Defs))
	for s := range out.Defs {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	out.Palette = slugs
	palJSON, _ := json.Marshal(slugs)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

// Resolve looks up an item type by slug, ignoring surrounding whitespace and case.
func (c *ItemCatalog) Resolve(slug string) (ItemDef, bool) {
	if c == nil {
		return ItemDef{}, false
	}
	s := strings.TrimSpace(slug)
	if s == "" {
		return ItemDef{}, false
	}
	if d, ok := c.Defs[s]; ok {
		return d, true
	}
	canon, ok := c.folded[cases.Fold().String(s)]
	if !ok {
		return ItemDef{}, false
	}
	return c.Defs[canon], true
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
