package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_RepoCatalog(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"chromatic-shifter", "gaze-distorter", "gravity-anomaly", "humming-relic", "particle-emitter"}
	if len(c.Items.Palette) != len(want) {
		t.Fatalf("palette=%v", c.Items.Palette)
	}
	for i, s := range want {
		if c.Items.Palette[i] != s {
			t.Fatalf("palette[%d]=%q want %q", i, c.Items.Palette[i], s)
		}
	}
	if len(c.Items.DefsDigest) != 64 || len(c.Items.PaletteDigest) != 64 {
		t.Fatalf("bad digests")
	}
}

func TestResolve_CaseInsensitive(t *testing.T) {
	c, err := NewItemCatalog([]ItemDef{{Slug: "Gravity-Anomaly", Kind: "gravity"}})
	if err != nil {
		t.Fatalf("NewItemCatalog: %v", err)
	}
	for _, in := range []string{"Gravity-Anomaly", "gravity-anomaly", "  GRAVITY-ANOMALY "} {
		d, ok := c.Resolve(in)
		if !ok || d.Slug != "Gravity-Anomaly" {
			t.Fatalf("Resolve(%q)=%+v,%v", in, d, ok)
		}
	}
	if _, ok := c.Resolve("gravity"); ok {
		t.Fatalf("partial slug resolved")
	}
	if _, ok := c.Resolve("  "); ok {
		t.Fatalf("blank slug resolved")
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty slug":   `[{"slug":"","kind":"hum"}]`,
		"empty kind":   `[{"slug":"a","kind":""}]`,
		"folded dup":   `[{"slug":"a","kind":"hum"},{"slug":"A","kind":"hum"}]`,
		"bad range":    `[{"slug":"a","kind":"hum","ranges":{"volume":{"min":1,"max":0}}}]`,
		"invalid json": `{`,
	}
	for name, body := range cases {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "items.json"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := Load(dir)
		if err == nil || !strings.HasPrefix(err.Error(), "items.json") {
			t.Fatalf("%s: err=%v", name, err)
		}
	}
}
