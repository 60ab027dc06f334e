package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/persistence/store"
	"somnarium.ai/internal/sim/catalogs"
)

var _ store.Store = (*Store)(nil)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "concoctions.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func sample(code string, at time.Time) concoction.Concoction {
	return concoction.Concoction{
		Code: code,
		Items: []concoction.Item{
			{Slug: "gravity-anomaly", Seed: 0.123456789012345},
			{Slug: "humming-relic", Seed: 0.5},
			{Slug: "chromatic-shifter", Seed: 0.999999},
		},
		CreatedAt: at,
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	c := sample("K3M9QZ", at)
	if err := s.Put(ctx, c); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "K3M9QZ")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Code != c.Code || !got.CreatedAt.Equal(at) || len(got.Items) != 3 {
		t.Fatalf("got=%+v", got)
	}
	for i := range c.Items {
		if got.Items[i] != c.Items[i] {
			t.Fatalf("item %d: got %+v want %+v", i, got.Items[i], c.Items[i])
		}
	}
	if _, err := s.Get(ctx, "ZZZZZZ"); !errors.Is(err, concoction.ErrNotFound) {
		t.Fatalf("missing err=%v", err)
	}
}

func TestStore_DuplicateRejectedWithoutPartialWrite(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	if err := s.Put(ctx, sample("AAAAAA", time.Now())); err != nil {
		t.Fatal(err)
	}
	dup := concoction.Concoction{Code: "AAAAAA", Items: []concoction.Item{{Slug: "other", Seed: 0.1}}, CreatedAt: time.Now()}
	if err := s.Put(ctx, dup); !errors.Is(err, concoction.ErrDuplicateCode) {
		t.Fatalf("err=%v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM concoction_items WHERE code='AAAAAA'`).Scan(&n); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 3 {
		t.Fatalf("items=%d", n)
	}
}

func TestStore_ConcurrentPutSameCode(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, dups := 0, 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Put(ctx, sample("RACE22", time.Now()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, concoction.ErrDuplicateCode):
				dups++
			default:
				t.Errorf("Put: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || dups != 15 {
		t.Fatalf("wins=%d dups=%d", wins, dups)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	base := time.Unix(1700000000, 0).UTC()
	codes := []string{"AAAAA1", "AAAAA2", "AAAAA3", "AAAAA4"}
	for i, code := range codes {
		if err := s.Put(ctx, sample(code, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Code != "AAAAA4" || got[1].Code != "AAAAA3" {
		t.Fatalf("got=%v", codesOf(got))
	}
	if len(got[0].Items) != 3 || got[0].Items[0].Slug != "gravity-anomaly" {
		t.Fatalf("items=%+v", got[0].Items)
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("all=%v", codesOf(all))
	}
	if n, _ := s.Count(ctx); n != 4 {
		t.Fatalf("count=%d", n)
	}
}

func TestStore_UpsertCatalog(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	items, err := catalogs.NewItemCatalog([]catalogs.ItemDef{{Slug: "a", Kind: "hum"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertCatalog(ctx, []byte(`[{"slug":"a","kind":"hum"}]`), items); err != nil {
		t.Fatalf("UpsertCatalog: %v", err)
	}
	d, err := s.CatalogDigest(ctx, "items_defs")
	if err != nil || d != items.DefsDigest {
		t.Fatalf("digest=%q err=%v", d, err)
	}
}

func codesOf(cs []concoction.Concoction) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Code
	}
	return out
}
