// Package snapshot exports and restores the full concoction set as a single
// .snap.zst file: one JSON header line followed by a gob body.
package snapshot

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/persistence/store"
)

const Version = 1

type Header struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Count     int       `json:"count"`
}

type SnapshotV1 struct {
	Header      Header         `json:"header"`
	Concoctions []ConcoctionV1 `json:"concoctions"`
}

type ConcoctionV1 struct {
	Code          string   `json:"code"`
	CreatedUnixNs int64    `json:"created_unix_ns"`
	Items         []ItemV1 `json:"items"`
}

type ItemV1 struct {
	Slug string  `json:"slug"`
	Seed float64 `json:"seed"`
}

func FromConcoctions(cs []concoction.Concoction, now time.Time) SnapshotV1 {
	snap := SnapshotV1{Header: Header{Version: Version, CreatedAt: now.UTC(), Count: len(cs)}}
	for _, c := range cs {
		row := ConcoctionV1{Code: c.Code, CreatedUnixNs: c.CreatedAt.UnixNano()}
		for _, it := range c.Items {
			row.Items = append(row.Items, ItemV1{Slug: it.Slug, Seed: it.Seed})
		}
		snap.Concoctions = append(snap.Concoctions, row)
	}
	return snap
}

func (s SnapshotV1) ToConcoctions() []concoction.Concoction {
	out := make([]concoction.Concoction, 0, len(s.Concoctions))
	for _, row := range s.Concoctions {
		c := concoction.Concoction{Code: row.Code, CreatedAt: time.Unix(0, row.CreatedUnixNs).UTC()}
		for _, it := range row.Items {
			c.Items = append(c.Items, concoction.Item{Slug: it.Slug, Seed: it.Seed})
		}
		out = append(out, c)
	}
	return out
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// Export writes every record of s to path and returns the count.
func Export(ctx context.Context, s store.Store, path string, now time.Time) (int, error) {
	cs, err := s.List(ctx, 0)
	if err != nil {
		return 0, err
	}
	return len(cs), WriteSnapshot(path, FromConcoctions(cs, now))
}

// Import puts every snapshot record into s, oldest first, and skips codes
// that already exist. Records are never overwritten.
func Import(ctx context.Context, s store.Store, path string) (imported, skipped int, err error) {
	snap, err := ReadSnapshot(path)
	if err != nil {
		return 0, 0, err
	}
	cs := snap.ToConcoctions()
	for i := len(cs) - 1; i >= 0; i-- {
		err := s.Put(ctx, cs[i])
		switch {
		case err == nil:
			imported++
		case errors.Is(err, concoction.ErrDuplicateCode):
			skipped++
		default:
			return imported, skipped, fmt.Errorf("import %s: %w", cs[i].Code, err)
		}
	}
	return imported, skipped, nil
}
