package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"somnarium.ai/internal/concoction"
)

const EventConcoctionCreated = "CONCOCTION_CREATED"

// JournalEntry is one line of the creation journal.
type JournalEntry struct {
	EventID   string            `json:"event_id"`
	Type      string            `json:"type"`
	Code      string            `json:"code"`
	CreatedAt time.Time         `json:"created_at"`
	Items     []concoction.Item `json:"items"`
}

func (e JournalEntry) Concoction() concoction.Concoction {
	return concoction.Concoction{Code: e.Code, Items: append([]concoction.Item(nil), e.Items...), CreatedAt: e.CreatedAt}
}

// Journal is the append-only record of every created concoction. It is a
// secondary copy: the store stays authoritative, and cmd/replay can rebuild
// a store from it.
type Journal struct{ w *JSONLZstdWriter }

func NewJournal(dataDir string) *Journal {
	return &Journal{w: NewJSONLZstdWriter(filepath.Join(dataDir, "journal"), "concoctions")}
}

// ConcoctionCreated matches the created-sink signature used by the HTTP API.
func (j *Journal) ConcoctionCreated(_ context.Context, c concoction.Concoction) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("journal event id: %w", err)
	}
	return j.w.Write(JournalEntry{
		EventID:   id.String(),
		Type:      EventConcoctionCreated,
		Code:      c.Code,
		CreatedAt: c.CreatedAt.UTC(),
		Items:     c.Items,
	})
}

// OnFileClosed hands each completed journal file to fn, e.g. for mirroring.
func (j *Journal) OnFileClosed(fn func(path string)) { j.w.OnClosed(fn) }

func (j *Journal) Close() error { return j.w.Close() }

// ReadJournal decodes every entry of one .jsonl.zst file. A file cut off
// mid-write (crash, copy of an open hour) yields the entries before the cut:
// a stream error ends the read and an unparseable final line is dropped.
// A malformed line followed by more lines is corruption and an error.
func ReadJournal(path string) ([]JournalEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	name := filepath.Base(path)
	var (
		out     []JournalEntry
		pending []byte
		held    bool
		lineNo  int
		heldNo  int
	)
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		// The previous line is complete once another one follows it.
		if held {
			var e JournalEntry
			if err := json.Unmarshal(pending, &e); err != nil {
				return out, fmt.Errorf("%s line %d: %w", name, heldNo, err)
			}
			out = append(out, e)
		}
		pending = append(pending[:0], line...)
		held, heldNo = true, lineNo
	}
	if held {
		var e JournalEntry
		if err := json.Unmarshal(pending, &e); err == nil {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil && len(out) == 0 && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// JournalFiles lists journal files under dataDir in name (time) order.
func JournalFiles(dataDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dataDir, "journal", "concoctions-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadJournalDir reads every journal file under dataDir, oldest first.
func ReadJournalDir(dataDir string) ([]JournalEntry, error) {
	files, err := JournalFiles(dataDir)
	if err != nil {
		return nil, err
	}
	var out []JournalEntry
	for _, p := range files {
		es, err := ReadJournal(p)
		if err != nil {
			return out, err
		}
		out = append(out, es...)
	}
	return out, nil
}
