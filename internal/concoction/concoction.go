// Package concoction holds the persisted record shared by the capture, allocation
// and reconstruction sides: a short code naming an ordered list of seeded items.
package concoction

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// Alphabet has 34 symbols: the letters I and O are left out, the digits 0 and 1 stay.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ0123456789"
	CodeLen  = 6
	MaxItems = 3
)

type Item struct {
	Slug string  `json:"slug"`
	Seed float64 `json:"seed"`
}

type Concoction struct {
	Code      string    `json:"code"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy so stores never alias caller slices.
func (c Concoction) Clone() Concoction {
	out := c
	out.Items = append([]Item(nil), c.Items...)
	return out
}

func (c Concoction) Validate() error {
	if !IsCanonicalCode(c.Code) {
		return fmt.Errorf("%w: %q", ErrInvalidCode, c.Code)
	}
	if len(c.Items) == 0 || len(c.Items) > MaxItems {
		return fmt.Errorf("%w: got %d items", ErrInvalidItems, len(c.Items))
	}
	for i, it := range c.Items {
		if it.Slug == "" || strings.TrimSpace(it.Slug) != it.Slug {
			return fmt.Errorf("%w: item %d slug %q", ErrInvalidItems, i, it.Slug)
		}
		if !ValidSeed(it.Seed) {
			return fmt.Errorf("%w: item %d seed %v", ErrInvalidItems, i, it.Seed)
		}
	}
	return nil
}

// Slugs returns the item slugs in order.
func (c Concoction) Slugs() []string {
	out := make([]string, len(c.Items))
	for i, it := range c.Items {
		out[i] = it.Slug
	}
	return out
}

func ValidSeed(s float64) bool {
	return !math.IsNaN(s) && !math.IsInf(s, 0) && s >= 0 && s < 1
}

func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidateCode normalizes s and checks only its length; lookups of well-sized
// codes outside the alphabet resolve to not-found rather than invalid.
func ValidateCode(s string) (string, error) {
	code := NormalizeCode(s)
	if n := utf8.RuneCountInString(code); n != CodeLen {
		return code, fmt.Errorf("%w: want %d characters, got %d", ErrInvalidCode, CodeLen, n)
	}
	return code, nil
}

func IsCanonicalCode(s string) bool {
	if len(s) != CodeLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(Alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// NormalizeSlugs trims every entry and drops blanks. The raw count is checked
// before filtering, so four entries with one blank are still rejected.
func NormalizeSlugs(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidItems)
	}
	if len(raw) > MaxItems {
		return nil, fmt.Errorf("%w: at most %d items, got %d", ErrInvalidItems, MaxItems, len(raw))
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: all items blank", ErrInvalidItems)
	}
	return out, nil
}
