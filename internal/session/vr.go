package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/reconstruct"
)

// VR loads a concoction by code and hands its reconstruction to the scene.
type VR struct {
	recon *reconstruct.Reconstructor
	log   *log.Logger

	mu      sync.Mutex
	loading bool
	status  *mailbox[string]
	loaded  *mailbox[reconstruct.Reconstruction]
}

func NewVR(recon *reconstruct.Reconstructor, logger *log.Logger) *VR {
	v := &VR{
		recon:  recon,
		log:    logger,
		status: newMailbox[string](),
		loaded: newMailbox[reconstruct.Reconstruction](),
	}
	v.status.put("Waiting for code...")
	return v
}

// Status delivers terminal messages to a single consumer, newest wins.
func (v *VR) Status() <-chan string { return v.status.recv() }

// Loaded delivers the most recent successful reconstruction to a single
// consumer. A reconstruction nobody has read yet is replaced by a newer one.
func (v *VR) Loaded() <-chan reconstruct.Reconstruction { return v.loaded.recv() }

// Submit fetches and reconstructs code. At most one fetch runs at a time.
func (v *VR) Submit(ctx context.Context, code string) (reconstruct.Reconstruction, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		v.status.put("Enter a code.")
		return reconstruct.Reconstruction{}, fmt.Errorf("%w: empty code", concoction.ErrInvalidCode)
	}

	v.mu.Lock()
	if v.loading {
		v.mu.Unlock()
		return reconstruct.Reconstruction{}, ErrFetchInFlight
	}
	if v.recon == nil {
		v.mu.Unlock()
		v.status.put("API client missing.")
		return reconstruct.Reconstruction{}, ErrNoBackendClient
	}
	v.loading = true
	v.mu.Unlock()
	v.status.put("Loading...")

	r, err := v.recon.Reconstruct(ctx, code)

	v.mu.Lock()
	v.loading = false
	v.mu.Unlock()

	if err != nil {
		if v.log != nil {
			v.log.Printf("load %s: %v", code, err)
		}
		v.status.put(fetchFailure(err))
		return reconstruct.Reconstruction{}, err
	}

	msg := fmt.Sprintf("Loaded %d items.", len(r.Items))
	if n := len(r.Skipped); n > 0 {
		msg = fmt.Sprintf("Loaded %d items, %d unknown.", len(r.Items), n)
	}
	v.status.put(msg)
	v.loaded.put(r)
	return r, nil
}

func fetchFailure(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Loading cancelled."
	case errors.Is(err, concoction.ErrNotFound):
		return "Code not found."
	case errors.Is(err, concoction.ErrInvalidCode):
		return fmt.Sprintf("Codes are %d characters.", concoction.CodeLen)
	case errors.Is(err, concoction.ErrUnavailable):
		return "Server unreachable."
	default:
		return "Could not load code."
	}
}
