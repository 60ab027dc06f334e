// Package session composes the capture and reconstruction machinery with a
// backend client into the AR and VR flows. Every upload or fetch attempt ends
// in exactly one human-readable status.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"somnarium.ai/internal/apiclient"
	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/sim/capture"
)

var (
	ErrUploadInFlight  = errors.New("upload already in progress")
	ErrNotEnoughItems  = errors.New("not enough items to upload")
	ErrFetchInFlight   = errors.New("fetch already in progress")
	ErrNoBackendClient = errors.New("no backend client")
)

// Uploader is the slice of the API client the AR flow needs.
type Uploader interface {
	Ping(ctx context.Context) (bool, error)
	CreateConcoction(ctx context.Context, slugs []string, seeds []float64) (string, error)
}

// ARStatus is what the HUD shows.
type ARStatus struct {
	Message       string
	Online        bool
	Slots         []capture.Slot
	UploadEnabled bool
	UploadHint    string
	Code          string
}

type AR struct {
	col      *capture.Collector
	up       Uploader
	required int
	log      *log.Logger

	mu        sync.Mutex
	online    bool
	uploading bool
	code      string
	status    *mailbox[ARStatus]
}

// NewAR builds an AR session around col. required is the number of items
// an upload needs; <= 0 means the inventory capacity.
func NewAR(col *capture.Collector, up Uploader, required int, logger *log.Logger) *AR {
	if required <= 0 {
		required = col.Inventory().Cap()
	}
	return &AR{col: col, up: up, required: required, log: logger, status: newMailbox[ARStatus]()}
}

// Status delivers HUD updates to a single consumer. Only the newest
// undelivered update is kept.
func (s *AR) Status() <-chan ARStatus { return s.status.recv() }

func (s *AR) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

func (s *AR) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *AR) UploadEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadEnabledLocked()
}

func (s *AR) uploadEnabledLocked() bool {
	return !s.uploading && s.col.Inventory().Len() >= s.required
}

// Probe checks the backend and records the result. An unreachable backend
// only marks the session offline.
func (s *AR) Probe(ctx context.Context) bool {
	ok := false
	if s.up != nil {
		var err error
		ok, err = s.up.Ping(ctx)
		if err != nil {
			s.logf("ping: %v", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = ok
	if ok {
		s.publishLocked("Online")
	} else {
		s.publishLocked("Offline")
	}
	return ok
}

// Tick advances the capture machine and reports collections on the status.
func (s *AR) Tick(dt float64, in capture.Input) []capture.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.col.Tick(dt, in)
	for _, ev := range events {
		switch ev.Kind {
		case capture.EventCollected:
			s.publishLocked("Collected " + ev.Slug)
		case capture.EventRejected:
			s.publishLocked(fmt.Sprintf("Inventory full (%d)", s.col.Inventory().Cap()))
		}
	}
	return events
}

func (s *AR) Collect(id string) (*capture.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, err := s.col.Collect(id)
	switch {
	case errors.Is(err, capture.ErrInventoryFull):
		s.publishLocked(fmt.Sprintf("Inventory full (%d)", s.col.Inventory().Cap()))
	case err == nil && ev != nil:
		s.publishLocked("Collected " + ev.Slug)
	}
	return ev, err
}

func (s *AR) CollectDebug(index int) (capture.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.col.CollectDebug(index)
	switch {
	case errors.Is(err, capture.ErrInventoryFull):
		s.publishLocked(fmt.Sprintf("Inventory full (%d)", s.col.Inventory().Cap()))
	case err == nil:
		s.publishLocked("Collected " + slot.Slug)
	}
	return slot, err
}

// Upload sends the collected items with their seeds and returns the code.
// Only one upload runs at a time; a second call while one is pending fails
// with ErrUploadInFlight and leaves the first untouched.
func (s *AR) Upload(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.uploading {
		s.mu.Unlock()
		return "", ErrUploadInFlight
	}
	inv := s.col.Inventory()
	if inv.Len() < s.required {
		s.publishLocked(fmt.Sprintf("Need %d items to upload", s.required))
		s.mu.Unlock()
		return "", fmt.Errorf("%w: have %d, need %d", ErrNotEnoughItems, inv.Len(), s.required)
	}
	if s.up == nil {
		s.publishLocked("API client missing")
		s.mu.Unlock()
		return "", ErrNoBackendClient
	}
	slugs, seeds := inv.Slugs(), inv.Seeds()
	s.uploading = true
	s.publishLocked("Uploading concoction...")
	s.mu.Unlock()

	code, err := s.up.CreateConcoction(ctx, slugs, seeds)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploading = false
	if err != nil {
		s.logf("upload: %v", err)
		if errors.Is(err, concoction.ErrUnavailable) {
			s.online = false
		}
		s.publishLocked(uploadFailure(err))
		return "", err
	}
	s.online = true
	s.code = code
	s.publishLocked("Code: " + code)
	return code, nil
}

func uploadFailure(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Upload cancelled"
	case apiclient.IsSoftFailure(err):
		return "Upload failed"
	case errors.Is(err, concoction.ErrInvalidItems):
		return "Upload rejected: invalid items"
	default:
		return "Upload failed"
	}
}

func (s *AR) publishLocked(msg string) {
	inv := s.col.Inventory()
	st := ARStatus{
		Message:       msg,
		Online:        s.online,
		Slots:         inv.Slots(),
		UploadEnabled: s.uploadEnabledLocked(),
		Code:          s.code,
	}
	if !st.UploadEnabled && !s.uploading {
		st.UploadHint = fmt.Sprintf("Collect %d items to enable.", s.required)
	}
	s.status.put(st)
}

func (s *AR) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
