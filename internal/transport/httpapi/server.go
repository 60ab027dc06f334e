// Package httpapi serves the concoction HTTP+JSON interface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"somnarium.ai/internal/allocator"
	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/persistence/store"
	"somnarium.ai/internal/protocol"
	"somnarium.ai/internal/sim/tuning"
)

const (
	DefaultService = "somnarium"
	defaultMaxBody = 16 << 10
)

// CreatedSink receives every concoction after it has been stored.
// Errors are logged and never fail the request.
type CreatedSink interface {
	ConcoctionCreated(ctx context.Context, c concoction.Concoction) error
}

type Options struct {
	Service string
	Listing tuning.Listing
	MaxBody int64
	Sinks   []CreatedSink
}

type Server struct {
	alloc   *allocator.Allocator
	store   store.Store
	listing tuning.Listing
	service string
	maxBody int64
	sinks   []CreatedSink
	log     *log.Logger

	requests   atomic.Uint64
	created    atomic.Uint64
	lookups    atomic.Uint64
	notFound   atomic.Uint64
	badRequest atomic.Uint64
	failures   atomic.Uint64
}

type Stats struct {
	Requests   uint64
	Created    uint64
	Lookups    uint64
	NotFound   uint64
	BadRequest uint64
	Failures   uint64
}

func NewServer(alloc *allocator.Allocator, s store.Store, opts Options, logger *log.Logger) *Server {
	srv := &Server{
		alloc:   alloc,
		store:   s,
		listing: opts.Listing,
		service: opts.Service,
		maxBody: opts.MaxBody,
		sinks:   opts.Sinks,
		log:     logger,
	}
	if srv.service == "" {
		srv.service = DefaultService
	}
	if srv.maxBody <= 0 {
		srv.maxBody = defaultMaxBody
	}
	if srv.listing.MaxLimit <= 0 {
		srv.listing = tuning.Defaults().Listing
	}
	return srv
}

func (s *Server) Stats() Stats {
	return Stats{
		Requests:   s.requests.Load(),
		Created:    s.created.Load(),
		Lookups:    s.lookups.Load(),
		NotFound:   s.notFound.Load(),
		BadRequest: s.badRequest.Load(),
		Failures:   s.failures.Load(),
	}
}

// Handler returns the API routed at the root and again under /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Group(s.routes)
	r.Route("/api", s.routes)
	return r
}

func (s *Server) routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Post("/concoctions", s.handleCreate)
	r.Get("/concoctions", s.handleList)
	r.Get("/concoctions/{code}", s.handleGet)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if s.log != nil {
			s.log.Printf("%s %s %s status=%d bytes=%d dur=%s req=%s",
				r.RemoteAddr, r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(),
				time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()))
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{OK: true, Service: s.service})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.fail(w, http.StatusRequestEntityTooLarge, protocol.ErrBadRequest, "Request body too large.")
			return
		}
		s.fail(w, http.StatusBadRequest, protocol.ErrBadRequest, "Could not read request body.")
		return
	}
	if err := protocol.ValidateJSON(protocol.SchemaCreateRequest, raw); err != nil {
		code := protocol.ErrBadRequest
		var se *protocol.SchemaError
		if errors.As(err, &se) && itemsFailure(se) {
			code = protocol.ErrInvalidItems
		}
		s.fail(w, http.StatusBadRequest, code, err.Error())
		return
	}
	var req protocol.CreateConcoctionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.fail(w, http.StatusBadRequest, protocol.ErrBadRequest, "malformed JSON: "+err.Error())
		return
	}

	c, err := s.alloc.AllocateWithSeeds(r.Context(), req.Items, req.Seeds)
	if err != nil {
		status, code := protocol.Classify(err)
		msg := err.Error()
		if status >= 500 {
			s.logf("create concoction: %v", err)
			if code == protocol.ErrAllocationExhausted {
				msg = "Could not allocate a code, try again."
			} else {
				msg = "Failed to save concoction."
			}
		}
		s.fail(w, status, code, msg)
		return
	}
	s.created.Add(1)

	for _, sink := range s.sinks {
		if err := sink.ConcoctionCreated(r.Context(), c); err != nil {
			s.logf("sink %T: %v", sink, err)
		}
	}
	writeJSON(w, http.StatusCreated, protocol.CreateConcoctionResponse{Success: true, Code: c.Code})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.lookups.Add(1)
	code, err := concoction.ValidateCode(chi.URLParam(r, "code"))
	if err != nil {
		s.fail(w, http.StatusBadRequest, protocol.ErrInvalidCode, "Code must be 6 characters.")
		return
	}
	c, err := s.store.Get(r.Context(), code)
	if err != nil {
		status, ecode := protocol.Classify(err)
		switch {
		case status == http.StatusNotFound:
			s.notFound.Add(1)
			s.fail(w, status, ecode, "Code not found.")
		default:
			s.logf("get %s: %v", code, err)
			s.fail(w, status, ecode, "Failed to fetch concoction.")
		}
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromConcoction(c))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if q := strings.TrimSpace(r.URL.Query().Get("limit")); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			s.fail(w, http.StatusBadRequest, protocol.ErrBadRequest, "limit must be an integer.")
			return
		}
		limit = n
	}
	list, err := s.store.List(r.Context(), s.listing.ClampLimit(limit))
	if err != nil {
		s.logf("list: %v", err)
		s.fail(w, http.StatusInternalServerError, protocol.ErrStorage, "Failed to list concoctions.")
		return
	}
	out := make([]protocol.ConcoctionDTO, 0, len(list))
	for _, c := range list {
		out = append(out, protocol.FromConcoction(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) fail(w http.ResponseWriter, status int, code, msg string) {
	if status >= 500 {
		s.failures.Add(1)
	} else if status != http.StatusNotFound {
		s.badRequest.Add(1)
	}
	writeJSON(w, status, protocol.ErrorResponse{Success: false, Error: msg, Code: code})
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// itemsFailure reports whether a schema failure concerns the item list:
// a missing, non-array, empty or oversized items field.
func itemsFailure(se *protocol.SchemaError) bool {
	switch se.Field() {
	case "items":
		return true
	case "":
		return strings.Contains(se.Message, "items")
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
