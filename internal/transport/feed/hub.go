// Package feed pushes newly created concoctions to websocket subscribers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/protocol"
	"somnarium.ai/internal/sim/tuning"
)

const (
	maxBacklog   = 200
	pingInterval = 25 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
)

// Lister supplies the BACKLOG sent on subscribe.
type Lister interface {
	List(ctx context.Context, limit int) ([]concoction.Concoction, error)
}

type Options struct {
	Feed tuning.Feed
	// LoopbackOnly refuses connections from non-loopback peers.
	LoopbackOnly bool
}

type Hub struct {
	src  Lister
	log  *log.Logger
	opts Options

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	seq      atomic.Uint64

	mu     sync.Mutex
	subs   map[string]*subscriber
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

type subscriber struct {
	id   string
	out  chan []byte
	done chan struct{}
	once sync.Once
	// codes already sent in the BACKLOG; a CONCOCTION_CREATED racing the
	// backlog query is not sent twice.
	seen map[string]struct{}
}

func (s *subscriber) stop() { s.once.Do(func() { close(s.done) }) }

type Stats struct {
	Subscribers int
	Published   uint64
	Delivered   uint64
	Dropped     uint64
}

func NewHub(src Lister, opts Options, logger *log.Logger) *Hub {
	def := tuning.Defaults().Feed
	if opts.Feed.Backlog <= 0 {
		opts.Feed.Backlog = def.Backlog
	}
	if opts.Feed.MaxQueue <= 0 {
		opts.Feed.MaxQueue = def.MaxQueue
	}
	return &Hub{
		src:  src,
		log:  logger,
		opts: opts,
		subs: map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	n := len(h.subs)
	h.mu.Unlock()
	return Stats{
		Subscribers: n,
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// ConcoctionCreated publishes c to every subscriber. A subscriber whose queue
// is full misses the event; publishers never block.
func (h *Hub) ConcoctionCreated(_ context.Context, c concoction.Concoction) error {
	msg := protocol.ConcoctionCreatedMsg{
		Type:            protocol.TypeConcoctionCreated,
		ProtocolVersion: protocol.Version,
		Seq:             h.seq.Add(1),
		Concoction:      protocol.FromConcoction(c),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.published.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.out <- b:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		sub.stop()
		delete(h.subs, id)
	}
}

func (h *Hub) register() (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &subscriber{
		id:   fmt.Sprintf("F%d", h.nextID.Add(1)),
		out:  make(chan []byte, h.opts.Feed.MaxQueue),
		done: make(chan struct{}),
	}
	h.subs[sub.id] = sub
	return sub, true
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
	sub.stop()
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if h.opts.LoopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
			return
		}
		if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}
		backlog := h.normalizeBacklog(sub.Backlog)

		s, ok := h.register()
		if !ok {
			closeWith(conn, websocket.CloseTryAgainLater, "shutting down")
			return
		}
		defer h.unregister(s)

		// Registered before the backlog query so nothing created in between is lost.
		var recent []concoction.Concoction
		if backlog > 0 {
			recent, err = h.src.List(r.Context(), backlog)
			if err != nil {
				if h.log != nil {
					h.log.Printf("feed %s backlog: %v", s.id, err)
				}
				closeWith(conn, websocket.CloseInternalServerErr, "backlog unavailable")
				return
			}
		}
		bl := protocol.BacklogMsg{
			Type:            protocol.TypeBacklog,
			ProtocolVersion: protocol.Version,
			Concoctions:     make([]protocol.ConcoctionDTO, 0, len(recent)),
		}
		s.seen = make(map[string]struct{}, len(recent))
		for _, c := range recent {
			bl.Concoctions = append(bl.Concoctions, protocol.FromConcoction(c))
			s.seen[c.Code] = struct{}{}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(bl); err != nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			ping := time.NewTicker(pingInterval)
			defer ping.Stop()
			for {
				select {
				case <-s.done:
					closeWith(conn, websocket.CloseGoingAway, "server shutting down")
					_ = conn.Close()
					writeErr <- nil
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
						writeErr <- err
						return
					}
				case b := <-s.out:
					if h.alreadySent(s, b) {
						continue
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
					h.delivered.Add(1)
				}
			}
		}()

		// Reader loop: only control frames matter; anything else is ignored.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		s.stop()
		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (h *Hub) alreadySent(s *subscriber, b []byte) bool {
	if len(s.seen) == 0 {
		return false
	}
	var msg struct {
		Concoction struct {
			Code string `json:"code"`
		} `json:"concoction"`
	}
	if err := json.Unmarshal(b, &msg); err != nil {
		return false
	}
	if _, ok := s.seen[msg.Concoction.Code]; ok {
		delete(s.seen, msg.Concoction.Code)
		return true
	}
	return false
}

func (h *Hub) normalizeBacklog(n int) int {
	switch {
	case n < 0:
		return 0
	case n == 0:
		return h.opts.Feed.Backlog
	case n > maxBacklog:
		return maxBacklog
	}
	return n
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
