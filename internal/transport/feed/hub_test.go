package feed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/persistence/store"
	"somnarium.ai/internal/protocol"
	"somnarium.ai/internal/sim/tuning"
)

func mustPut(t *testing.T, st *store.Memory, code string, at time.Time) concoction.Concoction {
	t.Helper()
	c := concoction.Concoction{Code: code, Items: []concoction.Item{{Slug: "humming-relic", Seed: 0.42}}, CreatedAt: at}
	if err := st.Put(context.Background(), c); err != nil {
		t.Fatalf("Put %s: %v", code, err)
	}
	return c
}

func dialFeed(t *testing.T, ts *httptest.Server, backlog int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	sub := protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version, Backlog: backlog}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return conn
}

func readBacklog(t *testing.T, conn *websocket.Conn) protocol.BacklogMsg {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var bl protocol.BacklogMsg
	if err := conn.ReadJSON(&bl); err != nil {
		t.Fatalf("read backlog: %v", err)
	}
	if bl.Type != protocol.TypeBacklog {
		t.Fatalf("first message type=%q", bl.Type)
	}
	return bl
}

func waitSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Stats().Subscribers == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscribers=%d want %d", h.Stats().Subscribers, n)
}

func TestHub_BacklogThenLiveEvents(t *testing.T) {
	st := store.NewMemory()
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	mustPut(t, st, "ABCDE0", base)
	mustPut(t, st, "ABCDE1", base.Add(time.Minute))
	mustPut(t, st, "ABCDE2", base.Add(2*time.Minute))

	h := NewHub(st, Options{Feed: tuning.Feed{Backlog: 2, MaxQueue: 8}}, nil)
	ts := httptest.NewServer(h.Handler())
	defer ts.Close()
	defer h.Close()

	conn := dialFeed(t, ts, 0)
	bl := readBacklog(t, conn)
	if len(bl.Concoctions) != 2 || bl.Concoctions[0].Code != "ABCDE2" || bl.Concoctions[1].Code != "ABCDE1" {
		t.Fatalf("backlog=%+v", bl.Concoctions)
	}
	waitSubscribers(t, h, 1)

	c := mustPut(t, st, "K3M9QZ", base.Add(3*time.Minute))
	if err := h.ConcoctionCreated(context.Background(), c); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if err := protocol.ValidateJSON(protocol.SchemaFeedEvent, raw); err != nil {
		t.Fatalf("event schema: %v", err)
	}
	var ev protocol.ConcoctionCreatedMsg
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Seq != 1 || ev.Concoction.Code != "K3M9QZ" || ev.Concoction.Items[0].Slug != "humming-relic" {
		t.Fatalf("event=%+v", ev)
	}
	deadline := time.Now().Add(time.Second)
	for h.Stats().Delivered == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s := h.Stats(); s.Published != 1 || s.Delivered != 1 || s.Dropped != 0 {
		t.Fatalf("stats=%+v", s)
	}
}

func TestHub_NegativeBacklogSendsEmpty(t *testing.T) {
	st := store.NewMemory()
	mustPut(t, st, "ABCDE0", time.Now())
	h := NewHub(st, Options{}, nil)
	ts := httptest.NewServer(h.Handler())
	defer ts.Close()
	defer h.Close()

	bl := readBacklog(t, dialFeed(t, ts, -1))
	if len(bl.Concoctions) != 0 || bl.Concoctions == nil {
		t.Fatalf("backlog=%+v", bl.Concoctions)
	}
}

func TestHub_SkipsEventAlreadyInBacklog(t *testing.T) {
	st := store.NewMemory()
	c := mustPut(t, st, "ABCDE0", time.Now())
	h := NewHub(st, Options{}, nil)

	// Queue the event on a registered subscriber before its backlog is known,
	// the way a creation racing the backlog query would.
	s, ok := h.register()
	if !ok {
		t.Fatal("register refused")
	}
	if err := h.ConcoctionCreated(context.Background(), c); err != nil {
		t.Fatalf("publish: %v", err)
	}
	s.seen = map[string]struct{}{"ABCDE0": {}}
	b := <-s.out
	if !h.alreadySent(s, b) {
		t.Fatal("duplicate of backlog entry not detected")
	}
	if h.alreadySent(s, b) {
		t.Fatal("second copy should be delivered")
	}
	h.unregister(s)
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(store.NewMemory(), Options{Feed: tuning.Feed{MaxQueue: 2}}, nil)
	s, _ := h.register()
	defer h.unregister(s)

	c := concoction.Concoction{Code: "ABCDE0", Items: []concoction.Item{{Slug: "a"}}, CreatedAt: time.Now()}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			_ = h.ConcoctionCreated(context.Background(), c)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber queue")
	}
	if st := h.Stats(); st.Published != 5 || st.Dropped != 3 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestHub_RejectsBadHandshake(t *testing.T) {
	h := NewHub(store.NewMemory(), Options{}, nil)
	ts := httptest.NewServer(h.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(protocol.SubscribeMsg{Type: "HELLO", ProtocolVersion: protocol.Version})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	h := NewHub(store.NewMemory(), Options{}, nil)
	ts := httptest.NewServer(h.Handler())
	defer ts.Close()

	conn := dialFeed(t, ts, 0)
	readBacklog(t, conn)
	waitSubscribers(t, h, 1)

	h.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close")
	}
	if _, ok := h.register(); ok {
		t.Fatal("closed hub accepted a subscriber")
	}
}

func TestNormalizeBacklog(t *testing.T) {
	h := NewHub(store.NewMemory(), Options{Feed: tuning.Feed{Backlog: 7}}, nil)
	cases := map[int]int{-3: 0, 0: 7, 5: 5, 10_000: maxBacklog}
	for in, want := range cases {
		if got := h.normalizeBacklog(in); got != want {
			t.Fatalf("normalizeBacklog(%d)=%d want %d", in, got, want)
		}
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("%s: got %v", in, got)
		}
	}
}
