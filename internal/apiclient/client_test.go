package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"somnarium.ai/internal/allocator"
	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/persistence/store"
	"somnarium.ai/internal/protocol"
	"somnarium.ai/internal/transport/httpapi"
)

func newBackend(t *testing.T, codes ...string) (*store.Memory, *Client) {
	t.Helper()
	st := store.NewMemory()
	opts := allocator.Options{}
	if len(codes) > 0 {
		opts.Codes = allocator.Sequence(codes...)
	}
	srv := httpapi.NewServer(allocator.New(st, opts), st, httpapi.Options{}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return st, New(ts.URL+"/", Options{Timeout: 2 * time.Second})
}

func TestClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	_, cl := newBackend(t, "K3M9QZ")

	ok, err := cl.Ping(ctx)
	if err != nil || !ok {
		t.Fatalf("Ping ok=%v err=%v", ok, err)
	}

	code, err := cl.CreateConcoction(ctx, []string{"gravity-anomaly", "humming-relic", "chromatic-shifter"}, []float64{0.1, 0.2, 0.3})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if code != "K3M9QZ" {
		t.Fatalf("code=%q", code)
	}

	c, err := cl.GetConcoction(ctx, " k3m9qz ")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(c.Items) != 3 || c.Items[2].Slug != "chromatic-shifter" || c.Items[2].Seed != 0.3 {
		t.Fatalf("concoction=%+v", c)
	}

	list, err := cl.ListConcoctions(ctx, 5)
	if err != nil || len(list) != 1 || list[0].Code != "K3M9QZ" {
		t.Fatalf("list=%+v err=%v", list, err)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	ctx := context.Background()
	_, cl := newBackend(t)

	if _, err := cl.GetConcoction(ctx, "ZZZZZZ"); !errors.Is(err, concoction.ErrNotFound) {
		t.Fatalf("unknown code: %v", err)
	}
	if _, err := cl.GetConcoction(ctx, "ABC"); !errors.Is(err, concoction.ErrInvalidCode) {
		t.Fatalf("short code: %v", err)
	}
	if _, err := cl.GetConcoction(ctx, "   "); !errors.Is(err, concoction.ErrInvalidCode) {
		t.Fatalf("empty code: %v", err)
	}
	_, err := cl.CreateConcoction(ctx, nil, nil)
	if !errors.Is(err, concoction.ErrInvalidItems) {
		t.Fatalf("empty items: %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Message == "" {
		t.Fatalf("api error=%+v", apiErr)
	}
	if IsSoftFailure(err) {
		t.Fatal("validation failure reported as soft failure")
	}
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	cl := New(url, Options{Timeout: 500 * time.Millisecond})
	ok, err := cl.Ping(context.Background())
	if ok || !errors.Is(err, concoction.ErrUnavailable) || !IsSoftFailure(err) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestClient_ServerFailureIsSoft(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusInternalServerError)
		_, _ = rw.Write([]byte(`{"success":false,"error":"Failed to save concoction.","code":"` + protocol.ErrStorage + `"}`))
	}))
	defer ts.Close()

	_, err := New(ts.URL, Options{}).CreateConcoction(context.Background(), []string{"a"}, nil)
	if !IsSoftFailure(err) {
		t.Fatalf("err=%v", err)
	}
	if err.Error() != "Failed to save concoction. (500 E_STORAGE)" {
		t.Fatalf("message=%q", err.Error())
	}
}

func TestClient_ImplementsSource(t *testing.T) {
	ctx := context.Background()
	st, cl := newBackend(t)
	c := concoction.Concoction{Code: "ABCDE0", Items: []concoction.Item{{Slug: "humming-relic", Seed: 0.5}}, CreatedAt: time.Now().UTC()}
	if err := st.Put(ctx, c); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := cl.Get(ctx, "abcde0")
	if err != nil || got.Items[0].Seed != 0.5 {
		t.Fatalf("got=%+v err=%v", got, err)
	}
}
