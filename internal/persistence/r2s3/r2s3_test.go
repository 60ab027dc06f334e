package r2s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]string
	auth    []string
	fail    int
}

func (b *fakeBucket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.Method != http.MethodPut {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if b.fail > 0 {
		b.fail--
		rw.WriteHeader(http.StatusServiceUnavailable)
		_, _ = rw.Write([]byte("SlowDown"))
		return
	}
	body, _ := io.ReadAll(r.Body)
	if b.objects == nil {
		b.objects = map[string]string{}
	}
	b.objects[r.URL.Path] = string(body)
	b.auth = append(b.auth, r.Header.Get("Authorization"))
	rw.WriteHeader(http.StatusOK)
}

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(Config{Endpoint: url, Bucket: "somn", AccessKeyID: "AKID", SecretAccessKey: "secret"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }
	return c
}

func TestClient_PutFileSigns(t *testing.T) {
	b := &fakeBucket{}
	srv := httptest.NewServer(b)
	defer srv.Close()

	p := filepath.Join(t.TempDir(), "1.snap.zst")
	if err := os.WriteFile(p, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := testClient(t, srv.URL).PutFile(context.Background(), "snapshots/1.snap.zst", p); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if got := b.objects["/somn/snapshots/1.snap.zst"]; got != "payload" {
		t.Fatalf("objects=%v", b.objects)
	}
	auth := b.auth[0]
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKID/20260501/auto/s3/aws4_request") ||
		!strings.Contains(auth, "SignedHeaders=host;x-amz-content-sha256;x-amz-date") {
		t.Fatalf("authorization=%q", auth)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	b := &fakeBucket{fail: 1}
	srv := httptest.NewServer(b)
	defer srv.Close()

	err := testClient(t, srv.URL).Put(context.Background(), "k", strings.NewReader("x"), 1)
	if err == nil || !strings.Contains(err.Error(), "status=503") {
		t.Fatalf("err=%v", err)
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{Endpoint: "r2.example.com", Bucket: "b"}, nil); err == nil {
		t.Fatal("expected error without keys")
	}
	c, err := New(Config{Endpoint: "r2.example.com", Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.endpoint != "https://r2.example.com" || c.region != "auto" {
		t.Fatalf("client=%+v", c)
	}
}

func TestNormalizeObjectKey(t *testing.T) {
	cases := map[string]string{
		"a/b.zst":      "a/b.zst",
		"/a//b.zst":    "a/b.zst",
		`a\b.zst`:      "a/b.zst",
		"../x":         "",
		"a/../../x":    "",
		"  ":           "",
		"/":            "",
		"..dotted/key": "..dotted/key",
	}
	for in, want := range cases {
		if got := normalizeObjectKey(in); got != want {
			t.Fatalf("normalizeObjectKey(%q)=%q want %q", in, got, want)
		}
	}
}

type recordingUploader struct {
	mu    sync.Mutex
	keys  []string
	errs  int
	calls int
}

func (u *recordingUploader) PutFile(_ context.Context, key, _ string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.errs > 0 {
		u.errs--
		return errors.New("boom")
	}
	u.keys = append(u.keys, key)
	return nil
}

func TestMirror_UploadsRelativeToDataDir(t *testing.T) {
	data := t.TempDir()
	p := filepath.Join(data, "journal", "concoctions-2026-05-01-08.jsonl.zst")
	_ = os.MkdirAll(filepath.Dir(p), 0o755)
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	up := &recordingUploader{errs: 2}
	m := NewMirror(up, data, MirrorOptions{Prefix: "/prod/", Backoff: func(int) time.Duration { return 0 }}, nil)
	if !m.Enqueue(p) {
		t.Fatal("enqueue dropped")
	}
	m.Enqueue(filepath.Join(t.TempDir(), "elsewhere.zst"))
	m.Close()

	if len(up.keys) != 1 || up.keys[0] != "prod/journal/concoctions-2026-05-01-08.jsonl.zst" {
		t.Fatalf("keys=%v", up.keys)
	}
	st := m.Stats()
	if st.Enqueued != 2 || st.Uploaded != 1 || st.Failed != 1 || up.calls != 3 {
		t.Fatalf("stats=%+v calls=%d", st, up.calls)
	}
	// Close is idempotent and a closed nil mirror is a no-op.
	m.Close()
	var nilMirror *Mirror
	nilMirror.Close()
	if nilMirror.Enqueue(p) {
		t.Fatal("nil mirror accepted work")
	}
}
