package stream

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/live"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type frame struct {
	event string
	id    string
	data  string
}

// readFrame reads lines up to the next blank line. Comment lines are reported
// as an event named ":".
func readFrame(t *testing.T, r *bufio.Reader) frame {
	t.Helper()
	var f frame
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return f
		case strings.HasPrefix(line, ":"):
			f.event = ":"
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			f.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			f.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func newStreamServer(t *testing.T, hub *live.Hub, heartbeat time.Duration, read Reader) *httptest.Server {
	t.Helper()
	r := gin.New()
	r.GET("/stream", func(c *gin.Context) {
		Serve(c, hub, Options{Topic: "board:b1", Heartbeat: heartbeat}, read, nil)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func open(t *testing.T, url string) (*http.Response, *bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	return resp, bufio.NewReader(resp.Body), cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ---------------------------------------------------------------------------
// Serve
// ---------------------------------------------------------------------------

func TestServe_SnapshotThenUpdates(t *testing.T) {
	hub := live.NewHub(nil, "test", nil)
	var rev atomic.Int64
	rev.Store(3)
	read := func(ctx context.Context) (interface{}, int64, error) {
		r := rev.Load()
		return map[string]int64{"revision": r}, r, nil
	}
	srv := newStreamServer(t, hub, time.Hour, read)

	resp, r, _ := open(t, srv.URL+"/stream")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}

	f := readFrame(t, r)
	if f.event != "snapshot" || f.id != "3" || f.data != `{"revision":3}` {
		t.Fatalf("first frame = %+v", f)
	}

	rev.Store(4)
	if err := hub.Publish(context.Background(), live.Event{Topic: "board:b1", Revision: 4}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	f = readFrame(t, r)
	if f.event != "snapshot" || f.id != "4" || f.data != `{"revision":4}` {
		t.Errorf("second frame = %+v", f)
	}
}

func TestServe_SkipsStaleEvents(t *testing.T) {
	hub := live.NewHub(nil, "test", nil)
	var rev atomic.Int64
	rev.Store(5)
	var reads atomic.Int32
	read := func(ctx context.Context) (interface{}, int64, error) {
		reads.Add(1)
		return rev.Load(), rev.Load(), nil
	}
	srv := newStreamServer(t, hub, time.Hour, read)

	_, r, _ := open(t, srv.URL+"/stream")
	readFrame(t, r)

	// Revision 5 is already on the wire; only 6 triggers a reload.
	_ = hub.Publish(context.Background(), live.Event{Topic: "board:b1", Revision: 5})
	rev.Store(6)
	_ = hub.Publish(context.Background(), live.Event{Topic: "board:b1", Revision: 6})

	f := readFrame(t, r)
	if f.id != "6" {
		t.Errorf("frame id = %q, want 6", f.id)
	}
	if got := reads.Load(); got != 2 {
		t.Errorf("reads = %d, want 2", got)
	}
}

func TestServe_Heartbeat(t *testing.T) {
	hub := live.NewHub(nil, "test", nil)
	read := func(ctx context.Context) (interface{}, int64, error) { return "x", 1, nil }
	srv := newStreamServer(t, hub, 10*time.Millisecond, read)

	_, r, _ := open(t, srv.URL+"/stream")
	readFrame(t, r)
	if f := readFrame(t, r); f.event != ":" {
		t.Errorf("expected heartbeat comment, got %+v", f)
	}
}

func TestServe_InitialReadFails(t *testing.T) {
	hub := live.NewHub(nil, "test", nil)
	read := func(ctx context.Context) (interface{}, int64, error) { return nil, 0, errors.New("db down") }
	srv := newStreamServer(t, hub, time.Hour, read)

	resp, err := http.Get(srv.URL + "/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	waitFor(t, func() bool { return hub.SubscriberCount("board:b1") == 0 })
}

func TestServe_ReloadFailureEndsStream(t *testing.T) {
	hub := live.NewHub(nil, "test", nil)
	var fail atomic.Bool
	read := func(ctx context.Context) (interface{}, int64, error) {
		if fail.Load() {
			return nil, 0, errors.New("db down")
		}
		return "ok", 1, nil
	}
	srv := newStreamServer(t, hub, time.Hour, read)

	_, r, _ := open(t, srv.URL+"/stream")
	readFrame(t, r)

	fail.Store(true)
	_ = hub.Publish(context.Background(), live.Event{Topic: "board:b1", Revision: 2})
	if f := readFrame(t, r); f.event != "error" {
		t.Errorf("frame = %+v, want error event", f)
	}
	waitFor(t, func() bool { return hub.SubscriberCount("board:b1") == 0 })
}

func TestServe_DisconnectClosesSubscription(t *testing.T) {
	hub := live.NewHub(nil, "test", nil)
	read := func(ctx context.Context) (interface{}, int64, error) { return "x", 1, nil }
	srv := newStreamServer(t, hub, time.Hour, read)

	_, r, cancel := open(t, srv.URL+"/stream")
	readFrame(t, r)
	if n := hub.SubscriberCount("board:b1"); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}
	cancel()
	waitFor(t, func() bool { return hub.SubscriberCount("board:b1") == 0 })
}
