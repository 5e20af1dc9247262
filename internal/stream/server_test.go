package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type call struct {
	kind           string
	n              int
	x1, y1, x2, y2 int
}

type fakeTarget struct {
	mu    sync.Mutex
	calls []call
	size  int
}

func (f *fakeTarget) record(c call, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.kind != "area" && n != f.size {
		return errors.New("bad size")
	}
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeTarget) Update(src []byte) error {
	return f.record(call{kind: "rgb", n: len(src)}, len(src))
}

func (f *fakeTarget) UpdateBGR(src []byte) error {
	return f.record(call{kind: "bgr", n: len(src)}, len(src))
}

func (f *fakeTarget) UpdateArea(src []byte, x1, y1, x2, y2 int) error {
	return f.record(call{"area", len(src), x1, y1, x2, y2}, len(src))
}

type fakeHolder struct {
	mu    sync.Mutex
	until time.Time
}

func (h *fakeHolder) Hold(until time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.until = until
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerFrames(t *testing.T) {
	const width, height = 4, 2
	target := &fakeTarget{size: width * height * 3}
	holder := &fakeHolder{}
	s := NewServer(target, holder, width, height)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)

	frame := make([]byte, width*height*3)
	tests := []struct {
		name      string
		kind      int
		msg       []byte
		wantReply string
	}{
		{"rgb frame", websocket.BinaryMessage, append([]byte{FrameRGB}, frame...), "ok"},
		{"bgr frame", websocket.BinaryMessage, append([]byte{FrameBGR}, frame...), "ok"},
		{"area", websocket.BinaryMessage, AreaMessage(make([]byte, 6), 1, 0, 2, 0), "ok"},
		{"short frame", websocket.BinaryMessage, append([]byte{FrameRGB}, frame[1:]...), "error: bad size"},
		{"truncated area", websocket.BinaryMessage, []byte{Area, 1, 0}, "error: area header truncated at 3 bytes"},
		{"unknown type", websocket.BinaryMessage, []byte{'X', 1}, "error: unknown message type 0x58"},
		{"empty", websocket.BinaryMessage, []byte{}, "error: empty message"},
		{"text frame", websocket.TextMessage, []byte("F"), "error: frames must be binary messages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(tt.kind, tt.msg); err != nil {
				t.Fatal(err)
			}
			_, reply, err := conn.ReadMessage()
			if err != nil {
				t.Fatal(err)
			}
			if string(reply) != tt.wantReply {
				t.Errorf("reply = %q, want %q", reply, tt.wantReply)
			}
		})
	}

	want := []call{
		{kind: "rgb", n: 24},
		{kind: "bgr", n: 24},
		{"area", 6, 1, 0, 2, 0},
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	if len(target.calls) != len(want) {
		t.Fatalf("target saw %d calls, want %d", len(target.calls), len(want))
	}
	for i := range want {
		if target.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, target.calls[i], want[i])
		}
	}
	if s.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", s.Frames())
	}

	holder.mu.Lock()
	defer holder.mu.Unlock()
	if !holder.until.After(time.Now()) {
		t.Error("renderer not held after streamed frame")
	}
}

func TestServerReadLimit(t *testing.T) {
	target := &fakeTarget{size: 12}
	s := NewServer(target, nil, 2, 2)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 1+8+12+1)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("oversized message did not close the connection")
	}
}

func TestHealth(t *testing.T) {
	s := NewServer(&fakeTarget{size: 3}, nil, 1, 1)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
		Width  int    `json:"width"`
		Frames uint64 `json:"frames"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Width != 1 || body.Frames != 0 {
		t.Errorf("health = %+v", body)
	}
}
