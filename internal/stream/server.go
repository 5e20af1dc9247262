// Package stream accepts frames for the panel over a websocket.
//
// Every binary message carries one frame and starts with a type byte:
//
//	'F'  width*height*3 bytes of RGB
//	'B'  width*height*3 bytes of BGR
//	'A'  x1, y1, x2, y2 as little-endian uint16, then the BGR pixels of the
//	     inclusive rectangle
//
// Each message is answered with a text message, "ok" or "error: <reason>".
package stream

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Message types
const (
	FrameRGB = 'F'
	FrameBGR = 'B'
	Area     = 'A'

	areaHeader = 8
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second

	// holdFor keeps the local renderer off the panel after a streamed frame
	holdFor = 2 * time.Second
)

// Target receives decoded frames
type Target interface {
	Update(src []byte) error
	UpdateBGR(src []byte) error
	UpdateArea(src []byte, x1, y1, x2, y2 int) error
}

// Holder is told when streamed content owns the panel
type Holder interface {
	Hold(until time.Time)
}

// Server serves the frame websocket and a health endpoint
type Server struct {
	target   Target
	holder   Holder
	width    int
	height   int
	upgrader websocket.Upgrader

	frames  atomic.Uint64
	clients atomic.Int32
}

// NewServer creates a server feeding a width x height panel. holder may be nil.
func NewServer(target Target, holder Holder, width, height int) *Server {
	return &Server{
		target: target,
		holder: holder,
		width:  width,
		height: height,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes: /ws and /health
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/health", s.serveHealth)
	return mux
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Printf("Frame stream listening on %s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// Frames returns the number of frames applied so far
func (s *Server) Frames() uint64 {
	return s.frames.Load()
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status  string `json:"status"`
		Width   int    `json:"width"`
		Height  int    `json:"height"`
		Frames  uint64 `json:"frames"`
		Clients int32  `json:"clients"`
	}{"ok", s.width, s.height, s.frames.Load(), s.clients.Load()})
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	s.clients.Add(1)
	defer s.clients.Add(-1)
	log.Printf("Stream client %s connected", r.RemoteAddr)

	done := make(chan struct{})
	go s.pingPump(conn, done)
	s.readPump(conn)
	close(done)
	conn.Close()
	log.Printf("Stream client %s disconnected", r.RemoteAddr)
}

// readPump applies frames until the connection fails
func (s *Server) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(int64(1 + areaHeader + s.width*s.height*3))
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		reply := "ok"
		if kind != websocket.BinaryMessage {
			reply = "error: frames must be binary messages"
		} else if err := s.apply(message); err != nil {
			reply = "error: " + err.Error()
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
}

// pingPump keeps the connection alive until done is closed
func (s *Server) pingPump(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// apply decodes one frame message and hands it to the target
func (s *Server) apply(msg []byte) error {
	if len(msg) == 0 {
		return errors.New("empty message")
	}

	var err error
	switch msg[0] {
	case FrameRGB:
		err = s.target.Update(msg[1:])
	case FrameBGR:
		err = s.target.UpdateBGR(msg[1:])
	case Area:
		if len(msg) < 1+areaHeader {
			return fmt.Errorf("area header truncated at %d bytes", len(msg))
		}
		h := msg[1 : 1+areaHeader]
		err = s.target.UpdateArea(msg[1+areaHeader:],
			int(binary.LittleEndian.Uint16(h[0:])),
			int(binary.LittleEndian.Uint16(h[2:])),
			int(binary.LittleEndian.Uint16(h[4:])),
			int(binary.LittleEndian.Uint16(h[6:])))
	default:
		return fmt.Errorf("unknown message type 0x%02x", msg[0])
	}
	if err != nil {
		return err
	}

	s.frames.Add(1)
	if s.holder != nil {
		s.holder.Hold(time.Now().Add(holdFor))
	}
	return nil
}

// AreaMessage encodes an area update for the inclusive rectangle
// (x1, y1)-(x2, y2).
func AreaMessage(bgr []byte, x1, y1, x2, y2 int) []byte {
	msg := make([]byte, 1+areaHeader, 1+areaHeader+len(bgr))
	msg[0] = Area
	binary.LittleEndian.PutUint16(msg[1:], uint16(x1))
	binary.LittleEndian.PutUint16(msg[3:], uint16(y1))
	binary.LittleEndian.PutUint16(msg[5:], uint16(x2))
	binary.LittleEndian.PutUint16(msg[7:], uint16(y2))
	return append(msg, bgr...)
}
