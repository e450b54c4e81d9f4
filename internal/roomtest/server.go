// Package roomtest runs a scriptable quiz channel over a real websocket for
// tests and local demos.
package roomtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"livequiz/internal/protocol"
)

// Request is one frame a client sent.
type Request struct {
	Conn  *Conn
	Frame protocol.Frame
}

// Decode unmarshals the request payload.
func (r Request) Decode(v any) error {
	return json.Unmarshal(r.Frame.Payload, v)
}

// Handler answers a request. Its return value is the ack payload; returning
// nil sends no ack at all.
type Handler func(req Request) any

// Ack is a convenience ack body.
func Ack(success bool, message string) map[string]any {
	body := map[string]any{"success": success}
	if message != "" {
		body["message"] = message
	}
	return body
}

// Server is an httptest server speaking the quiz envelope.
type Server struct {
	*httptest.Server

	upgrader websocket.Upgrader

	mu         sync.Mutex
	token      string
	rejectWith int
	handlers   map[string]Handler
	conns      []*Conn
	received   []Request
	connected  chan *Conn
	requests   chan Request
}

// New starts a server. When token is non-empty, authenticate must present it.
func New(token string) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		token:     token,
		handlers:  map[string]Handler{},
		connected: make(chan *Conn, 16),
		requests:  make(chan Request, 256),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	s.Server = httptest.NewServer(mux)
	return s
}

// URL is the websocket endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/ws"
}

// Handle installs h for request type typ.
func (s *Server) Handle(typ protocol.RequestType, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[string(typ)] = h
}

// RejectUpgrades makes every upgrade fail with the HTTP status code; 0 accepts again.
func (s *Server) RejectUpgrades(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectWith = code
}

// Broadcast sends an event to every live connection.
func (s *Server) Broadcast(typ protocol.EventType, payload any) {
	for _, c := range s.Conns() {
		c.Emit(typ, payload)
	}
}

// EmitRaw sends a raw frame to every live connection.
func (s *Server) EmitRaw(raw string) {
	for _, c := range s.Conns() {
		c.send([]byte(raw))
	}
}

// Conns lists live connections.
func (s *Server) Conns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		if !c.isClosed() {
			out = append(out, c)
		}
	}
	return out
}

// DropAll abruptly closes every connection, as a network failure would.
func (s *Server) DropAll() {
	for _, c := range s.Conns() {
		c.Close()
	}
}

// WaitConn waits for the next accepted connection.
func (s *Server) WaitConn(timeout time.Duration) (*Conn, bool) {
	select {
	case c := <-s.connected:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}

// WaitRequest waits for the next request of type typ, skipping others.
func (s *Server) WaitRequest(typ protocol.RequestType, timeout time.Duration) (Request, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case r := <-s.requests:
			if r.Frame.Type == string(typ) {
				return r, true
			}
		case <-deadline:
			return Request{}, false
		}
	}
}

// Received returns every request of type typ seen so far.
func (s *Server) Received(typ protocol.RequestType) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.received {
		if r.Frame.Type == string(typ) {
			out = append(out, r)
		}
	}
	return out
}

// Count is len(Received(typ)).
func (s *Server) Count(typ protocol.RequestType) int {
	return len(s.Received(typ))
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject := s.rejectWith
	s.mu.Unlock()
	if reject != 0 {
		http.Error(w, http.StatusText(reject), reject)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	c := &Conn{ws: ws, out: make(chan []byte, 64), done: make(chan struct{})}
	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.mu.Unlock()

	go c.writeLoop()
	select {
	case s.connected <- c:
	default:
	}

	for {
		var f protocol.Frame
		if err := ws.ReadJSON(&f); err != nil {
			break
		}
		s.handle(c, f)
	}
	c.Close()
}

func (s *Server) handle(c *Conn, f protocol.Frame) {
	req := Request{Conn: c, Frame: f}
	s.mu.Lock()
	s.received = append(s.received, req)
	h, ok := s.handlers[f.Type]
	token := s.token
	s.mu.Unlock()

	select {
	case s.requests <- req:
	default:
	}

	if f.ID == "" {
		return
	}
	var body any
	switch {
	case ok:
		body = h(req)
	case f.Type == string(protocol.RequestAuthenticate):
		var auth protocol.Authenticate
		_ = req.Decode(&auth)
		if token == "" || auth.Token == token {
			body = Ack(true, "")
		} else {
			body = Ack(false, "invalid token")
		}
	default:
		body = Ack(true, "")
	}
	if body != nil {
		c.Reply(f.ID, body)
	}
}

// Conn is one accepted client connection.
type Conn struct {
	ws        *websocket.Conn
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Emit sends an event frame.
func (c *Conn) Emit(typ protocol.EventType, payload any) {
	f, err := protocol.NewFrame(string(typ), "", payload)
	if err != nil {
		log.Error().Err(err).Msg("encode event")
		return
	}
	data, _ := json.Marshal(f)
	c.send(data)
}

// Reply sends an ack for request id.
func (c *Conn) Reply(id string, body any) {
	f, err := protocol.NewFrame(protocol.FrameAck, id, body)
	if err != nil {
		log.Error().Err(err).Msg("encode ack")
		return
	}
	data, _ := json.Marshal(f)
	c.send(data)
}

// Close drops the connection without a close handshake.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) send(data []byte) {
	select {
	case c.out <- data:
	case <-c.done:
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.out:
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
