// Package relaytest provides an in-process relay endpoint speaking the
// pub/sub/ack envelope protocol over WebSocket. It exists for the relay
// package tests and the fakerelay tool: subscribe frames register interest,
// publish frames fan out to subscribed connections (the publisher included,
// when subscribed), and every well-formed inbound frame is recorded for
// inspection.
package relaytest

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame mirrors the wire envelope shape.
type Frame struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

// Frame type codes.
const (
	TypePublish     = "pub"
	TypeSubscribe   = "sub"
	TypeAcknowledge = "ack"
)

const writeWait = 5 * time.Second

// Server is an in-process relay endpoint.
type Server struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	fanout   bool

	lock       sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	conns      map[*serverConn]struct{}
	frames     []Frame
	requests   []string
}

type serverConn struct {
	lock   sync.Mutex
	ws     *websocket.Conn
	topics map[string]int
}

// NewServer returns an unstarted server with publish fan-out enabled.
func NewServer() *Server {
	return &Server{
		logger: zap.NewNop(),
		fanout: true,
		conns:  make(map[*serverConn]struct{}),
	}
}

// SetLogger sets the structured logger on the receiver. Configure before
// Start.
func (server *Server) SetLogger(logger *zap.Logger) *Server {
	if server == nil || logger == nil {
		return server
	}
	server.logger = logger
	return server
}

// SetFanout enables or disables publish fan-out to subscribers. Configure
// before Start.
func (server *Server) SetFanout(fanout bool) *Server {
	if server == nil {
		return server
	}
	server.fanout = fanout
	return server
}

// Start listens on an OS-assigned loopback port.
func (server *Server) Start() error {
	return server.StartAt("127.0.0.1:0")
}

// StartAt listens on the given TCP address. Tests use it to revive a relay
// on the exact address a client keeps retrying.
func (server *Server) StartAt(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	httpServer := &http.Server{Handler: http.HandlerFunc(server.handleSocket)}

	server.lock.Lock()
	server.listener = listener
	server.httpServer = httpServer
	server.lock.Unlock()

	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			server.logger.Debug("relaytest: serve ended", zap.Error(serveErr))
		}
	}()
	server.logger.Info("relaytest: listening", zap.String("address", listener.Addr().String()))
	return nil
}

// Address returns the listening host:port.
func (server *Server) Address() string {
	server.lock.Lock()
	defer server.lock.Unlock()
	if server.listener == nil {
		return ""
	}
	return server.listener.Addr().String()
}

// URL returns a web-scheme endpoint URL for the server, the form clients
// take as their configured base endpoint.
func (server *Server) URL() string {
	return "http://" + server.Address()
}

// Close drops every connection and stops listening.
func (server *Server) Close() {
	server.DropConnections()

	server.lock.Lock()
	httpServer := server.httpServer
	server.httpServer = nil
	server.listener = nil
	server.lock.Unlock()

	if httpServer != nil {
		_ = httpServer.Close()
	}
}

// DropConnections abruptly closes every live connection without a close
// handshake, the way a dying relay would.
func (server *Server) DropConnections() {
	server.lock.Lock()
	conns := make([]*serverConn, 0, len(server.conns))
	for conn := range server.conns {
		conns = append(conns, conn)
	}
	server.lock.Unlock()

	for _, conn := range conns {
		_ = conn.ws.Close()
	}
}

// ConnCount returns the number of live connections.
func (server *Server) ConnCount() int {
	server.lock.Lock()
	defer server.lock.Unlock()
	return len(server.conns)
}

// Frames returns a snapshot of every recorded inbound frame, in receipt
// order.
func (server *Server) Frames() []Frame {
	server.lock.Lock()
	defer server.lock.Unlock()
	frames := make([]Frame, len(server.frames))
	copy(frames, server.frames)
	return frames
}

// FramesOfType filters recorded frames by type code.
func (server *Server) FramesOfType(frameType string) []Frame {
	var matching []Frame
	for _, frame := range server.Frames() {
		if frame.Type == frameType {
			matching = append(matching, frame)
		}
	}
	return matching
}

// Requests returns the upgrade request URLs seen so far, in arrival order.
func (server *Server) Requests() []string {
	server.lock.Lock()
	defer server.lock.Unlock()
	requests := make([]string, len(server.requests))
	copy(requests, server.requests)
	return requests
}

// WaitForFrames polls until at least n frames were recorded or the timeout
// elapses, reporting whether the count was reached.
func (server *Server) WaitForFrames(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		server.lock.Lock()
		count := len(server.frames)
		server.lock.Unlock()
		if count >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// WaitForType polls until at least n frames of the given type were recorded
// or the timeout elapses.
func (server *Server) WaitForType(frameType string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(server.FramesOfType(frameType)) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// WaitForConns polls until at least n connections are live or the timeout
// elapses.
func (server *Server) WaitForConns(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if server.ConnCount() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// BroadcastRaw delivers raw bytes to every live connection, letting tests
// push deliberately malformed traffic.
func (server *Server) BroadcastRaw(data []byte) {
	server.lock.Lock()
	conns := make([]*serverConn, 0, len(server.conns))
	for conn := range server.conns {
		conns = append(conns, conn)
	}
	server.lock.Unlock()

	for _, conn := range conns {
		conn.lock.Lock()
		_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			server.logger.Debug("relaytest: raw write failed", zap.Error(err))
		}
		conn.lock.Unlock()
	}
}

// Broadcast delivers a frame to every live connection regardless of
// subscriptions.
func (server *Server) Broadcast(frame Frame) {
	server.lock.Lock()
	conns := make([]*serverConn, 0, len(server.conns))
	for conn := range server.conns {
		conns = append(conns, conn)
	}
	server.lock.Unlock()

	for _, conn := range conns {
		if err := conn.send(frame); err != nil {
			server.logger.Debug("relaytest: broadcast write failed", zap.Error(err))
		}
	}
}

func (server *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	server.lock.Lock()
	server.requests = append(server.requests, r.URL.String())
	server.lock.Unlock()

	ws, err := server.upgrader.Upgrade(w, r, nil)
	if err != nil {
		server.logger.Debug("relaytest: upgrade failed", zap.Error(err))
		return
	}
	conn := &serverConn{ws: ws, topics: make(map[string]int)}

	server.lock.Lock()
	server.conns[conn] = struct{}{}
	server.lock.Unlock()
	server.logger.Debug("relaytest: connection open", zap.String("remote", ws.RemoteAddr().String()))

	defer func() {
		server.lock.Lock()
		delete(server.conns, conn)
		server.lock.Unlock()
		_ = ws.Close()
		server.logger.Debug("relaytest: connection closed", zap.String("remote", ws.RemoteAddr().String()))
	}()

	for {
		_, data, readErr := ws.ReadMessage()
		if readErr != nil {
			return
		}
		var frame Frame
		if jsonErr := json.Unmarshal(data, &frame); jsonErr != nil {
			server.logger.Debug("relaytest: ignoring malformed frame", zap.Error(jsonErr))
			continue
		}

		// Apply subscription effects before the frame becomes observable,
		// so a recorded subscribe implies the subscription is active.
		if frame.Type == TypeSubscribe {
			conn.lock.Lock()
			conn.topics[frame.Topic]++
			conn.lock.Unlock()
		}

		server.lock.Lock()
		server.frames = append(server.frames, frame)
		server.lock.Unlock()

		if frame.Type == TypePublish && server.fanout {
			server.fanoutFrame(frame)
		}
	}
}

func (server *Server) fanoutFrame(frame Frame) {
	server.lock.Lock()
	conns := make([]*serverConn, 0, len(server.conns))
	for conn := range server.conns {
		conns = append(conns, conn)
	}
	server.lock.Unlock()

	for _, conn := range conns {
		if !conn.subscribed(frame.Topic) {
			continue
		}
		if err := conn.send(frame); err != nil {
			server.logger.Debug("relaytest: fanout write failed", zap.Error(err))
		}
	}
}

func (conn *serverConn) subscribed(topic string) bool {
	conn.lock.Lock()
	defer conn.lock.Unlock()
	return conn.topics[topic] > 0
}

func (conn *serverConn) send(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	conn.lock.Lock()
	defer conn.lock.Unlock()
	_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.ws.WriteMessage(websocket.TextMessage, data)
}
