package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Ready states surfaced by ReadyState. The numbering matches WebSocket
// readyState values; StateAbsent is reported when no connection exists.
const (
	StateAbsent     = -1
	StateConnecting = 0
	StateOpen       = 1
	StateClosing    = 2
	StateClosed     = 3
)

// Time allowed for a single write, including close and ping control frames.
const writeWait = 10 * time.Second

type connectionHandlers struct {
	onOpen    func(*connection)
	onMessage func(*connection, []byte)
	onError   func(*connection, error)
	onClose   func(*connection)
}

// connection is a single WebSocket dial attempt and, once the dial succeeds,
// its read and keepalive loops. Handlers fire from the connection's own
// goroutines. silence() reroutes the close (and error) handlers to no-ops so
// a deliberate close never schedules a retry.
type connection struct {
	id           string
	uri          string
	dialer       *websocket.Dialer
	logger       *zap.Logger
	pingInterval time.Duration
	handlers     connectionHandlers

	state      atomic.Int32
	silenced   atomic.Bool
	closeFired atomic.Bool

	lock sync.Mutex
	ws   *websocket.Conn

	done chan struct{}
}

func newConnection(uri string, dialer *websocket.Dialer, logger *zap.Logger, pingInterval time.Duration, handlers connectionHandlers) *connection {
	conn := &connection{
		id:           uuid.NewString(),
		uri:          uri,
		dialer:       dialer,
		logger:       logger,
		pingInterval: pingInterval,
		handlers:     handlers,
		done:         make(chan struct{}),
	}
	conn.state.Store(StateConnecting)
	return conn
}

func (conn *connection) start() {
	go conn.run()
}

func (conn *connection) run() {
	ws, _, err := conn.dialer.Dial(conn.uri, nil)
	if err != nil {
		conn.logger.Debug("relay: dial failed",
			zap.String("connection_id", conn.id), zap.Error(err))
		conn.state.Store(StateClosed)
		close(conn.done)
		conn.fireError(NewError(ConnectionError, err))
		conn.fireClose()
		return
	}

	conn.lock.Lock()
	if conn.silenced.Load() {
		// Silenced while the dial was still in flight.
		conn.lock.Unlock()
		_ = ws.Close()
		conn.state.Store(StateClosed)
		close(conn.done)
		return
	}
	conn.ws = ws
	conn.lock.Unlock()

	if conn.pingInterval > 0 {
		pongWait := 2 * conn.pingInterval
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		go conn.pingRoutine(ws)
	}

	conn.state.Store(StateOpen)
	if conn.handlers.onOpen != nil {
		conn.handlers.onOpen(conn)
	}
	conn.readRoutine(ws)
}

func (conn *connection) readRoutine(ws *websocket.Conn) {
	defer close(conn.done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			was := conn.state.Swap(StateClosed)
			if was == StateOpen && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				conn.fireError(NewError(ConnectionError, err))
			}
			conn.fireClose()
			return
		}
		if conn.handlers.onMessage != nil {
			conn.handlers.onMessage(conn, data)
		}
	}
}

func (conn *connection) pingRoutine(ws *websocket.Conn) {
	ticker := time.NewTicker(conn.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// send writes one text frame. Callers check the open state first; send
// re-checks under the lock so a racing close turns into an error instead of
// a write on a dead socket.
func (conn *connection) send(data []byte) error {
	if conn == nil {
		return NewError(DisconnectedError)
	}
	conn.lock.Lock()
	defer conn.lock.Unlock()

	if conn.ws == nil || conn.state.Load() != StateOpen {
		return NewError(DisconnectedError)
	}
	_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.ws.WriteMessage(websocket.TextMessage, data)
}

// silence suppresses the connection's close and error handlers. Once
// silenced a connection can be closed without triggering retry scheduling.
func (conn *connection) silence() {
	if conn == nil {
		return
	}
	conn.silenced.Store(true)
}

func (conn *connection) close() {
	if conn == nil {
		return
	}
	conn.state.CompareAndSwap(StateOpen, StateClosing)

	conn.lock.Lock()
	ws := conn.ws
	conn.lock.Unlock()
	if ws == nil {
		return
	}
	deadline := time.Now().Add(writeWait)
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = ws.Close()
}

// State returns the connection's current ready state.
func (conn *connection) State() int {
	if conn == nil {
		return StateAbsent
	}
	return int(conn.state.Load())
}

func (conn *connection) addresses() (local string, remote string) {
	if conn == nil {
		return "", ""
	}
	conn.lock.Lock()
	ws := conn.ws
	conn.lock.Unlock()
	if ws == nil {
		return "", ""
	}
	return ws.LocalAddr().String(), ws.RemoteAddr().String()
}

func (conn *connection) fireError(err error) {
	if conn.silenced.Load() {
		return
	}
	if conn.handlers.onError != nil {
		conn.handlers.onError(conn, err)
	}
}

func (conn *connection) fireClose() {
	if conn.closeFired.Swap(true) {
		return
	}
	if conn.silenced.Load() {
		return
	}
	if conn.handlers.onClose != nil {
		conn.handlers.onClose(conn)
	}
}
