package relay

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientVersion is reported in connection info.
const ClientVersion = "0.1.0"

// DefaultPingInterval is the keepalive ping cadence for established
// connections. SetPingInterval(0) disables keepalive entirely.
const DefaultPingInterval = 30 * time.Second

// Options configures a Client. URL is required; everything else has a
// usable zero value.
type Options struct {
	// Protocol and Version are embedded in every connection URL.
	Protocol string
	Version  int

	// URL is the base relay endpoint. Web schemes are upgraded to their
	// socket equivalents when connecting.
	URL string

	// Subscriptions are auto-subscribed on every successful connection.
	Subscriptions []string

	// Monitor supplies the online signal. Nil selects the built-in
	// ProbeMonitor against the endpoint host.
	Monitor NetworkMonitor
}

// ConnectionInfo describes the transport and its current connection.
type ConnectionInfo map[string]string

// Client is a resilient, message-queuing transport holding one logical
// connection to a relay endpoint. Sends and subscribes never block: while
// disconnected they buffer in the outbound queue, and every (re)connection
// replays subscriptions followed by the queue, in order.
type Client struct {
	lock sync.Mutex

	name    string
	options Options

	active  *connection
	pending *connection

	queue         *sendQueue
	subscriptions []string

	dispatcher *eventDispatcher

	logger        *zap.Logger
	dialer        *websocket.Dialer
	delayStrategy ReconnectDelayStrategy
	pingInterval  time.Duration
	monitor       NetworkMonitor

	userClosed    bool
	everConnected bool
	retryTimer    *time.Timer

	sentCount      atomic.Uint64
	queuedCount    atomic.Uint64
	receivedCount  atomic.Uint64
	ackedCount     atomic.Uint64
	discardedCount atomic.Uint64
	reconnectCount atomic.Uint64
}

// NewClient validates options and returns an unconnected Client. The only
// hard requirement is a parseable, non-empty URL; connecting starts with
// Open.
func NewClient(options Options) (*Client, error) {
	if options.URL == "" {
		return nil, NewError(ConfigurationError, "a relay url is required")
	}
	if _, err := BuildURL(options.URL, options.Protocol, options.Version); err != nil {
		return nil, err
	}

	subscriptions := make([]string, len(options.Subscriptions))
	copy(subscriptions, options.Subscriptions)
	options.Subscriptions = subscriptions

	client := &Client{
		name:          "relay-go-" + ClientVersion + "-" + uuid.NewString(),
		options:       options,
		queue:         newSendQueue(),
		subscriptions: append([]string(nil), subscriptions...),
		dispatcher:    newEventDispatcher(),
		logger:        zap.NewNop(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
		delayStrategy: NewFixedDelayStrategy(DefaultRetryDelay),
		pingInterval:  DefaultPingInterval,
		monitor:       options.Monitor,
	}
	if client.monitor == nil {
		client.monitor = NewProbeMonitor(probeAddress(options.URL), DefaultProbeInterval)
	}
	return client, nil
}

// Open starts connecting. It is safe to call at any time: a connection
// attempt already in flight makes it a no-op, and calling it after Close
// re-enables automatic retries.
func (client *Client) Open() error {
	if client == nil {
		return NewError(UnknownError, "nil client")
	}
	client.lock.Lock()
	client.userClosed = false
	monitor := client.monitor
	client.lock.Unlock()

	if monitor != nil {
		monitor.Start(func() { _ = client.create() })
	}
	return client.create()
}

// Close silently closes the active connection and stops the retry loop and
// network monitor. It does not prevent a subsequent Open.
func (client *Client) Close() {
	if client == nil {
		return
	}
	client.lock.Lock()
	client.userClosed = true
	active := client.active
	if active != nil {
		active.silence()
	}
	if client.retryTimer != nil {
		client.retryTimer.Stop()
		client.retryTimer = nil
	}
	monitor := client.monitor
	client.lock.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	if active != nil {
		active.close()
	}
	client.log().Info("relay: closed", zap.String("client", client.name))
}

// Send publishes payload on topic. The optional silent flag marks the
// envelope as protocol-internal so receivers skip application notification
// for it. While disconnected the envelope is queued and a reconnect attempt
// is kicked off.
func (client *Client) Send(payload string, topic string, silent ...bool) error {
	if client == nil {
		return NewError(UnknownError, "nil client")
	}
	if topic == "" {
		return NewError(InvalidTopicError, "a topic must be specified")
	}
	quiet := false
	if len(silent) > 0 {
		quiet = silent[0]
	}
	client.transmitOrQueue(NewPublishEnvelope(topic, payload, quiet))
	return nil
}

// Subscribe registers topic for delivery and sends a subscribe envelope,
// queueing it while disconnected. The topic joins the live subscription
// list, so it is replayed on the next reconnection before the list resets
// to the configured set.
func (client *Client) Subscribe(topic string) error {
	if client == nil {
		return NewError(UnknownError, "nil client")
	}
	if topic == "" {
		return NewError(InvalidTopicError, "a topic must be specified")
	}
	client.lock.Lock()
	client.subscriptions = append(client.subscriptions, topic)
	client.lock.Unlock()

	client.transmitOrQueue(NewSubscribeEnvelope(topic))
	return nil
}

// On registers a listener for an event name ("message" or "error").
// Listeners accumulate for the lifetime of the client and are invoked in
// registration order.
func (client *Client) On(event string, listener Listener) *Client {
	if client == nil {
		return nil
	}
	client.dispatcher.on(event, listener)
	return client
}

// create is the single entry point for connection attempts: a no-op while a
// pending attempt exists or after Close. The returned error is non-nil only
// when the connection handle cannot be constructed at all, which is fatal
// and never retried.
func (client *Client) create() error {
	client.lock.Lock()
	if client.userClosed || client.pending != nil {
		client.lock.Unlock()
		return nil
	}
	uri, err := BuildURL(client.options.URL, client.options.Protocol, client.options.Version)
	if err != nil {
		client.lock.Unlock()
		return err
	}
	// Each attempt dials with its own copy so setter calls cannot race an
	// in-flight dial.
	dialer := *client.dialer
	conn := newConnection(uri, &dialer, client.logger, client.pingInterval, connectionHandlers{
		onOpen:    client.handleOpen,
		onMessage: client.handleMessage,
		onError:   client.handleError,
		onClose:   client.handleClose,
	})
	logger := client.logger
	client.pending = conn
	client.lock.Unlock()

	logger.Debug("relay: connection attempt",
		zap.String("client", client.name),
		zap.String("connection_id", conn.id),
		zap.String("uri", uri))
	conn.start()
	return nil
}

// handleOpen promotes the pending connection to active: the old active is
// silenced before it can race a close event, then closed, then
// subscriptions replay and the queue drains, in that order.
func (client *Client) handleOpen(conn *connection) {
	client.lock.Lock()
	previous := client.active
	if previous != nil {
		previous.silence()
	}
	client.active = conn
	if client.pending == conn {
		client.pending = nil
	}
	if client.retryTimer != nil {
		client.retryTimer.Stop()
		client.retryTimer = nil
	}
	reconnected := client.everConnected
	client.everConnected = true
	strategy := client.delayStrategy
	logger := client.logger
	client.lock.Unlock()

	if previous != nil {
		previous.close()
	}
	if reconnected {
		client.reconnectCount.Add(1)
	}
	if strategy != nil {
		strategy.Reset()
	}
	logger.Info("relay: connection open",
		zap.String("client", client.name),
		zap.String("connection_id", conn.id),
		zap.Bool("reconnect", reconnected))

	client.replaySubscriptions()
	client.drain()
}

// handleClose runs for every non-silenced connection close, whether a failed
// dial or a dropped established connection, and schedules the next attempt.
func (client *Client) handleClose(conn *connection) {
	client.lock.Lock()
	if client.pending == conn {
		client.pending = nil
	}
	if client.userClosed {
		client.lock.Unlock()
		return
	}
	strategy := client.delayStrategy
	uri := client.options.URL
	logger := client.logger
	client.lock.Unlock()

	delay := DefaultRetryDelay
	if strategy != nil {
		if d, err := strategy.GetConnectWaitDuration(uri); err == nil {
			delay = d
		}
	}
	logger.Debug("relay: connection closed, retry scheduled",
		zap.String("client", client.name),
		zap.String("connection_id", conn.id),
		zap.Duration("delay", delay))

	client.lock.Lock()
	if client.retryTimer != nil {
		client.retryTimer.Stop()
	}
	client.retryTimer = time.AfterFunc(delay, func() { _ = client.create() })
	client.lock.Unlock()
}

func (client *Client) handleError(conn *connection, err error) {
	client.dispatcher.dispatch(Event{Name: EventError, Err: err})
}

// handleMessage is the receive path: parse, acknowledge unconditionally,
// then dispatch to message listeners only while the active connection is
// still open.
func (client *Client) handleMessage(conn *connection, data []byte) {
	envelope, err := ParseEnvelope(data)
	if err != nil {
		client.discardedCount.Add(1)
		client.log().Debug("relay: discarding malformed inbound event",
			zap.String("client", client.name), zap.Error(err))
		return
	}
	client.receivedCount.Add(1)

	client.transmitOrQueue(NewAcknowledgeEnvelope(envelope.Topic))
	client.ackedCount.Add(1)

	client.lock.Lock()
	active := client.active
	client.lock.Unlock()
	if active == nil || active.State() != StateOpen {
		return
	}
	client.dispatcher.dispatch(Event{Name: EventMessage, Envelope: &envelope})
}

// transmitOrQueue transmits the envelope when the active connection is open
// and otherwise queues it and kicks off a reconnect. A failed write also
// falls back to the queue, so no envelope is lost to an unstable socket.
func (client *Client) transmitOrQueue(envelope Envelope) {
	data, err := envelope.Encode()
	if err != nil {
		client.log().Warn("relay: dropping unencodable envelope",
			zap.String("client", client.name), zap.Error(err))
		return
	}

	client.lock.Lock()
	active := client.active
	client.lock.Unlock()

	if active != nil && active.State() == StateOpen {
		if sendErr := active.send(data); sendErr == nil {
			client.sentCount.Add(1)
			return
		}
	}

	client.queue.push(envelope)
	client.queuedCount.Add(1)
	_ = client.create()
}

// drain transmits the queued envelopes in FIFO order. The snapshot-and-clear
// lets transmitOrQueue re-queue anything that fails mid-drain.
func (client *Client) drain() {
	for _, envelope := range client.queue.takeAll() {
		client.transmitOrQueue(envelope)
	}
}

// replaySubscriptions queues one subscribe envelope per live-list topic and
// resets the live list to the configured set, so repeated reconnects replay
// the same subscriptions instead of an accumulating list.
func (client *Client) replaySubscriptions() {
	client.lock.Lock()
	topics := client.subscriptions
	client.subscriptions = append([]string(nil), client.options.Subscriptions...)
	client.lock.Unlock()

	for _, topic := range topics {
		client.queue.push(NewSubscribeEnvelope(topic))
		client.queuedCount.Add(1)
	}
}

// ReadyState reports the active connection's state, or StateAbsent when no
// connection has been promoted yet.
func (client *Client) ReadyState() int {
	if client == nil {
		return StateAbsent
	}
	client.lock.Lock()
	active := client.active
	client.lock.Unlock()
	if active == nil {
		return StateAbsent
	}
	return active.State()
}

// Connecting reports whether the active connection is mid-handshake.
func (client *Client) Connecting() bool { return client.ReadyState() == StateConnecting }

// Connected reports whether the active connection is open.
func (client *Client) Connected() bool { return client.ReadyState() == StateOpen }

// Closing reports whether the active connection is shutting down.
func (client *Client) Closing() bool { return client.ReadyState() == StateClosing }

// Closed reports whether the active connection has closed.
func (client *Client) Closed() bool { return client.ReadyState() == StateClosed }

// Name returns the generated client name used in logs and connection info.
func (client *Client) Name() string {
	if client == nil {
		return ""
	}
	return client.name
}

// SetLogger sets the structured logger on the receiver.
func (client *Client) SetLogger(logger *zap.Logger) *Client {
	if client == nil || logger == nil {
		return client
	}
	client.lock.Lock()
	client.logger = logger
	client.lock.Unlock()
	return client
}

func (client *Client) log() *zap.Logger {
	client.lock.Lock()
	defer client.lock.Unlock()
	return client.logger
}

// SetReconnectDelayStrategy sets the reconnect delay strategy on the
// receiver.
func (client *Client) SetReconnectDelayStrategy(strategy ReconnectDelayStrategy) *Client {
	if client == nil || strategy == nil {
		return client
	}
	client.lock.Lock()
	client.delayStrategy = strategy
	client.lock.Unlock()
	return client
}

// SetDialer sets the WebSocket dialer on the receiver, replacing the
// default dialer and its handshake timeout.
func (client *Client) SetDialer(dialer *websocket.Dialer) *Client {
	if client == nil || dialer == nil {
		return client
	}
	client.lock.Lock()
	client.dialer = dialer
	client.lock.Unlock()
	return client
}

// SetHandshakeTimeout sets the dial handshake timeout on the receiver.
func (client *Client) SetHandshakeTimeout(timeout time.Duration) *Client {
	if client == nil {
		return client
	}
	client.lock.Lock()
	client.dialer.HandshakeTimeout = timeout
	client.lock.Unlock()
	return client
}

// SetPingInterval sets the keepalive ping interval on the receiver. Zero
// disables keepalive. Applies to connections created afterwards.
func (client *Client) SetPingInterval(interval time.Duration) *Client {
	if client == nil {
		return client
	}
	client.lock.Lock()
	client.pingInterval = interval
	client.lock.Unlock()
	return client
}

// ConnectionInfo describes the client and, when present, its active
// connection.
func (client *Client) ConnectionInfo() ConnectionInfo {
	if client == nil {
		return ConnectionInfo{}
	}
	info := ConnectionInfo{
		"client_name":    client.name,
		"client_version": ClientVersion,
		"url":            client.options.URL,
		"ready_state":    strconv.Itoa(client.ReadyState()),
	}
	client.lock.Lock()
	active := client.active
	client.lock.Unlock()
	if active != nil {
		info["connection_id"] = active.id
		if local, remote := active.addresses(); local != "" {
			info["local_address"] = local
			info["remote_address"] = remote
		}
	}
	return info
}
