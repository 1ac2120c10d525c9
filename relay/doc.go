// Package relay provides a resilient, message-queuing WebSocket client
// transport for relay endpoints speaking the pub/sub/ack envelope protocol.
//
// The primary lifecycle is:
//   - construct a Client with NewClient
//   - register listeners with On
//   - Open to start connecting
//   - Send and Subscribe at any time; traffic queues while disconnected
//   - Close when finished
//
// The transport never blocks a caller: while disconnected, Send and
// Subscribe append to an outbound queue that drains in FIFO order once a
// connection opens, right after the configured subscriptions are replayed.
// Dropped connections retry indefinitely on a fixed delay until Close is
// called; a ReconnectDelayStrategy can replace the fixed delay. Every
// successfully parsed inbound envelope is acknowledged automatically before
// it is dispatched to "message" listeners.
//
// Exported client APIs synchronize internal state and are safe for
// concurrent use, but listeners should be written as thread-safe because
// they execute from connection read and recovery paths.
//
// Errors are created with NewError and carry an error-code name such as
// ConfigurationError, InvalidTopicError, or ConnectionError in their
// message.
package relay
