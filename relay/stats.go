package relay

// ClientStats is a point-in-time snapshot of transport counters.
type ClientStats struct {
	Sent       uint64
	Queued     uint64
	Received   uint64
	Acked      uint64
	Discarded  uint64
	Reconnects uint64
}

// Stats returns the current transport counters. Sent counts envelopes
// written to a connection, Queued counts envelopes buffered for a later
// drain; one envelope may contribute to both when it is queued first and
// transmitted on reconnect.
func (client *Client) Stats() ClientStats {
	if client == nil {
		return ClientStats{}
	}
	return ClientStats{
		Sent:       client.sentCount.Load(),
		Queued:     client.queuedCount.Load(),
		Received:   client.receivedCount.Load(),
		Acked:      client.ackedCount.Load(),
		Discarded:  client.discardedCount.Load(),
		Reconnects: client.reconnectCount.Load(),
	}
}
