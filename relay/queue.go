package relay

import "sync"

// sendQueue buffers envelopes awaiting transmission. Insertion order is
// preserved and the queue drains strictly FIFO; entries are never
// deduplicated.
type sendQueue struct {
	lock    sync.Mutex
	entries []Envelope
}

func newSendQueue() *sendQueue {
	return &sendQueue{}
}

func (queue *sendQueue) push(envelope Envelope) {
	if queue == nil {
		return
	}
	queue.lock.Lock()
	queue.entries = append(queue.entries, envelope)
	queue.lock.Unlock()
}

// takeAll removes and returns every queued envelope in insertion order.
func (queue *sendQueue) takeAll() []Envelope {
	if queue == nil {
		return nil
	}
	queue.lock.Lock()
	defer queue.lock.Unlock()

	entries := queue.entries
	queue.entries = nil
	return entries
}

func (queue *sendQueue) snapshot() []Envelope {
	if queue == nil {
		return nil
	}
	queue.lock.Lock()
	defer queue.lock.Unlock()

	entries := make([]Envelope, len(queue.entries))
	copy(entries, queue.entries)
	return entries
}

func (queue *sendQueue) length() int {
	if queue == nil {
		return 0
	}
	queue.lock.Lock()
	defer queue.lock.Unlock()
	return len(queue.entries)
}
