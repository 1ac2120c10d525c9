package relay

import "sync"

// Event names dispatched by the transport.
const (
	EventMessage = "message"
	EventError   = "error"
)

// Event is delivered to listeners registered with On. Envelope is set for
// message events, Err for error events.
type Event struct {
	Name     string
	Envelope *Envelope
	Err      error
}

// Listener receives dispatched transport events.
type Listener func(Event)

type eventRegistration struct {
	name     string
	listener Listener
}

// eventDispatcher keeps (name, listener) pairs in registration order.
// Listeners accumulate for the lifetime of the transport; there is no
// deduplication and no removal.
type eventDispatcher struct {
	lock          sync.Mutex
	registrations []eventRegistration
}

func newEventDispatcher() *eventDispatcher {
	return &eventDispatcher{}
}

func (dispatcher *eventDispatcher) on(name string, listener Listener) {
	if dispatcher == nil || listener == nil {
		return
	}
	dispatcher.lock.Lock()
	dispatcher.registrations = append(dispatcher.registrations, eventRegistration{name: name, listener: listener})
	dispatcher.lock.Unlock()
}

// dispatch invokes every listener registered for the event's name, in
// registration order, synchronously on the calling goroutine. A panicking
// listener does not prevent delivery to the listeners after it.
func (dispatcher *eventDispatcher) dispatch(event Event) {
	if dispatcher == nil {
		return
	}
	dispatcher.lock.Lock()
	matching := make([]Listener, 0, len(dispatcher.registrations))
	for _, registration := range dispatcher.registrations {
		if registration.name == event.Name {
			matching = append(matching, registration.listener)
		}
	}
	dispatcher.lock.Unlock()

	for _, listener := range matching {
		invokeListener(listener, event)
	}
}

func invokeListener(listener Listener, event Event) {
	defer func() {
		_ = recover()
	}()
	listener(event)
}
