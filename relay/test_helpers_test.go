package relay

import (
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// waitUntil polls condition until it holds or fails the test after timeout.
func waitUntil(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// reserveAddress returns a loopback address that was listening a moment ago
// and is closed again, so dials against it fail until a test rebinds it.
func reserveAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve listen failed: %v", err)
	}
	address := listener.Addr().String()
	if err := listener.Close(); err != nil {
		t.Fatalf("reserve close failed: %v", err)
	}
	return address
}

type fakeMonitor struct {
	lock    sync.Mutex
	online  func()
	started int
	stopped int
}

func (monitor *fakeMonitor) Start(online func()) {
	monitor.lock.Lock()
	monitor.online = online
	monitor.started++
	monitor.lock.Unlock()
}

func (monitor *fakeMonitor) Stop() {
	monitor.lock.Lock()
	monitor.stopped++
	monitor.lock.Unlock()
}

func (monitor *fakeMonitor) fire() {
	monitor.lock.Lock()
	online := monitor.online
	monitor.lock.Unlock()
	if online != nil {
		online()
	}
}

func (monitor *fakeMonitor) startCount() int {
	monitor.lock.Lock()
	defer monitor.lock.Unlock()
	return monitor.started
}

func (monitor *fakeMonitor) stopCount() int {
	monitor.lock.Lock()
	defer monitor.lock.Unlock()
	return monitor.stopped
}

type eventRecorder struct {
	lock     sync.Mutex
	messages []Envelope
	errors   []error
}

func (recorder *eventRecorder) record(event Event) {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()

	switch event.Name {
	case EventMessage:
		if event.Envelope != nil {
			recorder.messages = append(recorder.messages, *event.Envelope)
		}
	case EventError:
		recorder.errors = append(recorder.errors, event.Err)
	}
}

func (recorder *eventRecorder) messageCount() int {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	return len(recorder.messages)
}

func (recorder *eventRecorder) errorCount() int {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	return len(recorder.errors)
}

func (recorder *eventRecorder) message(index int) Envelope {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	return recorder.messages[index]
}

func (recorder *eventRecorder) errorAt(index int) error {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	return recorder.errors[index]
}

// newTestClient builds a client wired for fast tests: a short retry delay
// and a fake network monitor so no probe goroutines run.
func newTestClient(t *testing.T, url string, subscriptions ...string) *Client {
	t.Helper()
	client, err := NewClient(Options{
		URL:           url,
		Subscriptions: subscriptions,
		Monitor:       &fakeMonitor{},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	client.SetReconnectDelayStrategy(NewFixedDelayStrategy(10 * time.Millisecond))
	return client
}
