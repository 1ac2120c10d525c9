package relay

import (
	"net"
	"net/url"
	"sync"
	"time"
)

// Probe defaults for the built-in network monitor.
const (
	DefaultProbeInterval = 15 * time.Second
	DefaultProbeTimeout  = 3 * time.Second
)

// NetworkMonitor supplies the online signal that nudges the transport into
// reconnecting ahead of its next timed retry. Start begins monitoring and
// invokes online whenever connectivity is restored; it may fire more than
// once. Stop ends monitoring. Both are idempotent.
type NetworkMonitor interface {
	Start(online func())
	Stop()
}

// ProbeMonitor is the built-in NetworkMonitor. It dials the relay host on an
// interval and fires the online callback on every unreachable-to-reachable
// transition. It never fires while connectivity stays up.
type ProbeMonitor struct {
	lock     sync.Mutex
	address  string
	interval time.Duration
	timeout  time.Duration
	stop     chan struct{}
	running  bool
}

// NewProbeMonitor returns a monitor probing the given TCP address.
func NewProbeMonitor(address string, interval time.Duration) *ProbeMonitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &ProbeMonitor{
		address:  address,
		interval: interval,
		timeout:  DefaultProbeTimeout,
	}
}

// Start begins probing. A second Start without an intervening Stop is a
// no-op.
func (monitor *ProbeMonitor) Start(online func()) {
	if monitor == nil || online == nil {
		return
	}
	monitor.lock.Lock()
	if monitor.running {
		monitor.lock.Unlock()
		return
	}
	monitor.running = true
	stop := make(chan struct{})
	monitor.stop = stop
	monitor.lock.Unlock()

	go monitor.probeRoutine(online, stop)
}

// Stop ends probing and releases the probe goroutine.
func (monitor *ProbeMonitor) Stop() {
	if monitor == nil {
		return
	}
	monitor.lock.Lock()
	if !monitor.running {
		monitor.lock.Unlock()
		return
	}
	monitor.running = false
	close(monitor.stop)
	monitor.stop = nil
	monitor.lock.Unlock()
}

func (monitor *ProbeMonitor) probeRoutine(online func(), stop chan struct{}) {
	ticker := time.NewTicker(monitor.interval)
	defer ticker.Stop()

	// Optimistic start so a healthy network never fires a spurious signal.
	wasReachable := true
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			reachable := monitor.probe()
			if reachable && !wasReachable {
				online()
			}
			wasReachable = reachable
		}
	}
}

func (monitor *ProbeMonitor) probe() bool {
	conn, err := net.DialTimeout("tcp", monitor.address, monitor.timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// probeAddress derives the host:port a ProbeMonitor should dial for an
// endpoint URL, defaulting the port by scheme.
func probeAddress(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return endpoint
	}
	if parsed.Port() != "" {
		return parsed.Host
	}
	switch parsed.Scheme {
	case "https", "wss":
		return net.JoinHostPort(parsed.Hostname(), "443")
	default:
		return net.JoinHostPort(parsed.Hostname(), "80")
	}
}
