package relay

import (
	"math"
	"sync"
	"time"
)

// DefaultRetryDelay is the pause between automatic reconnect attempts when
// no other strategy is configured.
const DefaultRetryDelay = 500 * time.Millisecond

// ReconnectDelayStrategy decides how long the transport waits before the
// next reconnect attempt. Reset is invoked after a connection is promoted
// to active.
type ReconnectDelayStrategy interface {
	GetConnectWaitDuration(uri string) (time.Duration, error)
	Reset()
}

// FixedDelayStrategy waits the same delay before every reconnect attempt.
type FixedDelayStrategy struct {
	Delay time.Duration
}

// NewFixedDelayStrategy returns a new FixedDelayStrategy.
func NewFixedDelayStrategy(delay time.Duration) *FixedDelayStrategy {
	if delay < 0 {
		delay = 0
	}
	return &FixedDelayStrategy{Delay: delay}
}

// GetConnectWaitDuration returns the configured fixed delay.
func (strategy *FixedDelayStrategy) GetConnectWaitDuration(uri string) (time.Duration, error) {
	if strategy == nil {
		return 0, nil
	}
	return strategy.Delay, nil
}

// Reset is a no-op for a fixed delay.
func (strategy *FixedDelayStrategy) Reset() {
	if strategy == nil {
		return
	}
}

// ExponentialDelayStrategy grows the delay by Factor on every consecutive
// failed attempt, capped at MaxDelay. Not used by default; the transport
// retries at a fixed delay unless told otherwise.
type ExponentialDelayStrategy struct {
	lock      sync.Mutex
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	attempts  uint32
}

// NewExponentialDelayStrategy returns a new ExponentialDelayStrategy.
func NewExponentialDelayStrategy(baseDelay time.Duration, maxDelay time.Duration, factor float64) *ExponentialDelayStrategy {
	if baseDelay < 0 {
		baseDelay = 0
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if factor < 1 {
		factor = 2
	}
	return &ExponentialDelayStrategy{
		BaseDelay: baseDelay,
		MaxDelay:  maxDelay,
		Factor:    factor,
	}
}

// GetConnectWaitDuration returns the delay for the next attempt and advances
// the attempt counter.
func (strategy *ExponentialDelayStrategy) GetConnectWaitDuration(uri string) (time.Duration, error) {
	if strategy == nil {
		return 0, nil
	}

	strategy.lock.Lock()
	defer strategy.lock.Unlock()

	attempt := strategy.attempts
	strategy.attempts++

	delay := strategy.BaseDelay
	if attempt > 0 && delay > 0 {
		delayFloat := float64(delay) * math.Pow(strategy.Factor, float64(attempt))
		if delayFloat > float64(strategy.MaxDelay) {
			delayFloat = float64(strategy.MaxDelay)
		}
		delay = time.Duration(delayFloat)
	}
	if delay > strategy.MaxDelay {
		delay = strategy.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay, nil
}

// Reset returns the strategy to its initial delay.
func (strategy *ExponentialDelayStrategy) Reset() {
	if strategy == nil {
		return
	}
	strategy.lock.Lock()
	strategy.attempts = 0
	strategy.lock.Unlock()
}
