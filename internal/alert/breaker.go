package alert

import (
	"sync"
	"time"
)

// breakerState represents the state of the delivery circuit breaker.
type breakerState int

const (
	circuitClosed   breakerState = iota // normal operation
	circuitOpen                         // failing fast
	circuitHalfOpen                     // probing
)

// BreakerConfig holds circuit breaker settings for outbound alert delivery.
type BreakerConfig struct {
	FailThreshold int           // consecutive failures before opening (default 5)
	Cooldown      time.Duration // how long to stay open before half-open (default 30s)
	FailWindow    time.Duration // reset consecutive counter if last failure is older than this (default 60s)
}

// breaker tracks consecutive delivery failures for one sink endpoint.
type breaker struct {
	mu               sync.Mutex
	config           BreakerConfig
	consecutiveFails int
	lastFailTime     time.Time
	openedAt         time.Time
	state            breakerState
}

func newBreaker(config BreakerConfig) *breaker {
	if config.FailThreshold <= 0 {
		config.FailThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.FailWindow <= 0 {
		config.FailWindow = 60 * time.Second
	}
	return &breaker{config: config}
}

// allow checks if a delivery attempt should proceed. Returns true if the
// circuit is closed or half-open (probe), false if open (fail fast).
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if now.Sub(b.openedAt) >= b.config.Cooldown {
			b.state = circuitHalfOpen
			return true // allow probe
		}
		return false
	case circuitHalfOpen:
		return true // allow probe
	}
	return true
}

// recordSuccess closes the circuit after a successful delivery.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFails = 0
	b.state = circuitClosed
}

// recordFailure counts a failed delivery toward the open threshold.
func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	// Reset counter if last failure is outside the window.
	if !b.lastFailTime.IsZero() && now.Sub(b.lastFailTime) > b.config.FailWindow {
		b.consecutiveFails = 0
	}

	b.consecutiveFails++
	b.lastFailTime = now

	if b.consecutiveFails >= b.config.FailThreshold {
		b.state = circuitOpen
		b.openedAt = now
	}
}
