// Package breaker implements a per-provider three-state circuit breaker.
package breaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Settings struct {
	// FailureThreshold failures inside MonitoringPeriod trip the breaker.
	FailureThreshold int
	// SuccessThreshold consecutive successes in half-open close it again.
	SuccessThreshold int
	RecoveryTimeout  time.Duration
	MonitoringPeriod time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 2
	}
	if s.RecoveryTimeout <= 0 {
		s.RecoveryTimeout = 30 * time.Second
	}
	if s.MonitoringPeriod <= 0 {
		s.MonitoringPeriod = time.Minute
	}
	return s
}

// Breaker tracks failures for one provider. All methods are safe for
// concurrent use; a single mutex keeps the transition table consistent.
type Breaker struct {
	mu sync.Mutex

	settings    Settings
	state       State
	failures    []time.Time // sliding window, pruned to MonitoringPeriod
	successes   int         // meaningful only in half-open
	lastFailure time.Time

	now func() time.Time // injectable for tests
}

func New(settings Settings) *Breaker {
	return &Breaker{
		settings: settings.withDefaults(),
		state:    StateClosed,
		now:      time.Now,
	}
}

// Allow reports whether a call to the provider may proceed. In open state it
// transitions to half-open once the recovery timeout has elapsed; exactly one
// caller observes that transition per recovery window.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.settings.RecoveryTimeout {
			b.state = StateHalfOpen
			b.successes = 0
			return true
		}
		return false
	}
	return false
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.settings.SuccessThreshold {
			b.state = StateClosed
			b.failures = nil
			b.successes = 0
		}
	case StateClosed:
		b.prune(b.now())
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.lastFailure = now

	switch b.state {
	case StateHalfOpen:
		// Zero tolerance while probing: one failure reopens immediately.
		b.state = StateOpen
		b.successes = 0
	case StateClosed:
		b.failures = append(b.failures, now)
		b.prune(now)
		if len(b.failures) >= b.settings.FailureThreshold {
			b.state = StateOpen
		}
	case StateOpen:
		// Already open; the timestamp update extends the cooldown.
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// prune drops failure timestamps older than the monitoring period.
// Caller holds the mutex.
func (b *Breaker) prune(now time.Time) {
	cut := now.Add(-b.settings.MonitoringPeriod)
	i := 0
	for ; i < len(b.failures); i++ {
		if b.failures[i].After(cut) {
			break
		}
	}
	if i > 0 {
		b.failures = append(b.failures[:0], b.failures[i:]...)
	}
}
