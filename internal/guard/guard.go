// Package guard protects the automatic adjuster against economically absurd
// pool readings: a dust-sized stake against a funded reward pool produces a
// mathematically correct but meaningless implied APR, and corrections derived
// from it must not be submitted unattended.
package guard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the current state of the guard
type State int

// Guard states
const (
	StateClosed State = iota // Normal operation
	StateOpen                // Tripped, automatic corrections blocked
)

// String renders the state for logs and status output.
func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// ErrTripped is returned while the guard blocks automatic corrections.
var ErrTripped = errors.New("guard: automatic corrections blocked")

// Guard trips when an implied APR exceeds the sanity bound and stays open for
// a cooldown period. Read-only diagnosis is never blocked; only unattended
// writes consult the guard.
type Guard struct {
	// Implied APR in percent above which readings are treated as absurd
	maxSaneAPR float64

	// Duration before the guard re-closes after a trip
	cooldown time.Duration

	mu       sync.RWMutex
	state    State
	lastTrip time.Time
	reason   string

	// Event callback for monitoring/alerting
	onTrip func(reason string)
}

// New creates a guard with the given APR sanity bound.
func New(maxSaneAPR float64) *Guard {
	return &Guard{
		maxSaneAPR: maxSaneAPR,
		cooldown:   30 * time.Minute,
	}
}

// WithCooldown sets a custom cooldown and returns the guard.
func (g *Guard) WithCooldown(d time.Duration) *Guard {
	g.cooldown = d
	return g
}

// WithTripCallback sets a callback invoked on every trip.
func (g *Guard) WithTripCallback(cb func(reason string)) *Guard {
	g.onTrip = cb
	return g
}

// Check evaluates an implied APR reading for one pool. It trips the guard and
// returns an error when the reading exceeds the sanity bound, and keeps
// returning ErrTripped until the cooldown has passed.
func (g *Guard) Check(symbol string, impliedAPR float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateOpen {
		if time.Since(g.lastTrip) > g.cooldown {
			g.state = StateClosed
			logrus.Info("Sanity guard re-closed after cooldown")
		} else {
			return fmt.Errorf("%w: %s", ErrTripped, g.reason)
		}
	}

	if g.maxSaneAPR > 0 && impliedAPR > g.maxSaneAPR {
		g.state = StateOpen
		g.lastTrip = time.Now()
		g.reason = fmt.Sprintf("%s pool implies %.2f%% APR, above the %.2f%% sanity bound", symbol, impliedAPR, g.maxSaneAPR)

		logrus.Warnf("Sanity guard tripped: %s", g.reason)
		if g.onTrip != nil {
			g.onTrip(g.reason)
		}
		return fmt.Errorf("%w: %s", ErrTripped, g.reason)
	}

	return nil
}

// GetState returns the current guard state.
func (g *Guard) GetState() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Reset force-closes the guard.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateClosed
	g.reason = ""
}
