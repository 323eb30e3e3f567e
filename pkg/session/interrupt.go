package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stingersec/stinger/pkg/run"
)

// DefaultInterruptWindow is how close together two interrupt signals must
// arrive to cancel a session.
const DefaultInterruptWindow = 2 * time.Second

// Interrupter turns rapid double interrupts into a session cancel. A
// single signal arms the window; a second one inside it raises the cancel
// flag, which the turn observes at its next safe point.
type Interrupter struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewInterrupter creates an interrupter. A non-positive window falls back
// to the default.
func NewInterrupter(window time.Duration) *Interrupter {
	if window <= 0 {
		window = DefaultInterruptWindow
	}
	return &Interrupter{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Signal delivers one interrupt for the session. It returns true when this
// signal completed a double interrupt and the cancel flag was set.
func (i *Interrupter) Signal(sess *run.Session) bool {
	now := time.Now()

	i.mu.Lock()
	last, armed := i.last[sess.ID]
	if armed && now.Sub(last) <= i.window {
		delete(i.last, sess.ID)
		i.mu.Unlock()

		sess.Cancel()
		log.Info().Str("session_id", sess.ID).Msg("Double interrupt, cancelling session")
		return true
	}
	i.last[sess.ID] = now
	i.mu.Unlock()

	log.Debug().
		Str("session_id", sess.ID).
		Dur("window", i.window).
		Msg("Interrupt armed, repeat to cancel")
	return false
}

// Forget clears any armed interrupt for the session.
func (i *Interrupter) Forget(sessionID string) {
	i.mu.Lock()
	delete(i.last, sessionID)
	i.mu.Unlock()
}
