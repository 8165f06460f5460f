// Package bruteforce silently limits the frequency of brute-force login
// attempts against valid usernames.
//
// To avoid leaking whether a username exists, callers should run the full
// handshake (including a fake credential from package fakecred) against a
// blocked username rather than rejecting it up front; the limiter only
// governs how quickly an attacker can retry, not whether the attempt looks
// different from a normal failed login.
package bruteforce

import (
	"sync"
	"time"
)

// BlockTimeMultiplier is the growth factor applied to the block duration
// each time a username exceeds its trial allowance again.
const BlockTimeMultiplier = 2.0

type usernameState struct {
	trials         int
	blockTime      time.Duration
	nextValidAfter time.Duration // offset from the Limiter's monotonic baseline
}

// Limiter tracks invalid login attempts per username and imposes an
// exponentially growing block duration once the trial allowance within a
// window is exceeded.
type Limiter struct {
	trialsAllowedEachWindow int
	initialBlockTime        time.Duration
	maxBlockTime            time.Duration

	mu       sync.Mutex
	states   map[string]*usernameState
	baseline time.Time // monotonic reference point, set at construction
	now      func() time.Time
}

// New creates a Limiter. trialsAllowedEachWindow is the number of invalid
// logins tolerated before the first block; initialBlockTime and
// maxBlockTime bound the exponential backoff.
func New(trialsAllowedEachWindow int, initialBlockTime, maxBlockTime time.Duration) *Limiter {
	return &Limiter{
		trialsAllowedEachWindow: trialsAllowedEachWindow,
		initialBlockTime:        initialBlockTime,
		maxBlockTime:            maxBlockTime,
		states:                  make(map[string]*usernameState),
		baseline:                time.Now(),
		now:                     time.Now,
	}
}

func (l *Limiter) elapsed() time.Duration {
	return l.now().Sub(l.baseline)
}

// LogInvalidLogin records a failed login attempt for username. If the
// username is currently blocked, the attempt is ignored (it does not count
// against the next window). Otherwise the trial count increments; once it
// reaches trialsAllowedEachWindow, the username is blocked for
// initialBlockTime, doubling on each subsequent violation up to
// maxBlockTime, and the trial count resets.
func (l *Limiter) LogInvalidLogin(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.elapsed()
	state, ok := l.states[username]
	if !ok {
		state = &usernameState{}
		l.states[username] = state
	}

	if state.nextValidAfter > now {
		return
	}

	state.trials++
	if state.trials < l.trialsAllowedEachWindow {
		return
	}

	if state.blockTime == 0 {
		state.blockTime = l.initialBlockTime
	} else {
		state.blockTime = time.Duration(float64(state.blockTime) * BlockTimeMultiplier)
	}
	if state.blockTime > l.maxBlockTime {
		state.blockTime = l.maxBlockTime
	}
	state.nextValidAfter = now + state.blockTime
	state.trials = 0
}

// LogValidLogin resets the trial count for username after a successful
// login, reporting whether the username was under an active block (which
// the caller may want to surface to the user as a security notice).
func (l *Limiter) LogValidLogin(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.states[username]
	if !ok {
		return false
	}
	wasUnderAttack := state.blockTime > 0
	delete(l.states, username)
	return wasUnderAttack
}

// IsBlocked reports whether username is currently within its block window.
func (l *Limiter) IsBlocked(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.states[username]
	if !ok {
		return false
	}
	if state.nextValidAfter == 0 {
		return false
	}
	return l.elapsed() < state.nextValidAfter
}
