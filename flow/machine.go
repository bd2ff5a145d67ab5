package flow

import (
	"time"
)

// State is the observable position of one verification screen.
type State uint8

const (
	// StateIdle is the initial state, before any input.
	StateIdle State = iota
	// StateEditing means the identity field changed and the debounce
	// window is still open.
	StateEditing
	// StateChecking means an availability request is in flight.
	StateChecking
	// StateAvailable means the identity may proceed to a code request.
	StateAvailable
	// StateUnavailable means the identity cannot proceed (for
	// registration: the address is already taken).
	StateUnavailable
	// StateCodeRequested means an issuance request is in flight.
	StateCodeRequested
	// StateCodeEntry means a code was delivered and the screen is
	// collecting the user's input; the resend countdown is running.
	StateCodeEntry
	// StateVerified is terminal. The machine accepts no further events.
	StateVerified
	// StateExpired means the countdown elapsed before a successful
	// confirm; a resend is now permitted.
	StateExpired
	// StateLockedOut means issuance failures reached the threshold; the
	// screen shows the remaining lockout and refuses code requests.
	StateLockedOut
)

// String returns a short display name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	case StateChecking:
		return "checking"
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	case StateCodeRequested:
		return "code_requested"
	case StateCodeEntry:
		return "code_entry"
	case StateVerified:
		return "verified"
	case StateExpired:
		return "expired"
	case StateLockedOut:
		return "locked_out"
	default:
		return "unknown"
	}
}

// CommandType identifies a request the caller must execute on the
// machine's behalf.
type CommandType uint8

const (
	// CommandCheckAvailability asks the caller to run the availability
	// check and report back via AvailabilityResult.
	CommandCheckAvailability CommandType = iota
	// CommandIssueCode asks the caller to request code issuance and
	// report back via IssueAccepted / IssueRejected.
	CommandIssueCode
)

// Command is emitted by the machine for the caller to execute.
type Command struct {
	Type        CommandType
	IdentityKey string
}

// Config carries the machine's timing policy.
type Config struct {
	// DebounceInterval is the quiet period after the last keystroke
	// before the availability check fires.
	DebounceInterval time.Duration
	// ForcedDelay blocks code requests for this long after every change
	// of the identity value, regardless of any other condition.
	ForcedDelay time.Duration
	// ResendCountdown disables resend for this long after a successful
	// issuance. It matches the server-side code TTL so the countdown
	// reaching zero and the code expiring coincide.
	ResendCountdown time.Duration
	// FailureThreshold is the number of consecutive issuance failures
	// that trips the lockout display.
	FailureThreshold int
	// LockoutDuration is the displayed lockout length when the machine
	// trips the threshold itself. A server-reported lockout overrides it
	// with the server's remaining time.
	LockoutDuration time.Duration
}

// DefaultConfig returns the portal's production timing policy.
func DefaultConfig() Config {
	return Config{
		DebounceInterval: 600 * time.Millisecond,
		ForcedDelay:      5 * time.Second,
		ResendCountdown:  5 * time.Minute,
		FailureThreshold: 3,
		LockoutDuration:  5 * time.Minute,
	}
}

// Machine sequences one verification screen. It is not safe for concurrent
// use; drive it from a single event loop.
type Machine struct {
	cfg   Config
	state State

	identityKey string

	lastEditAt        time.Time
	identityChangedAt time.Time
	countdownEnds     time.Time
	lockoutEnds       time.Time

	failures int
}

// NewMachine returns a machine in [StateIdle].
func NewMachine(cfg Config) *Machine {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 600 * time.Millisecond
	}
	if cfg.ForcedDelay < 0 {
		cfg.ForcedDelay = 0
	}
	if cfg.ResendCountdown <= 0 {
		cfg.ResendCountdown = 5 * time.Minute
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 5 * time.Minute
	}
	return &Machine{cfg: cfg, state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// IdentityKey returns the current identity field value.
func (m *Machine) IdentityKey() string {
	return m.identityKey
}

// Input records a keystroke on the identity field at the given time. Every
// call re-arms the debounce window; a change of value additionally re-arms
// the forced delay. Input is ignored once verified.
func (m *Machine) Input(now time.Time, identityKey string) {
	if m.state == StateVerified {
		return
	}

	if identityKey != m.identityKey {
		m.identityKey = identityKey
		m.identityChangedAt = now
	}
	m.lastEditAt = now

	// A lockout is not escaped by editing; the timer keeps running and
	// Tick resumes the flow when it ends.
	if m.state != StateLockedOut {
		m.state = StateEditing
	}
}

// Tick advances the machine's timers to now and returns any commands that
// became due. Call it at whatever cadence the display refreshes; firing is
// governed by the recorded deadlines, not by tick frequency.
func (m *Machine) Tick(now time.Time) []Command {
	var cmds []Command

	switch m.state {
	case StateLockedOut:
		if !now.Before(m.lockoutEnds) {
			m.failures = 0
			if m.identityKey == "" {
				m.state = StateIdle
			} else {
				// Re-run the availability check rather than trusting a
				// pre-lockout result.
				m.state = StateEditing
				m.lastEditAt = now.Add(-m.cfg.DebounceInterval)
			}
		}
	case StateEditing:
		if m.identityKey != "" && !now.Before(m.lastEditAt.Add(m.cfg.DebounceInterval)) {
			m.state = StateChecking
			cmds = append(cmds, Command{Type: CommandCheckAvailability, IdentityKey: m.identityKey})
		}
	case StateCodeEntry:
		if !now.Before(m.countdownEnds) {
			m.state = StateExpired
		}
	}

	return cmds
}

// AvailabilityResult reports the outcome of a [CommandCheckAvailability].
// Results arriving after the user kept typing are discarded: the machine
// has left StateChecking by then and a fresh check is already scheduled.
func (m *Machine) AvailabilityResult(ok bool) {
	if m.state != StateChecking {
		return
	}
	if ok {
		m.state = StateAvailable
	} else {
		m.state = StateUnavailable
	}
}

// RequestCode records the user pressing the send (or resend) button.
// It returns the issuance command and true when the request is permitted:
// the identity must have checked out, no lockout may be active, the forced
// delay must have elapsed, and the resend countdown must have reached zero.
func (m *Machine) RequestCode(now time.Time) (Command, bool) {
	if m.state != StateAvailable && m.state != StateExpired {
		return Command{}, false
	}
	if m.cfg.ForcedDelay > 0 && now.Before(m.identityChangedAt.Add(m.cfg.ForcedDelay)) {
		return Command{}, false
	}
	if now.Before(m.countdownEnds) {
		return Command{}, false
	}

	m.state = StateCodeRequested
	return Command{Type: CommandIssueCode, IdentityKey: m.identityKey}, true
}

// IssueAccepted reports a successful issuance. The resend countdown starts
// and the failure counter resets.
func (m *Machine) IssueAccepted(now time.Time) {
	if m.state != StateCodeRequested {
		return
	}
	m.failures = 0
	m.countdownEnds = now.Add(m.cfg.ResendCountdown)
	m.state = StateCodeEntry
}

// IssueRejected reports a failed issuance. A server-reported lockout moves
// straight to [StateLockedOut] for the server's remaining time; a delivery
// failure counts toward the local threshold and trips the same state when
// reached. Below the threshold the screen returns to [StateAvailable] so
// the user may retry immediately.
func (m *Machine) IssueRejected(now time.Time, serverLocked bool, retryAfter time.Duration) {
	if m.state != StateCodeRequested {
		return
	}

	if serverLocked {
		if retryAfter <= 0 {
			retryAfter = m.cfg.LockoutDuration
		}
		m.lockoutEnds = now.Add(retryAfter)
		m.state = StateLockedOut
		return
	}

	m.failures++
	if m.failures >= m.cfg.FailureThreshold {
		m.lockoutEnds = now.Add(m.cfg.LockoutDuration)
		m.state = StateLockedOut
		return
	}
	m.state = StateAvailable
}

// ConfirmResult reports the outcome of a code submission. Verification is
// terminal: no event re-enters the code-request flow afterwards. A failed
// submission keeps the screen in [StateCodeEntry] for another try.
func (m *Machine) ConfirmResult(verified bool) {
	if m.state != StateCodeEntry {
		return
	}
	if verified {
		m.state = StateVerified
	}
}

// ResendRemaining returns how long until resend unlocks, zero when it
// already has.
func (m *Machine) ResendRemaining(now time.Time) time.Duration {
	return remaining(now, m.countdownEnds)
}

// LockoutRemaining returns how long the lockout display has to run, zero
// when no lockout is active.
func (m *Machine) LockoutRemaining(now time.Time) time.Duration {
	if m.state != StateLockedOut {
		return 0
	}
	return remaining(now, m.lockoutEnds)
}

// ForcedDelayRemaining returns how long code requests stay blocked after
// the last identity change.
func (m *Machine) ForcedDelayRemaining(now time.Time) time.Duration {
	if m.cfg.ForcedDelay <= 0 || m.identityChangedAt.IsZero() {
		return 0
	}
	return remaining(now, m.identityChangedAt.Add(m.cfg.ForcedDelay))
}

func remaining(now, deadline time.Time) time.Duration {
	if deadline.IsZero() || !now.Before(deadline) {
		return 0
	}
	return deadline.Sub(now)
}
