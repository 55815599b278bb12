// Package session supervises the WhatsApp connection lifecycle: initial
// connect, bounded reconnect attempts and the terminal logged-out state.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/damasnight/whatsapp-mod-bot/pkg/env"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
)

// Phase is the connection lifecycle state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseOpen       Phase = "open"
	PhaseClosed     Phase = "closed"
	// PhaseLoggedOut is terminal; the device must be re-paired by hand.
	PhaseLoggedOut Phase = "loggedOut"
	// PhaseFailed is terminal; every reconnect attempt was exhausted.
	PhaseFailed Phase = "failed"
)

const (
	defaultMaxAttempts    = 5
	defaultReconnectDelay = 3 * time.Second
)

// Machine drives reconnects. Connected/Disconnected are fed from the
// transport's event callbacks; the machine serializes them and never runs
// two connect attempts at once.
type Machine struct {
	connect func() error

	mu           sync.Mutex
	phase        Phase
	attempts     int
	reconnecting bool

	maxAttempts int
	delay       time.Duration
	sleep       func(time.Duration)

	// OnOpen fires every time the session (re)establishes, so dependent
	// state can be re-armed.
	OnOpen func()
	// OnFailed fires once when the machine enters a terminal phase.
	OnFailed func(phase Phase)
}

// NewMachine builds the supervisor around the transport's connect function.
// Attempt count and delay come from SESSION_RECONNECT_ATTEMPTS and
// SESSION_RECONNECT_DELAY.
func NewMachine(connect func() error) *Machine {
	return &Machine{
		connect:     connect,
		phase:       PhaseIdle,
		maxAttempts: env.GetEnvIntOrDefault("SESSION_RECONNECT_ATTEMPTS", defaultMaxAttempts),
		delay:       env.GetEnvDurationOrDefault("SESSION_RECONNECT_DELAY", defaultReconnectDelay),
		sleep:       time.Sleep,
	}
}

// Phase returns the current lifecycle phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Start performs the initial connect.
func (m *Machine) Start() error {
	m.mu.Lock()
	m.phase = PhaseConnecting
	m.mu.Unlock()

	if err := m.connect(); err != nil {
		m.mu.Lock()
		m.phase = PhaseClosed
		m.mu.Unlock()
		return err
	}
	return nil
}

// Connected is called by the transport when the socket opens. It resets the
// attempt counter so the next outage gets a full reconnect budget.
func (m *Machine) Connected() {
	m.mu.Lock()
	m.phase = PhaseOpen
	m.attempts = 0
	onOpen := m.OnOpen
	m.mu.Unlock()
	log.Session(string(PhaseOpen)).Info("Session established")
	if onOpen != nil {
		onOpen()
	}
}

// Disconnected is called by the transport when the socket drops. A logged
// out session is terminal; anything else triggers the bounded reconnect
// loop. Overlapping disconnect events while a reconnect is already running
// are ignored.
func (m *Machine) Disconnected(loggedOut bool) {
	m.mu.Lock()
	if m.phase == PhaseLoggedOut || m.phase == PhaseFailed {
		m.mu.Unlock()
		return
	}
	if loggedOut {
		m.phase = PhaseLoggedOut
		onFailed := m.OnFailed
		m.mu.Unlock()
		log.Session(string(PhaseLoggedOut)).Error("Session logged out; manual re-pairing required")
		if onFailed != nil {
			onFailed(PhaseLoggedOut)
		}
		return
	}
	if m.reconnecting {
		m.mu.Unlock()
		return
	}
	m.reconnecting = true
	m.phase = PhaseClosed
	m.mu.Unlock()

	m.reconnectLoop()
}

func (m *Machine) reconnectLoop() {
	defer func() {
		m.mu.Lock()
		m.reconnecting = false
		m.mu.Unlock()
	}()

	for {
		m.mu.Lock()
		if m.phase == PhaseLoggedOut {
			m.mu.Unlock()
			return
		}
		if m.attempts >= m.maxAttempts {
			m.phase = PhaseFailed
			onFailed := m.OnFailed
			m.mu.Unlock()
			log.Session(string(PhaseFailed)).Error("Reconnect attempts exhausted")
			if onFailed != nil {
				onFailed(PhaseFailed)
			}
			return
		}
		m.attempts++
		attempt := m.attempts
		m.phase = PhaseConnecting
		m.mu.Unlock()

		m.sleep(m.delay)
		log.Session(string(PhaseConnecting)).Warn(fmt.Sprintf("Reconnect attempt %d/%d", attempt, m.maxAttempts))

		if err := m.connect(); err != nil {
			log.Session(string(PhaseClosed)).Error("Reconnect failed: " + err.Error())
			m.mu.Lock()
			m.phase = PhaseClosed
			m.mu.Unlock()
			continue
		}
		// The Connected callback flips the phase to open and resets the
		// counter once the socket is actually up.
		return
	}
}
