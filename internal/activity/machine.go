// Package activity tracks whether the sender is currently streaming audio.
//
// Activity is driven only by explicit control markers; metadata chunks never
// imply a transition. Each realized transition is persisted and published to
// a single-slot mailbox that always holds the latest unconsumed edge.
package activity

import (
	"sync"
	"time"

	"github.com/genricoloni/hificlock/internal/domain"
	"go.uber.org/zap"
)

// markers maps control codes to the state they lead to
var markers = map[domain.Code]bool{
	domain.CodePlayBegin:   true,
	domain.CodeResume:      true,
	domain.CodeActiveBegin: true,
	domain.CodeFirstFrame:  true,

	domain.CodePlayEnd:    false,
	domain.CodeFlush:      false,
	domain.CodePause:      false,
	domain.CodeActiveEnd:  false,
	domain.CodeDisconnect: false,
}

// Machine is the two-state activity machine
type Machine struct {
	logger *zap.Logger
	store  domain.StateStore
	now    func() time.Time

	mu    sync.Mutex
	state domain.ActivityState

	events chan domain.Transition
}

// NewMachine creates a machine restored from store. A missing or unreadable
// record starts Inactive.
func NewMachine(logger *zap.Logger, store domain.StateStore) *Machine {
	m := &Machine{
		logger: logger,
		store:  store,
		now:    time.Now,
		events: make(chan domain.Transition, 1),
	}

	active, err := store.Load()
	if err != nil {
		logger.Warn("Could not restore activity state, starting inactive", zap.Error(err))
		if err := store.Save(false); err != nil {
			logger.Warn("Failed to initialize activity state file", zap.Error(err))
		}
	}
	m.state = domain.ActivityState{Active: active, LastTransitionAt: m.now()}

	logger.Info("Activity state restored", zap.Bool("active", active))
	return m
}

// Apply interprets chunk as a control marker. Non-marker chunks and
// self-transitions return false.
func (m *Machine) Apply(chunk domain.RawChunk) (domain.Transition, bool) {
	active, ok := markers[chunk.Code]
	if !ok {
		return domain.Transition{}, false
	}
	return m.Set(active, string(chunk.Code))
}

// Set moves the machine to active. reason is recorded on the transition.
func (m *Machine) Set(active bool, reason string) (domain.Transition, bool) {
	m.mu.Lock()
	if m.state.Active == active {
		m.mu.Unlock()
		return domain.Transition{}, false
	}

	tr := domain.Transition{Active: active, At: m.now(), Reason: reason}
	m.state = domain.ActivityState{Active: active, LastTransitionAt: tr.At}
	m.publish(tr)
	m.mu.Unlock()

	m.logger.Info("Activity transition",
		zap.Bool("active", active),
		zap.String("reason", reason))

	// Persistence is best effort and happens outside the lock
	if err := m.store.Save(active); err != nil {
		m.logger.Warn("Failed to persist activity state", zap.Error(err))
	}

	return tr, true
}

// publish replaces any unconsumed edge with tr. Caller holds mu, so there is
// exactly one producer and the drain-then-send cannot block.
func (m *Machine) publish(tr domain.Transition) {
	select {
	case <-m.events:
		m.logger.Debug("Coalesced unconsumed activity transition")
	default:
	}
	m.events <- tr
}

// State returns a copy of the current state
func (m *Machine) State() domain.ActivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transitions returns the edge mailbox. Each transition is received at most once.
func (m *Machine) Transitions() <-chan domain.Transition {
	return m.events
}
