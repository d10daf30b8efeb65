package cursor

import (
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle state of a cursor.
type State int

const (
	// CREATED indicates the cursor has not issued its initial request.
	CREATED State = iota
	// OPEN indicates the server holds more rows behind the cursor id.
	OPEN
	// EXHAUSTED indicates every batch has been received; no id is held.
	EXHAUSTED
	// DELETED indicates the server-side cursor was released explicitly.
	DELETED
)

// String returns the string representation of the cursor state.
func (s State) String() string {
	switch s {
	case CREATED:
		return "CREATED"
	case OPEN:
		return "OPEN"
	case EXHAUSTED:
		return "EXHAUSTED"
	case DELETED:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// StateTransition represents a change in cursor state.
//
// Standard Metadata Keys:
//   - traceId: string - cursor trace id
//   - kind: string - "statement" | "collection" | "export"
//   - fetchCount: int - round trips that returned rows so far
//   - buffered: int - rows held in the buffer
type StateTransition struct {
	// From is the previous state.
	From State

	// To is the new current state.
	To State

	// Timestamp is when the transition occurred.
	Timestamp time.Time

	// Duration is how long the previous state was held.
	Duration time.Duration

	// Metadata contains additional context about the transition.
	Metadata map[string]interface{}
}

// StateChangeHandler is called when the cursor state changes.
type StateChangeHandler func(transition StateTransition)

// StateManager guards cursor state transitions and notifies handlers.
type StateManager struct {
	current        State
	lastTransition time.Time
	handlers       []StateChangeHandler
	mu             sync.RWMutex
}

// NewStateManager creates a new state manager in CREATED state.
func NewStateManager() *StateManager {
	return &StateManager{
		current:        CREATED,
		lastTransition: time.Now(),
		handlers:       make([]StateChangeHandler, 0),
	}
}

// TransitionTo moves to a new state. Returns error if the transition is illegal.
//
// Legal transitions:
//   - CREATED → OPEN
//   - CREATED → EXHAUSTED (whole result in the first batch)
//   - OPEN → EXHAUSTED
//   - OPEN → DELETED
//   - EXHAUSTED → DELETED
func (sm *StateManager) TransitionTo(newState State, metadata map[string]interface{}) error {
	sm.mu.Lock()

	if !isLegalTransition(sm.current, newState) {
		from := sm.current
		sm.mu.Unlock()
		return fmt.Errorf("illegal state transition: %s → %s", from, newState)
	}

	now := time.Now()
	transition := StateTransition{
		From:      sm.current,
		To:        newState,
		Timestamp: now,
		Duration:  now.Sub(sm.lastTransition),
		Metadata:  metadata,
	}

	sm.current = newState
	sm.lastTransition = now

	// Notify handlers without the lock held
	handlers := make([]StateChangeHandler, len(sm.handlers))
	copy(handlers, sm.handlers)
	sm.mu.Unlock()

	for _, handler := range handlers {
		handler(transition)
	}
	return nil
}

func isLegalTransition(from, to State) bool {
	switch from {
	case CREATED:
		return to == OPEN || to == EXHAUSTED
	case OPEN:
		return to == EXHAUSTED || to == DELETED
	case EXHAUSTED:
		return to == DELETED
	default:
		return false
	}
}

// OnStateChange registers a handler to be called on state transitions.
func (sm *StateManager) OnStateChange(handler StateChangeHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.handlers = append(sm.handlers, handler)
}

// GetState returns the current state.
func (sm *StateManager) GetState() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}
