package cursor

import (
	"testing"
	"time"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{CREATED, "CREATED"},
		{OPEN, "OPEN"},
		{EXHAUSTED, "EXHAUSTED"},
		{DELETED, "DELETED"},
		{State(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestNewStateManager(t *testing.T) {
	sm := NewStateManager()

	if sm.GetState() != CREATED {
		t.Errorf("expected initial state CREATED, got %s", sm.GetState())
	}
}

func TestLegalStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from     State
		to       State
		shouldOK bool
	}{
		{"CREATED to OPEN", CREATED, OPEN, true},
		{"CREATED to EXHAUSTED", CREATED, EXHAUSTED, true},
		{"OPEN to EXHAUSTED", OPEN, EXHAUSTED, true},
		{"OPEN to DELETED", OPEN, DELETED, true},
		{"EXHAUSTED to DELETED", EXHAUSTED, DELETED, true},
		// Illegal transitions
		{"CREATED to DELETED", CREATED, DELETED, false},
		{"OPEN to CREATED", OPEN, CREATED, false},
		{"OPEN to OPEN", OPEN, OPEN, false},
		{"EXHAUSTED to OPEN", EXHAUSTED, OPEN, false},
		{"DELETED to OPEN", DELETED, OPEN, false},
		{"DELETED to EXHAUSTED", DELETED, EXHAUSTED, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isLegalTransition(tt.from, tt.to); got != tt.shouldOK {
				t.Errorf("isLegalTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.shouldOK)
			}
		})
	}
}

func TestStateTransitionHandlers(t *testing.T) {
	sm := NewStateManager()

	var transitions []StateTransition
	sm.OnStateChange(func(tr StateTransition) {
		transitions = append(transitions, tr)
	})

	time.Sleep(2 * time.Millisecond)
	if err := sm.TransitionTo(OPEN, map[string]interface{}{"kind": KindStatement}); err != nil {
		t.Fatalf("transition to OPEN failed: %v", err)
	}
	if err := sm.TransitionTo(DELETED, nil); err != nil {
		t.Fatalf("transition to DELETED failed: %v", err)
	}

	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	if transitions[0].From != CREATED || transitions[0].To != OPEN {
		t.Errorf("unexpected first transition %s → %s", transitions[0].From, transitions[0].To)
	}
	if transitions[0].Duration <= 0 {
		t.Error("expected positive duration in CREATED")
	}
	if transitions[0].Metadata["kind"] != KindStatement {
		t.Errorf("expected metadata to be passed through")
	}
}

func TestIllegalTransitionLeavesState(t *testing.T) {
	sm := NewStateManager()

	if err := sm.TransitionTo(DELETED, nil); err == nil {
		t.Fatal("expected error for CREATED → DELETED")
	}
	if sm.GetState() != CREATED {
		t.Errorf("expected state to stay CREATED, got %s", sm.GetState())
	}
}
