package kafka

import (
	"testing"
	"time"
)

func TestStateMachineHappyPath(t *testing.T) {
	sm := newStateMachine()
	if got := sm.Current(); got != StateJoining {
		t.Fatalf("initial state = %s, want joining", got)
	}

	steps := []MemberState{StateAssigned, StatePolling, StateRebalancing, StateAssigned, StatePolling, StateLeaving, StateStopped}
	for _, to := range steps {
		if err := sm.Transition(to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	if got := sm.Current(); got != StateStopped {
		t.Fatalf("final state = %s, want stopped", got)
	}
}

func TestStateMachineRejectsIllegalMoves(t *testing.T) {
	tests := []struct {
		name string
		path []MemberState
		bad  MemberState
	}{
		{name: "joining cannot poll", path: nil, bad: StatePolling},
		{name: "assigned cannot rebalance", path: []MemberState{StateAssigned}, bad: StateRebalancing},
		{name: "polling cannot rejoin directly", path: []MemberState{StateAssigned, StatePolling}, bad: StateJoining},
		{name: "stopped is terminal", path: []MemberState{StateLeaving, StateStopped}, bad: StateJoining},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := newStateMachine()
			for _, to := range tt.path {
				if err := sm.Transition(to); err != nil {
					t.Fatalf("setup transition to %s: %v", to, err)
				}
			}
			before := sm.Current()
			if err := sm.Transition(tt.bad); err == nil {
				t.Fatalf("transition %s -> %s should fail", before, tt.bad)
			}
			if got := sm.Current(); got != before {
				t.Fatalf("failed transition changed state to %s", got)
			}
		})
	}
}

func TestStateMachineLeavingFromAnywhere(t *testing.T) {
	paths := [][]MemberState{
		nil,
		{StateAssigned},
		{StateAssigned, StatePolling},
		{StateAssigned, StatePolling, StateRebalancing},
	}
	for _, path := range paths {
		sm := newStateMachine()
		for _, to := range path {
			if err := sm.Transition(to); err != nil {
				t.Fatalf("setup transition to %s: %v", to, err)
			}
		}
		if err := sm.Transition(StateLeaving); err != nil {
			t.Fatalf("leaving from %s: %v", sm.Current(), err)
		}
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 50*time.Millisecond, 2*time.Second
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		if d > max {
			t.Fatalf("attempt %d: backoff %v exceeds max %v", attempt, d, max)
		}
		if d < 0 {
			t.Fatalf("attempt %d: negative backoff %v", attempt, d)
		}
	}
}
