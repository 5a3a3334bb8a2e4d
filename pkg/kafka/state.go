package kafka

import (
	"fmt"
	"sync"
)

// MemberState models the lifecycle of a consumer-group member.
type MemberState int32

const (
	StateJoining MemberState = iota
	StateAssigned
	StatePolling
	StateRebalancing
	StateLeaving
	StateStopped
)

func (s MemberState) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateAssigned:
		return "assigned"
	case StatePolling:
		return "polling"
	case StateRebalancing:
		return "rebalancing"
	case StateLeaving:
		return "leaving"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// validTransitions encodes the member lifecycle:
// JOINING → ASSIGNED → POLLING ⇄ REBALANCING, and any state → LEAVING → STOPPED.
var validTransitions = map[MemberState][]MemberState{
	StateJoining:     {StateAssigned, StateLeaving},
	StateAssigned:    {StatePolling, StateLeaving},
	StatePolling:     {StateRebalancing, StateLeaving},
	StateRebalancing: {StateAssigned, StateJoining, StateLeaving},
	StateLeaving:     {StateStopped},
	StateStopped:     {},
}

// stateMachine guards member lifecycle transitions. Illegal moves are
// rejected so that rebalance/shutdown interleavings stay observable.
type stateMachine struct {
	mu    sync.RWMutex
	state MemberState
}

func newStateMachine() *stateMachine {
	return &stateMachine{state: StateJoining}
}

// Current returns the current state.
func (m *stateMachine) Current() MemberState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition moves to the target state or reports why it cannot.
func (m *stateMachine) Transition(to MemberState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range validTransitions[m.state] {
		if allowed == to {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid member transition %s -> %s", m.state, to)
}
