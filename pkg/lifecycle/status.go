// Package lifecycle implements the ten-state contract lifecycle state
// machine at the heart of stead, including transition validation, the
// actor-scoped permission matrix, and the [Contract] value type whose
// methods are the only sanctioned way to advance a contract's status.
//
// # Contract Lifecycle
//
// Every contract occupies exactly one of ten states at a time. Transitions
// are validated against the [validTransitions] matrix by [ValidTransition],
// and separately authorized against the requesting [Actor] by
// [ActionAllowedFor]. These two checks are intentionally independent:
// legality of a transition and authorization to perform it are composed by
// the caller (the Daemon), never interleaved inside the state machine
// itself.
//
//	Pending → Ready → Claimed → Executing → Verifying → Completed
//	                      ↑          |
//	                      └─ Ready   └→ Failed → RollingBack → RolledBack
//
// Completed, RolledBack, and Cancelled are terminal: [State.IsTerminal]
// reports true and [validTransitions] holds no outgoing edges for them.
//
// # Thread Safety
//
// [Contract] values carry no internal synchronization; callers that share
// a Contract across goroutines must serialize access externally (the
// Contract Store does this via the database, the Daemon via the store
// handle it owns).
//
// # OpenTelemetry Integration
//
// The [Contract] transition methods, all routed through the internal
// transitionTo, create OpenTelemetry spans
// with semantic attributes for observability. The tracer scope is
// "github.com/steadhq/stead/pkg/lifecycle".
package lifecycle

// State represents the lifecycle status of a contract. States form a
// finite state machine with validated transitions defined by
// [ValidTransition].
//
// The zero value ("") is not a valid state; contracts are initialized with
// either [StateReady] or [StatePending] at construction time, depending on
// whether they carry blockers.
type State string

const (
	// StatePending indicates the contract has unresolved entries in
	// blocked_by and cannot yet be claimed. Only the System actor, via the
	// DepsMet action, can move it to [StateReady].
	StatePending State = "pending"

	// StateReady indicates the contract has no outstanding blockers and is
	// available for an agent or human to claim.
	StateReady State = "ready"

	// StateClaimed indicates an owner has taken exclusive responsibility
	// for the contract. owner is set while in this state (see
	// [Contract.Owner]).
	StateClaimed State = "claimed"

	// StateExecuting indicates the claimed owner has started the
	// underlying task.
	StateExecuting State = "executing"

	// StateVerifying indicates the task finished and its verification
	// command is running. Deliberately uncancellable: see
	// [Contract.Cancel].
	StateVerifying State = "verifying"

	// StateCompleted indicates verification passed. Terminal.
	StateCompleted State = "completed"

	// StateFailed indicates the task or its verification failed. Not
	// terminal: a failed contract may be re-readied, rolled back, or
	// cancelled.
	StateFailed State = "failed"

	// StateRollingBack indicates a rollback of a failed contract's effects
	// is in progress.
	StateRollingBack State = "rolling_back"

	// StateRolledBack indicates rollback completed. Terminal.
	StateRolledBack State = "rolled_back"

	// StateCancelled indicates a human withdrew the contract before it
	// reached a terminal outcome. Terminal.
	StateCancelled State = "cancelled"
)

// String returns the snake_case wire/storage representation of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether the state is one of the ten recognized lifecycle
// states. The zero value ("") is not valid.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateReady, StateClaimed, StateExecuting, StateVerifying,
		StateCompleted, StateFailed, StateRollingBack, StateRolledBack, StateCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state is a terminal lifecycle state.
// Terminal states are [StateCompleted], [StateRolledBack], and
// [StateCancelled]; a contract in a terminal state accepts no further
// transitions.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateRolledBack, StateCancelled:
		return true
	default:
		return false
	}
}

// validTransitions defines the allowed state transitions for the contract
// lifecycle state machine. Each key is a source state, and the value is the
// set of states it may transition to. Transitions not present in this map
// are rejected by [ValidTransition].
//
// Transition matrix:
//
//	Pending     → Ready, Cancelled
//	Ready       → Claimed, Cancelled
//	Claimed     → Executing, Ready, Cancelled
//	Executing   → Verifying, Failed, Cancelled
//	Verifying   → Completed, Failed
//	Failed      → Ready, RollingBack, Cancelled
//	RollingBack → RolledBack, Failed
//	Completed, RolledBack, Cancelled → ∅ (terminal)
var validTransitions = map[State][]State{
	StatePending:     {StateReady, StateCancelled},
	StateReady:       {StateClaimed, StateCancelled},
	StateClaimed:     {StateExecuting, StateReady, StateCancelled},
	StateExecuting:   {StateVerifying, StateFailed, StateCancelled},
	StateVerifying:   {StateCompleted, StateFailed},
	StateFailed:      {StateReady, StateRollingBack, StateCancelled},
	StateRollingBack: {StateRolledBack, StateFailed},
}

// ValidTransition reports whether transitioning from state from to state to
// is allowed by the lifecycle state machine. Both from and to must be valid
// states, and the transition must be present in the [validTransitions]
// matrix. Same-state transitions (from == to) are always rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}
