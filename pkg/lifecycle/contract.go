package lifecycle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/steadhq/stead/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/steadhq/stead/pkg/lifecycle"

var tracer = otel.Tracer(tracerName)

// ContractEvent is the append-only record produced by a successful
// transition: `(contract_id, from_status, to_status, blocked_by_snapshot)`.
// The Contract Store persists it in the same transaction as the updated
// snapshot; replaying a contract's events from the first entry's From value
// reproduces the current snapshot's Status and BlockedBy.
type ContractEvent struct {
	ContractID        string
	From              State
	To                State
	BlockedBySnapshot []string
}

// Contract is a durably tracked unit of work progressing through the
// ten-state lifecycle defined by [State]. Its only sanctioned mutators are
// the methods on this type; callers never set Status directly.
//
// Contract carries no internal synchronization. Concurrent access across
// goroutines must be serialized externally — the Contract Store does this
// via the database, the Daemon via the store handle and registry mutexes it
// owns.
type Contract struct {
	// ID is the globally unique string identity of the contract.
	ID string

	// Status is the current lifecycle state. Always one of the ten values
	// of [State]; never mutated except by the methods on this type.
	Status State

	// BlockedBy is the ordered list of contract ids this contract is
	// blocked by. A non-empty BlockedBy at construction time forces the
	// initial status to [StatePending] rather than [StateReady].
	BlockedBy []string

	// Owner is set iff the contract is currently Claimed or descends from
	// Claimed without an intervening Unclaim.
	Owner string

	// CompletedAt is set the instant Status becomes terminal, and never
	// cleared afterward.
	CompletedAt *time.Time

	// Output is the captured result of a completed or failed task, carried
	// through for inspection only.
	Output *string

	// Task and Verification are carried through for inspection only; the
	// lifecycle engine never interprets their contents.
	Task         string
	Verification string

	// clock is consulted for CompletedAt when a transition lands on a
	// terminal state. Unset on contracts built by [NewContract] and on
	// every contract rehydrated from storage, both of which fall back to
	// [SystemClock] in transitionTo.
	clock Clock
}

// SetClock overrides the clock c consults when a transition lands on a
// terminal state. Intended for tests that need a deterministic
// CompletedAt; production callers never need this.
func (c *Contract) SetClock(clock Clock) {
	c.clock = clock
}

// NewContract constructs a Contract in its correct initial state: Ready if
// blockedBy is empty, Pending otherwise. blockedBy is copied defensively.
func NewContract(id string, blockedBy []string, task, verification string) *Contract {
	status := StateReady
	if len(blockedBy) > 0 {
		status = StatePending
	}
	snapshot := make([]string, len(blockedBy))
	copy(snapshot, blockedBy)
	return &Contract{
		ID:           id,
		Status:       status,
		BlockedBy:    snapshot,
		Task:         task,
		Verification: verification,
	}
}

// invalidTransition builds the typed error a rejected transition attempt
// returns. Both an illegal edge in [validTransitions] and an actor lacking
// permission for the requested action surface the same wire code —
// [sserr.CodeInvalidTransition] — since the Daemon API exposes only one
// error kind for lifecycle rejection (see stead's error taxonomy).
func invalidTransition(id string, from, to State) error {
	return sserr.InvalidTransition(id, from, to)
}

// transitionTo is the single internal chokepoint every sugar method below
// routes through. No field on c is mutated unless both the transition edge
// and the actor's permission for action check out, so a rejected transition
// leaves the contract entirely unchanged.
func (c *Contract) transitionTo(ctx context.Context, actor Actor, action Action, to State) (*ContractEvent, error) {
	_, span := tracer.Start(ctx, "Contract.transitionTo",
		trace.WithAttributes(
			attribute.String("stead.contract.id", c.ID),
			attribute.String("stead.contract.from", c.Status.String()),
			attribute.String("stead.contract.to", to.String()),
			attribute.String("stead.actor", string(actor)),
		))
	defer span.End()

	if !ValidTransition(c.Status, to) {
		err := invalidTransition(c.ID, c.Status, to)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !ActionAllowedFor(action, actor) {
		err := invalidTransition(c.ID, c.Status, to)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	from := c.Status
	snapshot := make([]string, len(c.BlockedBy))
	copy(snapshot, c.BlockedBy)

	c.Status = to
	if to.IsTerminal() {
		clock := c.clock
		if clock == nil {
			clock = SystemClock{}
		}
		now := clock.Now()
		c.CompletedAt = &now
	}
	if to == StateReady {
		c.Owner = ""
	}

	return &ContractEvent{
		ContractID:        c.ID,
		From:              from,
		To:                to,
		BlockedBySnapshot: snapshot,
	}, nil
}

// DepsMet moves the contract from Pending to Ready. System only.
func (c *Contract) DepsMet(ctx context.Context, actor Actor) (*ContractEvent, error) {
	return c.transitionTo(ctx, actor, ActionDepsMet, StateReady)
}

// Claim moves the contract from Ready to Claimed and records owner as the
// new holder. Agent or Human only.
func (c *Contract) Claim(ctx context.Context, actor Actor, owner string) (*ContractEvent, error) {
	event, err := c.transitionTo(ctx, actor, ActionClaim, StateClaimed)
	if err != nil {
		return nil, err
	}
	c.Owner = owner
	return event, nil
}

// Unclaim moves the contract from Claimed back to Ready, clearing owner.
// Agent or Human only.
func (c *Contract) Unclaim(ctx context.Context, actor Actor) (*ContractEvent, error) {
	return c.transitionTo(ctx, actor, ActionUnclaim, StateReady)
}

// Start moves the contract from Claimed to Executing. Agent or Human only.
func (c *Contract) Start(ctx context.Context, actor Actor) (*ContractEvent, error) {
	return c.transitionTo(ctx, actor, ActionStart, StateExecuting)
}

// Verify moves the contract from Executing to Verifying. Agent or Human
// only.
func (c *Contract) Verify(ctx context.Context, actor Actor) (*ContractEvent, error) {
	return c.transitionTo(ctx, actor, ActionVerify, StateVerifying)
}

// FinishVerification is sugar for the two outcomes of a verification run:
// Verifying→Completed when passed is true, Verifying→Failed otherwise.
// System only, since only the daemon (on behalf of the verification
// subprocess) records a verification outcome.
func (c *Contract) FinishVerification(ctx context.Context, actor Actor, passed bool, output *string) (*ContractEvent, error) {
	action, to := ActionPass, StateCompleted
	if !passed {
		action, to = ActionFail, StateFailed
	}
	event, err := c.transitionTo(ctx, actor, action, to)
	if err != nil {
		return nil, err
	}
	c.Output = output
	return event, nil
}

// Fail moves the contract to Failed from Executing (a task crashed before
// verification could even start). System only.
func (c *Contract) Fail(ctx context.Context, actor Actor, output *string) (*ContractEvent, error) {
	event, err := c.transitionTo(ctx, actor, ActionFail, StateFailed)
	if err != nil {
		return nil, err
	}
	c.Output = output
	return event, nil
}

// Rollback moves the contract from Failed to RollingBack. Agent or Human
// only.
func (c *Contract) Rollback(ctx context.Context, actor Actor) (*ContractEvent, error) {
	return c.transitionTo(ctx, actor, ActionRollback, StateRollingBack)
}

// RollbackDone moves the contract from RollingBack to RolledBack. System
// only.
func (c *Contract) RollbackDone(ctx context.Context, actor Actor) (*ContractEvent, error) {
	return c.transitionTo(ctx, actor, ActionRollbackDone, StateRolledBack)
}

// Cancel moves the contract to Cancelled from Pending, Ready, Claimed,
// Executing or Failed. Human only. Verifying (and RollingBack) have no
// Cancelled edge; Verifying is deliberately excluded from
// [validTransitions] so a running verifier can never be abandoned in an
// indeterminate state — this method relies on that matrix rather than
// special-casing Verifying itself.
func (c *Contract) Cancel(ctx context.Context, actor Actor) (*ContractEvent, error) {
	return c.transitionTo(ctx, actor, ActionCancel, StateCancelled)
}
