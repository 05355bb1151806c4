package lifecycle

// Actor identifies which kind of caller is initiating a transition. Every
// transition is authorized against the requesting Actor independently of
// whether the transition itself is legal under [ValidTransition] — the two
// checks are never interleaved.
type Actor string

const (
	// ActorSystem represents the daemon itself acting autonomously, e.g.
	// moving a contract from Pending to Ready once its blockers clear, or
	// recording the outcome of a verification run.
	ActorSystem Actor = "system"

	// ActorAgent represents an autonomous coding agent claiming and
	// executing work.
	ActorAgent Actor = "agent"

	// ActorHuman represents a human operator supervising the workspace.
	ActorHuman Actor = "human"
)

// Valid reports whether the actor is one of the three recognized kinds.
func (a Actor) Valid() bool {
	switch a {
	case ActorSystem, ActorAgent, ActorHuman:
		return true
	default:
		return false
	}
}

// Action names one of the named transition operations a caller can request,
// independent of the (from, to) state pair it happens to correspond to.
// Several actions map to the same underlying edge family (e.g. Claim and
// Unclaim both move between [StateClaimed] and [StateReady]); actions exist
// so the permission table can express "who may request this" without
// repeating state pairs.
type Action string

const (
	// ActionDepsMet moves a contract from Pending to Ready. System only.
	ActionDepsMet Action = "deps_met"

	// ActionClaim moves a contract from Ready to Claimed.
	ActionClaim Action = "claim"

	// ActionUnclaim moves a contract from Claimed back to Ready.
	ActionUnclaim Action = "unclaim"

	// ActionStart moves a contract from Claimed to Executing.
	ActionStart Action = "start"

	// ActionVerify moves a contract from Executing to Verifying.
	ActionVerify Action = "verify"

	// ActionPass moves a contract from Verifying to Completed. System only:
	// only the verification runner (via the daemon) records a pass.
	ActionPass Action = "pass"

	// ActionFail moves a contract from Executing or Verifying to Failed.
	// System only, for the same reason as [ActionPass].
	ActionFail Action = "fail"

	// ActionRollback moves a contract from Failed to RollingBack.
	ActionRollback Action = "rollback"

	// ActionRollbackDone moves a contract from RollingBack to RolledBack.
	// System only.
	ActionRollbackDone Action = "rollback_done"

	// ActionCancel moves a contract from Pending, Ready, Claimed, Executing
	// or Failed to Cancelled. Human only.
	ActionCancel Action = "cancel"
)

// actorPermissions is the pure lookup table backing [ActionAllowedFor]. It
// is intentionally independent from [validTransitions]: legality of an edge
// and authorization to walk it are two separate questions composed by the
// caller.
var actorPermissions = map[Action]map[Actor]bool{
	ActionDepsMet:      {ActorSystem: true},
	ActionClaim:        {ActorAgent: true, ActorHuman: true},
	ActionUnclaim:      {ActorAgent: true, ActorHuman: true},
	ActionStart:        {ActorAgent: true, ActorHuman: true},
	ActionVerify:       {ActorAgent: true, ActorHuman: true},
	ActionRollback:     {ActorAgent: true, ActorHuman: true},
	ActionPass:         {ActorSystem: true},
	ActionFail:         {ActorSystem: true},
	ActionRollbackDone: {ActorSystem: true},
	ActionCancel:       {ActorHuman: true},
}

// ActionAllowedFor is the pure function `(action, actor) → bool` that backs
// all authorization decisions in the lifecycle engine. It consults only the
// static [actorPermissions] table and has no side effects.
func ActionAllowedFor(action Action, actor Actor) bool {
	return actorPermissions[action][actor]
}
