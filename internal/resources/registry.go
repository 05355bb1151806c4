// Package resources implements the Resource Registry: deterministic
// arbitration over scarce numeric resources (currently only TCP ports)
// claimed by agents, verifiers, and human collaborators during contract
// execution.
//
// A claim against an already-held resource is never rejected outright: the
// registry searches forward from the requested value for the first free
// port in its configured range and hands that back as a negotiated
// assignment instead. Only when the range is exhausted does a claim
// escalate to conflict. This mirrors the port-contention scenario in
// stead's test suite, where two claimants racing for the same port must
// both succeed, deterministically, without either side retrying.
package resources

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/steadhq/stead/pkg/errors"
)

const tracerName = "github.com/steadhq/stead/internal/resources"

// DefaultPortRangeStart and DefaultPortRangeEnd bound the registry's port
// space when no explicit range is configured.
const (
	DefaultPortRangeStart = 3000
	DefaultPortRangeEnd   = 4999
)

// Key identifies a claimable resource. Only ports are modeled today;
// the type exists so the Daemon API's resource variants have a stable
// wire shape to extend if a second resource kind is ever added.
type Key struct {
	Port uint16
}

// Lease binds a Key to the owner currently holding it.
type Lease struct {
	Resource Key
	Owner    string
}

// ConflictEscalated is recorded when a claim could not be negotiated
// because the registry's port range has no free slot left to offer.
type ConflictEscalated struct {
	Requested   Key
	RequestedBy string
	HeldBy      string
	Reason      string
}

// ClaimOutcome is the kind of result [Registry.Claim] produced.
type ClaimOutcome int

const (
	// Claimed means the caller now holds exactly the resource it requested.
	Claimed ClaimOutcome = iota
	// Negotiated means the requested resource was already held by a
	// different owner, and the caller was instead assigned the next free
	// resource in range.
	Negotiated
	// Conflict means the requested resource was held and no free resource
	// remained to negotiate; the caller holds nothing.
	Conflict
)

// ClaimResult is the full outcome of a [Registry.Claim] call.
type ClaimResult struct {
	Outcome   ClaimOutcome
	Requested Key
	Assigned  Lease  // valid when Outcome is Claimed or Negotiated
	HeldBy    *Lease // valid when Outcome is Negotiated or Conflict
}

// Registry arbitrates claims over a bounded range of ports. It is safe for
// concurrent use; all state is guarded by a single mutex, matching the
// registry's documented single-writer-at-a-time concurrency model.
type Registry struct {
	mu     sync.Mutex
	leases map[Key]Lease
	start  uint16
	end    uint16
	events []ConflictEscalated
	tracer trace.Tracer
}

// New constructs a Registry bounded to [start, end] inclusive. Panics if
// start > end, matching the teacher's fail-fast validation of caller-
// supplied ranges.
func New(start, end uint16) *Registry {
	if start > end {
		panic("resources: invalid port range")
	}
	return &Registry{
		leases: make(map[Key]Lease),
		start:  start,
		end:    end,
		tracer: otel.Tracer(tracerName),
	}
}

// NewDefault constructs a Registry over [DefaultPortRangeStart,
// DefaultPortRangeEnd].
func NewDefault() *Registry {
	return New(DefaultPortRangeStart, DefaultPortRangeEnd)
}

// Claim requests resource on behalf of owner.
//
//   - If resource is unheld, owner is granted it: Claimed.
//   - If resource is already held by owner, the claim is an idempotent
//     no-op: Claimed.
//   - If resource is held by a different owner, the registry searches
//     strictly-greater ports in range for the first free one and assigns
//     that to owner instead: Negotiated. The search never wraps.
//   - If no free port remains in range, a ConflictEscalated event is
//     recorded and the call returns Conflict; owner holds nothing.
func (r *Registry) Claim(ctx context.Context, resource Key, owner string) ClaimResult {
	_, span := r.tracer.Start(ctx, "Registry.Claim", trace.WithAttributes(
		attribute.Int("stead.resource.port", int(resource.Port)),
		attribute.String("stead.resource.owner", owner),
	))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, held := r.leases[resource]
	if !held {
		lease := Lease{Resource: resource, Owner: owner}
		r.leases[resource] = lease
		return ClaimResult{Outcome: Claimed, Requested: resource, Assigned: lease}
	}

	if existing.Owner == owner {
		return ClaimResult{Outcome: Claimed, Requested: resource, Assigned: existing}
	}

	if candidate, ok := r.nextAvailablePortAfter(resource); ok {
		assigned := Lease{Resource: candidate, Owner: owner}
		r.leases[candidate] = assigned
		heldBy := existing
		return ClaimResult{
			Outcome:   Negotiated,
			Requested: resource,
			Assigned:  assigned,
			HeldBy:    &heldBy,
		}
	}

	r.events = append(r.events, ConflictEscalated{
		Requested:   resource,
		RequestedBy: owner,
		HeldBy:      existing.Owner,
		Reason:      "port_range_exhausted",
	})
	span.SetStatus(codes.Error, "port_range_exhausted")
	heldBy := existing
	return ClaimResult{Outcome: Conflict, Requested: resource, HeldBy: &heldBy}
}

// Release gives up resource on behalf of owner. Returns
// [sserr.CodeContractNotFound] if the resource is unheld, or
// [sserr.CodeNotOwner] if owner does not hold it.
func (r *Registry) Release(ctx context.Context, resource Key, owner string) (Lease, error) {
	_, span := r.tracer.Start(ctx, "Registry.Release", trace.WithAttributes(
		attribute.Int("stead.resource.port", int(resource.Port)),
	))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	lease, held := r.leases[resource]
	if !held {
		err := sserr.LeaseNotFound("resource port", fmt.Sprintf("%d", resource.Port))
		span.SetStatus(codes.Error, err.Error())
		return Lease{}, err
	}
	if lease.Owner != owner {
		err := sserr.NotOwner("resource", fmt.Sprintf("port:%d", resource.Port), lease.Owner, owner)
		span.SetStatus(codes.Error, err.Error())
		return Lease{}, err
	}
	delete(r.leases, resource)
	return lease, nil
}

// nextAvailablePortAfter searches strictly-greater ports starting from
// requested.Port+1 (clamped to the registry's start) through the range end,
// returning the first unheld one. It never wraps to the start of the
// range — wrap-free search is what distinguishes the Resource Registry
// from the Endpoint Registry's wrap-once negotiation.
func (r *Registry) nextAvailablePortAfter(requested Key) (Key, bool) {
	from := requested.Port + 1
	if from == 0 { // requested was 65535: no port lies above it
		return Key{}, false
	}
	if from < r.start {
		from = r.start
	}
	for port := from; port <= r.end; port++ {
		candidate := Key{Port: port}
		if _, held := r.leases[candidate]; !held {
			return candidate, true
		}
	}
	return Key{}, false
}

// DrainEvents returns and clears the accumulated conflict-escalation
// events since the last drain.
func (r *Registry) DrainEvents() []ConflictEscalated {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.events
	r.events = nil
	return events
}

// ExportLeases returns a snapshot of every currently held lease, suitable
// for durable persistence.
func (r *Registry) ExportLeases() []Lease {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Lease, 0, len(r.leases))
	for _, lease := range r.leases {
		out = append(out, lease)
	}
	return out
}

// ImportLeases replaces the registry's lease set with leases, discarding
// whatever was previously held. Used to restore state on daemon restart.
func (r *Registry) ImportLeases(leases []Lease) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leases = make(map[Key]Lease, len(leases))
	for _, lease := range leases {
		r.leases[lease.Resource] = lease
	}
}
