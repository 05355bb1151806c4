// Package endpoints implements the Endpoint Registry: name-keyed HTTP
// endpoint leases used to expose a project's running services to the rest
// of the control plane under a stable `http://<name>.localhost:<port>` URL.
//
// Unlike the Resource Registry's bare port arbitration, an endpoint claim
// is keyed by a human-meaningful name. Reclaiming the same name with the
// same owner is an idempotent no-op regardless of the port requested;
// reclaiming a name already held by someone else is an immediate conflict,
// never negotiated. Port contention within a *new* name negotiates by
// searching forward from the requested port and, uniquely among stead's
// registries, wrapping once back to the start of the range before giving
// up.
package endpoints

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/steadhq/stead/pkg/errors"
)

const tracerName = "github.com/steadhq/stead/internal/endpoints"

// DefaultPortRangeStart and DefaultPortRangeEnd bound the registry's port
// space when no explicit range is configured.
const (
	DefaultPortRangeStart = 4100
	DefaultPortRangeEnd   = 4999
)

// Lease binds an endpoint name to its owner and assigned port.
type Lease struct {
	Name  string
	Owner string
	Port  uint16
}

// URL returns the endpoint's externally addressable URL.
func (l Lease) URL() string {
	return fmt.Sprintf("http://%s.localhost:%d", l.Name, l.Port)
}

// Conflict describes a claim that could not be satisfied.
type Conflict struct {
	Name          string
	RequestedPort uint16
	HeldBy        *Lease
}

// RangeExhausted is recorded when a new endpoint name's port request
// could not be satisfied anywhere in the configured range, including
// after wrapping once.
type RangeExhausted struct {
	Name          string
	Owner         string
	RequestedPort uint16
	Reason        string
}

// ClaimOutcome is the kind of result [Registry.Claim] produced.
type ClaimOutcome int

const (
	Claimed ClaimOutcome = iota
	Negotiated
	ClaimConflict
)

// ClaimResult is the full outcome of a [Registry.Claim] call.
type ClaimResult struct {
	Outcome       ClaimOutcome
	RequestedPort uint16
	Assigned      Lease     // valid when Outcome is Claimed or Negotiated
	HeldBy        *Lease    // valid when Outcome is Negotiated or ClaimConflict
	Conflict      *Conflict // valid when Outcome is ClaimConflict
}

// Registry arbitrates name-keyed endpoint leases over a bounded port
// range. Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	byName map[string]Lease
	start  uint16
	end    uint16
	events []RangeExhausted
	tracer trace.Tracer
}

// New constructs a Registry bounded to [start, end] inclusive. Panics if
// start > end.
func New(start, end uint16) *Registry {
	if start > end {
		panic("endpoints: invalid port range")
	}
	return &Registry{
		byName: make(map[string]Lease),
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

// Claim requests name on behalf of owner, optionally pinning a preferred
// port. If requestedPort is nil, the registry's range start is used as the
// preference.
//
//   - If name is already held by owner, the claim is an idempotent no-op
//     (the existing lease's port is kept, even if a different port was
//     requested): Claimed.
//   - If name is held by a different owner, the claim conflicts
//     immediately; there is no negotiation on name collision.
//   - If name is new and the requested port is free, it is granted as-is:
//     Claimed.
//   - If name is new and the requested port is taken, the registry
//     searches forward from requested+1 through the range end, then wraps
//     to the range start up to (but not including) the requested port:
//     Negotiated.
//   - If no port anywhere in the range is free, a RangeExhausted event is
//     recorded and the call returns ClaimConflict.
func (r *Registry) Claim(ctx context.Context, name, owner string, requestedPort *uint16) ClaimResult {
	_, span := r.tracer.Start(ctx, "Registry.Claim", trace.WithAttributes(
		attribute.String("stead.endpoint.name", name),
		attribute.String("stead.endpoint.owner", owner),
	))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	port := r.start
	if requestedPort != nil {
		port = *requestedPort
	}

	if existing, held := r.byName[name]; held {
		if existing.Owner == owner {
			return ClaimResult{Outcome: Claimed, RequestedPort: port, Assigned: existing}
		}
		heldBy := existing
		span.SetStatus(codes.Error, "endpoint name held by a different owner")
		return ClaimResult{
			Outcome:       ClaimConflict,
			RequestedPort: port,
			HeldBy:        &heldBy,
			Conflict:      &Conflict{Name: name, RequestedPort: port, HeldBy: &heldBy},
		}
	}

	if r.isPortFree(port) {
		lease := Lease{Name: name, Owner: owner, Port: port}
		r.byName[name] = lease
		return ClaimResult{Outcome: Claimed, RequestedPort: port, Assigned: lease}
	}

	if assignedPort, ok := r.nextAvailablePortAfter(port); ok {
		lease := Lease{Name: name, Owner: owner, Port: assignedPort}
		heldBy := r.leaseForPort(port)
		r.byName[name] = lease
		return ClaimResult{Outcome: Negotiated, RequestedPort: port, Assigned: lease, HeldBy: heldBy}
	}

	r.events = append(r.events, RangeExhausted{
		Name: name, Owner: owner, RequestedPort: port, Reason: "endpoint_range_exhausted",
	})
	span.SetStatus(codes.Error, "endpoint_range_exhausted")
	return ClaimResult{
		Outcome:       ClaimConflict,
		RequestedPort: port,
		HeldBy:        r.leaseForPort(port),
		Conflict:      &Conflict{Name: name, RequestedPort: port, HeldBy: r.leaseForPort(port)},
	}
}

// Release gives up name on behalf of owner. Returns
// [sserr.CodeContractNotFound] if the name is unheld, or
// [sserr.CodeNotOwner] if owner does not hold it.
func (r *Registry) Release(ctx context.Context, name, owner string) (Lease, error) {
	_, span := r.tracer.Start(ctx, "Registry.Release", trace.WithAttributes(
		attribute.String("stead.endpoint.name", name),
	))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	lease, held := r.byName[name]
	if !held {
		err := sserr.LeaseNotFound("endpoint", name)
		span.SetStatus(codes.Error, err.Error())
		return Lease{}, err
	}
	if lease.Owner != owner {
		err := sserr.NotOwner("endpoint", name, lease.Owner, owner)
		span.SetStatus(codes.Error, err.Error())
		return Lease{}, err
	}
	delete(r.byName, name)
	return lease, nil
}

// List returns every held lease sorted by name ascending.
func (r *Registry) List() []Lease {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Lease, 0, len(r.byName))
	for _, lease := range r.byName {
		out = append(out, lease)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DrainEvents returns and clears the accumulated range-exhaustion events
// since the last drain.
func (r *Registry) DrainEvents() []RangeExhausted {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.events
	r.events = nil
	return events
}

// ExportLeases returns every held lease sorted by name, suitable for
// durable persistence.
func (r *Registry) ExportLeases() []Lease {
	return r.List()
}

// ImportLeases replaces the registry's lease set with leases, discarding
// whatever was previously held.
func (r *Registry) ImportLeases(leases []Lease) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]Lease, len(leases))
	for _, lease := range leases {
		r.byName[lease.Name] = lease
	}
}

func (r *Registry) leaseForPort(port uint16) *Lease {
	for _, lease := range r.byName {
		if lease.Port == port {
			l := lease
			return &l
		}
	}
	return nil
}

func (r *Registry) portInRange(port uint16) bool {
	return port >= r.start && port <= r.end
}

func (r *Registry) isPortFree(port uint16) bool {
	if !r.portInRange(port) {
		return false
	}
	for _, lease := range r.byName {
		if lease.Port == port {
			return false
		}
	}
	return true
}

// nextAvailablePortAfter searches requested+1..=end, then wraps to
// start..requested (exclusive of requested itself, which is already known
// taken), returning the first free port found. Returns false if requested
// itself is out of range or no free port exists anywhere in the range.
func (r *Registry) nextAvailablePortAfter(requested uint16) (uint16, bool) {
	if !r.portInRange(requested) {
		return 0, false
	}
	for port := requested + 1; port <= r.end && port > requested; port++ {
		if r.isPortFree(port) {
			return port, true
		}
	}
	for port := r.start; port < requested; port++ {
		if r.isPortFree(port) {
			return port, true
		}
	}
	return 0, false
}

// ProjectEndpointName derives a stable, URL-safe endpoint name from a
// project identifier: non-alphanumeric runes become dashes, runs of
// dashes collapse to one, and leading/trailing dashes are trimmed. An
// empty result after normalization falls back to "stead-project"; a
// non-empty result is prefixed with "stead-".
func ProjectEndpointName(project string) string {
	var b strings.Builder
	for _, ch := range project {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch >= 'A' && ch <= 'Z':
			b.WriteRune(ch - 'A' + 'a')
		default:
			b.WriteByte('-')
		}
	}

	normalized := b.String()
	for strings.Contains(normalized, "--") {
		normalized = strings.ReplaceAll(normalized, "--", "-")
	}
	normalized = strings.Trim(normalized, "-")

	if normalized == "" {
		return "stead-project"
	}
	return "stead-" + normalized
}
