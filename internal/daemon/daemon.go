// Package daemon fuses the Contract Store, Resource Registry, Endpoint
// Registry, and event bus behind a single versioned request/response API.
// It is the one place in stead that holds every other component's handle
// at once; everything else is reachable only through it.
package daemon

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/steadhq/stead/internal/endpoints"
	"github.com/steadhq/stead/internal/eventbus"
	"github.com/steadhq/stead/internal/resources"
	"github.com/steadhq/stead/internal/store"
	sserr "github.com/steadhq/stead/pkg/errors"
	"github.com/steadhq/stead/pkg/lifecycle"
	"github.com/steadhq/stead/pkg/session"
)

const tracerName = "github.com/steadhq/stead/internal/daemon"

// APIVersion is the stable envelope version string for the Daemon API.
const APIVersion = "v1"

// Envelope wraps every Daemon response.
type Envelope struct {
	Version string `json:"version"`
	Data    any    `json:"data"`
}

// HealthResponse is the Health request's data variant.
type HealthResponse struct {
	Status string `json:"status"`
}

// ContractsResponse is the ListContracts request's data variant.
type ContractsResponse struct {
	Contracts []*lifecycle.Contract `json:"contracts"`
}

// AttentionResponse is the AttentionStatus request's data variant.
type AttentionResponse struct {
	store.AttentionCounts
}

// EndpointsResponse is the ListEndpoints request's data variant.
type EndpointsResponse struct {
	Endpoints []endpoints.Lease `json:"endpoints"`
}

// EndpointReleasedResponse is the ReleaseEndpoint request's data variant.
type EndpointReleasedResponse struct {
	Lease endpoints.Lease `json:"lease"`
}

// ResourceClaimResponse is the ClaimResource request's data variant.
type ResourceClaimResponse struct {
	resources.ClaimResult
}

// EndpointClaimResponse is the ClaimEndpoint request's data variant.
type EndpointClaimResponse struct {
	endpoints.ClaimResult
}

// SessionInput is one raw session payload the caller wants parsed and
// included in a SessionQuery response.
type SessionInput struct {
	CLIKind string `json:"cli_kind"`
	RawText string `json:"raw_text"`
}

// ErrorResponse is the Envelope's Data variant on a failed request: the
// wire shape every handler's caller sees in place of a successful payload,
// `{"code": "...", "message": "..."}`.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionsResponse is the SessionQuery request's data variant. Inputs that
// fail to parse are omitted from Sessions and reported in Errors rather
// than failing the whole request, since one malformed session from one CLI
// adapter shouldn't hide every other session.
type SessionsResponse struct {
	Sessions []session.Record `json:"sessions"`
	Errors   []string         `json:"errors,omitempty"`
}

// Daemon is the single fusion point owning a Contract Store handle, a
// Resource Registry, an Endpoint Registry, and the event bus. Each
// registry is additionally wrapped in its own mutex matching the
// documented concurrency model: the mutex guards only the claim/release
// call and the subsequent drain/export read, never the disk IO that
// follows.
type Daemon struct {
	store         *store.Store
	resourcesMu   sync.Mutex
	resourceReg   *resources.Registry
	endpointsMu   sync.Mutex
	endpointReg   *endpoints.Registry
	endpointsPath string
	events        *eventbus.Bus
	tracer        trace.Tracer
}

// Options configures [Open].
type Options struct {
	// DBPath is the path to the contract store's SQLite file.
	DBPath string
	// ResourcePortStart/End bound the Resource Registry. Defaults to
	// [resources.DefaultPortRangeStart]/[resources.DefaultPortRangeEnd]
	// when both are zero.
	ResourcePortStart, ResourcePortEnd uint16
	// EndpointPortStart/End bound the Endpoint Registry. Defaults to
	// [endpoints.DefaultPortRangeStart]/[endpoints.DefaultPortRangeEnd]
	// when both are zero.
	EndpointPortStart, EndpointPortEnd uint16
}

// Open opens the contract store at opts.DBPath, restores the endpoint
// lease file sitting alongside it (`resources.json` in the same
// directory), and returns a ready Daemon. Missing or unparseable lease
// files are treated as empty, matching the durability contract.
func Open(ctx context.Context, opts Options) (*Daemon, error) {
	st, err := store.Open(ctx, opts.DBPath)
	if err != nil {
		return nil, err
	}

	resStart, resEnd := opts.ResourcePortStart, opts.ResourcePortEnd
	if resStart == 0 && resEnd == 0 {
		resStart, resEnd = resources.DefaultPortRangeStart, resources.DefaultPortRangeEnd
	}
	epStart, epEnd := opts.EndpointPortStart, opts.EndpointPortEnd
	if epStart == 0 && epEnd == 0 {
		epStart, epEnd = endpoints.DefaultPortRangeStart, endpoints.DefaultPortRangeEnd
	}

	endpointsPath := filepath.Join(filepath.Dir(opts.DBPath), "resources.json")
	endpointReg := endpoints.New(epStart, epEnd)
	endpointReg.ImportLeases(loadEndpointLeases(endpointsPath))

	return &Daemon{
		store:         st,
		resourceReg:   resources.New(resStart, resEnd),
		endpointReg:   endpointReg,
		endpointsPath: endpointsPath,
		events:        eventbus.New(),
		tracer:        otel.Tracer(tracerName),
	}, nil
}

// Close releases the underlying store handle and closes the event bus.
func (d *Daemon) Close() error {
	d.events.Close()
	return d.store.Close()
}

// Subscribe registers a new event subscriber. See [eventbus.Bus.Subscribe].
func (d *Daemon) Subscribe() <-chan eventbus.Event {
	return d.events.Subscribe()
}

// ReplayFrom returns every published event with a cursor strictly greater
// than cursor.
func (d *Daemon) ReplayFrom(cursor uint64) []eventbus.Event {
	return d.events.ReplayFrom(cursor)
}

func envelope(data any) Envelope {
	return Envelope{Version: APIVersion, Data: data}
}

// errEnvelope builds the error-shaped Envelope a handler returns alongside
// its error value, translating err's internal code (e.g. "NF_101") to the
// Daemon API's stable wire string (e.g. "not_found") via [sserr.Error.WireCode].
// An err that isn't a *sserr.Error (never expected from this package's own
// collaborators, but possible from a misbehaving caller) falls back to the
// generic "internal" wire code.
func errEnvelope(err error) Envelope {
	ssErr, ok := sserr.AsError(err)
	if !ok {
		return envelope(ErrorResponse{Code: "internal", Message: err.Error()})
	}
	return envelope(ErrorResponse{Code: ssErr.WireCode(), Message: ssErr.Message})
}

func (d *Daemon) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, "Daemon."+op)
}

// Health returns the daemon's liveness status.
func (d *Daemon) Health(ctx context.Context) Envelope {
	return envelope(HealthResponse{Status: "ok"})
}

// CreateContract builds a new contract (Ready if blockedBy is empty, else
// Pending), persists its snapshot, and publishes a ContractCreated event.
func (d *Daemon) CreateContract(ctx context.Context, id string, blockedBy []string, task, verification string) (Envelope, error) {
	ctx, span := d.startSpan(ctx, "CreateContract")
	span.SetAttributes(attribute.String("stead.contract.id", id))
	defer span.End()

	c := lifecycle.NewContract(id, blockedBy, task, verification)
	if err := d.store.SaveContract(ctx, c); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errEnvelope(err), err
	}

	d.events.Publish(eventbus.KindContractCreated, map[string]any{"id": id})
	return envelope(c), nil
}

// GetContract returns a single contract's snapshot.
func (d *Daemon) GetContract(ctx context.Context, id string) (Envelope, error) {
	c, err := d.store.LoadContract(ctx, id)
	if err != nil {
		return errEnvelope(err), err
	}
	return envelope(c), nil
}

// ListContracts returns every contract snapshot ordered by id ascending.
func (d *Daemon) ListContracts(ctx context.Context) (Envelope, error) {
	contracts, err := d.store.ListContracts(ctx)
	if err != nil {
		return errEnvelope(err), err
	}
	return envelope(ContractsResponse{Contracts: contracts}), nil
}

// AttentionStatus queries each attention tier and returns their counts.
func (d *Daemon) AttentionStatus(ctx context.Context) (Envelope, error) {
	counts, err := d.store.AttentionStatus(ctx)
	if err != nil {
		return errEnvelope(err), err
	}
	return envelope(AttentionResponse{AttentionCounts: counts}), nil
}

// transitionFor maps a requested target status to the lifecycle method
// that reaches it. actor and owner are forwarded to the underlying
// [lifecycle.Contract] method; owner is only meaningful for Claim.
func transitionFor(ctx context.Context, c *lifecycle.Contract, actor lifecycle.Actor, to lifecycle.State, owner string) (*lifecycle.ContractEvent, error) {
	switch to {
	case lifecycle.StateReady:
		if c.Status == lifecycle.StatePending {
			return c.DepsMet(ctx, actor)
		}
		return c.Unclaim(ctx, actor)
	case lifecycle.StateClaimed:
		return c.Claim(ctx, actor, owner)
	case lifecycle.StateExecuting:
		return c.Start(ctx, actor)
	case lifecycle.StateVerifying:
		return c.Verify(ctx, actor)
	case lifecycle.StateCompleted:
		return c.FinishVerification(ctx, actor, true, nil)
	case lifecycle.StateFailed:
		return c.Fail(ctx, actor, nil)
	case lifecycle.StateRollingBack:
		return c.Rollback(ctx, actor)
	case lifecycle.StateRolledBack:
		return c.RollbackDone(ctx, actor)
	case lifecycle.StateCancelled:
		return c.Cancel(ctx, actor)
	default:
		return nil, sserr.Newf(sserr.CodeInvalidTransition, "unrecognized target status %q", to)
	}
}

// TransitionContract loads id, applies the lifecycle transition to the
// requested status on behalf of actor, and on success records the event
// and publishes ContractTransitioned. owner is forwarded only when to is
// Claimed. A load miss surfaces CodeContractNotFound; an illegal or
// unauthorized transition surfaces CodeInvalidTransition without mutating
// stored state.
func (d *Daemon) TransitionContract(ctx context.Context, id string, to lifecycle.State, actor lifecycle.Actor, owner string) (Envelope, error) {
	ctx, span := d.startSpan(ctx, "TransitionContract")
	span.SetAttributes(
		attribute.String("stead.contract.id", id),
		attribute.String("stead.contract.to", to.String()),
	)
	defer span.End()

	c, err := d.store.LoadContract(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errEnvelope(err), err
	}

	event, err := transitionFor(ctx, c, actor, to, owner)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errEnvelope(err), err
	}

	if err := d.store.RecordTransition(ctx, c, event); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errEnvelope(err), err
	}

	d.events.Publish(eventbus.KindContractTransitioned, map[string]any{
		"id": event.ContractID, "from": event.From.String(), "to": event.To.String(),
	})
	return envelope(c), nil
}

// ClaimResource takes the Resource Registry lock, performs the claim,
// drains escalation events, and releases the lock before publishing them —
// event publication happens outside the critical section. Resource leases
// are held in memory only; nothing is persisted.
func (d *Daemon) ClaimResource(ctx context.Context, port uint16, owner string) (Envelope, error) {
	ctx, span := d.startSpan(ctx, "ClaimResource")
	span.SetAttributes(attribute.Int("stead.resource.port", int(port)))
	defer span.End()

	d.resourcesMu.Lock()
	result := d.resourceReg.Claim(ctx, resources.Key{Port: port}, owner)
	escalations := d.resourceReg.DrainEvents()
	d.resourcesMu.Unlock()

	for _, e := range escalations {
		d.events.Publish(eventbus.KindResourceConflictEscalated, map[string]any{
			"port": e.Requested.Port, "requested_by": e.RequestedBy, "held_by": e.HeldBy, "reason": e.Reason,
		})
	}

	return envelope(ResourceClaimResponse{ClaimResult: result}), nil
}

// ReleaseResource releases port on behalf of owner.
func (d *Daemon) ReleaseResource(ctx context.Context, port uint16, owner string) (Envelope, error) {
	d.resourcesMu.Lock()
	lease, err := d.resourceReg.Release(ctx, resources.Key{Port: port}, owner)
	d.resourcesMu.Unlock()
	if err != nil {
		return errEnvelope(err), err
	}
	return envelope(lease), nil
}

// ClaimEndpoint takes the Endpoint Registry lock, performs the claim,
// drains events and exports the full lease set, releases the lock, then
// persists the lease set to disk and publishes any escalation events —
// in that order, so disk IO never happens while the lock is held.
func (d *Daemon) ClaimEndpoint(ctx context.Context, name, owner string, requestedPort *uint16) (Envelope, error) {
	ctx, span := d.startSpan(ctx, "ClaimEndpoint")
	span.SetAttributes(attribute.String("stead.endpoint.name", name))
	defer span.End()

	d.endpointsMu.Lock()
	result := d.endpointReg.Claim(ctx, name, owner, requestedPort)
	escalations := d.endpointReg.DrainEvents()
	leases := d.endpointReg.ExportLeases()
	d.endpointsMu.Unlock()

	if err := d.persistEndpointLeases(leases); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errEnvelope(err), err
	}

	for _, e := range escalations {
		d.events.Publish(eventbus.KindEndpointRangeExhausted, map[string]any{
			"name": e.Name, "owner": e.Owner, "requested_port": e.RequestedPort, "reason": e.Reason,
		})
	}

	return envelope(EndpointClaimResponse{ClaimResult: result}), nil
}

// ListEndpoints returns every held endpoint lease sorted by name.
func (d *Daemon) ListEndpoints(ctx context.Context) (Envelope, error) {
	return envelope(EndpointsResponse{Endpoints: d.endpointReg.List()}), nil
}

// ReleaseEndpoint releases name on behalf of owner, persisting the
// resulting lease set before returning. Unknown name surfaces
// CodeContractNotFound; a non-owning caller surfaces CodeNotOwner.
func (d *Daemon) ReleaseEndpoint(ctx context.Context, name, owner string) (Envelope, error) {
	d.endpointsMu.Lock()
	lease, err := d.endpointReg.Release(ctx, name, owner)
	var leases []endpoints.Lease
	if err == nil {
		leases = d.endpointReg.ExportLeases()
	}
	d.endpointsMu.Unlock()
	if err != nil {
		return errEnvelope(err), err
	}

	if err := d.persistEndpointLeases(leases); err != nil {
		return errEnvelope(err), err
	}
	return envelope(EndpointReleasedResponse{Lease: lease}), nil
}

// SessionQuery parses each input through the session-projection
// collaborator, then orders the successfully parsed records by the
// collaborator's own (updated_at desc, id asc) rule. A failing input
// contributes its [session.ParseError] message to Errors rather than
// failing the request outright; this handler never touches the contract
// store or either registry.
func (d *Daemon) SessionQuery(ctx context.Context, inputs []SessionInput, cliFilter, textFilter string) Envelope {
	_, span := d.startSpan(ctx, "SessionQuery")
	defer span.End()

	records := make([]session.Record, 0, len(inputs))
	var errs []string
	for _, in := range inputs {
		record, perr := session.Parse(in.CLIKind, in.RawText)
		if perr != nil {
			errs = append(errs, perr.Error())
			continue
		}
		records = append(records, *record)
	}

	return envelope(SessionsResponse{
		Sessions: session.Query(records, cliFilter, textFilter),
		Errors:   errs,
	})
}

func (d *Daemon) persistEndpointLeases(leases []endpoints.Lease) error {
	data, err := json.Marshal(leases)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeStorage, "daemon: failed to encode endpoint leases")
	}
	if err := os.WriteFile(d.endpointsPath, data, 0o600); err != nil {
		return sserr.Wrapf(err, sserr.CodeStorage, "daemon: failed to write %q", d.endpointsPath)
	}
	return nil
}

func loadEndpointLeases(path string) []endpoints.Lease {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var leases []endpoints.Lease
	if err := json.Unmarshal(raw, &leases); err != nil {
		return nil
	}
	return leases
}
