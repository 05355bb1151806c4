// Package store provides the Contract Store: a single-file embedded SQLite
// database holding contract snapshots, the append-only event log that backs
// crash recovery, and human-attention decision items.
//
// # Schema
//
// The database lives at `<workspace>/.stead/stead.db` and bootstraps four
// tables idempotently on [Open]: `schema_meta`, `contracts`,
// `contract_events`, and `decision_items`. Foreign keys and a 5-second busy
// timeout are set on every connection.
//
// # Atomicity
//
// [Store.RecordTransition] is the single point of truth for a state change:
// it updates the `contracts` snapshot row and appends a `contract_events`
// row in one transaction, so a crash at any point leaves the log and
// snapshot consistent with each other.
//
// # OpenTelemetry Integration
//
// Each contract, event, decision and attention-tier query method opens a
// span under the tracer scope "github.com/steadhq/stead/internal/store".
// SchemaVersion, AttentionStatus (which delegates to ListByAttentionTier),
// Close and Path open no span of their own.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/steadhq/stead/pkg/errors"
	"github.com/steadhq/stead/pkg/lifecycle"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/steadhq/stead/internal/store"

// CurrentSchemaVersion is the schema version this package bootstraps and
// expects. It is recorded in the `schema_meta` table under the key
// "schema_version" and bumped whenever the DDL changes in a way existing
// databases must migrate toward.
const CurrentSchemaVersion = 3

// busyTimeoutMillis is the SQLite busy_timeout applied to every connection,
// matching the concurrency model described in the component design: writers
// serialize, readers proceed, and acquisition honors this timeout before
// surfacing a storage error.
const busyTimeoutMillis = 5000

// Store is a handle to the Contract Store's backing SQLite database. A
// Store is safe for concurrent use by multiple goroutines; the database
// itself serializes writers via SQLite's locking.
type Store struct {
	db     *sqlx.DB
	tracer trace.Tracer
	path   string
}

// Open opens (creating if necessary) the SQLite database at path,
// bootstraps its schema idempotently, and returns a ready-to-use Store.
// The parent directory is created if it does not exist.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeStorage,
			"store: failed to create workspace directory for %q", path)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		path, busyTimeoutMillis)

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeStorage, "store: failed to open %q", path)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, sserr.Wrapf(err, sserr.CodeStorage, "store: failed to connect to %q", path)
	}

	s := &Store{db: db, tracer: otel.Tracer(tracerName), path: path}
	if err := s.bootstrapSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection. Safe to call multiple times.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the backing database file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", "sqlite")),
	)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// bootstrapSchema creates the four tables if they do not already exist and
// records the current schema version. Idempotent: calling it against an
// already-current database is a no-op beyond the IF NOT EXISTS checks.
func (s *Store) bootstrapSchema(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "bootstrapSchema")
	defer span.End()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key   TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS contracts (
			id           TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			blocked_by   TEXT NOT NULL DEFAULT '[]',
			owner        TEXT NOT NULL DEFAULT '',
			completed_at TEXT,
			output       TEXT,
			task         TEXT NOT NULL DEFAULT '',
			verification TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS contract_events (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			contract_id         TEXT NOT NULL,
			from_status         TEXT NOT NULL,
			to_status           TEXT NOT NULL,
			blocked_by_snapshot TEXT NOT NULL DEFAULT '[]',
			created_at          TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(contract_id) REFERENCES contracts(id)
		)`,
		`CREATE TABLE IF NOT EXISTS decision_items (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			contract_id TEXT NOT NULL,
			summary     TEXT NOT NULL,
			resolved    INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(contract_id) REFERENCES contracts(id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			err = sserr.Wrap(err, sserr.CodeStorage, "store: failed to bootstrap schema")
			finishSpan(span, err)
			return err
		}
	}

	var version int64
	err := s.db.GetContext(ctx, &version, `SELECT value FROM schema_meta WHERE key = 'schema_version'`)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO schema_meta(key, value) VALUES ('schema_version', ?)`, CurrentSchemaVersion)
		if err != nil {
			err = sserr.Wrap(err, sserr.CodeStorage, "store: failed to record schema version")
			finishSpan(span, err)
			return err
		}
	case err != nil:
		err = sserr.Wrap(err, sserr.CodeStorage, "store: failed to read schema version")
		finishSpan(span, err)
		return err
	case version < CurrentSchemaVersion:
		if version < 3 {
			if err := s.migrateToV3(ctx); err != nil {
				finishSpan(span, err)
				return err
			}
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE schema_meta SET value = ? WHERE key = 'schema_version'`, CurrentSchemaVersion)
		if err != nil {
			err = sserr.Wrap(err, sserr.CodeStorage, "store: failed to bump schema version")
			finishSpan(span, err)
			return err
		}
	}

	finishSpan(span, nil)
	return nil
}

// migrateToV3 adds the owner/completed_at/output/task/verification columns
// to a `contracts` table created under schema v2, which persisted only
// id/status/blocked_by. CREATE TABLE IF NOT EXISTS alone never retrofits an
// existing table, so a database already at v2 needs these run explicitly.
func (s *Store) migrateToV3(ctx context.Context) error {
	stmts := []string{
		`ALTER TABLE contracts ADD COLUMN owner TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE contracts ADD COLUMN completed_at TEXT`,
		`ALTER TABLE contracts ADD COLUMN output TEXT`,
		`ALTER TABLE contracts ADD COLUMN task TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE contracts ADD COLUMN verification TEXT NOT NULL DEFAULT ''`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return sserr.Wrap(err, sserr.CodeStorage, "store: failed to migrate contracts table to schema v3")
		}
	}
	return nil
}

// SchemaVersion returns the schema version currently recorded in
// `schema_meta`.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	var version int64
	err := s.db.GetContext(ctx, &version, `SELECT value FROM schema_meta WHERE key = 'schema_version'`)
	if err != nil {
		return 0, sserr.Wrap(err, sserr.CodeStorage, "store: failed to read schema version")
	}
	return version, nil
}

// contractRow is the sqlx scan target for the `contracts` table, mirroring
// every round-trippable field of [lifecycle.Contract] the store promises to
// restore on [Store.LoadContract].
type contractRow struct {
	ID           string         `db:"id"`
	Status       string         `db:"status"`
	BlockedBy    string         `db:"blocked_by"`
	Owner        string         `db:"owner"`
	CompletedAt  sql.NullString `db:"completed_at"`
	Output       sql.NullString `db:"output"`
	Task         string         `db:"task"`
	Verification string         `db:"verification"`
}

// contractColumns is the full column list every SELECT against `contracts`
// scans into a [contractRow].
const contractColumns = "id, status, blocked_by, owner, completed_at, output, task, verification"

// qualifiedContractColumns returns contractColumns with each column
// prefixed by alias, for SELECTs that join `contracts` against another
// table.
func qualifiedContractColumns(alias string) string {
	cols := strings.Split(contractColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func marshalBlockedBy(blockedBy []string) (string, error) {
	if blockedBy == nil {
		blockedBy = []string{}
	}
	b, err := json.Marshal(blockedBy)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// completedAtToColumn and outputToColumn encode the nullable Contract
// fields for storage; their inverses below decode them back.
func completedAtToColumn(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func outputToColumn(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (r contractRow) toContract() (*lifecycle.Contract, error) {
	var blockedBy []string
	if err := json.Unmarshal([]byte(r.BlockedBy), &blockedBy); err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeStorage,
			"store: corrupt blocked_by JSON for contract %q", r.ID)
	}

	var completedAt *time.Time
	if r.CompletedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, r.CompletedAt.String)
		if err != nil {
			return nil, sserr.Wrapf(err, sserr.CodeStorage,
				"store: corrupt completed_at timestamp for contract %q", r.ID)
		}
		t = t.UTC()
		completedAt = &t
	}

	var output *string
	if r.Output.Valid {
		o := r.Output.String
		output = &o
	}

	return &lifecycle.Contract{
		ID:           r.ID,
		Status:       lifecycle.State(r.Status),
		BlockedBy:    blockedBy,
		Owner:        r.Owner,
		CompletedAt:  completedAt,
		Output:       output,
		Task:         r.Task,
		Verification: r.Verification,
	}, nil
}

// SaveContract upserts the contract's snapshot row in a single statement.
func (s *Store) SaveContract(ctx context.Context, c *lifecycle.Contract) error {
	ctx, span := s.startSpan(ctx, "SaveContract")
	span.SetAttributes(attribute.String("stead.contract.id", c.ID))

	blockedBy, err := marshalBlockedBy(c.BlockedBy)
	if err != nil {
		err = sserr.Wrap(err, sserr.CodeStorage, "store: failed to encode blocked_by")
		finishSpan(span, err)
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contracts (id, status, blocked_by, owner, completed_at, output, task, verification)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			blocked_by = excluded.blocked_by,
			owner = excluded.owner,
			completed_at = excluded.completed_at,
			output = excluded.output,
			task = excluded.task,
			verification = excluded.verification
	`, c.ID, c.Status.String(), blockedBy, c.Owner, completedAtToColumn(c.CompletedAt),
		outputToColumn(c.Output), c.Task, c.Verification)
	if err != nil {
		err = sserr.Wrapf(err, sserr.CodeStorage, "store: failed to save contract %q", c.ID)
	}
	finishSpan(span, err)
	return err
}

// LoadContract returns the contract snapshot for id, or a
// [sserr.CodeContractNotFound] error if no such row exists.
func (s *Store) LoadContract(ctx context.Context, id string) (*lifecycle.Contract, error) {
	ctx, span := s.startSpan(ctx, "LoadContract")
	span.SetAttributes(attribute.String("stead.contract.id", id))
	defer span.End()

	var row contractRow
	err := s.db.GetContext(ctx, &row, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		err = sserr.Newf(sserr.CodeContractNotFound, "contract %q not found", id)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err != nil {
		err = sserr.Wrapf(err, sserr.CodeStorage, "store: failed to load contract %q", id)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return row.toContract()
}

// ListContracts returns every contract snapshot ordered by id ascending.
func (s *Store) ListContracts(ctx context.Context) ([]*lifecycle.Contract, error) {
	ctx, span := s.startSpan(ctx, "ListContracts")
	defer span.End()

	var rows []contractRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+contractColumns+` FROM contracts ORDER BY id ASC`); err != nil {
		err = sserr.Wrap(err, sserr.CodeStorage, "store: failed to list contracts")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return rowsToContracts(rows)
}

func rowsToContracts(rows []contractRow) ([]*lifecycle.Contract, error) {
	out := make([]*lifecycle.Contract, 0, len(rows))
	for _, row := range rows {
		c, err := row.toContract()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// RecordTransition is the single point of truth for a contract state
// change: it updates the snapshot row and appends the event row in one
// transaction. It rejects c.ID != event.ContractID before touching the
// database. If the snapshot row does not exist, the whole transaction rolls
// back; the event insert also rolls back if the foreign key check fails.
// Neither the snapshot nor the event log changes when this returns an
// error.
func (s *Store) RecordTransition(ctx context.Context, c *lifecycle.Contract, event *lifecycle.ContractEvent) error {
	ctx, span := s.startSpan(ctx, "RecordTransition")
	span.SetAttributes(attribute.String("stead.contract.id", c.ID))

	if c.ID != event.ContractID {
		err := sserr.Newf(sserr.CodeStorage,
			"store: contract id %q does not match event contract id %q", c.ID, event.ContractID)
		finishSpan(span, err)
		return err
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		blockedBy, merr := marshalBlockedBy(c.BlockedBy)
		if merr != nil {
			return sserr.Wrap(merr, sserr.CodeStorage, "store: failed to encode blocked_by")
		}

		res, uerr := tx.ExecContext(ctx, `
			UPDATE contracts SET
				status = ?, blocked_by = ?, owner = ?, completed_at = ?, output = ?, task = ?, verification = ?
			WHERE id = ?`,
			c.Status.String(), blockedBy, c.Owner, completedAtToColumn(c.CompletedAt),
			outputToColumn(c.Output), c.Task, c.Verification, c.ID)
		if uerr != nil {
			return sserr.Wrapf(uerr, sserr.CodeStorage, "store: failed to update contract %q", c.ID)
		}
		affected, raerr := res.RowsAffected()
		if raerr != nil {
			return sserr.Wrap(raerr, sserr.CodeStorage, "store: failed to inspect update result")
		}
		if affected == 0 {
			return sserr.Newf(sserr.CodeStorage, "store: contract %q does not exist", c.ID)
		}

		snapshot, serr := marshalBlockedBy(event.BlockedBySnapshot)
		if serr != nil {
			return sserr.Wrap(serr, sserr.CodeStorage, "store: failed to encode blocked_by snapshot")
		}

		_, eerr := tx.ExecContext(ctx, `
			INSERT INTO contract_events (contract_id, from_status, to_status, blocked_by_snapshot)
			VALUES (?, ?, ?, ?)
		`, event.ContractID, event.From.String(), event.To.String(), snapshot)
		if eerr != nil {
			return sserr.Wrapf(eerr, sserr.CodeStorage,
				"store: failed to append event for contract %q", event.ContractID)
		}
		return nil
	})

	finishSpan(span, err)
	return err
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic, which it re-raises after rollback).
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeStorage, "store: failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return sserr.Wrap(err, sserr.CodeStorage, "store: failed to commit transaction")
	}
	return nil
}

// eventRow is the sqlx scan target for the `contract_events` table.
type eventRow struct {
	ID                int64  `db:"id"`
	ContractID        string `db:"contract_id"`
	FromStatus        string `db:"from_status"`
	ToStatus          string `db:"to_status"`
	BlockedBySnapshot string `db:"blocked_by_snapshot"`
	CreatedAt         string `db:"created_at"`
}

func (r eventRow) toEvent() (*lifecycle.ContractEvent, error) {
	var snapshot []string
	if err := json.Unmarshal([]byte(r.BlockedBySnapshot), &snapshot); err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeStorage,
			"store: corrupt blocked_by_snapshot JSON for event %d", r.ID)
	}
	return &lifecycle.ContractEvent{
		ContractID:        r.ContractID,
		From:              lifecycle.State(r.FromStatus),
		To:                lifecycle.State(r.ToStatus),
		BlockedBySnapshot: snapshot,
	}, nil
}

// ListEvents returns every event recorded for contractID in insertion order.
func (s *Store) ListEvents(ctx context.Context, contractID string) ([]*lifecycle.ContractEvent, error) {
	ctx, span := s.startSpan(ctx, "ListEvents")
	span.SetAttributes(attribute.String("stead.contract.id", contractID))
	defer span.End()

	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, contract_id, from_status, to_status, blocked_by_snapshot, created_at
		 FROM contract_events WHERE contract_id = ? ORDER BY id ASC`, contractID)
	if err != nil {
		err = sserr.Wrapf(err, sserr.CodeStorage, "store: failed to list events for %q", contractID)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make([]*lifecycle.ContractEvent, 0, len(rows))
	for _, row := range rows {
		event, terr := row.toEvent()
		if terr != nil {
			span.SetStatus(codes.Error, terr.Error())
			return nil, terr
		}
		out = append(out, event)
	}
	return out, nil
}

// RebuildContractFromEvents reconstructs a contract's status and blocked_by
// purely from its event log: it seeds from the first event's From value and
// BlockedBySnapshot, then applies each event's To/snapshot in order. If the
// contract has no events, the current snapshot is returned unchanged. This
// is the crash-recovery path when a snapshot is suspected corrupt or stale —
// the log always wins.
func (s *Store) RebuildContractFromEvents(ctx context.Context, id string) (*lifecycle.Contract, error) {
	ctx, span := s.startSpan(ctx, "RebuildContractFromEvents")
	span.SetAttributes(attribute.String("stead.contract.id", id))
	defer span.End()

	snapshot, err := s.LoadContract(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	events, err := s.ListEvents(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(events) == 0 {
		return snapshot, nil
	}

	rebuilt := &lifecycle.Contract{
		ID:        id,
		Status:    events[0].From,
		BlockedBy: events[0].BlockedBySnapshot,
	}
	for _, event := range events {
		rebuilt.Status = event.To
		rebuilt.BlockedBy = event.BlockedBySnapshot
	}
	return rebuilt, nil
}

// CreateDecision records that contractID needs human attention and returns
// the new decision item's id.
func (s *Store) CreateDecision(ctx context.Context, contractID, summary string) (int64, error) {
	ctx, span := s.startSpan(ctx, "CreateDecision")
	span.SetAttributes(attribute.String("stead.contract.id", contractID))
	defer span.End()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO decision_items (contract_id, summary, resolved) VALUES (?, ?, 0)`,
		contractID, summary)
	if err != nil {
		err = sserr.Wrapf(err, sserr.CodeStorage, "store: failed to create decision for %q", contractID)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		err = sserr.Wrap(err, sserr.CodeStorage, "store: failed to read new decision id")
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	return id, nil
}

// DecisionItem is a human-attention record tying a summary to a contract.
type DecisionItem struct {
	ID         int64  `db:"id"`
	ContractID string `db:"contract_id"`
	Summary    string `db:"summary"`
	Resolved   bool   `db:"resolved"`
	CreatedAt  string `db:"created_at"`
}

// ListOpenDecisions returns every unresolved decision item.
func (s *Store) ListOpenDecisions(ctx context.Context) ([]DecisionItem, error) {
	ctx, span := s.startSpan(ctx, "ListOpenDecisions")
	defer span.End()

	var items []DecisionItem
	err := s.db.SelectContext(ctx, &items,
		`SELECT id, contract_id, summary, resolved, created_at FROM decision_items WHERE resolved = 0 ORDER BY id ASC`)
	if err != nil {
		err = sserr.Wrap(err, sserr.CodeStorage, "store: failed to list open decisions")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return items, nil
}

// AttentionTier names one of the five derived projections over contracts
// exposed by [Store.ListByAttentionTier].
type AttentionTier string

const (
	TierNeedsDecision AttentionTier = "needs_decision"
	TierAnomaly       AttentionTier = "anomaly"
	TierCompleted     AttentionTier = "completed"
	TierRunning       AttentionTier = "running"
	TierQueued        AttentionTier = "queued"
)

// ListByAttentionTier returns the contracts belonging to tier.
//
//   - NeedsDecision: contracts with at least one unresolved decision item,
//     deduplicated.
//   - Anomaly: status in {Failed, RollingBack, RolledBack}.
//   - Completed: status = Completed.
//   - Running: status in {Executing, Verifying}.
//   - Queued: status in {Pending, Ready, Claimed}.
func (s *Store) ListByAttentionTier(ctx context.Context, tier AttentionTier) ([]*lifecycle.Contract, error) {
	ctx, span := s.startSpan(ctx, "ListByAttentionTier")
	span.SetAttributes(attribute.String("stead.attention_tier", string(tier)))
	defer span.End()

	var query string
	switch tier {
	case TierNeedsDecision:
		query = `
			SELECT DISTINCT ` + qualifiedContractColumns("c") + `
			FROM contracts c
			JOIN decision_items d ON d.contract_id = c.id
			WHERE d.resolved = 0
			ORDER BY c.id ASC`
	case TierAnomaly:
		query = `SELECT ` + contractColumns + ` FROM contracts WHERE status IN ('failed', 'rolling_back', 'rolled_back') ORDER BY id ASC`
	case TierCompleted:
		query = `SELECT ` + contractColumns + ` FROM contracts WHERE status = 'completed' ORDER BY id ASC`
	case TierRunning:
		query = `SELECT ` + contractColumns + ` FROM contracts WHERE status IN ('executing', 'verifying') ORDER BY id ASC`
	case TierQueued:
		query = `SELECT ` + contractColumns + ` FROM contracts WHERE status IN ('pending', 'ready', 'claimed') ORDER BY id ASC`
	default:
		err := sserr.Newf(sserr.CodeInvalidFormat, "store: unrecognized attention tier %q", tier)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var rows []contractRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		err = sserr.Wrapf(err, sserr.CodeStorage, "store: failed to query attention tier %q", tier)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return rowsToContracts(rows)
}

// AttentionCounts is the derived projection over contracts counting each of
// the five tiers.
type AttentionCounts struct {
	NeedsDecision int
	Anomaly       int
	Completed     int
	Running       int
	Queued        int
}

// AttentionStatus computes [AttentionCounts] by querying each tier.
func (s *Store) AttentionStatus(ctx context.Context) (AttentionCounts, error) {
	var counts AttentionCounts
	for tier, dest := range map[AttentionTier]*int{
		TierNeedsDecision: &counts.NeedsDecision,
		TierAnomaly:       &counts.Anomaly,
		TierCompleted:     &counts.Completed,
		TierRunning:       &counts.Running,
		TierQueued:        &counts.Queued,
	} {
		contracts, err := s.ListByAttentionTier(ctx, tier)
		if err != nil {
			return AttentionCounts{}, err
		}
		*dest = len(contracts)
	}
	return counts, nil
}
