package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/steadhq/stead/pkg/errors"
	"github.com/steadhq/stead/internal/testutil"
	"github.com/steadhq/stead/pkg/lifecycle"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ws := testutil.TempWorkspace(t)
	s, err := Open(context.Background(), filepath.Join(ws, "stead.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_BootstrapsSchema(t *testing.T) {
	s := openTestStore(t)
	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(CurrentSchemaVersion), version)
}

func TestSaveAndLoadContract_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	c := lifecycle.NewContract("c-1", []string{"c-0", "c-0b"}, "run tests", "go test ./...")
	require.NoError(t, s.SaveContract(ctx, c))

	loaded, err := s.LoadContract(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, loaded.ID)
	assert.Equal(t, c.Status, loaded.Status)
	assert.Equal(t, c.BlockedBy, loaded.BlockedBy)
	assert.Equal(t, c.Task, loaded.Task)
	assert.Equal(t, c.Verification, loaded.Verification)
	assert.Empty(t, loaded.Owner)
	assert.Nil(t, loaded.CompletedAt)
	assert.Nil(t, loaded.Output)
}

// TestSaveAndLoadContract_RoundTripsOwnerCompletedAtAndOutput covers the
// attributes that only appear mid-lifecycle: claiming sets Owner,
// finishing verification sets CompletedAt and Output. A save/load cycle
// at any point along the way must preserve all of them, not just
// id/status/blocked_by.
func TestSaveAndLoadContract_RoundTripsOwnerCompletedAtAndOutput(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	clock := testutil.NewFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	c := lifecycle.NewContract("c-1", nil, "run tests", "go test ./...")
	c.SetClock(clock)
	require.NoError(t, s.SaveContract(ctx, c))

	_, err := c.Claim(ctx, lifecycle.ActorAgent, "agent-1")
	require.NoError(t, err)
	require.NoError(t, s.SaveContract(ctx, c))

	claimed, err := s.LoadContract(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", claimed.Owner)
	assert.Nil(t, claimed.CompletedAt)

	_, err = c.Start(ctx, lifecycle.ActorAgent)
	require.NoError(t, err)
	_, err = c.Verify(ctx, lifecycle.ActorAgent)
	require.NoError(t, err)
	output := "all tests passed"
	event, err := c.FinishVerification(ctx, lifecycle.ActorSystem, true, &output)
	require.NoError(t, err)
	require.NoError(t, s.RecordTransition(ctx, c, event))

	completed, err := s.LoadContract(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateCompleted, completed.Status)
	assert.Equal(t, "agent-1", completed.Owner, "owner is set iff the contract is currently Claimed or descends from Claimed")
	require.NotNil(t, completed.CompletedAt)
	assert.True(t, clock.Now().Equal(*completed.CompletedAt))
	require.NotNil(t, completed.Output)
	assert.Equal(t, output, *completed.Output)
}

// TestOpen_MigratesV2SchemaToV3 simulates a database bootstrapped before
// owner/completed_at/output/task/verification existed: a bare v2
// contracts table with one row. Reopening it must add the new columns and
// bump schema_version without losing the existing row.
func TestOpen_MigratesV2SchemaToV3(t *testing.T) {
	ctx := context.Background()
	ws := testutil.TempWorkspace(t)
	dbPath := filepath.Join(ws, "stead.db")

	s, err := Open(ctx, dbPath)
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `DROP TABLE contracts`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE contracts (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			blocked_by TEXT NOT NULL DEFAULT '[]'
		)`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contracts (id, status, blocked_by) VALUES ('c-legacy', 'claimed', '[]')`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		`UPDATE schema_meta SET value = 2 WHERE key = 'schema_version'`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	version, err := reopened.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(CurrentSchemaVersion), version)

	loaded, err := reopened.LoadContract(ctx, "c-legacy")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateClaimed, loaded.Status)
	assert.Empty(t, loaded.Owner)
	assert.Nil(t, loaded.CompletedAt)
}

func TestLoadContract_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadContract(context.Background(), "missing")
	testutil.RequireErrorCode(t, err, sserr.CodeContractNotFound)
}

func TestListContracts_OrderedByID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, id := range []string{"c-3", "c-1", "c-2"} {
		require.NoError(t, s.SaveContract(ctx, lifecycle.NewContract(id, nil, "", "")))
	}

	contracts, err := s.ListContracts(ctx)
	require.NoError(t, err)
	require.Len(t, contracts, 3)
	assert.Equal(t, []string{"c-1", "c-2", "c-3"}, []string{contracts[0].ID, contracts[1].ID, contracts[2].ID})
}

func TestRecordTransition_UpdatesSnapshotAndAppendsEvent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	c := lifecycle.NewContract("c-1", nil, "", "")
	require.NoError(t, s.SaveContract(ctx, c))

	event, err := c.Claim(ctx, lifecycle.ActorAgent, "agent-1")
	require.NoError(t, err)
	require.NoError(t, s.RecordTransition(ctx, c, event))

	loaded, err := s.LoadContract(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateClaimed, loaded.Status)

	events, err := s.ListEvents(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, lifecycle.StateReady, events[0].From)
	assert.Equal(t, lifecycle.StateClaimed, events[0].To)
}

func TestRecordTransition_AtomicOnMissingContract(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	c := lifecycle.NewContract("ghost", nil, "", "")
	event, err := c.Claim(ctx, lifecycle.ActorAgent, "agent-1")
	require.NoError(t, err)

	err = s.RecordTransition(ctx, c, event)
	require.Error(t, err)

	_, loadErr := s.LoadContract(ctx, "ghost")
	testutil.RequireErrorCode(t, loadErr, sserr.CodeContractNotFound)

	events, err := s.ListEvents(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, events, "a failed RecordTransition must not leave a dangling event")
}

func TestRecordTransition_RejectsMismatchedContractID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	c := lifecycle.NewContract("c-1", nil, "", "")
	require.NoError(t, s.SaveContract(ctx, c))

	other := lifecycle.NewContract("c-2", nil, "", "")
	event, err := other.Claim(ctx, lifecycle.ActorAgent, "agent-1")
	require.NoError(t, err)

	err = s.RecordTransition(ctx, c, event)
	require.Error(t, err)
}

func TestRebuildContractFromEvents_MatchesSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	c := lifecycle.NewContract("c-1", nil, "", "")
	require.NoError(t, s.SaveContract(ctx, c))

	steps := []func() (*lifecycle.ContractEvent, error){
		func() (*lifecycle.ContractEvent, error) { return c.Claim(ctx, lifecycle.ActorAgent, "agent-1") },
		func() (*lifecycle.ContractEvent, error) { return c.Start(ctx, lifecycle.ActorAgent) },
		func() (*lifecycle.ContractEvent, error) { return c.Verify(ctx, lifecycle.ActorAgent) },
		func() (*lifecycle.ContractEvent, error) {
			output := "ok"
			return c.FinishVerification(ctx, lifecycle.ActorSystem, true, &output)
		},
	}
	for _, step := range steps {
		event, err := step()
		require.NoError(t, err)
		require.NoError(t, s.RecordTransition(ctx, c, event))
	}

	rebuilt, err := s.RebuildContractFromEvents(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, c.Status, rebuilt.Status)
	assert.Equal(t, c.BlockedBy, rebuilt.BlockedBy)
}

func TestRebuildContractFromEvents_NoEventsReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	c := lifecycle.NewContract("c-1", nil, "", "")
	require.NoError(t, s.SaveContract(ctx, c))

	rebuilt, err := s.RebuildContractFromEvents(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateReady, rebuilt.Status)
}

func TestCreateDecisionAndListOpenDecisions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	c := lifecycle.NewContract("c-1", nil, "", "")
	require.NoError(t, s.SaveContract(ctx, c))

	id, err := s.CreateDecision(ctx, "c-1", "ambiguous rollback target")
	require.NoError(t, err)
	assert.NotZero(t, id)

	open, err := s.ListOpenDecisions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "c-1", open[0].ContractID)
	assert.False(t, open[0].Resolved)
}

func TestListByAttentionTier(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	seed := func(id string, status lifecycle.State) {
		c := &lifecycle.Contract{ID: id, Status: status}
		require.NoError(t, s.SaveContract(ctx, c))
	}
	seed("queued-1", lifecycle.StatePending)
	seed("queued-2", lifecycle.StateReady)
	seed("queued-3", lifecycle.StateClaimed)
	seed("running-1", lifecycle.StateExecuting)
	seed("running-2", lifecycle.StateVerifying)
	seed("done-1", lifecycle.StateCompleted)
	seed("anomaly-1", lifecycle.StateFailed)
	seed("anomaly-2", lifecycle.StateRollingBack)
	seed("anomaly-3", lifecycle.StateRolledBack)

	_, err := s.CreateDecision(ctx, "queued-1", "needs owner")
	require.NoError(t, err)

	tiers := map[AttentionTier]int{
		TierQueued:        3,
		TierRunning:       2,
		TierCompleted:     1,
		TierAnomaly:       3,
		TierNeedsDecision: 1,
	}
	for tier, want := range tiers {
		contracts, err := s.ListByAttentionTier(ctx, tier)
		require.NoError(t, err)
		assert.Len(t, contracts, want, "tier %s", tier)
	}

	counts, err := s.AttentionStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Queued)
	assert.Equal(t, 2, counts.Running)
	assert.Equal(t, 1, counts.Completed)
	assert.Equal(t, 3, counts.Anomaly)
	assert.Equal(t, 1, counts.NeedsDecision)
}
