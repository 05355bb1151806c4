package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/steadhq/stead/pkg/errors"
)

func TestNewContract_InitialStatus(t *testing.T) {
	ready := NewContract("c-1", nil, "run tests", "go test ./...")
	assert.Equal(t, StateReady, ready.Status)

	pending := NewContract("c-2", []string{"c-1"}, "", "")
	assert.Equal(t, StatePending, pending.Status)
	assert.Equal(t, []string{"c-1"}, pending.BlockedBy)
}

func TestContract_HappyPath(t *testing.T) {
	ctx := context.Background()
	c := NewContract("c-1", nil, "run tests", "go test ./...")

	ev, err := c.Claim(ctx, ActorAgent, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, StateReady, ev.From)
	assert.Equal(t, StateClaimed, ev.To)
	assert.Equal(t, "agent-1", c.Owner)

	_, err = c.Start(ctx, ActorAgent)
	require.NoError(t, err)
	assert.Equal(t, StateExecuting, c.Status)

	_, err = c.Verify(ctx, ActorAgent)
	require.NoError(t, err)
	assert.Equal(t, StateVerifying, c.Status)

	output := "all tests passed"
	_, err = c.FinishVerification(ctx, ActorSystem, true, &output)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, c.Status)
	require.NotNil(t, c.CompletedAt)
	require.NotNil(t, c.Output)
	assert.Equal(t, output, *c.Output)
}

func TestContract_RollbackPath(t *testing.T) {
	ctx := context.Background()
	c := NewContract("c-2", nil, "", "")

	_, err := c.Claim(ctx, ActorHuman, "human-1")
	require.NoError(t, err)
	_, err = c.Start(ctx, ActorHuman)
	require.NoError(t, err)
	_, err = c.Fail(ctx, ActorSystem, nil)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, c.Status)

	_, err = c.Rollback(ctx, ActorHuman)
	require.NoError(t, err)
	assert.Equal(t, StateRollingBack, c.Status)

	_, err = c.RollbackDone(ctx, ActorSystem)
	require.NoError(t, err)
	assert.Equal(t, StateRolledBack, c.Status)
	assert.NotNil(t, c.CompletedAt)

	_, err = c.Claim(ctx, ActorAgent, "agent-2")
	sserrErr, ok := sserr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, sserr.CodeInvalidTransition, sserrErr.Code)
}

func TestContract_CancelRejectedDuringVerifying(t *testing.T) {
	ctx := context.Background()
	c := NewContract("c-3", nil, "", "")
	_, err := c.Claim(ctx, ActorAgent, "agent-1")
	require.NoError(t, err)
	_, err = c.Start(ctx, ActorAgent)
	require.NoError(t, err)
	_, err = c.Verify(ctx, ActorAgent)
	require.NoError(t, err)

	_, err = c.Cancel(ctx, ActorHuman)
	require.Error(t, err)
	assert.Equal(t, StateVerifying, c.Status, "rejected cancel must not mutate status")
}

func TestContract_CancelRequiresHuman(t *testing.T) {
	ctx := context.Background()
	c := NewContract("c-4", nil, "", "")

	_, err := c.Cancel(ctx, ActorAgent)
	require.Error(t, err)
	assert.Equal(t, StateReady, c.Status)

	_, err = c.Cancel(ctx, ActorHuman)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, c.Status)
}

func TestContract_NoPartialMutationOnError(t *testing.T) {
	ctx := context.Background()
	c := NewContract("c-5", nil, "task", "verify")
	before := *c

	_, err := c.Start(ctx, ActorAgent) // Ready cannot Start directly
	require.Error(t, err)
	assert.Equal(t, before.Status, c.Status)
	assert.Equal(t, before.Owner, c.Owner)
	assert.Nil(t, c.CompletedAt)
}

func TestContract_UnclaimClearsOwner(t *testing.T) {
	ctx := context.Background()
	c := NewContract("c-6", nil, "", "")
	_, err := c.Claim(ctx, ActorAgent, "agent-1")
	require.NoError(t, err)
	require.Equal(t, "agent-1", c.Owner)

	_, err = c.Unclaim(ctx, ActorAgent)
	require.NoError(t, err)
	assert.Equal(t, StateReady, c.Status)
	assert.Empty(t, c.Owner)
}

func TestContract_DepsMetSystemOnly(t *testing.T) {
	ctx := context.Background()
	c := NewContract("c-7", []string{"c-6"}, "", "")
	require.Equal(t, StatePending, c.Status)

	_, err := c.DepsMet(ctx, ActorHuman)
	require.Error(t, err)
	assert.Equal(t, StatePending, c.Status)

	_, err = c.DepsMet(ctx, ActorSystem)
	require.NoError(t, err)
	assert.Equal(t, StateReady, c.Status)
}
