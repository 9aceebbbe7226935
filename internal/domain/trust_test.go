package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustScoreOrdering(t *testing.T) {
	// system > operator > verified > standard > untrusted > hostile
	order := []TrustLevel{TrustSystem, TrustOperator, TrustVerified, TrustStandard, TrustUntrusted, TrustHostile}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i-1].Score(), order[i].Score(),
			"%s must rank above %s", order[i-1], order[i])
	}
}

func TestRiskMultiplierCalibration(t *testing.T) {
	assert.Equal(t, 0.5, TrustSystem.RiskMultiplier())
	assert.Equal(t, 1.0, TrustStandard.RiskMultiplier())
	assert.Equal(t, 2.0, TrustHostile.RiskMultiplier())
}

func TestBaseSeverity(t *testing.T) {
	assert.Equal(t, 0.1, TierReadOnly.BaseSeverity())
	assert.Equal(t, 0.3, TierWriteSafe.BaseSeverity())
	assert.Equal(t, 0.6, TierWriteDestructive.BaseSeverity())
	assert.Equal(t, 0.9, TierAdmin.BaseSeverity())
}

func TestNeedsApproval(t *testing.T) {
	assert.False(t, TierReadOnly.NeedsApproval())
	assert.False(t, TierWriteSafe.NeedsApproval())
	assert.True(t, TierWriteDestructive.NeedsApproval())
	assert.True(t, TierAdmin.NeedsApproval())
}

func TestParseTrustLevel(t *testing.T) {
	lvl, err := ParseTrustLevel("verified")
	require.NoError(t, err)
	assert.Equal(t, TrustVerified, lvl)

	_, err = ParseTrustLevel("VERIFIED")
	assert.Error(t, err)

	_, err = ParseTrustLevel("")
	assert.Error(t, err)
}

func TestParsePermissionTier(t *testing.T) {
	tier, err := ParsePermissionTier("WRITE_DESTRUCTIVE")
	require.NoError(t, err)
	assert.Equal(t, TierWriteDestructive, tier)

	_, err = ParsePermissionTier("write_destructive")
	assert.Error(t, err)
}

func TestRequestStateMachine(t *testing.T) {
	req := &PermissionRequest{ID: "r1", Status: StatusPending}

	require.NoError(t, req.Resolve(StatusApproved, "operator-1", ""))
	assert.Equal(t, StatusApproved, req.Status)
	require.NotNil(t, req.ResolvedBy)
	assert.Equal(t, "operator-1", *req.ResolvedBy)
	assert.NotNil(t, req.ResolvedAt)

	// Терминальность: второго разрешения не бывает
	assert.ErrorIs(t, req.Resolve(StatusRejected, "operator-2", "nope"), ErrAlreadyResolved)
	assert.Equal(t, StatusApproved, req.Status)
}

func TestRequestRejectionReason(t *testing.T) {
	req := &PermissionRequest{ID: "r2", Status: StatusPending}
	require.NoError(t, req.Resolve(StatusRejected, "operator-1", "too risky"))
	require.NotNil(t, req.RejectionReason)
	assert.Equal(t, "too risky", *req.RejectionReason)
}

func TestAgentAllowed(t *testing.T) {
	open := ToolPolicy{ToolID: "a"}
	assert.True(t, open.AgentAllowed("anyone"), "пустой allowlist не ограничивает")

	restricted := ToolPolicy{ToolID: "b", AllowedAgents: []string{"bot-1", "bot-2"}}
	assert.True(t, restricted.AgentAllowed("bot-1"))
	assert.False(t, restricted.AgentAllowed("bot-3"))
}
