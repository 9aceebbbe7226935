package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	require.NoError(t, r.Register(domain.ToolPolicy{ToolID: "a", Tier: domain.TierReadOnly}))

	p, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, domain.TierReadOnly, p.Tier)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryReplaceSemantics(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	require.NoError(t, r.Register(domain.ToolPolicy{ToolID: "a", Tier: domain.TierReadOnly}))
	require.NoError(t, r.Register(domain.ToolPolicy{ToolID: "a", Tier: domain.TierAdmin}))

	p, _ := r.Get("a")
	assert.Equal(t, domain.TierAdmin, p.Tier, "повторная регистрация заменяет целиком")
	assert.Len(t, r.List(), 1)
}

func TestRegistryRejectsEmptyToolID(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	assert.ErrorIs(t, r.Register(domain.ToolPolicy{}), ErrEmptyToolID)
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	for _, id := range []string{"c.tool", "a.tool", "b.tool"} {
		require.NoError(t, r.Register(domain.ToolPolicy{ToolID: id, Tier: domain.TierReadOnly}))
	}

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "a.tool", list[0].ToolID)
	assert.Equal(t, "b.tool", list[1].ToolID)
	assert.Equal(t, "c.tool", list[2].ToolID)
}
