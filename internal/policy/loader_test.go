package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
)

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFileValidDocument(t *testing.T) {
	path := writeDoc(t, `
version: "1"
description: test set
policies:
  - tool_id: kb.search
    permission_tier: READ_ONLY
    required_trust_level: untrusted
  - tool_id: crm.record.delete
    permission_tier: WRITE_DESTRUCTIVE
    required_trust_level: verified
    allowed_agents: [crm-bot]
    rate_limit: 10
`)

	doc, policies, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Version)
	require.Len(t, policies, 2)

	assert.Equal(t, domain.TierReadOnly, policies[0].Tier)
	assert.Equal(t, domain.TrustUntrusted, policies[0].RequiredTrust)

	assert.Equal(t, domain.TierWriteDestructive, policies[1].Tier)
	assert.Equal(t, []string{"crm-bot"}, policies[1].AllowedAgents)
	assert.Equal(t, 10, policies[1].RateLimit)
}

func TestLoadFileRejectsUnknownTier(t *testing.T) {
	path := writeDoc(t, `
policies:
  - tool_id: ok.tool
    permission_tier: READ_ONLY
    required_trust_level: standard
  - tool_id: bad.tool
    permission_tier: SUPER_ADMIN
    required_trust_level: standard
`)

	// Одна плохая запись проваливает весь документ
	_, policies, err := LoadFile(path)
	require.Error(t, err)
	assert.Nil(t, policies)
	assert.Contains(t, err.Error(), "bad.tool")
}

func TestLoadFileRejectsDuplicateToolID(t *testing.T) {
	path := writeDoc(t, `
policies:
  - tool_id: same.tool
    permission_tier: READ_ONLY
    required_trust_level: standard
  - tool_id: same.tool
    permission_tier: WRITE_SAFE
    required_trust_level: standard
`)

	_, _, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestCompileRejectsNegativeRateLimit(t *testing.T) {
	doc := &Document{Policies: []Record{{
		ToolID:             "t",
		PermissionTier:     "READ_ONLY",
		RequiredTrustLevel: "standard",
		RateLimit:          -1,
	}}}

	_, err := doc.Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit")
}

func TestLoadFileMissing(t *testing.T) {
	_, _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
