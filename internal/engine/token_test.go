package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestTokens(t *testing.T, ttl time.Duration) *TokenService {
	t.Helper()
	return NewTokenService(testKey, ttl, zap.NewNop())
}

func issueTest(t *testing.T, s *TokenService, params map[string]interface{}) *domain.ToolCallToken {
	t.Helper()
	tok, err := s.Issue("crm.record.delete", "crm-bot", params,
		domain.TierWriteDestructive, domain.TrustVerified, nil, "")
	require.NoError(t, err)
	return tok
}

func TestTokenIssueAndVerify(t *testing.T) {
	s := newTestTokens(t, 0)
	params := map[string]interface{}{"record_id": "42", "cascade": true}

	tok := issueTest(t, s, params)
	assert.NotEmpty(t, tok.TokenID)
	assert.NotEmpty(t, tok.Signature)
	assert.Nil(t, tok.ApprovedBy)
	assert.WithinDuration(t, tok.IssuedAt.Add(DefaultTokenTTL), tok.ExpiresAt, time.Second)

	require.NoError(t, s.Verify(tok, params))
}

func TestTokenVerifyIsSpeculative(t *testing.T) {
	s := newTestTokens(t, 0)
	params := map[string]interface{}{"x": 1}
	tok := issueTest(t, s, params)

	// Verify не тратит токен: повторные проверки проходят
	require.NoError(t, s.Verify(tok, params))
	require.NoError(t, s.Verify(tok, params))
	require.NoError(t, s.Verify(tok, params))
}

func TestTokenSingleUse(t *testing.T) {
	s := newTestTokens(t, 0)
	params := map[string]interface{}{"x": 1}
	tok := issueTest(t, s, params)

	require.NoError(t, s.Consume(tok.TokenID))
	assert.ErrorIs(t, s.Verify(tok, params), ErrTokenConsumed)
	assert.ErrorIs(t, s.Consume(tok.TokenID), ErrTokenConsumed)
}

func TestTokenExpiry(t *testing.T) {
	s := newTestTokens(t, 20*time.Millisecond)
	params := map[string]interface{}{"x": 1}
	tok := issueTest(t, s, params)

	require.NoError(t, s.Verify(tok, params))
	time.Sleep(40 * time.Millisecond)
	assert.ErrorIs(t, s.Verify(tok, params), ErrTokenExpired)
}

func TestTokenParamsMismatch(t *testing.T) {
	s := newTestTokens(t, 0)
	tok := issueTest(t, s, map[string]interface{}{"record_id": "42"})

	assert.ErrorIs(t, s.Verify(tok, map[string]interface{}{"record_id": "43"}), ErrParamsMismatch)
	assert.ErrorIs(t, s.Verify(tok, nil), ErrParamsMismatch)
}

func TestTokenParamsOrderIndependent(t *testing.T) {
	s := newTestTokens(t, 0)
	tok := issueTest(t, s, map[string]interface{}{"a": 1, "b": "two", "c": true})

	// Каноническая сериализация не зависит от порядка вставки ключей
	presented := map[string]interface{}{}
	presented["c"] = true
	presented["a"] = 1
	presented["b"] = "two"
	require.NoError(t, s.Verify(tok, presented))
}

func TestTokenTamperResistance(t *testing.T) {
	s := newTestTokens(t, 0)
	params := map[string]interface{}{"record_id": "42"}

	cases := []struct {
		name   string
		mutate func(*domain.ToolCallToken)
	}{
		{"tool_id", func(tok *domain.ToolCallToken) { tok.ToolID = "infra.deploy" }},
		{"agent_id", func(tok *domain.ToolCallToken) { tok.AgentID = "other-bot" }},
		{"expires_at", func(tok *domain.ToolCallToken) { tok.ExpiresAt = tok.ExpiresAt.Add(time.Hour) }},
		{"issued_at", func(tok *domain.ToolCallToken) { tok.IssuedAt = tok.IssuedAt.Add(-time.Hour) }},
		{"signature", func(tok *domain.ToolCallToken) { tok.Signature = tok.Signature[1:] + "0" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok := issueTest(t, s, params)
			tc.mutate(tok)
			assert.ErrorIs(t, s.Verify(tok, params), ErrBadSignature)
		})
	}
}

func TestTokenForgedHashRejected(t *testing.T) {
	s := newTestTokens(t, 0)
	params := map[string]interface{}{"record_id": "42"}
	tok := issueTest(t, s, params)

	// Подмена hash и параметров одновременно: hash сойдется,
	// но подпись над старым hash — нет
	forged := map[string]interface{}{"record_id": "ALL"}
	h, err := HashParameters(forged)
	require.NoError(t, err)
	tok.ParametersHash = h

	assert.ErrorIs(t, s.Verify(tok, forged), ErrBadSignature)
}

func TestTokenWrongKeyRejected(t *testing.T) {
	issuer := newTestTokens(t, 0)
	verifier := NewTokenService([]byte("another-secret-key-entirely!!!!!"), 0, zap.NewNop())

	params := map[string]interface{}{"x": 1}
	tok := issueTest(t, issuer, params)

	assert.ErrorIs(t, verifier.Verify(tok, params), ErrBadSignature)
}

func TestTokenNilRejected(t *testing.T) {
	s := newTestTokens(t, 0)
	assert.ErrorIs(t, s.Verify(nil, nil), ErrBadSignature)
}
