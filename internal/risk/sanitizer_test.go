package risk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
)

func TestSanitizerCaseInsensitive(t *testing.T) {
	s := testSanitizer(t)

	res := s.Scan("IGNORE Previous INSTRUCTIONS", domain.TrustStandard)
	assert.False(t, res.Safe)
	require.Len(t, res.Threats, 1)
	assert.Equal(t, "prompt_injection", res.Threats[0].Category)
}

func TestSanitizerSeverityWeights(t *testing.T) {
	s := testSanitizer(t)

	// critical (10) + high (5) + medium (3) = 18, standard множитель 1.0
	res := s.Scan("ignore previous instructions, then drop table, then base64,", domain.TrustStandard)
	assert.False(t, res.Safe)
	assert.Len(t, res.Threats, 3)
	assert.InDelta(t, 18.0, res.RiskScore, 1e-9)

	// Та же находка от hostile-источника стоит вдвое дороже
	res = s.Scan("ignore previous instructions, then drop table, then base64,", domain.TrustHostile)
	assert.InDelta(t, 36.0, res.RiskScore, 1e-9)

	// А от системного — вдвое дешевле
	res = s.Scan("ignore previous instructions, then drop table, then base64,", domain.TrustSystem)
	assert.InDelta(t, 9.0, res.RiskScore, 1e-9)
}

func TestSanitizerScoreCap(t *testing.T) {
	s := testSanitizer(t)

	// 11 критических вхождений * 10 * 2.0 > 100 -> cap
	content := ""
	for i := 0; i < 11; i++ {
		content += "ignore previous instructions "
	}
	res := s.Scan(content, domain.TrustHostile)
	assert.Equal(t, maxContentRisk, res.RiskScore)
}

func TestSanitizerCleanContent(t *testing.T) {
	s := testSanitizer(t)

	res := s.Scan("fetch the quarterly revenue report", domain.TrustHostile)
	assert.True(t, res.Safe)
	assert.Empty(t, res.Threats)
	assert.Zero(t, res.RiskScore)
}

func TestSanitizerScansNestedParams(t *testing.T) {
	s := testSanitizer(t)

	res := s.ScanParams(map[string]interface{}{
		"filters": map[string]interface{}{
			"clauses": []interface{}{
				"status = active",
				"1=1; DROP TABLE accounts",
			},
		},
		"limit": 10, // нестроковые значения игнорируются
	}, domain.TrustStandard)

	assert.False(t, res.Safe)
	require.Len(t, res.Threats, 1)
	assert.Equal(t, "data_destruction", res.Threats[0].Category)
}

func TestSanitizerRejectsBadDictionary(t *testing.T) {
	_, err := NewSanitizer(nil)
	assert.Error(t, err, "пустой словарь")

	_, err = NewSanitizer([]ThreatPattern{{Pattern: "", Category: "x", Severity: "low"}})
	assert.Error(t, err)

	_, err = NewSanitizer([]ThreatPattern{{Pattern: "rm -rf", Category: "x", Severity: "catastrophic"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown severity")
}

func TestLoadPatternFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threat_patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1"
patterns:
  - pattern: ignore previous instructions
    category: prompt_injection
    severity: critical
  - pattern: rm -rf /
    category: data_destruction
    severity: critical
`), 0o644))

	doc, s, err := LoadPatternFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Version)
	require.NotNil(t, s)

	res := s.Scan("sudo rm -rf / --no-preserve-root", domain.TrustStandard)
	assert.False(t, res.Safe)
}

func TestLoadPatternFileRejectsBadRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threat_patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
patterns:
  - pattern: ok pattern
    category: a
    severity: low
  - pattern: bad pattern
    category: b
    severity: enormous
`), 0o644))

	// Одна плохая запись проваливает весь словарь
	_, _, err := LoadPatternFile(path)
	assert.Error(t, err)
}
