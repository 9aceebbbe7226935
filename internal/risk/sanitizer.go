package risk

import (
	"fmt"
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
)

// Веса severity по словарю угроз. Контентный риск живет на шкале 0..100;
// в итоговый risk score решения он входит нормированным.
var severityWeights = map[string]float64{
	"critical": 10.0,
	"high":     5.0,
	"medium":   3.0,
	"low":      1.0,
}

const maxContentRisk = 100.0

// ThreatPattern — одна запись словаря угроз.
type ThreatPattern struct {
	Pattern  string `json:"pattern" yaml:"pattern"`
	Category string `json:"category" yaml:"category"` // например prompt_injection, data_exfiltration
	Severity string `json:"severity" yaml:"severity"` // critical, high, medium, low
}

// ScanResult — вердикт контентного сканирования.
type ScanResult struct {
	Safe      bool            `json:"safe"`
	Threats   []ThreatPattern `json:"threats,omitempty"`
	RiskScore float64         `json:"risk_score"`
}

// Sanitizer ищет известные опасные подстроки (prompt injection, эксфильтрация,
// разрушительные команды) в содержимом параметров вызова. Словарь компилируется
// один раз в Aho-Corasick автомат; поиск регистронезависимый, leftmost-first.
type Sanitizer struct {
	ac       ahocorasick.AhoCorasick
	patterns []ThreatPattern
}

// NewSanitizer валидирует словарь целиком: пустой паттерн или неизвестная
// severity проваливают сборку — как и у политик, частичный словарь хуже
// отсутствия словаря.
func NewSanitizer(patterns []ThreatPattern) (*Sanitizer, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("sanitizer: empty threat dictionary")
	}

	needles := make([]string, 0, len(patterns))
	for i, p := range patterns {
		if p.Pattern == "" {
			return nil, fmt.Errorf("sanitizer: record %d: pattern is empty", i)
		}
		if _, ok := severityWeights[p.Severity]; !ok {
			return nil, fmt.Errorf("sanitizer: pattern %q: unknown severity %q", p.Pattern, p.Severity)
		}
		needles = append(needles, p.Pattern)
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchKind:            ahocorasick.LeftMostFirstMatch,
	})
	ac := builder.Build(needles)

	return &Sanitizer{ac: ac, patterns: patterns}, nil
}

// Scan прогоняет текст через автомат. Контентный риск — сумма весов severity
// найденных паттернов, умноженная на множитель доверия и ограниченная 100:
// чем ниже доверие источника, тем дороже та же находка.
func (s *Sanitizer) Scan(content string, trust domain.TrustLevel) ScanResult {
	var threats []ThreatPattern
	score := 0.0

	for _, m := range s.ac.FindAll(content) {
		p := s.patterns[m.Pattern()]
		threats = append(threats, p)
		score += severityWeights[p.Severity]
	}

	score *= trust.RiskMultiplier()
	if score > maxContentRisk {
		score = maxContentRisk
	}

	return ScanResult{
		Safe:      len(threats) == 0,
		Threats:   threats,
		RiskScore: score,
	}
}

// ScanParams сканирует все строковые значения параметров, включая вложенные
// мапы и списки.
func (s *Sanitizer) ScanParams(params map[string]interface{}, trust domain.TrustLevel) ScanResult {
	return s.Scan(strings.Join(collectStrings(params), "\n"), trust)
}

func collectStrings(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case map[string]interface{}:
		var out []string
		for _, item := range t {
			out = append(out, collectStrings(item)...)
		}
		return out
	case []interface{}:
		var out []string
		for _, item := range t {
			out = append(out, collectStrings(item)...)
		}
		return out
	default:
		return nil
	}
}
