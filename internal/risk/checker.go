package risk

import (
	"fmt"
	"strings"

	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
)

// AutoBlockThreshold — порог risk score, при достижении которого запрос
// блокируется безусловно, независимо от остальных слоев.
const AutoBlockThreshold = 0.8

// Decision — детерминированный вердикт проверки доступа.
// Вся запись в аудит и события происходят в фасаде, не здесь.
type Decision struct {
	Allowed          bool            `json:"allowed"`
	RequiresApproval bool            `json:"requires_approval"`
	Reason           string          `json:"reason"`
	RiskScore        float64         `json:"risk_score"`
	Violations       []string        `json:"violations,omitempty"`
	Threats          []ThreatPattern `json:"threats,omitempty"`
}

// Checker выполняет слои контроля доступа. Контентный слой опционален:
// без словаря угроз (sanitizer == nil) работают остальные три.
type Checker struct {
	sanitizer *Sanitizer
}

func NewChecker(sanitizer *Sanitizer) *Checker {
	return &Checker{sanitizer: sanitizer}
}

// Check выполняет независимые слои контроля, НЕ прерываясь на первом
// отказе: вызывающий должен увидеть все причины запрета сразу.
//
//  1. Allowlist агентов из политики.
//  2. Порог доверия (сравнение по монотонной шкале Score).
//  3. Контентный слой: строковые значения параметров против словаря угроз;
//     любая находка — нарушение, ее риск входит в итоговый score.
//  4. Tier-гейт: risk = min(1.0, severity(tier) * multiplier(trust) +
//     нормированный контентный риск); risk >= 0.8 — автоблок, тоже
//     фиксируется как нарушение.
func (c *Checker) Check(agentID string, trust domain.TrustLevel, p domain.ToolPolicy, params map[string]interface{}) Decision {
	var violations []string

	// 1. Allowlist
	if !p.AgentAllowed(agentID) {
		violations = append(violations,
			fmt.Sprintf("agent %q is not in the allowlist for tool %q", agentID, p.ToolID))
	}

	// 2. Порог доверия
	if trust.Score() < p.RequiredTrust.Score() {
		violations = append(violations,
			fmt.Sprintf("trust level %q is below required %q", trust, p.RequiredTrust))
	}

	// 3. Контентный слой
	var threats []ThreatPattern
	contentRisk := 0.0
	if c.sanitizer != nil && len(params) > 0 {
		res := c.sanitizer.ScanParams(params, trust)
		if !res.Safe {
			threats = res.Threats
			contentRisk = res.RiskScore / maxContentRisk
			violations = append(violations,
				fmt.Sprintf("parameters contain threat patterns: %s", threatSummary(threats)))
		}
	}

	// 4. Tier-гейт (квантитативный)
	score := p.Tier.BaseSeverity()*trust.RiskMultiplier() + contentRisk
	if score > 1.0 {
		score = 1.0
	}
	if score >= AutoBlockThreshold {
		violations = append(violations,
			fmt.Sprintf("risk score %.2f exceeds auto-block threshold %.2f", score, AutoBlockThreshold))
	}

	d := Decision{
		RiskScore:  score,
		Violations: violations,
		Threats:    threats,
	}

	if len(violations) > 0 {
		d.Reason = "denied: " + strings.Join(violations, "; ")
		return d
	}

	d.Allowed = true
	if p.Tier.NeedsApproval() {
		d.RequiresApproval = true
		d.Reason = fmt.Sprintf("approval required for %s tier (risk %.2f)", p.Tier, score)
	} else {
		d.Reason = fmt.Sprintf("allowed (risk %.2f)", score)
	}
	return d
}

func threatSummary(threats []ThreatPattern) string {
	parts := make([]string, 0, len(threats))
	for _, t := range threats {
		parts = append(parts, fmt.Sprintf("%s (%s, %s)", t.Pattern, t.Category, t.Severity))
	}
	return strings.Join(parts, ", ")
}
