package policy

import (
	"fmt"
	"os"

	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
	"gopkg.in/yaml.v3"
)

// Document — контракт Authority с загрузчиком политик.
// Формат файла: version, description и список записей.
type Document struct {
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Policies    []Record `yaml:"policies"`
}

type Record struct {
	ToolID             string   `yaml:"tool_id"`
	PermissionTier     string   `yaml:"permission_tier"`
	RequiredTrustLevel string   `yaml:"required_trust_level"`
	AllowedAgents      []string `yaml:"allowed_agents"`
	RateLimit          int      `yaml:"rate_limit"`
	Description        string   `yaml:"description"`
}

// LoadFile читает и целиком валидирует документ с политиками.
// Любая невалидная запись проваливает ВСЮ загрузку: частично
// зарегистрированный набор правил хуже, чем отсутствие набора.
func LoadFile(path string) (*Document, []domain.ToolPolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("policy loader: read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("policy loader: parse %s: %w", path, err)
	}

	policies, err := doc.Compile()
	if err != nil {
		return nil, nil, err
	}
	return &doc, policies, nil
}

// Compile превращает сырые записи в типизированные политики.
// Валидация строгая: tier и trust обязаны быть членами фиксированных
// перечислений, tool_id — непустым и уникальным внутри документа.
func (d *Document) Compile() ([]domain.ToolPolicy, error) {
	seen := make(map[string]struct{}, len(d.Policies))
	out := make([]domain.ToolPolicy, 0, len(d.Policies))

	for i, rec := range d.Policies {
		if rec.ToolID == "" {
			return nil, fmt.Errorf("policy loader: record %d: tool_id is empty", i)
		}
		if _, dup := seen[rec.ToolID]; dup {
			return nil, fmt.Errorf("policy loader: duplicate tool_id %q", rec.ToolID)
		}
		seen[rec.ToolID] = struct{}{}

		tier, err := domain.ParsePermissionTier(rec.PermissionTier)
		if err != nil {
			return nil, fmt.Errorf("policy loader: record %q: %w", rec.ToolID, err)
		}
		trust, err := domain.ParseTrustLevel(rec.RequiredTrustLevel)
		if err != nil {
			return nil, fmt.Errorf("policy loader: record %q: %w", rec.ToolID, err)
		}
		if rec.RateLimit < 0 {
			return nil, fmt.Errorf("policy loader: record %q: negative rate_limit", rec.ToolID)
		}

		out = append(out, domain.ToolPolicy{
			ToolID:        rec.ToolID,
			Tier:          tier,
			RequiredTrust: trust,
			AllowedAgents: rec.AllowedAgents,
			RateLimit:     rec.RateLimit,
			Description:   rec.Description,
		})
	}

	return out, nil
}
